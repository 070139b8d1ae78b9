package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawDocument_Fields(t *testing.T) {
	raw := RawDocument{
		URI:      "/docs/handbook.pdf",
		MIMEType: "application/pdf",
		Content:  []byte("PDF content here"),
		Metadata: map[string]any{"team": "platform"},
	}

	assert.Equal(t, "/docs/handbook.pdf", raw.URI)
	assert.Equal(t, "application/pdf", raw.MIMEType)
	assert.Equal(t, []byte("PDF content here"), raw.Content)
	assert.Equal(t, "platform", raw.Metadata["team"])
}

func TestRawDocument_DetectedMIMEType(t *testing.T) {
	raw := RawDocument{URI: "notes.txt", Content: []byte("hello")}

	assert.Empty(t, raw.MIMEType)
	assert.Nil(t, raw.Metadata)
}
