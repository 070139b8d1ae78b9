package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd_SkipsEngine(t *testing.T) {
	assert.Equal(t, "true", versionCmd.Annotations[skipEngine])
}

func TestVersionCmd_Executes(t *testing.T) {
	tests := []struct {
		version  string
		expected string
	}{
		{"1.2.0", "kbengine version 1.2.0"},
		{"dev", "kbengine version dev"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			original := version
			version = tt.version
			defer func() { version = original }()

			out, err := executeCommand("version")
			require.NoError(t, err)
			assert.Contains(t, out, tt.expected)
		})
	}
}
