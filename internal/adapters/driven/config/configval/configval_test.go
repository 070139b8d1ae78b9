package configval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "x", String("x"))
	assert.Equal(t, "", String(42))
	assert.Equal(t, "", String(nil))
}

func TestInt(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{"int", 7, 7},
		{"int64", int64(8), 8},
		{"float64", 9.9, 9},
		{"string", "10", 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Int(tt.in))
		})
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"float64", 0.25, 0.25},
		{"float32", float32(0.5), 0.5},
		{"int", 2, 2},
		{"int64", int64(3), 3},
		{"numeric string", "0.2", 0.2},
		{"bad string", "high", 0},
		{"bool", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Float(tt.in), 1e-9)
		})
	}
}

func TestBool(t *testing.T) {
	assert.True(t, Bool(true))
	assert.False(t, Bool("true"))
}

func TestStringSlice(t *testing.T) {
	assert.Equal(t, []string{"a"}, StringSlice([]string{"a"}))
	assert.Equal(t, []string{"a", "c"}, StringSlice([]any{"a", 1, "c"}))
	assert.Nil(t, StringSlice("a"))
}
