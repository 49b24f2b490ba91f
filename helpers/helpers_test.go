package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		max      int
		expected string
	}{
		{"Short", "pong", 10, "pong"},
		{"Cut", `{"table":"trade"}`, 8, `{"table"...`},
		{"RuneBoundary", "ab€", 3, "ab..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Preview([]byte(tt.raw), tt.max))
		})
	}
}

func TestToJsonString(t *testing.T) {
	assert.Equal(t, `{"op":"subscribe"}`, ToJsonString(map[string]string{"op": "subscribe"}))
	assert.Equal(t, "", ToJsonString(make(chan int)), "unencodable values should yield an empty string")
}
