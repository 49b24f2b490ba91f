package bitmex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWebsocketURL(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		heartbeat bool
		expected  string
	}{
		{"WithHeartbeat", "https://testnet.bitmex.com/api/v1/", true, "wss://testnet.bitmex.com/realtime?heartbeat=true"},
		{"WithoutHeartbeat", "https://testnet.bitmex.com/api/v1/", false, "wss://testnet.bitmex.com/realtime"},
		{"PlainHTTP", "http://127.0.0.1:8080/api/v1", false, "ws://127.0.0.1:8080/realtime"},
		{"QueryDropped", "https://www.bitmex.com/api/v1/?x=1", false, "wss://www.bitmex.com/realtime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, err := BuildWebsocketURL(tt.base, tt.heartbeat)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, url)
		})
	}
}

func TestBuildWebsocketURL_Invalid(t *testing.T) {
	for _, base := range []string{"", "ftp://bitmex.com/api/v1/", "/api/v1/", "://bad"} {
		_, err := BuildWebsocketURL(base, false)
		assert.Error(t, err, "BuildWebsocketURL(%q) should fail", base)
	}
}
