package bitmex

import (
	"fmt"
	"net/url"
)

const realtimePath = "/realtime"

// BuildWebsocketURL derives the realtime endpoint from a REST base URL:
// https://host/api/v1/ becomes wss://host/realtime, plain http maps to ws.
func BuildWebsocketURL(base string, heartbeat bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", base, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", base)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid endpoint %q: unsupported scheme %q", base, u.Scheme)
	}

	u.Path = realtimePath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	if heartbeat {
		u.RawQuery = "heartbeat=true"
	}
	return u.String(), nil
}
