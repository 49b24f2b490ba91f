package helpers

import (
	"encoding/json"
	"unicode/utf8"
)

// ToJsonString converts any value to JSON string.
func ToJsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Preview returns at most max bytes of a frame for logging, cut on a rune boundary.
func Preview(raw []byte, max int) string {
	if len(raw) <= max {
		return string(raw)
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return string(raw[:cut]) + "..."
}
