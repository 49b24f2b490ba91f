package bitmex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// HMACSigner signs requests as hex(HMAC-SHA256(secret, verb + path + expires)).
type HMACSigner struct{}

func (HMACSigner) Sign(secret, verb, path string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(verb + path + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
