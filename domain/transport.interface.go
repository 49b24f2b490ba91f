package domain

import (
	"context"
	"time"
)

// KeepAlive configures transport level pings. Both fields must be set to enable it.
type KeepAlive struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
}

func (k KeepAlive) Enabled() bool {
	return k.PingInterval > 0 && k.PingTimeout > 0
}

type Transport interface {
	Dial(ctx context.Context, url string, keepAlive KeepAlive) (Conn, error)
}

// Conn is one open socket. Receive is called from a single goroutine; Send and Close
// are safe to call concurrently with it.
type Conn interface {
	Send(frame []byte) error
	Receive() ([]byte, error)
	Close() error
}

type Signer interface {
	Sign(secret, verb, path string, expires int64) string
}
