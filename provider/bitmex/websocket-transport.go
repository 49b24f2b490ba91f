package bitmex

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 5 * time.Second
)

// WebsocketTransport dials realtime connections with gorilla/websocket. Keepalive is done with
// protocol level pings: the read deadline is interval+timeout and every pong or message moves it.
type WebsocketTransport struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func NewWebsocketTransport() *WebsocketTransport {
	return &WebsocketTransport{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (t *WebsocketTransport) Dial(ctx context.Context, url string, keepAlive domain.KeepAlive) (domain.Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, url, t.Header)
	if err != nil {
		if resp != nil {
			return nil, domain.Wrapf(domain.ErrCodeTransport, err, "dial %s: handshake status %d", url, resp.StatusCode)
		}
		return nil, domain.Wrapf(domain.ErrCodeTransport, err, "dial %s", url)
	}

	c := &websocketConn{
		conn:      conn,
		keepAlive: keepAlive,
		done:      make(chan struct{}),
	}

	if keepAlive.Enabled() {
		c.extendDeadline()
		conn.SetPongHandler(func(string) error {
			c.extendDeadline()
			return nil
		})
		go c.pingLoop()
	}

	return c, nil
}

type websocketConn struct {
	conn      *websocket.Conn
	keepAlive domain.KeepAlive

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *websocketConn) extendDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.keepAlive.PingInterval + c.keepAlive.PingTimeout))
}

func (c *websocketConn) pingLoop() {
	ticker := time.NewTicker(c.keepAlive.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			// a failed ping leaves the read deadline to expire
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *websocketConn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *websocketConn) Receive() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, domain.Wrapf(domain.ErrCodeTransport, err, "closed by server with code %d", closeErr.Code)
			}
			return nil, err
		}
		if c.keepAlive.Enabled() {
			c.extendDeadline()
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *websocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}
