package bitmex

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// fakeRealtime speaks enough of the realtime protocol to drive a StreamClient: it greets,
// answers auth and subscribe requests and sends a partial for every subscribed table.
type fakeRealtime struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	fixtures      map[string][]byte
	unknownTables map[string]bool
	sendPartials  atomic.Bool
	rejectAuth    atomic.Bool

	mu       sync.Mutex
	conns    []*fakeConn
	received [][]byte
}

type fakeConn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	topics []string
}

func (c *fakeConn) write(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteJSON(v)
}

func (c *fakeConn) writeRaw(raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteMessage(websocket.TextMessage, raw)
}

func newFakeRealtime(t *testing.T) *fakeRealtime {
	t.Helper()

	f := &fakeRealtime{
		t:        t,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		fixtures: map[string][]byte{
			"orderBookL2": fixture(t, "order_book_l2_partial.json"),
			"instrument":  fixture(t, "instrument_partial.json"),
		},
		unknownTables: map[string]bool{"instrument_": true},
	}
	f.sendPartials.Store(true)

	router := mux.NewRouter()
	router.HandleFunc("/realtime", f.handle)
	f.server = httptest.NewServer(router)
	return f
}

// Endpoint is the REST style base URL the client derives the realtime URL from.
func (f *fakeRealtime) Endpoint() string {
	return f.server.URL + "/api/v1/"
}

func (f *fakeRealtime) Close() {
	f.DropAll()
	f.server.Close()
}

func (f *fakeRealtime) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeRealtime) Received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.received...)
}

// DropAll closes every connection without a close handshake.
func (f *fakeRealtime) DropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.ws.Close()
	}
}

// SendPendingPartials sends the partials of every topic subscribed on the latest connection.
func (f *fakeRealtime) SendPendingPartials() {
	f.mu.Lock()
	c := f.conns[len(f.conns)-1]
	f.mu.Unlock()

	c.mu.Lock()
	topics := append([]string(nil), c.topics...)
	c.mu.Unlock()
	for _, topic := range topics {
		f.partial(c, topic)
	}
}

func (f *fakeRealtime) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c := &fakeConn{ws: ws}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()

	c.write(map[string]any{
		"info":      "Welcome to the BitMEX Realtime API.",
		"version":   "2.0.0",
		"timestamp": "2019-05-28T14:00:00.000Z",
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		f.mu.Lock()
		f.received = append(f.received, data)
		f.mu.Unlock()

		var cmd struct {
			Op   string            `json:"op"`
			Args []json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		request := map[string]any{"op": cmd.Op, "args": cmd.Args}

		switch cmd.Op {
		case OpAuthKeyExpires:
			if f.rejectAuth.Load() {
				c.write(map[string]any{"status": 401, "error": "Signature not valid.", "meta": map[string]any{}, "request": request})
			} else {
				c.write(map[string]any{"success": true, "request": request})
			}
		case OpSubscribe:
			for _, raw := range cmd.Args {
				var topic string
				_ = json.Unmarshal(raw, &topic)
				table, _, _ := strings.Cut(topic, ":")

				if f.unknownTables[table] {
					c.write(map[string]any{
						"status":  400,
						"error":   "Unknown table: " + table,
						"meta":    map[string]any{},
						"request": map[string]any{"op": OpSubscribe, "args": []string{topic}},
					})
					continue
				}

				c.write(map[string]any{"success": true, "subscribe": topic, "request": request})
				c.mu.Lock()
				c.topics = append(c.topics, topic)
				c.mu.Unlock()
				if f.sendPartials.Load() {
					f.partial(c, topic)
				}
			}
		case OpUnsubscribe:
			for _, raw := range cmd.Args {
				var topic string
				_ = json.Unmarshal(raw, &topic)
				c.write(map[string]any{"success": true, "unsubscribe": topic, "request": request})
			}
		}
	}
}

func (f *fakeRealtime) partial(c *fakeConn, topic string) {
	table, _, _ := strings.Cut(topic, ":")
	if raw, ok := f.fixtures[table]; ok {
		c.writeRaw(raw)
		return
	}
	c.write(map[string]any{"table": table, "action": "partial", "data": []any{}})
}
