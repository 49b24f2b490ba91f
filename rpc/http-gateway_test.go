package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func gateway(t *testing.T) *httptest.Server {
	t.Helper()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("realtime_reconnects_total 0\n"))
	})
	srv := httptest.NewServer(NewHTTPGateway(NewServer(fakeStreams(t), zaptest.NewLogger(t)), metrics))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHTTPGateway_Streams(t *testing.T) {
	srv := gateway(t)

	var symbols []string
	assert.Equal(t, http.StatusOK, get(t, srv, "/streams", &symbols))
	assert.Equal(t, []string{"XBTUSD"}, symbols)

	var tables []string
	assert.Equal(t, http.StatusOK, get(t, srv, "/streams/XBTUSD/tables", &tables))
	assert.Equal(t, []string{"orderBookL2"}, tables)
}

func TestHTTPGateway_Table(t *testing.T) {
	srv := gateway(t)

	var rows []map[string]any
	require.Equal(t, http.StatusOK, get(t, srv, "/streams/XBTUSD/tables/orderBookL2", &rows))
	require.Len(t, rows, 4)
	assert.Equal(t, "Sell", rows[0]["side"])
	assert.Equal(t, float64(8799193300), rows[0]["id"])
}

func TestHTTPGateway_OrderBook(t *testing.T) {
	srv := gateway(t)

	var book struct {
		Symbol string `json:"symbol"`
		Bids   []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"asks"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/streams/XBTUSD/orderbook?depth=2", &book))

	assert.Equal(t, "XBTUSD", book.Symbol)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, "3800", book.Bids[0].Price)
	assert.Equal(t, "3801", book.Asks[0].Price)
	assert.Equal(t, "20", book.Asks[0].Size)
}

func TestHTTPGateway_State(t *testing.T) {
	srv := gateway(t)

	var state map[string]string
	require.Equal(t, http.StatusOK, get(t, srv, "/streams/XBTUSD/state", &state))
	assert.Equal(t, map[string]string{"symbol": "XBTUSD", "state": "connected"}, state)
}

func TestHTTPGateway_Errors(t *testing.T) {
	srv := gateway(t)

	tests := []struct {
		name     string
		path     string
		expected int
	}{
		{"UnknownSymbol", "/streams/ETHUSD/state", http.StatusNotFound},
		{"TableNotLoaded", "/streams/XBTUSD/tables/trade", http.StatusNotFound},
		{"DepthNotNumber", "/streams/XBTUSD/orderbook?depth=ten", http.StatusBadRequest},
		{"DepthTooLarge", "/streams/XBTUSD/orderbook?depth=5000", http.StatusBadRequest},
		{"MalformedSymbol", "/streams/XBT-USD/state", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			assert.Equal(t, tt.expected, get(t, srv, tt.path, &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHTTPGateway_Metrics(t *testing.T) {
	srv := gateway(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
