package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewHTTPGateway exposes the same reads as the gRPC service as JSON over HTTP. metrics is
// mounted at /metrics when not nil.
func NewHTTPGateway(s *Server, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/streams", s.handleSymbols).Methods(http.MethodGet)
	r.HandleFunc("/streams/{symbol}/tables", s.handleTables).Methods(http.MethodGet)
	r.HandleFunc("/streams/{symbol}/tables/{table}", s.handleTable).Methods(http.MethodGet)
	r.HandleFunc("/streams/{symbol}/orderbook", s.handleOrderBook).Methods(http.MethodGet)
	r.HandleFunc("/streams/{symbol}/state", s.handleState).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	return r
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.resolver.Symbols())
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.tables(mux.Vars(r)["symbol"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rows, err := s.table(vars["symbol"], vars["table"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, domain.Wrapf(domain.ErrCodeInvalidRequest, err, "invalid depth %q", raw))
			return
		}
		depth = n
	}

	snapshot, err := s.orderBook(mux.Vars(r)["symbol"], depth)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	state, err := s.state(symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "state": state.String()})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch domain.GetCode(err) {
	case domain.ErrCodeNotFound, domain.ErrCodeTableNotFound:
		code = http.StatusNotFound
	case domain.ErrCodeInvalidRequest:
		code = http.StatusBadRequest
	default:
		s.logger.Error("request failed", zap.Error(err))
	}

	s.writeJSON(w, code, map[string]any{
		"error": err.Error(),
		"code":  domain.GetCode(err),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}
