package promclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector owns the realtime metrics. Streams report through the view returned by ForStream.
type Collector struct {
	registry *prometheus.Registry

	connectionState    *prometheus.GaugeVec
	reconnects         *prometheus.CounterVec
	frames             *prometheus.CounterVec
	tableRows          *prometheus.GaugeVec
	subscriptionErrors *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realtime_connection_state",
			Help: "1 for the current connection state of a stream, 0 otherwise",
		}, []string{"symbol", "state"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_reconnects_total",
			Help: "reconnect attempts",
		}, []string{"symbol"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_frames_total",
			Help: "inbound frames by kind",
		}, []string{"symbol", "kind"}),
		tableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realtime_table_rows",
			Help: "rows currently mirrored per table",
		}, []string{"symbol", "table"}),
		subscriptionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_subscription_errors_total",
			Help: "subscriptions rejected by the server",
		}, []string{"symbol"}),
	}

	c.registry.MustRegister(
		c.connectionState,
		c.reconnects,
		c.frames,
		c.tableRows,
		c.subscriptionErrors,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ForStream returns the metrics view of one stream.
func (c *Collector) ForStream(symbol string) *StreamMetrics {
	if c == nil {
		return nil
	}
	labels := prometheus.Labels{"symbol": symbol}
	return &StreamMetrics{
		connectionState:    c.connectionState.MustCurryWith(labels),
		reconnects:         c.reconnects.With(labels),
		frames:             c.frames.MustCurryWith(labels),
		tableRows:          c.tableRows.MustCurryWith(labels),
		subscriptionErrors: c.subscriptionErrors.With(labels),
		allTableRows:       c.tableRows,
		symbol:             symbol,
	}
}

// StreamMetrics is safe to use as a nil pointer, every method is then a no-op.
type StreamMetrics struct {
	connectionState    *prometheus.GaugeVec
	reconnects         prometheus.Counter
	frames             *prometheus.CounterVec
	tableRows          *prometheus.GaugeVec
	subscriptionErrors prometheus.Counter

	allTableRows *prometheus.GaugeVec
	symbol       string
}

// SetState marks state as current among states.
func (m *StreamMetrics) SetState(state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

func (m *StreamMetrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *StreamMetrics) IncFrame(kind string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind).Inc()
}

func (m *StreamMetrics) SetTableRows(table string, rows int) {
	if m == nil {
		return
	}
	m.tableRows.WithLabelValues(table).Set(float64(rows))
}

// ResetTables zeroes the row gauges, as after the store was cleared.
func (m *StreamMetrics) ResetTables() {
	if m == nil {
		return
	}
	m.allTableRows.DeletePartialMatch(prometheus.Labels{"symbol": m.symbol})
}

func (m *StreamMetrics) IncSubscriptionError() {
	if m == nil {
		return
	}
	m.subscriptionErrors.Inc()
}

// StartPromClientServer serves handler on addr until ctx is done.
func StartPromClientServer(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
