package bitmex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TradeNexus/bitmex-websocket/config"
	"github.com/TradeNexus/bitmex-websocket/domain"
	promclient "github.com/TradeNexus/bitmex-websocket/infrastructure/prometheus"
	"github.com/jpillora/backoff"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
)

const authVerb = "GET"

var stateNames = func() []string {
	out := make([]string, len(domain.AllConnectionStates))
	for i, s := range domain.AllConnectionStates {
		out[i] = s.String()
	}
	return out
}()

type Option func(*StreamClient)

func WithTransport(t domain.Transport) Option {
	return func(c *StreamClient) { c.transport = t }
}

func WithSigner(s domain.Signer) Option {
	return func(c *StreamClient) { c.signer = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *StreamClient) { c.logger = l }
}

func WithMetrics(m *promclient.StreamMetrics) Option {
	return func(c *StreamClient) { c.metrics = m }
}

// WithErrorHandler receives subscription errors, unsolicited server errors and the fatal
// error that closed the client. It runs on the client's goroutines and must not call Close.
func WithErrorHandler(fn func(error)) Option {
	return func(c *StreamClient) { c.onError = fn }
}

// WithClock replaces the time source used for signed expiry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *StreamClient) { c.now = now }
}

// StreamClient keeps one realtime connection for a symbol alive and mirrors its tables.
// Each connection attempt is a session: dial, authenticate, subscribe, wait for the first
// data of every table, then serve until the transport fails. Between sessions the mirror is
// cleared and the subscriptions go back to pending.
type StreamClient struct {
	cfg       *config.Config
	symbol    string
	url       string
	keepAlive domain.KeepAlive

	transport domain.Transport
	signer    domain.Signer
	logger    *zap.Logger
	metrics   *promclient.StreamMetrics
	onError   func(error)
	now       func() time.Time

	store   *domain.TableStore
	tracker *domain.SubscriptionTracker
	machine *domain.StateMachine
	backoff *backoff.Backoff

	started   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	reconnect chan struct{}

	// reconnectMu pairs the connected check in Reconnect with the send.
	reconnectMu sync.Mutex

	mu   sync.Mutex
	conn domain.Conn
	err  error
}

func NewStreamClient(cfg *config.Config, symbol string, opts ...Option) (*StreamClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.Wrap(domain.ErrCodeConfiguration, "invalid stream config", err)
	}

	url, err := BuildWebsocketURL(cfg.Endpoint, cfg.Heartbeat.Enabled)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCodeConfiguration, "invalid endpoint", err)
	}

	c := &StreamClient{
		cfg:       cfg,
		symbol:    symbol,
		url:       url,
		transport: NewWebsocketTransport(),
		signer:    HMACSigner{},
		logger:    zap.NewNop(),
		now:       time.Now,
		tracker:   domain.NewSubscriptionTracker(),
		backoff: &backoff.Backoff{
			Min:    cfg.Reconnect.MinBackoff,
			Max:    cfg.Reconnect.MaxBackoff,
			Factor: cfg.Reconnect.Factor,
			Jitter: cfg.Reconnect.Jitter,
		},
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}
	if cfg.Heartbeat.Enabled {
		c.keepAlive = domain.KeepAlive{
			PingInterval: cfg.Heartbeat.PingInterval,
			PingTimeout:  cfg.Heartbeat.PingTimeout,
		}
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("bitmex").With(zap.String("symbol", symbol))

	c.store = domain.NewTableStore(cfg.Keys,
		domain.WithMaxKeylessRows(cfg.MaxKeylessRows),
		domain.WithStoreLogger(c.logger.Named("store")),
	)
	c.machine = domain.NewStateMachine(c.onStateChange)

	topics, err := c.topics(cfg.Tables)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCodeConfiguration, "invalid table", err)
	}
	for _, topic := range topics {
		c.tracker.Request(topic)
	}

	return c, nil
}

// Connect starts the connection and blocks until every subscribed table has received its
// first data. It fails with ErrReadinessTimeout, an exhausted authentication error, ErrClosed
// when Close is called meanwhile, or ctx's error, in which case the client is closed.
func (c *StreamClient) Connect(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		if c.isClosed() {
			return domain.ErrClosed
		}
		return domain.ErrAlreadyOpened
	}

	ready := make(chan struct{})
	go c.run(ready)

	select {
	case <-ready:
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	}
}

// Close stops the connection. It is idempotent and waits for the client's goroutines.
func (c *StreamClient) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	if c.started.CompareAndSwap(false, true) {
		c.finish(domain.ErrClosed)
		close(c.done)
		return nil
	}

	<-c.done
	return nil
}

// Reconnect drops the current connection and starts over. It is ignored unless connected.
func (c *StreamClient) Reconnect() bool {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.State() != domain.StateConnected {
		c.logger.Debug("reconnect ignored", zap.Stringer("state", c.State()))
		return false
	}

	select {
	case c.reconnect <- struct{}{}:
		return true
	default:
		return false
	}
}

// Subscribe adds tables at runtime. The request is handed to the transport when a connection
// is live, otherwise it goes out with the next subscribing phase. The returned handles
// resolve when the server answers.
func (c *StreamClient) Subscribe(ctx context.Context, tables ...string) ([]*domain.Subscription, error) {
	if c.isClosed() {
		return nil, domain.ErrClosed
	}
	topics, err := c.topics(tables)
	if err != nil {
		return nil, err
	}

	subs := make([]*domain.Subscription, len(topics))
	for i, topic := range topics {
		subs[i] = c.tracker.Request(topic)
	}

	return subs, c.sendLive(ctx, SubscribeFrame, topics)
}

// Unsubscribe stops tracking tables and asks the server to stop sending them.
func (c *StreamClient) Unsubscribe(ctx context.Context, tables ...string) error {
	if c.isClosed() {
		return domain.ErrClosed
	}
	topics, err := c.topics(tables)
	if err != nil {
		return err
	}

	for _, topic := range topics {
		c.tracker.Remove(topic)
	}
	return c.sendLive(ctx, UnsubscribeFrame, topics)
}

// Table returns a snapshot of the mirrored rows of a table.
func (c *StreamClient) Table(name string) []*domain.Record {
	return c.store.Get(name)
}

func (c *StreamClient) Find(table string, probe *domain.Record) optional.Option[*domain.Record] {
	return c.store.Find(table, probe)
}

// Tables lists the tables that have received their partial.
func (c *StreamClient) Tables() []string {
	return c.store.Tables()
}

func (c *StreamClient) Subscriptions() []*domain.Subscription {
	return c.tracker.All()
}

func (c *StreamClient) State() domain.ConnectionState {
	return c.machine.Current()
}

func (c *StreamClient) Symbol() string { return c.symbol }

func (c *StreamClient) URL() string { return c.url }

// Done is closed once the client has stopped for good.
func (c *StreamClient) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the client, ErrClosed after a plain Close.
func (c *StreamClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *StreamClient) run(ready chan struct{}) {
	var fatal error
	defer func() {
		if fatal != nil {
			c.emitError(fatal)
		}
		close(c.done)
	}()

	var readyOnce sync.Once
	markReady := func() { readyOnce.Do(func() { close(ready) }) }
	authFailures := 0

	for {
		authenticated, err := c.session(markReady)
		if c.isClosed() {
			c.finish(domain.ErrClosed)
			return
		}
		if authenticated {
			authFailures = 0
		}

		switch {
		case errors.Is(err, domain.ErrReadinessTimeout):
			c.logger.Error("giving up, tables did not load", zap.Error(err))
			fatal = err
		case errors.Is(err, domain.ErrInvalidTransition):
			c.logger.Error("connection state corrupted", zap.Error(err))
			fatal = err
		case errors.Is(err, domain.ErrAuthentication):
			authFailures++
			if max := c.cfg.Reconnect.MaxAuthRetries; max > 0 && authFailures > max {
				c.logger.Error("giving up, authentication keeps failing", zap.Int("attempts", authFailures), zap.Error(err))
				fatal = err
			}
		}
		if fatal != nil {
			c.finish(fatal)
			return
		}

		c.logger.Warn("connection lost", zap.Error(err))
		if err := c.machine.Transition(domain.StateReconnecting); err != nil {
			fatal = err
			c.finish(err)
			return
		}
		c.metrics.IncReconnect()
		c.store.Clear()
		c.tracker.Reset()
		c.metrics.ResetTables()

		wait := c.backoff.Duration()
		c.logger.Info("reconnecting", zap.Duration("backoff", wait), zap.Float64("attempt", c.backoff.Attempt()))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.closed:
			timer.Stop()
			c.finish(domain.ErrClosed)
			return
		}
	}
}

// session runs one connection attempt and returns why it ended.
func (c *StreamClient) session(markReady func()) (authenticated bool, err error) {
	if err := c.machine.Transition(domain.StateConnecting); err != nil {
		return false, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := c.transport.Dial(ctx, c.url, c.keepAlive)
	if err != nil {
		if ctx.Err() != nil {
			return false, domain.ErrClosed
		}
		return false, asTransportError(err, "dial failed")
	}
	c.setConn(conn)
	c.logger.Info("connected", zap.String("url", c.url))

	authResult := make(chan error, 1)
	readyCh := make(chan struct{})
	var readyOnce sync.Once
	checkReady := func() {
		if c.machine.Current() != domain.StateSubscribing {
			return
		}
		if c.tracker.Settled(c.store.Has) {
			readyOnce.Do(func() { close(readyCh) })
		}
	}

	frames := make(chan Message, c.cfg.FrameBuffer)
	readErr := make(chan error, 1)
	dispatcher := NewDispatcher(c.store, c.tracker, c.logger, c.metrics, DispatchHooks{
		OnAuth: func(err error) {
			select {
			case authResult <- err:
			default:
			}
		},
		OnError: c.emitError,
		OnFrame: func(Message) { checkReady() },
	})

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(frames)
	}()
	go c.readLoop(conn, frames, readErr)

	defer func() {
		c.setConn(nil)
		_ = conn.Close()
		<-dispatched
	}()

	if c.cfg.Authenticated() {
		if err := c.machine.Transition(domain.StateAuthenticating); err != nil {
			return false, err
		}
		if err := c.authenticate(conn); err != nil {
			return false, err
		}

		timer := time.NewTimer(c.cfg.AuthTimeout)
		defer timer.Stop()
		select {
		case err := <-authResult:
			if err != nil {
				return false, err
			}
		case err := <-readErr:
			return false, err
		case <-timer.C:
			return false, domain.Newf(domain.ErrCodeAuthentication, "no authentication response within %s", c.cfg.AuthTimeout)
		case <-ctx.Done():
			return false, domain.ErrClosed
		}
		authenticated = true
		c.logger.Info("authenticated")
	}

	if err := c.machine.Transition(domain.StateSubscribing); err != nil {
		return authenticated, err
	}
	if topics := c.tracker.Topics(); len(topics) > 0 {
		frame, err := SubscribeFrame(topics)
		if err != nil {
			return authenticated, err
		}
		if err := conn.Send(frame); err != nil {
			return authenticated, asTransportError(err, "subscribe failed")
		}
		c.logger.Info("subscribing", zap.Strings("topics", domain.TopicStrings(topics)))
	}
	checkReady()

	var timeout <-chan time.Time
	if c.cfg.ReadyTimeout > 0 {
		timer := time.NewTimer(c.cfg.ReadyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-readyCh:
	case err := <-readErr:
		return authenticated, err
	case <-timeout:
		return authenticated, domain.Newf(domain.ErrCodeReadinessTimeout,
			"tables not loaded within %s, loaded %v", c.cfg.ReadyTimeout, c.store.Tables())
	case <-ctx.Done():
		return authenticated, domain.ErrClosed
	}

	if err := c.enterConnected(); err != nil {
		return authenticated, err
	}
	c.backoff.Reset()
	markReady()

	select {
	case err := <-readErr:
		return authenticated, err
	case <-c.reconnect:
		return authenticated, domain.New(domain.ErrCodeTransport, "reconnect requested")
	case <-ctx.Done():
		return authenticated, domain.ErrClosed
	}
}

func (c *StreamClient) authenticate(conn domain.Conn) error {
	expires := c.now().Add(c.cfg.AuthExpiry).Unix()
	signature := c.signer.Sign(c.cfg.APISecret, authVerb, realtimePath, expires)

	frame, err := AuthFrame(c.cfg.APIKey, expires, signature)
	if err != nil {
		return err
	}
	if err := conn.Send(frame); err != nil {
		return asTransportError(err, "authentication request failed")
	}
	return nil
}

func (c *StreamClient) readLoop(conn domain.Conn, frames chan<- Message, readErr chan<- error) {
	defer close(frames)

	for {
		raw, err := conn.Receive()
		if err != nil {
			readErr <- asTransportError(err, "read failed")
			return
		}

		msg, err := DecodeFrame(raw)
		if err != nil {
			c.metrics.IncFrame("malformed")
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		frames <- msg
	}
}

func (c *StreamClient) sendLive(ctx context.Context, build func([]domain.Topic) ([]byte, error), topics []domain.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	switch c.State() {
	case domain.StateSubscribing, domain.StateConnected:
	default:
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := build(topics)
	if err != nil {
		return err
	}
	if err := conn.Send(frame); err != nil {
		return asTransportError(err, "send failed")
	}
	return nil
}

func (c *StreamClient) topics(tables []string) ([]domain.Topic, error) {
	topics := make([]domain.Topic, 0, len(tables))
	for _, table := range tables {
		topic, err := domain.ParseTopic(table)
		if err != nil {
			return nil, err
		}
		topics = append(topics, topic.WithDefaultFilter(c.symbol))
	}
	return topics, nil
}

// enterConnected drops a reconnect request left over from an earlier session.
func (c *StreamClient) enterConnected() error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	select {
	case <-c.reconnect:
	default:
	}
	return c.machine.Transition(domain.StateConnected)
}

func (c *StreamClient) setConn(conn domain.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *StreamClient) finish(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.closed) })
	if c.machine.Current() != domain.StateClosed {
		_ = c.machine.Transition(domain.StateClosed)
	}
}

func (c *StreamClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *StreamClient) onStateChange(from, to domain.ConnectionState) {
	c.logger.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	c.metrics.SetState(to.String(), stateNames)
}

func (c *StreamClient) emitError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func asTransportError(err error, message string) error {
	if errors.Is(err, domain.ErrTransport) {
		return err
	}
	return domain.Wrap(domain.ErrCodeTransport, message, err)
}
