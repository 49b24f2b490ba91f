package bitmex

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TradeNexus/bitmex-websocket/config"
	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/TradeNexus/bitmex-websocket/mocks"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

const (
	eventually = 2 * time.Second
	tick       = 10 * time.Millisecond
)

type StreamClientTestSuite struct {
	suite.Suite
	server *fakeRealtime

	mu   sync.Mutex
	errs []error
}

func TestStreamClientSuite(t *testing.T) {
	suite.Run(t, new(StreamClientTestSuite))
}

func (s *StreamClientTestSuite) SetupTest() {
	s.server = newFakeRealtime(s.T())
	s.errs = nil
}

func (s *StreamClientTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *StreamClientTestSuite) config() *config.Config {
	cfg := config.Default()
	cfg.Endpoint = s.server.Endpoint()
	cfg.Symbols = []string{"XBTUSD"}
	cfg.Tables = []string{"instrument", "orderBookL2"}
	cfg.Heartbeat.Enabled = false
	cfg.Reconnect.MinBackoff = 10 * time.Millisecond
	cfg.Reconnect.MaxBackoff = 50 * time.Millisecond
	cfg.Reconnect.Jitter = false
	cfg.AuthTimeout = time.Second
	cfg.ReadyTimeout = 5 * time.Second
	return cfg
}

func (s *StreamClientTestSuite) newClient(cfg *config.Config, opts ...Option) *StreamClient {
	base := []Option{
		WithLogger(zaptest.NewLogger(s.T())),
		WithErrorHandler(func(err error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.errs = append(s.errs, err)
		}),
	}

	client, err := NewStreamClient(cfg, "XBTUSD", append(base, opts...)...)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = client.Close() })
	return client
}

func (s *StreamClientTestSuite) connect(client *StreamClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Connect(ctx)
}

func (s *StreamClientTestSuite) handledErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *StreamClientTestSuite) TestConnectLoadsTables() {
	client := s.newClient(s.config())

	s.Require().NoError(s.connect(client))

	s.Equal(domain.StateConnected, client.State())
	s.Len(client.Table("orderBookL2"), 6)
	s.Len(client.Table("instrument"), 1)
	s.ElementsMatch([]string{"instrument", "orderBookL2"}, client.Tables())

	received := s.server.Received()
	s.Require().Len(received, 1, "all topics should go out in one request")
	s.JSONEq(`{"op":"subscribe","args":["instrument:XBTUSD","orderBookL2:XBTUSD"]}`, string(received[0]))

	for _, sub := range client.Subscriptions() {
		s.Equal(domain.SubscriptionAcknowledged, sub.Status(), sub.Topic.String())
	}
}

func (s *StreamClientTestSuite) TestConnectTwice() {
	client := s.newClient(s.config())
	s.Require().NoError(s.connect(client))

	s.ErrorIs(s.connect(client), domain.ErrAlreadyOpened)
}

func (s *StreamClientTestSuite) TestConnectAfterClose() {
	client := s.newClient(s.config())
	s.Require().NoError(client.Close())

	s.ErrorIs(s.connect(client), domain.ErrClosed)
	s.Equal(domain.StateClosed, client.State())
	s.Zero(s.server.Connections())
}

func (s *StreamClientTestSuite) TestCloseIsIdempotent() {
	client := s.newClient(s.config())
	s.Require().NoError(s.connect(client))

	s.NoError(client.Close())
	s.NoError(client.Close())
	s.Equal(domain.StateClosed, client.State())
	s.ErrorIs(client.Err(), domain.ErrClosed)

	s.Len(client.Table("orderBookL2"), 6, "the last mirror stays readable after close")
}

func (s *StreamClientTestSuite) TestAuthentication() {
	ctrl := gomock.NewController(s.T())
	signer := mocks.NewMockSigner(ctrl)
	signer.EXPECT().Sign("secret", "GET", "/realtime", int64(1518064241)).Return("signature")

	cfg := s.config()
	cfg.APIKey = "key"
	cfg.APISecret = "secret"
	cfg.AuthExpiry = 5 * time.Second
	client := s.newClient(cfg,
		WithSigner(signer),
		WithClock(func() time.Time { return time.Unix(1518064236, 0) }),
	)

	s.Require().NoError(s.connect(client))

	received := s.server.Received()
	s.Require().Len(received, 2)
	s.JSONEq(`{"op":"authKeyExpires","args":["key",1518064241,"signature"]}`, string(received[0]))
	s.JSONEq(`{"op":"subscribe","args":["instrument:XBTUSD","orderBookL2:XBTUSD"]}`, string(received[1]),
		"subscribing should wait for the auth response")
}

func (s *StreamClientTestSuite) TestAuthenticationRetriesExhausted() {
	s.server.rejectAuth.Store(true)

	cfg := s.config()
	cfg.APIKey = "key"
	cfg.APISecret = "secret"
	cfg.Reconnect.MaxAuthRetries = 2
	client := s.newClient(cfg)

	err := s.connect(client)

	s.ErrorIs(err, domain.ErrAuthentication)
	s.Equal(domain.StateClosed, client.State())
	s.Equal(3, s.server.Connections(), "the first attempt plus two retries")
	s.Eventually(func() bool {
		errs := s.handledErrors()
		return len(errs) == 1 && errors.Is(errs[0], domain.ErrAuthentication)
	}, eventually, tick, "the fatal error should reach the handler")
}

func (s *StreamClientTestSuite) TestReadinessTimeout() {
	s.server.sendPartials.Store(false)

	cfg := s.config()
	cfg.ReadyTimeout = 100 * time.Millisecond
	client := s.newClient(cfg)

	err := s.connect(client)

	s.ErrorIs(err, domain.ErrReadinessTimeout)
	s.ErrorIs(client.Err(), domain.ErrReadinessTimeout)
	s.Equal(domain.StateClosed, client.State())
	s.Equal(1, s.server.Connections(), "a readiness timeout should not be retried")
}

func (s *StreamClientTestSuite) TestCloseUnblocksConnect() {
	s.server.sendPartials.Store(false)

	cfg := s.config()
	cfg.ReadyTimeout = 0
	client := s.newClient(cfg)

	result := make(chan error, 1)
	go func() { result <- s.connect(client) }()

	s.Eventually(func() bool { return client.State() == domain.StateSubscribing }, eventually, tick)
	s.Require().NoError(client.Close())

	select {
	case err := <-result:
		s.ErrorIs(err, domain.ErrClosed)
	case <-time.After(eventually):
		s.Fail("Connect did not return after Close")
	}
	s.Equal(domain.StateClosed, client.State())
}

func (s *StreamClientTestSuite) TestContextCancelClosesClient() {
	s.server.sendPartials.Store(false)

	cfg := s.config()
	cfg.ReadyTimeout = 0
	client := s.newClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s.ErrorIs(client.Connect(ctx), context.DeadlineExceeded)
	s.Equal(domain.StateClosed, client.State())
	<-client.Done()
}

func (s *StreamClientTestSuite) TestSubscriptionErrorIsSurfaced() {
	cfg := s.config()
	cfg.Tables = []string{"instrument_", "orderBookL2"}
	client := s.newClient(cfg)

	s.Require().NoError(s.connect(client), "a rejected topic should not block readiness")

	errs := s.handledErrors()
	s.Require().Len(errs, 1)
	s.ErrorIs(errs[0], domain.ErrSubscription)

	var coded *domain.Error
	s.Require().ErrorAs(errs[0], &coded)
	s.Equal("Unknown table: instrument_", coded.Message)

	for _, sub := range client.Subscriptions() {
		if sub.Topic.Table == "instrument_" {
			s.Equal(domain.SubscriptionFailed, sub.Status())
		}
	}
	s.Len(client.Table("orderBookL2"), 6)
}

func (s *StreamClientTestSuite) TestReconnectClearsTables() {
	client := s.newClient(s.config())
	s.Require().NoError(s.connect(client))
	s.Require().Len(client.Table("orderBookL2"), 6)

	s.server.sendPartials.Store(false)
	s.Require().True(client.Reconnect())

	s.Eventually(func() bool {
		return s.server.Connections() == 2 && client.State() == domain.StateSubscribing
	}, eventually, tick)
	s.Empty(client.Table("orderBookL2"), "the old mirror must not survive a reconnect")
	s.Empty(client.Tables())
	s.False(client.Reconnect(), "reconnect is only honored while connected")

	s.server.SendPendingPartials()

	s.Eventually(func() bool {
		return client.State() == domain.StateConnected && len(client.Table("orderBookL2")) == 6
	}, eventually, tick)
}

func (s *StreamClientTestSuite) TestStaleReconnectRequestIsDropped() {
	client := s.newClient(s.config())
	// a request that landed after its session had already ended
	client.reconnect <- struct{}{}

	s.Require().NoError(s.connect(client))

	s.Never(func() bool {
		return s.server.Connections() > 1
	}, 200*time.Millisecond, tick, "a request aimed at an earlier session should not drop the new one")
	s.Equal(domain.StateConnected, client.State())
	s.True(client.Reconnect(), "the new session should still honor its own requests")
}

func (s *StreamClientTestSuite) TestServerDropReconnects() {
	client := s.newClient(s.config())
	s.Require().NoError(s.connect(client))

	s.server.DropAll()

	s.Eventually(func() bool {
		return s.server.Connections() == 2 &&
			client.State() == domain.StateConnected &&
			len(client.Table("orderBookL2")) == 6
	}, eventually, tick)

	received := s.server.Received()
	s.Require().Len(received, 2)
	s.Equal(string(received[0]), string(received[1]), "the same topics should be resubscribed")
}

func (s *StreamClientTestSuite) TestRuntimeSubscribe() {
	client := s.newClient(s.config())
	s.Require().NoError(s.connect(client))

	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()

	subs, err := client.Subscribe(ctx, "trade")
	s.Require().NoError(err)
	s.Require().Len(subs, 1)
	s.Equal(domain.Topic{Table: "trade", Filter: "XBTUSD"}, subs[0].Topic)

	status, err := subs[0].Wait(ctx)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionAcknowledged, status)
	s.Eventually(func() bool { return len(client.Tables()) == 3 }, eventually, tick)

	s.Require().NoError(client.Unsubscribe(ctx, "trade"))
	s.Eventually(func() bool {
		received := s.server.Received()
		return len(received) == 3 && string(received[2]) == `{"op":"unsubscribe","args":["trade:XBTUSD"]}`
	}, eventually, tick)
	s.Len(client.Subscriptions(), 2)
}

func (s *StreamClientTestSuite) TestDialFailureIsRetried() {
	ctrl := gomock.NewController(s.T())
	transport := mocks.NewMockTransport(ctrl)
	wsTransport := NewWebsocketTransport()

	cfg := s.config()
	client := s.newClient(cfg, WithTransport(transport))

	gomock.InOrder(
		transport.EXPECT().Dial(gomock.Any(), client.URL(), domain.KeepAlive{}).
			Return(nil, errors.New("connection refused")).Times(2),
		transport.EXPECT().Dial(gomock.Any(), client.URL(), domain.KeepAlive{}).
			DoAndReturn(wsTransport.Dial),
	)

	s.Require().NoError(s.connect(client))
	s.Equal(domain.StateConnected, client.State())
	s.Len(client.Table("orderBookL2"), 6)
}

func (s *StreamClientTestSuite) TestHeartbeatKeepAlive() {
	ctrl := gomock.NewController(s.T())
	transport := mocks.NewMockTransport(ctrl)

	cfg := s.config()
	cfg.Heartbeat.Enabled = true
	cfg.Heartbeat.PingInterval = 25 * time.Second
	cfg.Heartbeat.PingTimeout = 10 * time.Second
	client := s.newClient(cfg, WithTransport(transport))

	s.Equal("ws"+s.server.server.URL[len("http"):]+"/realtime?heartbeat=true", client.URL())

	dialed := make(chan domain.KeepAlive, 1)
	transport.EXPECT().Dial(gomock.Any(), client.URL(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, keepAlive domain.KeepAlive) (domain.Conn, error) {
			select {
			case dialed <- keepAlive:
			default:
			}
			return nil, errors.New("connection refused")
		}).AnyTimes()

	go func() { _ = s.connect(client) }()

	select {
	case keepAlive := <-dialed:
		s.Equal(domain.KeepAlive{PingInterval: 25 * time.Second, PingTimeout: 10 * time.Second}, keepAlive)
	case <-time.After(eventually):
		s.Fail("transport was never dialed")
	}
	s.Require().NoError(client.Close())
}

func TestNewStreamClient_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Symbols = []string{"XBTUSD"}
	cfg.Endpoint = "not a url"

	_, err := NewStreamClient(cfg, "XBTUSD")

	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}
