package bitmex

import (
	"errors"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/TradeNexus/bitmex-websocket/helpers"
	promclient "github.com/TradeNexus/bitmex-websocket/infrastructure/prometheus"
	"go.uber.org/zap"
)

// DispatchHooks connect the dispatcher to the session that owns it. Any hook may be nil.
type DispatchHooks struct {
	// OnAuth receives nil when the server accepted the credentials.
	OnAuth func(err error)
	// OnError receives subscription failures and unsolicited server errors.
	OnError func(err error)
	// OnFrame runs after every frame has been applied.
	OnFrame func(msg Message)
}

// Dispatcher applies decoded frames to the table store and the subscription tracker.
// It is the only writer of both while a session runs.
type Dispatcher struct {
	store   *domain.TableStore
	tracker *domain.SubscriptionTracker
	logger  *zap.Logger
	metrics *promclient.StreamMetrics
	hooks   DispatchHooks
}

func NewDispatcher(
	store *domain.TableStore,
	tracker *domain.SubscriptionTracker,
	logger *zap.Logger,
	metrics *promclient.StreamMetrics,
	hooks DispatchHooks,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:   store,
		tracker: tracker,
		logger:  logger.Named("dispatcher"),
		metrics: metrics,
		hooks:   hooks,
	}
}

// Run consumes frames in arrival order until the channel is closed.
func (d *Dispatcher) Run(frames <-chan Message) {
	for msg := range frames {
		d.Dispatch(msg)
	}
}

func (d *Dispatcher) Dispatch(msg Message) {
	d.metrics.IncFrame(msg.Kind.String())

	switch msg.Kind {
	case KindSubscriptionAck:
		d.onSubscriptionAck(msg.SubscriptionAck)
	case KindError:
		d.onError(msg.Error)
	case KindTableAction:
		d.onTableAction(msg.TableAction)
	case KindAuthAck:
		d.onAuthAck(msg.AuthAck)
	default:
		d.logger.Debug("dropping unrecognized frame", zap.String("frame", helpers.Preview(msg.Raw, 256)))
	}

	if d.hooks.OnFrame != nil {
		d.hooks.OnFrame(msg)
	}
}

func (d *Dispatcher) onSubscriptionAck(frame *SubscriptionAckFrame) {
	ack, err := frame.Ack()
	if err != nil {
		d.logger.Warn("ack with invalid topic", zap.String("topic", frame.TopicString()), zap.Error(err))
		return
	}

	if ack.Op == OpUnsubscribe {
		d.logger.Info("unsubscribed", zap.Stringer("topic", ack.Topic))
		return
	}

	sub, ok := d.tracker.Resolve(ack)
	if !ok {
		d.logger.Debug("ack without a pending subscription", zap.Stringer("topic", ack.Topic))
		return
	}

	if sub.Status() == domain.SubscriptionFailed {
		reason := sub.FailureReason().TakeOr("")
		d.logger.Warn("subscription rejected", zap.Stringer("topic", ack.Topic), zap.String("reason", reason))
		d.metrics.IncSubscriptionError()
		d.emitError(domain.SubscriptionError(reason))
		return
	}

	d.logger.Info("subscribed", zap.Stringer("topic", ack.Topic), zap.Stringer("id", sub.ID))
}

func (d *Dispatcher) onError(frame *ErrorFrame) {
	switch frame.RequestOp() {
	case OpAuthKeyExpires:
		d.logger.Warn("authentication rejected", zap.Int("status", frame.Status), zap.String("error", frame.Error))
		if d.hooks.OnAuth != nil {
			d.hooks.OnAuth(domain.New(domain.ErrCodeAuthentication, frame.Error))
		}
	case OpSubscribe, OpUnsubscribe:
		failed := d.tracker.ResolveRequestError(frame.Request.StringArgs(), frame.Error)
		topics := make([]string, len(failed))
		for i, sub := range failed {
			topics[i] = sub.Topic.String()
		}
		d.logger.Warn("subscription error",
			zap.Int("status", frame.Status),
			zap.String("error", frame.Error),
			zap.Strings("topics", topics),
		)
		d.metrics.IncSubscriptionError()
		d.emitError(domain.SubscriptionError(frame.Error))
	default:
		d.logger.Warn("server error",
			zap.Int("status", frame.Status),
			zap.String("error", frame.Error),
			zap.String("request", helpers.ToJsonString(frame.Request)),
		)
		d.emitError(domain.Newf(domain.ErrCodeUnknown, "server error %d: %s", frame.Status, frame.Error))
	}
}

func (d *Dispatcher) onTableAction(frame *TableActionFrame) {
	action, err := domain.ParseAction(frame.Action)
	if err != nil {
		d.logger.Warn("dropping table frame", zap.String("table", frame.Table), zap.Error(err))
		return
	}

	if err := d.store.Apply(frame.Table, action, frame.Data); err != nil {
		level := d.logger.Warn
		if errors.Is(err, domain.ErrTableNotFound) {
			level = d.logger.Debug
		}
		level("table action not fully applied",
			zap.String("table", frame.Table),
			zap.String("action", frame.Action),
			zap.Error(err),
		)
	}

	if action == domain.ActionPartial {
		d.logger.Info("table loaded", zap.String("table", frame.Table), zap.Int("rows", d.store.Len(frame.Table)))
	}
	d.metrics.SetTableRows(frame.Table, d.store.Len(frame.Table))
}

func (d *Dispatcher) onAuthAck(frame *AuthAckFrame) {
	var err error
	if !frame.Success {
		err = domain.New(domain.ErrCodeAuthentication, "credentials rejected")
	}
	if d.hooks.OnAuth != nil {
		d.hooks.OnAuth(err)
	}
}

func (d *Dispatcher) emitError(err error) {
	if d.hooks.OnError != nil {
		d.hooks.OnError(err)
	}
}
