package domain

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
)

type SubscriptionStatus string

const (
	SubscriptionPending      SubscriptionStatus = "pending"
	SubscriptionAcknowledged SubscriptionStatus = "acknowledged"
	SubscriptionFailed       SubscriptionStatus = "failed"
)

// Subscription is the caller's handle on a requested topic. The tracker resolves it when
// the server acknowledges or rejects the request.
type Subscription struct {
	ID    uuid.UUID
	Topic Topic

	mu       sync.Mutex
	status   SubscriptionStatus
	reason   string
	resolved chan struct{}
}

func newSubscription(topic Topic) *Subscription {
	return &Subscription{
		ID:       uuid.New(),
		Topic:    topic,
		status:   SubscriptionPending,
		resolved: make(chan struct{}),
	}
}

func (s *Subscription) Status() SubscriptionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// FailureReason holds the server's message when the subscription failed.
func (s *Subscription) FailureReason() optional.Option[string] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != SubscriptionFailed {
		return optional.None[string]()
	}
	return optional.Some(s.reason)
}

// Wait blocks until the subscription leaves the pending state or ctx is done.
func (s *Subscription) Wait(ctx context.Context) (SubscriptionStatus, error) {
	s.mu.Lock()
	resolved := s.resolved
	s.mu.Unlock()

	select {
	case <-resolved:
		return s.Status(), nil
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}

func (s *Subscription) resolve(status SubscriptionStatus, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != SubscriptionPending {
		return false
	}
	s.status = status
	s.reason = reason
	close(s.resolved)
	return true
}

func (s *Subscription) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == SubscriptionPending {
		return
	}
	s.status = SubscriptionPending
	s.reason = ""
	s.resolved = make(chan struct{})
}

// SubscriptionAck is a server acknowledgement of a subscribe or unsubscribe request.
type SubscriptionAck struct {
	Op      string
	Topic   Topic
	Success bool
	// Args echoes the request the ack answers.
	Args []string
}

// SubscriptionTracker records requested topics and matches server acknowledgements to them.
type SubscriptionTracker struct {
	mu      sync.Mutex
	entries map[Topic]*Subscription
	order   []Topic
}

func NewSubscriptionTracker() *SubscriptionTracker {
	return &SubscriptionTracker{
		entries: make(map[Topic]*Subscription),
	}
}

// Request registers topic as pending and returns its handle. Requesting a tracked topic
// again returns the existing handle, put back to pending if it had failed.
func (t *SubscriptionTracker) Request(topic Topic) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sub, ok := t.entries[topic]; ok {
		if sub.Status() == SubscriptionFailed {
			sub.reset()
		}
		return sub
	}

	sub := newSubscription(topic)
	t.entries[topic] = sub
	t.order = append(t.order, topic)
	return sub
}

// Resolve settles the pending entry named by ack. It reports false when no pending entry
// matches, or when the ack's echoed request does not name the topic.
func (t *SubscriptionTracker) Resolve(ack SubscriptionAck) (*Subscription, bool) {
	if len(ack.Args) > 0 && !containsTopic(ack.Args, ack.Topic) {
		return nil, false
	}

	t.mu.Lock()
	sub, ok := t.entries[ack.Topic]
	t.mu.Unlock()
	if !ok {
		return nil, false
	}

	if ack.Success {
		return sub, sub.resolve(SubscriptionAcknowledged, "")
	}
	return sub, sub.resolve(SubscriptionFailed, "subscription rejected by server")
}

// ResolveError marks the pending entry for topic as failed with the server's message.
func (t *SubscriptionTracker) ResolveError(topic Topic, message string) (*Subscription, bool) {
	t.mu.Lock()
	sub, ok := t.entries[topic]
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	return sub, sub.resolve(SubscriptionFailed, message)
}

// ResolveRequestError fails every still pending topic named in a rejected request's args.
func (t *SubscriptionTracker) ResolveRequestError(args []string, message string) []*Subscription {
	var failed []*Subscription
	for _, arg := range args {
		topic, err := ParseTopic(arg)
		if err != nil {
			continue
		}
		if sub, ok := t.ResolveError(topic, message); ok {
			failed = append(failed, sub)
		}
	}
	return failed
}

func (t *SubscriptionTracker) Remove(topic Topic) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[topic]; !ok {
		return
	}
	delete(t.entries, topic)
	for i, tp := range t.order {
		if tp == topic {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Reset puts every tracked topic back to pending, as after a reconnect.
func (t *SubscriptionTracker) Reset() {
	for _, sub := range t.All() {
		sub.reset()
	}
}

func (t *SubscriptionTracker) Get(topic Topic) (*Subscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.entries[topic]
	return sub, ok
}

// Topics returns the tracked topics in request order.
func (t *SubscriptionTracker) Topics() []Topic {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Topic(nil), t.order...)
}

func (t *SubscriptionTracker) All() []*Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Subscription, 0, len(t.order))
	for _, topic := range t.order {
		out = append(out, t.entries[topic])
	}
	return out
}

// Settled reports whether every tracked topic has either failed or has its table loaded.
func (t *SubscriptionTracker) Settled(hasTable func(table string) bool) bool {
	for _, sub := range t.All() {
		if sub.Status() == SubscriptionFailed {
			continue
		}
		if !hasTable(sub.Topic.Table) {
			return false
		}
	}
	return true
}

func containsTopic(args []string, topic Topic) bool {
	for _, arg := range args {
		parsed, err := ParseTopic(arg)
		if err == nil && parsed.Equal(topic) {
			return true
		}
	}
	return false
}
