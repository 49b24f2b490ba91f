package bitmex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/TradeNexus/bitmex-websocket/domain"
)

const (
	OpSubscribe      = "subscribe"
	OpUnsubscribe    = "unsubscribe"
	OpAuthKeyExpires = "authKeyExpires"
)

// Command is an outbound request frame.
type Command struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

// Request is the echo of a command inside acks and error frames. Args stay raw because
// auth requests mix strings and numbers.
type Request struct {
	Op   string            `json:"op"`
	Args []json.RawMessage `json:"args"`
}

// StringArgs returns the args that are JSON strings.
func (r *Request) StringArgs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Args))
	for _, raw := range r.Args {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// flexBool accepts true, "true" and their false counterparts.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	*b = flexBool(v)
	return nil
}

type SubscriptionAckFrame struct {
	Success     flexBool `json:"success"`
	Subscribe   string   `json:"subscribe"`
	Unsubscribe string   `json:"unsubscribe"`
	Request     *Request `json:"request"`
}

func (f *SubscriptionAckFrame) Op() string {
	if f.Unsubscribe != "" && f.Subscribe == "" {
		return OpUnsubscribe
	}
	return OpSubscribe
}

func (f *SubscriptionAckFrame) TopicString() string {
	if f.Op() == OpUnsubscribe {
		return f.Unsubscribe
	}
	return f.Subscribe
}

// Ack converts the frame for the subscription tracker.
func (f *SubscriptionAckFrame) Ack() (domain.SubscriptionAck, error) {
	topic, err := domain.ParseTopic(f.TopicString())
	if err != nil {
		return domain.SubscriptionAck{}, err
	}
	return domain.SubscriptionAck{
		Op:      f.Op(),
		Topic:   topic,
		Success: bool(f.Success),
		Args:    f.Request.StringArgs(),
	}, nil
}

type ErrorFrame struct {
	Status  int             `json:"status"`
	Error   string          `json:"error"`
	Meta    json.RawMessage `json:"meta,omitempty"`
	Request *Request        `json:"request,omitempty"`
}

func (f *ErrorFrame) RequestOp() string {
	if f.Request == nil {
		return ""
	}
	return f.Request.Op
}

type TableActionFrame struct {
	Table  string           `json:"table"`
	Action string           `json:"action"`
	Data   []*domain.Record `json:"data"`
	Keys   []string         `json:"keys,omitempty"`
	Filter json.RawMessage  `json:"filter,omitempty"`
}

type AuthAckFrame struct {
	Success flexBool `json:"success"`
	Request *Request `json:"request"`
}

// Info is the greeting the server sends after the handshake.
type Info struct {
	Info      string `json:"info"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func SubscribeFrame(topics []domain.Topic) ([]byte, error) {
	return topicCommand(OpSubscribe, topics)
}

func UnsubscribeFrame(topics []domain.Topic) ([]byte, error) {
	return topicCommand(OpUnsubscribe, topics)
}

func topicCommand(op string, topics []domain.Topic) ([]byte, error) {
	args := make([]any, len(topics))
	for i, t := range topics {
		args[i] = t.String()
	}
	return json.Marshal(Command{Op: op, Args: args})
}

func AuthFrame(apiKey string, expires int64, signature string) ([]byte, error) {
	return json.Marshal(Command{Op: OpAuthKeyExpires, Args: []any{apiKey, expires, signature}})
}
