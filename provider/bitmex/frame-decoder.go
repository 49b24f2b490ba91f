package bitmex

import (
	"bytes"
	"encoding/json"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/TradeNexus/bitmex-websocket/helpers"
)

type MessageKind int

const (
	KindUnrecognized MessageKind = iota
	KindSubscriptionAck
	KindError
	KindTableAction
	KindAuthAck
)

func (k MessageKind) String() string {
	switch k {
	case KindSubscriptionAck:
		return "subscription_ack"
	case KindError:
		return "error"
	case KindTableAction:
		return "table_action"
	case KindAuthAck:
		return "auth_ack"
	}
	return "unrecognized"
}

// Message is one classified inbound frame. Exactly one of the frame pointers matching
// Kind is set; Raw always holds the original bytes.
type Message struct {
	Kind            MessageKind
	SubscriptionAck *SubscriptionAckFrame
	Error           *ErrorFrame
	TableAction     *TableActionFrame
	AuthAck         *AuthAckFrame
	Raw             []byte
}

// DecodeFrame parses and classifies a text frame. Classification follows field presence:
// subscribe/unsubscribe, then status+error, then table+action, then success echoing an auth
// request. Anything else is unrecognized. Invalid JSON, non-object frames and recognized
// frames with mistyped fields yield ErrMalformedFrame.
func DecodeFrame(raw []byte) (Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, domain.Newf(domain.ErrCodeMalformedFrame, "frame is not a JSON object: %s", helpers.Preview(raw, 64))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Message{}, domain.Wrap(domain.ErrCodeMalformedFrame, "invalid JSON frame", err)
	}

	msg := Message{Raw: raw}
	has := func(name string) bool {
		_, ok := fields[name]
		return ok
	}

	switch {
	case has("subscribe") || has("unsubscribe"):
		msg.Kind = KindSubscriptionAck
		msg.SubscriptionAck = &SubscriptionAckFrame{}
		return msg, decodeInto(trimmed, msg.SubscriptionAck, msg.Kind)
	case has("status") && has("error"):
		msg.Kind = KindError
		msg.Error = &ErrorFrame{}
		return msg, decodeInto(trimmed, msg.Error, msg.Kind)
	case has("table") && has("action"):
		msg.Kind = KindTableAction
		msg.TableAction = &TableActionFrame{}
		if err := decodeInto(trimmed, msg.TableAction, msg.Kind); err != nil {
			return msg, err
		}
		for i, rec := range msg.TableAction.Data {
			if rec == nil {
				return msg, domain.Newf(domain.ErrCodeMalformedFrame, "%s frame: data[%d] is not an object", msg.TableAction.Table, i)
			}
		}
		return msg, nil
	case has("success") && has("request"):
		var probe struct {
			Request *Request `json:"request"`
		}
		if err := json.Unmarshal(trimmed, &probe); err == nil && probe.Request != nil && probe.Request.Op == OpAuthKeyExpires {
			msg.Kind = KindAuthAck
			msg.AuthAck = &AuthAckFrame{}
			return msg, decodeInto(trimmed, msg.AuthAck, msg.Kind)
		}
	}

	msg.Kind = KindUnrecognized
	return msg, nil
}

func decodeInto(raw []byte, v any, kind MessageKind) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.Wrapf(domain.ErrCodeMalformedFrame, err, "invalid %s frame", kind)
	}
	return nil
}
