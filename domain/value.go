package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindRecord
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindRecord:
		return "record"
	case KindList:
		return "list"
	}

	return "unknown"
}

// Value is a single field value of a Record. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  decimal.Decimal
	b    bool
	rec  *Record
	list []Value
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }

func Int(i int64) Value { return Number(decimal.NewFromInt(i)) }

func Float(f float64) Value { return Number(decimal.NewFromFloat(f)) }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Nested(r *Record) Value {
	if r == nil {
		return Null()
	}
	return Value{kind: KindRecord, rec: r}
}

func List(items ...Value) Value { return Value{kind: KindList, list: items} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsDecimal() (decimal.Decimal, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num.InexactFloat64(), true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber || !v.num.IsInteger() {
		return 0, false
	}
	return v.num.IntPart(), true
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsRecord() (*Record, bool) {
	return v.rec, v.kind == KindRecord
}

func (v Value) AsList() ([]Value, bool) {
	return v.list, v.kind == KindList
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num.Equal(other.num)
	case KindBool:
		return v.b == other.b
	case KindRecord:
		return v.rec.Equal(other.rec)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	}

	return false
}

func (v Value) clone() Value {
	switch v.kind {
	case KindRecord:
		return Nested(v.rec.Clone())
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.clone()
		}
		return List(items...)
	}

	return v
}

// Interface converts the value to plain Go types: nil, string, float64, bool,
// map[string]any and []any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.InexactFloat64()
	case KindBool:
		return v.b
	case KindRecord:
		return v.rec.Interface()
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Interface()
		}
		return items
	}

	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindRecord:
		return v.rec.String()
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	}

	return "null"
}

// keyText renders the value for the key-tuple index. The kind prefix keeps the
// string "1" and the number 1 apart.
func (v Value) keyText() string {
	switch v.kind {
	case KindString:
		return "s" + v.str
	case KindNumber:
		return "n" + v.num.String()
	case KindBool:
		return "b" + v.String()
	}

	b, _ := v.MarshalJSON()
	return v.kind.String()[:1] + string(b)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindRecord:
		return v.rec.MarshalJSON()
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}

	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}

	switch data[0] {
	case 'n':
		*v = Null()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '{':
		rec := NewRecord()
		if err := rec.UnmarshalJSON(data); err != nil {
			return err
		}
		*v = Nested(rec)
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		if items == nil {
			items = []Value{}
		}
		*v = List(items...)
	default:
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", data, err)
		}
		*v = Number(d)
	}

	return nil
}
