package domain

import (
	"bytes"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is one row of a table: an ordered mapping from field name to Value.
type Record struct {
	fields *orderedmap.OrderedMap[string, Value]
}

func NewRecord() *Record {
	return &Record{fields: orderedmap.New[string, Value]()}
}

// With sets a field and returns the record, for building records inline.
func (r *Record) With(field string, v Value) *Record {
	r.Set(field, v)
	return r
}

func (r *Record) Set(field string, v Value) {
	r.fields.Set(field, v)
}

func (r *Record) Get(field string) (Value, bool) {
	return r.fields.Get(field)
}

func (r *Record) Delete(field string) {
	r.fields.Delete(field)
}

func (r *Record) Len() int {
	return r.fields.Len()
}

func (r *Record) Keys() []string {
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Range calls fn for every field in order until fn returns false.
func (r *Record) Range(fn func(field string, v Value) bool) {
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Merge copies every field present in other into r. Fields absent from other are left untouched,
// new fields are appended after the existing ones.
func (r *Record) Merge(other *Record) {
	other.Range(func(field string, v Value) bool {
		r.fields.Set(field, v.clone())
		return true
	})
}

func (r *Record) Clone() *Record {
	c := &Record{fields: orderedmap.New[string, Value](r.fields.Len())}
	r.Range(func(field string, v Value) bool {
		c.fields.Set(field, v.clone())
		return true
	})
	return c
}

// Equal compares field sets and values, ignoring field order.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Len() != other.Len() {
		return false
	}

	equal := true
	r.Range(func(field string, v Value) bool {
		ov, ok := other.Get(field)
		equal = ok && v.Equal(ov)
		return equal
	})
	return equal
}

func (r *Record) Interface() map[string]any {
	out := make(map[string]any, r.Len())
	r.Range(func(field string, v Value) bool {
		out[field] = v.Interface()
		return true
	})
	return out
}

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	r.Range(func(field string, v Value) bool {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		fmt.Fprintf(&sb, "%s:%s", field, v.String())
		return true
	})
	sb.WriteByte('}')
	return sb.String()
}

func (r *Record) MarshalJSON() ([]byte, error) {
	if r.Len() == 0 {
		return []byte("{}"), nil
	}
	return r.fields.MarshalJSON()
}

func (r *Record) UnmarshalJSON(data []byte) error {
	if r.fields == nil {
		r.fields = orderedmap.New[string, Value]()
	}

	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("record must be a JSON object, got %q", preview(data))
	}

	return r.fields.UnmarshalJSON(data)
}

func preview(data []byte) string {
	const max = 32
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
