package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/deque"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type Action string

const (
	ActionPartial Action = "partial"
	ActionInsert  Action = "insert"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionPartial, ActionInsert, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", Newf(ErrCodeInvalidAction, "invalid table action %q", s)
}

const keySeparator = "\x1f"

// Table holds the mirrored rows of one server table. Keyed tables index rows by their
// key tuple and keep insertion order; keyless tables are an append-only log, optionally
// bounded, dropping the oldest rows first.
type Table struct {
	name   string
	keys   []string
	rows   *orderedmap.OrderedMap[string, *Record]
	log    *deque.Deque[*Record]
	maxLen int
}

func newTable(name string, keys []string, maxLen int) *Table {
	t := &Table{name: name, keys: keys, maxLen: maxLen}
	if t.Keyed() {
		t.rows = orderedmap.New[string, *Record]()
	} else {
		t.log = deque.New[*Record]()
	}
	return t
}

func (t *Table) Name() string { return t.name }

func (t *Table) Keys() []string { return append([]string(nil), t.keys...) }

func (t *Table) Keyed() bool { return len(t.keys) > 0 }

func (t *Table) Len() int {
	if t.Keyed() {
		return t.rows.Len()
	}
	return t.log.Len()
}

func (t *Table) nilRecord() error {
	return Newf(ErrCodeMissingKey, "table %s: null record", t.name)
}

func (t *Table) keyOf(rec *Record) (string, error) {
	parts := make([]string, len(t.keys))
	for i, k := range t.keys {
		v, ok := rec.Get(k)
		if !ok {
			return "", Newf(ErrCodeMissingKey, "table %s: record is missing key field %q", t.name, k)
		}
		parts[i] = v.keyText()
	}
	return strings.Join(parts, keySeparator), nil
}

func (t *Table) load(data []*Record) error {
	var errs []error
	for _, rec := range data {
		if rec == nil {
			errs = append(errs, t.nilRecord())
			continue
		}
		if err := t.insert(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// insert appends rec, merging into the existing row when the key is already present.
func (t *Table) insert(rec *Record) error {
	if !t.Keyed() {
		t.log.PushBack(rec.Clone())
		for t.maxLen > 0 && t.log.Len() > t.maxLen {
			t.log.PopFront()
		}
		return nil
	}

	key, err := t.keyOf(rec)
	if err != nil {
		return err
	}
	if existing, ok := t.rows.Get(key); ok {
		existing.Merge(rec)
		return nil
	}
	t.rows.Set(key, rec.Clone())
	return nil
}

// update merges rec into the matching row. A missing row is not an error.
func (t *Table) update(rec *Record) (bool, error) {
	if !t.Keyed() {
		return false, Newf(ErrCodeKeylessTable, "table %s has no keys, cannot update", t.name)
	}

	key, err := t.keyOf(rec)
	if err != nil {
		return false, err
	}
	existing, ok := t.rows.Get(key)
	if !ok {
		return false, nil
	}
	existing.Merge(rec)
	return true, nil
}

// remove deletes the matching row. A missing row is not an error.
func (t *Table) remove(rec *Record) (bool, error) {
	if !t.Keyed() {
		return false, Newf(ErrCodeKeylessTable, "table %s has no keys, cannot delete", t.name)
	}

	key, err := t.keyOf(rec)
	if err != nil {
		return false, err
	}
	_, ok := t.rows.Delete(key)
	return ok, nil
}

func (t *Table) find(probe *Record) (*Record, bool) {
	if !t.Keyed() || probe == nil {
		return nil, false
	}
	key, err := t.keyOf(probe)
	if err != nil {
		return nil, false
	}
	return t.rows.Get(key)
}

func (t *Table) snapshot() []*Record {
	out := make([]*Record, 0, t.Len())
	if t.Keyed() {
		for pair := t.rows.Oldest(); pair != nil; pair = pair.Next() {
			out = append(out, pair.Value.Clone())
		}
		return out
	}

	for i := 0; i < t.log.Len(); i++ {
		out = append(out, t.log.At(i).Clone())
	}
	return out
}

func (t *Table) String() string {
	return fmt.Sprintf("%s(keys=%v rows=%d)", t.name, t.keys, t.Len())
}
