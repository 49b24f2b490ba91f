package domain

import (
	"errors"
	"sort"
	"sync"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"
)

// TableStore mirrors the server's tables in memory. Writes come from a single
// dispatcher goroutine, reads may come from any goroutine and receive copies.
type TableStore struct {
	mu     sync.RWMutex
	tables map[string]*Table

	keys          map[string][]string
	maxKeylessLen int
	logger        *zap.Logger
}

type TableStoreOption func(*TableStore)

// WithMaxKeylessRows bounds append-only tables. Zero keeps every row.
func WithMaxKeylessRows(n int) TableStoreOption {
	return func(s *TableStore) { s.maxKeylessLen = n }
}

func WithStoreLogger(l *zap.Logger) TableStoreOption {
	return func(s *TableStore) { s.logger = l }
}

// NewTableStore creates an empty store. keys maps a table name to the fields forming its
// primary key; tables missing from the map are keyless.
func NewTableStore(keys map[string][]string, opts ...TableStoreOption) *TableStore {
	s := &TableStore{
		tables: make(map[string]*Table),
		keys:   make(map[string][]string, len(keys)),
		logger: zap.NewNop(),
	}
	for table, k := range keys {
		s.keys[table] = append([]string(nil), k...)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply applies one table action. Per-record failures are joined into the returned error
// while the remaining records of the batch are still applied.
func (s *TableStore) Apply(table string, action Action, data []*Record) error {
	switch action {
	case ActionPartial:
		return s.partial(table, data)
	case ActionInsert, ActionUpdate, ActionDelete:
	default:
		return Newf(ErrCodeInvalidAction, "invalid table action %q", action)
	}

	if !s.Has(table) {
		return Newf(ErrCodeTableNotFound, "%s on table %s before its partial", action, table)
	}

	var errs []error
	for _, rec := range data {
		if err := s.applyOne(table, action, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *TableStore) partial(name string, data []*Record) error {
	t := newTable(name, s.keys[name], s.maxKeylessLen)
	err := t.load(data)

	s.mu.Lock()
	s.tables[name] = t
	s.mu.Unlock()

	return err
}

func (s *TableStore) applyOne(name string, action Action, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return Newf(ErrCodeTableNotFound, "table %s was cleared", name)
	}
	if rec == nil {
		return t.nilRecord()
	}

	switch action {
	case ActionInsert:
		return t.insert(rec)
	case ActionUpdate:
		found, err := t.update(rec)
		if err == nil && !found {
			s.logger.Debug("update for unknown row ignored", zap.String("table", name), zap.Stringer("record", rec))
		}
		return err
	case ActionDelete:
		found, err := t.remove(rec)
		if err == nil && !found {
			s.logger.Debug("delete for unknown row ignored", zap.String("table", name), zap.Stringer("record", rec))
		}
		return err
	}
	return nil
}

// Get returns a copy of the table's rows in order. Unknown tables yield an empty slice.
func (s *TableStore) Get(table string) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return []*Record{}
	}
	return t.snapshot()
}

// Find looks up a row of a keyed table by the key fields present in probe.
func (s *TableStore) Find(table string, probe *Record) optional.Option[*Record] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return optional.None[*Record]()
	}
	rec, ok := t.find(probe)
	if !ok {
		return optional.None[*Record]()
	}
	return optional.Some(rec.Clone())
}

// Has reports whether the table has received its partial.
func (s *TableStore) Has(table string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tables[table]
	return ok
}

func (s *TableStore) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return 0
	}
	return t.Len()
}

// Keys returns the key schema configured for table.
func (s *TableStore) Keys(table string) []string {
	return append([]string(nil), s.keys[table]...)
}

func (s *TableStore) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear drops every table.
func (s *TableStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = make(map[string]*Table)
}
