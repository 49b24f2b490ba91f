package domain

import (
	"fmt"
	"strings"
)

// Topic names a subscription: a table and an optional filter, usually a symbol.
type Topic struct {
	Table  string
	Filter string
}

func NewTopic(table string, filter string) (Topic, error) {
	table = strings.TrimSpace(table)
	filter = strings.TrimSpace(filter)
	if table == "" {
		return Topic{}, fmt.Errorf("table must not be empty")
	}
	if strings.Contains(table, ":") {
		return Topic{}, fmt.Errorf("table %q must not contain a separator", table)
	}

	return Topic{Table: table, Filter: filter}, nil
}

// ParseTopic parses "table" or "table:filter".
func ParseTopic(s string) (Topic, error) {
	table, filter, _ := strings.Cut(s, ":")
	return NewTopic(table, filter)
}

// WithDefaultFilter returns the topic filtered by symbol unless it already carries a filter.
func (t Topic) WithDefaultFilter(symbol string) Topic {
	if t.Filter != "" || symbol == "" {
		return t
	}
	t.Filter = symbol
	return t
}

func (t Topic) String() string {
	if t.Filter == "" {
		return t.Table
	}
	return fmt.Sprintf("%s:%s", t.Table, t.Filter)
}

func (t Topic) Equal(other Topic) bool {
	return t.Table == other.Table && t.Filter == other.Filter
}

func TopicStrings(topics []Topic) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = t.String()
	}
	return out
}
