package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "Buy"
	SideSell = "Sell"
)

type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type OrderBookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewOrderBookSnapshot builds a book from level rows of an L2 order book table. Rows of other
// symbols and rows without price or size are skipped. Bids are sorted best (highest) first,
// asks best (lowest) first. limit <= 0 keeps the full depth.
func NewOrderBookSnapshot(symbol string, rows []*Record, limit int) *OrderBookSnapshot {
	snapshot := &OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      []PriceLevel{},
		Asks:      []PriceLevel{},
		Timestamp: time.Now().UTC(),
	}

	for _, row := range rows {
		if s, ok := stringField(row, "symbol"); ok && symbol != "" && s != symbol {
			continue
		}
		level, ok := parsePriceLevel(row)
		if !ok {
			continue
		}

		side, _ := stringField(row, "side")
		switch side {
		case SideBuy:
			snapshot.Bids = append(snapshot.Bids, level)
		case SideSell:
			snapshot.Asks = append(snapshot.Asks, level)
		}
	}

	sort.Slice(snapshot.Asks, func(i, j int) bool {
		return snapshot.Asks[i].Price.LessThan(snapshot.Asks[j].Price)
	})
	sort.Slice(snapshot.Bids, func(i, j int) bool {
		return snapshot.Bids[i].Price.GreaterThan(snapshot.Bids[j].Price)
	})

	snapshot.Bids = limitDepth(snapshot.Bids, limit)
	snapshot.Asks = limitDepth(snapshot.Asks, limit)
	return snapshot
}

func (s *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

func (s *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

func limitDepth(depth []PriceLevel, limit int) []PriceLevel {
	if limit > 0 && len(depth) > limit {
		return depth[:limit]
	}

	return depth
}

func parsePriceLevel(row *Record) (PriceLevel, bool) {
	price, ok := row.Get("price")
	if !ok {
		return PriceLevel{}, false
	}
	size, ok := row.Get("size")
	if !ok {
		return PriceLevel{}, false
	}

	p, ok := price.AsDecimal()
	if !ok {
		return PriceLevel{}, false
	}
	q, ok := size.AsDecimal()
	if !ok || q.IsZero() {
		return PriceLevel{}, false
	}

	return PriceLevel{Price: p, Size: q}, true
}

func stringField(row *Record, name string) (string, bool) {
	v, ok := row.Get(name)
	if !ok {
		return "", false
	}
	return v.AsString()
}
