package usecase

import (
	"slices"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"go.uber.org/zap"
)

// Order book tables in order of preference.
var orderBookTables = []string{"orderBookL2", "orderBookL2_25"}

type OrderBookSnapshotUseCase struct {
	resolver domain.StreamResolver
	logger   *zap.Logger
}

func NewOrderBookSnapshotUseCase(resolver domain.StreamResolver, logger *zap.Logger) *OrderBookSnapshotUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderBookSnapshotUseCase{
		resolver: resolver,
		logger:   logger.Named("orderbook-snapshot"),
	}
}

// GetOrderBookSnapshot builds a book of at most limit levels per side from the mirrored L2
// table of symbol. While the stream is reconnecting the table is gone and ErrTableNotFound
// is returned.
func (o *OrderBookSnapshotUseCase) GetOrderBookSnapshot(symbol string, limit int) (*domain.OrderBookSnapshot, error) {
	stream, err := o.resolver.Stream(symbol)
	if err != nil {
		return nil, err
	}

	loaded := stream.Tables()
	for _, table := range orderBookTables {
		if !slices.Contains(loaded, table) {
			continue
		}

		snapshot := domain.NewOrderBookSnapshot(symbol, stream.Table(table), limit)
		o.logger.Debug("orderbook snapshot taken",
			zap.String("symbol", symbol),
			zap.String("table", table),
			zap.Int("bids", len(snapshot.Bids)),
			zap.Int("asks", len(snapshot.Asks)))
		return snapshot, nil
	}

	o.logger.Debug("orderbook not loaded", zap.String("symbol", symbol), zap.Stringer("state", stream.State()))
	return nil, domain.Newf(domain.ErrCodeTableNotFound, "no order book loaded for %s (state %s)", symbol, stream.State())
}
