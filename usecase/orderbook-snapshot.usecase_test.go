package usecase

import (
	"testing"

	"github.com/TradeNexus/bitmex-websocket/domain"
	"github.com/TradeNexus/bitmex-websocket/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

func level(id int64, side string, size, price float64) *domain.Record {
	return domain.NewRecord().
		With("symbol", domain.String("XBTUSD")).
		With("id", domain.Int(id)).
		With("side", domain.String(side)).
		With("size", domain.Float(size)).
		With("price", domain.Float(price))
}

func book() []*domain.Record {
	return []*domain.Record{
		level(1, domain.SideSell, 100, 3802),
		level(2, domain.SideSell, 200, 3801),
		level(3, domain.SideBuy, 300, 3799),
		level(4, domain.SideBuy, 400, 3800),
	}
}

func TestGetOrderBookSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockStreamResolver(ctrl)
	stream := mocks.NewMockTableReader(ctrl)

	resolver.EXPECT().Stream("XBTUSD").Return(stream, nil)
	stream.EXPECT().Tables().Return([]string{"instrument", "orderBookL2"})
	stream.EXPECT().Table("orderBookL2").Return(book())

	uc := NewOrderBookSnapshotUseCase(resolver, zaptest.NewLogger(t))
	snapshot, err := uc.GetOrderBookSnapshot("XBTUSD", 1)

	require.NoError(t, err)
	assert.Equal(t, "XBTUSD", snapshot.Symbol)
	require.Len(t, snapshot.Bids, 1)
	require.Len(t, snapshot.Asks, 1)
	assert.True(t, decimal.NewFromInt(3800).Equal(snapshot.Bids[0].Price), "best bid first")
	assert.True(t, decimal.NewFromInt(3801).Equal(snapshot.Asks[0].Price), "best ask first")
}

func TestGetOrderBookSnapshot_FallsBackToTop25(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockStreamResolver(ctrl)
	stream := mocks.NewMockTableReader(ctrl)

	resolver.EXPECT().Stream("XBTUSD").Return(stream, nil)
	stream.EXPECT().Tables().Return([]string{"orderBookL2_25"})
	stream.EXPECT().Table("orderBookL2_25").Return(book())

	snapshot, err := NewOrderBookSnapshotUseCase(resolver, nil).GetOrderBookSnapshot("XBTUSD", 0)

	require.NoError(t, err)
	assert.Len(t, snapshot.Bids, 2)
	assert.Len(t, snapshot.Asks, 2)
}

func TestGetOrderBookSnapshot_NotLoaded(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockStreamResolver(ctrl)
	stream := mocks.NewMockTableReader(ctrl)

	resolver.EXPECT().Stream("XBTUSD").Return(stream, nil)
	stream.EXPECT().Tables().Return(nil)
	stream.EXPECT().State().Return(domain.StateReconnecting).AnyTimes()

	_, err := NewOrderBookSnapshotUseCase(resolver, nil).GetOrderBookSnapshot("XBTUSD", 10)

	assert.ErrorIs(t, err, domain.ErrTableNotFound)
	assert.Contains(t, err.Error(), "reconnecting")
}

func TestGetOrderBookSnapshot_UnknownSymbol(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockStreamResolver(ctrl)
	resolver.EXPECT().Stream("DOGEUSD").Return(nil, domain.ErrStreamNotFound)

	_, err := NewOrderBookSnapshotUseCase(resolver, nil).GetOrderBookSnapshot("DOGEUSD", 10)

	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}
