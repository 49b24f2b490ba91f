package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/TradeNexus/bitmex-websocket/config"
	"github.com/TradeNexus/bitmex-websocket/domain"
	promclient "github.com/TradeNexus/bitmex-websocket/infrastructure/prometheus"
	"github.com/TradeNexus/bitmex-websocket/provider/bitmex"
	"go.uber.org/zap"
)

// ConnectionManager owns one stream client per configured symbol.
type ConnectionManager struct {
	logger  *zap.Logger
	streams map[string]*bitmex.StreamClient
}

func NewConnectionManager(cfg *config.Config, logger *zap.Logger, collector *promclient.Collector, opts ...bitmex.Option) (*ConnectionManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cm := &ConnectionManager{
		logger:  logger.Named("connection-manager"),
		streams: make(map[string]*bitmex.StreamClient, len(cfg.Symbols)),
	}

	for _, symbol := range cfg.Symbols {
		if _, ok := cm.streams[symbol]; ok {
			continue
		}

		symbol := symbol
		streamOpts := []bitmex.Option{
			bitmex.WithLogger(logger),
			bitmex.WithMetrics(collector.ForStream(symbol)),
			bitmex.WithErrorHandler(func(err error) {
				cm.logger.Warn("stream error", zap.String("symbol", symbol), zap.Error(err))
			}),
		}

		client, err := bitmex.NewStreamClient(cfg, symbol, append(streamOpts, opts...)...)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", symbol, err)
		}
		cm.streams[symbol] = client
	}

	return cm, nil
}

// Init connects every stream in parallel and waits until all of them are ready or failed.
func (cm *ConnectionManager) Init(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for symbol, client := range cm.streams {
		wg.Add(1)
		go func(symbol string, client *bitmex.StreamClient) {
			defer wg.Done()

			if err := client.Connect(ctx); err != nil {
				cm.logger.Error("failed to connect stream", zap.String("symbol", symbol), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("stream %s: %w", symbol, err))
				mu.Unlock()
				return
			}
			cm.logger.Info("stream ready", zap.String("symbol", symbol), zap.Strings("tables", client.Tables()))
		}(symbol, client)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (cm *ConnectionManager) Stream(symbol string) (domain.TableReader, error) {
	client, err := cm.Client(symbol)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Client returns the full stream client, including its subscription controls.
func (cm *ConnectionManager) Client(symbol string) (*bitmex.StreamClient, error) {
	client, ok := cm.streams[symbol]
	if !ok {
		return nil, domain.Newf(domain.ErrCodeNotFound, "no stream for symbol %s", symbol)
	}
	return client, nil
}

func (cm *ConnectionManager) Symbols() []string {
	symbols := make([]string, 0, len(cm.streams))
	for symbol := range cm.streams {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (cm *ConnectionManager) Close() {
	var wg sync.WaitGroup
	for _, client := range cm.streams {
		wg.Add(1)
		go func(client *bitmex.StreamClient) {
			defer wg.Done()
			_ = client.Close()
		}(client)
	}
	wg.Wait()
}
