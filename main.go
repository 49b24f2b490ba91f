package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TradeNexus/bitmex-websocket/config"
	"github.com/TradeNexus/bitmex-websocket/domain"
	promclient "github.com/TradeNexus/bitmex-websocket/infrastructure/prometheus"
	"github.com/TradeNexus/bitmex-websocket/logger"
	"github.com/TradeNexus/bitmex-websocket/provider"
	"github.com/TradeNexus/bitmex-websocket/rpc"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	applyFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	appLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer appLogger.Sync()
	appLogger.Debug("configuration loaded", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := promclient.NewCollector()
	manager, err := provider.NewConnectionManager(cfg, appLogger.Logger, collector)
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.Init(ctx); err != nil {
		if ctx.Err() != nil || !anyConnected(manager) {
			return fmt.Errorf("failed to start streams: %w", err)
		}
		appLogger.Error("some streams failed to start", zap.Error(err))
	}

	server := rpc.NewServer(manager, appLogger.Logger)
	errCh := make(chan error, 2)

	if addr := cfg.Server.RPCAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}
		grpcServer := grpc.NewServer(grpc.UnaryInterceptor(rpc.LoggingInterceptor(appLogger.Named("rpc"))))
		server.Register(grpcServer)

		go func() {
			<-ctx.Done()
			grpcServer.GracefulStop()
		}()
		go func() {
			appLogger.Info("grpc server listening", zap.String("addr", addr))
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if addr := cfg.Server.MetricsAddr; addr != "" {
		gateway := rpc.NewHTTPGateway(server, collector.Handler())
		go func() {
			if err := promclient.StartPromClientServer(ctx, addr, gateway, appLogger.Logger); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		appLogger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func anyConnected(manager *provider.ConnectionManager) bool {
	for _, symbol := range manager.Symbols() {
		stream, err := manager.Stream(symbol)
		if err == nil && stream.State() == domain.StateConnected {
			return true
		}
	}
	return false
}

func applyFlags(cfg *config.Config, cmd *cli.Command) {
	if cmd.Bool("testnet") {
		cfg.Endpoint = config.TestnetEndpoint
	}
	if cmd.IsSet("endpoint") {
		cfg.Endpoint = cmd.String("endpoint")
	}
	if cmd.IsSet("symbol") {
		cfg.Symbols = cmd.StringSlice("symbol")
	}
	if cmd.IsSet("table") {
		cfg.Tables = cmd.StringSlice("table")
	}
	if cmd.IsSet("heartbeat") {
		cfg.Heartbeat.Enabled = cmd.Bool("heartbeat")
	}
	if cmd.IsSet("metrics-addr") {
		cfg.Server.MetricsAddr = cmd.String("metrics-addr")
	}
	if cmd.IsSet("rpc-addr") {
		cfg.Server.RPCAddr = cmd.String("rpc-addr")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
}

func schemaAction(ctx context.Context, cmd *cli.Command) error {
	out, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, string(out))
	return err
}

func inspectAction(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	conn, err := grpc.DialContext(ctx, cmd.String("rpc-addr"),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cmd.String("rpc-addr"), err)
	}
	defer conn.Close()

	client := rpc.NewTableServiceClient(conn)
	symbol := cmd.String("symbol")

	state, err := client.GetState(ctx, symbol)
	if err != nil {
		return err
	}
	tables, err := client.ListTables(ctx, symbol)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "%s: %s, tables %v\n", symbol, state, tables)

	book, err := client.GetOrderBook(ctx, symbol, int(cmd.Int("depth")))
	if err != nil {
		// no L2 table subscribed
		return nil
	}
	out, err := json.MarshalIndent(book.AsMap(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, string(out))
	return err
}

func main() {
	cmd := &cli.Command{
		Name:  "realtime",
		Usage: "Mirror BitMEX realtime tables and serve them over gRPC and HTTP",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect to the realtime feed and serve the mirrored tables",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the YAML configuration",
						Sources: cli.EnvVars("REALTIME_CONFIG"),
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "REST base URL, e.g. " + config.DefaultEndpoint,
					},
					&cli.BoolFlag{
						Name:  "testnet",
						Usage: "Use " + config.TestnetEndpoint,
					},
					&cli.StringSliceFlag{
						Name:    "symbol",
						Aliases: []string{"s"},
						Usage:   "Symbol to mirror, one connection each (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:    "table",
						Aliases: []string{"t"},
						Usage:   "Table to subscribe, optionally table:filter (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "heartbeat",
						Usage: "Ask the server for heartbeats and ping the connection",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "HTTP listen address for /metrics and the table gateway",
					},
					&cli.StringFlag{
						Name:  "rpc-addr",
						Usage: "gRPC listen address",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "debug, info, warn or error",
					},
				},
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the configuration file",
				Action: schemaAction,
			},
			{
				Name:  "inspect",
				Usage: "Query a running instance over gRPC",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "rpc-addr",
						Value: "localhost:50051",
						Usage: "gRPC address of the running instance",
					},
					&cli.StringFlag{
						Name:     "symbol",
						Aliases:  []string{"s"},
						Required: true,
					},
					&cli.IntFlag{
						Name:  "depth",
						Value: 10,
						Usage: "Order book levels per side",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Value: 5 * time.Second,
					},
				},
				Action: inspectAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Fatal(err)
		}
	}
}
