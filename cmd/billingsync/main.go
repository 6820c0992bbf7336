// Command billingsync receives Stripe webhooks and mirrors customer roles into
// Firebase Auth custom claims and the configured record store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/billingsync/internal/config"
	"github.com/mihaimyh/billingsync/pkg/billingsync"
	zlog "github.com/mihaimyh/billingsync/pkg/billingsync/logger/zerolog"
	prommetrics "github.com/mihaimyh/billingsync/pkg/billingsync/metrics/prometheus"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "billingsync: %v\n", err)
		os.Exit(1)
	}

	zl := zlog.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error().Err(err).Msg("billingsync stopped")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, zl zerolog.Logger) error {
	logger := zlog.NewLogger(zl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := prommetrics.NewMetrics(reg, cfg.MetricsNamespace)

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	receiver, err := billingsync.NewReceiver(billingsync.Config{
		Directory:             b.directory,
		Store:                 b.store,
		Logger:                logger,
		Metrics:               metrics,
		RoleKey:               cfg.RoleClaim,
		ProvisionMissingUsers: cfg.ProvisionMissingUsers,
	})
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}

	srv, err := newServer(cfg, routes{
		receiver: receiver,
		metrics:  metricsHandler(reg),
		health:   healthHandler(b.pingers...),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			billingsync.Field{Key: "addr", Value: cfg.Addr()},
			billingsync.Field{Key: "router", Value: cfg.Router},
			billingsync.Field{Key: "store", Value: cfg.StoreBackend},
			billingsync.Field{Key: "directory", Value: cfg.DirectoryBackend})
		return srv.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", billingsync.Field{Key: "timeout", Value: cfg.ShutdownTimeout})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
