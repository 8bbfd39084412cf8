// Command server exposes the gap-up analyzer and the bar cache over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"gapup-lab/internal/api"
	"gapup-lab/internal/cache"
	"gapup-lab/internal/config"
	"gapup-lab/internal/logging"
	"gapup-lab/internal/marketdata"
	"gapup-lab/internal/metrics"
	"gapup-lab/internal/observability"
	"gapup-lab/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML config file")
	addr := flag.String("addr", "", "Listen address (overrides server.addr)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with API keys and DSNs")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	m := observability.NewMetrics(observability.DefaultNamespace)

	raw, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer raw.Close()
	store := observability.InstrumentStore(cfg.Cache.Backend, raw, m)

	ds := cfg.DataSource
	sourceOpts := []marketdata.Option{
		marketdata.WithTimeout(ds.Timeout.Std()),
		marketdata.WithMaxRetries(ds.MaxRetries),
		marketdata.WithRateLimit(ds.RateLimit),
		marketdata.WithAdjusted(ds.IsAdjusted()),
		marketdata.WithLogger(logger),
	}
	if ds.BaseURL != "" {
		sourceOpts = append(sourceOpts, marketdata.WithBaseURL(ds.BaseURL))
	}
	source, err := marketdata.New(ds.Provider, ds.APIKey, sourceOpts...)
	if err != nil {
		return err
	}

	loader := pipeline.NewLoader(source, store,
		pipeline.WithLoaderLogger(logger),
		pipeline.WithLoaderMetrics(m),
		pipeline.WithMaxAge(cfg.Cache.MaxAge.Std()),
	)
	svc := pipeline.NewService(loader, pipeline.NewAnalyzer(cfg.Analysis.Rules), m, logger)

	handler := api.NewHandler(svc,
		api.WithStore(store),
		api.WithEstimator(metrics.Options{
			Confidence:    cfg.Analysis.Confidence,
			MinSampleSize: cfg.Analysis.MinSampleSize,
		}),
		api.WithDefaultThreshold(cfg.Analysis.DefaultThreshold),
		api.WithLogger(logger),
	)

	srv := api.NewServer(handler,
		api.WithAddr(cfg.Server.Addr),
		api.WithTimeouts(cfg.Server.ReadTimeout.Std(), cfg.Server.WriteTimeout.Std(), cfg.Server.ShutdownTimeout.Std()),
		api.WithMetrics(m),
		api.WithServerLogger(logger),
	)
	if err := srv.Start(); err != nil {
		return err
	}

	logger.Info().
		Str("provider", source.Name()).
		Str("cache", cfg.Cache.Backend).
		Msg("server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-srv.Err():
		return fmt.Errorf("listen: %w", err)
	}

	return srv.Stop(context.Background())
}
