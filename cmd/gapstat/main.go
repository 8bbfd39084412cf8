// Command gapstat estimates the probability of a gap up after an extreme
// daily drop and classifies the most recent session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gapup-lab/internal/cache"
	"gapup-lab/internal/config"
	"gapup-lab/internal/domain"
	"gapup-lab/internal/logging"
	"gapup-lab/internal/marketdata"
	"gapup-lab/internal/metrics"
	"gapup-lab/internal/observability"
	"gapup-lab/internal/pipeline"
	"gapup-lab/internal/reporting"
	"gapup-lab/internal/selection"
	"gapup-lab/internal/storage"
)

// options holds the parsed command line.
type options struct {
	configPath   string
	envFile      string
	symbol       string
	years        int
	threshold    float64
	percentile   float64
	save         bool
	noCache      bool
	clearCache   bool
	cacheInfo    bool
	all          bool
	format       string
	outputDir    string
	metricsFile  string
	cacheBackend string
	cacheDSN     string
	provider     string
	logLevel     string

	set map[string]bool // flags given explicitly
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: map[string]bool{}}

	fs := flag.NewFlagSet("gapstat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to a YAML or TOML config file")
	fs.StringVar(&o.envFile, "env-file", ".env", "Optional dotenv file with API keys and DSNs")
	fs.StringVar(&o.symbol, "symbol", "QQQ", "Ticker to analyze")
	fs.IntVar(&o.years, "years", 5, "Years of history to analyze")
	fs.Float64Var(&o.threshold, "threshold", selection.DefaultThreshold, "Drop threshold in percent (daily_return < threshold)")
	fs.Float64Var(&o.percentile, "percentile", 0, "Select drops at or below this percentile (0-100) of daily returns")
	fs.BoolVar(&o.save, "save", false, "Export the results to a file")
	fs.BoolVar(&o.noCache, "no-cache", false, "Bypass the local cache and do not write to it")
	fs.BoolVar(&o.clearCache, "clear-cache", false, "Clear cached data for the symbol and exit")
	fs.BoolVar(&o.cacheInfo, "cache-info", false, "Print cache metadata for the symbol and exit")
	fs.BoolVar(&o.all, "all", false, "With --clear-cache or --cache-info, act on every cached symbol")
	fs.StringVar(&o.format, "format", "", "Export format: csv or markdown")
	fs.StringVar(&o.outputDir, "output-dir", "", "Directory for exported files")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format")
	fs.StringVar(&o.cacheBackend, "cache-backend", "", "Cache backend: sqlite, badger, postgres, clickhouse, redis, memory")
	fs.StringVar(&o.cacheDSN, "cache-dsn", "", "Cache DSN for postgres or clickhouse")
	fs.StringVar(&o.provider, "provider", "", "Market data provider: yahoo or eodhd")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if o.set["threshold"] && o.set["percentile"] {
		return nil, errors.New("--threshold and --percentile are mutually exclusive")
	}
	return o, nil
}

// apply copies explicitly set flags over the loaded configuration.
func (o *options) apply(cfg *config.Config) error {
	if o.set["symbol"] {
		cfg.Symbol = o.symbol
	}
	if o.set["years"] {
		cfg.Years = o.years
	}
	if o.set["format"] {
		cfg.Output.Format = o.format
	}
	if o.set["output-dir"] {
		cfg.Output.Dir = o.outputDir
	}
	if o.set["metrics-file"] {
		cfg.Metrics.Textfile = o.metricsFile
	}
	if o.set["cache-backend"] {
		cfg.Cache.Backend = strings.ToLower(o.cacheBackend)
	}
	if o.set["cache-dsn"] {
		cfg.Cache.DSN = o.cacheDSN
	}
	if o.set["provider"] {
		cfg.DataSource.Provider = strings.ToLower(o.provider)
	}
	if o.set["log-level"] {
		cfg.Logging.Level = strings.ToLower(o.logLevel)
	}
	return cfg.Validate()
}

// criteria returns the selection rule: an explicit flag wins, otherwise the
// configured default threshold.
func (o *options) criteria(cfg *config.Config) selection.Criteria {
	switch {
	case o.set["percentile"]:
		p := o.percentile
		return selection.Criteria{Percentile: &p}
	case o.set["threshold"]:
		t := o.threshold
		return selection.Criteria{Threshold: &t}
	default:
		t := cfg.Analysis.DefaultThreshold
		return selection.Criteria{Threshold: &t}
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	m := observability.NewMetrics(observability.DefaultNamespace)
	defer writeMetrics(cfg.Metrics.Textfile, m, logger)

	needStore := !opts.noCache || opts.clearCache || opts.cacheInfo
	var store storage.BarStore
	if needStore {
		raw, err := cache.Open(ctx, cfg.Cache, logger)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer raw.Close()
		store = observability.InstrumentStore(cfg.Cache.Backend, raw, m)
	}

	switch {
	case opts.clearCache:
		return clearCache(ctx, store, cfg.Symbol, opts.all, stdout)
	case opts.cacheInfo:
		return printCacheInfo(ctx, store, cfg.Symbol, opts.all, stdout)
	}

	source, err := newSource(cfg, logger)
	if err != nil {
		return err
	}

	loader := pipeline.NewLoader(source, store,
		pipeline.WithLoaderLogger(logger),
		pipeline.WithLoaderMetrics(m),
		pipeline.WithMaxAge(cfg.Cache.MaxAge.Std()),
	)
	svc := pipeline.NewService(loader, pipeline.NewAnalyzer(cfg.Analysis.Rules), m, logger)

	params := pipeline.Params{
		Criteria: opts.criteria(cfg),
		Estimator: metrics.Options{
			Confidence:    cfg.Analysis.Confidence,
			MinSampleSize: cfg.Analysis.MinSampleSize,
		},
	}

	logger.Info().
		Str("symbol", cfg.Symbol).
		Int("years", cfg.Years).
		Str("provider", source.Name()).
		Msg("starting analysis")

	result, loaded, err := svc.Analyze(ctx, pipeline.Request{
		Symbol:   cfg.Symbol,
		Years:    cfg.Years,
		UseCache: !opts.noCache,
	}, params)
	if err != nil {
		return err
	}

	report := reporting.NewReport(result, loaded, cfg.Years)
	fmt.Fprint(stdout, reporting.RenderConsole(report))

	if opts.save {
		return export(report, cfg.Output, stdout, logger)
	}
	return nil
}

func newSource(cfg *config.Config, logger zerolog.Logger) (marketdata.Source, error) {
	ds := cfg.DataSource
	opts := []marketdata.Option{
		marketdata.WithTimeout(ds.Timeout.Std()),
		marketdata.WithMaxRetries(ds.MaxRetries),
		marketdata.WithRateLimit(ds.RateLimit),
		marketdata.WithAdjusted(ds.IsAdjusted()),
		marketdata.WithLogger(logger),
	}
	if ds.BaseURL != "" {
		opts = append(opts, marketdata.WithBaseURL(ds.BaseURL))
	}
	return marketdata.New(ds.Provider, ds.APIKey, opts...)
}

func export(report *reporting.Report, out config.OutputConfig, stdout io.Writer, logger zerolog.Logger) error {
	format, err := reporting.ParseFormat(out.Format)
	if err != nil {
		return err
	}
	path, err := reporting.NewExporter(out.Dir).Export(report, format)
	if errors.Is(err, reporting.ErrEmptySample) {
		fmt.Fprintln(stdout, "No results to export")
		return nil
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info().Str("path", path).Msg("results exported")
	fmt.Fprintf(stdout, "Results saved to %s\n", path)
	return nil
}

func clearCache(ctx context.Context, store storage.BarStore, symbol string, all bool, stdout io.Writer) error {
	target := storage.NormalizeSymbol(symbol)
	if all {
		target = ""
	}
	if err := store.Clear(ctx, target); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	if target == "" {
		fmt.Fprintln(stdout, "Cache cleared for all symbols")
	} else {
		fmt.Fprintf(stdout, "Cache cleared for %s\n", target)
	}
	return nil
}

func printCacheInfo(ctx context.Context, store storage.BarStore, symbol string, all bool, stdout io.Writer) error {
	var metas []*domain.CacheMetadata
	if all {
		list, err := store.ListMetadata(ctx)
		if err != nil {
			return fmt.Errorf("cache info: %w", err)
		}
		metas = list
	} else {
		meta, err := store.Metadata(ctx, symbol)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(stdout, "No cached data for %s\n", storage.NormalizeSymbol(symbol))
			return nil
		}
		if err != nil {
			return fmt.Errorf("cache info: %w", err)
		}
		metas = append(metas, meta)
	}

	if len(metas) == 0 {
		fmt.Fprintln(stdout, "Cache is empty")
		return nil
	}
	fmt.Fprintln(stdout, "CACHE INFO")
	for _, m := range metas {
		fmt.Fprintf(stdout, "  %-8s %s to %s  rows: %d  updated: %s\n",
			m.Symbol,
			m.StartDate.Format(domain.DateLayout),
			m.EndDate.Format(domain.DateLayout),
			m.Rows,
			m.LastUpdated.Format(time.DateTime),
		)
	}
	return nil
}

func writeMetrics(path string, m *observability.Metrics, logger zerolog.Logger) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to write metrics textfile")
	}
}
