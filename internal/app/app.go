package app

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

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"rirstats/internal/app/version"
	"rirstats/internal/config"
	"rirstats/internal/database"
	"rirstats/internal/fetcher"
	"rirstats/internal/geolite"
	"rirstats/internal/jobs/collector"
	"rirstats/internal/sink"
	"rirstats/internal/support"
)

type options struct {
	settingsPath string
	watch        bool
	showVersion  bool
}

// Run collects every configured registry once, or keeps refreshing in watch mode.
func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found. Falling back to system environment variables.")
	}

	log.SetOutput(os.Stderr)
	log.SetLevel(resolveLogLevel(support.GetEnv("LOG_LEVEL", "info")))

	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Println(version.Get())
		return nil
	}

	cfg, err := loadConfig(opts.settingsPath)
	if err != nil {
		return err
	}
	config.SetConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	col, cleanup, err := buildCollector(cfg, os.Stdout, opts.watch)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.watch {
		trigger := make(chan struct{}, 1)
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-hup:
					select {
					case trigger <- struct{}{}:
					default:
					}
				}
			}
		}()

		log.Info("Watching registries", "interval", cfg.RefreshInterval(), "sources", len(cfg.Registries))
		col.RunRefreshLoop(ctx, cfg.RefreshInterval(), trigger)
		return nil
	}

	outcome, err := col.Collect(ctx)
	if err != nil {
		return err
	}

	log.Info("Collection finished",
		"sources", outcome.Sources,
		"failed", outcome.Failed,
		"records", outcome.Records,
		"dropped", outcome.Dropped,
	)
	if cfg.Sinks.Database {
		if err := logStoredTotals(ctx); err != nil {
			log.Warn("Could not count stored allocations", "error", err)
		}
	}
	return nil
}

// reloadSettings re-reads settings for the next pass; on failure the active
// settings stay in place. Only the registry list is picked up by a running
// collector.
func reloadSettings(settingsPath string) {
	cfg, err := loadConfig(settingsPath)
	if err != nil {
		log.Warn("Settings reload failed, keeping current settings", "error", err)
		return
	}
	config.SetConfig(cfg)
	log.Info("Settings reloaded", "sources", len(cfg.Registries))
}

func activeRegistries() []config.Registry {
	return config.GetConfig().Registries
}

func logStoredTotals(ctx context.Context) error {
	counts, err := database.CountAllocationsBySource(ctx)
	if err != nil {
		return err
	}
	for source, total := range counts {
		log.Info("Stored allocations", "source", source, "rows", total)
	}
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.settingsPath, "settings", "", "Path to a settings JSON file (overrides RIRSTATS_SETTINGS)")
	fs.BoolVar(&opts.watch, "watch", false, "Keep running and refresh on the configured timer or SIGHUP")
	fs.BoolVar(&opts.showVersion, "version", false, "Print build information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return opts, nil
}

// loadConfig reads settings and applies the environment overrides.
func loadConfig(settingsPath string) (config.Config, error) {
	if settingsPath == "" {
		settingsPath = support.GetEnv("RIRSTATS_SETTINGS", "")
	}

	cfg, err := config.ReadSettings(settingsPath)
	if err != nil {
		return config.Config{}, err
	}

	if proxyURL := support.GetEnv("FETCH_PROXY", ""); proxyURL != "" {
		cfg.Fetch.Proxy = proxyURL
	}
	if path := support.GetEnv("GEOLITE_COUNTRY_DB", ""); path != "" {
		cfg.GeoLite.CountryDB = path
	}
	cfg.ContinueOnError = support.GetEnvBool("RIRSTATS_CONTINUE_ON_ERROR", cfg.ContinueOnError)
	if strings.TrimSpace(cfg.Fetch.UserAgent) == "" {
		cfg.Fetch.UserAgent = version.UserAgent()
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func buildCollector(cfg config.Config, stdout io.Writer, watch bool) (*collector.Collector, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("error during shutdown", "error", err)
			}
		}
	}

	client, err := fetcher.New(
		fetcher.WithTimeout(cfg.FetchTimeout()),
		fetcher.WithMaxBytes(cfg.FetchMaxBytes()),
		fetcher.WithUserAgent(cfg.FetchUserAgent()),
		fetcher.WithProxy(cfg.Fetch.Proxy),
	)
	if err != nil {
		return nil, cleanup, err
	}

	sinks, sinkClosers, err := buildSinks(cfg, stdout)
	closers = append(closers, sinkClosers...)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	opts := []collector.Option{
		collector.WithSinks(sinks...),
		collector.WithContinueOnError(cfg.ContinueOnError || watch),
	}
	if watch {
		opts = append(opts, collector.WithSourceProvider(activeRegistries))
	}

	checker, err := geolite.Open(cfg.GeoLite.CountryDB)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	if checker != nil {
		closers = append(closers, checker.Close)
		opts = append(opts, collector.WithCountryChecker(checker))
	}

	col, err := collector.New(client, cfg.Registries, opts...)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return col, cleanup, nil
}

func buildSinks(cfg config.Config, stdout io.Writer) ([]collector.Sink, []func() error, error) {
	var (
		sinks   []collector.Sink
		closers []func() error
	)

	if cfg.Sinks.Stdout {
		sinks = append(sinks, sink.NewPrinter(stdout))
	}

	if cfg.Sinks.Database {
		if _, err := database.SetupDB(); err != nil {
			return nil, closers, fmt.Errorf("failed to set up database: %w", err)
		}
		closers = append(closers, database.Close)
		sinks = append(sinks, sink.NewDatabase())
	}

	if cfg.Sinks.Redis {
		client, err := support.GetRedisClient()
		if err != nil {
			return nil, closers, fmt.Errorf("failed to get redis client: %w", err)
		}
		closers = append(closers, support.CloseRedisClient)
		sinks = append(sinks, sink.NewRedis(client))
	}

	if len(sinks) == 0 {
		return nil, closers, errors.New("no sinks enabled")
	}
	return sinks, closers, nil
}

func resolveLogLevel(raw string) log.Level {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		log.Warn("invalid log level", "value", raw)
		return log.InfoLevel
	}
	return level
}
