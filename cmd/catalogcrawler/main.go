// Package main wires together the catalog crawler binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rentware/catalog-crawler/internal/api"
	"github.com/rentware/catalog-crawler/internal/clock/system"
	"github.com/rentware/catalog-crawler/internal/config"
	"github.com/rentware/catalog-crawler/internal/crawler"
	"github.com/rentware/catalog-crawler/internal/extract"
	collyfetcher "github.com/rentware/catalog-crawler/internal/fetcher/colly"
	"github.com/rentware/catalog-crawler/internal/logging"
	"github.com/rentware/catalog-crawler/internal/preflight"
	"github.com/rentware/catalog-crawler/internal/progress"
	"github.com/rentware/catalog-crawler/internal/progress/sinks"
	"github.com/rentware/catalog-crawler/internal/sink"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		reportFailure(err)
		return 1
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		logger.Error("metrics init failed", zap.Error(err))
		return 1
	}
	statusSink := sinks.NewStatusSink()
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		statusSink,
	)

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		Host:           cfg.Site.Host,
		UserAgent:      cfg.Fetcher.UserAgent,
		Concurrency:    cfg.Fetcher.Concurrency,
		Delay:          cfg.Delay(),
		RequestTimeout: cfg.RequestTimeout(),
		Extra:          cfg.Fetcher.Extra,
	}, logger.Named("fetcher"))
	if err != nil {
		reportFailure(crawler.ConfigurationError("init fetcher: %v", err))
		return 1
	}

	csvSink := sink.New(cfg.Output.Dir, clock, logger.Named("sink"))
	defer func() {
		if cerr := csvSink.Close(); cerr != nil {
			logger.Warn("sink close failed", zap.Error(cerr))
		}
	}()

	srv := startStatusServer(cfg, statusSink, logger, stop)

	engine := crawler.NewEngine(
		cfg.EngineConfig(),
		fetcher,
		extract.New(),
		csvSink,
		preflight.NewDialer(logger.Named("preflight")),
		hub,
		clock,
		logger.Named("engine"),
	)

	runErr := engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("status server shutdown failed", zap.Error(serr))
		}
	}
	if herr := hub.Close(shutdownCtx); herr != nil {
		logger.Warn("progress hub close failed", zap.Error(herr))
	}

	if runErr != nil {
		reportFailure(runErr)
		return 1
	}
	logger.Info("run finished", zap.String("output", csvSink.Path()))
	return 0
}

// startStatusServer serves /healthz, /metrics, and /status when
// enabled. A listen failure stops the run via the signal context.
func startStatusServer(
	cfg config.Config,
	status *sinks.StatusSink,
	logger *zap.Logger,
	stop context.CancelFunc,
) *http.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(status, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
			stop()
		}
	}()
	return srv
}

// reportFailure prints the top-level error with its kind and message.
func reportFailure(err error) {
	var ce *crawler.Error
	if errors.As(err, &ce) {
		fmt.Fprintf(os.Stderr, "crawl failed (%s): %v\n", ce.Kind, ce.Err)
		return
	}
	fmt.Fprintf(os.Stderr, "crawl failed: %v\n", err)
}
