package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentware/catalog-crawler/internal/progress"
)

// Config holds the settings for one crawl run. It is decoupled from
// Viper so the engine can be constructed and tested independently.
type Config struct {
	Host           string
	Scheme         string
	StartPath      string
	ConnectTimeout time.Duration
	OutputDir      string
	Concurrency    int
}

// BaseURL renders the configured scheme and host as a URL.
func (c Config) BaseURL() string {
	return fmt.Sprintf("%s://%s", c.Scheme, c.Host)
}

// Engine owns the frontier and drives the fetch/extract/persist
// pipeline. Run is the one-shot crawl result: it blocks until the
// frontier drains (success) or the first fatal error aborts the run.
type Engine struct {
	cfg       Config
	fetcher   Fetcher
	extractor Extractor
	sink      Sink
	preflight Preflight
	emitter   progress.Emitter
	logger    *zap.Logger
	clock     Clock

	runID    uuid.UUID
	frontier *Frontier

	failOnce sync.Once
	firstErr error
	abort    context.CancelFunc
}

// Clock returns the current time; injected so runs are testable.
type Clock interface {
	Now() time.Time
}

// NewEngine wires the engine's collaborators. The emitter may be nil;
// progress notifications are observability only, never correctness.
func NewEngine(
	cfg Config,
	fetcher Fetcher,
	extractor Extractor,
	sink Sink,
	preflight Preflight,
	emitter progress.Emitter,
	clock Clock,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.StartPath == "" {
		cfg.StartPath = "/"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		preflight: preflight,
		emitter:   emitter,
		logger:    logger,
		clock:     clock,
		runID:     uuid.New(),
		frontier:  NewFrontier(),
	}
}

// RunID identifies this crawl run in logs and progress events.
func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

// Run executes the crawl: validate, preflight, sink init, seed, drain.
// It returns nil on success or the first fatal error, classified by
// Kind. Rows written before a fatal error are retained.
func (e *Engine) Run(ctx context.Context) error {
	started := e.now()

	if err := e.validate(); err != nil {
		return err
	}

	e.emit(progress.Event{Stage: progress.StageCrawlStart, Site: e.cfg.Host})
	e.logger.Info("crawl starting",
		zap.String("run_id", e.runID.String()),
		zap.String("base_url", e.cfg.BaseURL()),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	if err := e.preflight.Check(ctx, e.cfg.Host, e.cfg.ConnectTimeout); err != nil {
		return e.finish(started, ConnectivityError(err))
	}
	if err := e.sink.Init(ctx); err != nil {
		return e.finish(started, err)
	}

	seed, err := e.seedURL()
	if err != nil {
		return e.finish(started, ConfigurationError("resolve start url: %v", err))
	}
	if _, err := e.frontier.Add(seed); err != nil {
		return e.finish(started, ConfigurationError("seed frontier: %v", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.abort = cancel

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go e.drain(runCtx, &wg)
	}
	wg.Wait()

	return e.finish(started, e.firstErr)
}

func (e *Engine) validate() error {
	if e.cfg.Host == "" {
		return ConfigurationError("site host is required")
	}
	if e.cfg.OutputDir == "" {
		return ConfigurationError("output directory is required")
	}
	return nil
}

func (e *Engine) seedURL() (string, error) {
	base, err := url.Parse(e.cfg.BaseURL())
	if err != nil {
		return "", err
	}
	return ResolveURL(base, e.cfg.StartPath)
}

// drain pops URLs until the frontier closes. Each unit of work is
// fully processed, including the sink write and the enqueue of its
// discovered URLs, before the worker takes the next one; that is the
// backpressure contract between fetch and write.
func (e *Engine) drain(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		rawURL, ok := e.frontier.Next()
		if !ok {
			return
		}
		e.process(ctx, rawURL)
		e.frontier.Done()
	}
}

func (e *Engine) process(ctx context.Context, rawURL string) {
	if ctx.Err() != nil {
		return
	}

	page, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		e.fail(FetchError(rawURL, err))
		return
	}
	e.emit(progress.Event{
		Stage: progress.StagePageFetched,
		Site:  e.cfg.Host,
		URL:   page.URL,
		Dur:   page.Duration,
	})
	e.logger.Debug("page fetched",
		zap.String("url", page.URL),
		zap.Int("status", page.StatusCode),
		zap.Int("queued", e.frontier.Len()),
	)

	outcome := e.extractor.Extract(page)

	if outcome.Record != nil {
		// The run may have aborted while this fetch was in flight;
		// results must not be written after abort.
		if ctx.Err() != nil {
			return
		}
		if err := e.sink.Write(ctx, *outcome.Record); err != nil {
			e.fail(err)
			return
		}
		e.emit(progress.Event{
			Stage:   progress.StageRecordWritten,
			Site:    e.cfg.Host,
			URL:     page.URL,
			Records: 1,
		})
		e.logger.Info("record written",
			zap.String("article_number", outcome.Record.ArticleNumber),
			zap.String("name", outcome.Record.Name),
		)
	}

	e.enqueue(page, outcome.DiscoveredURLs)
}

func (e *Engine) enqueue(page Page, hrefs []string) {
	if len(hrefs) == 0 {
		return
	}
	base, err := url.Parse(page.URL)
	if err != nil {
		e.logger.Warn("unparseable page url, links dropped", zap.String("url", page.URL))
		return
	}

	var added, duplicates int64
	for _, href := range hrefs {
		resolved, err := ResolveURL(base, href)
		if err != nil {
			e.logger.Warn("dropping malformed link", zap.String("href", href), zap.Error(err))
			continue
		}
		ok, err := e.frontier.Add(resolved)
		if err != nil {
			e.logger.Warn("dropping malformed link", zap.String("href", resolved), zap.Error(err))
			continue
		}
		if ok {
			added++
		} else {
			duplicates++
		}
	}

	e.emit(progress.Event{
		Stage:      progress.StageURLsDiscovered,
		Site:       e.cfg.Host,
		URL:        page.URL,
		Discovered: added,
		Duplicates: duplicates,
	})
	e.logger.Debug("links enqueued",
		zap.String("url", page.URL),
		zap.Int64("added", added),
		zap.Int64("duplicates", duplicates),
	)
}

// fail records the first fatal error, stops dispatch, and wakes every
// worker blocked on the frontier. The first error wins; later ones are
// discarded.
func (e *Engine) fail(err error) {
	e.failOnce.Do(func() {
		e.firstErr = err
		if e.abort != nil {
			e.abort()
		}
		e.frontier.Close()
	})
}

func (e *Engine) finish(started time.Time, err error) error {
	dur := e.now().Sub(started)
	if err != nil {
		e.emit(progress.Event{
			Stage: progress.StageCrawlError,
			Site:  e.cfg.Host,
			Dur:   dur,
			Note:  err.Error(),
		})
		e.logger.Error("crawl failed", zap.String("run_id", e.runID.String()), zap.Error(err))
		return err
	}
	e.emit(progress.Event{Stage: progress.StageCrawlDone, Site: e.cfg.Host, Dur: dur})
	e.logger.Info("crawl complete",
		zap.String("run_id", e.runID.String()),
		zap.Duration("took", dur),
	)
	return nil
}

func (e *Engine) emit(evt progress.Event) {
	if e.emitter == nil {
		return
	}
	evt.RunID = e.runID
	if evt.TS.IsZero() {
		evt.TS = e.now()
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock.Now()
	}
	return time.Now().UTC()
}
