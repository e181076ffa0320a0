// Package collyfetcher implements crawler.Fetcher using gocolly. The
// collector owns every transport-level concern: timeouts, parallelism
// limits, politeness delay, and redirect handling.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/rentware/catalog-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	// Host restricts the crawl to a single domain.
	Host string
	// UserAgent identifies the crawler to the target site.
	UserAgent string
	// Concurrency caps in-flight requests.
	Concurrency int
	// Delay waits between requests to the same domain.
	Delay time.Duration
	// RequestTimeout bounds one fetch end to end.
	RequestTimeout time.Duration
	// Extra carries pass-through tuning options the core treats as
	// opaque. Recognized keys: "max_body_bytes" (collector body cap),
	// "ignore_robots" (skip robots.txt). Unrecognized keys are
	// forwarded as X-Crawler-* request headers.
	Extra map[string]string
}

// Fetcher retrieves single pages through a shared base collector.
type Fetcher struct {
	baseCollector *colly.Collector
	extraHeaders  map[string]string
	logger        *zap.Logger
}

// New builds a Fetcher from config, applying pass-through options.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	}
	if cfg.Host != "" {
		opts = append(opts, colly.AllowedDomains(cfg.Host))
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true // the engine's visited set owns dedup

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	base.SetRequestTimeout(timeout)
	base.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	})

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
		Delay:       cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}

	extraHeaders, err := applyExtra(base, cfg.Extra, logger)
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		baseCollector: base,
		extraHeaders:  extraHeaders,
		logger:        logger,
	}, nil
}

// applyExtra maps recognized pass-through options onto the collector
// and returns the remainder as forwarded request headers.
func applyExtra(c *colly.Collector, extra map[string]string, logger *zap.Logger) (map[string]string, error) {
	headers := make(map[string]string)
	for key, value := range extra {
		switch key {
		case "max_body_bytes":
			limit, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("fetcher option max_body_bytes: %w", err)
			}
			c.MaxBodySize = limit
		case "ignore_robots":
			ignore, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("fetcher option ignore_robots: %w", err)
			}
			c.IgnoreRobotsTxt = ignore
		default:
			logger.Debug("forwarding unrecognized fetcher option",
				zap.String("key", key),
			)
			headers["X-Crawler-"+key] = value
		}
	}
	return headers, nil
}

// Fetch executes a single HTTP GET. A transport failure or non-2xx
// status surfaces as an error; the page is returned only on success.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	collector := f.baseCollector.Clone()

	start := time.Now()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range f.extraHeaders {
			r.Headers.Set(key, value)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{page: crawler.Page{
			URL:        r.Request.URL.String(),
			Body:       append([]byte(nil), r.Body...),
			StatusCode: r.StatusCode,
			Duration:   time.Since(start),
		}})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode > 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		send(fetchResult{err: err})
	})

	done := make(chan error, 1)
	go func() {
		if err := collector.Visit(rawURL); err != nil {
			done <- err
			return
		}
		collector.Wait()
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return crawler.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return crawler.Page{}, err
		}
	}

	select {
	case res := <-resultCh:
		return res.page, res.err
	default:
		return crawler.Page{}, errors.New("fetch produced no result")
	}
}

type fetchResult struct {
	page crawler.Page
	err  error
}

var _ crawler.Fetcher = (*Fetcher)(nil)
