// Package crawler defines core types shared across subsystems and the
// engine that orchestrates a crawl run.
package crawler

import (
	"context"
	"time"
)

// Page is one fetched document plus its resolved request URL. It is
// owned by the engine for the duration of a single handler invocation
// and must not be retained afterwards.
type Page struct {
	// URL is the resolved request URL after redirects.
	URL string
	// Body is the raw response body.
	Body []byte
	// StatusCode is the HTTP status of the final response.
	StatusCode int
	// Duration captures fetch latency.
	Duration time.Duration
}

// ProductRecord is the fixed seven-field structure extracted from a
// detail page and consumed exactly once by the sink.
type ProductRecord struct {
	ArticleNumber    string
	Name             string
	ImageURL         string
	PricePerDay      float64
	Description      string
	TechnicalDetails map[string]string
	Link             string
}

// ExtractionOutcome is the per-page result of pulling structured data
// and/or further links out of one fetched document. Produced fresh per
// page and never mutated after construction. A page may yield both a
// record and discovered URLs, or neither, or only one.
type ExtractionOutcome struct {
	Record         *ProductRecord
	DiscoveredURLs []string
}

// Fetcher retrieves a single URL. Implementations own transport-level
// concerns (timeouts, parallelism limits, politeness delay). A non-2xx
// status or transport failure surfaces as an error.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Extractor turns a fetched page into an ExtractionOutcome. It must be
// pure: no I/O, deterministic given the same body, and it never fails;
// malformed input degrades to empty fields.
type Extractor interface {
	Extract(page Page) ExtractionOutcome
}

// Sink persists product records append-only in a fixed schema.
type Sink interface {
	Init(ctx context.Context) error
	Write(ctx context.Context, record ProductRecord) error
	Close() error
}

// Preflight probes target reachability before a crawl commits.
type Preflight interface {
	Check(ctx context.Context, host string, timeout time.Duration) error
}
