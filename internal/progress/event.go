// Package progress defines the ordered notification stream a crawl
// run emits for observability. Events never influence the crawl
// result; they exist for logs, metrics, and the status endpoint.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageCrawlStart     Stage = "CRAWL_START"
	StagePageFetched    Stage = "PAGE_FETCHED"
	StageRecordWritten  Stage = "RECORD_WRITTEN"
	StageURLsDiscovered Stage = "URLS_DISCOVERED"
	StageCrawlDone      Stage = "CRAWL_DONE"
	StageCrawlError     Stage = "CRAWL_ERROR"
)

// Event captures a single crawl milestone.
type Event struct {
	// RunID identifies the crawl run the event belongs to.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Site is the target host the run is scoped to.
	Site string
	// URL is the page the event concerns, when page-scoped.
	URL string
	// Records counts product rows written by this event.
	Records int64
	// Discovered counts URLs newly accepted into the frontier.
	Discovered int64
	// Duplicates counts URLs dropped by the visited set.
	Duplicates int64
	// Dur captures latency for fetches and for run completion.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone, StageCrawlError:
	case StagePageFetched, StageRecordWritten, StageURLsDiscovered:
		if e.URL == "" {
			return fmt.Errorf("%s requires a url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
