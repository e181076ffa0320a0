package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/rentware/catalog-crawler/internal/progress"
)

// RunState is the coarse lifecycle of the observed crawl run.
type RunState string

// Run states reported by the status endpoint.
const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// Snapshot is a point-in-time view of crawl progress, serialized by
// the status endpoint.
type Snapshot struct {
	RunID             string    `json:"run_id,omitempty"`
	Site              string    `json:"site,omitempty"`
	State             RunState  `json:"state"`
	StartedAt         time.Time `json:"started_at,omitzero"`
	FinishedAt        time.Time `json:"finished_at,omitzero"`
	PagesFetched      int64     `json:"pages_fetched"`
	RecordsWritten    int64     `json:"records_written"`
	URLsDiscovered    int64     `json:"urls_discovered"`
	DuplicatesSkipped int64     `json:"duplicates_skipped"`
	LastURL           string    `json:"last_url,omitempty"`
	Error             string    `json:"error,omitempty"`
}

// StatusSink folds events into an in-memory snapshot for the status
// endpoint. It tracks the single run of this process.
type StatusSink struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatusSink returns a sink in the pending state.
func NewStatusSink() *StatusSink {
	return &StatusSink{snap: Snapshot{State: RunPending}}
}

// Consume folds one event into the snapshot.
func (s *StatusSink) Consume(_ context.Context, evt progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Stage {
	case progress.StageCrawlStart:
		s.snap = Snapshot{
			RunID:     evt.RunID.String(),
			Site:      evt.Site,
			State:     RunRunning,
			StartedAt: evt.TS,
		}
	case progress.StagePageFetched:
		s.snap.PagesFetched++
		s.snap.LastURL = evt.URL
	case progress.StageRecordWritten:
		s.snap.RecordsWritten += evt.Records
	case progress.StageURLsDiscovered:
		s.snap.URLsDiscovered += evt.Discovered
		s.snap.DuplicatesSkipped += evt.Duplicates
	case progress.StageCrawlDone:
		s.snap.State = RunSucceeded
		s.snap.FinishedAt = evt.TS
	case progress.StageCrawlError:
		s.snap.State = RunFailed
		s.snap.FinishedAt = evt.TS
		s.snap.Error = evt.Note
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *StatusSink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
