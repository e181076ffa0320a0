// Package sinks provides the progress.Sink implementations wired into
// a crawl run: structured logs, Prometheus collectors, and the status
// snapshot served by the API.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/rentware/catalog-crawler/internal/progress"
)

// LogSink emits one structured log line per progress event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID.String()),
		zap.String("stage", string(evt.Stage)),
		zap.String("site", evt.Site),
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.Records > 0 {
		fields = append(fields, zap.Int64("records", evt.Records))
	}
	if evt.Discovered > 0 || evt.Duplicates > 0 {
		fields = append(fields,
			zap.Int64("discovered", evt.Discovered),
			zap.Int64("duplicates", evt.Duplicates),
		)
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	s.logger.Info("progress event", fields...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
