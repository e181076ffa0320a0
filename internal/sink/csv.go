// Package sink persists extracted product records as semicolon
// delimited rows in a timestamped output file.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rentware/catalog-crawler/internal/crawler"
)

// Delimiter separates the encoded fields of a row.
const Delimiter = ";"

// Header lists the seven columns in their fixed order.
var Header = []string{
	"article number",
	"product name",
	"product image",
	"price per day",
	"description",
	"technical details",
	"link",
}

// CSVSink appends one row per record to a run-scoped output file. Each
// field is individually encoded with JSON string quoting, so embedded
// delimiters, quotes, and every newline occurrence survive a
// round-trip. Writes are serialized; concurrent completions cannot
// interleave rows.
type CSVSink struct {
	dir    string
	clock  crawler.Clock
	logger *zap.Logger

	mu   sync.Mutex
	file *os.File
	path string
}

// New returns an uninitialized sink rooted at dir. Init must be called
// before Write.
func New(dir string, clock crawler.Clock, logger *zap.Logger) *CSVSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSink{dir: dir, clock: clock, logger: logger}
}

// Init creates the output directory if absent (idempotent, parents
// included), opens a new timestamped file, and writes the header row.
// A new run always creates a new file.
func (s *CSVSink) Init(ctx context.Context) error {
	if strings.TrimSpace(s.dir) == "" {
		return crawler.ConfigurationError("output directory is required")
	}
	if err := ctx.Err(); err != nil {
		return crawler.WriteError(err)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return crawler.WriteError(fmt.Errorf("create sink dir %s: %w", s.dir, err))
	}

	name := fmt.Sprintf("products_%s.csv", s.now().Format("20060102T150405"))
	path := filepath.Join(s.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return crawler.WriteError(fmt.Errorf("open sink file %s: %w", path, err))
	}

	s.mu.Lock()
	s.file = file
	s.path = path
	s.mu.Unlock()

	if err := s.appendRow(Header); err != nil {
		return err
	}
	s.logger.Info("sink initialized", zap.String("path", path))
	return nil
}

// Write appends one record row. Fails with a write-kind error if the
// sink is uninitialized or the underlying storage write fails.
func (s *CSVSink) Write(ctx context.Context, record crawler.ProductRecord) error {
	if err := ctx.Err(); err != nil {
		return crawler.WriteError(err)
	}
	detailsMap := record.TechnicalDetails
	if detailsMap == nil {
		detailsMap = map[string]string{}
	}
	// json.Marshal sorts map keys; insertion order is not significant.
	details, err := json.Marshal(detailsMap)
	if err != nil {
		return crawler.WriteError(fmt.Errorf("encode technical details: %w", err))
	}
	row := []string{
		record.ArticleNumber,
		record.Name,
		record.ImageURL,
		strconv.FormatFloat(record.PricePerDay, 'f', -1, 64),
		record.Description,
		string(details),
		record.Link,
	}
	return s.appendRow(row)
}

// Close releases the file handle. Safe to call on an uninitialized
// sink.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return crawler.WriteError(fmt.Errorf("close sink file %s: %w", s.path, err))
	}
	return nil
}

// Path reports the output file location once Init has run.
func (s *CSVSink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *CSVSink) appendRow(fields []string) error {
	line, err := EncodeRow(fields)
	if err != nil {
		return crawler.WriteError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return crawler.WriteError(fmt.Errorf("sink is not initialized"))
	}
	if _, err := s.file.WriteString(line + "\n"); err != nil {
		return crawler.WriteError(fmt.Errorf("append row to %s: %w", s.path, err))
	}
	return nil
}

// EncodeRow quotes each field with JSON string encoding and joins them
// with the delimiter.
func EncodeRow(fields []string) (string, error) {
	encoded := make([]string, len(fields))
	for i, field := range fields {
		quoted, err := json.Marshal(field)
		if err != nil {
			return "", fmt.Errorf("encode field %d: %w", i, err)
		}
		encoded[i] = string(quoted)
	}
	return strings.Join(encoded, Delimiter), nil
}

var _ crawler.Sink = (*CSVSink)(nil)

func (s *CSVSink) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}
