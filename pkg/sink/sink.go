// Package sink writes the records of a batch run to their single output artifact:
// a CSV file, a JSON array, or rows in a Postgres table.
package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/gia-report-checker/pkg/report"
)

// Sink receives the successful records of a run.
type Sink interface {
	// Write stores records and returns how many were written.
	Write(ctx context.Context, records []report.Record) (int, error)
	Close() error
}

// CSV writes records as comma-separated rows under a header of display names.
type CSV struct {
	w io.Writer
}

// NewCSV creates a CSV sink writing to w.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: w}
}

// Write writes the header and one row per record.
func (s *CSV) Write(_ context.Context, records []report.Record) (int, error) {
	cw := csv.NewWriter(s.w)
	if err := cw.Write(report.Names()); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for i, rec := range records {
		if err := cw.Write(rec.Values()); err != nil {
			return i, fmt.Errorf("write csv row %s: %w", rec.ReportNo(), err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(records), nil
}

// Close closes the underlying writer if it is an io.Closer.
func (s *CSV) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// JSON writes records as an indented JSON array of objects.
type JSON struct {
	w io.Writer
}

// NewJSON creates a JSON sink writing to w.
func NewJSON(w io.Writer) *JSON {
	return &JSON{w: w}
}

// Write encodes all records as one array. An empty run writes [].
func (s *JSON) Write(_ context.Context, records []report.Record) (int, error) {
	if records == nil {
		records = []report.Record{}
	}
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("encode json: %w", err)
	}
	return len(records), nil
}

// Close closes the underlying writer if it is an io.Closer.
func (s *JSON) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
