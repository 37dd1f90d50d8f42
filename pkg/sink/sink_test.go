package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/Sternrassler/gia-report-checker/internal/testutil"
	"github.com/Sternrassler/gia-report-checker/pkg/report"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func testRecords(t *testing.T, reportNos ...string) []report.Record {
	t.Helper()
	records := make([]report.Record, 0, len(reportNos))
	for _, no := range reportNos {
		rec, err := report.Normalize(testutil.ValidFields(no))
		if err != nil {
			t.Fatalf("Normalize(%s) error = %v", no, err)
		}
		records = append(records, rec)
	}
	return records
}

func TestCSV_Write(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewCSV(&buf).Write(context.Background(), testRecords(t, "1111", "2222"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Write() = %d, want 2", n)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	header := rows[0]
	names := report.Names()
	if len(header) != len(names) {
		t.Fatalf("header has %d columns, want %d", len(header), len(names))
	}
	for i := range names {
		if header[i] != names[i] {
			t.Errorf("header[%d] = %q, want %q", i, header[i], names[i])
		}
	}

	if rows[1][0] != "1111" || rows[2][0] != "2222" {
		t.Errorf("report numbers = %q, %q", rows[1][0], rows[2][0])
	}
	for i, name := range names {
		if name == report.NameCrownAngle && rows[1][i] != "34.5" {
			t.Errorf("Crown Angle = %q, want 34.5", rows[1][i])
		}
	}
}

func TestCSV_WriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewCSV(&buf).Write(context.Background(), nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Errorf("empty run wrote %d lines, want header only", len(lines))
	}
}

func TestJSON_Write(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewJSON(&buf).Write(context.Background(), testRecords(t, "1111"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Write() = %d, want 1", n)
	}

	var decoded []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not a JSON array of objects: %v\n%s", err, buf.String())
	}
	if len(decoded) != 1 {
		t.Fatalf("decoded %d records, want 1", len(decoded))
	}
	if decoded[0]["Report No"] != "1111" {
		t.Errorf("Report No = %q", decoded[0]["Report No"])
	}
	if decoded[0][report.NamePavilionAngle] != "40.8" {
		t.Errorf("Pavilion Angle = %q, want 40.8", decoded[0][report.NamePavilionAngle])
	}

	// Field order survives indentation.
	out := buf.String()
	if strings.Index(out, `"Report No"`) > strings.Index(out, `"Shape"`) {
		t.Error("Report No should precede Shape in output")
	}
}

func TestJSON_WriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewJSON(&buf).Write(context.Background(), nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty run = %q, want []", got)
	}
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestClose(t *testing.T) {
	for name, s := range map[string]func(*closeRecorder) Sink{
		"csv":  func(w *closeRecorder) Sink { return NewCSV(w) },
		"json": func(w *closeRecorder) Sink { return NewJSON(w) },
	} {
		t.Run(name, func(t *testing.T) {
			w := &closeRecorder{}
			if err := s(w).Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if !w.closed {
				t.Error("Close() did not close the writer")
			}
		})
	}

	if err := NewCSV(&bytes.Buffer{}).Close(); err != nil {
		t.Errorf("Close() on non-closer error = %v", err)
	}
}

func TestQuoteTable(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "", want: `"gia_reports"`},
		{input: "reports", want: `"reports"`},
		{input: "archive.reports", want: `"archive"."reports"`},
		{input: `bad"name`, want: `"bad""name"`},
		{input: "a.b.c", wantErr: true},
		{input: "a.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := quoteTable(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("quoteTable(%q) error = nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("quoteTable(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("quoteTable(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewPostgres_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewPostgres(ctx, PostgresConfig{}, testLogger()); err == nil {
		t.Error("NewPostgres() without dsn should fail")
	}
	if _, err := NewPostgres(ctx, PostgresConfig{DSN: "postgres://localhost/x", Table: "a.b.c"}, testLogger()); err == nil {
		t.Error("NewPostgres() with invalid table should fail")
	}
	if _, err := NewPostgres(ctx, PostgresConfig{DSN: "postgres://%zz"}, testLogger()); err == nil {
		t.Error("NewPostgres() with invalid dsn should fail")
	}
}
