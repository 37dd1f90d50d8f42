package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo || cfg.Pretty || cfg.Output != os.Stderr {
		t.Errorf("DefaultConfig() = %+v, want info JSON logs on stderr", cfg)
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		input string
		valid bool
		want  zerolog.Level
	}{
		{input: "debug", valid: true, want: zerolog.DebugLevel},
		{input: "INFO", valid: true, want: zerolog.InfoLevel},
		{input: "warn", valid: true, want: zerolog.WarnLevel},
		{input: "Warning", valid: true, want: zerolog.WarnLevel},
		{input: "error", valid: true, want: zerolog.ErrorLevel},
		{input: "", valid: false, want: zerolog.InfoLevel},
		{input: "trace", valid: false, want: zerolog.InfoLevel},
		{input: "verbose", valid: false, want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidLevel(tt.input); got != tt.valid {
				t.Errorf("ValidLevel(%q) = %v, want %v", tt.input, got, tt.valid)
			}
			if got := parseLevel(LogLevel(tt.input)); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// The batch logs a fetched report at info and a failed one at warn.
func TestSetup_LevelFiltersBatchMessages(t *testing.T) {
	tests := []struct {
		level       LogLevel
		wantFetched bool
		wantFailed  bool
	}{
		{level: LevelDebug, wantFetched: true, wantFailed: true},
		{level: LevelInfo, wantFetched: true, wantFailed: true},
		{level: LevelWarn, wantFetched: false, wantFailed: true},
		{level: LevelError, wantFetched: false, wantFailed: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			Setup(Config{Level: tt.level, Output: buf})

			logger := NewLogger("batch")
			logger.Info().Str("report_no", "1111").Msg("Fetched report")
			logger.Warn().Str("report_no", "2222").Str("reason", "blocked").Msg("Failed to fetch report")

			out := buf.String()
			if got := strings.Contains(out, "Fetched report"); got != tt.wantFetched {
				t.Errorf("fetched logged = %v, want %v: %q", got, tt.wantFetched, out)
			}
			if got := strings.Contains(out, "Failed to fetch report"); got != tt.wantFailed {
				t.Errorf("failure logged = %v, want %v: %q", got, tt.wantFailed, out)
			}
		})
	}
}

func TestNewLogger_JSONFields(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("gia-client")
	logger.Info().Str("report_no", "1234").Str("stage", "lookup").Int("status", 200).Msg("Stage complete")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %q", err, buf.String())
	}
	want := map[string]any{
		"component": "gia-client",
		"report_no": "1234",
		"stage":     "lookup",
		"status":    float64(200),
		"level":     "info",
		"message":   "Stage complete",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["time"]; !ok {
		t.Error("log line should carry a timestamp")
	}
}

func TestSetup_PrettyWithReportFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger.Info().Str("report_no", "1234").Msg("Checking report")

	output := buf.String()
	if !strings.Contains(output, "Checking report") || !strings.Contains(output, "report_no") || !strings.Contains(output, "1234") {
		t.Errorf("unexpected console output %q", output)
	}
	if json.Valid([]byte(strings.TrimSpace(output))) {
		t.Error("pretty output should not be JSON")
	}
}

func TestSetup_NilOutput(t *testing.T) {
	// Falls back to stderr instead of panicking.
	logger := Setup(Config{Level: LevelError})
	logger.Debug().Msg("discarded")
}
