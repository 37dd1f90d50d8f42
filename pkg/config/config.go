// Package config loads gia-report-checker settings from flags, GIA_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/gia-report-checker/pkg/client"
	"github.com/Sternrassler/gia-report-checker/pkg/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. GIA_PARALLEL.
const EnvPrefix = "GIA"

// DefaultUserAgent identifies the checker to the report service.
const DefaultUserAgent = "gia-report-checker/0.1.0"

// Config holds all settings of one run.
type Config struct {
	ReportNo   string `mapstructure:"report-no"`
	InputFile  string `mapstructure:"input-file"`
	Parallel   int    `mapstructure:"parallel"`
	OutputFile string `mapstructure:"output-file"`

	PGDSN   string `mapstructure:"pg-dsn"`
	PGTable string `mapstructure:"pg-table"`

	RedisAddr    string `mapstructure:"redis-addr"`
	AdmissionKey string `mapstructure:"admission-key"`

	MetricsAddr string `mapstructure:"metrics-addr"`

	LookupURL string        `mapstructure:"lookup-url"`
	DataURL   string        `mapstructure:"data-url"`
	UserAgent string        `mapstructure:"user-agent"`
	Timeout   time.Duration `mapstructure:"timeout"`

	LogLevel  string `mapstructure:"log-level"`
	LogPretty bool   `mapstructure:"log-pretty"`

	ConfigFile string `mapstructure:"config"`
}

// NewFlagSet returns the command line flags with their defaults.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("gia-report-checker", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringP("report-no", "n", "", "GIA report number, or a comma-separated list")
	fs.StringP("input-file", "f", "", "CSV file with report numbers in the first column")
	fs.IntP("parallel", "p", 2, "number of reports checked in parallel")
	fs.StringP("output-file", "o", "", "CSV file to write the reports to")

	fs.String("pg-dsn", "", "write reports to this Postgres database instead of a file")
	fs.String("pg-table", "gia_reports", "Postgres table for reports")

	fs.String("redis-addr", "", "Redis address for sharing the parallel limit across processes")
	fs.String("admission-key", "default", "name of the shared parallel limit")

	fs.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")

	fs.String("lookup-url", client.DefaultLookupURL, "report lookup page")
	fs.String("data-url", client.DefaultDataURL, "report data endpoint")
	fs.String("user-agent", DefaultUserAgent, "User-Agent header")
	fs.Duration("timeout", 30*time.Second, "timeout per request")

	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("log-pretty", false, "human readable console logs")

	fs.String("config", "", "YAML config file")
	return fs
}

// Usage returns the flag help text.
func Usage() string {
	return "Usage: gia-report-checker [flags]\n\n" + NewFlagSet().FlagUsages()
}

// Load parses args and merges environment variables and the config file.
// It returns pflag.ErrHelp when help was requested.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet()
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings of a run.
func (c *Config) Validate() error {
	hasReportNo := strings.TrimSpace(c.ReportNo) != ""
	hasInputFile := c.InputFile != ""
	switch {
	case !hasReportNo && !hasInputFile:
		return fmt.Errorf("either one of report-no or input-file must be specified")
	case hasReportNo && hasInputFile:
		return fmt.Errorf("only one of report-no or input-file must be specified")
	}

	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be >= 1 (got %d)", c.Parallel)
	}
	if c.OutputFile != "" && c.PGDSN != "" {
		return fmt.Errorf("only one of output-file or pg-dsn must be specified")
	}
	if hasInputFile && c.OutputFile == "" && c.PGDSN == "" {
		return fmt.Errorf("output-file is required with input-file")
	}
	if c.RedisAddr != "" && c.AdmissionKey == "" {
		return fmt.Errorf("admission-key is required with redis-addr")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user-agent is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %s)", c.Timeout)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log-level %q", c.LogLevel)
	}
	return nil
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig(out io.Writer) logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.LogLevel),
		Pretty: c.LogPretty,
		Output: out,
	}
}

// ClientConfig returns the report client settings.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.UserAgent)
	if c.LookupURL != "" {
		cfg.LookupURL = c.LookupURL
	}
	if c.DataURL != "" {
		cfg.DataURL = c.DataURL
	}
	cfg.Timeout = c.Timeout
	return cfg
}

// ReportNos returns the report numbers to check, in input order and
// including duplicates. Blank entries are dropped.
func (c *Config) ReportNos() ([]string, error) {
	if c.InputFile == "" {
		return splitReportNos(c.ReportNo), nil
	}

	f, err := os.Open(c.InputFile)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	return readReportNos(f)
}

func splitReportNos(s string) []string {
	var nos []string
	for _, part := range strings.Split(s, ",") {
		if no := strings.TrimSpace(part); no != "" {
			nos = append(nos, no)
		}
	}
	return nos
}

// readReportNos reads the first column of every CSV row.
func readReportNos(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var nos []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		if len(row) == 0 {
			continue
		}
		if no := strings.TrimSpace(row[0]); no != "" {
			nos = append(nos, no)
		}
	}
	return nos, nil
}
