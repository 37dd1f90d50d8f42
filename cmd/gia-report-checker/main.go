// Command gia-report-checker fetches GIA grading reports for a list of report
// numbers and writes them as CSV, JSON or Postgres rows.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/gia-report-checker/pkg/admission"
	"github.com/Sternrassler/gia-report-checker/pkg/batch"
	"github.com/Sternrassler/gia-report-checker/pkg/client"
	"github.com/Sternrassler/gia-report-checker/pkg/config"
	"github.com/Sternrassler/gia-report-checker/pkg/logging"
	"github.com/Sternrassler/gia-report-checker/pkg/metrics"
	"github.com/Sternrassler/gia-report-checker/pkg/report"
	"github.com/Sternrassler/gia-report-checker/pkg/sink"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Exit codes.
const (
	exitOK     = 0
	exitOutput = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one batch and returns the process exit code. Per-report
// failures are reported but do not change the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprint(stdout, config.Usage())
		return exitOK
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, config.Usage())
		return exitConfig
	}

	logging.Setup(cfg.LoggingConfig(stderr))
	logger := logging.NewLogger("cli")

	reportNos, err := cfg.ReportNos()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Start(cfg.MetricsAddr, log.Logger)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitConfig
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	c, err := client.New(cfg.ClientConfig())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	defer c.Close()

	runCfg := batch.DefaultConfig()
	runCfg.MaxConcurrency = cfg.Parallel

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			fmt.Fprintf(stderr, "Error: failed to connect to Redis at %s: %v\n", cfg.RedisAddr, err)
			return exitConfig
		}

		limCfg := admission.DefaultConfig(cfg.Parallel)
		limCfg.Key = cfg.AdmissionKey
		limiter, err := admission.NewLimiter(redisClient, limCfg, log.Logger)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitConfig
		}
		runCfg.Gate = limiter
		logger.Info().Str("key", limiter.Key()).Int("limit", cfg.Parallel).Msg("Sharing parallel limit through Redis")
	}

	out, err := openSink(ctx, cfg, stdout)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open output")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitOutput
	}

	fmt.Fprintf(stderr, "Total no of reports to be read: %d\n", len(reportNos))

	result := batch.NewRunner(c, runCfg).Run(ctx, reportNos)

	fmt.Fprintf(stderr, "Total no of reports extracted successfully: %d\n", len(result.Successes()))
	fmt.Fprintf(stderr, "Failed to extract reports: %s\n", strings.Join(result.FailedReportNos(), ", "))

	if err := writeOutput(ctx, out, result.Records()); err != nil {
		logger.Error().Err(err).Msg("Failed to write reports")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitOutput
	}

	return exitOK
}

// writeTimeout bounds the final sink write once the run may have been interrupted.
const writeTimeout = 30 * time.Second

// writeOutput writes the fetched records and closes the sink. The write
// ignores cancellation of ctx so an interrupted run still keeps its records.
func writeOutput(ctx context.Context, out sink.Sink, records []report.Record) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	_, writeErr := out.Write(writeCtx, records)
	return errors.Join(writeErr, out.Close())
}

// openSink picks the single output artifact of the run.
func openSink(ctx context.Context, cfg *config.Config, stdout io.Writer) (sink.Sink, error) {
	switch {
	case cfg.PGDSN != "":
		return sink.NewPostgres(ctx, sink.PostgresConfig{
			DSN:      cfg.PGDSN,
			Table:    cfg.PGTable,
			MaxConns: 2,
		}, log.Logger)
	case cfg.OutputFile != "":
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("create output file: %w", err)
		}
		return sink.NewCSV(f), nil
	default:
		// Hide stdout's Close from the sink.
		return sink.NewJSON(struct{ io.Writer }{stdout}), nil
	}
}
