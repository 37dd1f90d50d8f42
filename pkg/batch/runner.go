package batch

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/gia-report-checker/pkg/client"
	"github.com/Sternrassler/gia-report-checker/pkg/report"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for batch runs.
var (
	giaBatchInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gia_batch_inflight",
		Help: "Number of report checks currently past admission",
	})

	giaBatchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gia_batch_outcomes_total",
		Help: "Total report check outcomes by result",
	}, []string{"result"})
)

// Config holds batch runner configuration
type Config struct {
	// MaxConcurrency is the maximum number of report checks in flight (default 2)
	MaxConcurrency int

	// Gate optionally bounds checks across processes in addition to MaxConcurrency
	Gate Gate

	// Logger receives progress notices (default: global logger)
	Logger *zerolog.Logger
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 2,
	}
}

// Fetcher checks a single report. *client.Client implements it.
type Fetcher interface {
	FetchReport(ctx context.Context, reportNo string) (report.Record, error)
}

// Gate is an additional admission bound around every fetch.
type Gate interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Runner checks batches of reports
type Runner struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// NewRunner creates a new batch runner
func NewRunner(fetcher Fetcher, config Config) *Runner {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}

	logger := log.With().Str("component", "batch").Logger()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "batch").Logger()
	}

	return &Runner{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

type job struct {
	index    int
	reportNo string
}

// Run checks every report number, at most MaxConcurrency at a time, and
// returns one Outcome per input entry in input order. A failed check never
// stops the others; duplicates are checked independently.
func (r *Runner) Run(ctx context.Context, reportNos []string) *Result {
	start := time.Now()
	result := &Result{Outcomes: make([]Outcome, len(reportNos))}
	if len(reportNos) == 0 {
		return result
	}

	workers := r.config.MaxConcurrency
	if workers > len(reportNos) {
		workers = len(reportNos)
	}

	logger := r.logger.With().Str("run_id", uuid.NewString()).Logger()
	logger.Info().
		Int("reports", len(reportNos)).
		Int("workers", workers).
		Msg("Starting batch")

	jobs := make(chan job, len(reportNos))
	for i, no := range reportNos {
		jobs <- job{index: i, reportNo: no}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.worker(ctx, logger, jobs, result.Outcomes, &wg, i)
	}
	wg.Wait()

	result.Duration = time.Since(start)

	logger.Info().
		Int("succeeded", len(result.Successes())).
		Int("failed", len(result.Failures())).
		Dur("duration", result.Duration).
		Msg("Batch complete")

	return result
}

// worker drains the job queue. Each job writes only its own slot of outcomes.
func (r *Runner) worker(ctx context.Context, logger zerolog.Logger, jobs <-chan job, outcomes []Outcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for j := range jobs {
		outcomes[j.index] = r.check(ctx, logger, j, workerID)
		processed++
	}

	logger.Debug().
		Int("worker_id", workerID).
		Int("reports_processed", processed).
		Msg("Worker completed")
}

func (r *Runner) check(ctx context.Context, logger zerolog.Logger, j job, workerID int) Outcome {
	if r.config.Gate != nil {
		if err := r.config.Gate.Acquire(ctx); err != nil {
			logger.Warn().
				Err(err).
				Str("report_no", j.reportNo).
				Msg("Admission gate unavailable, continuing with local bound")
		} else {
			defer func() {
				if err := r.config.Gate.Release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn().Err(err).Str("report_no", j.reportNo).Msg("Admission gate release failed")
				}
			}()
		}
	}

	giaBatchInflight.Inc()
	defer giaBatchInflight.Dec()

	logger.Info().
		Str("report_no", j.reportNo).
		Int("worker_id", workerID).
		Msg("Checking report")

	rec, err := r.fetcher.FetchReport(ctx, j.reportNo)
	outcome := Outcome{Index: j.index, ReportNo: j.reportNo, Record: rec, Err: err}

	if err != nil {
		giaBatchOutcomesTotal.WithLabelValues("failure").Inc()
		logger.Warn().
			Err(err).
			Str("report_no", j.reportNo).
			Str("reason", string(client.ReasonOf(err))).
			Msg("Failed to fetch report")
		return outcome
	}

	giaBatchOutcomesTotal.WithLabelValues("success").Inc()
	logger.Info().
		Str("report_no", j.reportNo).
		Msg("Fetched report")
	return outcome
}
