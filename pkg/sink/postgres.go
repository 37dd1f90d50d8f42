package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/gia-report-checker/pkg/report"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DefaultTable is the table records are inserted into.
const DefaultTable = "gia_reports"

// PostgresConfig holds Postgres sink configuration.
type PostgresConfig struct {
	DSN string

	// Table may be schema-qualified ("reports.gia_reports")
	Table string

	// MaxConns caps the pool (default 2)
	MaxConns int

	// BatchSize is the number of rows per round trip (default 200)
	BatchSize int

	// SimpleProtocol is required behind PgBouncer in transaction mode
	SimpleProtocol bool
}

// Postgres inserts records into a table keyed by report number.
// Rows already present are left untouched.
type Postgres struct {
	pool      *pgxpool.Pool
	table     string
	batchSize int
	logger    zerolog.Logger
}

// NewPostgres connects to Postgres and creates the table if needed.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	table, err := quoteTable(cfg.Table)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 2
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	if cfg.SimpleProtocol {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	s := &Postgres{
		pool:      pool,
		table:     table,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "sink").Str("table", table).Logger(),
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// quoteTable sanitizes a possibly schema-qualified table name.
func quoteTable(name string) (string, error) {
	if name == "" {
		name = DefaultTable
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// EnsureSchema creates the records table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		report_no  text PRIMARY KEY,
		fields     jsonb NOT NULL,
		fetched_at timestamptz NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Write inserts records in batches and returns the number of new rows.
// Records without a report number are skipped.
func (s *Postgres) Write(ctx context.Context, records []report.Record) (int, error) {
	total := 0
	for i := 0; i < len(records); i += s.batchSize {
		j := i + s.batchSize
		if j > len(records) {
			j = len(records)
		}

		b := &pgx.Batch{}
		count := 0
		for _, rec := range records[i:j] {
			reportNo := strings.TrimSpace(rec.ReportNo())
			if reportNo == "" {
				continue
			}
			fields, err := rec.MarshalJSON()
			if err != nil {
				return total, fmt.Errorf("encode record %s: %w", reportNo, err)
			}
			b.Queue(
				`INSERT INTO `+s.table+` (report_no, fields) VALUES ($1, $2)
				ON CONFLICT (report_no) DO NOTHING`,
				reportNo, string(fields),
			)
			count++
		}

		br := s.pool.SendBatch(ctx, b)
		for k := 0; k < count; k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, fmt.Errorf("insert records: %w", err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, fmt.Errorf("insert records: %w", err)
		}
	}

	s.logger.Info().
		Int("records", len(records)).
		Int("inserted", total).
		Msg("Records written")
	return total, nil
}

// Count returns the number of rows in the table.
func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+s.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
