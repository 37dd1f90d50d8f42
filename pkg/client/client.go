// Package client provides the two-stage GIA report client: it resolves the
// encrypted report token from the public lookup page and then fetches and
// normalizes the report XML.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/gia-report-checker/pkg/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for report client operations.
var (
	giaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gia_requests_total",
		Help: "Total GIA requests by stage and status",
	}, []string{"stage", "status"})

	giaRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gia_request_duration_seconds",
		Help:    "GIA request duration in seconds by stage",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	giaErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gia_errors_total",
		Help: "Total failed report checks by reason",
	}, []string{"reason"})
)

// Stage names used in logs and metric labels.
const (
	StageLookup = "lookup"
	StageData   = "data"
)

// Default endpoints of the GIA report check.
const (
	DefaultLookupURL = "https://www.gia.edu/report-check"
	DefaultDataURL   = "https://www.gia.edu/otmm_wcs_int/loadXML.jsp"
)

// Client checks GIA reports.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// LookupURL is the report-check page; queried with ?reportno=<id>
	LookupURL string

	// DataURL is the XML endpoint; queried with ?ReportNumber=<token>
	DataURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout per HTTP request
	Timeout time.Duration
}

// DefaultConfig returns the configuration for the public GIA site.
func DefaultConfig(userAgent string) Config {
	return Config{
		LookupURL: DefaultLookupURL,
		DataURL:   DefaultDataURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// New creates a new report client.
func New(cfg Config) (*Client, error) {
	if err := validateEndpoint("lookup url", cfg.LookupURL); err != nil {
		return nil, err
	}
	if err := validateEndpoint("data url", cfg.DataURL); err != nil {
		return nil, err
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "gia-client").Logger(),
	}, nil
}

func validateEndpoint(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q is not absolute", name, raw)
	}
	return nil
}

// FetchReport resolves the token for reportNo and returns the normalized report.
// Every failure is a *ReportError; nothing is retried.
func (c *Client) FetchReport(ctx context.Context, reportNo string) (report.Record, error) {
	token, err := c.resolveToken(ctx, reportNo)
	if err != nil {
		return nil, c.fail(err)
	}

	raw, err := c.fetchDetail(ctx, reportNo, token)
	if err != nil {
		return nil, c.fail(err)
	}

	rec, err := report.Normalize(raw)
	if err != nil {
		return nil, c.fail(newReportError(reportNo, ReasonExtractionFailed, 0, err))
	}
	return rec, nil
}

// resolveToken performs stage 1: the lookup page holding #encryptedString.
func (c *Client) resolveToken(ctx context.Context, reportNo string) (string, error) {
	resp, err := c.get(ctx, StageLookup, c.config.LookupURL, "reportno", reportNo)
	if err != nil {
		return "", newReportError(reportNo, ReasonNetwork, 0, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return "", newReportError(reportNo, ReasonBlocked, resp.StatusCode, nil)
	case resp.StatusCode != http.StatusOK:
		return "", newReportError(reportNo, ReasonFetchFailed, resp.StatusCode, nil)
	}

	token, err := parseToken(resp.Body)
	if err != nil {
		return "", newReportError(reportNo, ReasonParseFailed, resp.StatusCode, err)
	}

	c.logger.Debug().
		Str("report_no", reportNo).
		Msg("Resolved report token")
	return token, nil
}

// fetchDetail performs stage 2: the report XML for a resolved token.
func (c *Client) fetchDetail(ctx context.Context, reportNo, token string) (map[string]string, error) {
	resp, err := c.get(ctx, StageData, c.config.DataURL, "ReportNumber", token)
	if err != nil {
		return nil, newReportError(reportNo, ReasonNetwork, 0, err)
	}
	defer resp.Body.Close()

	raw, err := parseDetail(resp.Body)
	if err != nil {
		if errors.Is(err, errDetailEmpty) {
			return nil, newReportError(reportNo, ReasonExtractionFailed, resp.StatusCode, err)
		}
		return nil, newReportError(reportNo, ReasonParseFailed, resp.StatusCode, err)
	}
	return raw, nil
}

// get issues a GET to endpoint with a single query parameter and records metrics.
func (c *Client) get(ctx context.Context, stage, endpoint, param, value string) (*http.Response, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", stage, err)
	}
	q := u.Query()
	q.Set(param, value)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug().
		Str("stage", stage).
		Str("url", u.String()).
		Msg("Executing GIA request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	giaRequestDuration.WithLabelValues(stage).Observe(time.Since(startTime).Seconds())
	if err != nil {
		giaRequestsTotal.WithLabelValues(stage, "network_error").Inc()
		return nil, err
	}

	giaRequestsTotal.WithLabelValues(stage, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

// fail records metrics for a failed check and passes err through.
func (c *Client) fail(err error) error {
	reason := ReasonOf(err)
	giaErrorsTotal.WithLabelValues(string(reason)).Inc()

	var reportErr *ReportError
	if errors.As(err, &reportErr) {
		c.logger.Debug().
			Str("report_no", reportErr.ReportNo).
			Str("reason", string(reason)).
			Int("status", reportErr.StatusCode).
			Err(reportErr.Err).
			Msg("Report check failed")
	}
	return err
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
