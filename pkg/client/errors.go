package client

import (
	"errors"
	"fmt"
)

// Reason classifies why a single report could not be checked.
type Reason string

const (
	// ReasonBlocked means the lookup page answered 403.
	ReasonBlocked Reason = "blocked"

	// ReasonFetchFailed means the lookup page answered neither 200 nor 403.
	ReasonFetchFailed Reason = "fetch_failed"

	// ReasonParseFailed means the lookup HTML or the report XML lacked the expected structure.
	ReasonParseFailed Reason = "parse_failed"

	// ReasonExtractionFailed means the report XML was well-formed but held no usable record.
	ReasonExtractionFailed Reason = "extraction_failed"

	// ReasonNetwork means the request never produced a response (dial, timeout, cancellation).
	ReasonNetwork Reason = "network"
)

// Sentinel errors matched by errors.Is against a *ReportError of the same Reason.
var (
	ErrBlocked          = errors.New("report blocked")
	ErrFetchFailed      = errors.New("report fetch failed")
	ErrParseFailed      = errors.New("report parse failed")
	ErrExtractionFailed = errors.New("report extraction failed")
	ErrNetwork          = errors.New("report request failed")
)

var reasonSentinels = map[Reason]error{
	ReasonBlocked:          ErrBlocked,
	ReasonFetchFailed:      ErrFetchFailed,
	ReasonParseFailed:      ErrParseFailed,
	ReasonExtractionFailed: ErrExtractionFailed,
	ReasonNetwork:          ErrNetwork,
}

// ReportError is the error returned for a report that could not be checked.
type ReportError struct {
	ReportNo   string
	Reason     Reason
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	var msg string
	switch e.Reason {
	case ReasonBlocked:
		msg = fmt.Sprintf("%s: Report Blocked", e.ReportNo)
	case ReasonFetchFailed:
		msg = fmt.Sprintf("%s: Unable to fetch report. Http Status: %d", e.ReportNo, e.StatusCode)
	case ReasonParseFailed:
		msg = fmt.Sprintf("%s: Failed to parse report", e.ReportNo)
	case ReasonNetwork:
		msg = fmt.Sprintf("%s: Request failed", e.ReportNo)
	default:
		msg = fmt.Sprintf("%s: Failed to extract report", e.ReportNo)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ReportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel error of e's Reason.
func (e *ReportError) Is(target error) bool {
	sentinel, ok := reasonSentinels[e.Reason]
	return ok && sentinel == target
}

// ReasonOf returns the Reason carried by err, or "" if err is not a *ReportError.
func ReasonOf(err error) Reason {
	var reportErr *ReportError
	if errors.As(err, &reportErr) {
		return reportErr.Reason
	}
	return ""
}

func newReportError(reportNo string, reason Reason, status int, err error) *ReportError {
	return &ReportError{
		ReportNo:   reportNo,
		Reason:     reason,
		StatusCode: status,
		Err:        err,
	}
}
