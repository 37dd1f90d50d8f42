package batch

import (
	"time"

	"github.com/Sternrassler/gia-report-checker/pkg/report"
)

// Outcome is the result of checking one entry of the input list.
type Outcome struct {
	// Index is the position of the report number in the input list
	Index int

	ReportNo string

	// Record is set on success
	Record report.Record

	// Err is set on failure, usually a *client.ReportError
	Err error
}

// Succeeded reports whether the check produced a record.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Result holds the outcomes of a batch run in input order.
type Result struct {
	Outcomes []Outcome
	Duration time.Duration
}

// Successes returns the successful outcomes.
func (r *Result) Successes() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// Failures returns the failed outcomes.
func (r *Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// Records returns the records of all successful outcomes.
func (r *Result) Records() []report.Record {
	records := make([]report.Record, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			records = append(records, o.Record)
		}
	}
	return records
}

// FailedReportNos returns the report numbers whose check failed.
func (r *Result) FailedReportNos() []string {
	var nos []string
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			nos = append(nos, o.ReportNo)
		}
	}
	return nos
}
