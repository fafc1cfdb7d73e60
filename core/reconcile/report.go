package reconcile

import "time"

// Exit codes of a finished run. A fatal error before any mutation exits with
// ExitFatal.
const (
	ExitSuccess     = 0
	ExitFatal       = 1
	ExitUsersFailed = 2
)

// NewRunReport assembles the report of a run from its plan and outcomes.
// Rejected source records are reported as failed canonicalization entries.
func NewRunReport(runID string, started, finished time.Time, features Features, plan *ReconcilePlan, outcomes []Outcome) *RunReport {
	report := &RunReport{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		DryRun:     features.DryRun,
		Plan:       plan.Summary,
		Outcomes:   make([]Outcome, 0, len(outcomes)+len(plan.Population.Errors)),
	}

	for _, cerr := range plan.Population.Errors {
		report.Outcomes = append(report.Outcomes, Outcome{
			ExternalID: cerr.ExternalID,
			Status:     StatusFailed,
			Kind:       KindCanonicalization,
			Reason:     cerr.Error(),
		})
		report.Summary.Invalid++
	}

	report.Summary.Unchanged = plan.Summary.NoOps
	for _, o := range outcomes {
		report.Outcomes = append(report.Outcomes, o)
		switch o.Status {
		case StatusFailed:
			report.Summary.Failed++
			if o.Kind.Retryable() {
				report.Summary.Retryable++
			}
		case StatusSkipped:
			report.Summary.Skipped++
		case StatusSucceeded:
			switch o.Action {
			case ActionCreate:
				report.Summary.Created++
			case ActionUpdate:
				report.Summary.Updated++
			case ActionDisable:
				report.Summary.Disabled++
			}
		}
	}

	return report
}

// HasFailures reports whether any user failed, including rejected records.
func (r *RunReport) HasFailures() bool {
	return r.Summary.Failed > 0 || r.Summary.Invalid > 0
}

// ExitCode maps the report onto a process exit status.
func (r *RunReport) ExitCode() int {
	if r.HasFailures() {
		return ExitUsersFailed
	}
	return ExitSuccess
}

// Status returns a short textual run status.
func (r *RunReport) Status() string {
	if r.HasFailures() {
		return "partial_failure"
	}
	return "success"
}

// Failures returns the failed outcomes.
func (r *RunReport) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}
