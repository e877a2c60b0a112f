package api

import (
	"time"

	"github.com/de-tools/sumocost/pkg/models/domain"
)

// RunRequest is the body of a run trigger. All fields are optional: an empty
// request processes the standard rolling window.
type RunRequest struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Days      int    `json:"days,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

type ServiceTotals struct {
	Records   int `json:"records"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

type RunSummary struct {
	RunID              string                   `json:"run_id"`
	DaysProcessed      int                      `json:"days_processed"`
	TotalRecords       int                      `json:"total_records"`
	Duration           string                   `json:"duration"`
	SuccessfulServices int                      `json:"successful_services"`
	FailedServices     int                      `json:"failed_services"`
	FailedDays         []string                 `json:"failed_days,omitempty"`
	Services           map[string]ServiceTotals `json:"services"`
}

// Run is the lifecycle view of one triggered invocation.
type Run struct {
	ID         string      `json:"id"`
	State      string      `json:"state"`
	Request    RunRequest  `json:"request"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
}

const (
	RunStateRunning   = "running"
	RunStateCompleted = "completed"
	RunStateFailed    = "failed"
)

// NewRunSummary maps the internal run outcome to its API shape.
func NewRunSummary(summary *domain.RunSummary) *RunSummary {
	out := &RunSummary{
		RunID:              summary.RunID,
		DaysProcessed:      summary.DaysProcessed,
		TotalRecords:       summary.TotalRecords,
		Duration:           summary.TotalDuration.Round(time.Second).String(),
		SuccessfulServices: summary.SuccessfulServices,
		FailedServices:     summary.FailedServices,
		FailedDays:         summary.FailedDays(),
		Services:           make(map[string]ServiceTotals, len(summary.ServiceBreakdown)),
	}
	for name, totals := range summary.ServiceBreakdown {
		out.Services[name] = ServiceTotals{
			Records:   totals.Records,
			Successes: totals.Successes,
			Failures:  totals.Failures,
		}
	}
	return out
}
