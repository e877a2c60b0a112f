package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/models/domain"
)

// Progress tracks a run day by day and produces the final summary. Day
// numbering accounts for days a resume skipped, so a resumed run reports
// "day 12/31" rather than restarting the count.
type Progress struct {
	runID     string
	totalDays int
	skipped   int
	started   time.Time
	dayStart  time.Time
	days      []*domain.DayStats
}

func NewProgress(totalDays, skippedDays int) *Progress {
	return &Progress{
		runID:     uuid.NewString(),
		totalDays: totalDays,
		skipped:   skippedDays,
		started:   time.Now().UTC(),
	}
}

// RunID identifies this invocation in logs and artifacts.
func (p *Progress) RunID() string { return p.runID }

// StartDay logs the day header with position and, once at least one day has
// finished, an ETA extrapolated from the average day duration so far.
func (p *Progress) StartDay(ctx context.Context, date string) {
	logger := zerolog.Ctx(ctx)
	p.dayStart = time.Now().UTC()

	position := p.skipped + len(p.days) + 1
	event := logger.Info().
		Str("date", date).
		Str("day", fmt.Sprintf("%d/%d", position, p.totalDays))

	if done := len(p.days); done > 0 {
		elapsed := time.Since(p.started)
		remaining := p.totalDays - position + 1
		eta := time.Duration(int64(elapsed) / int64(done) * int64(remaining))
		event = event.Str("eta", formatDuration(eta))
	}
	event.Msg("processing day")
}

// CompleteDay records the day's stats and emits the one-line day summary.
func (p *Progress) CompleteDay(ctx context.Context, stats *domain.DayStats) {
	logger := zerolog.Ctx(ctx)
	stats.Duration = time.Since(p.dayStart)
	p.days = append(p.days, stats)

	event := logger.Info().
		Str("date", stats.Date).
		Int("records", stats.TotalRecords()).
		Int("succeeded", stats.SuccessfulServices).
		Str("duration", formatDuration(stats.Duration))
	if stats.FailedServices > 0 {
		event = event.Int("failed", stats.FailedServices).Strs("failed_services", stats.Failed)
	}
	event.Msg("day complete")
}

// Summary aggregates everything processed so far into a RunSummary.
func (p *Progress) Summary() *domain.RunSummary {
	summary := &domain.RunSummary{
		RunID:            p.runID,
		DaysProcessed:    len(p.days),
		TotalDuration:    time.Since(p.started),
		ServiceBreakdown: make(map[string]domain.ServiceTotals, len(ServiceNames)),
		Days:             p.days,
	}

	for _, day := range p.days {
		summary.TotalRecords += day.TotalRecords()
		summary.SuccessfulServices += day.SuccessfulServices
		summary.FailedServices += day.FailedServices

		for _, name := range day.Succeeded {
			totals := summary.ServiceBreakdown[name]
			totals.Successes++
			totals.Records += day.Records[name]
			summary.ServiceBreakdown[name] = totals
		}
		for _, name := range day.Failed {
			totals := summary.ServiceBreakdown[name]
			totals.Failures++
			summary.ServiceBreakdown[name] = totals
		}
	}
	return summary
}

// LogSummary emits the end-of-run report: totals, per-service breakdown, and
// the list of days that need a retry.
func (p *Progress) LogSummary(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	summary := p.Summary()

	logger.Info().
		Str("run_id", summary.RunID).
		Int("days", summary.DaysProcessed).
		Int("records", summary.TotalRecords).
		Str("duration", formatDuration(summary.TotalDuration)).
		Msg("backfill summary")

	for _, name := range ServiceNames {
		totals, ok := summary.ServiceBreakdown[name]
		if !ok {
			continue
		}
		event := logger.Info().
			Str("service", name).
			Int("records", totals.Records).
			Int("days_succeeded", totals.Successes)
		if totals.Failures > 0 {
			event = event.Int("days_failed", totals.Failures)
		}
		event.Msg("service totals")
	}

	if failed := summary.FailedDays(); len(failed) > 0 {
		logger.Warn().
			Strs("dates", failed).
			Msg("days with failures will be retried on the next run")
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		return fmt.Sprintf("%dh %dm", h, m)
	}
}
