package backfill

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/models/domain"
)

// Runner drives one backfill: resume detection, the day loop, state commits,
// and the final report.
type Runner struct {
	processor *DayProcessor
	state     *State
	dryRun    bool
}

func NewRunner(processor *DayProcessor, state *State, dryRun bool) *Runner {
	return &Runner{processor: processor, state: state, dryRun: dryRun}
}

// Run processes every day of the range that is not already committed. It
// returns the run summary and a context error if the run was interrupted;
// per-day failures are reported in the summary, not as an error, because the
// state ledger already schedules them for the next invocation.
func (r *Runner) Run(ctx context.Context, rng Range) (*domain.RunSummary, error) {
	logger := zerolog.Ctx(ctx)

	if rng.Days() > WarnRangeDays {
		logger.Warn().
			Int("days", rng.Days()).
			Msg("large backfill range, consider splitting into smaller runs")
	}

	resumed := r.state.Load(ctx)
	if r.state.IsComplete() {
		logger.Info().Msg("backfill already complete, nothing to do")
		r.state.Cleanup(ctx)
		return &domain.RunSummary{}, nil
	}

	pending := r.pendingDates(rng)
	skipped := rng.Days() - len(pending)
	if resumed && skipped > 0 {
		logger.Info().
			Int("skipped_days", skipped).
			Int("remaining_days", len(pending)).
			Msg("resuming backfill")
	}

	r.state.SetStartTime(time.Now().UTC())
	progress := NewProgress(rng.Days(), skipped)

	runLogger := logger.With().Str("run_id", progress.RunID()).Logger()
	runCtx := runLogger.WithContext(ctx)

	if r.dryRun {
		runLogger.Info().Msg("dry run: no uploads or state changes will be made")
	}

	for _, day := range pending {
		if err := runCtx.Err(); err != nil {
			runLogger.Warn().Msg("backfill interrupted, progress is saved")
			progress.LogSummary(runCtx)
			return progress.Summary(), err
		}

		date := day.Format(dateLayout)
		progress.StartDay(runCtx, date)
		stats := r.processor.ProcessDate(runCtx, day)
		progress.CompleteDay(runCtx, stats)
		r.state.CommitDay(runCtx, date, stats)
	}

	progress.LogSummary(runCtx)
	summary := progress.Summary()

	if r.state.IsComplete() {
		r.state.Cleanup(runCtx)
	} else if !r.dryRun && summary.FailedServices > 0 {
		runLogger.Info().
			Str("state_file", r.state.Path()).
			Msg("re-run the same date range to retry failed days")
	}
	return summary, nil
}

// pendingDates filters the range down to days not yet committed. Committed
// days can be non-contiguous after a mid-range failure, so this checks each
// day rather than cutting at the resume point.
func (r *Runner) pendingDates(rng Range) []time.Time {
	var pending []time.Time
	for _, day := range rng.Dates() {
		if r.state.Completed(day.Format(dateLayout)) {
			continue
		}
		pending = append(pending, day)
	}
	return pending
}
