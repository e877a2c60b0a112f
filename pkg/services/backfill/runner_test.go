package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/sumocost/pkg/models/domain"
)

// dateFailingServices fails one named service on one specific date only.
func dateFailingServices(failDate string) []Service {
	fetch := func(from time.Time) ([]domain.BillingRecord, error) {
		if from.Format(dateLayout) == failDate {
			return nil, errors.New("search job failed")
		}
		return oneRecord(""), nil
	}
	return []Service{
		{
			Name: "metrics",
			Current: func(_ context.Context) ([]domain.BillingRecord, error) {
				return oneRecord(""), nil
			},
			ForDate: func(_ context.Context, from, _ time.Time) ([]domain.BillingRecord, error) {
				return fetch(from)
			},
		},
		{
			Name: "traces",
			Current: func(_ context.Context) ([]domain.BillingRecord, error) {
				return oneRecord(""), nil
			},
			ForDate: func(_ context.Context, _, _ time.Time) ([]domain.BillingRecord, error) {
				return oneRecord(""), nil
			},
		},
	}
}

func TestRunner_CommitsCleanDaysOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rng := mustRange(t, "2024-01-01", "2024-01-03")

	uploader := &fakeUploader{}
	processor := NewDayProcessor(dateFailingServices("2024-01-02"), uploader)
	state := NewState(rng, dir, false)

	summary, err := NewRunner(processor, state, false).Run(ctx, rng)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.DaysProcessed)
	assert.Equal(t, []string{"2024-01-02"}, summary.FailedDays())
	assert.Equal(t, []string{"2024-01-01", "2024-01-03"}, state.CompletedDays())
	assert.FileExists(t, state.Path(), "incomplete run keeps its state file")
}

func TestRunner_ResumeRetriesOnlyFailedDays(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rng := mustRange(t, "2024-01-01", "2024-01-03")

	// First run: day 2 fails.
	first := NewState(rng, dir, false)
	_, err := NewRunner(
		NewDayProcessor(dateFailingServices("2024-01-02"), &fakeUploader{}),
		first, false,
	).Run(ctx, rng)
	require.NoError(t, err)

	// Second run over the same range: everything succeeds, only day 2 runs.
	uploader := &fakeUploader{}
	second := NewState(rng, dir, false)
	summary, err := NewRunner(
		NewDayProcessor(dateFailingServices(""), uploader),
		second, false,
	).Run(ctx, rng)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DaysProcessed)
	assert.Empty(t, summary.FailedDays())
	// Two services, one pending day.
	assert.Len(t, uploader.calls, 2)
	assert.NoFileExists(t, second.Path(), "completed run cleans up its state file")
}

func TestRunner_AlreadyCompleteIsANoOp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rng := mustRange(t, "2024-01-01", "2024-01-02")

	seed := NewState(rng, dir, false)
	seed.CommitDay(ctx, "2024-01-01", cleanStats("2024-01-01"))
	seed.CommitDay(ctx, "2024-01-02", cleanStats("2024-01-02"))

	uploader := &fakeUploader{}
	state := NewState(rng, dir, false)
	summary, err := NewRunner(
		NewDayProcessor(dateFailingServices(""), uploader),
		state, false,
	).Run(ctx, rng)
	require.NoError(t, err)

	assert.Zero(t, summary.DaysProcessed)
	assert.Empty(t, uploader.calls)
	assert.NoFileExists(t, state.Path())
}

func TestRunner_InterruptSavesProgress(t *testing.T) {
	dir := t.TempDir()
	rng := mustRange(t, "2024-01-01", "2024-01-05")

	ctx, cancel := context.WithCancel(context.Background())
	uploader := &fakeUploader{}

	// Cancel after the second day has been committed.
	services := []Service{{
		Name: "metrics",
		Current: func(_ context.Context) ([]domain.BillingRecord, error) {
			return oneRecord(""), nil
		},
		ForDate: func(_ context.Context, from, _ time.Time) ([]domain.BillingRecord, error) {
			if from.Format(dateLayout) == "2024-01-02" {
				cancel()
			}
			return oneRecord(""), nil
		},
	}}

	state := NewState(rng, dir, false)
	summary, err := NewRunner(NewDayProcessor(services, uploader), state, false).Run(ctx, rng)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, summary.DaysProcessed)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, state.CompletedDays())
}
