package backfill

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/de-tools/sumocost/pkg/models/domain"
)

// State is the durable ledger of which days of a backfill range completed
// with zero failures. It drives automatic resume: a day with any failed
// service is never committed, so re-invoking retries it. One process owns a
// range's file at a time; concurrent runs over the same range are not
// supported.
type State struct {
	rng  Range
	path string

	completed     map[string]struct{}
	lastCompleted string
	startTime     time.Time
	dryRun        bool
}

// stateFile is the on-disk shape. Bounds are kept so a file can never be
// replayed against a different range.
type stateFile struct {
	BackfillStart    string   `json:"backfill_start"`
	BackfillEnd      string   `json:"backfill_end"`
	CompletedDays    []string `json:"completed_days"`
	LastCompletedDay string   `json:"last_completed_day"`
	StartTime        *string  `json:"start_time"`
	IsDryRun         bool     `json:"is_dry_run"`
	LastUpdated      string   `json:"last_updated"`
}

// NewState derives the deterministic state file path for a range. Two ranges
// never collide; the same range always resumes from the same file.
func NewState(rng Range, dir string, dryRun bool) *State {
	name := fmt.Sprintf(".backfill_state_%s_to_%s.json",
		rng.Start.Format("20060102"), rng.End.Format("20060102"))
	return &State{
		rng:       rng,
		path:      filepath.Join(dir, name),
		completed: make(map[string]struct{}),
		dryRun:    dryRun,
	}
}

// Path returns the state file location.
func (s *State) Path() string { return s.path }

// Load hydrates prior progress if a file for this exact range exists.
// A missing, malformed, or range-mismatched file is never fatal: it logs a
// warning and the state stays fresh.
func (s *State) Load(ctx context.Context) bool {
	logger := zerolog.Ctx(ctx)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", s.path).Msg("could not read state file, starting fresh")
		}
		return false
	}

	var file stateFile
	if err := json.Unmarshal(raw, &file); err != nil {
		logger.Warn().Err(err).Str("path", s.path).Msg("invalid state file format, starting fresh")
		return false
	}

	storedStart, errStart := time.Parse(time.RFC3339, file.BackfillStart)
	storedEnd, errEnd := time.Parse(time.RFC3339, file.BackfillEnd)
	if errStart != nil || errEnd != nil {
		logger.Warn().Str("path", s.path).Msg("invalid state file bounds, starting fresh")
		return false
	}
	if !sameDay(storedStart, s.rng.Start) || !sameDay(storedEnd, s.rng.End) {
		logger.Warn().
			Str("stored_start", file.BackfillStart).
			Str("stored_end", file.BackfillEnd).
			Msg("state file does not match requested date range, ignoring")
		return false
	}

	for _, day := range file.CompletedDays {
		s.completed[day] = struct{}{}
	}
	s.lastCompleted = file.LastCompletedDay
	if file.StartTime != nil {
		if t, err := time.Parse(time.RFC3339, *file.StartTime); err == nil {
			s.startTime = t
		}
	}

	logger.Info().
		Int("completed_days", len(s.completed)).
		Str("last_completed", s.lastCompleted).
		Msg("loaded existing backfill state")
	return true
}

// CommitDay marks a day complete and persists, but only when every service
// of the day succeeded. Repeated calls with a failing day never sneak it
// into the completed set.
func (s *State) CommitDay(ctx context.Context, date string, stats *domain.DayStats) {
	logger := zerolog.Ctx(ctx)

	if stats.FailedServices > 0 {
		logger.Debug().
			Str("date", date).
			Int("failed_services", stats.FailedServices).
			Msg("day had failed services, not marking as completed")
		return
	}

	s.completed[date] = struct{}{}
	s.lastCompleted = date
	s.save(ctx)
}

// save persists the ledger. Dry runs never write, so they leave no resumable
// state behind.
func (s *State) save(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	if s.dryRun {
		logger.Debug().Msg("dry run: skipping state file save")
		return
	}

	file := stateFile{
		BackfillStart:    s.rng.Start.Format(time.RFC3339),
		BackfillEnd:      s.rng.End.Format(time.RFC3339),
		CompletedDays:    s.CompletedDays(),
		LastCompletedDay: s.lastCompleted,
		IsDryRun:         s.dryRun,
		LastUpdated:      time.Now().UTC().Format(time.RFC3339),
	}
	if !s.startTime.IsZero() {
		formatted := s.startTime.UTC().Format(time.RFC3339)
		file.StartTime = &formatted
	}

	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		logger.Warn().Err(err).Msg("failed to encode state file")
		return
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		// State writes degrade to a warning: the run continues, only resume
		// granularity suffers.
		logger.Warn().Err(err).Str("path", s.path).Msg("failed to save state file")
		return
	}
	logger.Debug().Str("path", s.path).Msg("state saved")
}

// ResumePoint returns the first day still to process: the day after the most
// recently completed one, or the range start when nothing completed yet. The
// second return is false when the whole range is behind us.
func (s *State) ResumePoint() (string, bool) {
	if s.lastCompleted == "" {
		return s.rng.Start.Format(dateLayout), true
	}
	last, err := time.ParseInLocation(dateLayout, s.lastCompleted, time.UTC)
	if err != nil {
		return s.rng.Start.Format(dateLayout), true
	}
	next := last.AddDate(0, 0, 1)
	if next.After(s.rng.End) {
		return "", false
	}
	return next.Format(dateLayout), true
}

// IsComplete reports whether every day of the range is in the completed set.
func (s *State) IsComplete() bool {
	if len(s.completed) == 0 {
		return false
	}
	for _, day := range s.rng.Dates() {
		if _, ok := s.completed[day.Format(dateLayout)]; !ok {
			return false
		}
	}
	return true
}

// Cleanup removes the state file once the range is complete. It never
// deletes early.
func (s *State) Cleanup(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	if !s.IsComplete() {
		return
	}
	if err := os.Remove(s.path); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", s.path).Msg("failed to remove state file")
		}
		return
	}
	logger.Info().Str("path", s.path).Msg("cleaned up state file")
}

// CompletedDays returns the completed set in date order.
func (s *State) CompletedDays() []string {
	days := make([]string, 0, len(s.completed))
	for day := range s.completed {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// Completed reports whether one specific day is done.
func (s *State) Completed(date string) bool {
	_, ok := s.completed[date]
	return ok
}

// SetStartTime records when this backfill first started, surviving resumes.
func (s *State) SetStartTime(t time.Time) {
	if s.startTime.IsZero() {
		s.startTime = t
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
