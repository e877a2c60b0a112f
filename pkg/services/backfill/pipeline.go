package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/de-tools/sumocost/pkg/models/domain"
	"github.com/de-tools/sumocost/pkg/services/config"
	"github.com/de-tools/sumocost/pkg/services/retry"
	"github.com/de-tools/sumocost/pkg/services/upload"
	"github.com/de-tools/sumocost/pkg/store/cloudzero"
	"github.com/de-tools/sumocost/pkg/store/sumologic"
)

// RunOptions selects what a single invocation covers. With no dates and no
// day count the run covers the standard rolling window.
type RunOptions struct {
	StartDate string
	EndDate   string
	Days      int
	DryRun    bool
}

// Orchestrator assembles the extraction and upload pipeline from
// configuration and runs it. It is safe to build once and invoke per run.
type Orchestrator struct {
	cfg         config.Config
	stateDir    string
	artifactDir string
}

type OrchestratorOptions struct {
	// StateDir is where backfill state files live. Defaults to the working
	// directory.
	StateDir string
	// ArtifactDir is where dry-run payloads land. Defaults to "dry_run".
	ArtifactDir string
}

func NewOrchestrator(cfg config.Config, opts OrchestratorOptions) *Orchestrator {
	if opts.StateDir == "" {
		opts.StateDir = "."
	}
	if opts.ArtifactDir == "" {
		opts.ArtifactDir = "dry_run"
	}
	return &Orchestrator{cfg: cfg, stateDir: opts.StateDir, artifactDir: opts.ArtifactDir}
}

// Run executes one invocation. Explicit dates win over a day count; with
// neither it processes the current rolling window as a single day.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*domain.RunSummary, error) {
	rng, ranged, err := resolveRange(opts)
	if err != nil {
		return nil, err
	}

	processor, err := o.buildProcessor(opts.DryRun)
	if err != nil {
		return nil, err
	}

	if !ranged {
		progress := NewProgress(1, 0)
		date := time.Now().UTC().AddDate(0, 0, -1).Format(dateLayout)
		progress.StartDay(ctx, date)
		stats := processor.ProcessCurrent(ctx)
		progress.CompleteDay(ctx, stats)
		progress.LogSummary(ctx)
		return progress.Summary(), nil
	}

	state := NewState(rng, o.stateDir, opts.DryRun)
	return NewRunner(processor, state, opts.DryRun).Run(ctx, rng)
}

func (o *Orchestrator) buildProcessor(dryRun bool) (*DayProcessor, error) {
	policy := retry.NewPolicy()
	sumo, err := sumologic.NewClient(o.cfg, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create sumo logic client: %w", err)
	}
	dispatcher := upload.NewDispatcher(cloudzero.NewClient(o.cfg, policy), upload.Options{
		DryRun:      dryRun,
		ArtifactDir: o.artifactDir,
	})
	return NewDayProcessor(DefaultServices(sumo), dispatcher), nil
}

func resolveRange(opts RunOptions) (Range, bool, error) {
	switch {
	case opts.StartDate != "" || opts.EndDate != "":
		if opts.Days > 0 {
			return Range{}, false, fmt.Errorf("days cannot be combined with explicit dates")
		}
		rng, err := NewRange(opts.StartDate, opts.EndDate)
		if err != nil {
			return Range{}, false, err
		}
		return rng, true, nil
	case opts.Days > 0:
		rng, err := LastNDays(opts.Days)
		if err != nil {
			return Range{}, false, err
		}
		return rng, true, nil
	default:
		return Range{}, false, nil
	}
}
