package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/sumocost/pkg/runtime/terminal/export"
	"github.com/de-tools/sumocost/pkg/services/backfill"
	"github.com/de-tools/sumocost/pkg/services/config"
)

type RunCmd struct {
	configPath  string
	days        int
	dryRun      bool
	artifactDir string
	verbose     bool
	quiet       bool
	reporter    *export.Reporter
}

func NewRunCmd(reporter *export.Reporter) *cobra.Command {
	rc := &RunCmd{reporter: reporter}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export the current usage window to CloudZero",
		RunE:  rc.run,
	}

	cmd.Flags().StringVarP(&rc.configPath, "config", "c", "", "Path to a config file (environment variables are used when omitted)")
	cmd.Flags().IntVar(&rc.days, "days", 0, "Cover the last N days instead of the standard window")
	cmd.Flags().BoolVar(&rc.dryRun, "dry-run", false, "Write payloads to disk instead of uploading")
	cmd.Flags().StringVar(&rc.artifactDir, "artifact-dir", "", "Directory for dry-run payloads (default \"dry_run\")")
	cmd.Flags().BoolVarP(&rc.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().BoolVarP(&rc.quiet, "quiet", "q", false, "Only log warnings and errors")

	return cmd
}

func (rc *RunCmd) run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	logger := newLogger(rc.verbose, rc.quiet)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return err
	}

	orchestrator := backfill.NewOrchestrator(cfg, backfill.OrchestratorOptions{
		ArtifactDir: rc.artifactDir,
	})
	summary, err := orchestrator.Run(ctx, backfill.RunOptions{
		Days:   rc.days,
		DryRun: rc.dryRun,
	})
	if err != nil {
		return err
	}

	// Service failures are reported in the summary and retried by a later
	// run; they never fail the process.
	return rc.reporter.Handle(summary)
}

func newLogger(verbose, quiet bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if quiet {
		level = zerolog.WarnLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
}
