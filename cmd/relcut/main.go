// Command relcut drives release preparation from the command line.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/relcut/relcut"
	"github.com/relcut/relcut/internal/changelog"
	"github.com/relcut/relcut/internal/config"
	"github.com/relcut/relcut/internal/githost"
	"github.com/relcut/relcut/internal/metadata"
	"github.com/relcut/relcut/internal/testexec"
	"github.com/relcut/relcut/internal/version"
)

var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "relcut",
		Short:         "Prepare and promote software releases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.DefaultPath, "path to the config file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(), newPlanCmd(), newRunsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relcut:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// requestFlags binds the shared release-request flags on cmd.
func requestFlags(cmd *cobra.Command, req *relcut.ReleaseRequest) {
	cmd.Flags().StringVar(&req.Version, "version", "", "version to release (required)")
	cmd.Flags().StringVar(&req.SourceBranch, "source", "", "branch the release is cut from")
	cmd.Flags().StringVar(&req.TargetBranch, "target", "", "branch the release merges into")
	cmd.Flags().BoolVar(&req.TrialRun, "trial", false, "keep the scratch branch instead of merging")
	cmd.Flags().BoolVar(&req.Nightly, "nightly", false, "mark the run as a nightly release")
	_ = cmd.MarkFlagRequired("version")
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}

// buildPlan assembles the release plan from the loaded configuration.
func buildPlan(cfg *config.Config) relcut.ReleasePlan {
	b := relcut.NewPlan().
		Host(&githost.ExecHost{Dir: cfg.Repo, Remote: cfg.Remote}).
		Versions(version.Parser{}).
		Metadata(&metadata.YAMLFile{
			Path: filepath.Join(cfg.Repo, cfg.MetadataFile),
			Key:  cfg.MetadataKey,
		}).
		Changelog(&changelog.FileTool{
			Dir: filepath.Join(cfg.Repo, cfg.ChangesDir),
		}).
		Tests(&testexec.CommandRunner{
			Dir:                cfg.Repo,
			UnitCommand:        cfg.UnitCommand,
			IntegrationCommand: cfg.IntegrationCommand,
			EnvSetupPath:       cfg.EnvSetupPath,
		}).
		UnitMatrix(cfg.UnitCells()...).
		IntegrationMatrix(cfg.IntegrationCells()...).
		EnvSetup(cfg.EnvSetupPath).
		Parallelism(cfg.Parallelism, cfg.FlakyParallelism)
	if policy := cfg.RetryPolicy(); policy != nil {
		b.PushRetry(*policy)
	}
	return b.MustBuild()
}

// newEngine builds an engine per configuration: SQLite-journaled when a
// journal path is configured, in-memory otherwise.
func newEngine(cfg *config.Config, logger *slog.Logger) (relcut.Engine, func(), error) {
	plan := buildPlan(cfg)
	obs := relcut.NewLoggingObserver(logger)

	if cfg.Journal == "" {
		return relcut.NewInMemoryEngineWithObserver(plan, obs), func() {}, nil
	}

	db, err := sql.Open("sqlite", cfg.Journal)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	eng, err := relcut.NewSQLiteEngineWithObserver(db, plan, obs)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return eng, func() { db.Close() }, nil
}

func fillDefaults(req *relcut.ReleaseRequest, cfg *config.Config) {
	if req.SourceBranch == "" {
		req.SourceBranch = cfg.SourceBranch
	}
	if req.TargetBranch == "" {
		req.TargetBranch = cfg.TargetBranch
	}
}

func newRunCmd() *cobra.Command {
	var req relcut.ReleaseRequest
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a release run end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fillDefaults(&req, cfg)

			logger := newLogger()
			eng, closeEng, err := newEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer closeEng()

			run, err := eng.Prepare(cmd.Context(), req)
			if run != nil {
				printRun(cmd, run)
			}
			return err
		},
	}
	requestFlags(cmd, &req)
	return cmd
}

func newPlanCmd() *cobra.Command {
	var req relcut.ReleaseRequest
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Report what a run would do, without side effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fillDefaults(&req, cfg)

			eng, closeEng, err := newEngine(cfg, newLogger())
			if err != nil {
				return err
			}
			defer closeEng()

			decision, err := eng.Plan(cmd.Context(), req)
			if err != nil {
				return err
			}
			printDecision(cmd, req, decision)
			return nil
		},
	}
	requestFlags(cmd, &req)
	return cmd
}

func newRunsCmd() *cobra.Command {
	var flagState string
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List journaled runs, or show one run with its events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Journal == "" {
				return fmt.Errorf("no journal configured; set journal in %s", flagConfig)
			}

			db, err := sql.Open("sqlite", cfg.Journal)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer db.Close()

			journal, err := relcut.NewSQLiteJournal(db)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				return showRun(cmd, journal, args[0])
			}

			runs, err := journal.Runs(cmd.Context(), relcut.RunListOptions{
				State: relcut.State(flagState),
			})
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s  %s  %s\n",
					run.ID, run.State, run.Request.Version, run.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagState, "state", "", "only list runs in this state")
	return cmd
}

func showRun(cmd *cobra.Command, journal *relcut.Journal, id string) error {
	run, err := journal.Run(cmd.Context(), id)
	if err != nil {
		return err
	}
	printRun(cmd, run)

	events, err := journal.Events(cmd.Context(), id)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s  %-18s  %s\n",
			ev.At.Format("15:04:05"), ev.Type, ev.Detail)
	}
	return nil
}

func printRun(cmd *cobra.Command, run *relcut.ReleaseRun) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s\n", run.ID, run.State)
	if run.Scratch.Created {
		fmt.Fprintf(out, "  branch:    %s\n", run.Scratch.Name)
	}
	if run.Outcome.FinalCommitSHA != "" {
		fmt.Fprintf(out, "  commit:    %s\n", run.Outcome.FinalCommitSHA)
	}
	if run.Outcome.ChangelogPath != "" {
		fmt.Fprintf(out, "  changelog: %s\n", run.Outcome.ChangelogPath)
	}
	for _, f := range run.FlakyFailures {
		fmt.Fprintf(out, "  flaky failure: %s\n", f.Name)
	}
	if run.Err != nil {
		fmt.Fprintf(out, "  error:     %v\n", run.Err)
	}
}

func printDecision(cmd *cobra.Command, req relcut.ReleaseRequest, d *relcut.ReleaseDecision) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version %s: current=%v (repository has %s)\n",
		req.Version, d.VersionAudit.IsCurrent, d.VersionAudit.Current)
	fmt.Fprintf(out, "changelog %s: exists=%v\n", d.ChangelogAudit.Path, d.ChangelogAudit.Exists)
	if d.NeedsBranch {
		fmt.Fprintf(out, "would create prep-release/%s/%s_<run-id>\n", d.BranchQualifier, req.Version)
	} else {
		fmt.Fprintln(out, "nothing to do; run would resolve at the requested commit")
	}
}
