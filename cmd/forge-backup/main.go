// Command forge-backup runs policy-driven backups of GitHub-compatible
// forge repositories, gists, and release assets onto the local
// filesystem, either once or on a cron schedule (§6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/octohaul/forge-backup/internal/entity"
	"github.com/octohaul/forge-backup/internal/forge/pagecache"
	"github.com/octohaul/forge-backup/internal/history"
	"github.com/octohaul/forge-backup/internal/pipeline"
	"github.com/octohaul/forge-backup/internal/policy"
	"github.com/octohaul/forge-backup/internal/scheduler"
	"github.com/octohaul/forge-backup/internal/telemetry"
	"github.com/octohaul/forge-backup/internal/version"
	"github.com/octohaul/forge-backup/pkg/progress"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		configPath string
		historyDSN string
		verbose    bool
		quiet      bool
	)

	root := &cobra.Command{
		Use:           "forge-backup",
		Short:         "Policy-driven backup of GitHub-compatible forge repositories, gists, and release assets",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML policy file (required)")
	root.PersistentFlags().StringVar(&historyDSN, "history-dsn", "", "optional MySQL DSN for the durable run-history store")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "enable verbose debug logging")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress bars and spinners")

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, _ []string) error {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
		if configPath == "" {
			exitCode = 1
			return fmt.Errorf("--config is required")
		}
		code, err := mainRun(cmd.Context(), configPath, historyDSN, quiet)
		exitCode = code
		return err
	}

	root.SetArgs(args)
	ctx, cancel := signalContext()
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

// signalContext derives a cancellable context from SIGINT/SIGTERM, the
// process-level cancellation token every pipeline task observes (§5).
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx, stop
}

// mainRun loads and validates the config, then either runs once or drives
// the cron schedule, returning the §6 exit code.
func mainRun(ctx context.Context, configPath, historyDSN string, quiet bool) (int, error) {
	cfg, err := policy.Load(configPath)
	if err != nil {
		return 1, err
	}
	if err := cfg.Validate(); err != nil {
		return 1, err
	}

	var hist *history.Store
	if historyDSN != "" {
		hist, err = history.Open(ctx, historyDSN)
		if err != nil {
			logrus.Errorf("run-history store unavailable, continuing without it: %v", err)
		} else {
			defer hist.Close()
		}
	}

	tracer, shutdownTelemetry, err := telemetry.Setup(ctx)
	if err != nil {
		logrus.Errorf("telemetry setup failed, continuing without tracing: %v", err)
	} else {
		defer shutdownTelemetry(ctx)
	}

	cache, err := pagecache.New()
	if err != nil {
		logrus.Warnf("page cache unavailable, continuing without it: %v", err)
	} else {
		defer cache.Close()
	}

	runOnce := func(ctx context.Context) int {
		return runAll(ctx, cfg, cache, hist, tracer, quiet)
	}

	if cfg.Schedule == "" {
		return runOnce(ctx), nil
	}

	sched, err := scheduler.Parse(cfg.Schedule)
	if err != nil {
		return 1, err
	}
	logrus.Infof("scheduled run starting, next tick at %s", sched.Next(time.Now()))
	sched.Run(ctx, func(ctx context.Context) { runOnce(ctx) })
	if ctx.Err() != nil {
		return 130, nil
	}
	return 0, nil
}

// runAll binds and runs every policy concurrently, records run-history
// rows when a store is configured, and maps the worst policy outcome to
// the §6 exit code.
func runAll(ctx context.Context, cfg *policy.Config, cache *pagecache.Cache, hist *history.Store, tracer oteltrace.Tracer, quiet bool) int {
	runStarted := time.Now()
	downloads := progress.NewDownloads(quiet)

	indicator := progress.NewIndicators("backing up entities", "backup run complete", 0, quiet)
	runCtx, stopIndicator := context.WithCancelCause(ctx)
	indicator.Run(runCtx)

	policies := make([]pipeline.Policy, 0, len(cfg.Backups))
	for _, p := range cfg.Backups {
		bound, err := policy.Bind(p, cache, runStarted, downloads)
		if err != nil {
			logrus.Errorf("failed to bind policy %s:%s: %v", p.Kind, p.From, err)
			continue
		}
		bound.Tracer = tracer
		policies = append(policies, withCountingTarget(bound, indicator))
	}

	outcomes := pipeline.Run(ctx, policies)
	stopIndicator(context.Canceled)
	indicator.Wait()
	downloads.Wait()

	for _, o := range outcomes {
		logOutcome(o)
		recordHistory(ctx, hist, o, runStarted)
	}
	return pipeline.Summarize(outcomes)
}

// withCountingTarget wraps p's target so the run-wide spinner advances once
// per entity handled, success or failure, giving a live sense of progress
// across a policy's full entity stream.
func withCountingTarget(p pipeline.Policy, indicator *progress.Indicators) pipeline.Policy {
	inner := p.Target
	p.Target = pipeline.TargetFunc(func(ctx context.Context, c entity.Context) error {
		err := inner.Handle(ctx, c)
		indicator.Add(1)
		return err
	})
	return p
}

func logOutcome(o pipeline.Outcome) {
	fields := logrus.Fields{
		"policy": o.Policy, "succeeded": o.Succeeded, "failed": o.Failed, "skipped": o.Skipped,
	}
	if o.TerminalErr != nil {
		logrus.WithFields(fields).Errorf("policy terminated: %v", o.TerminalErr)
		return
	}
	logrus.WithFields(fields).Info("policy completed")
}

func recordHistory(ctx context.Context, hist *history.Store, o pipeline.Outcome, runStarted time.Time) {
	if hist == nil {
		return
	}
	terminal := ""
	if o.TerminalErr != nil {
		terminal = o.TerminalErr.Error()
	}
	kind, _, _ := strings.Cut(o.Policy, ":") // o.Policy is "<kind>:<from>" (see policy.Bind's meta.PolicyName)
	row := history.Row{
		RunStarted: runStarted.UTC().Format(time.RFC3339), PolicyName: o.Policy, Kind: kind,
		Succeeded: o.Succeeded, Failed: o.Failed, Skipped: o.Skipped, TerminalError: terminal,
	}
	if err := hist.Record(ctx, row); err != nil {
		logrus.Warnf("failed to record run history for %s: %v", o.Policy, err)
	}
}
