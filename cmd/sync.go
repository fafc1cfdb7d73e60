package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"identity-sync/core/logger"
	"identity-sync/core/reconcile"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the sync command
	syncDryRun bool
	yesConfirm bool
)

// syncCmd performs one reconciliation pass.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass",
	Long: `Reads every enabled source and the identity provider, plans the changes
and applies them after confirmation.

Exit status is 0 when every user synced, 2 when some users failed and 1
when the run could not start (configuration, source or provider unreachable).

Examples:
  # Plan and report only
  identity-sync sync --dry-run

  # Apply with interactive confirmation
  identity-sync sync

  # Apply without confirmation (cron, CI)
  identity-sync sync --yes`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Plan and report without changing the identity provider")
	syncCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm changes (non-interactive)")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, l, err := loadConfig()
	if err != nil {
		return err
	}
	defer l.Sync()

	if syncDryRun {
		cfg.Features.DryRun = true
	}

	rt, err := newRuntime(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.run(ctx, func(ctx context.Context) (*reconcile.RunReport, error) {
		runID := uuid.NewString()
		started := time.Now()
		rl := logger.WithRun(l, runID)

		// Step 1: Plan (always runs)
		rl.Info("Planning reconciliation...", zap.Bool("dry_run", cfg.Features.DryRun))
		plan, err := reconcile.ReconcileWithPlan(ctx, rt.spec)
		if err != nil {
			return nil, err
		}

		// Step 2: Print plan
		printPlan(rl, plan)

		// Step 3: Confirm
		if !cfg.Features.DryRun && plan.Summary.Changes() > 0 && !confirmChanges(plan.Summary) {
			rl.Warn("Operation cancelled by user. No changes were made.")
			return nil, nil
		}

		// Step 4: Apply
		outcomes := reconcile.ApplyPlan(ctx, rt.spec, plan, rl)
		return reconcile.NewRunReport(runID, started, time.Now(), rt.spec.Features, plan, outcomes), nil
	})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if report == nil {
		return nil
	}

	printReport(l, report)
	if code := report.ExitCode(); code != reconcile.ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

// printPlan logs the plan summary and a sample of its actions.
func printPlan(l *zap.Logger, plan *reconcile.ReconcilePlan) {
	s := plan.Summary

	l.Info("Reconciliation plan",
		zap.Int("source_users", s.SourceUsers),
		zap.Int("provider_users", s.ProviderUsers),
		zap.Int("invalid", s.Invalid),
		zap.Int("creates", s.Creates),
		zap.Int("updates", s.Updates),
		zap.Int("disables", s.Disables),
		zap.Int("skips", s.Skips),
		zap.Int("conflicts", s.Conflicts),
	)

	for _, cerr := range plan.Population.Errors {
		l.Warn("Source record rejected",
			zap.String("source", cerr.Source),
			zap.String("record", cerr.RecordKey),
			zap.Error(cerr),
		)
	}

	// Show sample of actions (max 10 for logger)
	shown := 0
	for _, action := range plan.Actions {
		if !action.Mutates() {
			continue
		}
		if shown == 10 {
			l.Info("Additional actions not shown", zap.Int("count", s.Changes()-shown))
			break
		}
		l.Info("Planned action",
			zap.String("type", string(action.Type)),
			zap.String("external_id", action.ExternalID),
			zap.Any("changed", action.Changed),
		)
		shown++
	}
}

// printReport logs the run summary and every failed user.
func printReport(l *zap.Logger, report *reconcile.RunReport) {
	l = logger.WithRun(l, report.RunID)
	for _, o := range report.Failures() {
		l.Error("User sync failed",
			zap.String("external_id", o.ExternalID),
			zap.String("action", string(o.Action)),
			zap.String("kind", string(o.Kind)),
			zap.String("step", string(o.Step)),
			zap.String("reason", o.Reason),
		)
	}

	s := report.Summary
	l.Info("Sync report",
		zap.String("status", report.Status()),
		zap.Bool("dry_run", report.DryRun),
		zap.Int("created", s.Created),
		zap.Int("updated", s.Updated),
		zap.Int("disabled", s.Disabled),
		zap.Int("unchanged", s.Unchanged),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Int("retryable", s.Retryable),
		zap.Int("invalid", s.Invalid),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
}

// confirmChanges prompts the user for confirmation or uses --yes flag.
func confirmChanges(s reconcile.PlanSummary) bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Printf("\n%d creates, %d updates, %d disables planned.\n", s.Creates, s.Updates, s.Disables)
	fmt.Print("⚠️  Type 'yes' to apply: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	return strings.TrimSpace(response) == "yes"
}
