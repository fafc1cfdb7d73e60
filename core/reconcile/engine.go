package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchTimeout bounds each population fetch when no timeout is configured.
const DefaultFetchTimeout = 5 * time.Minute

// SourceSpec binds a source to its attribute mapping and optional scope.
type SourceSpec struct {
	// Source produces the raw records.
	Source Source

	// Mapping maps the source's attributes onto canonical fields.
	Mapping AttributeMapping

	// Scope restricts the records taken into account. It is only applied when
	// the AttributeFilters feature is enabled.
	Scope Scope
}

// Spec defines the configuration for a reconciliation run.
// It is treated as immutable for the duration of a run.
type Spec struct {
	// Sources are read concurrently; their records form one population.
	Sources []SourceSpec

	// Provider is the identity provider to reconcile against.
	Provider Provider

	// Features are the process-wide toggles.
	Features Features

	// FetchTimeout bounds each population fetch. A timeout aborts the run.
	FetchTimeout time.Duration

	// ActionTimeout bounds each action. A timeout fails that action only.
	ActionTimeout time.Duration

	// Workers is the number of actions executed in parallel. Zero or one
	// executes sequentially.
	Workers int
}

// populations holds the raw results of the fetch phase.
type populations struct {
	records  [][]RawRecord
	provider []ProviderUser
}

// fetch reads every source and the provider population concurrently. Any
// failure is fatal: without both populations there is no safe diff.
func fetch(ctx context.Context, spec *Spec) (*populations, error) {
	timeout := spec.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	result := &populations{records: make([][]RawRecord, len(spec.Sources))}
	g, gctx := errgroup.WithContext(ctx)

	for i, src := range spec.Sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			records, err := src.Source.FetchAll(fctx)
			if err != nil {
				return &FetchError{Kind: ErrSourceFetch, Name: src.Source.Name(), Err: err}
			}
			result.records[i] = records
			return nil
		})
	}

	g.Go(func() error {
		fctx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()

		users, err := spec.Provider.ListUsers(fctx)
		if err != nil {
			return &FetchError{Kind: ErrProviderFetch, Name: "provider", Err: err}
		}
		result.provider = users
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// canonicalize turns the fetched records into one population.
func canonicalize(spec *Spec, records [][]RawRecord) Population {
	var (
		users []CanonicalUser
		errs  []*CanonicalizationError
	)
	for i, src := range spec.Sources {
		var scope Scope
		if spec.Features.AttributeFilters {
			scope = src.Scope
		}
		c := NewCanonicalizer(src.Source.Name(), src.Mapping)
		u, e := c.CanonicalizeAll(records[i], scope)
		users = append(users, u...)
		errs = append(errs, e...)
	}
	return NewPopulation(users, errs)
}

// ReconcileWithPlan fetches both populations and returns the plan.
// It does NOT execute actions; use ApplyPlan for that.
func ReconcileWithPlan(ctx context.Context, spec *Spec) (*ReconcilePlan, error) {
	pops, err := fetch(ctx, spec)
	if err != nil {
		return nil, err
	}

	pop := canonicalize(spec, pops.records)
	return Reconcile(pop, pops.provider, spec.Features), nil
}

// ApplyPlan executes the actions of a plan and returns the outcomes.
// Per-user failures are part of the outcomes, never returned as an error.
func ApplyPlan(ctx context.Context, spec *Spec, plan *ReconcilePlan, logger *zap.Logger) []Outcome {
	executor := NewExecutor(spec.Provider, spec.Features, spec.ActionTimeout, logger)
	return executor.ExecutePlan(ctx, plan, spec.Workers)
}

// ReconcileAndApply performs one full run: fetch, canonicalize, reconcile,
// execute. The returned error is fatal (nothing was mutated); per-user
// failures are reported in the run report.
func ReconcileAndApply(ctx context.Context, spec *Spec, logger *zap.Logger) (*RunReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	started := time.Now()
	l := logger.With(zap.String("run_id", runID))

	l.Info("Starting reconciliation", zap.Int("sources", len(spec.Sources)), zap.Bool("dry_run", spec.Features.DryRun))

	plan, err := ReconcileWithPlan(ctx, spec)
	if err != nil {
		l.Error("Reconciliation aborted", zap.Error(err))
		return nil, err
	}

	for _, cerr := range plan.Population.Errors {
		l.Warn("Source record rejected",
			zap.String("source", cerr.Source),
			zap.String("record", cerr.RecordKey),
			zap.String("kind", string(cerr.Kind)),
			zap.Error(cerr),
		)
	}

	l.Info("Reconciliation planned",
		zap.Int("source_users", plan.Summary.SourceUsers),
		zap.Int("provider_users", plan.Summary.ProviderUsers),
		zap.Int("invalid", plan.Summary.Invalid),
		zap.Int("creates", plan.Summary.Creates),
		zap.Int("updates", plan.Summary.Updates),
		zap.Int("disables", plan.Summary.Disables),
		zap.Int("conflicts", plan.Summary.Conflicts),
	)

	outcomes := ApplyPlan(ctx, spec, plan, l)
	report := NewRunReport(runID, started, time.Now(), spec.Features, plan, outcomes)

	l.Info("Reconciliation finished",
		zap.String("status", report.Status()),
		zap.Int("created", report.Summary.Created),
		zap.Int("updated", report.Summary.Updated),
		zap.Int("disabled", report.Summary.Disabled),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("invalid", report.Summary.Invalid),
	)

	return report, nil
}
