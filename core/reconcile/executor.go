package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultActionTimeout bounds a single action when no timeout is configured.
const DefaultActionTimeout = 30 * time.Second

// Executor applies planned actions to the provider, one external id at a time.
type Executor struct {
	provider Provider
	features Features
	timeout  time.Duration
	logger   *zap.Logger
}

// NewExecutor creates an executor. A zero timeout uses DefaultActionTimeout.
func NewExecutor(provider Provider, features Features, timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		provider: provider,
		features: features,
		timeout:  timeout,
		logger:   logger,
	}
}

// Execute runs one action and returns its outcome. Errors never escape: they
// are classified into the outcome. Cancelling ctx does not interrupt the
// action once started; only the per-action timeout does.
func (e *Executor) Execute(ctx context.Context, action Action) Outcome {
	outcome := Outcome{
		ExternalID: action.ExternalID,
		Action:     action.Type,
		Changed:    action.Changed,
		Reason:     action.Reason,
	}

	switch action.Type {
	case ActionNoOp, ActionSkip:
		outcome.Status = StatusSkipped
		return outcome
	case ActionConflict:
		outcome.Status = StatusFailed
		outcome.Kind = KindConflict
		return outcome
	}

	if e.features.DryRun {
		outcome.Status = StatusSkipped
		outcome.Reason = "dry run: " + action.Reason
		return outcome
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	var err error
	switch action.Type {
	case ActionCreate:
		err = e.create(actx, action)
	case ActionUpdate:
		err = e.update(actx, action)
	case ActionDisable:
		err = e.disable(actx, action)
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	if err == nil {
		outcome.Status = StatusSucceeded
		return outcome
	}

	outcome.Status = StatusFailed
	outcome.Reason = err.Error()
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		outcome.Kind = actionErr.Kind
		outcome.Step = actionErr.Step
	} else {
		outcome.Kind = classify(err)
	}
	return outcome
}

// create runs the creation steps in a fixed order: account, metadata, grant,
// SSO link. The account is usable after the first step; a later failure is a
// partial create that the next run repairs through an update.
func (e *Executor) create(ctx context.Context, action Action) error {
	user := action.User
	opts := UserOptions{VerifyContacts: e.features.RequireVerification}

	id, err := e.provider.CreateUser(ctx, user, opts)
	if err != nil {
		return &ActionError{ExternalID: action.ExternalID, Kind: classify(err), Step: StepAccount, Err: err}
	}

	partial := func(step CreateStep, err error) error {
		return &ActionError{
			ExternalID: action.ExternalID,
			Kind:       KindPartialCreate,
			Step:       step,
			ProviderID: id,
			Err:        err,
		}
	}

	for _, f := range []Field{FieldPreferredUsername, FieldLocalpart} {
		value := user.Get(f)
		if value.IsZero() {
			continue
		}
		if err := e.provider.SetMetadata(ctx, id, string(f), value.String()); err != nil {
			return partial(StepMetadata, fmt.Errorf("set %s: %w", f, err))
		}
	}

	if err := e.provider.AddGrant(ctx, id); err != nil {
		return partial(StepGrant, err)
	}

	if e.features.EnforceSSO {
		if err := e.provider.LinkSSO(ctx, id, user); err != nil {
			return partial(StepSSOLink, err)
		}
	}

	return nil
}

// update writes only the changed fields. Re-enabling comes first so that a
// failure later on never leaves updated data on a disabled account unnoticed.
func (e *Executor) update(ctx context.Context, action Action) error {
	fail := func(err error) error {
		return &ActionError{ExternalID: action.ExternalID, Kind: classify(err), Err: err}
	}

	if action.Has(FieldEnabled) {
		if err := e.provider.EnableUser(ctx, action.ProviderID); err != nil {
			return fail(fmt.Errorf("enable: %w", err))
		}
	}

	var profile []Field
	contactChanged := false
	for _, f := range action.Changed {
		if f.IsProfile() {
			profile = append(profile, f)
			contactChanged = contactChanged || f.IsContact()
		}
	}
	if len(profile) > 0 {
		opts := UserOptions{VerifyContacts: e.features.RequireVerification && contactChanged}
		if err := e.provider.UpdateUser(ctx, action.ProviderID, action.User, profile, opts); err != nil {
			return fail(fmt.Errorf("update %v: %w", profile, err))
		}
	}

	for _, f := range action.Changed {
		if !f.IsMetadata() {
			continue
		}
		if err := e.provider.SetMetadata(ctx, action.ProviderID, string(f), action.User.Get(f).String()); err != nil {
			return fail(fmt.Errorf("set %s: %w", f, err))
		}
	}

	if action.Has(FieldGrant) {
		if err := e.provider.AddGrant(ctx, action.ProviderID); err != nil {
			return fail(fmt.Errorf("grant: %w", err))
		}
	}

	return nil
}

func (e *Executor) disable(ctx context.Context, action Action) error {
	if err := e.provider.DisableUser(ctx, action.ProviderID); err != nil {
		return &ActionError{ExternalID: action.ExternalID, Kind: classify(err), Err: err}
	}
	return nil
}

// ExecutePlan runs every action that is not a no-op and returns the outcomes
// sorted by external id. With workers > 1 actions run on a bounded pool; each
// action owns one external id, so no two workers touch the same user. Once ctx
// is cancelled no new action starts; the rest are reported as skipped.
func (e *Executor) ExecutePlan(ctx context.Context, plan *ReconcilePlan, workers int) []Outcome {
	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	record := func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
		e.log(o)
	}

	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	for _, action := range plan.Actions {
		if action.Type == ActionNoOp {
			continue
		}
		if ctx.Err() != nil {
			record(Outcome{
				ExternalID: action.ExternalID,
				Action:     action.Type,
				Status:     StatusSkipped,
				Kind:       KindCancelled,
				Reason:     "run cancelled before action started",
			})
			continue
		}
		g.Go(func() error {
			record(e.Execute(ctx, action))
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].ExternalID < outcomes[j].ExternalID
	})
	return outcomes
}

func (e *Executor) log(o Outcome) {
	fields := []zap.Field{
		zap.String("external_id", o.ExternalID),
		zap.String("action", string(o.Action)),
		zap.String("status", string(o.Status)),
	}
	switch o.Status {
	case StatusFailed:
		e.logger.Error("User sync failed", append(fields,
			zap.String("kind", string(o.Kind)),
			zap.String("step", string(o.Step)),
			zap.String("reason", o.Reason),
		)...)
	case StatusSkipped:
		e.logger.Debug("User skipped", append(fields, zap.String("reason", o.Reason))...)
	default:
		e.logger.Info("User synced", append(fields, zap.Any("changed", o.Changed))...)
	}
}
