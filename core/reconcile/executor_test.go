package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity-sync/core/reconcile"
	"identity-sync/core/reconcile/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newUser(id string) reconcile.CanonicalUser {
	return reconcile.CanonicalUser{
		ExternalID:        reconcile.StringValue(id),
		Email:             reconcile.StringValue(id + "@example.com"),
		PreferredUsername: reconcile.StringValue(id),
		Localpart:         reconcile.StringValue("lp-" + id),
		Enabled:           true,
	}
}

// TestExecute_CreateSteps tests the order of the create steps.
func TestExecute_CreateSteps(t *testing.T) {
	p := new(mocks.Provider)
	u := newUser("alice")

	var calls []string
	track := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) { calls = append(calls, name) }
	}
	p.On("CreateUser", mock.Anything, u, reconcile.UserOptions{}).Return("p-1", nil).Run(track("create"))
	p.On("SetMetadata", mock.Anything, "p-1", "preferred_username", "alice").Return(nil).Run(track("preferred_username"))
	p.On("SetMetadata", mock.Anything, "p-1", "localpart", "lp-alice").Return(nil).Run(track("localpart"))
	p.On("AddGrant", mock.Anything, "p-1").Return(nil).Run(track("grant"))
	p.On("LinkSSO", mock.Anything, "p-1", u).Return(nil).Run(track("sso"))

	ex := reconcile.NewExecutor(p, reconcile.Features{EnforceSSO: true}, time.Second, nil)
	out := ex.Execute(context.Background(), reconcile.Action{Type: reconcile.ActionCreate, ExternalID: "alice", User: u})

	assert.Equal(t, reconcile.StatusSucceeded, out.Status)
	assert.Equal(t, []string{"create", "preferred_username", "localpart", "grant", "sso"}, calls)
	p.AssertExpectations(t)
}

// TestExecute_CreateWithoutSSO tests that no link is made unless SSO is enforced.
func TestExecute_CreateWithoutSSO(t *testing.T) {
	p := new(mocks.Provider)
	u := newUser("bob")
	u.PreferredUsername = reconcile.Value{}

	p.On("CreateUser", mock.Anything, u, reconcile.UserOptions{VerifyContacts: true}).Return("p-2", nil)
	p.On("SetMetadata", mock.Anything, "p-2", "localpart", "lp-bob").Return(nil)
	p.On("AddGrant", mock.Anything, "p-2").Return(nil)

	ex := reconcile.NewExecutor(p, reconcile.Features{RequireVerification: true}, time.Second, nil)
	out := ex.Execute(context.Background(), reconcile.Action{Type: reconcile.ActionCreate, ExternalID: "bob", User: u})

	assert.Equal(t, reconcile.StatusSucceeded, out.Status)
	p.AssertExpectations(t)
	p.AssertNotCalled(t, "LinkSSO", mock.Anything, mock.Anything, mock.Anything)
}

// TestExecute_PartialCreate tests that a failure after the account exists is reported with its step.
func TestExecute_PartialCreate(t *testing.T) {
	p := new(mocks.Provider)
	u := newUser("carol")

	p.On("CreateUser", mock.Anything, u, reconcile.UserOptions{}).Return("p-3", nil)
	p.On("SetMetadata", mock.Anything, "p-3", mock.Anything, mock.Anything).Return(nil)
	p.On("AddGrant", mock.Anything, "p-3").Return(errors.New("grant service unavailable"))

	ex := reconcile.NewExecutor(p, reconcile.Features{EnforceSSO: true}, time.Second, nil)
	out := ex.Execute(context.Background(), reconcile.Action{Type: reconcile.ActionCreate, ExternalID: "carol", User: u})

	assert.Equal(t, reconcile.StatusFailed, out.Status)
	assert.Equal(t, reconcile.KindPartialCreate, out.Kind)
	assert.Equal(t, reconcile.StepGrant, out.Step)
	assert.Contains(t, out.Reason, "p-3")
	p.AssertNotCalled(t, "LinkSSO", mock.Anything, mock.Anything, mock.Anything)
}

// TestExecute_CreateRejected tests that a failed account step is not a partial create.
func TestExecute_CreateRejected(t *testing.T) {
	p := new(mocks.Provider)
	u := newUser("dave")
	p.On("CreateUser", mock.Anything, u, reconcile.UserOptions{}).Return("", reconcile.ErrConflict)

	ex := reconcile.NewExecutor(p, reconcile.Features{}, time.Second, nil)
	out := ex.Execute(context.Background(), reconcile.Action{Type: reconcile.ActionCreate, ExternalID: "dave", User: u})

	assert.Equal(t, reconcile.StatusFailed, out.Status)
	assert.Equal(t, reconcile.KindConflict, out.Kind)
	assert.Equal(t, reconcile.StepAccount, out.Step)
	p.AssertNotCalled(t, "AddGrant", mock.Anything, mock.Anything)
}

// TestExecute_Update tests that an update writes exactly the changed fields.
func TestExecute_Update(t *testing.T) {
	p := new(mocks.Provider)
	u := newUser("erin")
	changed := []reconcile.Field{
		reconcile.FieldEnabled,
		reconcile.FieldEmail,
		reconcile.FieldLastName,
		reconcile.FieldLocalpart,
		reconcile.FieldGrant,
	}

	p.On("EnableUser", mock.Anything, "p-5").Return(nil)
	p.On("UpdateUser", mock.Anything, "p-5", u, []reconcile.Field{reconcile.FieldEmail, reconcile.FieldLastName}, reconcile.UserOptions{VerifyContacts: true}).Return(nil)
	p.On("SetMetadata", mock.Anything, "p-5", "localpart", "lp-erin").Return(nil)
	p.On("AddGrant", mock.Anything, "p-5").Return(nil)

	ex := reconcile.NewExecutor(p, reconcile.Features{RequireVerification: true}, time.Second, nil)
	out := ex.Execute(context.Background(), reconcile.Action{
		Type:       reconcile.ActionUpdate,
		ExternalID: "erin",
		ProviderID: "p-5",
		User:       u,
		Changed:    changed,
	})

	assert.Equal(t, reconcile.StatusSucceeded, out.Status)
	assert.Equal(t, changed, out.Changed)
	p.AssertExpectations(t)
}

// TestExecute_UpdateNameOnlyKeepsVerification tests that a non-contact change never triggers verification.
func TestExecute_UpdateNameOnlyKeepsVerification(t *testing.T) {
	p := new(mocks.Provider)
	u := newUser("frank")
	fields := []reconcile.Field{reconcile.FieldFirstName}
	p.On("UpdateUser", mock.Anything, "p-6", u, fields, reconcile.UserOptions{}).Return(nil)

	ex := reconcile.NewExecutor(p, reconcile.Features{RequireVerification: true}, time.Second, nil)
	out := ex.Execute(context.Background(), reconcile.Action{Type: reconcile.ActionUpdate, ExternalID: "frank", ProviderID: "p-6", User: u, Changed: fields})

	assert.Equal(t, reconcile.StatusSucceeded, out.Status)
	p.AssertExpectations(t)
	p.AssertNotCalled(t, "EnableUser", mock.Anything, mock.Anything)
}

// TestExecute_Disable tests that disabling never deletes and classifies errors.
func TestExecute_Disable(t *testing.T) {
	p := new(mocks.Provider)
	p.On("DisableUser", mock.Anything, "p-ok").Return(nil)
	p.On("DisableUser", mock.Anything, "p-gone").Return(reconcile.ErrNotFound)

	ex := reconcile.NewExecutor(p, reconcile.Features{}, time.Second, nil)

	out := ex.Execute(context.Background(), reconcile.Action{Type: reconcile.ActionDisable, ExternalID: "ok", ProviderID: "p-ok"})
	assert.Equal(t, reconcile.StatusSucceeded, out.Status)

	out = ex.Execute(context.Background(), reconcile.Action{Type: reconcile.ActionDisable, ExternalID: "gone", ProviderID: "p-gone"})
	assert.Equal(t, reconcile.StatusFailed, out.Status)
	assert.Equal(t, reconcile.KindNotFound, out.Kind)
}

// TestExecute_Timeout tests that a slow provider call fails that action with a timeout.
func TestExecute_Timeout(t *testing.T) {
	p := new(mocks.Provider)
	p.On("DisableUser", mock.Anything, "p-slow").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)

	ex := reconcile.NewExecutor(p, reconcile.Features{}, 20*time.Millisecond, nil)
	out := ex.Execute(context.Background(), reconcile.Action{Type: reconcile.ActionDisable, ExternalID: "slow", ProviderID: "p-slow"})

	assert.Equal(t, reconcile.StatusFailed, out.Status)
	assert.Equal(t, reconcile.KindTimeout, out.Kind)
	assert.True(t, out.Kind.Retryable())
}

// TestExecute_InFlightSurvivesCancellation tests that cancelling the run does not interrupt a started action.
func TestExecute_InFlightSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := new(mocks.Provider)
	p.On("DisableUser", mock.Anything, "p-1").
		Run(func(args mock.Arguments) {
			cancel()
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(nil)

	ex := reconcile.NewExecutor(p, reconcile.Features{}, time.Second, nil)
	out := ex.Execute(ctx, reconcile.Action{Type: reconcile.ActionDisable, ExternalID: "one", ProviderID: "p-1"})
	assert.Equal(t, reconcile.StatusSucceeded, out.Status)
}

// TestExecute_DryRun tests that dry runs never call the provider.
func TestExecute_DryRun(t *testing.T) {
	p := new(mocks.Provider)
	ex := reconcile.NewExecutor(p, reconcile.Features{DryRun: true}, time.Second, nil)

	for _, at := range []reconcile.ActionType{reconcile.ActionCreate, reconcile.ActionUpdate, reconcile.ActionDisable} {
		out := ex.Execute(context.Background(), reconcile.Action{Type: at, ExternalID: "x", ProviderID: "p-x", Reason: "planned"})
		assert.Equal(t, reconcile.StatusSkipped, out.Status)
		assert.Equal(t, "dry run: planned", out.Reason)
	}
	p.AssertExpectations(t)
	assert.Empty(t, p.Calls)
}

// TestExecutePlan_IsolatesFailures tests that one failing user never blocks the others.
func TestExecutePlan_IsolatesFailures(t *testing.T) {
	p := new(mocks.Provider)
	p.On("DisableUser", mock.Anything, "p-a").Return(nil)
	p.On("DisableUser", mock.Anything, "p-b").Return(reconcile.ErrRejected)
	p.On("DisableUser", mock.Anything, "p-c").Return(nil)

	plan := &reconcile.ReconcilePlan{Actions: []reconcile.Action{
		{Type: reconcile.ActionDisable, ExternalID: "a", ProviderID: "p-a"},
		{Type: reconcile.ActionDisable, ExternalID: "b", ProviderID: "p-b"},
		{Type: reconcile.ActionNoOp, ExternalID: "bb"},
		{Type: reconcile.ActionConflict, ExternalID: "bc"},
		{Type: reconcile.ActionDisable, ExternalID: "c", ProviderID: "p-c"},
	}}

	for _, workers := range []int{0, 1, 4} {
		ex := reconcile.NewExecutor(p, reconcile.Features{}, time.Second, nil)
		outcomes := ex.ExecutePlan(context.Background(), plan, workers)

		require.Len(t, outcomes, 4, "workers=%d", workers)
		assert.Equal(t, "a", outcomes[0].ExternalID)
		assert.Equal(t, reconcile.StatusSucceeded, outcomes[0].Status)
		assert.Equal(t, reconcile.StatusFailed, outcomes[1].Status)
		assert.Equal(t, reconcile.KindRejected, outcomes[1].Kind)
		assert.Equal(t, reconcile.KindConflict, outcomes[2].Kind)
		assert.Equal(t, reconcile.StatusSucceeded, outcomes[3].Status)
	}
}

// TestExecutePlan_CancelledRun tests that no action starts after cancellation.
func TestExecutePlan_CancelledRun(t *testing.T) {
	p := new(mocks.Provider)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := &reconcile.ReconcilePlan{Actions: []reconcile.Action{
		{Type: reconcile.ActionDisable, ExternalID: "a", ProviderID: "p-a"},
		{Type: reconcile.ActionCreate, ExternalID: "b", User: newUser("b")},
	}}

	outcomes := reconcile.NewExecutor(p, reconcile.Features{}, time.Second, nil).ExecutePlan(ctx, plan, 1)

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, reconcile.StatusSkipped, o.Status)
		assert.Equal(t, reconcile.KindCancelled, o.Kind)
	}
	assert.Empty(t, p.Calls)
}
