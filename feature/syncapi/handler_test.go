package syncapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"identity-sync/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, run RunFunc) (*fiber.App, *Service) {
	app := fiber.New()
	svc := NewService(context.Background(), run, nil)
	require.NoError(t, NewFeature(svc).Load(app))
	return app, svc
}

func report(id string, failed int) *reconcile.RunReport {
	return &reconcile.RunReport{RunID: id, Summary: reconcile.ReportSummary{Created: 2, Failed: failed}}
}

func TestHandleHealth(t *testing.T) {
	app, _ := setupTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["running"])
}

func TestHandleReport_NoRun(t *testing.T) {
	app, _ := setupTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/sync/report", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHandleTrigger(t *testing.T) {
	app, svc := setupTestApp(t, func(ctx context.Context) (*reconcile.RunReport, error) {
		return report("run-1", 1), nil
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/sync", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "false", resp.Header.Get(JoinedHeader))

	var body reconcile.RunReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, 1, body.Summary.Failed)

	require.NotNil(t, svc.Last())

	resp, err = app.Test(httptest.NewRequest("GET", "/sync/report", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run-1", body.RunID)
}

func TestHandleTrigger_FatalError(t *testing.T) {
	fetchErr := &reconcile.FetchError{Kind: reconcile.ErrSourceFetch, Name: "ldap", Err: errors.New("connection refused")}
	app, _ := setupTestApp(t, func(ctx context.Context) (*reconcile.RunReport, error) {
		return nil, fetchErr
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/sync", nil))
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "connection refused")

	resp, err = app.Test(httptest.NewRequest("GET", "/sync/report", nil))
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
}

func TestService_TriggerJoinsRunInFlight(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	svc := NewService(context.Background(), func(ctx context.Context) (*reconcile.RunReport, error) {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return report("run-1", 0), nil
	}, nil)

	var wg sync.WaitGroup
	results := make([]*reconcile.RunReport, 3)
	shared := make([]bool, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], shared[0], _ = svc.Trigger()
	}()
	<-started
	assert.True(t, svc.Running())

	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], shared[i], _ = svc.Trigger()
		}()
	}

	// Joiners block on the flight; give them time to attach before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	for i := range results {
		assert.Equal(t, "run-1", results[i].RunID)
	}
	assert.True(t, shared[0])
	assert.False(t, svc.Running())
}

func TestService_UsesServiceContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(ctx, func(ctx context.Context) (*reconcile.RunReport, error) {
		return nil, ctx.Err()
	}, nil)

	_, _, err := svc.Trigger()
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, svc.Last().Err, context.Canceled)
}

func TestFeature(t *testing.T) {
	f := NewFeature(NewService(context.Background(), nil, nil))
	assert.Equal(t, "sync", f.Name())
	assert.True(t, f.IsEnabled())
}
