package syncapi

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"identity-sync/core/reconcile"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RunFunc performs one reconciliation pass.
type RunFunc func(ctx context.Context) (*reconcile.RunReport, error)

// Result is the outcome of the most recent pass.
type Result struct {
	Report     *reconcile.RunReport
	Err        error
	FinishedAt time.Time
}

// Service serializes sync runs and keeps the last result.
type Service struct {
	ctx     context.Context
	run     RunFunc
	group   singleflight.Group
	running atomic.Bool
	logger  *zap.Logger

	mu   sync.RWMutex
	last *Result
}

// NewService creates a sync service. Every run uses ctx, so that cancelling it
// stops scheduled and requested runs alike.
func NewService(ctx context.Context, run RunFunc, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ctx: ctx, run: run, logger: logger}
}

// Trigger starts a run, or joins the run in flight. shared reports whether the
// result came from a run started by another caller.
func (s *Service) Trigger() (report *reconcile.RunReport, shared bool, err error) {
	v, err, shared := s.group.Do("sync", func() (any, error) {
		s.running.Store(true)
		defer s.running.Store(false)

		report, err := s.run(s.ctx)

		s.mu.Lock()
		s.last = &Result{Report: report, Err: err, FinishedAt: time.Now()}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("Sync run failed", zap.Error(err))
		}
		return report, err
	})
	report, _ = v.(*reconcile.RunReport)
	return report, shared, err
}

// Last returns the result of the most recent run, or nil before the first one.
func (s *Service) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Running reports whether a run is in progress.
func (s *Service) Running() bool {
	return s.running.Load()
}
