package cmd

import (
	"context"
	"fmt"
	"os"

	"identity-sync/core/config"
	"identity-sync/core/database"
	"identity-sync/core/logger"
	"identity-sync/core/reconcile"
	"identity-sync/core/storage"
	"identity-sync/feature/csv"
	"identity-sync/feature/endpoint"
	"identity-sync/feature/ldap"
	"identity-sync/feature/zitadel"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// loadConfig loads and validates the configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(".", configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, l, nil
}

// runtime holds the dependencies shared by every run of a process.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	spec   *reconcile.Spec
	store  storage.Client
	db     *gorm.DB
	locker *database.Locker
}

func newRuntime(ctx context.Context, cfg *config.Config, l *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: l}

	if cfg.Storage.IsConfigured() {
		store, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to storage: %w", err)
		}
		rt.store = store
	}

	spec, err := buildSpec(cfg, rt.store, l)
	if err != nil {
		return nil, err
	}
	rt.spec = spec

	if cfg.Database.Enabled {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		rt.db = db

		host, _ := os.Hostname()
		rt.locker = database.NewLocker(db, fmt.Sprintf("%s/%d", host, os.Getpid()), cfg.Database.LockTTL)
		if err := rt.locker.Migrate(ctx); err != nil {
			rt.close()
			return nil, err
		}
	}

	return rt, nil
}

// buildSpec wires the enabled sources and the provider.
func buildSpec(cfg *config.Config, store storage.Client, l *zap.Logger) (*reconcile.Spec, error) {
	spec := &reconcile.Spec{
		Features:      cfg.Features,
		FetchTimeout:  cfg.Sync.FetchTimeout,
		ActionTimeout: cfg.Sync.ActionTimeout,
		Workers:       cfg.Sync.Workers,
	}

	if cfg.Sources.LDAP.Enabled {
		// The scope filter is part of the directory search, so no client-side scope.
		src, err := ldap.NewSource(cfg.Sources.LDAP, cfg.Features.AttributeFilters, l)
		if err != nil {
			return nil, err
		}
		spec.Sources = append(spec.Sources, reconcile.SourceSpec{Source: src, Mapping: src.Mapping()})
	}
	if cfg.Sources.CSV.Enabled {
		src, err := csv.NewSource(cfg.Sources.CSV, store, cfg.Storage.Bucket, l)
		if err != nil {
			return nil, err
		}
		spec.Sources = append(spec.Sources, reconcile.SourceSpec{Source: src, Mapping: src.Mapping(), Scope: src.Scope()})
	}
	if cfg.Sources.Endpoint.Enabled {
		src, err := endpoint.NewSource(cfg.Sources.Endpoint, l)
		if err != nil {
			return nil, err
		}
		spec.Sources = append(spec.Sources, reconcile.SourceSpec{Source: src, Mapping: src.Mapping(), Scope: src.Scope()})
	}
	if len(spec.Sources) == 0 {
		return nil, fmt.Errorf("no source is enabled")
	}

	provider, err := zitadel.NewProvider(cfg.Provider, l)
	if err != nil {
		return nil, err
	}
	spec.Provider = provider

	return spec, nil
}

// run executes fn under the run lock, if any, and publishes the report.
// fn may return a nil report when nothing was run.
func (r *runtime) run(ctx context.Context, fn func(context.Context) (*reconcile.RunReport, error)) (*reconcile.RunReport, error) {
	var report *reconcile.RunReport
	exec := func(ctx context.Context) error {
		var err error
		report, err = fn(ctx)
		return err
	}

	var err error
	if r.locker != nil {
		err = r.locker.WithLock(ctx, r.cfg.Sync.LockName, exec)
	} else {
		err = exec(ctx)
	}
	if err != nil {
		return nil, err
	}

	if report != nil {
		r.publish(ctx, report)
	}
	return report, nil
}

// reconcileAndApply is one unattended run.
func (r *runtime) reconcileAndApply(ctx context.Context) (*reconcile.RunReport, error) {
	return r.run(ctx, func(ctx context.Context) (*reconcile.RunReport, error) {
		return reconcile.ReconcileAndApply(ctx, r.spec, r.logger)
	})
}

// publish uploads the report as the latest one. A failed upload never fails the run.
func (r *runtime) publish(ctx context.Context, report *reconcile.RunReport) {
	object := r.cfg.Storage.ReportObject
	if r.store == nil || object == "" {
		return
	}

	l := logger.WithRun(r.logger, report.RunID)
	if err := storage.WriteJSON(context.WithoutCancel(ctx), r.store, r.cfg.Storage.Bucket, object, report); err != nil {
		l.Warn("Failed to upload run report", zap.String("object", object), zap.Error(err))
		return
	}
	l.Info("Run report uploaded", zap.String("object", object))
}

func (r *runtime) close() {
	if r.db == nil {
		return
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
