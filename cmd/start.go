package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-sync/core/database"
	"identity-sync/core/loader"
	"identity-sync/core/logger"
	"identity-sync/core/middleware/auth"
	"identity-sync/core/middleware/rayid"
	"identity-sync/feature/syncapi"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run syncs on a schedule and serve the status API",
	Long: `Runs a reconciliation pass every sync.interval and serves the status API
(GET /health, GET /sync/report, POST /sync) until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration and Logger
		cfg, logg, err := loadConfig()
		if err != nil {
			log.Fatalf("Failed to start: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 2. Wire sources, provider, storage and the optional run lock
		rt, err := newRuntime(ctx, cfg, logg)
		if err != nil {
			logg.Fatal("Failed to initialize sync", zap.Error(err))
		}
		defer rt.close()

		svc := syncapi.NewService(ctx, rt.reconcileAndApply, logg)

		// 3. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// 4. Initialize Feature Loader
		mgr := loader.NewManager()
		mgr.Register(syncapi.NewFeature(svc))

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 3. Auth (health probes stay public)
		if !cfg.Server.IsProtected() {
			logg.Warn("Status API is not protected, set server.api_key")
		}
		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Public: []string{"/health"}}))

		// 5. Load Features
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 6. Start Server
		go func() {
			logg.Info("Starting server", zap.String("addr", cfg.Server.Addr()))
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 7. Scheduler
		done := make(chan struct{})
		go func() {
			defer close(done)
			schedule(ctx, cfg.Sync.Interval, svc, logg)
		}()

		// 8. Graceful Shutdown
		<-ctx.Done()
		logg.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
			logg.Warn("Server shutdown incomplete", zap.Error(err))
		}
		<-done
	},
}

// schedule triggers a run immediately and then every interval until ctx ends.
// A tick that arrives while a requested run is in flight joins that run.
func schedule(ctx context.Context, interval time.Duration, svc *syncapi.Service, l *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, _, err := svc.Trigger()
		switch {
		case errors.Is(err, database.ErrLocked):
			l.Info("Another process holds the run lock, skipping this run")
		case err != nil:
			l.Error("Scheduled sync failed", zap.Error(err))
		case report != nil:
			l.Info("Scheduled sync finished",
				zap.String("run_id", report.RunID),
				zap.String("status", report.Status()),
				zap.Time("next_run", time.Now().Add(interval)),
			)
		}

		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	RootCmd.AddCommand(startCmd)
}
