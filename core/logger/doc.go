// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments (development vs production)
// and integrates with the Fiber web framework used by the status API.
//
// # Correlation
//
// Every sync run carries a run id. WithRun attaches it to the logger handed to the
// reconciliation engine so that all per-user entries of one pass can be grouped.
// WithRayID does the same for HTTP requests served by the status API.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Encoding: json (production) or console (development)
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("Sync started")
//
//	l := logger.WithRun(log, report.RunID)
//	l.Error("User sync failed", zap.Error(err))
package logger
