// Package logger provides a structured logging facility based on Zap.
//
// New builds a *zap.Logger writing to stderr, either as json lines for log shippers or
// as colored console output for operators running syncs by hand.
//
// # Context Awareness
//
// Sync runs and HTTP requests are correlated through logger fields. WithRun attaches the
// run id of a reconciliation run and WithRayID extracts the RayID from a Fiber context.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Format: json or console
//
// # Usage
//
//	log, _ := logger.New(&cfg.Log)
//	log.Info("Records sync started")
//
//	runLog := logger.WithRun(log, runID)
//	runLog.Warn("Source skipped", zap.Error(err))
package logger
