// Package logging provides structured logging for doorgate.
//
// It wraps the standard log/slog package so that every component logs
// through the same handler with the same default fields.
//
// # Features
//
//   - JSON output for production, text output for development
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("log batch stored", "batch_id", id, "inserted", n)
//
// Never log broker passwords or the InfluxDB token.
package logging
