// Package logging provides structured logging for imagepub.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the publisher.
//
// # Features
//
//   - Text output for terminals (default), JSON for log collectors
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - The --debug flag forces the debug level
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, cfg.Debug, "1.0.0")
//	logger.Info("published image", "topic", topic)
//	logger.Error("connect failed", "error", err)
//
// # Security
//
// Never log broker passwords or InfluxDB tokens.
package logging
