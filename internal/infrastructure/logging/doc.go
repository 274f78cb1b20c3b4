// Package logging provides structured logging for the virt-foo daemon.
//
// It wraps log/slog with JSON output for production, text output for
// development, and default service/version fields on every entry.
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
//	devLog := logger.Component("device")
//	devLog.Info("device attached", "irq", 37)
//
// *Logger satisfies the small Logger interfaces declared by the device,
// mqtt, influxdb and api packages.
//
// Never log secrets or bearer tokens.
package logging
