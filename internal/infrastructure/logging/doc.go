// Package logging provides structured logging for HomeState Core.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default attributes (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Component loggers are derived with With:
//
//	streamLog := logger.With("component", "stream")
//	streamLog.Info("stream opened", "device_id", id)
//
// Never log MQTT or Redis passwords or the InfluxDB token.
package logging
