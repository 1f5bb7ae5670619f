// Package logging provides structured logging for Gray Logic Notify.
//
// It wraps log/slog with the service defaults: a service and version
// attribute on every entry, JSON or text output, and level filtering from
// the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Attributes named password, token, jwt, authorization, secret or
// management_key are written as [REDACTED]. Log principal and connection
// ids, never credentials:
//
//	logger.Info("principal registered", "id", id)
package logging
