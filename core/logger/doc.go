// Package logger provides structured logging utilities built on Go's standard
// slog package: a factory with environment presets and nil-safe attribute
// helpers for common fields.
//
// # Basic Usage
//
//	import "github.com/cmdkit/cmdkit/core/logger"
//
//	// Development: text format, debug level
//	log := logger.New(logger.WithDevelopment("cmdkit"))
//
//	// Production: JSON format, info level
//	log := logger.New(
//		logger.WithProduction("cmdkit"),
//	)
//
//	log.Info("processor started",
//		logger.Component("processor"),
//		logger.Event("startup"),
//	)
//
// # Attribute Helpers
//
// Attribute helpers return an empty slog.Attr for zero inputs, so call sites
// never need explicit nil checks:
//
//	log.Error("admission failed",
//		logger.Error(err),       // skipped when err == nil
//		logger.CommandID(id),
//		logger.Elapsed(start),
//	)
package logger
