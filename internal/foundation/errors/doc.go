// Package errors provides foundational, type-safe error primitives used across assetbuilder.
//
// Build passes report their failures as ClassifiedError values so the CLI can
// pick an exit code and the dev server can decide whether to keep serving.
//
// Key features:
//   - ErrorCategory: Broad error classification (config, clean, transform, unmatched, planning, ...)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.TransformFailure("transform step failed").
//		WithContext("path", file).
//		WithContext("step", "sass").
//		WithCause(cause).
//		Build()
package errors
