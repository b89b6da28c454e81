// Package pkg provides shared utilities for the usbtmc protocol engine.
//
// This package contains common functionality used across the framing,
// transport, and interpreter packages, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for transport and protocol errors
//   - Component identifiers for log filtering
//
// The package is designed to have zero external dependencies, relying
// only on the Go standard library.
//
// # Logging
//
// The logging subsystem wraps [log/slog] with engine-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentEngine, "transfer complete", "tag", tag)
//
// Logging is never fatal to the protocol engine; a failing sink only
// loses log records.
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrTagMismatch) {
//	    // Malformed header; the endpoint pair stalls.
//	}
//
// [IsProtocolError] distinguishes errors that stall the bulk endpoints
// from transport conditions that the engine recovers from silently.
package pkg
