// Package logging defines the small Logger interface every package accepts
// through its Options, plus a log/slog adapter and a NoOpLogger.
//
// Messages are dotted event keys followed by key/value pairs:
//
//	logger := logging.New(logging.Config{Level: "info", Format: "json"})
//	logger.Info("flow.finalize.done", "steps", 2, "tool_calls", 1)
package logging
