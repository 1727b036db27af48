// Package logging provides subsystem-tagged, leveled logging for the poller
// built on Go's standard slog package.
//
// # Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about controller operation
//   - **Warn**: Conditions that are recovered locally (duplicate devices, empty sources)
//   - **Error**: Failures that end a sync cycle or a run loop
//
// ParseLevel accepts the level names used in poller configuration files
// (DEBUG, INFO, WARNING, ERROR, CRITICAL).
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Orchestrator", "Created controller %s (id %d)", name, id)
//	logging.Warn("Controller", "Ignoring duplicated device %s", device)
//	logging.Error("Controller", err, "Unexpected error in run loop")
//
// # Capture Mode
//
// InitForCapture routes entries to a buffered channel instead of a writer.
// Tests use it to assert on the warnings a sync cycle emits:
//
//	entries := logging.InitForCapture(logging.LevelWarn, 0)
//	defer logging.CloseCapture()
//
// When the channel is full, entries are dropped and a notice is printed to
// stderr; logging never blocks the caller.
//
// # Thread Safety
//
// All functions are safe for concurrent use. Switching modes while other
// goroutines log is allowed; entries logged during the switch go to either
// the old or the new destination.
package logging
