package memory

import "errors"

// Sentinel errors surfaced by the engine. Operations wrap them with
// context, so callers match with errors.Is.
var (
	// ErrNotFound means the agent or episode id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means a caller-supplied field failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflictInProgress means a consolidation pass already holds
	// the agent. The caller should retry later.
	ErrConflictInProgress = errors.New("consolidation already in progress")

	// ErrDurability means the log could not commit a write. The
	// operation did not happen.
	ErrDurability = errors.New("durable write failed")

	// ErrCorruption means a log record failed its checksum or could
	// not be decoded.
	ErrCorruption = errors.New("corrupt log record")

	// ErrClosed means the engine has been shut down.
	ErrClosed = errors.New("memory engine is closed")
)
