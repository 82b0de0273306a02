package fragment

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptCheckpoint means the checkpoint sidecar exists but cannot
	// be parsed. The session refuses to guess and requires the caller to
	// clean up before restarting.
	ErrCorruptCheckpoint = errors.New("checkpoint file is corrupt")

	// ErrResumeMismatch means the checkpoint and the temp output file
	// disagree, one claims prior progress and the other does not.
	ErrResumeMismatch = errors.New("checkpoint does not match temp output file")
)

// UnavailableError reports a fragment whose retry budget was exhausted on
// remote errors. These are the only errors eligible for skipping.
type UnavailableError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("fragment %d unavailable after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IOError marks a local filesystem failure. Retrying cannot fix a bad
// disk, so these abort immediately and are never skipped.
type IOError struct {
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("local I/O error: %v", e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
