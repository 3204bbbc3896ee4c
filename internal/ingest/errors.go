package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

var (
	// ErrFetch marks transport failures: feed unreachable or non-200 response.
	ErrFetch = errors.New("feed fetch failed")
	// ErrMalformedFeed marks a body that is not a parseable XML document.
	ErrMalformedFeed = errors.New("malformed feed document")
	// ErrStoreBroken marks a persistence layer that can no longer accept writes.
	ErrStoreBroken = errors.New("store is no longer usable")
)

// EntryError describes why a single feed entry could not be stored.
type EntryError struct {
	ExternalID string
	Stage      string // authority, extract, upsert, flush
	Location   string // file:line that recorded the failure
	Err        error
	// Fatal is set when the store became unusable; the run must stop.
	Fatal bool
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %s: %s: %v", e.ExternalID, e.Stage, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// newEntryError reports the location recorded by errorf when err carries one,
// otherwise its own caller.
func newEntryError(externalID, stage string, err error) *EntryError {
	loc := callerLocation(2)
	var located *locatedError
	if errors.As(err, &located) {
		loc = located.location
	}
	return &EntryError{ExternalID: externalID, Stage: stage, Location: loc, Err: err}
}

// locatedError remembers the file:line where a failure was first wrapped.
type locatedError struct {
	location string
	err      error
}

func (e *locatedError) Error() string { return e.err.Error() }

func (e *locatedError) Unwrap() error { return e.err }

// errorf is fmt.Errorf that records the caller's location.
func errorf(format string, args ...interface{}) error {
	return &locatedError{location: callerLocation(2), err: fmt.Errorf(format, args...)}
}

func callerLocation(skip int) string {
	if _, file, line, ok := runtime.Caller(skip); ok {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return "unknown"
}

// SyncError is returned when a run does not complete. Stats holds the counters
// reached before the abort.
type SyncError struct {
	Feed  string
	Stats Stats
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Feed, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
