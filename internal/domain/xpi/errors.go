package xpi

import "errors"

var (
	// ErrConfigurationMissing reports that signing credentials are not configured.
	// Callers treat it as a reason to skip signing, not as a failure.
	ErrConfigurationMissing = errors.New("signing configuration missing")
	// ErrAlreadySigned reports that the signing service already holds this id and version.
	ErrAlreadySigned = errors.New("already signed")
	// ErrSigningTimeout is returned when the poll budget is exhausted without a signed file.
	ErrSigningTimeout = errors.New("signing timed out")
	// ErrUnexpectedSigningResponse is returned for malformed signing status payloads.
	ErrUnexpectedSigningResponse = errors.New("unexpected signing response")
	// ErrUnsupportedSource is returned when no resolution strategy accepts a fixture source.
	ErrUnsupportedSource = errors.New("unsupported fixture source")
	// ErrTooManyIndirections guards against chained fixture indirections.
	ErrTooManyIndirections = errors.New("too many fixture indirections")
	// ErrInvalidArgument is returned for bad version bump levels and malformed versions.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBadHTTPStatus is returned when a remote endpoint answers with an unexpected status.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// ErrReleaseRunning is returned when another release holds the marker file.
	ErrReleaseRunning = errors.New("another release is running")
	// ErrDirtyWorktree is returned when a bump is attempted with uncommitted changes.
	ErrDirtyWorktree = errors.New("modified files not checked in")
)
