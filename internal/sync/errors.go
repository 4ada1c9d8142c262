package sync

import "github.com/pkg/errors"

// Fatal errors. Anything returned from RunSync wraps one of these; per-entry
// failures inside a pair are logged and counted instead.
var (
	// ErrMissingOption indicates a required option was not supplied.
	ErrMissingOption = errors.New("missing required option")
	// ErrConflictingOptions indicates mutually exclusive options were combined.
	ErrConflictingOptions = errors.New("conflicting options")
	// ErrUnsupportedLocation indicates a network-style source or target.
	ErrUnsupportedLocation = errors.New("network synchronization is not supported")
	// ErrSourceNotFound indicates a configured source root does not exist.
	ErrSourceNotFound = errors.New("source does not exist")
	// ErrInvalidPattern indicates an explicit regular expression failed to compile.
	ErrInvalidPattern = errors.New("invalid ignore pattern")
)
