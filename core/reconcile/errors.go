package reconcile

import "errors"

var (
	// ErrConfiguration aborts a run: no source priority, or the node does not process the kind.
	ErrConfiguration = errors.New("configuration error")
	// ErrAlreadyRunning is returned when another sync run holds the exclusive lock.
	ErrAlreadyRunning = errors.New("another records sync process is running")
	// ErrTransfer marks a failed blob copy. Per item, never run-fatal.
	ErrTransfer = errors.New("blob transfer failed")
	// ErrSourceQuery marks an unreachable or failing remote source.
	ErrSourceQuery = errors.New("source query failed")
	// ErrValidation marks malformed run input.
	ErrValidation = errors.New("validation error")
)

// IsFatal reports whether err must abort the run instead of becoming an item outcome.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrValidation)
}
