package command

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrInvalidArgument marks a malformed command. It is returned before the
	// store is touched.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingEntity marks a command whose target row no longer exists.
	ErrMissingEntity = errors.New("missing entity")

	// ErrStopped is returned by Submit after the executor has stopped.
	ErrStopped = errors.New("executor stopped")
)

// MissingEntityError names the vanished row.
type MissingEntityError struct {
	Entity string
	ID     string
}

func (e *MissingEntityError) Error() string {
	return fmt.Sprintf("%s no longer exists: %s", e.Entity, e.ID)
}

func (e *MissingEntityError) Is(target error) bool { return target == ErrMissingEntity }

// TransientStoreError is a store failure after which the whole command may
// be retried.
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string { return "transient store failure: " + e.Err.Error() }
func (e *TransientStoreError) Unwrap() error { return e.Err }

// DeferredWorkError is a failed deferred step. It is logged and counted,
// never returned to the submitter.
type DeferredWorkError struct {
	Kind Kind
	Step string
	Err  error
}

func (e *DeferredWorkError) Error() string {
	return fmt.Sprintf("deferred %s for %s: %v", e.Step, e.Kind, e.Err)
}
func (e *DeferredWorkError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientStoreError
	if errors.As(err, &te) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
