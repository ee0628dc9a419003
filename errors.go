package arbor

import "errors"

var (
	// ErrNoTreeLoaded is returned by operations that need a current tree
	// before any Load succeeded.
	ErrNoTreeLoaded = errors.New("no decision tree loaded")

	// ErrNoNextTree is returned by LoadNext when the current tree has no
	// next link.
	ErrNoNextTree = errors.New("next tree not defined")

	// ErrNoPreviousTree is returned by LoadPrevious on the first tree of
	// the chain.
	ErrNoPreviousTree = errors.New("no previous tree")

	// ErrReadOnly is returned by mutating operations on a read only engine.
	ErrReadOnly = errors.New("engine is read only")

	// ErrValidationFailed is returned by Submit when validation rules
	// failed and submitting invalid data is not allowed.
	ErrValidationFailed = errors.New("form failed to validate")

	// ErrSessionReset is returned when an operation completed after the
	// session it belonged to was reset; its result was discarded.
	ErrSessionReset = errors.New("session was reset")

	// ErrNoUserDataStore is returned by persistence operations when the
	// engine was built without a user data store.
	ErrNoUserDataStore = errors.New("no user data store configured")
)
