package ports

import (
	"context"
	"errors"

	"github.com/aretw0/arbor/pkg/answers"
)

// ErrUserDataNotFound is returned by a UserDataStore when no record exists
// for the requested user key.
var ErrUserDataNotFound = errors.New("user data not found")

// UserDataStore defines the interface for persisting per-user answer state.
// This allows sessions to be stopped and resumed across processes.
type UserDataStore interface {
	// Save persists the answer store for its user key.
	Save(ctx context.Context, data *answers.Store) error

	// Load retrieves the answer store for a user key.
	// Returns ErrUserDataNotFound if no record exists.
	Load(ctx context.Context, userKey string) (*answers.Store, error)

	// Delete removes the record for a user key.
	Delete(ctx context.Context, userKey string) error
}

// Submitter finalizes a completed session with the backing system. Stores
// that cannot submit (memory, plain redis) simply do not implement it.
type Submitter interface {
	// Submit delivers the answer store for final processing.
	Submit(ctx context.Context, data *answers.Store) error
}
