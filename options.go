package arbor

import (
	"log/slog"

	"github.com/aretw0/arbor/pkg/ports"
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks ports.LifecycleHooks) Option {
	return func(e *Engine) {
		if hooks != nil {
			e.hooks = hooks
		}
	}
}

// WithUserDataStore configures persistence for answer state. Without a
// store the engine keeps answers in memory for the process lifetime.
func WithUserDataStore(store ports.UserDataStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithUserKey sets the user key answers are recorded under. A random key
// is generated when none is given.
func WithUserKey(key string) Option {
	return func(e *Engine) {
		e.userKey = key
	}
}

// WithReadOnly puts the engine in read only state; answers cannot be
// changed and user data cannot be submitted.
func WithReadOnly(readOnly bool) Option {
	return func(e *Engine) {
		e.readOnly = readOnly
	}
}

// WithSubmitOnInvalid allows Submit to proceed when a validation rule
// failed.
func WithSubmitOnInvalid(allow bool) Option {
	return func(e *Engine) {
		e.submitOnInvalid = allow
	}
}
