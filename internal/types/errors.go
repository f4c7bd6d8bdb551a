package types

import "errors"

var (
	// ErrStoreUnavailable reports a connection or timeout fault talking to
	// the durable store. It is fatal to the current operation and never
	// retried inline.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates a missing session, project, channel or view.
	ErrNotFound = errors.New("not found")

	// ErrMissingResource indicates a project has no repository configured.
	ErrMissingResource = errors.New("missing resource")

	// ErrExternalTask wraps failures raised by the external task runner.
	ErrExternalTask = errors.New("external task failed")

	// ErrRelayHandler wraps failures translating an event group into a
	// relay side effect.
	ErrRelayHandler = errors.New("relay handler failed")

	ErrInvalidID = errors.New("invalid id")

	// ErrExists rejects creating an entity whose partition already has a view.
	ErrExists = errors.New("already exists")
)
