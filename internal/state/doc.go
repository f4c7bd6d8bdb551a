// Package state implements the event log, view cache and key/value table
// on SQLite.
package state

import "github.com/user/foreman/internal/types"

// Compile-time interface compliance checks.
var _ types.EventStore = (*Store)(nil)
var _ types.ViewStore = (*Store)(nil)
var _ types.KVStore = (*Store)(nil)
