package storage

import (
	"context"

	"github.com/fablegate/fable/pkg/state"
)

// Store persists sessions and the active-session pointer.
type Store interface {
	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error

	// SaveSession writes a full session record, replacing any previous
	// version under the same id.
	SaveSession(ctx context.Context, s *state.Session) error

	// LoadSessions returns all stored sessions keyed by id. A store with
	// no sessions returns an empty map, not an error.
	LoadSessions(ctx context.Context) (map[string]*state.Session, error)

	// DeleteSession removes a session. Deleting an unknown id is not an
	// error.
	DeleteSession(ctx context.Context, id string) error

	// SaveActiveID records which session is currently selected. An empty
	// id clears the pointer.
	SaveActiveID(ctx context.Context, id string) error

	// LoadActiveID returns the selected session id, or "" when no
	// pointer is set.
	LoadActiveID(ctx context.Context) (string, error)
}
