/*
Package registry maps (pool, userId) to the live connection serving that user.

Pools namespace independent subsystems: the chat pool routes message events, the presence pool
additionally carries the user's visible status. Entries have no TTL and live until the owning
connection disconnects. The registry is shared by every service instance, so an entry records the
instance holding the socket as well as the connection id.
*/
package registry

import (
	"context"
	"fmt"
	"time"
)

// Pool namespaces registry entries per subsystem.
type Pool string

const (
	PoolChat     Pool = "chat"
	PoolPresence Pool = "presence"
)

// Status is the visible presence status of a user.
type Status string

const (
	StatusOnline    Status = "online"
	StatusInvisible Status = "invisible"
)

// ParseStatus validates a status sent by a client.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOnline, StatusInvisible:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Entry is the handle of a live connection.
type Entry struct {
	// InstanceID is the service instance holding the socket.
	InstanceID string

	// ConnID identifies the socket within its instance.
	ConnID string

	// Status is only meaningful in the presence pool.
	Status Status

	ConnectedAt time.Time
}

// Registry is the shared connection registry. Writers to the same key race with
// last-writer-wins semantics; the *Owned operations only act on the caller's own entry.
type Registry interface {
	// Set stores entry under (pool, userID), replacing any previous entry.
	Set(ctx context.Context, pool Pool, userID int64, entry Entry) error

	// Get returns the entry, or nil if the user has no live connection in the pool.
	Get(ctx context.Context, pool Pool, userID int64) (*Entry, error)

	// Delete removes the entry unconditionally.
	Delete(ctx context.Context, pool Pool, userID int64) error

	// DeleteOwned removes the entry only while it still belongs to connID.
	DeleteOwned(ctx context.Context, pool Pool, userID int64, connID string) (bool, error)

	// SetStatus updates the status only while the entry still belongs to connID.
	SetStatus(ctx context.Context, pool Pool, userID int64, connID string, status Status) (bool, error)
}
