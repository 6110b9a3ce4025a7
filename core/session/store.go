package session

import (
	"context"

	"github.com/pkg/errors"
)

var ErrKeyNotFound = errors.New("session store: key not found")

// Event is a change notification for one key of a client's durable store.
// An empty Value means the key was deleted.
type Event struct {
	Key   string
	Value string
}

// Store is the durable, non-expiring store for one client. It outlives the
// cookie layer and is shared by every tab/request of that client.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	// Watch streams change events for this client's keys until ctx is done.
	Watch(ctx context.Context) (<-chan Event, error)
}

// Provider hands out the per-client namespaces of the durable store.
type Provider interface {
	ForClient(clientID string) Store
}
