package chathub

import (
	"roomchat/backend/internal/models"
	"sync"
)

type presenceEntry struct {
	client      Client
	identity    models.Identity
	displayName string
}

// PresenceRegistry is the authoritative set of joined connections.
// It indexes clients by connection id; it does not own them.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]presenceEntry
	order   []string // insertion order of connection ids
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]presenceEntry),
	}
}

// Register inserts a joined connection. A second registration of the same
// connection id is an invariant violation and returns ErrDuplicateConnection.
func (r *PresenceRegistry) Register(client Client, identity models.Identity, displayName string) error {
	id := client.GetConnID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return ErrDuplicateConnection
	}
	r.entries[id] = presenceEntry{client: client, identity: identity, displayName: displayName}
	r.order = append(r.order, id)
	return nil
}

// Unregister removes the entry of a connection. It reports whether an entry
// was removed; removing an absent id is not an error.
func (r *PresenceRegistry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connID]; !ok {
		return false
	}
	delete(r.entries, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// SnapshotNames returns the display names of all entries in insertion order.
// Duplicate names are kept.
func (r *PresenceRegistry) SnapshotNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		names = append(names, r.entries[id].displayName)
	}
	return names
}

// Snapshot returns the full entries in insertion order.
func (r *PresenceRegistry) Snapshot() []models.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]models.PresenceEntry, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		entries = append(entries, models.PresenceEntry{
			ConnectionID: id,
			UserID:       e.identity.UserID,
			DisplayName:  e.displayName,
		})
	}
	return entries
}

// Clients returns the registered clients in insertion order.
func (r *PresenceRegistry) Clients() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]Client, 0, len(r.order))
	for _, id := range r.order {
		clients = append(clients, r.entries[id].client)
	}
	return clients
}

// Len returns the number of joined connections.
func (r *PresenceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
