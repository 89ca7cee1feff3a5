package chathub

import (
	"log"
	"roomchat/backend/internal/models"
	"sync"
)

type audienceMember struct {
	client   Client
	identity models.Identity
}

// Broadcaster delivers events to connections. BroadcastAll reaches every
// joined connection; BroadcastTo and BroadcastFiltered reach any
// authenticated connection.
//
// Every delivery is a non-blocking enqueue on the client's own buffered
// queue, so frames reach one destination in the order they were handed over
// and a broken destination never holds up the others.
type Broadcaster struct {
	registry *PresenceRegistry

	mu     sync.RWMutex
	online map[string]audienceMember
}

// NewBroadcaster creates a broadcaster whose "all" audience is the registry.
func NewBroadcaster(registry *PresenceRegistry) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		online:   make(map[string]audienceMember),
	}
}

// Attach makes an authenticated connection addressable.
func (b *Broadcaster) Attach(client Client, identity models.Identity) error {
	id := client.GetConnID()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.online[id]; ok {
		return ErrDuplicateConnection
	}
	b.online[id] = audienceMember{client: client, identity: identity}
	return nil
}

// Detach stops all future deliveries to a connection.
func (b *Broadcaster) Detach(connID string) {
	b.mu.Lock()
	delete(b.online, connID)
	b.mu.Unlock()
}

// BroadcastAll delivers the event to every joined connection and returns how
// many accepted it.
func (b *Broadcaster) BroadcastAll(event string, payload any) int {
	frame, ok := encode(event, payload)
	if !ok {
		return 0
	}

	delivered := 0
	for _, client := range b.registry.Clients() {
		if deliver(client, event, frame) {
			delivered++
		}
	}
	return delivered
}

// BroadcastTo delivers the event to exactly one connection.
// It returns ErrConnectionGone when the connection is no longer live.
func (b *Broadcaster) BroadcastTo(connID, event string, payload any) error {
	b.mu.RLock()
	member, ok := b.online[connID]
	b.mu.RUnlock()

	if !ok {
		log.Printf("WARNING: Not delivering %s: connection %s is gone", event, connID)
		return ErrConnectionGone
	}

	frame, encoded := encode(event, payload)
	if !encoded {
		return errEncode
	}
	if !deliver(member.client, event, frame) {
		return ErrConnectionGone
	}
	return nil
}

// BroadcastFiltered delivers the event to authenticated connections whose
// identity satisfies match.
func (b *Broadcaster) BroadcastFiltered(match func(models.Identity) bool, event string, payload any) int {
	b.mu.RLock()
	targets := make([]Client, 0, len(b.online))
	for _, member := range b.online {
		if match(member.identity) {
			targets = append(targets, member.client)
		}
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	frame, ok := encode(event, payload)
	if !ok {
		return 0
	}

	delivered := 0
	for _, client := range targets {
		if deliver(client, event, frame) {
			delivered++
		}
	}
	return delivered
}

// OnlineCount returns the number of authenticated connections.
func (b *Broadcaster) OnlineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.online)
}

func encode(event string, payload any) ([]byte, bool) {
	frame, err := models.EncodeFrame(event, payload)
	if err != nil {
		log.Printf("ERROR: Failed to encode %s: %v", event, err)
		return nil, false
	}
	return frame, true
}

// deliver enqueues one frame. A client that cannot take it is closed: its
// queue is either full or already shut, and skipping frames would break the
// per-destination order.
func deliver(client Client, event string, frame []byte) bool {
	if client.Enqueue(frame) {
		return true
	}
	log.Printf("WARNING: Dropping %s for connection %s: send buffer full or closed", event, client.GetConnID())
	client.Close()
	return false
}
