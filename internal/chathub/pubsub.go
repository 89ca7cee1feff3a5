package chathub

import (
	"context"
	"errors"
	"log"
	"roomchat/backend/internal/models"
	"roomchat/backend/internal/storage"
)

// Run consumes control events published by administrative tooling until ctx
// is done. Without a configured broker it just waits for ctx.
func (m *ManagerService) Run(ctx context.Context) {
	events, err := m.Storage.SubscribeControl(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoBroker) {
			log.Println("INFO: Control channel disabled; moderation applies to new connections only")
		} else {
			log.Printf("ERROR: Failed to subscribe to control channel: %v", err)
		}
		<-ctx.Done()
		return
	}

	log.Println("INFO: Listening for control events")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Println("WARNING: Control channel closed")
				return
			}
			m.HandleControl(ev)
		}
	}
}

// HandleControl applies one control event to the local connections.
func (m *ManagerService) HandleControl(ev models.ControlEvent) {
	switch ev.Kind {
	case models.ControlForcedLogout:
		if ev.UserID == "" {
			log.Println("WARNING: Forced logout without user id ignored")
			return
		}
		m.ForceLogout(ev.UserID, ev.Reason)
	default:
		log.Printf("WARNING: Unknown control event %q ignored", ev.Kind)
	}
}
