package models

import (
	"encoding/json"
	"fmt"
)

// Client → server events.
const (
	EventJoin               = "join"
	EventSendMessage        = "send-message"
	EventAdminQueryUsers    = "admin-query-users"
	EventAdminQueryMessages = "admin-query-messages"
)

// Server → client events.
const (
	EventRosterUpdate    = "roster-update"
	EventHistory         = "history"
	EventMessage         = "message"
	EventUsersList       = "users-list"
	EventMessagesList    = "messages-list"
	EventAdminAllowed    = "admin-allowed"
	EventAdminPresence   = "admin-presence"
	EventForcedLogout    = "forced-logout"
	EventAuthError       = "auth-error"
	EventDeliveryError   = "delivery-error"
	EventValidationError = "validation-error"
)

// Frame is the envelope of every websocket text frame in both directions.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame marshals an event with its payload into one text frame.
// A nil payload produces a frame without the payload field.
func EncodeFrame(event string, payload any) ([]byte, error) {
	f := Frame{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		f.Payload = raw
	}
	return json.Marshal(f)
}

// DecodeFrame parses an inbound text frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("frame without event")
	}
	return f, nil
}

type JoinPayload struct {
	DisplayName string `json:"displayName"`
}

type SendMessagePayload struct {
	Text string `json:"text"`
}

type MessagesQueryPayload struct {
	SenderID string `json:"senderId,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type RosterPayload struct {
	Names []string `json:"names"`
}

// PresenceEntry is one row of the admin presence view.
type PresenceEntry struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
}

type AdminPresencePayload struct {
	Entries []PresenceEntry `json:"entries"`
}

type ForcedLogoutPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Control event kinds carried on the cross-process control channel.
const (
	ControlForcedLogout = "forced_logout"
)

// ControlEvent is published by administrative tooling and consumed by every
// running coordinator.
type ControlEvent struct {
	Kind   string `json:"kind"`
	UserID string `json:"user_id"`
	// Reason is a localization key describing why the action was taken.
	Reason string `json:"reason"`
}
