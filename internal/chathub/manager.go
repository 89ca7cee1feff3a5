package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"roomchat/backend/internal/config"
	"roomchat/backend/internal/localization"
	"roomchat/backend/internal/models"
	"roomchat/backend/internal/storage"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxMessageLength = 2000

// CredentialGate turns a bearer token into a verified identity.
type CredentialGate interface {
	VerifyToken(ctx context.Context, token string) (models.Identity, error)
}

// Options tunes the coordinator. Zero values select the defaults.
type Options struct {
	// HistoryLimit caps the history replayed on join; 0 replays everything.
	HistoryLimit int
	// MaxMessageLength is counted in runes after sanitizing.
	MaxMessageLength int
	// RateLimit bounds send-message per connection; a zero Burst disables it.
	RateLimit config.RateLimit
	// BindNickname ignores the requested display name and uses the account nickname.
	BindNickname bool
	// Lang selects the language of notices.
	Lang string
}

// OptionsFromConfig extracts coordinator options from the process configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		HistoryLimit:     cfg.HistoryLimit,
		MaxMessageLength: cfg.MaxMessageLength,
		RateLimit:        cfg.RateLimit,
		BindNickname:     cfg.BindNickname,
		Lang:             cfg.DefaultLang,
	}
}

// ManagerService is the session coordinator. It drives every connection
// through Pending → Authenticated → Joined → Closed and owns the ordering
// guarantees between the message log, the presence registry and the
// broadcaster.
//
// publishMu serializes "append then broadcast" with history replay, so every
// joined connection sees each message exactly once, in log order. rosterMu
// serializes roster snapshots with their broadcast, so roster updates reach
// everyone in the order the registry changed.
type ManagerService struct {
	Storage     storage.Storage
	Gate        CredentialGate
	Localizer   *localization.Localizer
	Registry    *PresenceRegistry
	Broadcaster *Broadcaster

	opts Options
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	publishMu     sync.Mutex
	lastTimestamp time.Time

	rosterMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManagerService creates a coordinator over the given storage and gate.
func NewManagerService(s storage.Storage, gate CredentialGate, loc *localization.Localizer, opts Options) *ManagerService {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaultMaxMessageLength
	}
	if opts.Lang == "" {
		opts.Lang = "en"
	}

	registry := NewPresenceRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	return &ManagerService{
		Storage:     s,
		Gate:        gate,
		Localizer:   loc,
		Registry:    registry,
		Broadcaster: NewBroadcaster(registry),
		opts:        opts,
		now:         time.Now,
		sessions:    make(map[string]*Session),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is cancelled when the coordinator shuts down.
func (m *ManagerService) Context() context.Context { return m.ctx }

// Connect authenticates a new connection. On success the session is
// Authenticated and addressable; on failure no session exists and the caller
// should reject the connection with AuthErrorMessage(err).
func (m *ManagerService) Connect(ctx context.Context, client Client, token string) (*Session, error) {
	identity, err := m.Gate.VerifyToken(ctx, token)
	if err != nil {
		log.Printf("WARNING: Rejected connection %s: %v", client.GetConnID(), err)
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	sess := newSession(client, identity, m.newLimiter())

	if err := m.Broadcaster.Attach(client, identity); err != nil {
		log.Printf("INVARIANT: Connection %s attached twice: %v", client.GetConnID(), err)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	m.mu.Unlock()

	sess.transition(StatePending, StateAuthenticated)
	log.Printf("INFO: Connection %s authenticated as user %s (%s)", sess.ID(), identity.UserID, identity.Role)

	if identity.IsAdmin() {
		m.Broadcaster.BroadcastTo(sess.ID(), models.EventAdminAllowed, nil)
	}
	return sess, nil
}

// AuthErrorMessage is the notice text for a failed Connect.
func (m *ManagerService) AuthErrorMessage(err error) string {
	return m.text(authNoticeKey(err))
}

// HandleEvent decodes and routes one inbound frame. Failures are reported to
// the connection as notices; nothing is returned to the transport.
func (m *ManagerService) HandleEvent(ctx context.Context, sess *Session, raw []byte) {
	frame, err := models.DecodeFrame(raw)
	if err != nil {
		m.report(sess, "", invalid(ErrInvalidPayload, localization.KeyInvalidPayload))
		return
	}

	switch frame.Event {
	case models.EventJoin:
		var p models.JoinPayload
		if err = decodePayload(frame.Payload, &p); err == nil {
			err = m.Join(ctx, sess, p.DisplayName)
		}
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err = decodePayload(frame.Payload, &p); err == nil {
			err = m.SendMessage(ctx, sess, p.Text)
		}
	case models.EventAdminQueryUsers:
		err = m.QueryUsers(ctx, sess)
	case models.EventAdminQueryMessages:
		var p models.MessagesQueryPayload
		if err = decodePayload(frame.Payload, &p); err == nil {
			err = m.QueryMessages(ctx, sess, models.HistoryScope{SenderID: p.SenderID, Limit: p.Limit})
		}
	default:
		err = invalid(ErrUnknownEvent, localization.KeyUnknownEvent)
	}

	m.report(sess, frame.Event, err)
}

// decodePayload accepts a missing payload as the zero value.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalid(ErrInvalidPayload, localization.KeyInvalidPayload)
	}
	return nil
}

// Join moves an Authenticated session to Joined: it registers the connection,
// announces the new roster and replays the message history to the joiner.
func (m *ManagerService) Join(ctx context.Context, sess *Session, requestedName string) error {
	switch sess.State() {
	case StateJoined:
		return invalid(ErrAlreadyJoined, localization.KeyAlreadyJoined)
	case StateClosed:
		return ErrSessionClosed
	}

	name, err := m.resolveDisplayName(sess.Identity(), requestedName)
	if err != nil {
		return err
	}

	if _, err := m.Storage.GetUserByID(ctx, sess.Identity().UserID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Printf("WARNING: Account %s vanished before join; forcing logout", sess.Identity().UserID)
			m.ForceLogout(sess.Identity().UserID, localization.KeyAccountRemoved)
			return ErrSessionClosed
		}
		log.Printf("WARNING: Could not re-check account %s on join: %v", sess.Identity().UserID, err)
	}

	// Registration and history replay share publishMu with SendMessage: a
	// message is either in the replayed history or broadcast to the joiner,
	// never both.
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	sess.mu.Lock()
	if sess.state != StateAuthenticated {
		state := sess.state
		sess.mu.Unlock()
		if state == StateJoined {
			return invalid(ErrAlreadyJoined, localization.KeyAlreadyJoined)
		}
		return ErrSessionClosed
	}
	if err := m.Registry.Register(sess.client, sess.identity, name); err != nil {
		sess.mu.Unlock()
		return err
	}
	sess.displayName = name
	sess.state = StateJoined
	sess.mu.Unlock()

	log.Printf("INFO: Connection %s joined as %q", sess.ID(), name)

	m.broadcastRoster()
	return m.replayHistory(ctx, sess)
}

func (m *ManagerService) resolveDisplayName(identity models.Identity, requested string) (string, error) {
	name := SanitizeText(requested)
	if m.opts.BindNickname || name == "" {
		name = SanitizeText(identity.DisplayName)
	}
	if name == "" || runeLen(name) > config.MaxNicknameLength {
		return "", invalid(ErrInvalidDisplayName, localization.KeyInvalidName)
	}
	return name, nil
}

// replayHistory sends the message log to one joined connection.
// Caller holds publishMu.
func (m *ManagerService) replayHistory(ctx context.Context, sess *Session) error {
	history, err := m.Storage.GetChatHistory(ctx, models.HistoryScope{Limit: m.opts.HistoryLimit})
	if err != nil {
		return storageFailure("load history", localization.KeyHistoryFailed, err)
	}
	if err := m.Broadcaster.BroadcastTo(sess.ID(), models.EventHistory, history); err != nil {
		log.Printf("WARNING: History for connection %s not delivered: %v", sess.ID(), err)
	}
	return nil
}

// SendMessage sanitizes the text, appends it to the log and then broadcasts
// it to every joined connection. Nothing is broadcast if the append fails.
func (m *ManagerService) SendMessage(ctx context.Context, sess *Session, text string) error {
	if sess.State() != StateJoined {
		return invalid(ErrNotJoined, localization.KeyNotJoined)
	}

	clean := SanitizeText(text)
	if clean == "" {
		return invalid(ErrEmptyMessage, localization.KeyEmptyMessage)
	}
	if runeLen(clean) > m.opts.MaxMessageLength {
		return invalid(ErrMessageTooLong, localization.KeyMessageTooLong)
	}
	if !sess.allow() {
		return invalid(ErrRateLimited, localization.KeyRateLimited)
	}

	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	// A forced logout may have closed the session while waiting for the lock.
	if sess.State() != StateJoined {
		return ErrSessionClosed
	}

	msg := models.ChatMessage{
		SenderID:  sess.Identity().UserID,
		Sender:    sess.DisplayName(),
		Text:      clean,
		Timestamp: m.nextTimestamp(),
	}
	if err := m.Storage.AppendMessage(ctx, &msg); err != nil {
		return storageFailure("append message", localization.KeyDeliveryFailed, err)
	}

	m.Broadcaster.BroadcastAll(models.EventMessage, msg)
	return nil
}

// nextTimestamp returns a millisecond-precision UTC time that never goes
// backwards. Caller holds publishMu.
func (m *ManagerService) nextTimestamp() time.Time {
	ts := m.now().UTC().Truncate(time.Millisecond)
	if ts.Before(m.lastTimestamp) {
		ts = m.lastTimestamp
	}
	m.lastTimestamp = ts
	return ts
}

// QueryUsers answers admin-query-users with every account.
func (m *ManagerService) QueryUsers(ctx context.Context, sess *Session) error {
	if err := m.authorize(sess, models.CapAdminQueryUsers, models.EventAdminQueryUsers); err != nil {
		return err
	}

	users, err := m.Storage.ListUsers(ctx)
	if err != nil {
		return storageFailure("list users", localization.KeyQueryFailed, err)
	}
	if users == nil {
		users = []models.User{}
	}
	return m.Broadcaster.BroadcastTo(sess.ID(), models.EventUsersList, users)
}

// QueryMessages answers admin-query-messages with the log, optionally scoped.
func (m *ManagerService) QueryMessages(ctx context.Context, sess *Session, scope models.HistoryScope) error {
	if err := m.authorize(sess, models.CapAdminQueryMessages, models.EventAdminQueryMessages); err != nil {
		return err
	}
	if scope.Limit < 0 {
		return invalid(ErrInvalidPayload, localization.KeyInvalidPayload)
	}

	messages, err := m.Storage.GetChatHistory(ctx, scope)
	if err != nil {
		return storageFailure("query messages", localization.KeyQueryFailed, err)
	}
	return m.Broadcaster.BroadcastTo(sess.ID(), models.EventMessagesList, messages)
}

// authorize gates admin queries. Unauthorized attempts are logged and never
// answered.
func (m *ManagerService) authorize(sess *Session, capability models.Capability, event string) error {
	if !sess.Identity().Can(capability) {
		log.Printf("WARNING: User %s (%s) attempted %s on connection %s", sess.Identity().UserID, sess.Identity().Role, event, sess.ID())
		return ErrForbidden
	}
	if sess.State() != StateJoined {
		return invalid(ErrNotJoined, localization.KeyNotJoined)
	}
	return nil
}

// broadcastRoster sends the current roster to every joined connection and the
// detailed presence view to admins.
func (m *ManagerService) broadcastRoster() {
	m.rosterMu.Lock()
	defer m.rosterMu.Unlock()

	entries := m.Registry.Snapshot()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.DisplayName)
	}

	m.Broadcaster.BroadcastAll(models.EventRosterUpdate, models.RosterPayload{Names: names})
	m.Broadcaster.BroadcastFiltered(func(id models.Identity) bool {
		return id.Can(models.CapAdminPresence)
	}, models.EventAdminPresence, models.AdminPresencePayload{Entries: entries})
}

// Disconnect closes a session. It is idempotent: only the first call removes
// the connection from the presence registry, whatever state it was in, and
// announces the new roster if an entry was removed.
func (m *ManagerService) Disconnect(sess *Session) {
	if sess == nil {
		return
	}
	prev, ok := sess.close()
	if !ok {
		return
	}

	m.mu.Lock()
	if m.sessions[sess.ID()] == sess {
		delete(m.sessions, sess.ID())
	}
	m.mu.Unlock()

	m.Broadcaster.Detach(sess.ID())

	switch removed := m.Registry.Unregister(sess.ID()); {
	case removed && prev != StateJoined:
		log.Printf("INVARIANT: Connection %s was registered while %s: %v", sess.ID(), prev, ErrSessionDesync)
		m.broadcastRoster()
	case removed:
		m.broadcastRoster()
	case prev == StateJoined:
		log.Printf("INVARIANT: Joined connection %s missing from presence registry: %v", sess.ID(), ErrSessionDesync)
	}
	log.Printf("INFO: Connection %s closed (was %s)", sess.ID(), prev)
}

// ForceLogout notifies every connection of a user with reason and then
// severs them. It returns the number of connections closed.
func (m *ManagerService) ForceLogout(userID, reasonKey string) int {
	targets := m.sessionsOf(userID)
	payload := models.ForcedLogoutPayload{Reason: m.text(reasonKey)}

	for _, sess := range targets {
		m.Broadcaster.BroadcastTo(sess.ID(), models.EventForcedLogout, payload)
		m.Disconnect(sess)
		sess.client.Close()
	}
	if len(targets) > 0 {
		log.Printf("INFO: Forced logout of user %s from %d connection(s): %s", userID, len(targets), reasonKey)
	}
	return len(targets)
}

func (m *ManagerService) sessionsOf(userID string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, sess := range m.sessions {
		if sess.identity.UserID == userID {
			out = append(out, sess)
		}
	}
	return out
}

// OnlineCount returns the number of joined connections.
func (m *ManagerService) OnlineCount() int {
	return m.Registry.Len()
}

// ConnectedCount returns the number of authenticated connections, joined or not.
func (m *ManagerService) ConnectedCount() int {
	return m.Broadcaster.OnlineCount()
}

// FrameLimit is the largest inbound frame a connection may send. It leaves
// room for a message of MaxMessageLength runes with every rune JSON-escaped.
func (m *ManagerService) FrameLimit() int64 {
	return config.FrameSizeLimit(m.opts.MaxMessageLength)
}

// Shutdown closes every session and cancels the coordinator context.
func (m *ManagerService) Shutdown() {
	m.cancel()

	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.mu.Unlock()

	for _, sess := range all {
		m.Disconnect(sess)
		sess.client.Close()
	}
	log.Printf("INFO: Coordinator stopped, %d connection(s) closed", len(all))
}

// report turns a handler error into the matching notice.
func (m *ManagerService) report(sess *Session, event string, err error) {
	if err == nil {
		return
	}

	var verr *ValidationError
	var serr *StorageError
	switch {
	case errors.As(err, &verr):
		m.notify(sess, models.EventValidationError, verr.Key)
	case errors.As(err, &serr):
		log.Printf("ERROR: %s for connection %s failed: %v", event, sess.ID(), err)
		m.notify(sess, models.EventDeliveryError, serr.Key)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrSessionClosed), errors.Is(err, ErrConnectionGone):
	case IsInvariantViolation(err):
		log.Printf("INVARIANT: %s on connection %s: %v", event, sess.ID(), err)
		m.abort(sess)
	default:
		log.Printf("ERROR: %s on connection %s: %v", event, sess.ID(), err)
	}
}

// abort force-closes a connection whose state can no longer be trusted.
func (m *ManagerService) abort(sess *Session) {
	m.notify(sess, models.EventDeliveryError, localization.KeyInternalViolation)
	m.Disconnect(sess)
	sess.client.Close()
}

func (m *ManagerService) notify(sess *Session, event, key string) {
	m.Broadcaster.BroadcastTo(sess.ID(), event, models.ErrorPayload{Message: m.text(key)})
}

func (m *ManagerService) text(key string) string {
	return m.Localizer.GetString(m.opts.Lang, key)
}

func (m *ManagerService) newLimiter() *rate.Limiter {
	rl := m.opts.RateLimit
	if rl.Burst <= 0 || rl.Interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(rl.Interval/time.Duration(rl.Burst)), rl.Burst)
}
