// Package moderation implements administrative actions on accounts: role
// changes, escalating bans and account removal. Every action that changes
// what a user may do forces that user's live connections out through the
// control channel.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"roomchat/backend/internal/config"
	"roomchat/backend/internal/localization"
	"roomchat/backend/internal/models"
	"roomchat/backend/internal/storage"
	"time"
)

// ErrInvalidDuration is returned for a negative explicit ban duration.
var ErrInvalidDuration = errors.New("ban duration must not be negative")

// Service handles the business logic for moderation.
type Service struct {
	Storage storage.Storage
	Now     func() time.Time
}

// NewService creates a new moderation service.
func NewService(s storage.Storage) *Service {
	return &Service{Storage: s, Now: time.Now}
}

// Promote grants the admin role.
func (s *Service) Promote(ctx context.Context, userID string) (*models.User, error) {
	return s.setRole(ctx, userID, models.RoleAdmin)
}

// Demote takes the admin role away.
func (s *Service) Demote(ctx context.Context, userID string) (*models.User, error) {
	return s.setRole(ctx, userID, models.RoleUser)
}

// setRole persists the new role and forces live connections to reconnect,
// since an identity is fixed for the lifetime of a connection.
func (s *Service) setRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	user, err := s.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}

	user.Role = role
	if err := s.Storage.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update role of %s: %w", userID, err)
	}
	log.Printf("INFO: User %s is now %s", userID, role)

	return user, s.forceLogout(ctx, userID, localization.KeyRoleChanged)
}

// Ban blocks an account. A zero duration applies the escalating ban ladder:
// a ban within config.BanEscalationWindow of the previous one goes one level
// up, up to config.MaxBanLevel.
func (s *Service) Ban(ctx context.Context, userID string, d time.Duration) (*models.User, error) {
	if d < 0 {
		return nil, ErrInvalidDuration
	}

	user, err := s.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	level := nextBanLevel(user, now)
	if d == 0 {
		d = config.BanDuration(level)
	}

	user.IsBlocked = true
	user.BlockEndTime = now.Add(d).Unix()
	user.BlockLevel = level
	user.LastBanDate = now.Unix()
	if err := s.Storage.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("ban %s: %w", userID, err)
	}
	if err := s.Storage.SetBan(ctx, userID, d); err != nil {
		log.Printf("WARNING: Ban of %s not cached: %v", userID, err)
	}
	log.Printf("INFO: User %s banned for %s (level %d)", userID, d, level)

	return user, s.forceLogout(ctx, userID, localization.KeyAccountBanned)
}

func nextBanLevel(user *models.User, now time.Time) int {
	if user.LastBanDate == 0 || user.BlockLevel == 0 {
		return 1
	}
	if now.Sub(time.Unix(user.LastBanDate, 0)) >= config.BanEscalationWindow {
		return 1
	}
	return min(user.BlockLevel+1, config.MaxBanLevel)
}

// Unban lifts a ban. The ban level is kept so a quick relapse escalates.
func (s *Service) Unban(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.IsBlocked = false
	user.BlockEndTime = 0
	if err := s.Storage.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("unban %s: %w", userID, err)
	}
	if err := s.Storage.ClearBan(ctx, userID); err != nil {
		log.Printf("WARNING: Ban flag of %s not cleared: %v", userID, err)
	}
	log.Printf("INFO: User %s unbanned", userID)
	return user, nil
}

// Remove deletes an account. Its messages stay in the log.
func (s *Service) Remove(ctx context.Context, userID string) error {
	if err := s.Storage.DeleteUser(ctx, userID); err != nil {
		return err
	}
	log.Printf("INFO: User %s removed", userID)
	return s.forceLogout(ctx, userID, localization.KeyAccountRemoved)
}

// forceLogout asks every running server to drop the user's connections.
// Without a broker the action still applies at the next connection attempt.
func (s *Service) forceLogout(ctx context.Context, userID, reasonKey string) error {
	err := s.Storage.PublishControl(ctx, models.ControlEvent{
		Kind:   models.ControlForcedLogout,
		UserID: userID,
		Reason: reasonKey,
	})
	if errors.Is(err, storage.ErrNoBroker) {
		log.Printf("WARNING: No control channel; live connections of %s stay open until they reconnect", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("publish forced logout for %s: %w", userID, err)
	}
	return nil
}
