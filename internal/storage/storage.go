package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"roomchat/backend/internal/models"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	// ErrNoBroker is returned by control channel operations when Redis is not configured.
	ErrNoBroker = errors.New("control channel is not configured")
)

const (
	controlChannel = "roomchat:control"
	banKeyPrefix   = "ban:"
)

// Storage is everything the chat server persists: accounts, the message log,
// ban flags and the cross-process control channel.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, userID string) error

	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	GetChatHistory(ctx context.Context, scope models.HistoryScope) ([]models.ChatMessage, error)

	IsUserBanned(ctx context.Context, userID string) (bool, error)
	SetBan(ctx context.Context, userID string, d time.Duration) error
	ClearBan(ctx context.Context, userID string) error

	PublishControl(ctx context.Context, event models.ControlEvent) error
	SubscribeControl(ctx context.Context) (<-chan models.ControlEvent, error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor. rdb may be nil: ban flags then live only in
// the database and the control channel is unavailable.
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates or updates the tables.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(&models.User{}, &models.ChatHistory{})
}

// Close releases the database pool and the Redis client.
func (s *Service) Close() error {
	var errs []error
	if sqlDB, err := s.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	} else {
		errs = append(errs, err)
	}
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	return errors.Join(errs...)
}

// CreateUser inserts a new account. Emails are unique.
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if _, err := s.GetUserByEmail(ctx, user.Email); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		log.Printf("ERROR: Failed to create user %s: %v", user.Email, err)
		return err
	}
	return nil
}

// GetUserByID loads an account by its ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail loads an account by its (case-insensitive) email.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all accounts, oldest first.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	if err := s.DB.WithContext(ctx).Order("created_at asc").Find(&users).Error; err != nil {
		log.Printf("ERROR: Failed to list users: %v", err)
		return nil, err
	}
	return users, nil
}

// UpdateUser saves every field of an existing account.
func (s *Service) UpdateUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Save(user).Error
}

// DeleteUser removes an account. Messages it sent stay in the log.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	result := s.DB.WithContext(ctx).Where("id = ?", userID).Delete(&models.User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AppendMessage appends one message to the log and fills in its ID.
// The call is atomic: either the row is committed or an error is returned.
func (s *Service) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	history := models.HistoryFromMessage(*msg)

	if err := s.DB.WithContext(ctx).Create(&history).Error; err != nil {
		log.Printf("ERROR: Failed to save message from %s: %v", msg.SenderID, err)
		return err
	}

	msg.ID = history.ID
	msg.Timestamp = history.CreatedAt
	return nil
}

// GetChatHistory returns the messages selected by scope in append order.
func (s *Service) GetChatHistory(ctx context.Context, scope models.HistoryScope) ([]models.ChatMessage, error) {
	q := s.DB.WithContext(ctx).Model(&models.ChatHistory{})
	if scope.SenderID != "" {
		q = q.Where("sender_id = ?", scope.SenderID)
	}
	if scope.Limit > 0 {
		// newest N, flipped back to oldest-first below
		q = q.Order("id desc").Limit(scope.Limit)
	} else {
		q = q.Order("id asc")
	}

	var rows []models.ChatHistory
	if err := q.Find(&rows).Error; err != nil {
		log.Printf("ERROR: Failed to get chat history: %v", err)
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.ToMessage())
	}
	if scope.Limit > 0 {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

// IsUserBanned checks the ban flag in Redis (fast path in front of the database flag).
func (s *Service) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	if s.Redis == nil {
		return false, nil
	}
	status, err := s.Redis.Get(ctx, banKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// SetBan raises the Redis ban flag for d; d <= 0 keeps it until ClearBan.
func (s *Service) SetBan(ctx context.Context, userID string, d time.Duration) error {
	if s.Redis == nil {
		return nil
	}
	if d < 0 {
		d = 0
	}
	return s.Redis.Set(ctx, banKeyPrefix+userID, "active", d).Err()
}

// ClearBan drops the Redis ban flag.
func (s *Service) ClearBan(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Del(ctx, banKeyPrefix+userID).Err()
}

// PublishControl publishes a control event to every running server.
func (s *Service) PublishControl(ctx context.Context, event models.ControlEvent) error {
	if s.Redis == nil {
		return ErrNoBroker
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, controlChannel, payload).Err()
}

// SubscribeControl streams control events until ctx is cancelled.
// The returned channel is closed when the subscription ends.
func (s *Service) SubscribeControl(ctx context.Context) (<-chan models.ControlEvent, error) {
	if s.Redis == nil {
		return nil, ErrNoBroker
	}

	pubsub := s.Redis.Subscribe(ctx, controlChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", controlChannel, err)
	}

	out := make(chan models.ControlEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.ControlEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("Error unmarshalling control event: %v", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
