package chathub_test

import (
	"context"
	"roomchat/backend/internal/models"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStorage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockStorage) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]models.User)
	return users, args.Error(1)
}

func (m *MockStorage) UpdateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStorage) DeleteUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockStorage) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStorage) GetChatHistory(ctx context.Context, scope models.HistoryScope) ([]models.ChatMessage, error) {
	args := m.Called(ctx, scope)
	history, _ := args.Get(0).([]models.ChatMessage)
	return history, args.Error(1)
}

func (m *MockStorage) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) SetBan(ctx context.Context, userID string, d time.Duration) error {
	args := m.Called(ctx, userID, d)
	return args.Error(0)
}

func (m *MockStorage) ClearBan(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockStorage) PublishControl(ctx context.Context, event models.ControlEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStorage) SubscribeControl(ctx context.Context) (<-chan models.ControlEvent, error) {
	args := m.Called(ctx)
	ch, _ := args.Get(0).(<-chan models.ControlEvent)
	return ch, args.Error(1)
}

// memoryStorage keeps the message log in memory and delegates everything
// else to the embedded mock.
type memoryStorage struct {
	*MockStorage

	mu       sync.Mutex
	messages []models.ChatMessage
	// onAppend runs before the message is stored.
	onAppend func(msg models.ChatMessage)
}

// newMemoryStorage returns a log whose accounts always exist.
func newMemoryStorage() *memoryStorage {
	s := &memoryStorage{MockStorage: new(MockStorage)}
	s.On("GetUserByID", mock.Anything, mock.Anything).Return(&models.User{}, nil)
	return s
}

func (s *memoryStorage) AppendMessage(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onAppend != nil {
		s.onAppend(*msg)
	}
	msg.ID = uint(len(s.messages) + 1)
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *memoryStorage) GetChatHistory(_ context.Context, scope models.HistoryScope) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.ChatMessage{}
	for _, msg := range s.messages {
		if scope.SenderID == "" || msg.SenderID == scope.SenderID {
			out = append(out, msg)
		}
	}
	if scope.Limit > 0 && len(out) > scope.Limit {
		out = out[len(out)-scope.Limit:]
	}
	return out, nil
}

func (s *memoryStorage) seed(msgs ...models.ChatMessage) {
	for i := range msgs {
		s.AppendMessage(context.Background(), &msgs[i])
	}
}

func (s *memoryStorage) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.messages...)
}

// MockGate resolves tokens from testify expectations.
type MockGate struct {
	mock.Mock
}

func (g *MockGate) VerifyToken(ctx context.Context, token string) (models.Identity, error) {
	args := g.Called(ctx, token)
	identity, _ := args.Get(0).(models.Identity)
	return identity, args.Error(1)
}
