package auth_test

import (
	"context"
	"errors"
	"roomchat/backend/internal/auth"
	"roomchat/backend/internal/models"
	"roomchat/backend/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func newService(store *MockUserStore) *auth.Service {
	return auth.NewService(store, auth.NewJWTManager("secret", "roomchat", time.Hour), auth.NewPasswordHasher(bcrypt.MinCost))
}

func TestRegister_CreatesPlainUser(t *testing.T) {
	store := new(MockUserStore)
	store.On("CreateUser", mock.Anything, mock.AnythingOfType("*models.User")).Return(nil)

	user, err := newService(store).Register(context.Background(), auth.RegisterInput{
		Email:    " Alice@Example.com",
		Password: "secret",
		Nickname: " alice ",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.Nickname)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEqual(t, "secret", user.PasswordHash)
	store.AssertExpectations(t)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   auth.RegisterInput
	}{
		{"bad email", auth.RegisterInput{Email: "nope", Password: "secret", Nickname: "a"}},
		{"short password", auth.RegisterInput{Email: "a@b.c", Password: "1234", Nickname: "a"}},
		{"empty nickname", auth.RegisterInput{Email: "a@b.c", Password: "secret", Nickname: "  "}},
		{"long nickname", auth.RegisterInput{Email: "a@b.c", Password: "secret", Nickname: "abcdefghijklmnopqrstuvwxyzabcdefg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockUserStore)
			_, err := newService(store).Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, auth.ErrInvalidInput)
			store.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	store := new(MockUserStore)
	store.On("CreateUser", mock.Anything, mock.Anything).Return(storage.ErrUserExists)

	_, err := newService(store).Register(context.Background(), auth.RegisterInput{Email: "a@b.c", Password: "secret", Nickname: "a"})
	assert.ErrorIs(t, err, storage.ErrUserExists)
}

func registeredUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := auth.NewPasswordHasher(bcrypt.MinCost).Hash(password)
	require.NoError(t, err)
	return &models.User{ID: "u1", Email: "alice@example.com", PasswordHash: hash, Nickname: "alice", Role: models.RoleUser}
}

func TestLogin(t *testing.T) {
	user := registeredUser(t, "secret")
	store := new(MockUserStore)
	store.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(user, nil)
	store.On("GetUserByEmail", mock.Anything, "ghost@example.com").Return(nil, storage.ErrUserNotFound)
	svc := newService(store)

	token, got, err := svc.Login(context.Background(), "Alice@example.com", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "u1", got.ID)

	_, _, err = svc.Login(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "ghost@example.com", "secret")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials, "unknown email looks like a wrong password")
}

func TestLogin_Blocked(t *testing.T) {
	user := registeredUser(t, "secret")
	user.IsBlocked = true
	store := new(MockUserStore)
	store.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(user, nil)

	_, _, err := newService(store).Login(context.Background(), "alice@example.com", "secret")
	assert.ErrorIs(t, err, auth.ErrAccountBlocked)
}

func tokenFor(t *testing.T, svc *auth.Service, user *models.User) string {
	t.Helper()
	token, err := svc.Tokens.Generate(user)
	require.NoError(t, err)
	return token
}

func TestVerifyToken_ResolvesStoredIdentity(t *testing.T) {
	stale := &models.User{ID: "u1", Nickname: "old", Role: models.RoleAdmin}
	current := &models.User{ID: "u1", Nickname: "alice", Role: models.RoleUser}

	store := new(MockUserStore)
	store.On("GetUserByID", mock.Anything, "u1").Return(current, nil)
	store.On("IsUserBanned", mock.Anything, "u1").Return(false, nil)
	svc := newService(store)

	identity, err := svc.VerifyToken(context.Background(), tokenFor(t, svc, stale))
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "u1", DisplayName: "alice", Role: models.RoleUser}, identity)
}

func TestVerifyToken_Rejections(t *testing.T) {
	account := &models.User{ID: "u1", Nickname: "alice", Role: models.RoleUser}

	t.Run("invalid token", func(t *testing.T) {
		svc := newService(new(MockUserStore))
		_, err := svc.VerifyToken(context.Background(), "garbage")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("account removed", func(t *testing.T) {
		store := new(MockUserStore)
		store.On("GetUserByID", mock.Anything, "u1").Return(nil, storage.ErrUserNotFound)
		svc := newService(store)
		_, err := svc.VerifyToken(context.Background(), tokenFor(t, svc, account))
		assert.ErrorIs(t, err, auth.ErrAccountNotFound)
	})

	t.Run("blocked in database", func(t *testing.T) {
		blocked := *account
		blocked.IsBlocked = true
		store := new(MockUserStore)
		store.On("GetUserByID", mock.Anything, "u1").Return(&blocked, nil)
		svc := newService(store)
		_, err := svc.VerifyToken(context.Background(), tokenFor(t, svc, account))
		assert.ErrorIs(t, err, auth.ErrAccountBlocked)
	})

	t.Run("banned in cache", func(t *testing.T) {
		store := new(MockUserStore)
		store.On("GetUserByID", mock.Anything, "u1").Return(account, nil)
		store.On("IsUserBanned", mock.Anything, "u1").Return(true, nil)
		svc := newService(store)
		_, err := svc.VerifyToken(context.Background(), tokenFor(t, svc, account))
		assert.ErrorIs(t, err, auth.ErrAccountBlocked)
	})

	t.Run("storage failure", func(t *testing.T) {
		store := new(MockUserStore)
		store.On("GetUserByID", mock.Anything, "u1").Return(nil, errors.New("db down"))
		svc := newService(store)
		_, err := svc.VerifyToken(context.Background(), tokenFor(t, svc, account))
		assert.Error(t, err)
	})
}

func TestVerifyToken_BanCacheErrorIsNotFatal(t *testing.T) {
	account := &models.User{ID: "u1", Nickname: "alice", Role: models.RoleUser}
	store := new(MockUserStore)
	store.On("GetUserByID", mock.Anything, "u1").Return(account, nil)
	store.On("IsUserBanned", mock.Anything, "u1").Return(false, errors.New("redis down"))
	svc := newService(store)

	identity, err := svc.VerifyToken(context.Background(), tokenFor(t, svc, account))
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
}
