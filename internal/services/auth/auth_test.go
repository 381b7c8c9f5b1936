package auth

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	libjwt "github.com/firstmodai/firstmod-backend/internal/lib/jwt"
	"github.com/firstmodai/firstmod-backend/internal/lib/password"
	"github.com/firstmodai/firstmod-backend/internal/models"
	"github.com/firstmodai/firstmod-backend/internal/storage/repository"
)

// MockUsers реализует интерфейс auth.UserRepository
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) RegisterUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *MockUsers) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) GetUserByVerificationCode(ctx context.Context, code string) (*models.User, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) DeleteUnverifiedByEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockUsers) SetVerificationCode(ctx context.Context, userUID, code string, expiresAt time.Time) error {
	args := m.Called(ctx, userUID, code, expiresAt)
	return args.Error(0)
}

func (m *MockUsers) MarkEmailVerified(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

func (m *MockUsers) UpdatePassword(ctx context.Context, userUID, passwordHash string) error {
	args := m.Called(ctx, userUID, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) UpdateProfile(ctx context.Context, userUID, fullName, email string) error {
	args := m.Called(ctx, userUID, fullName, email)
	return args.Error(0)
}

func (m *MockUsers) SetPicturePath(ctx context.Context, userUID, picturePath string) error {
	args := m.Called(ctx, userUID, picturePath)
	return args.Error(0)
}

func (m *MockUsers) EmailTaken(ctx context.Context, email, excludeUID string) (bool, error) {
	args := m.Called(ctx, email, excludeUID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) ListUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockUsers) UpdateAccountStatus(ctx context.Context, userUID, status string) (int, error) {
	args := m.Called(ctx, userUID, status)
	return args.Int(0), args.Error(1)
}

func (m *MockUsers) DeleteUser(ctx context.Context, userUID string) (int, error) {
	args := m.Called(ctx, userUID)
	return args.Int(0), args.Error(1)
}

// MockContent реализует интерфейс auth.ContentRepository
type MockContent struct {
	mock.Mock
}

func (m *MockContent) ListAnimationsByUser(ctx context.Context, userUID string) ([]*models.Animation, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Animation), args.Error(1)
}

// MockSessions реализует интерфейс auth.Sessions
type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Invalidate(userUID string) error {
	args := m.Called(userUID)
	return args.Error(0)
}

// MockNotifier реализует интерфейс auth.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(routingKey string, message any) error {
	args := m.Called(routingKey, message)
	return args.Error(0)
}

// stubStrategy выдаёт предсказуемый код верификации
type stubStrategy struct{}

func (stubStrategy) Mode() string            { return "otp" }
func (stubStrategy) NewCode() (string, error) { return "123456", nil }
func (stubStrategy) Email(fullName, code, _ string) (string, string) {
	return "Verify your email", "Hello, " + fullName + "! Code: " + code
}

type deps struct {
	users    *MockUsers
	content  *MockContent
	sessions *MockSessions
	notifier *MockNotifier
}

func newTestService() (*Service, *deps) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := &deps{
		users:    new(MockUsers),
		content:  new(MockContent),
		sessions: new(MockSessions),
		notifier: new(MockNotifier),
	}
	maker := libjwt.NewJWTMaker("test-secret", time.Hour)
	svc := New(d.users, d.content, d.sessions, d.notifier, maker,
		stubStrategy{}, "https://app.example.com", logger)
	return svc, d
}

func strPtr(s string) *string { return &s }

func TestSignupNewUser(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	d.users.On("GetUserByEmail", mock.Anything, "new@example.com").
		Return(nil, repository.ErrUserNotFound)
	d.users.On("RegisterUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Email == "new@example.com" &&
			!u.EmailVerified &&
			u.Role == models.RoleUser &&
			u.VerificationCode != nil && *u.VerificationCode == "123456"
	})).Return("uid-1", nil)
	d.notifier.On("Publish", "verification", mock.MatchedBy(func(task models.EmailTask) bool {
		return task.To == "new@example.com"
	})).Return(nil)

	emailSent, err := svc.Signup(ctx, "Ivan", "new@example.com", "password123")
	require.NoError(t, err)
	assert.True(t, emailSent)
	d.users.AssertExpectations(t)
	d.notifier.AssertExpectations(t)
}

func TestSignupVerifiedEmailTaken(t *testing.T) {
	svc, d := newTestService()

	d.users.On("GetUserByEmail", mock.Anything, "taken@example.com").
		Return(&models.User{UID: "uid-1", Email: "taken@example.com", EmailVerified: true}, nil)

	_, err := svc.Signup(context.Background(), "Ivan", "taken@example.com", "password123")
	assert.ErrorIs(t, err, ErrEmailTaken)
	d.users.AssertNotCalled(t, "RegisterUser", mock.Anything, mock.Anything)
}

func TestSignupReplacesStaleUnverified(t *testing.T) {
	svc, d := newTestService()

	d.users.On("GetUserByEmail", mock.Anything, "stale@example.com").
		Return(&models.User{
			UID:              "uid-old",
			Email:            "stale@example.com",
			EmailVerified:    false,
			VerificationCode: strPtr("654321"),
		}, nil)
	d.users.On("DeleteUnverifiedByEmail", mock.Anything, "stale@example.com").Return(nil)
	d.users.On("RegisterUser", mock.Anything, mock.Anything).Return("uid-new", nil)
	d.notifier.On("Publish", "verification", mock.Anything).Return(nil)

	_, err := svc.Signup(context.Background(), "Ivan", "stale@example.com", "password123")
	require.NoError(t, err)
	d.users.AssertExpectations(t)
}

func TestSignupSucceedsWhenPublishFails(t *testing.T) {
	svc, d := newTestService()

	d.users.On("GetUserByEmail", mock.Anything, "new@example.com").
		Return(nil, repository.ErrUserNotFound)
	d.users.On("RegisterUser", mock.Anything, mock.Anything).Return("uid-1", nil)
	d.notifier.On("Publish", "verification", mock.Anything).
		Return(assert.AnError)

	emailSent, err := svc.Signup(context.Background(), "Ivan", "new@example.com", "password123")
	require.NoError(t, err)
	assert.False(t, emailSent)
}

func TestVerifyOTP(t *testing.T) {
	future := time.Now().Add(5 * time.Minute)
	past := time.Now().Add(-5 * time.Minute)

	tests := []struct {
		name    string
		user    *models.User
		code    string
		wantErr error
	}{
		{
			name: "успешное подтверждение",
			user: &models.User{
				UID:                   "uid-1",
				VerificationCode:      strPtr("123456"),
				VerificationExpiresAt: &future,
			},
			code:    "123456",
			wantErr: nil,
		},
		{
			name: "неверный код",
			user: &models.User{
				UID:                   "uid-1",
				VerificationCode:      strPtr("123456"),
				VerificationExpiresAt: &future,
			},
			code:    "000000",
			wantErr: ErrInvalidCode,
		},
		{
			name: "просроченный код",
			user: &models.User{
				UID:                   "uid-1",
				VerificationCode:      strPtr("123456"),
				VerificationExpiresAt: &past,
			},
			code:    "123456",
			wantErr: ErrCodeExpired,
		},
		{
			name: "повторное подтверждение",
			user: &models.User{
				UID:           "uid-1",
				EmailVerified: true,
			},
			code:    "123456",
			wantErr: ErrAlreadyVerified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newTestService()
			d.users.On("GetUserByEmail", mock.Anything, "user@example.com").Return(tt.user, nil)
			if tt.wantErr == nil {
				d.users.On("MarkEmailVerified", mock.Anything, "uid-1").Return(nil)
			}

			err := svc.VerifyOTP(context.Background(), "user@example.com", tt.code)
			if tt.wantErr == nil {
				require.NoError(t, err)
				d.users.AssertExpectations(t)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
				d.users.AssertNotCalled(t, "MarkEmailVerified", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestVerifyOTPUnknownEmail(t *testing.T) {
	svc, d := newTestService()
	d.users.On("GetUserByEmail", mock.Anything, "ghost@example.com").
		Return(nil, repository.ErrUserNotFound)

	err := svc.VerifyOTP(context.Background(), "ghost@example.com", "123456")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestLogin(t *testing.T) {
	hash, err := password.GetHash("password123")
	require.NoError(t, err)

	tests := []struct {
		name     string
		user     *models.User
		password string
		wantErr  error
	}{
		{
			name: "успешный вход",
			user: &models.User{
				UID:                "uid-1",
				Email:              "user@example.com",
				PasswordHash:       hash,
				Role:               models.RoleUser,
				SubscriptionStatus: models.StatusActive,
				EmailVerified:      true,
				VerificationCode:   strPtr("123456"),
			},
			password: "password123",
			wantErr:  nil,
		},
		{
			name: "неверный пароль",
			user: &models.User{
				UID:           "uid-1",
				PasswordHash:  hash,
				EmailVerified: true,
			},
			password: "wrong",
			wantErr:  ErrInvalidCredentials,
		},
		{
			name: "почта не подтверждена",
			user: &models.User{
				UID:              "uid-1",
				PasswordHash:     hash,
				EmailVerified:    false,
				VerificationCode: strPtr("123456"),
			},
			password: "password123",
			wantErr:  ErrVerificationRequired,
		},
		{
			name: "учётная запись до ввода верификации входит без подтверждения",
			user: &models.User{
				UID:                "uid-1",
				Email:              "legacy@example.com",
				PasswordHash:       hash,
				Role:               models.RoleUser,
				SubscriptionStatus: models.StatusActive,
				EmailVerified:      false,
				VerificationCode:   nil,
			},
			password: "password123",
			wantErr:  nil,
		},
		{
			name: "заблокированная учётная запись",
			user: &models.User{
				UID:                "uid-1",
				PasswordHash:       hash,
				EmailVerified:      true,
				SubscriptionStatus: models.StatusSuspended,
			},
			password: "password123",
			wantErr:  ErrSuspended,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newTestService()
			d.users.On("GetUserByEmail", mock.Anything, mock.Anything).Return(tt.user, nil)

			token, user, err := svc.Login(context.Background(), "user@example.com", tt.password)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotEmpty(t, token)
				assert.Equal(t, tt.user.UID, user.UID)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
			}
		})
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, d := newTestService()
	d.users.On("GetUserByEmail", mock.Anything, "ghost@example.com").
		Return(nil, repository.ErrUserNotFound)

	_, _, err := svc.Login(context.Background(), "ghost@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	hash, err := password.GetHash("password123")
	require.NoError(t, err)

	svc, d := newTestService()
	d.users.On("GetUser", mock.Anything, "uid-1").
		Return(&models.User{UID: "uid-1", PasswordHash: hash}, nil)

	err = svc.ChangePassword(context.Background(), "uid-1", "wrong", "newpassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	d.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestSuspendInvalidatesSession(t *testing.T) {
	svc, d := newTestService()

	d.users.On("UpdateAccountStatus", mock.Anything, "uid-1", models.StatusSuspended).Return(1, nil)
	d.sessions.On("Invalidate", "uid-1").Return(nil)

	require.NoError(t, svc.Suspend(context.Background(), "uid-1"))
	d.sessions.AssertExpectations(t)
}

func TestSuspendUnknownUser(t *testing.T) {
	svc, d := newTestService()

	d.users.On("UpdateAccountStatus", mock.Anything, "ghost", models.StatusSuspended).Return(0, nil)

	err := svc.Suspend(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteAccountSelfForbidden(t *testing.T) {
	svc, d := newTestService()

	err := svc.DeleteAccount(context.Background(), "uid-1", "uid-1")
	assert.ErrorIs(t, err, ErrSelfDelete)
	d.users.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)
}

func TestDeleteAccountRemovesContent(t *testing.T) {
	svc, d := newTestService()

	d.content.On("ListAnimationsByUser", mock.Anything, "uid-2").
		Return([]*models.Animation{
			{ID: 1, UserUID: "uid-2", FilePath: "/nonexistent/file1.mp4"},
		}, nil)
	d.users.On("DeleteUser", mock.Anything, "uid-2").Return(1, nil)
	d.sessions.On("Invalidate", "uid-2").Return(nil)

	// отсутствие файла на диске не считается ошибкой
	require.NoError(t, svc.DeleteAccount(context.Background(), "uid-2", "uid-admin"))
	d.users.AssertExpectations(t)
}

func TestSetPictureReplacesOldFile(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	oldPath := filepath.Join(t.TempDir(), "old.png")
	require.NoError(t, os.WriteFile(oldPath, []byte("png"), 0o644))

	d.users.On("GetUser", mock.Anything, "uid-1").
		Return(&models.User{UID: "uid-1", PicturePath: &oldPath}, nil)
	d.users.On("SetPicturePath", mock.Anything, "uid-1", "/uploads/new.png").Return(nil)
	d.sessions.On("Invalidate", "uid-1").Return(nil)

	require.NoError(t, svc.SetPicture(ctx, "uid-1", "/uploads/new.png"))
	assert.NoFileExists(t, oldPath)
	d.users.AssertExpectations(t)
	d.sessions.AssertExpectations(t)
}

func TestSetPictureUnknownUser(t *testing.T) {
	svc, d := newTestService()

	d.users.On("GetUser", mock.Anything, "missing").
		Return(nil, repository.ErrUserNotFound)

	err := svc.SetPicture(context.Background(), "missing", "/uploads/new.png")
	assert.ErrorIs(t, err, ErrUserNotFound)
	d.users.AssertNotCalled(t, "SetPicturePath", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateProfileEmailTaken(t *testing.T) {
	svc, d := newTestService()

	d.users.On("EmailTaken", mock.Anything, "taken@example.com", "uid-1").Return(true, nil)

	err := svc.UpdateProfile(context.Background(), "uid-1", "Ivan", "taken@example.com")
	assert.ErrorIs(t, err, ErrEmailTaken)
	d.users.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
