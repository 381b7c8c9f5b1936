// Package auth содержит логику бизнес-уровня для работы с учётными записями:
// регистрацию, подтверждение почты, вход, смену пароля и действия администратора.
//
// Конечный автомат учётной записи: pending_verification → verified_inactive →
// active_subscriber → suspended; роль admin обходит проверку подписки.
// Блокировка проверяется по сохранённому статусу на каждом запросе,
// поэтому действует немедленно, включая уже выданные сессии.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/firstmodai/firstmod-backend/internal/lib/jwt"
	"github.com/firstmodai/firstmod-backend/internal/lib/password"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/lib/verification"
	"github.com/firstmodai/firstmod-backend/internal/models"
	"github.com/firstmodai/firstmod-backend/internal/rabbitmq"
	"github.com/firstmodai/firstmod-backend/internal/storage/repository"
)

// Ошибки конечного автомата учётной записи.
var (
	ErrEmailTaken           = errors.New("email already exists")
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrCodeExpired          = errors.New("verification code has expired")
	ErrAlreadyVerified      = errors.New("email already verified")
	ErrVerificationRequired = errors.New("email verification required")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSuspended            = errors.New("account is suspended")
	ErrUserNotFound         = errors.New("user not found")
	ErrSelfDelete           = errors.New("cannot delete your own account")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	RegisterUser(ctx context.Context, user models.User) (string, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByVerificationCode(ctx context.Context, code string) (*models.User, error)
	DeleteUnverifiedByEmail(ctx context.Context, email string) error
	SetVerificationCode(ctx context.Context, userUID, code string, expiresAt time.Time) error
	MarkEmailVerified(ctx context.Context, userUID string) error
	UpdatePassword(ctx context.Context, userUID, passwordHash string) error
	UpdateProfile(ctx context.Context, userUID, fullName, email string) error
	SetPicturePath(ctx context.Context, userUID, picturePath string) error
	EmailTaken(ctx context.Context, email, excludeUID string) (bool, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateAccountStatus(ctx context.Context, userUID, status string) (int, error)
	DeleteUser(ctx context.Context, userUID string) (int, error)
}

// ContentRepository описывает чтение записей контента для каскадного
// удаления файлов вместе с учётной записью.
type ContentRepository interface {
	ListAnimationsByUser(ctx context.Context, userUID string) ([]*models.Animation, error)
}

// Sessions узкий контракт синхронизатора сессий, достаточный сервису.
type Sessions interface {
	Invalidate(userUID string) error
}

// Notifier публикует почтовые задания в очередь уведомлений.
type Notifier interface {
	Publish(routingKey string, message any) error
}

// Service отвечает за регистрацию, верификацию, авторизацию и
// административные действия над учётными записями.
type Service struct {
	users    UserRepository
	content  ContentRepository
	sessions Sessions
	notifier Notifier
	jwtMaker jwt.Maker
	strategy verification.Strategy
	baseURL  string
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(users UserRepository, content ContentRepository, sessions Sessions,
	notifier Notifier, jwtMaker jwt.Maker, strategy verification.Strategy,
	baseURL string, log *slog.Logger) *Service {
	return &Service{
		users:    users,
		content:  content,
		sessions: sessions,
		notifier: notifier,
		jwtMaker: jwtMaker,
		strategy: strategy,
		baseURL:  baseURL,
		log:      log,
	}
}

// Signup создает нового пользователя в состоянии ожидания верификации
// и ставит письмо с кодом в очередь. Возвращает признак того, что письмо
// поставлено в очередь: его отсутствие не отменяет регистрацию.
func (s *Service) Signup(ctx context.Context, fullName, email, rawPassword string) (bool, error) {
	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return false, err
	}
	if existing != nil {
		if existing.EmailVerified {
			return false, ErrEmailTaken
		}
		// Почта занята незавершённой регистрацией, старая запись вытесняется.
		if err := s.users.DeleteUnverifiedByEmail(ctx, email); err != nil {
			return false, err
		}
	}

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return false, err
	}
	code, err := s.strategy.NewCode()
	if err != nil {
		return false, err
	}
	expiresAt := time.Now().UTC().Add(verification.CodeTTL)

	user := models.User{
		Email:                 email,
		FullName:              fullName,
		PasswordHash:          hashed,
		Role:                  models.RoleUser,
		SubscriptionStatus:    models.StatusInactive,
		EmailVerified:         false,
		VerificationCode:      &code,
		VerificationExpiresAt: &expiresAt,
	}
	if _, err := s.users.RegisterUser(ctx, user); err != nil {
		return false, err
	}

	return s.enqueueVerificationEmail(email, fullName, code), nil
}

// VerifyOTP подтверждает почту по коду, введённому пользователем.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCode
		}
		return err
	}
	return s.verify(ctx, user, code)
}

// VerifyToken подтверждает почту по токену из ссылки.
func (s *Service) VerifyToken(ctx context.Context, token string) error {
	user, err := s.users.GetUserByVerificationCode(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCode
		}
		return err
	}
	return s.verify(ctx, user, token)
}

// verify проверяет код и переводит учётную запись в verified_inactive:
// почта подтверждена, базовый бесплатный статус сразу активен.
func (s *Service) verify(ctx context.Context, user *models.User, code string) error {
	if user.EmailVerified {
		return ErrAlreadyVerified
	}
	if user.VerificationCode == nil || *user.VerificationCode != code {
		return ErrInvalidCode
	}
	if user.VerificationExpiresAt != nil && time.Now().After(*user.VerificationExpiresAt) {
		return ErrCodeExpired
	}
	return s.users.MarkEmailVerified(ctx, user.UID)
}

// ResendCode генерирует новый код верификации и ставит письмо в очередь.
func (s *Service) ResendCode(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	code, err := s.strategy.NewCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(verification.CodeTTL)
	if err := s.users.SetVerificationCode(ctx, user.UID, code, expiresAt); err != nil {
		return err
	}

	s.enqueueVerificationEmail(user.Email, user.FullName, code)
	return nil
}

func (s *Service) enqueueVerificationEmail(email, fullName, code string) bool {
	subject, body := s.strategy.Email(fullName, code, s.baseURL)
	task := models.EmailTask{To: email, Subject: subject, Body: body}
	if err := s.notifier.Publish(rabbitmq.RoutingVerification, task); err != nil {
		s.log.Error("failed to enqueue verification email",
			slog.String("email", email), sl.Err(err))
		return false
	}
	return true
}

// Login проверяет пароль и состояние учётной записи, выдаёт JWT.
//
// Учётные записи, созданные до появления верификации (код NULL,
// флаг не установлен), допускаются ко входу.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (string, *models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if user.VerificationCode != nil && !user.EmailVerified {
		return "", nil, ErrVerificationRequired
	}
	if user.SubscriptionStatus == models.StatusSuspended {
		return "", nil, ErrSuspended
	}

	token, err := s.jwtMaker.GenerateToken(user.UID, user.Email, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Logout инвалидирует кэшированный снимок сессии пользователя.
func (s *Service) Logout(userUID string) {
	if err := s.sessions.Invalidate(userUID); err != nil {
		s.log.Warn("failed to invalidate session cache",
			slog.String("user_uid", userUID), sl.Err(err))
	}
}

// ChangePassword меняет пароль после проверки текущего.
func (s *Service) ChangePassword(ctx context.Context, userUID, currentPassword, newPassword string) error {
	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := password.CompareHash(user.PasswordHash, currentPassword); err != nil {
		return ErrInvalidCredentials
	}
	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userUID, hashed)
}

// ForgotPassword обрабатывает запрос восстановления пароля.
// Ответ одинаков независимо от существования учётной записи,
// чтобы не раскрывать зарегистрированные адреса.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	if _, err := s.users.GetUserByEmail(ctx, email); err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.log.Error("forgot password lookup failed", sl.Err(err))
		}
		return
	}
	s.log.Info("password reset requested", slog.String("email", email))
}

// Profile возвращает профиль пользователя.
func (s *Service) Profile(ctx context.Context, userUID string) (*models.User, error) {
	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile обновляет отображаемые поля профиля.
func (s *Service) UpdateProfile(ctx context.Context, userUID, fullName, email string) error {
	taken, err := s.users.EmailTaken(ctx, email, userUID)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	if err := s.users.UpdateProfile(ctx, userUID, fullName, email); err != nil {
		return err
	}
	if err := s.sessions.Invalidate(userUID); err != nil {
		s.log.Warn("failed to invalidate session cache", sl.Err(err))
	}
	return nil
}

// SetPicture привязывает сохранённый файл к профилю пользователя.
// Прежняя фотография удаляется по возможности: ошибка удаления файла
// логируется и не отменяет замену.
func (s *Service) SetPicture(ctx context.Context, userUID, picturePath string) error {
	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := s.users.SetPicturePath(ctx, userUID, picturePath); err != nil {
		return err
	}
	if user.PicturePath != nil && *user.PicturePath != "" {
		if err := os.Remove(*user.PicturePath); err != nil {
			s.log.Warn("failed to remove old profile picture",
				slog.String("path", *user.PicturePath), sl.Err(err))
		}
	}
	if err := s.sessions.Invalidate(userUID); err != nil {
		s.log.Warn("failed to invalidate session cache", sl.Err(err))
	}
	return nil
}

// ListUsers возвращает всех пользователей для панели администратора.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.users.ListUsers(ctx)
}

// Suspend блокирует учётную запись из любого состояния. Живые сессии
// пользователя отсекаются проверкой сохранённого статуса на первом же
// запросе, кэш сессии сбрасывается немедленно.
func (s *Service) Suspend(ctx context.Context, targetUID string) error {
	count, err := s.users.UpdateAccountStatus(ctx, targetUID, models.StatusSuspended)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	if err := s.sessions.Invalidate(targetUID); err != nil {
		s.log.Warn("failed to invalidate session cache", sl.Err(err))
	}
	return nil
}

// Activate снимает блокировку, возвращая учётную запись в активный статус.
func (s *Service) Activate(ctx context.Context, targetUID string) error {
	count, err := s.users.UpdateAccountStatus(ctx, targetUID, models.StatusActive)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	if err := s.sessions.Invalidate(targetUID); err != nil {
		s.log.Warn("failed to invalidate session cache", sl.Err(err))
	}
	return nil
}

// AdminEdit изменяет имя и почту пользователя по запросу администратора.
func (s *Service) AdminEdit(ctx context.Context, targetUID, fullName, email string) error {
	taken, err := s.users.EmailTaken(ctx, email, targetUID)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	if err := s.users.UpdateProfile(ctx, targetUID, fullName, email); err != nil {
		return err
	}
	if err := s.sessions.Invalidate(targetUID); err != nil {
		s.log.Warn("failed to invalidate session cache", sl.Err(err))
	}
	return nil
}

// DeleteAccount удаляет учётную запись вместе с журналом подписок и
// контентом. Файлы контента удаляются по возможности: ошибка удаления
// файла логируется и не отменяет удаление записи.
func (s *Service) DeleteAccount(ctx context.Context, targetUID, callerUID string) error {
	if targetUID == callerUID {
		return ErrSelfDelete
	}

	animations, err := s.content.ListAnimationsByUser(ctx, targetUID)
	if err != nil {
		return err
	}

	count, err := s.users.DeleteUser(ctx, targetUID)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}

	for _, a := range animations {
		if err := os.Remove(a.FilePath); err != nil {
			s.log.Warn("failed to remove content file",
				slog.String("path", a.FilePath), sl.Err(err))
		}
	}

	if err := s.sessions.Invalidate(targetUID); err != nil {
		s.log.Warn("failed to invalidate session cache", sl.Err(err))
	}
	return nil
}
