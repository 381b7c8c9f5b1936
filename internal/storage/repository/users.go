package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/firstmodai/firstmod-backend/internal/models"
)

// ErrUserNotFound возвращается, когда пользователь не найден в базе.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `uid, email, full_name, password_hash, role, subscription_status,
			      email_verified, verification_code, verification_code_expires_at, picture_path,
			      provider_customer_id, provider_subscription_id, plan_type, subscription_end_date,
			      created_at`

// scanUser отображает строку базы в типизированную структуру models.User.
func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	u := &models.User{}
	var code, picture, customerID, subscriptionID, planType sql.NullString
	var codeExpires, endDate sql.NullTime
	if err := row.Scan(&u.UID, &u.Email, &u.FullName, &u.PasswordHash, &u.Role,
		&u.SubscriptionStatus, &u.EmailVerified, &code, &codeExpires, &picture,
		&customerID, &subscriptionID, &planType, &endDate, &u.CreatedAt); err != nil {
		return nil, err
	}
	if code.Valid {
		u.VerificationCode = &code.String
	}
	if codeExpires.Valid {
		u.VerificationExpiresAt = &codeExpires.Time
	}
	if picture.Valid {
		u.PicturePath = &picture.String
	}
	if customerID.Valid {
		u.ProviderCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		u.ProviderSubscriptionID = &subscriptionID.String
	}
	if planType.Valid {
		u.PlanType = &planType.String
	}
	if endDate.Valid {
		u.SubscriptionEndDate = &endDate.Time
	}
	return u, nil
}

// RegisterUser сохраняет нового пользователя в базу данных и возвращает его UID.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID string
	query := `INSERT INTO users (email, full_name, password_hash, role, subscription_status,
			      email_verified, verification_code, verification_code_expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.FullName, user.PasswordHash, user.Role, user.SubscriptionStatus,
		user.EmailVerified, user.VerificationCode, user.VerificationExpiresAt).Scan(&newID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetUserByEmail возвращает пользователя по его электронной почте.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByVerificationCode возвращает пользователя по токену верификации.
func (s *Storage) GetUserByVerificationCode(ctx context.Context, code string) (*models.User, error) {
	const op = "storage.GetUserByVerificationCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE verification_code = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByProviderSubscriptionID возвращает пользователя по идентификатору
// подписки у платёжного провайдера.
func (s *Storage) GetUserByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	const op = "storage.GetUserByProviderSubscriptionID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE provider_subscription_id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, subscriptionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// DeleteUnverifiedByEmail удаляет неподтверждённую учётную запись,
// чтобы освободить почту для повторной регистрации.
func (s *Storage) DeleteUnverifiedByEmail(ctx context.Context, email string) error {
	const op = "storage.DeleteUnverifiedByEmail"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM users WHERE email = $1 AND email_verified = FALSE`
	if _, err := s.DB.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetVerificationCode записывает новый код верификации и срок его действия.
func (s *Storage) SetVerificationCode(ctx context.Context, userUID, code string, expiresAt time.Time) error {
	const op = "storage.SetVerificationCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET verification_code = $1, verification_code_expires_at = $2
			  WHERE uid = $3`
	if _, err := s.DB.ExecContext(ctx, query, code, expiresAt, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkEmailVerified помечает почту подтверждённой, очищает код и
// переводит учётную запись в активный бесплатный статус.
func (s *Storage) MarkEmailVerified(ctx context.Context, userUID string) error {
	const op = "storage.MarkEmailVerified"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET email_verified = TRUE, verification_code = NULL,
			      verification_code_expires_at = NULL, subscription_status = $1
			  WHERE uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, models.StatusActive, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdatePassword обновляет хэш пароля пользователя.
func (s *Storage) UpdatePassword(ctx context.Context, userUID, passwordHash string) error {
	const op = "storage.UpdatePassword"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET password_hash = $1 WHERE uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, passwordHash, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateProfile обновляет отображаемые поля профиля пользователя.
func (s *Storage) UpdateProfile(ctx context.Context, userUID, fullName, email string) error {
	const op = "storage.UpdateProfile"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET full_name = $1, email = $2 WHERE uid = $3`
	if _, err := s.DB.ExecContext(ctx, query, fullName, email, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetPicturePath записывает путь к фотографии профиля пользователя.
func (s *Storage) SetPicturePath(ctx context.Context, userUID, picturePath string) error {
	const op = "storage.SetPicturePath"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET picture_path = $1 WHERE uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, picturePath, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// EmailTaken проверяет, занята ли почта другим пользователем.
func (s *Storage) EmailTaken(ctx context.Context, email, excludeUID string) (bool, error) {
	const op = "storage.EmailTaken"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND uid <> $2)`
	var taken bool
	if err := s.DB.QueryRowContext(ctx, query, email, excludeUID).Scan(&taken); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return taken, nil
}

// ListUsers возвращает список всех пользователей для панели администратора.
func (s *Storage) ListUsers(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetAccountState возвращает актуальные роль и статус учётной записи.
// Используется на каждом авторизованном запросе, чтобы блокировка
// действовала немедленно, а не после истечения сессии.
func (s *Storage) GetAccountState(ctx context.Context, userUID string) (role, status string, err error) {
	const op = "storage.GetAccountState"
	select {
	case <-ctx.Done():
		return "", "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT role, subscription_status FROM users WHERE uid = $1`
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&role, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return role, status, nil
}

// UpdateAccountStatus устанавливает статус учётной записи (suspend/activate)
// и возвращает количество изменённых строк.
func (s *Storage) UpdateAccountStatus(ctx context.Context, userUID, status string) (int, error) {
	const op = "storage.UpdateAccountStatus"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET subscription_status = $1 WHERE uid = $2`
	result, err := s.DB.ExecContext(ctx, query, status, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// SetProviderCustomerID сохраняет привязку к клиенту платёжного провайдера.
// Привязка создаётся один раз и переиспользуется при последующих оплатах.
func (s *Storage) SetProviderCustomerID(ctx context.Context, userUID, customerID string) error {
	const op = "storage.SetProviderCustomerID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET provider_customer_id = $1 WHERE uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, customerID, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ApplySubscription переводит пользователя в роль подписчика и записывает
// привязку к подписке провайдера вместе с датой окончания оплаченного периода.
func (s *Storage) ApplySubscription(ctx context.Context, userUID, planType, subscriptionID string, endDate time.Time) error {
	const op = "storage.ApplySubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET role = $1, subscription_status = $2, plan_type = $3,
			      provider_subscription_id = $4, subscription_end_date = $5
			  WHERE uid = $6 AND role <> $7`
	if _, err := s.DB.ExecContext(ctx, query,
		models.RoleSubscriber, models.StatusActive, planType,
		subscriptionID, endDate, userUID, models.RoleAdmin); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateSubscriptionEndDate продлевает дату окончания оплаченного периода.
func (s *Storage) UpdateSubscriptionEndDate(ctx context.Context, userUID string, endDate time.Time) error {
	const op = "storage.UpdateSubscriptionEndDate"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET subscription_end_date = $1 WHERE uid = $2`
	if _, err := s.DB.ExecContext(ctx, query, endDate, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearSubscription снимает роль подписчика и очищает привязку к провайдеру.
// Администраторы сохраняют роль, теряя только платёжные поля.
func (s *Storage) ClearSubscription(ctx context.Context, userUID string) error {
	const op = "storage.ClearSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET role = CASE WHEN role = $1 THEN role ELSE $2 END,
			      subscription_status = CASE WHEN role = $1 THEN subscription_status ELSE $3 END,
			      plan_type = NULL, provider_subscription_id = NULL, subscription_end_date = NULL
			  WHERE uid = $4`
	if _, err := s.DB.ExecContext(ctx, query,
		models.RoleAdmin, models.RoleUser, models.StatusInactive, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteUser удаляет учётную запись; записи журнала подписок и контента
// удаляются каскадом на уровне схемы. Возвращает количество удалённых строк.
func (s *Storage) DeleteUser(ctx context.Context, userUID string) (int, error) {
	const op = "storage.DeleteUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM users WHERE uid = $1`
	result, err := s.DB.ExecContext(ctx, query, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
