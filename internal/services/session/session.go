// Package session реализует синхронизатор сессий: кэш отображаемых
// полей профиля, который никогда не используется для решений об
// авторизации. Роль и статус могут меняться асинхронно (вебхук,
// действия администратора), поэтому на границах доверия кэш
// принудительно перечитывается из хранилища.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/models"
)

const cacheTTL = 24 * time.Hour

// UserRepository описывает чтение пользователя из хранилища.
type UserRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Info кэшируемый снимок профиля пользователя.
type Info struct {
	UserUID             string     `json:"user_uid"`
	Email               string     `json:"email"`
	FullName            string     `json:"full_name"`
	Role                string     `json:"role"`
	SubscriptionStatus  string     `json:"subscription_status"`
	PicturePath         *string    `json:"picture_path,omitempty"`
	PlanType            *string    `json:"plan_type,omitempty"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
}

// Service синхронизатор сессий.
type Service struct {
	repo  UserRepository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func cacheKey(userUID string) string {
	return fmt.Sprintf("session:%s", userUID)
}

// Refresh перечитывает профиль из хранилища и перезаписывает кэш.
// Вызывается после платёжных операций и при изменении профиля.
func (s *Service) Refresh(ctx context.Context, userUID string) (*Info, error) {
	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, err
	}
	info := &Info{
		UserUID:             user.UID,
		Email:               user.Email,
		FullName:            user.FullName,
		Role:                user.Role,
		SubscriptionStatus:  user.SubscriptionStatus,
		PicturePath:         user.PicturePath,
		PlanType:            user.PlanType,
		SubscriptionEndDate: user.SubscriptionEndDate,
	}
	if err := s.cache.Set(cacheKey(userUID), info, cacheTTL); err != nil {
		s.log.Warn("failed to cache session info", slog.String("user_uid", userUID), sl.Err(err))
	}
	return info, nil
}

// Get возвращает снимок профиля из кэша, при промахе — из хранилища.
func (s *Service) Get(ctx context.Context, userUID string) (*Info, error) {
	var info *Info
	found, err := s.cache.Get(cacheKey(userUID), &info)
	if err != nil {
		s.log.Warn("failed to read session cache", slog.String("user_uid", userUID), sl.Err(err))
	}
	if found && info != nil {
		return info, nil
	}
	return s.Refresh(ctx, userUID)
}

// Invalidate удаляет кэшированный снимок, заставляя следующий запрос
// перечитать профиль из хранилища.
func (s *Service) Invalidate(userUID string) error {
	return s.cache.Invalidate(cacheKey(userUID))
}
