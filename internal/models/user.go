// Package models содержит доменную модель пользователя системы,
// включающую учётные данные, статус верификации почты и привязку
// к платёжному провайдеру. Структуры используются в бизнес‑логике
// и при работе с хранилищем вместо динамических строк из базы.
package models

import "time"

// Роли пользователя.
const (
	RoleUser       = "user"
	RoleSubscriber = "subscriber"
	RoleAdmin      = "admin"
)

// Статусы учётной записи.
const (
	StatusInactive  = "inactive"
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// User представляет зарегистрированного пользователя системы.
type User struct {
	UID                    string     // Уникальный идентификатор пользователя
	Email                  string     // Электронная почта (уникальная)
	FullName               string     // Полное имя
	PasswordHash           string     // Хэш пароля пользователя
	Role                   string     // Роль: user, subscriber или admin
	SubscriptionStatus     string     // Статус: inactive, active или suspended
	EmailVerified          bool       // Признак подтверждённой почты
	VerificationCode       *string    // Одноразовый код или токен верификации
	VerificationExpiresAt  *time.Time // Срок действия кода верификации
	PicturePath            *string    // Путь к картинке профиля
	ProviderCustomerID     *string    // Идентификатор клиента у платёжного провайдера
	ProviderSubscriptionID *string    // Идентификатор подписки у платёжного провайдера
	PlanType               *string    // Тип оплаченного тарифа
	SubscriptionEndDate    *time.Time // Дата окончания оплаченного периода
	CreatedAt              time.Time  // Дата создания учётной записи
}
