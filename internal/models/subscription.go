// Package models содержит доменные структуры, описывающие записи
// журнала подписок: одна запись соответствует одному оплаченному периоду.
package models

import "time"

// Статусы оплаты записи журнала.
const (
	PaymentCompleted = "completed"
	PaymentCanceled  = "canceled"
)

// Типы тарифов.
const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// Subscription представляет собой запись журнала подписок.
// Журнал пополняется только добавлением: продление или смена тарифа
// создаёт новую запись, начало которой совпадает с концом предыдущего
// оплаченного периода.
type Subscription struct {
	ID                     int       // Идентификатор записи
	UserUID                string    // Владелец подписки
	PlanType               string    // Тип тарифа: monthly или yearly
	StartDate              time.Time // Начало оплаченного периода
	EndDate                time.Time // Конец оплаченного периода
	PaymentStatus          string    // completed или canceled
	Amount                 float64   // Сумма по локальной таблице цен
	ExternalSubscriptionID string    // Идентификатор подписки у провайдера, ключ идемпотентности
	CreatedAt              time.Time // Дата создания записи
}
