// Package paymentprovider содержит клиента платёжного провайдера и типы его API.
package paymentprovider

// CreateCustomerRequest запрос на создание клиента у провайдера.
type CreateCustomerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Customer ответ провайдера с данными клиента.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreateCheckoutSessionRequest запрос на открытие платёжной сессии.
// Metadata переносится провайдером в событие вебхука как есть и
// используется для сопоставления оплаты с пользователем и тарифом.
type CreateCheckoutSessionRequest struct {
	CustomerID string            `json:"customer"`
	PriceID    string            `json:"price"`
	Mode       string            `json:"mode"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Статусы оплаты платёжной сессии.
const (
	SessionPaid   = "paid"
	SessionUnpaid = "unpaid"
)

// CheckoutSession ответ провайдера с данными платёжной сессии.
type CheckoutSession struct {
	ID             string            `json:"id"`
	URL            string            `json:"url"`
	CustomerID     string            `json:"customer"`
	PaymentStatus  string            `json:"payment_status"`
	SubscriptionID string            `json:"subscription"`
	AmountTotal    float64           `json:"amount_total"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ModifySubscriptionRequest запрос на изменение подписки у провайдера.
type ModifySubscriptionRequest struct {
	CancelAtPeriodEnd bool `json:"cancel_at_period_end"`
}

// Subscription ответ провайдера с данными подписки.
type Subscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
}
