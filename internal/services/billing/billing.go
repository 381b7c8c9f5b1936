// Package billing реализует согласование платежей: синхронную проверку
// платёжной сессии, обработку событий вебхука и идемпотентное применение
// оплаты. Оба пути доставки платежа сходятся в ApplyPayment, журнал
// подписок с уникальным индексом по внешнему идентификатору гарантирует,
// что оплата применяется ровно один раз.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/firstmodai/firstmod-backend/internal/lib/card"
	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/models"
	"github.com/firstmodai/firstmod-backend/internal/paymentprovider"
	"github.com/firstmodai/firstmod-backend/internal/rabbitmq"
	"github.com/firstmodai/firstmod-backend/internal/services/session"
)

// Ошибки платёжного уровня.
var (
	ErrPlanInvalid    = errors.New("unknown plan type")
	ErrNoSubscription = errors.New("no active subscription")
	ErrCheckoutOwner  = errors.New("checkout session belongs to another user")
)

// Plan описывает тариф: цена и длительность оплачиваемого периода.
// Цены задаются здесь и не читаются из ответов провайдера.
type Plan struct {
	PriceID string
	Amount  float64
	Period  time.Duration
}

// Типы событий провайдера, которые обрабатывает вебхук.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event событие вебхука платёжного провайдера.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData полезная нагрузка события, разбирается по типу события.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// CheckoutResult итог синхронной проверки платёжной сессии.
type CheckoutResult struct {
	Paid                bool
	PlanType            string
	SubscriptionEndDate *time.Time
}

// UserRepository описывает контракт для платёжных полей пользователя.
type UserRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetUserByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error)
	SetProviderCustomerID(ctx context.Context, userUID, customerID string) error
	ApplySubscription(ctx context.Context, userUID, planType, subscriptionID string, endDate time.Time) error
	UpdateSubscriptionEndDate(ctx context.Context, userUID string, endDate time.Time) error
	ClearSubscription(ctx context.Context, userUID string) error
}

// LedgerRepository описывает журнал подписок.
type LedgerRepository interface {
	CreateLedgerEntry(ctx context.Context, entry models.Subscription) (int, error)
	ExistsByExternalID(ctx context.Context, externalSubscriptionID string) (bool, error)
	MarkCanceledByExternalID(ctx context.Context, externalSubscriptionID string) (int, error)
	ListLedgerByUser(ctx context.Context, userUID string) ([]*models.Subscription, error)
}

// Provider описывает клиента платёжного провайдера.
type Provider interface {
	CreateCustomer(ctx context.Context, reqParams paymentprovider.CreateCustomerRequest) (*paymentprovider.Customer, error)
	CreateCheckoutSession(ctx context.Context, reqParams paymentprovider.CreateCheckoutSessionRequest) (*paymentprovider.CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*paymentprovider.CheckoutSession, error)
	ModifySubscription(ctx context.Context, subscriptionID string, reqParams paymentprovider.ModifySubscriptionRequest) (*paymentprovider.Subscription, error)
}

// Sessions описывает синхронизатор сессий.
type Sessions interface {
	Refresh(ctx context.Context, userUID string) (*session.Info, error)
}

// Notifier публикует почтовые задания в очередь уведомлений.
type Notifier interface {
	Publish(routingKey string, message any) error
}

// Service сервис согласования платежей.
type Service struct {
	users         UserRepository
	ledger        LedgerRepository
	provider      Provider
	sessions      Sessions
	notifier      Notifier
	plans         map[string]Plan
	webhookSecret string
	frontendURL   string
	log           *slog.Logger
}

// New создает новый экземпляр Service. priceIDMonthly и priceIDYearly —
// идентификаторы тарифов на стороне провайдера.
func New(users UserRepository, ledger LedgerRepository, provider Provider,
	sessions Sessions, notifier Notifier, webhookSecret, frontendURL,
	priceIDMonthly, priceIDYearly string, log *slog.Logger) *Service {
	return &Service{
		users:    users,
		ledger:   ledger,
		provider: provider,
		sessions: sessions,
		notifier: notifier,
		plans: map[string]Plan{
			models.PlanMonthly: {PriceID: priceIDMonthly, Amount: 9.99, Period: 30 * 24 * time.Hour},
			models.PlanYearly:  {PriceID: priceIDYearly, Amount: 99.99, Period: 365 * 24 * time.Hour},
		},
		webhookSecret: webhookSecret,
		frontendURL:   frontendURL,
		log:           log,
	}
}

// CreateCheckout открывает платёжную сессию у провайдера и возвращает
// URL для переадресации. Идентификатор пользователя и тариф кладутся
// в метаданные сессии, чтобы вебхук мог сопоставить оплату.
func (s *Service) CreateCheckout(ctx context.Context, userUID, planType string) (string, error) {
	const op = "billing.CreateCheckout"

	plan, ok := s.plans[planType]
	if !ok {
		return "", ErrPlanInvalid
	}

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	checkout, err := s.provider.CreateCheckoutSession(ctx, paymentprovider.CreateCheckoutSessionRequest{
		CustomerID: customerID,
		PriceID:    plan.PriceID,
		Mode:       "subscription",
		SuccessURL: s.frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.frontendURL + "/payment/cancel",
		Metadata: map[string]string{
			"user_uid":  user.UID,
			"plan_type": planType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return checkout.URL, nil
}

// ensureCustomer возвращает идентификатор клиента у провайдера,
// при первом обращении создаёт клиента и сохраняет привязку.
func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.ProviderCustomerID != nil && *user.ProviderCustomerID != "" {
		return *user.ProviderCustomerID, nil
	}
	customer, err := s.provider.CreateCustomer(ctx, paymentprovider.CreateCustomerRequest{
		Email: user.Email,
		Name:  user.FullName,
	})
	if err != nil {
		return "", err
	}
	if err := s.users.SetProviderCustomerID(ctx, user.UID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}

// VerifyCheckout синхронно проверяет платёжную сессию после возврата
// пользователя. Неоплаченная сессия ничего не меняет: оплата может
// дойти позже через вебхук.
func (s *Service) VerifyCheckout(ctx context.Context, userUID, sessionID string) (*CheckoutResult, error) {
	const op = "billing.VerifyCheckout"

	checkout, err := s.provider.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if checkout.PaymentStatus != paymentprovider.SessionPaid {
		return &CheckoutResult{Paid: false}, nil
	}
	// Идентификатор сессии приходит от клиента: сессия, открытая для
	// другого пользователя, не должна применяться к вызывающему.
	if checkout.Metadata["user_uid"] != userUID {
		return nil, ErrCheckoutOwner
	}

	planType := checkout.Metadata["plan_type"]
	if _, err := s.ApplyPayment(ctx, userUID, checkout.SubscriptionID, planType); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	info, err := s.sessions.Refresh(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &CheckoutResult{
		Paid:                true,
		PlanType:            planType,
		SubscriptionEndDate: info.SubscriptionEndDate,
	}, nil
}

// ApplyPayment идемпотентно применяет оплату подписки. Повторный вызов
// с тем же внешним идентификатором ничего не меняет: оба пути доставки,
// синхронная проверка и вебхук, проходят через эту точку. Возвращает
// признак того, что оплата применена этим вызовом.
func (s *Service) ApplyPayment(ctx context.Context, userUID, externalSubscriptionID, planType string) (bool, error) {
	const op = "billing.ApplyPayment"

	plan, ok := s.plans[planType]
	if !ok {
		return false, ErrPlanInvalid
	}

	exists, err := s.ledger.ExistsByExternalID(ctx, externalSubscriptionID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return false, nil
	}

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	startDate := now
	if user.SubscriptionEndDate != nil && user.SubscriptionEndDate.After(now) {
		startDate = *user.SubscriptionEndDate
	}
	endDate := startDate.Add(plan.Period)

	entry := models.Subscription{
		UserUID:                userUID,
		PlanType:               planType,
		StartDate:              startDate,
		EndDate:                endDate,
		PaymentStatus:          models.PaymentCompleted,
		Amount:                 plan.Amount,
		ExternalSubscriptionID: externalSubscriptionID,
	}
	if _, err := s.ledger.CreateLedgerEntry(ctx, entry); err != nil {
		// Гонка двух путей доставки: ON CONFLICT DO NOTHING не вернул id,
		// значит параллельный вызов уже применил эту оплату.
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.ApplySubscription(ctx, userUID, planType, externalSubscriptionID, endDate); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// VerifySignature проверяет подпись тела вебхука: HMAC-SHA256 от
// сырого тела запроса, закодированный в base64.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ProcessEvent обрабатывает событие вебхука. Неизвестные типы событий
// подтверждаются без обработки, чтобы провайдер не повторял доставку.
func (s *Service) ProcessEvent(ctx context.Context, event Event) error {
	const op = "billing.ProcessEvent"

	switch event.Type {
	case EventCheckoutCompleted:
		var checkout paymentprovider.CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &checkout); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return s.handleCheckoutCompleted(ctx, checkout)
	case EventSubscriptionUpdated:
		var subscription paymentprovider.Subscription
		if err := json.Unmarshal(event.Data.Object, &subscription); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return s.handleSubscriptionUpdated(ctx, subscription)
	case EventSubscriptionDeleted:
		var subscription paymentprovider.Subscription
		if err := json.Unmarshal(event.Data.Object, &subscription); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return s.handleSubscriptionDeleted(ctx, subscription)
	default:
		s.log.Debug("skipping webhook event", slog.String("type", event.Type))
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, checkout paymentprovider.CheckoutSession) error {
	if checkout.PaymentStatus != paymentprovider.SessionPaid {
		return nil
	}
	userUID := checkout.Metadata["user_uid"]
	planType := checkout.Metadata["plan_type"]
	if userUID == "" {
		s.log.Warn("checkout event without user metadata",
			slog.String("session_id", checkout.ID))
		return nil
	}

	applied, err := s.ApplyPayment(ctx, userUID, checkout.SubscriptionID, planType)
	if err != nil {
		return err
	}
	if applied {
		if _, err := s.sessions.Refresh(ctx, userUID); err != nil {
			s.log.Warn("failed to refresh session after payment",
				slog.String("user_uid", userUID), sl.Err(err))
		}
	}
	return nil
}

// handleSubscriptionUpdated синхронизирует дату окончания периода
// при продлении подписки на стороне провайдера.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, subscription paymentprovider.Subscription) error {
	if subscription.Status != "active" {
		return nil
	}
	user, err := s.users.GetUserByProviderSubscriptionID(ctx, subscription.ID)
	if err != nil {
		// Подписка неизвестна локально: событие могло прийти раньше
		// checkout.session.completed, провайдер доставит его повторно.
		s.log.Warn("subscription update for unknown subscription",
			slog.String("subscription_id", subscription.ID))
		return nil
	}

	endDate := time.Unix(subscription.CurrentPeriodEnd, 0).UTC()
	if err := s.users.UpdateSubscriptionEndDate(ctx, user.UID, endDate); err != nil {
		return err
	}
	if _, err := s.sessions.Refresh(ctx, user.UID); err != nil {
		s.log.Warn("failed to refresh session", slog.String("user_uid", user.UID), sl.Err(err))
	}
	return nil
}

// handleSubscriptionDeleted откатывает привилегии при отмене подписки
// и уведомляет пользователя письмом.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, subscription paymentprovider.Subscription) error {
	user, err := s.users.GetUserByProviderSubscriptionID(ctx, subscription.ID)
	if err != nil {
		s.log.Warn("subscription deletion for unknown subscription",
			slog.String("subscription_id", subscription.ID))
		return nil
	}

	if err := s.users.ClearSubscription(ctx, user.UID); err != nil {
		return err
	}
	if _, err := s.ledger.MarkCanceledByExternalID(ctx, subscription.ID); err != nil {
		return err
	}
	if _, err := s.sessions.Refresh(ctx, user.UID); err != nil {
		s.log.Warn("failed to refresh session", slog.String("user_uid", user.UID), sl.Err(err))
	}

	task := models.EmailTask{
		To:      user.Email,
		Subject: "Your subscription has ended",
		Body: fmt.Sprintf("Hello, %s!\n\nYour subscription has been canceled. "+
			"You can resubscribe at any time from your account page.", user.FullName),
	}
	if err := s.notifier.Publish(rabbitmq.RoutingBilling, task); err != nil {
		s.log.Error("failed to enqueue billing email",
			slog.String("email", user.Email), sl.Err(err))
	}
	return nil
}

// CancelAtPeriodEnd запрашивает у провайдера остановку продления.
// Локальное состояние не меняется: доступ сохраняется до конца
// оплаченного периода, откат выполнит событие об удалении подписки.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, userUID string) error {
	const op = "billing.CancelAtPeriodEnd"

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.ProviderSubscriptionID == nil || *user.ProviderSubscriptionID == "" {
		return ErrNoSubscription
	}

	_, err = s.provider.ModifySubscription(ctx, *user.ProviderSubscriptionID,
		paymentprovider.ModifySubscriptionRequest{CancelAtPeriodEnd: true})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpgradeWithCard применяет оплату по данным карты, введённым напрямую.
// Карта проходит полную проверку, сама оплата записывается с
// синтетическим внешним идентификатором.
func (s *Service) UpgradeWithCard(ctx context.Context, userUID, planType string, details card.Details) error {
	const op = "billing.UpgradeWithCard"

	if _, ok := s.plans[planType]; !ok {
		return ErrPlanInvalid
	}
	if err := card.Validate(details, time.Now()); err != nil {
		return err
	}

	externalID := "card_" + uuid.New().String()
	if _, err := s.ApplyPayment(ctx, userUID, externalID, planType); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.sessions.Refresh(ctx, userUID); err != nil {
		s.log.Warn("failed to refresh session", slog.String("user_uid", userUID), sl.Err(err))
	}
	return nil
}

// History возвращает журнал подписок пользователя.
func (s *Service) History(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	return s.ledger.ListLedgerByUser(ctx, userUID)
}
