package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/firstmodai/firstmod-backend/internal/lib/card"
	"github.com/firstmodai/firstmod-backend/internal/models"
	"github.com/firstmodai/firstmod-backend/internal/paymentprovider"
	"github.com/firstmodai/firstmod-backend/internal/services/session"
)

// MockUsers реализует интерфейс billing.UserRepository
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) GetUserByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUsers) SetProviderCustomerID(ctx context.Context, userUID, customerID string) error {
	args := m.Called(ctx, userUID, customerID)
	return args.Error(0)
}

func (m *MockUsers) ApplySubscription(ctx context.Context, userUID, planType, subscriptionID string, endDate time.Time) error {
	args := m.Called(ctx, userUID, planType, subscriptionID, endDate)
	return args.Error(0)
}

func (m *MockUsers) UpdateSubscriptionEndDate(ctx context.Context, userUID string, endDate time.Time) error {
	args := m.Called(ctx, userUID, endDate)
	return args.Error(0)
}

func (m *MockUsers) ClearSubscription(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

// MockLedger реализует интерфейс billing.LedgerRepository
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreateLedgerEntry(ctx context.Context, entry models.Subscription) (int, error) {
	args := m.Called(ctx, entry)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) ExistsByExternalID(ctx context.Context, externalSubscriptionID string) (bool, error) {
	args := m.Called(ctx, externalSubscriptionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) MarkCanceledByExternalID(ctx context.Context, externalSubscriptionID string) (int, error) {
	args := m.Called(ctx, externalSubscriptionID)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) ListLedgerByUser(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

// MockProvider реализует интерфейс billing.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateCustomer(ctx context.Context, reqParams paymentprovider.CreateCustomerRequest) (*paymentprovider.Customer, error) {
	args := m.Called(ctx, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Customer), args.Error(1)
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, reqParams paymentprovider.CreateCheckoutSessionRequest) (*paymentprovider.CheckoutSession, error) {
	args := m.Called(ctx, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.CheckoutSession), args.Error(1)
}

func (m *MockProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*paymentprovider.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.CheckoutSession), args.Error(1)
}

func (m *MockProvider) ModifySubscription(ctx context.Context, subscriptionID string, reqParams paymentprovider.ModifySubscriptionRequest) (*paymentprovider.Subscription, error) {
	args := m.Called(ctx, subscriptionID, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Subscription), args.Error(1)
}

// MockSessions реализует интерфейс billing.Sessions
type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Refresh(ctx context.Context, userUID string) (*session.Info, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Info), args.Error(1)
}

// MockNotifier реализует интерфейс billing.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(routingKey string, message any) error {
	args := m.Called(routingKey, message)
	return args.Error(0)
}

type deps struct {
	users    *MockUsers
	ledger   *MockLedger
	provider *MockProvider
	sessions *MockSessions
	notifier *MockNotifier
}

func newTestService() (*Service, *deps) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := &deps{
		users:    new(MockUsers),
		ledger:   new(MockLedger),
		provider: new(MockProvider),
		sessions: new(MockSessions),
		notifier: new(MockNotifier),
	}
	svc := New(d.users, d.ledger, d.provider, d.sessions, d.notifier,
		"whsec_test", "https://app.example.com", "price_monthly", "price_yearly", logger)
	return svc, d
}

func TestApplyPaymentExtendsFromFutureEndDate(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	currentEnd := time.Now().UTC().Add(10 * 24 * time.Hour).Truncate(time.Second)
	user := &models.User{UID: "uid-1", SubscriptionEndDate: &currentEnd}
	wantEnd := currentEnd.Add(30 * 24 * time.Hour)

	d.ledger.On("ExistsByExternalID", mock.Anything, "sub_1").Return(false, nil)
	d.users.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
	// Запись журнала фиксирует оплаченный период: он начинается с конца
	// текущего, а не с момента платежа.
	d.ledger.On("CreateLedgerEntry", mock.Anything, mock.MatchedBy(func(entry models.Subscription) bool {
		return entry.StartDate.Equal(currentEnd) &&
			entry.EndDate.Equal(wantEnd) &&
			entry.PlanType == models.PlanMonthly &&
			entry.Amount == 9.99 &&
			entry.PaymentStatus == models.PaymentCompleted
	})).Return(1, nil)
	d.users.On("ApplySubscription", mock.Anything, "uid-1", models.PlanMonthly, "sub_1",
		mock.MatchedBy(func(endDate time.Time) bool {
			return endDate.Equal(wantEnd)
		})).Return(nil)

	applied, err := svc.ApplyPayment(ctx, "uid-1", "sub_1", models.PlanMonthly)
	require.NoError(t, err)
	assert.True(t, applied)
	d.users.AssertExpectations(t)
	d.ledger.AssertExpectations(t)
}

func TestApplyPaymentStartsFromNowWhenExpired(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	pastEnd := time.Now().UTC().Add(-5 * 24 * time.Hour)
	user := &models.User{UID: "uid-1", SubscriptionEndDate: &pastEnd}

	d.ledger.On("ExistsByExternalID", mock.Anything, "sub_2").Return(false, nil)
	d.users.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
	d.ledger.On("CreateLedgerEntry", mock.Anything, mock.Anything).Return(2, nil)
	d.users.On("ApplySubscription", mock.Anything, "uid-1", models.PlanYearly, "sub_2",
		mock.MatchedBy(func(endDate time.Time) bool {
			want := time.Now().UTC().Add(365 * 24 * time.Hour)
			return endDate.Sub(want).Abs() < time.Minute
		})).Return(nil)

	applied, err := svc.ApplyPayment(ctx, "uid-1", "sub_2", models.PlanYearly)
	require.NoError(t, err)
	assert.True(t, applied)
	d.users.AssertExpectations(t)
}

func TestApplyPaymentIsIdempotent(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	d.ledger.On("ExistsByExternalID", mock.Anything, "sub_1").Return(true, nil)

	applied, err := svc.ApplyPayment(ctx, "uid-1", "sub_1", models.PlanMonthly)
	require.NoError(t, err)
	assert.False(t, applied)
	d.users.AssertNotCalled(t, "ApplySubscription",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyPaymentToleratesInsertRace(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	user := &models.User{UID: "uid-1"}
	d.ledger.On("ExistsByExternalID", mock.Anything, "sub_1").Return(false, nil)
	d.users.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
	// ON CONFLICT DO NOTHING: параллельный вызов успел вставить запись первым
	d.ledger.On("CreateLedgerEntry", mock.Anything, mock.Anything).
		Return(0, fmt.Errorf("storage.CreateLedgerEntry: %w", sql.ErrNoRows))

	applied, err := svc.ApplyPayment(ctx, "uid-1", "sub_1", models.PlanMonthly)
	require.NoError(t, err)
	assert.False(t, applied)
	d.users.AssertNotCalled(t, "ApplySubscription",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyPaymentUnknownPlan(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ApplyPayment(context.Background(), "uid-1", "sub_1", "weekly")
	assert.ErrorIs(t, err, ErrPlanInvalid)
}

func TestVerifyCheckoutPendingDoesNotMutate(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	d.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&paymentprovider.CheckoutSession{
		ID:            "cs_1",
		PaymentStatus: paymentprovider.SessionUnpaid,
	}, nil)

	result, err := svc.VerifyCheckout(ctx, "uid-1", "cs_1")
	require.NoError(t, err)
	assert.False(t, result.Paid)
	d.users.AssertNotCalled(t, "ApplySubscription",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.sessions.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestVerifyCheckoutPaidAppliesAndRefreshes(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	endDate := time.Now().UTC().Add(30 * 24 * time.Hour)
	d.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&paymentprovider.CheckoutSession{
		ID:             "cs_1",
		PaymentStatus:  paymentprovider.SessionPaid,
		SubscriptionID: "sub_1",
		Metadata:       map[string]string{"user_uid": "uid-1", "plan_type": "monthly"},
	}, nil)
	d.ledger.On("ExistsByExternalID", mock.Anything, "sub_1").Return(false, nil)
	d.users.On("GetUser", mock.Anything, "uid-1").Return(&models.User{UID: "uid-1"}, nil)
	d.ledger.On("CreateLedgerEntry", mock.Anything, mock.Anything).Return(1, nil)
	d.users.On("ApplySubscription", mock.Anything, "uid-1", models.PlanMonthly, "sub_1", mock.Anything).Return(nil)
	d.sessions.On("Refresh", mock.Anything, "uid-1").Return(&session.Info{
		UserUID:             "uid-1",
		Role:                models.RoleSubscriber,
		SubscriptionEndDate: &endDate,
	}, nil)

	result, err := svc.VerifyCheckout(ctx, "uid-1", "cs_1")
	require.NoError(t, err)
	assert.True(t, result.Paid)
	assert.Equal(t, models.PlanMonthly, result.PlanType)
	require.NotNil(t, result.SubscriptionEndDate)
	d.users.AssertExpectations(t)
	d.sessions.AssertExpectations(t)
}

func TestVerifyCheckoutRejectsForeignSession(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	d.provider.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(&paymentprovider.CheckoutSession{
		ID:             "cs_1",
		PaymentStatus:  paymentprovider.SessionPaid,
		SubscriptionID: "sub_1",
		Metadata:       map[string]string{"user_uid": "uid-other", "plan_type": "monthly"},
	}, nil)

	_, err := svc.VerifyCheckout(ctx, "uid-1", "cs_1")
	assert.ErrorIs(t, err, ErrCheckoutOwner)
	d.ledger.AssertNotCalled(t, "CreateLedgerEntry", mock.Anything, mock.Anything)
	d.users.AssertNotCalled(t, "ApplySubscription",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.sessions.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestVerifySignature(t *testing.T) {
	svc, _ := newTestService()
	body := []byte(`{"type":"checkout.session.completed"}`)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, svc.VerifySignature(body, signature))
	assert.False(t, svc.VerifySignature(body, "invalid"))
	assert.False(t, svc.VerifySignature([]byte(`{"type":"tampered"}`), signature))
}

func TestProcessEventSubscriptionDeleted(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	object, err := json.Marshal(paymentprovider.Subscription{ID: "sub_1", Status: "canceled"})
	require.NoError(t, err)
	event := Event{
		Type: EventSubscriptionDeleted,
		Data: EventData{Object: object},
	}

	user := &models.User{UID: "uid-1", Email: "user@example.com", FullName: "Ivan"}
	d.users.On("GetUserByProviderSubscriptionID", mock.Anything, "sub_1").Return(user, nil)
	d.users.On("ClearSubscription", mock.Anything, "uid-1").Return(nil)
	d.ledger.On("MarkCanceledByExternalID", mock.Anything, "sub_1").Return(1, nil)
	d.sessions.On("Refresh", mock.Anything, "uid-1").Return(&session.Info{UserUID: "uid-1"}, nil)
	d.notifier.On("Publish", "billing", mock.MatchedBy(func(task models.EmailTask) bool {
		return task.To == "user@example.com"
	})).Return(nil)

	require.NoError(t, svc.ProcessEvent(ctx, event))
	d.users.AssertExpectations(t)
	d.ledger.AssertExpectations(t)
	d.notifier.AssertExpectations(t)
}

func TestProcessEventSubscriptionUpdatedExtendsPeriod(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()

	periodEnd := time.Now().UTC().Add(60 * 24 * time.Hour).Truncate(time.Second)
	object, err := json.Marshal(paymentprovider.Subscription{
		ID:               "sub_1",
		Status:           "active",
		CurrentPeriodEnd: periodEnd.Unix(),
	})
	require.NoError(t, err)

	user := &models.User{UID: "uid-1"}
	d.users.On("GetUserByProviderSubscriptionID", mock.Anything, "sub_1").Return(user, nil)
	d.users.On("UpdateSubscriptionEndDate", mock.Anything, "uid-1",
		mock.MatchedBy(func(endDate time.Time) bool {
			return endDate.Equal(periodEnd)
		})).Return(nil)
	d.sessions.On("Refresh", mock.Anything, "uid-1").Return(&session.Info{UserUID: "uid-1"}, nil)

	event := Event{Type: EventSubscriptionUpdated, Data: EventData{Object: object}}
	require.NoError(t, svc.ProcessEvent(ctx, event))
	d.users.AssertExpectations(t)
}

func TestProcessEventUnknownTypeIsAcknowledged(t *testing.T) {
	svc, d := newTestService()

	event := Event{Type: "invoice.finalized", Data: EventData{Object: json.RawMessage(`{}`)}}
	require.NoError(t, svc.ProcessEvent(context.Background(), event))
	d.users.AssertNotCalled(t, "GetUserByProviderSubscriptionID", mock.Anything, mock.Anything)
}

func TestCancelAtPeriodEndWithoutSubscription(t *testing.T) {
	svc, d := newTestService()

	d.users.On("GetUser", mock.Anything, "uid-1").Return(&models.User{UID: "uid-1"}, nil)

	err := svc.CancelAtPeriodEnd(context.Background(), "uid-1")
	assert.ErrorIs(t, err, ErrNoSubscription)
	d.provider.AssertNotCalled(t, "ModifySubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelAtPeriodEndDoesNotMutateLocally(t *testing.T) {
	svc, d := newTestService()

	subID := "sub_1"
	d.users.On("GetUser", mock.Anything, "uid-1").Return(&models.User{
		UID:                    "uid-1",
		ProviderSubscriptionID: &subID,
	}, nil)
	d.provider.On("ModifySubscription", mock.Anything, "sub_1",
		paymentprovider.ModifySubscriptionRequest{CancelAtPeriodEnd: true}).
		Return(&paymentprovider.Subscription{ID: "sub_1", CancelAtPeriodEnd: true}, nil)

	require.NoError(t, svc.CancelAtPeriodEnd(context.Background(), "uid-1"))
	d.users.AssertNotCalled(t, "ClearSubscription", mock.Anything, mock.Anything)
	d.provider.AssertExpectations(t)
}

func TestUpgradeWithCardRejectsBadCard(t *testing.T) {
	svc, d := newTestService()

	details := card.Details{
		Number: "4532015112830367",
		Expiry: "12/30",
		CVV:    "123",
		Holder: "John Doe",
	}
	err := svc.UpgradeWithCard(context.Background(), "uid-1", models.PlanMonthly, details)
	assert.ErrorIs(t, err, card.ErrLuhnCheck)
	d.ledger.AssertNotCalled(t, "CreateLedgerEntry", mock.Anything, mock.Anything)
}
