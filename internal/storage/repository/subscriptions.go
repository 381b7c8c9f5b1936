package repository

import (
	"context"
	"fmt"

	"github.com/firstmodai/firstmod-backend/internal/models"
)

// CreateLedgerEntry вставляет новую запись журнала подписок и возвращает её ID.
// Уникальный индекс по external_subscription_id защищает от дублей при гонке
// синхронной проверки платежа и вебхука.
func (s *Storage) CreateLedgerEntry(ctx context.Context, entry models.Subscription) (int, error) {
	const op = "storage.CreateLedgerEntry"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (user_uid, plan_type, start_date, end_date,
			      payment_status, amount, external_subscription_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (external_subscription_id) DO NOTHING
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		entry.UserUID, entry.PlanType, entry.StartDate, entry.EndDate,
		entry.PaymentStatus, entry.Amount, entry.ExternalSubscriptionID).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ExistsByExternalID проверяет, есть ли запись журнала для подписки провайдера.
func (s *Storage) ExistsByExternalID(ctx context.Context, externalSubscriptionID string) (bool, error) {
	const op = "storage.ExistsByExternalID"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE external_subscription_id = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, externalSubscriptionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// MarkCanceledByExternalID помечает запись журнала отменённой
// и возвращает количество изменённых строк.
func (s *Storage) MarkCanceledByExternalID(ctx context.Context, externalSubscriptionID string) (int, error) {
	const op = "storage.MarkCanceledByExternalID"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET payment_status = $1 WHERE external_subscription_id = $2`
	result, err := s.DB.ExecContext(ctx, query, models.PaymentCanceled, externalSubscriptionID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// ListLedgerByUser возвращает записи журнала подписок пользователя.
func (s *Storage) ListLedgerByUser(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	const op = "storage.ListLedgerByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, plan_type, start_date, end_date, payment_status,
			      amount, external_subscription_id, created_at
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		var item models.Subscription
		if err := rows.Scan(&item.ID, &item.UserUID, &item.PlanType, &item.StartDate,
			&item.EndDate, &item.PaymentStatus, &item.Amount,
			&item.ExternalSubscriptionID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
