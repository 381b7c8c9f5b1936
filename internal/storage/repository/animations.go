package repository

import (
	"context"
	"fmt"

	"github.com/firstmodai/firstmod-backend/internal/models"
)

// CreateAnimation вставляет запись о сгенерированном контенте и возвращает её ID.
func (s *Storage) CreateAnimation(ctx context.Context, a models.Animation) (int, error) {
	const op = "storage.CreateAnimation"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO animations (user_uid, tool_type, file_path, status)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		a.UserUID, a.ToolType, a.FilePath, a.Status).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ListAnimationsByUser возвращает записи контента пользователя.
func (s *Storage) ListAnimationsByUser(ctx context.Context, userUID string) ([]*models.Animation, error) {
	const op = "storage.ListAnimationsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, tool_type, file_path, status, created_at
			  FROM animations
			  WHERE user_uid = $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Animation
	for rows.Next() {
		var item models.Animation
		if err := rows.Scan(&item.ID, &item.UserUID, &item.ToolType, &item.FilePath,
			&item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// RemoveAnimation удаляет запись контента, принадлежащую пользователю,
// и возвращает путь к файлу для последующего удаления с диска.
func (s *Storage) RemoveAnimation(ctx context.Context, id int, userUID string) (string, error) {
	const op = "storage.RemoveAnimation"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM animations WHERE id = $1 AND user_uid = $2 RETURNING file_path`
	var filePath string
	if err := s.DB.QueryRowContext(ctx, query, id, userUID).Scan(&filePath); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return filePath, nil
}
