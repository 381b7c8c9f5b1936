// Package media реализует работу с пользовательским контентом:
// приём файлов для генерации, список и удаление готовых записей.
// Сами генераторы остаются заглушками, возвращающими ошибку
// недоступности, успешный запуск создал бы запись контента.
package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/firstmodai/firstmod-backend/internal/lib/sl"
	"github.com/firstmodai/firstmod-backend/internal/models"
)

// MaxUploadSize предел размера загружаемого файла.
const MaxUploadSize = 16 << 20

// Ошибки работы с контентом.
var (
	ErrGeneratorUnavailable = errors.New("generation backend is not available")
	ErrFileType             = errors.New("file type is not allowed")
	ErrNotFound             = errors.New("animation not found")
)

var allowedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".mp3": {}, ".wav": {},
	".mp4": {}, ".avi": {}, ".mov": {},
}

// ContentRepository описывает хранение записей контента.
type ContentRepository interface {
	CreateAnimation(ctx context.Context, animation models.Animation) (int, error)
	ListAnimationsByUser(ctx context.Context, userUID string) ([]*models.Animation, error)
	RemoveAnimation(ctx context.Context, id int, userUID string) (string, error)
}

// Generator описывает бэкенд генерации контента.
type Generator interface {
	Generate(ctx context.Context, toolType, inputPath string) (string, error)
}

// StubGenerator заглушка бэкенда генерации.
type StubGenerator struct{}

// Generate всегда возвращает ошибку недоступности бэкенда.
func (StubGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	return "", ErrGeneratorUnavailable
}

// Service сервис работы с пользовательским контентом.
type Service struct {
	repo      ContentRepository
	generator Generator
	uploadDir string
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo ContentRepository, generator Generator, uploadDir string, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		generator: generator,
		uploadDir: uploadDir,
		log:       log,
	}
}

// SaveUpload сохраняет загруженный файл с уникальным именем и
// возвращает путь к нему.
func (s *Service) SaveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	const op = "media.SaveUpload"

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", ErrFileType
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	path := filepath.Join(s.uploadDir, uuid.New().String()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = dst.Close()
	}()

	if _, err := io.Copy(dst, file); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return path, nil
}

// Generate запускает генерацию контента по загруженному файлу.
// При успехе запись попадает в хранилище, при недоступности бэкенда
// исходный файл удаляется.
func (s *Service) Generate(ctx context.Context, userUID, toolType, inputPath string) (*models.Animation, error) {
	const op = "media.Generate"

	outputPath, err := s.generator.Generate(ctx, toolType, inputPath)
	if err != nil {
		if removeErr := os.Remove(inputPath); removeErr != nil {
			s.log.Warn("failed to remove upload", slog.String("path", inputPath), sl.Err(removeErr))
		}
		return nil, err
	}

	animation := models.Animation{
		UserUID:  userUID,
		ToolType: toolType,
		FilePath: outputPath,
		Status:   "completed",
	}
	id, err := s.repo.CreateAnimation(ctx, animation)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	animation.ID = id
	return &animation, nil
}

// List возвращает записи контента пользователя.
func (s *Service) List(ctx context.Context, userUID string) ([]*models.Animation, error) {
	return s.repo.ListAnimationsByUser(ctx, userUID)
}

// Remove удаляет запись контента пользователя. Файл удаляется по
// возможности: ошибка удаления файла логируется и не отменяет
// удаление записи.
func (s *Service) Remove(ctx context.Context, id int, userUID string) error {
	filePath, err := s.repo.RemoveAnimation(ctx, id, userUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if filePath != "" {
		if err := os.Remove(filePath); err != nil {
			s.log.Warn("failed to remove content file", slog.String("path", filePath), sl.Err(err))
		}
	}
	return nil
}
