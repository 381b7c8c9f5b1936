package media

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/firstmodai/firstmod-backend/internal/models"
)

// MockRepo реализует интерфейс media.ContentRepository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) CreateAnimation(ctx context.Context, animation models.Animation) (int, error) {
	args := m.Called(ctx, animation)
	return args.Int(0), args.Error(1)
}

func (m *MockRepo) ListAnimationsByUser(ctx context.Context, userUID string) ([]*models.Animation, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Animation), args.Error(1)
}

func (m *MockRepo) RemoveAnimation(ctx context.Context, id int, userUID string) (string, error) {
	args := m.Called(ctx, id, userUID)
	return args.String(0), args.Error(1)
}

// fakeGenerator возвращает заранее заданный результат
type fakeGenerator struct {
	outputPath string
	err        error
}

func (g fakeGenerator) Generate(context.Context, string, string) (string, error) {
	return g.outputPath, g.err
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestService(t *testing.T, generator Generator) (*Service, *MockRepo, string) {
	t.Helper()
	repo := new(MockRepo)
	uploadDir := t.TempDir()
	return New(repo, generator, uploadDir, newNoopLogger()), repo, uploadDir
}

func TestSaveUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  error
	}{
		{name: "изображение принимается", filename: "photo.jpg"},
		{name: "видео принимается", filename: "clip.MP4"},
		{name: "исполняемый файл отклоняется", filename: "script.exe", wantErr: ErrFileType},
		{name: "файл без расширения отклоняется", filename: "noext", wantErr: ErrFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, uploadDir := newTestService(t, StubGenerator{})

			src := filepath.Join(t.TempDir(), "src")
			require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))
			file, err := os.Open(src)
			require.NoError(t, err)
			defer func() {
				_ = file.Close()
			}()

			header := &multipart.FileHeader{Filename: tt.filename}
			path, err := svc.SaveUpload(file, header)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(path, uploadDir))
			assert.Equal(t, strings.ToLower(filepath.Ext(tt.filename)), filepath.Ext(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, []byte("content"), data)
		})
	}
}

func TestGenerateUnavailableRemovesUpload(t *testing.T) {
	svc, repo, uploadDir := newTestService(t, StubGenerator{})

	inputPath := filepath.Join(uploadDir, "input.jpg")
	require.NoError(t, os.WriteFile(inputPath, []byte("content"), 0o644))

	_, err := svc.Generate(context.Background(), "uid-1", models.ToolTalkingHead, inputPath)
	assert.ErrorIs(t, err, ErrGeneratorUnavailable)

	_, statErr := os.Stat(inputPath)
	assert.True(t, os.IsNotExist(statErr))
	repo.AssertNotCalled(t, "CreateAnimation", mock.Anything, mock.Anything)
}

func TestGenerateSuccessCreatesRecord(t *testing.T) {
	svc, repo, _ := newTestService(t, fakeGenerator{outputPath: "/uploads/animations/out.mp4"})

	repo.On("CreateAnimation", mock.Anything, mock.MatchedBy(func(a models.Animation) bool {
		return a.UserUID == "uid-1" &&
			a.ToolType == models.ToolFaceSwap &&
			a.FilePath == "/uploads/animations/out.mp4" &&
			a.Status == "completed"
	})).Return(7, nil)

	animation, err := svc.Generate(context.Background(), "uid-1", models.ToolFaceSwap, "/uploads/in.jpg")
	require.NoError(t, err)
	assert.Equal(t, 7, animation.ID)
	repo.AssertExpectations(t)
}

func TestRemoveNotFound(t *testing.T) {
	svc, repo, _ := newTestService(t, StubGenerator{})

	repo.On("RemoveAnimation", mock.Anything, 42, "uid-1").
		Return("", fmt.Errorf("storage.RemoveAnimation: %w", sql.ErrNoRows))

	err := svc.Remove(context.Background(), 42, "uid-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveDeletesFile(t *testing.T) {
	svc, repo, uploadDir := newTestService(t, StubGenerator{})

	filePath := filepath.Join(uploadDir, "out.mp4")
	require.NoError(t, os.WriteFile(filePath, []byte("content"), 0o644))

	repo.On("RemoveAnimation", mock.Anything, 1, "uid-1").Return(filePath, nil)

	require.NoError(t, svc.Remove(context.Background(), 1, "uid-1"))
	_, statErr := os.Stat(filePath)
	assert.True(t, os.IsNotExist(statErr))
}
