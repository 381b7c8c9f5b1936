package login

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/firstmodai/firstmod-backend/internal/models"
	"github.com/firstmodai/firstmod-backend/internal/services/auth"
)

type AuthServiceMock struct {
	mock.Mock
}

func (m *AuthServiceMock) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	args := m.Called(ctx, email, password)
	user, _ := args.Get(1).(*models.User)
	return args.String(0), user, args.Error(2)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestLoginHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		mockToken      string
		mockUser       *models.User
		mockErr        error
		wantStatusCode int
		wantData       map[string]any
		wantError      string
		wantStatus     string
	}{
		{
			name:        "успешный вход",
			requestBody: Request{Email: "user@example.com", Password: "password123"},
			mockToken:   "tok",
			mockUser: &models.User{
				UID:      "uid-1",
				FullName: "Ivan",
				Role:     "subscriber",
			},
			wantStatusCode: http.StatusOK,
			wantData: map[string]any{
				"token":     "tok",
				"user_uid":  "uid-1",
				"full_name": "Ivan",
				"role":      "subscriber",
			},
			wantStatus: "OK",
		},
		{
			name:           "некорректный JSON",
			requestBody:    "not a json",
			wantStatusCode: http.StatusBadRequest,
			wantError:      "invalid request body",
			wantStatus:     "Error",
		},
		{
			name:           "ошибка валидации - нет пароля",
			requestBody:    Request{Email: "user@example.com"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Password is a required field",
			wantStatus:     "Error",
		},
		{
			name:           "неверные учетные данные",
			requestBody:    Request{Email: "user@example.com", Password: "wrong"},
			mockErr:        auth.ErrInvalidCredentials,
			wantStatusCode: http.StatusUnauthorized,
			wantError:      "invalid credentials",
			wantStatus:     "Error",
		},
		{
			name:           "почта не подтверждена",
			requestBody:    Request{Email: "user@example.com", Password: "password123"},
			mockErr:        auth.ErrVerificationRequired,
			wantStatusCode: http.StatusForbidden,
			wantError:      "email verification required",
			wantStatus:     "Error",
		},
		{
			name:           "учётная запись заблокирована",
			requestBody:    Request{Email: "user@example.com", Password: "password123"},
			mockErr:        auth.ErrSuspended,
			wantStatusCode: http.StatusForbidden,
			wantError:      "account is suspended",
			wantStatus:     "Error",
		},
		{
			name:           "внутренняя ошибка сервиса",
			requestBody:    Request{Email: "user@example.com", Password: "password123"},
			mockErr:        errors.New("storage error"),
			wantStatusCode: http.StatusInternalServerError,
			wantError:      "internal server error",
			wantStatus:     "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authMock := new(AuthServiceMock)
			handler := New(newNoopLogger(), authMock)

			if tt.mockToken != "" || tt.mockErr != nil {
				req := tt.requestBody.(Request)
				authMock.On("Login", mock.Anything, req.Email, req.Password).
					Return(tt.mockToken, tt.mockUser, tt.mockErr).Once()
			}

			var bodyBytes []byte
			var err error
			switch v := tt.requestBody.(type) {
			case string:
				bodyBytes = []byte(v)
			default:
				bodyBytes, err = json.Marshal(tt.requestBody)
				if err != nil {
					t.Fatal(err)
				}
			}

			req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(bodyBytes))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var got map[string]any
			err = json.NewDecoder(rec.Body).Decode(&got)
			assert.NoError(t, err)

			assert.Equal(t, tt.wantStatus, got["status"])

			if tt.wantError != "" {
				errStr, ok := got["error"].(string)
				assert.True(t, ok)
				assert.Equal(t, tt.wantError, errStr)
			} else {
				assert.Nil(t, got["error"])
			}

			if tt.wantData != nil {
				data, ok := got["data"].(map[string]any)
				assert.True(t, ok)
				for k, v := range tt.wantData {
					assert.Equal(t, v, data[k])
				}
			}

			authMock.AssertExpectations(t)
		})
	}
}
