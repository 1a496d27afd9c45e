package credadd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/credential-broker/internal/models"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

type AdminServiceMock struct {
	mock.Mock
}

func (m *AdminServiceMock) AddCredential(ctx context.Context, username, secret string, days int) (*models.Credential, error) {
	args := m.Called(ctx, username, secret, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credential), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestCredAddHandler_ServeHTTP(t *testing.T) {
	cred := &models.Credential{
		Username:         "acc_new",
		Secret:           "secret123",
		Status:           models.StatusAvailable,
		CredentialExpiry: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name           string
		requestBody    interface{}
		mockCred       *models.Credential
		mockErr        error
		wantStatusCode int
		wantError      string
		wantStatus     string
	}{
		{
			name:           "success",
			requestBody:    Request{Username: "acc_new", Secret: "secret123", Days: 30},
			mockCred:       cred,
			wantStatusCode: http.StatusOK,
			wantStatus:     "OK",
		},
		{
			name:           "duplicate credential",
			requestBody:    Request{Username: "acc_new", Secret: "secret123", Days: 30},
			mockErr:        repository.ErrDuplicateCredential,
			wantStatusCode: http.StatusConflict,
			wantError:      "credential already exists",
			wantStatus:     "Error",
		},
		{
			name:           "validation error - short secret",
			requestBody:    Request{Username: "acc_new", Secret: "123", Days: 30},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Secret is below the allowed minimum",
			wantStatus:     "Error",
		},
		{
			name:           "invalid json",
			requestBody:    "{broken",
			wantStatusCode: http.StatusBadRequest,
			wantError:      "invalid request body",
			wantStatus:     "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceMock := new(AdminServiceMock)
			handler := New(newNoopLogger(), serviceMock)

			if tt.mockCred != nil || tt.mockErr != nil {
				req := tt.requestBody.(Request)
				serviceMock.On("AddCredential", mock.Anything, req.Username, req.Secret, req.Days).
					Return(tt.mockCred, tt.mockErr).Once()
			}

			var bodyBytes []byte
			switch body := tt.requestBody.(type) {
			case string:
				bodyBytes = []byte(body)
			default:
				var err error
				bodyBytes, err = json.Marshal(body)
				if err != nil {
					t.Fatal(err)
				}
			}

			req := httptest.NewRequest(http.MethodPost, "/admin/credentials", bytes.NewReader(bodyBytes))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var got map[string]any
			err := json.NewDecoder(rec.Body).Decode(&got)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got["status"])

			if tt.wantError != "" {
				errStr, ok := got["error"].(string)
				assert.True(t, ok)
				assert.Equal(t, tt.wantError, errStr)
			} else {
				data, ok := got["data"].(map[string]any)
				assert.True(t, ok)
				credData, ok := data["credential"].(map[string]any)
				assert.True(t, ok)
				assert.Equal(t, "acc_new", credData["username"])
				assert.Equal(t, models.StatusAvailable, credData["status"])
			}

			serviceMock.AssertExpectations(t)
		})
	}
}
