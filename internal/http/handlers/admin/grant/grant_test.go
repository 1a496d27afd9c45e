package grant

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
	poolservice "github.com/magabrotheeeer/credential-broker/internal/services/pool"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

type AdminServiceMock struct {
	mock.Mock
}

func (m *AdminServiceMock) GrantAccess(ctx context.Context, userID string, days int) (*models.Credential, error) {
	args := m.Called(ctx, userID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credential), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestGrantHandler_ServeHTTP(t *testing.T) {
	cred := &models.Credential{
		Username:         "acc_a",
		Secret:           "secret",
		Status:           models.StatusInUse,
		CredentialExpiry: time.Now().UTC().AddDate(0, 0, 15),
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
			requestBody:    Request{UserID: "user-1", Days: 10},
			mockCred:       cred,
			wantStatusCode: http.StatusOK,
			wantStatus:     "OK",
		},
		{
			name:           "unknown user",
			requestBody:    Request{UserID: "ghost", Days: 10},
			mockErr:        repository.ErrUserNotFound,
			wantStatusCode: http.StatusNotFound,
			wantError:      "user not found",
			wantStatus:     "Error",
		},
		{
			name:           "out of stock",
			requestBody:    Request{UserID: "user-1", Days: 90},
			mockErr:        poolservice.ErrOutOfStock,
			wantStatusCode: http.StatusGone,
			wantError:      "no credential covers requested duration",
			wantStatus:     "Error",
		},
		{
			name:           "validation error - zero days",
			requestBody:    Request{UserID: "user-1"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Days is a required field",
			wantStatus:     "Error",
		},
		{
			name:           "invalid json body",
			requestBody:    "not a json",
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
				serviceMock.On("GrantAccess", mock.Anything, req.UserID, req.Days).
					Return(tt.mockCred, tt.mockErr).Once()
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

			req := httptest.NewRequest(http.MethodPost, "/admin/grant", bytes.NewReader(bodyBytes))
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
				data, ok := got["data"].(map[string]any)
				assert.True(t, ok)
				credData, ok := data["credential"].(map[string]any)
				assert.True(t, ok)
				assert.Equal(t, "acc_a", credData["username"])
			}

			serviceMock.AssertExpectations(t)
		})
	}
}
