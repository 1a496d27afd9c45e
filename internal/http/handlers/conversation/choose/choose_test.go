package choose

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	conversation "github.com/magabrotheeeer/credential-broker/internal/services/conversation"
	poolservice "github.com/magabrotheeeer/credential-broker/internal/services/pool"
)

type ConversationServiceMock struct {
	mock.Mock
}

func (m *ConversationServiceMock) ChoosePlan(ctx context.Context, userID string, days int) (*conversation.PaymentInstructions, error) {
	args := m.Called(ctx, userID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.PaymentInstructions), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestChooseHandler_ServeHTTP(t *testing.T) {
	instructions := &conversation.PaymentInstructions{
		Account: "411111111111",
		Name:    "Ivan I.",
		Amount:  20,
		Days:    10,
	}

	tests := []struct {
		name           string
		requestBody    interface{}
		mockInstr      *conversation.PaymentInstructions
		mockErr        error
		wantStatusCode int
		wantError      string
		wantStatus     string
	}{
		{
			name:           "success",
			requestBody:    Request{UserID: "user-1", Days: 10},
			mockInstr:      instructions,
			wantStatusCode: http.StatusOK,
			wantStatus:     "OK",
		},
		{
			name:           "wrong state",
			requestBody:    Request{UserID: "user-1", Days: 10},
			mockErr:        conversation.ErrWrongState,
			wantStatusCode: http.StatusConflict,
			wantError:      "operation does not match conversation state",
			wantStatus:     "Error",
		},
		{
			name:           "out of stock",
			requestBody:    Request{UserID: "user-1", Days: 90},
			mockErr:        poolservice.ErrOutOfStock,
			wantStatusCode: http.StatusGone,
			wantError:      "selected plan is out of stock",
			wantStatus:     "Error",
		},
		{
			name:           "validation error - missing days",
			requestBody:    Request{UserID: "user-1"},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "field Days is a required field",
			wantStatus:     "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceMock := new(ConversationServiceMock)
			handler := New(newNoopLogger(), serviceMock)

			if tt.mockInstr != nil || tt.mockErr != nil {
				req := tt.requestBody.(Request)
				serviceMock.On("ChoosePlan", mock.Anything, req.UserID, req.Days).
					Return(tt.mockInstr, tt.mockErr).Once()
			}

			bodyBytes, err := json.Marshal(tt.requestBody)
			if err != nil {
				t.Fatal(err)
			}

			req := httptest.NewRequest(http.MethodPost, "/conversation/choose", bytes.NewReader(bodyBytes))
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
				payment, ok := data["payment"].(map[string]any)
				assert.True(t, ok)
				assert.Equal(t, "411111111111", payment["account"])
				assert.Equal(t, float64(20), payment["amount"])
			}

			serviceMock.AssertExpectations(t)
		})
	}
}
