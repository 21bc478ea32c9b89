package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name:       "from context",
			setup:      func(c *gin.Context) { c.Set(middleware.RequestIDKey, "ctx-request-id") },
			expectedID: "ctx-request-id",
		},
		{
			name:       "from header when context empty",
			setup:      func(c *gin.Context) { c.Request.Header.Set(middleware.RequestIDHeader, "header-request-id") },
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDKey, "ctx-id")
				c.Request.Header.Set(middleware.RequestIDHeader, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodGet, "/")
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandler_SuccessWithMeta(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")

	h.SuccessWithMeta(c, []string{"a", "b"}, 45, 2, 20)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(45), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)
}

func TestBaseHandler_TenantIDMissing(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")

	_, ok := h.tenantID(c)

	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeUnauthorized, decodeResponse(t, w).Error.Code)
}

func TestBaseHandler_HandleError(t *testing.T) {
	productID := uuid.New()
	shortage := &stock.ShortageError{
		Shortages: []stock.ProductShortage{{ProductID: productID, Requested: 5, Available: 2, Unmet: 3}},
	}

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantDetails bool
	}{
		{
			name:        "not found",
			err:         fmt.Errorf("%w: movement %s", shared.ErrNotFound, productID),
			wantStatus:  http.StatusNotFound,
			wantCode:    dto.ErrCodeNotFound,
			wantMessage: "movement " + productID.String(),
		},
		{
			name:        "invalid input keeps the wrapped message",
			err:         fmt.Errorf("%w: picking request has no products", shared.ErrInvalidInput),
			wantStatus:  http.StatusBadRequest,
			wantCode:    dto.ErrCodeInvalidInput,
			wantMessage: "picking request has no products",
		},
		{
			name:        "invalid movement carries details",
			err:         stock.NewInvalidMovementError(1, productID, "quantity must be positive"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    dto.ErrCodeInvalidStockMovement,
			wantDetails: true,
		},
		{
			name:        "partial replay",
			err:         stock.NewPartialReplayError([]uuid.UUID{productID}, 2),
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    dto.ErrCodePartialMovementReplay,
			wantDetails: true,
		},
		{
			name:        "shortage",
			err:         fmt.Errorf("calculate: %w", shortage),
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    dto.ErrCodeInsufficientStock,
			wantMessage: "insufficient stock",
			wantDetails: true,
		},
		{
			name:        "concurrency conflict hides the cause",
			err:         fmt.Errorf("%w: stock transaction failed after 4 attempts: %w", shared.ErrConcurrencyConflict, errors.New("pq: deadlock detected")),
			wantStatus:  http.StatusConflict,
			wantCode:    dto.ErrCodeConcurrencyConflict,
			wantMessage: shared.ErrConcurrencyConflict.Message,
		},
		{
			name:        "unknown error",
			err:         errors.New("connection reset"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    dto.ErrCodeInternal,
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext(http.MethodPost, "/")
			c.Set(middleware.RequestIDKey, "req-1")

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
			if tt.wantMessage != "" {
				assert.Contains(t, resp.Error.Message, tt.wantMessage)
			}
			if tt.wantDetails {
				assert.NotEmpty(t, resp.Error.Details)
			} else {
				assert.Empty(t, resp.Error.Details)
			}
		})
	}
}

func TestBaseHandler_HandleErrorNil(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")
	h.HandleError(c, nil)
	assert.Empty(t, w.Body.String())
}

func TestBaseHandler_BindError(t *testing.T) {
	type payload struct {
		Quantity int64 `json:"quantity" binding:"required,gt=0"`
	}

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"quantity":`, dto.ErrCodeInvalidJSON},
		{"wrong type", `{"quantity":"five"}`, dto.ErrCodeInvalidJSON},
		{"failed validation", `{"quantity":0}`, dto.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var p payload
			err := c.ShouldBindJSON(&p)
			require.Error(t, err)
			h.BindError(c, err)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeResponse(t, w)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.wantCode == dto.ErrCodeValidation {
				assert.Equal(t, map[string]any{"Quantity": "required"}, resp.Error.Details["fields"])
			}
		})
	}
}
