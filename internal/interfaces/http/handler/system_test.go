package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type healthBody struct {
	Success bool           `json:"success"`
	Data    HealthResponse `json:"data"`
}

func serveHealth(t *testing.T, h *SystemHandler) (int, healthBody) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	h.Health(c)

	var body healthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestNewSystemHandler(t *testing.T) {
	h := NewSystemHandler("stockledger", "1.0.0", nil)
	assert.NotNil(t, h)
	assert.False(t, h.startTime.IsZero())
}

func TestSystemHandler_Health(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		code, body := serveHealth(t, NewSystemHandler("stockledger", "1.0.0", nil))

		assert.Equal(t, http.StatusOK, code)
		assert.True(t, body.Success)
		assert.Equal(t, "ok", body.Data.Status)
		assert.Equal(t, "stockledger", body.Data.Name)
		assert.NotEmpty(t, body.Data.Go)
		assert.Empty(t, body.Data.Checks)
	})

	t.Run("healthy dependencies", func(t *testing.T) {
		h := NewSystemHandler("stockledger", "1.0.0", map[string]Pinger{
			"database": pingerFunc(func(context.Context) error { return nil }),
		})
		code, body := serveHealth(t, h)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, map[string]string{"database": "ok"}, body.Data.Checks)
	})

	t.Run("failing dependency", func(t *testing.T) {
		h := NewSystemHandler("stockledger", "1.0.0", map[string]Pinger{
			"database": pingerFunc(func(context.Context) error { return nil }),
			"redis":    pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
		})
		code, body := serveHealth(t, h)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.False(t, body.Success)
		assert.Equal(t, "degraded", body.Data.Status)
		assert.Equal(t, "connection refused", body.Data.Checks["redis"])
		assert.Equal(t, "ok", body.Data.Checks["database"])
	})

	t.Run("health check gets a deadline", func(t *testing.T) {
		var hasDeadline bool
		h := NewSystemHandler("stockledger", "1.0.0", map[string]Pinger{
			"database": pingerFunc(func(ctx context.Context) error {
				_, hasDeadline = ctx.Deadline()
				return nil
			}),
		})
		serveHealth(t, h)
		assert.True(t, hasDeadline)
	})
}
