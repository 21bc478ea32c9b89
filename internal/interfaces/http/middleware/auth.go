// Package middleware provides the HTTP middleware of the stock ledger API.
package middleware

import (
	"errors"
	"strings"

	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context keys set by the authentication middleware
const (
	TenantIDKey = "tenant_id"
	UserIDKey   = "user_id"
	UsernameKey = "username"

	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
	TenantIDHeader = "X-Tenant-ID"
)

// TokenVerifier validates bearer tokens
type TokenVerifier interface {
	Verify(token string) (*auth.Principal, error)
}

// JWTAuth authenticates requests with a bearer token and stores the tenant and
// user in the gin and request contexts.
func JWTAuth(verifier TokenVerifier, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abort(c, dto.ErrCodeUnauthorized, "authorization header is required")
			return
		}
		token, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok || token == "" {
			abort(c, dto.ErrCodeUnauthorized, "authorization header must use the Bearer scheme")
			return
		}

		principal, err := verifier.Verify(token)
		if err != nil {
			code := dto.ErrCodeTokenInvalid
			if errors.Is(err, auth.ErrExpiredToken) {
				code = dto.ErrCodeTokenExpired
			}
			logger.Enrich(c.Request.Context(), log).Debug("token rejected",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			abort(c, code, err.Error())
			return
		}

		setPrincipal(c, principal.TenantID, &principal.UserID, principal.Username)
		c.Next()
	}
}

// HeaderTenant reads the tenant from the X-Tenant-ID header. It is used
// instead of JWTAuth when no token secret is configured.
func HeaderTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantIDHeader)
		if raw == "" {
			abort(c, dto.ErrCodeMissingTenant, "X-Tenant-ID header is required")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			abort(c, dto.ErrCodeMissingTenant, "X-Tenant-ID header must be a UUID")
			return
		}
		setPrincipal(c, tenantID, nil, "")
		c.Next()
	}
}

func setPrincipal(c *gin.Context, tenantID uuid.UUID, userID *uuid.UUID, username string) {
	c.Set(TenantIDKey, tenantID)
	ctx := logger.WithTenantID(c.Request.Context(), tenantID.String())
	if userID != nil {
		c.Set(UserIDKey, *userID)
		ctx = logger.WithUserID(ctx, userID.String())
	}
	if username != "" {
		c.Set(UsernameKey, username)
	}
	c.Request = c.Request.WithContext(ctx)
}

// GetTenantID returns the authenticated tenant
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// GetUserID returns the authenticated user, nil for header-tenant requests
func GetUserID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return nil
	}
	return &id
}

func abort(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, c.GetString(RequestIDKey)))
}
