package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID set by the RequestID middleware,
// falling back to the inbound header
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// tenantID returns the authenticated tenant or writes a 401
func (h *BaseHandler) tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.GetTenantID(c)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeUnauthorized, "tenant not found in request context")
	}
	return id, ok
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.ErrorWithCode(c, dto.ErrCodeBadRequest, message)
}

// BindError maps a ShouldBind* failure to ERR_INVALID_JSON or ERR_VALIDATION
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]any, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = fe.Tag()
		}
		resp := dto.NewErrorResponse(dto.ErrCodeValidation, "request validation failed", getRequestID(c))
		c.JSON(http.StatusBadRequest, resp.WithDetails(map[string]any{"fields": fields}))
		return
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		h.ErrorWithCode(c, dto.ErrCodeBodyTooLarge, "request body exceeds the maximum allowed size")
		return
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, "malformed JSON body")
		return
	}

	// custom unmarshalers such as the location codec return domain errors
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.HandleError(c, err)
		return
	}
	h.ErrorWithCode(c, dto.ErrCodeInvalidInput, err.Error())
}

// HandleError converts domain errors to HTTP responses. Shortages keep their
// per-product details; unknown errors become a 500 without internals.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := getRequestID(c)

	var shortage *stock.ShortageError
	if errors.As(err, &shortage) {
		h.writeDomainError(c, shortage.DomainError(), shortage.Error(), requestID)
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		message := err.Error()
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			message = shared.ErrConcurrencyConflict.Message
		}
		h.writeDomainError(c, domainErr, message, requestID)
		return
	}

	logger.L(c.Request.Context()).Error("request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}

func (h *BaseHandler) writeDomainError(c *gin.Context, domainErr *shared.DomainError, message, requestID string) {
	code := dto.NormalizeErrorCode(domainErr.Code)
	resp := dto.NewErrorResponse(code, message, requestID).WithDetails(domainErr.Details)
	c.JSON(dto.GetHTTPStatus(code), resp)
}
