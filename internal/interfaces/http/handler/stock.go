package handler

import (
	"context"
	"fmt"
	"strings"

	stockapp "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader seeds deterministic movement ids for pick executions
const IdempotencyKeyHeader = "Idempotency-Key"

// MovementService is the ledger surface used by the handler
type MovementService interface {
	MoveStock(ctx context.Context, tenantID uuid.UUID, movements []stock.StockMovement) (*stockapp.MoveStockResult, error)
	GetMovement(ctx context.Context, tenantID, movementID uuid.UUID) (*stock.StockMovement, error)
	ListMovements(ctx context.Context, tenantID, productID uuid.UUID, filter stock.MovementFilter) ([]stock.StockMovement, int64, error)
}

// PickingService allocates and books picks
type PickingService interface {
	CalculatePickingSolution(ctx context.Context, tenantID uuid.UUID, req stock.PickingRequest, opts stockapp.PickingOptions) (*stock.PickingSolution, error)
	Pick(ctx context.Context, tenantID uuid.UUID, req stockapp.PickRequest) (*stockapp.PickResult, error)
}

// AbsoluteStockService books corrections toward absolute quantities
type AbsoluteStockService interface {
	Apply(ctx context.Context, tenantID uuid.UUID, targets []stockapp.AbsoluteStockTarget, userID *uuid.UUID) (*stockapp.AbsoluteStockResult, error)
}

// StockQueryService serves the read side
type StockQueryService interface {
	StocksByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]stock.Stock, error)
	WarehouseStocksByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]stock.WarehouseStock, error)
	ReservedStock(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]stock.ReservedStock, error)
	StockFlow(ctx context.Context, tenantID uuid.UUID, query stock.FlowQuery, mode stockapp.FlowMode) (*stockapp.StockFlowResult, error)
}

// Reconciler compares the aggregates with the ledger
type Reconciler interface {
	Reconcile(ctx context.Context, tenantID uuid.UUID, correct bool) (*stock.DriftReport, error)
}

// StockHandler handles the stock ledger API endpoints
type StockHandler struct {
	BaseHandler
	movements  MovementService
	picking    PickingService
	absolute   AbsoluteStockService
	queries    StockQueryService
	reconciler Reconciler
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(
	movements MovementService,
	picking PickingService,
	absolute AbsoluteStockService,
	queries StockQueryService,
	reconciler Reconciler,
) *StockHandler {
	return &StockHandler{
		movements:  movements,
		picking:    picking,
		absolute:   absolute,
		queries:    queries,
		reconciler: reconciler,
	}
}

// RegisterRoutes mounts the stock endpoints on the given group
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	s := rg.Group("/stock")
	s.POST("/movements", h.MoveStock)
	s.GET("/movements/:id", h.GetMovement)
	s.GET("/products/:product_id/movements", h.ListMovements)
	s.GET("/products/:product_id/locations", h.ListStocks)
	s.GET("/products/:product_id/warehouses", h.ListWarehouseStocks)
	s.POST("/picking/solutions", h.CalculatePickingSolution)
	s.POST("/picking/executions", h.Pick)
	s.POST("/absolute", h.ApplyAbsoluteStock)
	s.GET("/reserved", h.ReservedStock)
	s.POST("/flow", h.StockFlow)
	s.POST("/reconciliation", h.Reconcile)
}

// MoveStock records a batch of movements. A replayed batch answers 200
// instead of 201.
func (h *StockHandler) MoveStock(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req MoveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.movements.MoveStock(c.Request.Context(), tenantID, req.toDomain(middleware.GetUserID(c)))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Replayed {
		h.Success(c, toMoveStockResponse(result))
		return
	}
	h.Created(c, toMoveStockResponse(result))
}

// GetMovement returns one ledger row
func (h *StockHandler) GetMovement(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	m, err := h.movements.GetMovement(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toMovementResponse(*m))
}

// ListMovements pages through the ledger of a product, newest first
func (h *StockHandler) ListMovements(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.uuidParam(c, "product_id")
	if !ok {
		return
	}
	var q ListMovementsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	filter, err := q.toFilter()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	movements, total, err := h.movements.ListMovements(c.Request.Context(), tenantID, productID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toMovementResponses(movements), total, filter.Page, filter.PageSize)
}

// ListStocks returns the per-location aggregates of a product
func (h *StockHandler) ListStocks(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.uuidParam(c, "product_id")
	if !ok {
		return
	}
	stocks, err := h.queries.StocksByProduct(c.Request.Context(), tenantID, productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toStockResponses(stocks))
}

// ListWarehouseStocks returns the per-warehouse aggregates of a product
func (h *StockHandler) ListWarehouseStocks(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	productID, ok := h.uuidParam(c, "product_id")
	if !ok {
		return
	}
	stocks, err := h.queries.WarehouseStocksByProduct(c.Request.Context(), tenantID, productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toWarehouseStockResponses(stocks))
}

// CalculatePickingSolution allocates without booking. A shortage answers 422
// with the per-product shortages in the error details.
func (h *StockHandler) CalculatePickingSolution(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req PickingSolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	pickingReq, opts, err := req.toDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	solution, err := h.picking.CalculatePickingSolution(c.Request.Context(), tenantID, pickingReq, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPickingSolutionResponse(solution))
}

// Pick allocates and books the solution to the destination
func (h *StockHandler) Pick(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req PickExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	pickingReq, opts, err := req.PickingSolutionRequest.toDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	key, err := idempotencyKey(c, req.IdempotencyKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.picking.Pick(c.Request.Context(), tenantID, stockapp.PickRequest{
		PickingRequest: pickingReq,
		Destination:    req.Destination,
		AllowPartial:   req.AllowPartial,
		IdempotencyKey: key,
		UserID:         middleware.GetUserID(c),
		Comment:        req.Comment,
		Options:        opts,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Replayed {
		h.Success(c, toPickExecutionResponse(result))
		return
	}
	h.Created(c, toPickExecutionResponse(result))
}

// ApplyAbsoluteStock books the corrections that bring every target to its quantity
func (h *StockHandler) ApplyAbsoluteStock(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req AbsoluteStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	targets, err := req.toDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.absolute.Apply(c.Request.Context(), tenantID, targets, middleware.GetUserID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, AbsoluteStockResponse{
		Movements: toMovementResponses(result.Movements),
		Replayed:  result.Replayed,
	})
}

// ReservedStock returns internal, external and total reservation per product.
// product_ids accepts repeated parameters or a comma separated list.
func (h *StockHandler) ReservedStock(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var raw []string
	for _, v := range c.QueryArray("product_ids") {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				raw = append(raw, part)
			}
		}
	}
	productIDs, err := parseProductIDs(raw)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	reserved, err := h.queries.ReservedStock(c.Request.Context(), tenantID, productIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toReservedStockResponses(productIDs, reserved))
}

// StockFlow returns inbound and outbound totals for a set of locations
func (h *StockHandler) StockFlow(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req StockFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	query, mode := req.toDomain()

	result, err := h.queries.StockFlow(c.Request.Context(), tenantID, query, mode)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toStockFlowResponse(query.Locations, result))
}

// Reconcile rebuilds the aggregates from the ledger and reports drift.
// With correct=true the stored aggregates are rewritten.
func (h *StockHandler) Reconcile(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req ReconciliationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}

	report, err := h.reconciler.Reconcile(c.Request.Context(), tenantID, req.Correct)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

func (h *StockHandler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// idempotencyKey prefers the body field over the Idempotency-Key header
func idempotencyKey(c *gin.Context, fromBody *uuid.UUID) (*uuid.UUID, error) {
	if fromBody != nil {
		return fromBody, nil
	}
	raw := c.GetHeader(IdempotencyKeyHeader)
	if raw == "" {
		return nil, nil
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s header must be a UUID", shared.ErrInvalidInput, IdempotencyKeyHeader)
	}
	return &key, nil
}
