package handler

import (
	"fmt"
	"slices"
	"time"

	stockapp "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
)

// ===================== Movements =====================

// MovementRequest is one client-identified movement of a batch
type MovementRequest struct {
	ID               uuid.UUID               `json:"id"`
	ProductID        uuid.UUID               `json:"product_id"`
	ProductVersionID uuid.UUID               `json:"product_version_id"`
	Quantity         int64                   `json:"quantity"`
	Source           stock.LocationReference `json:"source"`
	Destination      stock.LocationReference `json:"destination"`
	Comment          string                  `json:"comment" binding:"max=1000"`
}

// MoveStockRequest books a batch of movements atomically. Per-movement checks
// are left to the ledger so failures carry the movement index.
type MoveStockRequest struct {
	Movements []MovementRequest `json:"movements" binding:"required,dive"`
}

func (r MoveStockRequest) toDomain(userID *uuid.UUID) []stock.StockMovement {
	movements := make([]stock.StockMovement, len(r.Movements))
	for i, m := range r.Movements {
		movements[i] = stock.StockMovement{
			ID:               m.ID,
			ProductID:        m.ProductID,
			ProductVersionID: m.ProductVersionID,
			Quantity:         m.Quantity,
			Source:           m.Source,
			Destination:      m.Destination,
			UserID:           userID,
			Comment:          m.Comment,
		}
	}
	return movements
}

// MovementResponse is a recorded ledger row
type MovementResponse struct {
	ID               uuid.UUID               `json:"id"`
	ProductID        uuid.UUID               `json:"product_id"`
	ProductVersionID *uuid.UUID              `json:"product_version_id,omitempty"`
	Quantity         int64                   `json:"quantity"`
	Source           stock.LocationReference `json:"source"`
	Destination      stock.LocationReference `json:"destination"`
	UserID           *uuid.UUID              `json:"user_id,omitempty"`
	Comment          string                  `json:"comment,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

func toMovementResponse(m stock.StockMovement) MovementResponse {
	resp := MovementResponse{
		ID:          m.ID,
		ProductID:   m.ProductID,
		Quantity:    m.Quantity,
		Source:      m.Source,
		Destination: m.Destination,
		UserID:      m.UserID,
		Comment:     m.Comment,
		CreatedAt:   m.CreatedAt,
	}
	if m.ProductVersionID != uuid.Nil {
		v := m.ProductVersionID
		resp.ProductVersionID = &v
	}
	return resp
}

func toMovementResponses(movements []stock.StockMovement) []MovementResponse {
	out := make([]MovementResponse, len(movements))
	for i, m := range movements {
		out[i] = toMovementResponse(m)
	}
	return out
}

// MoveStockResponse reports the outcome of a movement batch
type MoveStockResponse struct {
	Movements      []MovementResponse `json:"movements"`
	Replayed       bool               `json:"replayed"`
	NegativeStocks []StockResponse    `json:"negative_stocks,omitempty"`
}

func toMoveStockResponse(r *stockapp.MoveStockResult) MoveStockResponse {
	resp := MoveStockResponse{
		Movements: toMovementResponses(r.Movements),
		Replayed:  r.Replayed,
	}
	if len(r.NegativeStocks) > 0 {
		resp.NegativeStocks = toStockResponses(r.NegativeStocks)
	}
	return resp
}

// ListMovementsQuery filters the ledger of one product
type ListMovementsQuery struct {
	Location string     `form:"location"`
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page     int        `form:"page" binding:"omitempty,min=1"`
	PageSize int        `form:"page_size" binding:"omitempty,min=1,max=500"`
}

func (q ListMovementsQuery) toFilter() (stock.MovementFilter, error) {
	filter := stock.MovementFilter{From: q.From, To: q.To, Page: q.Page, PageSize: q.PageSize}
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.PageSize == 0 {
		filter.PageSize = 50
	}
	if q.Location != "" {
		loc, err := stock.ParseLocationKey(q.Location)
		if err != nil {
			return filter, err
		}
		filter.Location = &loc
	}
	return filter, nil
}

// ===================== Aggregates =====================

// StockResponse is the quantity of a product at one location
type StockResponse struct {
	ProductID     uuid.UUID               `json:"product_id"`
	Location      stock.LocationReference `json:"location"`
	Quantity      int64                   `json:"quantity"`
	LastInboundAt *time.Time              `json:"last_inbound_at,omitempty"`
}

func toStockResponses(stocks []stock.Stock) []StockResponse {
	out := make([]StockResponse, len(stocks))
	for i, s := range stocks {
		out[i] = StockResponse{
			ProductID:     s.ProductID,
			Location:      s.Location,
			Quantity:      s.Quantity,
			LastInboundAt: s.LastInboundAt,
		}
	}
	return out
}

// WarehouseStockResponse is the quantity of a product inside one warehouse
type WarehouseStockResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Quantity    int64     `json:"quantity"`
}

func toWarehouseStockResponses(stocks []stock.WarehouseStock) []WarehouseStockResponse {
	out := make([]WarehouseStockResponse, len(stocks))
	for i, s := range stocks {
		out[i] = WarehouseStockResponse{ProductID: s.ProductID, WarehouseID: s.WarehouseID, Quantity: s.Quantity}
	}
	return out
}

// ReservedStockResponse is the reservation of one product
type ReservedStockResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Internal  int64     `json:"internal"`
	External  int64     `json:"external"`
	Total     int64     `json:"total"`
}

func toReservedStockResponses(productIDs []uuid.UUID, reserved map[uuid.UUID]stock.ReservedStock) []ReservedStockResponse {
	out := make([]ReservedStockResponse, 0, len(productIDs))
	for _, id := range productIDs {
		r := reserved[id]
		out = append(out, ReservedStockResponse{
			ProductID: id,
			Internal:  r.Internal,
			External:  r.External,
			Total:     r.Total(),
		})
	}
	return out
}

// ===================== Picking =====================

// ProductQuantityRequest is a requested quantity of one product
type ProductQuantityRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int64     `json:"quantity" binding:"required,gt=0"`
}

// PickingSolutionRequest asks for an allocation from a warehouse or a single location
type PickingSolutionRequest struct {
	Products             []ProductQuantityRequest `json:"products" binding:"required,min=1,dive"`
	WarehouseID          *uuid.UUID               `json:"warehouse_id"`
	Location             *stock.LocationReference `json:"location"`
	ProtectReservedStock bool                     `json:"protect_reserved_stock"`
	PickingStrategy      string                   `json:"picking_strategy"`
	RoutingStrategy      string                   `json:"routing_strategy"`
}

func (r PickingSolutionRequest) toDomain() (stock.PickingRequest, stockapp.PickingOptions, error) {
	opts := stockapp.PickingOptions{PickingStrategy: r.PickingStrategy, RoutingStrategy: r.RoutingStrategy}
	req := stock.PickingRequest{
		ProductQuantities:    make(map[uuid.UUID]int64, len(r.Products)),
		ProtectReservedStock: r.ProtectReservedStock,
	}
	for _, p := range r.Products {
		req.ProductQuantities[p.ProductID] += p.Quantity
	}

	switch {
	case r.WarehouseID != nil && r.Location != nil:
		return req, opts, fmt.Errorf("%w: warehouse_id and location are mutually exclusive", shared.ErrInvalidInput)
	case r.WarehouseID != nil:
		req.SourceArea = stock.WarehouseArea(*r.WarehouseID)
	case r.Location != nil:
		req.SourceArea = stock.LocationArea(*r.Location)
	default:
		return req, opts, fmt.Errorf("%w: either warehouse_id or location is required", shared.ErrInvalidInput)
	}
	return req, opts, nil
}

// PickingSolutionResponse is a routed allocation
type PickingSolutionResponse struct {
	Picks []stock.ProductPick `json:"picks"`
}

func toPickingSolutionResponse(s *stock.PickingSolution) PickingSolutionResponse {
	if s == nil || s.Picks == nil {
		return PickingSolutionResponse{Picks: []stock.ProductPick{}}
	}
	return PickingSolutionResponse{Picks: s.Picks}
}

// PickExecutionRequest allocates and books the picks to a destination
type PickExecutionRequest struct {
	PickingSolutionRequest
	Destination    stock.LocationReference `json:"destination"`
	AllowPartial   bool                    `json:"allow_partial"`
	IdempotencyKey *uuid.UUID              `json:"idempotency_key"`
	Comment        string                  `json:"comment" binding:"max=1000"`
}

// PickExecutionResponse reports the booked picks
type PickExecutionResponse struct {
	Solution  PickingSolutionResponse `json:"solution"`
	Movements []MovementResponse      `json:"movements"`
	Replayed  bool                    `json:"replayed"`
	Shortages []stock.ProductShortage `json:"shortages,omitempty"`
}

func toPickExecutionResponse(r *stockapp.PickResult) PickExecutionResponse {
	return PickExecutionResponse{
		Solution:  toPickingSolutionResponse(r.Solution),
		Movements: toMovementResponses(r.Movements),
		Replayed:  r.Replayed,
		Shortages: r.Shortages,
	}
}

// ===================== Absolute stock =====================

// AbsoluteTargetRequest sets the quantity of a product in a scope
type AbsoluteTargetRequest struct {
	ProductID   uuid.UUID                `json:"product_id" binding:"required"`
	Quantity    int64                    `json:"quantity" binding:"gte=0"`
	Scope       string                   `json:"scope" binding:"required,oneof=location warehouse global"`
	Location    *stock.LocationReference `json:"location"`
	WarehouseID *uuid.UUID               `json:"warehouse_id"`
}

// AbsoluteStockRequest is a batch of absolute targets booked together
type AbsoluteStockRequest struct {
	Targets []AbsoluteTargetRequest `json:"targets" binding:"required,min=1,dive"`
}

func (r AbsoluteStockRequest) toDomain() ([]stockapp.AbsoluteStockTarget, error) {
	targets := make([]stockapp.AbsoluteStockTarget, len(r.Targets))
	for i, t := range r.Targets {
		target := stockapp.AbsoluteStockTarget{ProductID: t.ProductID, Quantity: t.Quantity}
		switch stock.AbsoluteScopeKind(t.Scope) {
		case stock.AbsoluteScopeLocation:
			if t.Location == nil {
				return nil, fmt.Errorf("%w: target %d: location scope requires a location", shared.ErrInvalidInput, i)
			}
			target.Scope = stock.LocationScope(*t.Location)
		case stock.AbsoluteScopeWarehouse:
			if t.WarehouseID == nil {
				return nil, fmt.Errorf("%w: target %d: warehouse scope requires warehouse_id", shared.ErrInvalidInput, i)
			}
			target.Scope = stock.WarehouseScope(*t.WarehouseID)
		case stock.AbsoluteScopeGlobal:
			// an empty warehouse falls back to the configured default
			var warehouseID uuid.UUID
			if t.WarehouseID != nil {
				warehouseID = *t.WarehouseID
			}
			target.Scope = stock.GlobalScope(warehouseID)
		}
		targets[i] = target
	}
	return targets, nil
}

// AbsoluteStockResponse lists the correction movements that were booked
type AbsoluteStockResponse struct {
	Movements []MovementResponse `json:"movements"`
	Replayed  bool               `json:"replayed"`
}

// ===================== Flow =====================

// StockFlowRequest asks for inbound and outbound totals of a location set
type StockFlowRequest struct {
	Locations []stock.LocationReference `json:"locations" binding:"required,min=1"`
	ProductID *uuid.UUID                `json:"product_id"`
	From      *time.Time                `json:"from"`
	To        *time.Time                `json:"to"`
	Mode      string                    `json:"mode" binding:"omitempty,oneof=single combined by_type"`
}

func (r StockFlowRequest) toDomain() (stock.FlowQuery, stockapp.FlowMode) {
	return stock.FlowQuery{
		Locations: r.Locations,
		ProductID: r.ProductID,
		From:      r.From,
		To:        r.To,
	}, stockapp.FlowMode(r.Mode)
}

// LocationFlowResponse is the flow of one location
type LocationFlowResponse struct {
	Location stock.LocationReference `json:"location"`
	stock.StockFlow
}

// StockFlowResponse carries exactly one of the three flow shapes
type StockFlowResponse struct {
	Mode       stockapp.FlowMode                      `json:"mode"`
	ByLocation []LocationFlowResponse                 `json:"by_location,omitempty"`
	Combined   *stock.StockFlow                       `json:"combined,omitempty"`
	ByType     map[stock.LocationType]stock.StockFlow `json:"by_type,omitempty"`
}

func toStockFlowResponse(locations []stock.LocationReference, r *stockapp.StockFlowResult) StockFlowResponse {
	resp := StockFlowResponse{Mode: r.Mode, Combined: r.Combined, ByType: r.ByType}
	if r.ByLocation != nil {
		seen := make(map[stock.LocationReference]bool, len(locations))
		for _, l := range locations {
			flow, ok := r.ByLocation[l]
			if !ok || seen[l] {
				continue
			}
			seen[l] = true
			resp.ByLocation = append(resp.ByLocation, LocationFlowResponse{Location: l, StockFlow: flow})
		}
	}
	return resp
}

// ===================== Reconciliation =====================

// ReconciliationRequest runs drift detection, optionally rewriting the aggregates
type ReconciliationRequest struct {
	Correct bool `json:"correct"`
}

func parseProductIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid product id %q", shared.ErrInvalidInput, s)
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: product_ids is required", shared.ErrInvalidInput)
	}
	return ids, nil
}
