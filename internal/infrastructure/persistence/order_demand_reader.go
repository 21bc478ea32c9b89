package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOrderDemandReader implements stock.OrderDemandReader on the order read model.
// Open demand is the ordered quantity of open orders minus what the ledger
// already moved onto the order location.
type GormOrderDemandReader struct {
	db *gorm.DB
}

// NewGormOrderDemandReader creates a new GormOrderDemandReader
func NewGormOrderDemandReader(db *gorm.DB) *GormOrderDemandReader {
	return &GormOrderDemandReader{db: db}
}

type orderedRow struct {
	OrderID           uuid.UUID
	ProductID         uuid.UUID
	ExternallyManaged bool
	Ordered           int64
}

type orderProductKey struct {
	orderID   uuid.UUID
	productID uuid.UUID
}

// OpenDemand returns the open quantity per order and product
func (r *GormOrderDemandReader) OpenDemand(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) ([]stock.OrderDemand, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	var ordered []orderedRow
	if err := r.db.WithContext(ctx).
		Table("order_line_items AS oli").
		Select("oli.order_id AS order_id, oli.product_id AS product_id, o.externally_managed AS externally_managed, SUM(oli.quantity) AS ordered").
		Joins("JOIN orders o ON o.id = oli.order_id AND o.tenant_id = oli.tenant_id").
		Where("oli.tenant_id = ? AND oli.product_id IN ? AND o.state IN ?", tenantID, productIDs, models.OpenOrderStates).
		Group("oli.order_id, oli.product_id, o.externally_managed").
		Order("oli.order_id, oli.product_id").
		Scan(&ordered).Error; err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, nil
	}

	orderIDs := make([]uuid.UUID, 0, len(ordered))
	seen := make(map[uuid.UUID]struct{}, len(ordered))
	for _, row := range ordered {
		if _, ok := seen[row.OrderID]; !ok {
			seen[row.OrderID] = struct{}{}
			orderIDs = append(orderIDs, row.OrderID)
		}
	}

	var shippedRows []models.StockModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND location_type = ? AND location_id IN ? AND product_id IN ?",
			tenantID, string(stock.LocationTypeOrder), orderIDs, productIDs).
		Find(&shippedRows).Error; err != nil {
		return nil, err
	}
	shipped := make(map[orderProductKey]int64, len(shippedRows))
	for _, row := range shippedRows {
		if row.LocationID == nil {
			continue
		}
		shipped[orderProductKey{orderID: *row.LocationID, productID: row.ProductID}] += row.Quantity
	}

	demands := make([]stock.OrderDemand, 0, len(ordered))
	for _, row := range ordered {
		open := row.Ordered - shipped[orderProductKey{orderID: row.OrderID, productID: row.ProductID}]
		demands = append(demands, stock.OrderDemand{
			OrderID:           row.OrderID,
			ProductID:         row.ProductID,
			OpenQuantity:      max(open, 0),
			ExternallyManaged: row.ExternallyManaged,
		})
	}
	return demands, nil
}

// Ensure GormOrderDemandReader implements OrderDemandReader
var _ stock.OrderDemandReader = (*GormOrderDemandReader)(nil)
