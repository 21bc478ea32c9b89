package persistence

import (
	"context"
	"errors"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultMovementPageSize = 20
	maxMovementPageSize     = 100
	movementInsertBatchSize = 500
)

// GormStockMovementRepository implements stock.StockMovementRepository using GORM
type GormStockMovementRepository struct {
	db *gorm.DB
}

// NewGormStockMovementRepository creates a new GormStockMovementRepository
func NewGormStockMovementRepository(db *gorm.DB) *GormStockMovementRepository {
	return &GormStockMovementRepository{db: db}
}

// FindExistingIDs returns the ids of the batch that are already in the ledger
func (r *GormStockMovementRepository) FindExistingIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var existing []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.StockMovementModel{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Pluck("id", &existing).Error
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// Append inserts the movements
func (r *GormStockMovementRepository) Append(ctx context.Context, movements []stock.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	rows := make([]*models.StockMovementModel, len(movements))
	for i := range movements {
		rows[i] = models.StockMovementModelFromDomain(&movements[i])
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, movementInsertBatchSize).Error
}

// FindByID finds a movement by its ID within a tenant
func (r *GormStockMovementRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*stock.StockMovement, error) {
	var model models.StockMovementModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByIDs returns the recorded movements among ids, in no particular order
func (r *GormStockMovementRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.StockMovement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.StockMovementModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainMovements(rows)
}

// FindByProduct lists movements of a product, newest first, with the total count
func (r *GormStockMovementRepository) FindByProduct(ctx context.Context, tenantID, productID uuid.UUID, filter stock.MovementFilter) ([]stock.StockMovement, int64, error) {
	var total int64
	if err := r.productQuery(ctx, tenantID, productID, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultMovementPageSize
	}
	if pageSize > maxMovementPageSize {
		pageSize = maxMovementPageSize
	}

	var rows []models.StockMovementModel
	if err := r.productQuery(ctx, tenantID, productID, filter).
		Order("created_at DESC, id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	movements, err := toDomainMovements(rows)
	if err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

func (r *GormStockMovementRepository) productQuery(ctx context.Context, tenantID, productID uuid.UUID, filter stock.MovementFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.StockMovementModel{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID)
	if filter.Location != nil {
		key := filter.Location.Key()
		query = query.Where("(source_key = ? OR destination_key = ?)", key, key)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	return query
}

// Replay streams every movement of the tenant in primary key batches
func (r *GormStockMovementRepository) Replay(ctx context.Context, tenantID uuid.UUID, batchSize int, fn func([]stock.StockMovement) error) error {
	if batchSize <= 0 {
		batchSize = movementInsertBatchSize
	}
	var rows []models.StockMovementModel
	result := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
			movements, err := toDomainMovements(rows)
			if err != nil {
				return err
			}
			return fn(movements)
		})
	return result.Error
}

type flowEdgeRow struct {
	SourceKey      string
	DestinationKey string
	Quantity       int64
}

// FlowEdges sums quantities per (source, destination) pair touching the query locations
func (r *GormStockMovementRepository) FlowEdges(ctx context.Context, tenantID uuid.UUID, q stock.FlowQuery) ([]stock.FlowEdge, error) {
	if len(q.Locations) == 0 {
		return nil, nil
	}
	keys := make([]string, len(q.Locations))
	for i, l := range q.Locations {
		keys[i] = l.Key()
	}

	query := r.db.WithContext(ctx).
		Model(&models.StockMovementModel{}).
		Select("source_key, destination_key, SUM(quantity) AS quantity").
		Where("tenant_id = ?", tenantID).
		Where("(source_key IN ? OR destination_key IN ?)", keys, keys)
	if q.ProductID != nil {
		query = query.Where("product_id = ?", *q.ProductID)
	}
	if q.From != nil {
		query = query.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("created_at < ?", *q.To)
	}

	var rows []flowEdgeRow
	if err := query.Group("source_key, destination_key").Order("source_key, destination_key").Scan(&rows).Error; err != nil {
		return nil, err
	}

	edges := make([]stock.FlowEdge, 0, len(rows))
	for _, row := range rows {
		source, err := stock.ParseLocationKey(row.SourceKey)
		if err != nil {
			return nil, err
		}
		destination, err := stock.ParseLocationKey(row.DestinationKey)
		if err != nil {
			return nil, err
		}
		edges = append(edges, stock.FlowEdge{Source: source, Destination: destination, Quantity: row.Quantity})
	}
	return edges, nil
}

// Tenants returns every tenant with ledger rows
func (r *GormStockMovementRepository) Tenants(ctx context.Context) ([]uuid.UUID, error) {
	var tenants []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.StockMovementModel{}).
		Distinct().
		Order("tenant_id").
		Pluck("tenant_id", &tenants).Error
	return tenants, err
}

func toDomainMovements(rows []models.StockMovementModel) ([]stock.StockMovement, error) {
	movements := make([]stock.StockMovement, 0, len(rows))
	for i := range rows {
		m, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	return movements, nil
}

// Ensure GormStockMovementRepository implements StockMovementRepository
var _ stock.StockMovementRepository = (*GormStockMovementRepository)(nil)
