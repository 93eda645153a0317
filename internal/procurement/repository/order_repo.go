package repository

import (
	"context"
	"errors"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.SupplierOrder, error) {
	var order entity.SupplierOrder
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindByCompany loads all orders with items and supplier for the
// workflow board aggregation.
func (r *OrderRepository) FindByCompany(ctx context.Context, companyID string) ([]entity.SupplierOrder, error) {
	var orders []entity.SupplierOrder
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Items").
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// FindLiveByProjectSupplier returns the newest non-cancelled order for a
// (project, supplier) pair, or ErrNotFound.
func (r *OrderRepository) FindLiveByProjectSupplier(ctx context.Context, projectID, supplierID string) (*entity.SupplierOrder, error) {
	var order entity.SupplierOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("project_id = ? AND supplier_id = ? AND status <> ?", projectID, supplierID, entity.OrderCancelled).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// CountByProjectSupplier counts every order ever created for a
// (project, supplier) pair, cancelled ones included. Feeds the order
// number generation so a replacement order never reuses the number of a
// cancelled predecessor.
func (r *OrderRepository) CountByProjectSupplier(ctx context.Context, projectID, supplierID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.SupplierOrder{}).
		Where("project_id = ? AND supplier_id = ?", projectID, supplierID).
		Count(&count).Error
	return count, err
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.SupplierOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) Update(ctx context.Context, order *entity.SupplierOrder) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// UpdateFields applies a partial update to an order row.
func (r *OrderRepository) UpdateFields(ctx context.Context, orderID string, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&entity.SupplierOrder{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// ReplaceItems swaps the positions of an order inside one transaction.
func (r *OrderRepository) ReplaceItems(ctx context.Context, orderID string, items []entity.SupplierOrderItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&entity.SupplierOrderItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].OrderID = orderID
		}
		return tx.Create(&items).Error
	})
}

// Tx runs fn inside one transaction on this repository's connection.
func (r *OrderRepository) Tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// FindDispatchLog returns the dispatch log entry for (order, key), or
// ErrNotFound.
func (r *OrderRepository) FindDispatchLog(ctx context.Context, orderID, idempotencyKey string) (*entity.SupplierOrderDispatchLog, error) {
	var log entity.SupplierOrderDispatchLog
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND idempotency_key = ?", orderID, idempotencyKey).
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// CreateDispatchLog inserts a dispatch log row. A duplicate-key error is
// swallowed: a concurrent writer already recorded the same dispatch.
func (r *OrderRepository) CreateDispatchLog(ctx context.Context, log *entity.SupplierOrderDispatchLog) error {
	err := r.db.WithContext(ctx).Create(log).Error
	if IsDuplicate(err) {
		return nil
	}
	return err
}
