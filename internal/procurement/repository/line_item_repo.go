package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/workflow"
	"gorm.io/gorm"
)

type LineItemRepository struct {
	db *gorm.DB
}

func NewLineItemRepository(db *gorm.DB) *LineItemRepository {
	return &LineItemRepository{db: db}
}

func (r *LineItemRepository) FindByID(ctx context.Context, id string) (*entity.LineItem, error) {
	var item entity.LineItem
	err := r.db.WithContext(ctx).Preload("Article").Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindByProject loads all line items of a project with their article so
// the supplier resolution can run in memory.
func (r *LineItemRepository) FindByProject(ctx context.Context, projectID string) ([]entity.LineItem, error) {
	var items []entity.LineItem
	err := r.db.WithContext(ctx).
		Preload("Article").
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// FindByCompany loads the item rows for the workflow board aggregation.
func (r *LineItemRepository) FindByCompany(ctx context.Context, companyID string) ([]entity.LineItem, error) {
	var items []entity.LineItem
	err := r.db.WithContext(ctx).
		Preload("Article").
		Where("company_id = ?", companyID).
		Find(&items).Error
	return items, err
}

func (r *LineItemRepository) Update(ctx context.Context, item *entity.LineItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// UpdateOrderedState writes the recomputed ordered quantity and status
// for one item.
func (r *LineItemRepository) UpdateOrderedState(ctx context.Context, itemID string, quantityOrdered float64, deliveryStatus string) error {
	return r.db.WithContext(ctx).
		Model(&entity.LineItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"quantity_ordered": quantityOrdered,
			"delivery_status":  deliveryStatus,
		}).Error
}

// ApplyDelivery increments the delivered quantity of one item and
// recomputes its status, inside the caller's transaction.
func (r *LineItemRepository) ApplyDelivery(ctx context.Context, tx *gorm.DB, itemID string, received float64, deliveredAt time.Time) error {
	db := tx
	if db == nil {
		db = r.db
	}

	var item entity.LineItem
	if err := db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	item.QuantityDelivered += received
	status := workflow.ResolveItemDeliveryStatus(item.Quantity, item.QuantityOrdered, item.QuantityDelivered, item.DeliveryStatus)

	return db.WithContext(ctx).
		Model(&entity.LineItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{
			"quantity_delivered":   item.QuantityDelivered,
			"delivery_status":      status,
			"actual_delivery_date": deliveredAt,
		}).Error
}
