package repository

import (
	"context"
	"errors"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"gorm.io/gorm"
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) FindByID(ctx context.Context, id string) (*entity.GoodsReceipt, error) {
	var receipt entity.GoodsReceipt
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// FindByKey looks a receipt up by its (order, idempotency key) pair.
func (r *ReceiptRepository) FindByKey(ctx context.Context, orderID, idempotencyKey string) (*entity.GoodsReceipt, error) {
	var receipt entity.GoodsReceipt
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ? AND idempotency_key = ?", orderID, idempotencyKey).
		First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) FindByProject(ctx context.Context, projectID string) ([]entity.GoodsReceipt, error) {
	var receipts []entity.GoodsReceipt
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("project_id = ?", projectID).
		Order("booked_at DESC").
		Find(&receipts).Error
	return receipts, err
}

// CreateInTx inserts the receipt with its items inside tx.
func (r *ReceiptRepository) CreateInTx(ctx context.Context, tx *gorm.DB, receipt *entity.GoodsReceipt) error {
	return tx.WithContext(ctx).Create(receipt).Error
}

// Tx runs fn inside one transaction on this repository's connection.
func (r *ReceiptRepository) Tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
