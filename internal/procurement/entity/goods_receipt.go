package entity

import "time"

// Goods receipt type
const (
	ReceiptComplete = "complete"
	ReceiptPartial  = "partial"
)

// GoodsReceipt books delivered quantities against a supplier order. The
// idempotency key is derived from the booked positions, so an identical
// replay finds the existing receipt instead of double-booking.
type GoodsReceipt struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	CompanyID      string    `json:"company_id" gorm:"size:32;not null;index"`
	ProjectID      string    `json:"project_id" gorm:"size:32;not null;index"`
	OrderID        string    `json:"order_id" gorm:"size:32;not null;index:idx_receipt_order_key,unique"`
	IdempotencyKey string    `json:"idempotency_key" gorm:"size:200;not null;index:idx_receipt_order_key,unique"`
	ReceiptType    string    `json:"receipt_type" gorm:"size:20;not null;default:complete"`
	DeliveryNoteNo string    `json:"delivery_note_no" gorm:"size:100"`
	BookedAt       time.Time `json:"booked_at" gorm:"not null"`
	BookedByID     string    `json:"booked_by_id" gorm:"size:32"`
	Notes          string    `json:"notes" gorm:"type:text"`

	Items []GoodsReceiptItem `json:"items,omitempty" gorm:"foreignKey:ReceiptID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (GoodsReceipt) TableName() string {
	return "goods_receipts"
}

// GoodsReceiptItem is one booked position of a goods receipt.
type GoodsReceiptItem struct {
	ID         string  `json:"id" gorm:"primaryKey;size:32"`
	ReceiptID  string  `json:"receipt_id" gorm:"size:32;not null;index"`
	LineItemID string  `json:"line_item_id" gorm:"size:32;not null;index"`
	Quantity   float64 `json:"quantity" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (GoodsReceiptItem) TableName() string {
	return "goods_receipt_items"
}
