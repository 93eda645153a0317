package entity

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Supplier order status. Orders walk forward through these states; a
// resend never regresses an order that already advanced past "sent".
const (
	OrderDraft                = "draft"
	OrderSent                 = "sent"
	OrderABReceived           = "ab_received"
	OrderDeliveryNoteReceived = "delivery_note_received"
	OrderGoodsReceiptOpen     = "goods_receipt_open"
	OrderGoodsReceiptBooked   = "goods_receipt_booked"
	OrderReadyForInstallation = "ready_for_installation"
	OrderCancelled            = "cancelled"
)

// sentOrLater lists the states in which an order counts as already
// placed with the supplier.
var sentOrLater = map[string]bool{
	OrderSent:                 true,
	OrderABReceived:           true,
	OrderDeliveryNoteReceived: true,
	OrderGoodsReceiptOpen:     true,
	OrderGoodsReceiptBooked:   true,
	OrderReadyForInstallation: true,
}

// IsSentOrLater reports whether the status means the supplier already
// has the order.
func IsSentOrLater(status string) bool {
	return sentOrLater[status]
}

// DeviationList stores per-position deviations recorded on an order
// confirmation, as a JSONB column.
type DeviationList []Deviation

// Deviation is a single difference between what was ordered and what the
// supplier confirmed.
type Deviation struct {
	ItemID      string  `json:"item_id"`
	Field       string  `json:"field"`
	Ordered     string  `json:"ordered"`
	Confirmed   string  `json:"confirmed"`
	QuantityGap float64 `json:"quantity_gap,omitempty"`
	Note        string  `json:"note,omitempty"`
}

func (d DeviationList) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *DeviationList) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, d)
}

// SupplierOrder is one order sent to one supplier for one project.
type SupplierOrder struct {
	ID         string  `json:"id" gorm:"primaryKey;size:32"`
	CompanyID  string  `json:"company_id" gorm:"size:32;not null;index"`
	ProjectID  string  `json:"project_id" gorm:"size:32;not null;index"`
	SupplierID *string `json:"supplier_id" gorm:"size:32;index"`
	OrderNo    string  `json:"order_no" gorm:"size:32;uniqueIndex"`
	Status     string  `json:"status" gorm:"size:30;not null;default:draft"`

	// Dispatch bookkeeping
	SentAt         *time.Time `json:"sent_at"`
	SentTo         string     `json:"sent_to" gorm:"size:200"`
	IdempotencyKey string     `json:"idempotency_key" gorm:"size:200;index"`

	// Order confirmation (AB) data
	ABNumber      string        `json:"ab_number" gorm:"size:100"`
	ABReceivedAt  *time.Time    `json:"ab_received_at"`
	ConfirmedDate *time.Time    `json:"confirmed_date"`
	ABDocumentKey string        `json:"ab_document_key" gorm:"size:300"`
	Deviations    DeviationList `json:"deviations" gorm:"type:jsonb"`

	// Delivery paperwork
	DeliveryNoteNo         string     `json:"delivery_note_no" gorm:"size:100"`
	DeliveryNoteReceivedAt *time.Time `json:"delivery_note_received_at"`

	// Goods receipt bookkeeping
	GoodsReceiptBookedAt *time.Time `json:"goods_receipt_booked_at"`

	Notes string `json:"notes" gorm:"type:text"`

	Supplier *Supplier           `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
	Items    []SupplierOrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SupplierOrder) TableName() string {
	return "supplier_orders"
}

// OpenDeliveryQuantity sums quantities still expected from the supplier,
// ignoring cancelled amounts.
func (o *SupplierOrder) OpenDeliveryQuantity() float64 {
	var open float64
	for i := range o.Items {
		it := &o.Items[i]
		remaining := it.Quantity - it.QuantityCancelled - it.QuantityDelivered
		if remaining > 0 {
			open += remaining
		}
	}
	return open
}

// SupplierOrderItem is a position on a supplier order. It carries the
// quantities as recorded at order time; line items remain the source of
// truth for project-side fulfillment.
type SupplierOrderItem struct {
	ID                string  `json:"id" gorm:"primaryKey;size:32"`
	OrderID           string  `json:"order_id" gorm:"size:32;not null;index"`
	LineItemID        *string `json:"line_item_id" gorm:"size:32;index"`
	Description       string  `json:"description" gorm:"size:500;not null"`
	ModelNumber       string  `json:"model_number" gorm:"size:100"`
	Manufacturer      string  `json:"manufacturer" gorm:"size:200"`
	Unit              string  `json:"unit" gorm:"size:20;default:Stk"`
	Quantity          float64 `json:"quantity" gorm:"not null;default:1"`
	QuantityDelivered float64 `json:"quantity_delivered" gorm:"not null;default:0"`
	QuantityCancelled float64 `json:"quantity_cancelled" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SupplierOrderItem) TableName() string {
	return "supplier_order_items"
}

// SupplierOrderDispatchLog records every accepted send or mark-ordered
// mutation, keyed by its idempotency key so replays return the stored
// outcome instead of acting twice.
type SupplierOrderDispatchLog struct {
	ID              string     `json:"id" gorm:"primaryKey;size:32"`
	OrderID         string     `json:"order_id" gorm:"size:32;not null;index:idx_dispatch_order_key,unique"`
	IdempotencyKey  string     `json:"idempotency_key" gorm:"size:200;not null;index:idx_dispatch_order_key,unique"`
	Action          string     `json:"action" gorm:"size:30;not null"`
	Recipient       string     `json:"recipient" gorm:"size:200"`
	Subject         string     `json:"subject" gorm:"size:300"`
	TemplateVersion string     `json:"template_version" gorm:"size:50"`
	ActorID         string     `json:"actor_id" gorm:"size:32"`
	SentAt          *time.Time `json:"sent_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (SupplierOrderDispatchLog) TableName() string {
	return "supplier_order_dispatch_logs"
}

// Dispatch log actions
const (
	DispatchActionSend        = "send"
	DispatchActionMarkOrdered = "mark_ordered"
)
