package entity

import "time"

// Line item delivery status
const (
	ItemNotOrdered         = "not_ordered"
	ItemOrdered            = "ordered"
	ItemPartiallyDelivered = "partially_delivered"
	ItemDelivered          = "delivered"
	ItemMissing            = "missing"
)

// Line item procurement type
const (
	ProcurementExternalOrder = "external_order"
	ProcurementInternalStock = "internal_stock"
	ProcurementReservation   = "reservation_only"
)

// LineItem is a material position on a project. Its supplier is resolved
// through the assigned article; items without a resolvable supplier are
// flagged for review instead of being dropped.
type LineItem struct {
	ID                string  `json:"id" gorm:"primaryKey;size:32"`
	CompanyID         string  `json:"company_id" gorm:"size:32;not null;index"`
	ProjectID         string  `json:"project_id" gorm:"size:32;not null;index"`
	ArticleID         *string `json:"article_id" gorm:"size:32;index"`
	SupplierOrderID   *string `json:"supplier_order_id" gorm:"size:32;index"`
	Description       string  `json:"description" gorm:"size:500;not null"`
	ModelNumber       string  `json:"model_number" gorm:"size:100"`
	Manufacturer      string  `json:"manufacturer" gorm:"size:200"`
	Unit              string  `json:"unit" gorm:"size:20;default:Stk"`
	Quantity          float64 `json:"quantity" gorm:"not null;default:1"`
	QuantityOrdered   float64 `json:"quantity_ordered" gorm:"not null;default:0"`
	QuantityDelivered float64 `json:"quantity_delivered" gorm:"not null;default:0"`
	DeliveryStatus    string  `json:"delivery_status" gorm:"size:30;not null;default:not_ordered"`
	ProcurementType   string  `json:"procurement_type" gorm:"size:30;not null;default:external_order"`
	Notes             string  `json:"notes" gorm:"type:text"`

	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`
	ActualDeliveryDate   *time.Time `json:"actual_delivery_date"`

	Article *Article `json:"article,omitempty" gorm:"foreignKey:ArticleID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LineItem) TableName() string {
	return "project_line_items"
}

// EffectiveQuantity never reports less than one unit; legacy rows carry
// zero quantities.
func (li *LineItem) EffectiveQuantity() float64 {
	if li.Quantity > 0 {
		return li.Quantity
	}
	return 1
}

// ResolvedSupplierID returns the supplier the item belongs to, via its
// article assignment.
func (li *LineItem) ResolvedSupplierID() *string {
	if li.Article != nil && li.Article.SupplierID != nil && *li.Article.SupplierID != "" {
		return li.Article.SupplierID
	}
	return nil
}

// IsStockOrReservation reports whether the item is fulfilled without an
// external supplier order.
func (li *LineItem) IsStockOrReservation() bool {
	return li.ProcurementType == ProcurementInternalStock || li.ProcurementType == ProcurementReservation
}
