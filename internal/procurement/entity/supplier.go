package entity

import "time"

// Supplier is a material supplier reachable by order email.
type Supplier struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	CompanyID     string    `json:"company_id" gorm:"size:32;not null;index"`
	Name          string    `json:"name" gorm:"size:200;not null"`
	Email         string    `json:"email" gorm:"size:200"`
	OrderEmail    string    `json:"order_email" gorm:"size:200"`
	ContactPerson string    `json:"contact_person" gorm:"size:200"`
	Notes         string    `json:"notes" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Supplier) TableName() string {
	return "suppliers"
}

// OrderRecipient returns the address supplier orders go to, preferring the
// dedicated order inbox over the general contact address.
func (s *Supplier) OrderRecipient() string {
	if s.OrderEmail != "" {
		return s.OrderEmail
	}
	return s.Email
}

// Article is a catalog entry; its supplier assignment is how line items
// resolve to a supplier.
type Article struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	CompanyID    string    `json:"company_id" gorm:"size:32;not null;index"`
	SupplierID   *string   `json:"supplier_id" gorm:"size:32;index"`
	Name         string    `json:"name" gorm:"size:200;not null"`
	ModelNumber  string    `json:"model_number" gorm:"size:100"`
	Manufacturer string    `json:"manufacturer" gorm:"size:200"`
	Unit         string    `json:"unit" gorm:"size:20;default:Stk"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Article) TableName() string {
	return "articles"
}
