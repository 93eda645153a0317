package entity

import "time"

// Project is an installation project for one customer order. The procurement
// engine reads its dates to derive readiness and writes the aggregate
// delivery status back after goods receipts.
type Project struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	CompanyID    string `json:"company_id" gorm:"size:32;not null;index"`
	OrderNumber  string `json:"order_number" gorm:"size:50;not null"`
	CustomerName string `json:"customer_name" gorm:"size:200;not null"`
	Status       string `json:"status" gorm:"size:20;default:planning"`
	DeliveryType string `json:"delivery_type" gorm:"size:20;default:delivery"` // delivery/pickup

	InstallationDate *time.Time `json:"installation_date"`
	DeliveryDate     *time.Time `json:"delivery_date"`
	CompletionDate   *time.Time `json:"completion_date"`

	// Aggregate over all line items, recomputed after every booking.
	DeliveryStatus       string     `json:"delivery_status" gorm:"size:30;default:not_ordered"`
	AllItemsDelivered    bool       `json:"all_items_delivered" gorm:"default:false"`
	ReadyForAssemblyDate *time.Time `json:"ready_for_assembly_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

// Project status
const (
	ProjectStatusPlanning  = "planning"
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
)

// Project-level delivery status
const (
	ProjectDeliveryNotOrdered         = "not_ordered"
	ProjectDeliveryPartiallyOrdered   = "partially_ordered"
	ProjectDeliveryFullyOrdered       = "fully_ordered"
	ProjectDeliveryPartiallyDelivered = "partially_delivered"
	ProjectDeliveryFullyDelivered     = "fully_delivered"
)

// Delivery type
const (
	DeliveryTypeDelivery = "delivery"
	DeliveryTypePickup   = "pickup"
)

// ReadinessDate returns the date the material has to be ready for: the
// pickup date for pickup projects, otherwise the installation date.
func (p *Project) ReadinessDate() *time.Time {
	if p.DeliveryType == DeliveryTypePickup && p.DeliveryDate != nil {
		return p.DeliveryDate
	}
	return p.InstallationDate
}

// InstallationReservation tracks whether an installer has been reserved for
// a project once its material is complete.
type InstallationReservation struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:32"`
	ProjectID          string     `json:"project_id" gorm:"size:32;not null;uniqueIndex"`
	Status             string     `json:"status" gorm:"size:20;default:draft"` // draft/requested/confirmed/cancelled
	InstallerCompany   string     `json:"installer_company" gorm:"size:200"`
	RequestEmailSentAt *time.Time `json:"request_email_sent_at"`
	ConfirmationDate   *time.Time `json:"confirmation_date"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (InstallationReservation) TableName() string {
	return "installation_reservations"
}

const (
	ReservationStatusDraft     = "draft"
	ReservationStatusRequested = "requested"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusCancelled = "cancelled"
)
