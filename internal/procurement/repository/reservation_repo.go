package repository

import (
	"context"
	"errors"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"gorm.io/gorm"
)

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) FindByProject(ctx context.Context, projectID string) (*entity.InstallationReservation, error) {
	var reservation entity.InstallationReservation
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &reservation, nil
}

// FindAll loads every reservation; the board joins them per project. A
// missing reservations table is reported as-is so the service can map it
// to a migration hint.
func (r *ReservationRepository) FindAll(ctx context.Context) ([]entity.InstallationReservation, error) {
	var reservations []entity.InstallationReservation
	err := r.db.WithContext(ctx).Find(&reservations).Error
	return reservations, err
}

// Upsert creates or updates the single reservation of a project.
func (r *ReservationRepository) Upsert(ctx context.Context, reservation *entity.InstallationReservation) error {
	err := r.db.WithContext(ctx).Create(reservation).Error
	if IsDuplicate(err) {
		return r.db.WithContext(ctx).
			Model(&entity.InstallationReservation{}).
			Where("project_id = ?", reservation.ProjectID).
			Updates(map[string]interface{}{
				"status":                reservation.Status,
				"installer_company":     reservation.InstallerCompany,
				"request_email_sent_at": reservation.RequestEmailSentAt,
				"confirmation_date":     reservation.ConfirmationDate,
			}).Error
	}
	return err
}
