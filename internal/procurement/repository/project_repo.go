package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"gorm.io/gorm"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	var project entity.Project
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// FindActive returns the projects the workflow board aggregates over.
func (r *ProjectRepository) FindActive(ctx context.Context, companyID string) ([]entity.Project, error) {
	var projects []entity.Project
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Where("status <> ?", entity.ProjectStatusCompleted).
		Order("created_at DESC").
		Find(&projects).Error
	return projects, err
}

func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *ProjectRepository) Update(ctx context.Context, project *entity.Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

// UpdateDeliveryState writes the recomputed aggregate back to the
// project row. The readiness stamp is set while everything is delivered
// and cleared again if a later mutation reopens the backlog.
func (r *ProjectRepository) UpdateDeliveryState(ctx context.Context, projectID, status string, allDelivered bool, readyDate *time.Time) error {
	updates := map[string]interface{}{
		"delivery_status":         status,
		"all_items_delivered":     allDelivered,
		"ready_for_assembly_date": nil,
	}
	if allDelivered && readyDate != nil {
		updates["ready_for_assembly_date"] = *readyDate
	}
	return r.db.WithContext(ctx).
		Model(&entity.Project{}).
		Where("id = ?", projectID).
		Updates(updates).Error
}
