package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/repository"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/workflow"
)

// Actor carries the authenticated caller through every service call.
// The engine never reads ambient session state.
type Actor struct {
	UserID    string
	CompanyID string
}

func (a Actor) validate(op string) *Error {
	if a.UserID == "" || a.CompanyID == "" {
		return &Error{Kind: KindUnauthorized, Op: op, Message: "Nicht angemeldet."}
	}
	return nil
}

// BucketService serves the workflow board: it aggregates items, orders
// and reservations into classified buckets.
type BucketService struct {
	repos      *repository.Repositories
	logger     *zap.Logger
	thresholds workflow.Thresholds
}

func NewBucketService(repos *repository.Repositories, logger *zap.Logger, thresholds workflow.Thresholds) *BucketService {
	return &BucketService{
		repos:      repos,
		logger:     logger,
		thresholds: thresholds,
	}
}

// ListBuckets reconciles the company's procurement state into sorted
// workflow buckets. A missing reservations table degrades to buckets
// without reservation data instead of failing the whole board.
func (s *BucketService) ListBuckets(ctx context.Context, actor Actor) ([]workflow.Bucket, error) {
	const op = "bucket.list"
	if err := actor.validate(op); err != nil {
		return nil, err
	}

	projects, err := s.repos.Project.FindActive(ctx, actor.CompanyID)
	if err != nil {
		return nil, internalErr(op, "Projekte konnten nicht geladen werden.", err)
	}
	items, err := s.repos.LineItem.FindByCompany(ctx, actor.CompanyID)
	if err != nil {
		return nil, internalErr(op, "Positionen konnten nicht geladen werden.", err)
	}
	orders, err := s.repos.Order.FindByCompany(ctx, actor.CompanyID)
	if err != nil {
		if repository.IsSchemaMissing(err) {
			return nil, validationErr(op, "Bestell-Tabellen fehlen. Bitte Migrationen ausführen (supplier_orders).")
		}
		return nil, internalErr(op, "Bestellungen konnten nicht geladen werden.", err)
	}
	suppliers, err := s.repos.Supplier.FindAll(ctx, actor.CompanyID)
	if err != nil {
		return nil, internalErr(op, "Lieferanten konnten nicht geladen werden.", err)
	}

	reservations, err := s.repos.Reservation.FindAll(ctx)
	if err != nil {
		if !repository.IsSchemaMissing(err) {
			return nil, internalErr(op, "Reservierungen konnten nicht geladen werden.", err)
		}
		s.logger.Warn("installation_reservations table missing, continuing without reservations", zap.Error(err))
		reservations = nil
	}

	buckets := workflow.Aggregate(workflow.Input{
		Projects:     projects,
		Items:        items,
		Orders:       orders,
		Suppliers:    suppliers,
		Reservations: reservations,
	}, time.Now(), s.thresholds)

	return buckets, nil
}

// MaterialSnapshots computes the installation risk board for projects
// inside the given horizon, sorted by severity.
func (s *BucketService) MaterialSnapshots(ctx context.Context, actor Actor, horizonDays int) ([]workflow.ProjectMaterialSnapshot, error) {
	const op = "bucket.material_snapshots"
	if err := actor.validate(op); err != nil {
		return nil, err
	}
	if horizonDays < 1 {
		horizonDays = 14
	}

	projects, err := s.repos.Project.FindActive(ctx, actor.CompanyID)
	if err != nil {
		return nil, internalErr(op, "Projekte konnten nicht geladen werden.", err)
	}
	items, err := s.repos.LineItem.FindByCompany(ctx, actor.CompanyID)
	if err != nil {
		return nil, internalErr(op, "Positionen konnten nicht geladen werden.", err)
	}

	itemsByProject := make(map[string][]entity.LineItem)
	for _, item := range items {
		itemsByProject[item.ProjectID] = append(itemsByProject[item.ProjectID], item)
	}

	now := time.Now()
	snapshots := make([]workflow.ProjectMaterialSnapshot, 0, len(projects))
	for i := range projects {
		snap, ok := workflow.MaterialSnapshotOf(&projects[i], itemsByProject[projects[i].ID], now, s.thresholds)
		if !ok {
			continue
		}
		if snap.DaysUntil < 0 || snap.DaysUntil > horizonDays {
			continue
		}
		snapshots = append(snapshots, snap)
	}

	workflow.SortMaterialSnapshots(snapshots)
	return snapshots, nil
}
