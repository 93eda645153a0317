package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/repository"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/workflow"
)

// ReceiptService books goods receipts against supplier orders.
type ReceiptService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

func NewReceiptService(repos *repository.Repositories, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{repos: repos, logger: logger}
}

// BookReceiptInput is one booking request.
type BookReceiptInput struct {
	OrderID        string            `json:"order_id"`
	DeliveryNoteNo string            `json:"delivery_note_no"`
	Notes          string            `json:"notes"`
	Positions      []ReceiptPosition `json:"positions"`
}

// BookGoodsReceipt books received quantities. The idempotency key is a
// hash of the payload: submitting the identical receipt twice returns
// the first booking, delivered quantities are only incremented once.
// The receipt counts as complete when every submitted position covers
// its item's remaining quantity.
func (s *ReceiptService) BookGoodsReceipt(ctx context.Context, actor Actor, input BookReceiptInput) (*entity.GoodsReceipt, error) {
	const op = "receipt.book"
	if err := actor.validate(op); err != nil {
		return nil, err
	}

	positions := make([]ReceiptPosition, 0, len(input.Positions))
	for _, p := range input.Positions {
		if p.LineItemID == "" {
			return nil, validationErr(op, "Jede Position braucht eine Artikel-Referenz.")
		}
		if p.Quantity <= 0 {
			continue
		}
		positions = append(positions, p)
	}
	if len(positions) == 0 {
		return nil, validationErr(op, "Keine Positionen mit positiver Menge angegeben.")
	}

	order, err := s.repos.Order.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(op, fmt.Sprintf("Bestellung %s nicht gefunden.", input.OrderID))
		}
		if repository.IsSchemaMissing(err) {
			return nil, validationErr(op, "Wareneingangs-Tabellen fehlen. Bitte Migrationen ausführen (goods_receipts).")
		}
		return nil, internalErr(op, "Bestellung konnte nicht geladen werden.", err)
	}
	if order.Status == entity.OrderCancelled {
		return nil, validationErr(op, "Für stornierte Bestellungen kann kein Wareneingang gebucht werden.")
	}

	idempotencyKey := GoodsReceiptKey(order.ID, positions)

	if existing, err := s.repos.Receipt.FindByKey(ctx, order.ID, idempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, internalErr(op, "Wareneingang konnte nicht geprüft werden.", err)
	}

	items, err := s.repos.LineItem.FindByProject(ctx, order.ProjectID)
	if err != nil {
		return nil, internalErr(op, "Positionen konnten nicht geladen werden.", err)
	}
	itemByID := make(map[string]*entity.LineItem, len(items))
	for i := range items {
		itemByID[items[i].ID] = &items[i]
	}

	receiptType := entity.ReceiptComplete
	for _, p := range positions {
		li, ok := itemByID[p.LineItemID]
		if !ok {
			return nil, notFoundErr(op, fmt.Sprintf("Position %s gehört nicht zum Projekt der Bestellung.", p.LineItemID))
		}
		remaining := li.EffectiveQuantity() - li.QuantityDelivered
		if p.Quantity < remaining {
			receiptType = entity.ReceiptPartial
		}
	}

	now := time.Now()
	receipt := &entity.GoodsReceipt{
		ID:             newID(),
		CompanyID:      actor.CompanyID,
		ProjectID:      order.ProjectID,
		OrderID:        order.ID,
		IdempotencyKey: idempotencyKey,
		ReceiptType:    receiptType,
		DeliveryNoteNo: strings.TrimSpace(input.DeliveryNoteNo),
		BookedAt:       now,
		BookedByID:     actor.UserID,
		Notes:          strings.TrimSpace(input.Notes),
	}
	for _, p := range positions {
		receipt.Items = append(receipt.Items, entity.GoodsReceiptItem{
			ID:         newID(),
			LineItemID: p.LineItemID,
			Quantity:   p.Quantity,
		})
	}

	err = s.repos.Receipt.Tx(ctx, func(tx *gorm.DB) error {
		if err := s.repos.Receipt.CreateInTx(ctx, tx, receipt); err != nil {
			return err
		}
		for _, p := range positions {
			if err := s.repos.LineItem.ApplyDelivery(ctx, tx, p.LineItemID, p.Quantity, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if repository.IsDuplicate(err) {
			// Concurrent booking with the identical payload won the
			// insert; its receipt is the authoritative one.
			existing, ferr := s.repos.Receipt.FindByKey(ctx, order.ID, idempotencyKey)
			if ferr == nil {
				return existing, nil
			}
		}
		return nil, internalErr(op, "Wareneingang konnte nicht gebucht werden.", err)
	}

	if err := s.finalizeBooking(ctx, op, order); err != nil {
		return nil, err
	}

	s.logger.Info("goods receipt booked",
		zap.String("receipt_id", receipt.ID),
		zap.String("order_id", order.ID),
		zap.String("receipt_type", receiptType),
		zap.Int("positions", len(positions)),
	)
	return receipt, nil
}

// finalizeBooking recomputes the project aggregate from the committed
// rows, advances the order, and stamps the readiness date once every
// item is delivered.
func (s *ReceiptService) finalizeBooking(ctx context.Context, op string, order *entity.SupplierOrder) error {
	refreshed, err := s.repos.LineItem.FindByProject(ctx, order.ProjectID)
	if err != nil {
		return internalErr(op, "Positionen konnten nicht neu geladen werden.", err)
	}

	state := workflow.DeriveProjectDeliveryStatus(refreshed)
	now := time.Now()
	if err := s.repos.Project.UpdateDeliveryState(ctx, order.ProjectID, state.Status, state.AllDelivered, &now); err != nil {
		return internalErr(op, "Projektstatus konnte nicht aktualisiert werden.", err)
	}

	target := entity.OrderGoodsReceiptBooked
	if state.AllDelivered {
		target = entity.OrderReadyForInstallation
	}
	if err := s.repos.Order.UpdateFields(ctx, order.ID, map[string]interface{}{
		"status":                  advanceStatus(order.Status, target),
		"goods_receipt_booked_at": now,
	}); err != nil {
		return internalErr(op, "Bestellstatus konnte nicht aktualisiert werden.", err)
	}
	return nil
}

// ReceiptsForProject lists the booked receipts of a project.
func (s *ReceiptService) ReceiptsForProject(ctx context.Context, actor Actor, projectID string) ([]entity.GoodsReceipt, error) {
	const op = "receipt.list"
	if err := actor.validate(op); err != nil {
		return nil, err
	}
	receipts, err := s.repos.Receipt.FindByProject(ctx, projectID)
	if err != nil {
		if repository.IsSchemaMissing(err) {
			return nil, validationErr(op, "Wareneingangs-Tabellen fehlen. Bitte Migrationen ausführen (goods_receipts).")
		}
		return nil, internalErr(op, "Wareneingänge konnten nicht geladen werden.", err)
	}
	return receipts, nil
}
