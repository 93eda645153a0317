package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/repository"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/workflow"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/mail"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/outbox"
)

// OrderService is the mutation gateway for supplier orders. Every
// operation is safe under at-least-once delivery: double clicks and
// retried requests resolve to the stored outcome instead of acting
// twice.
type OrderService struct {
	repos       *repository.Repositories
	dispatcher  *outbox.Dispatcher
	logger      *zap.Logger
	companyName string
}

func NewOrderService(repos *repository.Repositories, dispatcher *outbox.Dispatcher, logger *zap.Logger, companyName string) *OrderService {
	if companyName == "" {
		companyName = "Ihr Unternehmen"
	}
	return &OrderService{
		repos:       repos,
		dispatcher:  dispatcher,
		logger:      logger,
		companyName: companyName,
	}
}

// statusRank orders the forward lifecycle. An order never moves to a
// lower rank except by cancellation.
var statusRank = map[string]int{
	entity.OrderDraft:                0,
	entity.OrderSent:                 1,
	entity.OrderABReceived:           2,
	entity.OrderDeliveryNoteReceived: 3,
	entity.OrderGoodsReceiptOpen:     4,
	entity.OrderGoodsReceiptBooked:   5,
	entity.OrderReadyForInstallation: 6,
}

// advanceStatus returns the target status unless the order already
// progressed past it.
func advanceStatus(current, target string) string {
	if statusRank[current] > statusRank[target] {
		return current
	}
	return target
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// EnsureOrder synchronizes the supplier's resolvable line items of a
// project into one supplier order: merging into the existing live order
// for the pair, creating a draft when none exists. Items are aggregated
// by article identity so duplicate positions collapse.
func (s *OrderService) EnsureOrder(ctx context.Context, actor Actor, projectID, supplierID string) (*entity.SupplierOrder, error) {
	const op = "order.ensure"
	if err := actor.validate(op); err != nil {
		return nil, err
	}

	project, err := s.repos.Project.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(op, fmt.Sprintf("Projekt %s nicht gefunden.", projectID))
		}
		return nil, internalErr(op, "Projekt konnte nicht geladen werden.", err)
	}

	items, err := s.repos.LineItem.FindByProject(ctx, projectID)
	if err != nil {
		return nil, internalErr(op, "Positionen konnten nicht geladen werden.", err)
	}

	positions := aggregateOrderItems(items, supplierID)
	if len(positions) == 0 {
		return nil, validationErr(op, "Keine Positionen für diesen Lieferanten im Auftrag gefunden. Bitte Artikel-Lieferant prüfen.")
	}

	existing, err := s.repos.Order.FindLiveByProjectSupplier(ctx, projectID, supplierID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		if repository.IsSchemaMissing(err) {
			return nil, validationErr(op, "Bestell-Tabellen fehlen. Bitte Migrationen ausführen (supplier_orders).")
		}
		return nil, internalErr(op, "Bestehende Bestellung konnte nicht geprüft werden.", err)
	}

	if existing != nil {
		if err := s.repos.Order.ReplaceItems(ctx, existing.ID, positions); err != nil {
			return nil, internalErr(op, "Positionen konnten nicht aktualisiert werden.", err)
		}
		return s.loadOrder(ctx, op, existing.ID)
	}

	generation, err := s.repos.Order.CountByProjectSupplier(ctx, projectID, supplierID)
	if err != nil {
		return nil, internalErr(op, "Bestehende Bestellungen konnten nicht gezählt werden.", err)
	}

	order := &entity.SupplierOrder{
		ID:         newID(),
		CompanyID:  actor.CompanyID,
		ProjectID:  projectID,
		SupplierID: &supplierID,
		OrderNo:    deriveOrderNo(project, supplierID, int(generation)),
		Status:     entity.OrderDraft,
	}
	if err := s.repos.Order.Create(ctx, order); err != nil {
		if repository.IsDuplicate(err) {
			// Concurrent ensure for the same pair won the insert.
			winner, ferr := s.repos.Order.FindLiveByProjectSupplier(ctx, projectID, supplierID)
			if ferr == nil {
				return winner, nil
			}
			// No live winner: the number collided with an order created
			// between count and insert. Bump the generation and retry
			// once.
			order.OrderNo = deriveOrderNo(project, supplierID, int(generation)+1)
			if err := s.repos.Order.Create(ctx, order); err != nil {
				return nil, internalErr(op, "Bestellung konnte nicht angelegt werden.", err)
			}
		} else {
			return nil, internalErr(op, "Bestellung konnte nicht angelegt werden.", err)
		}
	}
	if err := s.repos.Order.ReplaceItems(ctx, order.ID, positions); err != nil {
		return nil, internalErr(op, "Positionen konnten nicht gespeichert werden.", err)
	}

	s.logger.Info("supplier order ensured",
		zap.String("order_id", order.ID),
		zap.String("project_id", projectID),
		zap.String("supplier_id", supplierID),
		zap.Int("positions", len(positions)),
	)
	return s.loadOrder(ctx, op, order.ID)
}

// SendResult is the outcome of SendOrder and MarkExternallyOrdered.
type SendResult struct {
	OrderID           string     `json:"order_id"`
	OrderNo           string     `json:"order_no"`
	Recipient         string     `json:"recipient,omitempty"`
	AlreadySent       bool       `json:"already_sent"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	Message           string     `json:"message"`
}

// SendOrder dispatches the order email to the supplier through the
// outbox. The idempotency key pins the send intent: the same key never
// sends twice, a repeat still re-syncs the item and order state so a
// lost response can be replayed safely.
func (s *OrderService) SendOrder(ctx context.Context, actor Actor, orderID, recipientOverride, idempotencyKey string) (*SendResult, error) {
	const op = "order.send"
	if err := actor.validate(op); err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderCancelled {
		return nil, validationErr(op, "Stornierte Bestellungen können nicht versendet werden.")
	}
	if order.SupplierID == nil || order.Supplier == nil {
		return nil, validationErr(op, "Der Bestellung ist kein Lieferant zugeordnet.")
	}

	recipient := strings.TrimSpace(recipientOverride)
	if recipient == "" {
		recipient = order.Supplier.OrderRecipient()
	}
	if recipient == "" {
		return nil, validationErr(op, "Für diesen Lieferanten ist keine Bestell-E-Mail hinterlegt.")
	}

	if idempotencyKey == "" {
		idempotencyKey = SendOrderKey(order.ID, recipient, order.SentAt)
	}

	existingLog, err := s.repos.Order.FindDispatchLog(ctx, order.ID, idempotencyKey)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, internalErr(op, "Versandprotokoll konnte nicht geprüft werden.", err)
	}
	alreadySent := existingLog != nil ||
		(order.IdempotencyKey == idempotencyKey && order.SentAt != nil)

	if alreadySent {
		// Replay: re-sync the dependent state but never send again.
		if err := s.markItemsOrdered(ctx, order); err != nil {
			return nil, err
		}
		sentAt := order.SentAt
		if sentAt == nil && existingLog != nil {
			sentAt = existingLog.SentAt
		}
		if err := s.syncSentState(ctx, op, order, recipient, idempotencyKey, sentAt, actor); err != nil {
			return nil, err
		}
		return &SendResult{
			OrderID:     order.ID,
			OrderNo:     order.OrderNo,
			Recipient:   recipient,
			AlreadySent: true,
			SentAt:      sentAt,
			Message:     "Bestellung wurde mit diesem Idempotency-Key bereits versendet.",
		}, nil
	}

	if len(order.Items) == 0 {
		return nil, validationErr(op, "Die Bestellung enthält keine Positionen.")
	}

	project, err := s.repos.Project.FindByID(ctx, order.ProjectID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, internalErr(op, "Projekt konnte nicht geladen werden.", err)
	}

	template := BuildOrderTemplate(order, project, order.Supplier.Name, s.companyName)

	result, err := s.dispatcher.QueueAndSend(ctx, actor.UserID, "supplier_order_dispatch",
		OutboxDedupeKey(order.ID, idempotencyKey),
		mail.Message{
			To:      []string{recipient},
			Subject: template.Subject,
			HTML:    template.HTML,
			Text:    template.Text,
		},
		outbox.Metadata{
			"supplier_order_id": order.ID,
			"project_id":        order.ProjectID,
			"supplier_id":       *order.SupplierID,
		},
	)
	if err != nil {
		return nil, internalErr(op, "Bestellung konnte nicht versendet werden.", err)
	}

	sentAt := result.SentAt
	if err := s.repos.Order.CreateDispatchLog(ctx, &entity.SupplierOrderDispatchLog{
		ID:              newID(),
		OrderID:         order.ID,
		IdempotencyKey:  idempotencyKey,
		Action:          entity.DispatchActionSend,
		Recipient:       recipient,
		Subject:         template.Subject,
		TemplateVersion: template.Version,
		ActorID:         actor.UserID,
		SentAt:          &sentAt,
	}); err != nil {
		return nil, internalErr(op, "Versandprotokoll konnte nicht gespeichert werden.", err)
	}

	if err := s.markItemsOrdered(ctx, order); err != nil {
		return nil, err
	}
	if err := s.syncSentState(ctx, op, order, recipient, idempotencyKey, &sentAt, actor); err != nil {
		return nil, err
	}

	s.logger.Info("supplier order sent",
		zap.String("order_id", order.ID),
		zap.String("order_no", order.OrderNo),
		zap.String("recipient", recipient),
		zap.Bool("already_sent", result.AlreadySent),
	)

	return &SendResult{
		OrderID:           order.ID,
		OrderNo:           order.OrderNo,
		Recipient:         recipient,
		AlreadySent:       result.AlreadySent,
		SentAt:            &sentAt,
		ProviderMessageID: result.ProviderMessageID,
		Message:           fmt.Sprintf("Bestellung %s wurde an %s versendet.", order.OrderNo, recipient),
	}, nil
}

// MarkExternallyOrdered records that the supplier got the order through
// an out-of-band channel (phone, portal, fax). Same idempotency
// discipline as SendOrder, without the transport.
func (s *OrderService) MarkExternallyOrdered(ctx context.Context, actor Actor, orderID, idempotencyKey, note string) (*SendResult, error) {
	const op = "order.mark_ordered"
	if err := actor.validate(op); err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderCancelled {
		return nil, validationErr(op, "Stornierte Bestellungen können nicht als bestellt markiert werden.")
	}

	if idempotencyKey == "" {
		idempotencyKey = MarkOrderedKey(order.ID, order.SentAt)
	}

	existingLog, err := s.repos.Order.FindDispatchLog(ctx, order.ID, idempotencyKey)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, internalErr(op, "Versandprotokoll konnte nicht geprüft werden.", err)
	}

	now := time.Now()
	sentAt := order.SentAt
	if sentAt == nil {
		if existingLog != nil && existingLog.SentAt != nil {
			sentAt = existingLog.SentAt
		} else {
			sentAt = &now
		}
	}
	alreadyMarked := existingLog != nil ||
		(order.IdempotencyKey == idempotencyKey && order.SentAt != nil)

	if !alreadyMarked {
		if err := s.repos.Order.CreateDispatchLog(ctx, &entity.SupplierOrderDispatchLog{
			ID:             newID(),
			OrderID:        order.ID,
			IdempotencyKey: idempotencyKey,
			Action:         entity.DispatchActionMarkOrdered,
			ActorID:        actor.UserID,
			SentAt:         sentAt,
		}); err != nil {
			return nil, internalErr(op, "Versandprotokoll konnte nicht gespeichert werden.", err)
		}
	}

	if err := s.markItemsOrdered(ctx, order); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"status":          advanceStatus(order.Status, entity.OrderSent),
		"sent_at":         sentAt,
		"idempotency_key": idempotencyKey,
	}
	if note = strings.TrimSpace(note); note != "" {
		notes := order.Notes
		if notes != "" {
			notes += "\n"
		}
		updates["notes"] = notes + fmt.Sprintf("Extern bestellt (%s): %s", now.Format("02.01.2006"), note)
	}
	if err := s.repos.Order.UpdateFields(ctx, order.ID, updates); err != nil {
		return nil, internalErr(op, "Bestellung konnte nicht aktualisiert werden.", err)
	}

	message := fmt.Sprintf("Bestellung %s wurde als extern bestellt markiert.", order.OrderNo)
	if alreadyMarked {
		message = "Bestellung wurde mit diesem Idempotency-Key bereits markiert."
	}
	return &SendResult{
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		AlreadySent: alreadyMarked,
		SentAt:      sentAt,
		Message:     message,
	}, nil
}

// CaptureABInput is the supplier's order confirmation.
type CaptureABInput struct {
	ABNumber      string               `json:"ab_number"`
	ConfirmedDate *time.Time           `json:"confirmed_date"`
	Deviations    entity.DeviationList `json:"deviations"`
	DocumentKey   string               `json:"document_key"`
	Notes         string               `json:"notes"`
}

// CaptureAB records the AB on the order and advances it to ab_received
// (never backwards from a later stage).
func (s *OrderService) CaptureAB(ctx context.Context, actor Actor, orderID string, input CaptureABInput) (*entity.SupplierOrder, error) {
	const op = "order.capture_ab"
	if err := actor.validate(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.ABNumber) == "" && input.ConfirmedDate == nil {
		return nil, validationErr(op, "AB-Nummer oder bestätigter Liefertermin ist erforderlich.")
	}

	order, err := s.loadOrder(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderCancelled {
		return nil, validationErr(op, "Stornierte Bestellungen können keine AB erhalten.")
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":         advanceStatus(order.Status, entity.OrderABReceived),
		"ab_number":      strings.TrimSpace(input.ABNumber),
		"ab_received_at": now,
		"deviations":     input.Deviations,
	}
	if input.ConfirmedDate != nil {
		updates["confirmed_date"] = *input.ConfirmedDate
	}
	if input.DocumentKey != "" {
		updates["ab_document_key"] = input.DocumentKey
	}
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		updates["notes"] = notes
	}
	if err := s.repos.Order.UpdateFields(ctx, order.ID, updates); err != nil {
		return nil, internalErr(op, "AB konnte nicht gespeichert werden.", err)
	}

	s.logger.Info("order confirmation captured",
		zap.String("order_id", order.ID),
		zap.String("ab_number", input.ABNumber),
		zap.Int("deviations", len(input.Deviations)),
	)
	return s.loadOrder(ctx, op, order.ID)
}

// LinkDeliveryNote attaches the supplier's delivery note to the order.
func (s *OrderService) LinkDeliveryNote(ctx context.Context, actor Actor, orderID, deliveryNoteNo string) (*entity.SupplierOrder, error) {
	const op = "order.link_delivery_note"
	if err := actor.validate(op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(deliveryNoteNo) == "" {
		return nil, validationErr(op, "Lieferschein-Nummer ist erforderlich.")
	}

	order, err := s.loadOrder(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderCancelled {
		return nil, validationErr(op, "Stornierte Bestellungen können keinen Lieferschein erhalten.")
	}

	now := time.Now()
	if err := s.repos.Order.UpdateFields(ctx, order.ID, map[string]interface{}{
		"status":                    advanceStatus(order.Status, entity.OrderDeliveryNoteReceived),
		"delivery_note_no":          strings.TrimSpace(deliveryNoteNo),
		"delivery_note_received_at": now,
	}); err != nil {
		return nil, internalErr(op, "Lieferschein konnte nicht zugeordnet werden.", err)
	}
	return s.loadOrder(ctx, op, order.ID)
}

// CancelOrderItems records partial cancellations per position. A
// requested amount above the remaining cancellable quantity rejects the
// whole call without touching any row.
func (s *OrderService) CancelOrderItems(ctx context.Context, actor Actor, orderID string, amounts map[string]float64) (*entity.SupplierOrder, error) {
	const op = "order.cancel_items"
	if err := actor.validate(op); err != nil {
		return nil, err
	}
	if len(amounts) == 0 {
		return nil, validationErr(op, "Keine Stornomengen angegeben.")
	}

	order, err := s.loadOrder(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderCancelled {
		return nil, validationErr(op, "Die Bestellung ist bereits storniert.")
	}

	itemByID := make(map[string]*entity.SupplierOrderItem, len(order.Items))
	for i := range order.Items {
		itemByID[order.Items[i].ID] = &order.Items[i]
	}

	// Validate everything before writing anything.
	for itemID, amount := range amounts {
		item, ok := itemByID[itemID]
		if !ok {
			return nil, notFoundErr(op, fmt.Sprintf("Position %s gehört nicht zu dieser Bestellung.", itemID))
		}
		if amount <= 0 {
			return nil, validationErr(op, "Stornomenge muss größer als null sein.")
		}
		remaining := item.Quantity - item.QuantityCancelled
		if amount > remaining {
			return nil, validationErr(op, fmt.Sprintf(
				"Stornomenge %s übersteigt die verbleibende Menge %s der Position %q.",
				formatQuantity(amount), formatQuantity(remaining), item.Description,
			))
		}
	}

	err = s.repos.Order.Tx(ctx, func(tx *gorm.DB) error {
		for itemID, amount := range amounts {
			item := itemByID[itemID]
			if err := tx.Model(&entity.SupplierOrderItem{}).
				Where("id = ?", itemID).
				Update("quantity_cancelled", item.QuantityCancelled+amount).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, internalErr(op, "Stornierung konnte nicht gespeichert werden.", err)
	}

	return s.loadOrder(ctx, op, order.ID)
}

// CancelOrder cancels the whole order. Cancelled orders stay in the
// store; the aggregator supersedes them with any newer live order.
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, orderID string) (*entity.SupplierOrder, error) {
	const op = "order.cancel"
	if err := actor.validate(op); err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == entity.OrderCancelled {
		return order, nil
	}
	if err := s.repos.Order.UpdateFields(ctx, order.ID, map[string]interface{}{
		"status": entity.OrderCancelled,
	}); err != nil {
		return nil, internalErr(op, "Bestellung konnte nicht storniert werden.", err)
	}
	s.logger.Info("supplier order cancelled", zap.String("order_id", order.ID))
	return s.loadOrder(ctx, op, order.ID)
}

// GetOrder loads one order with supplier and items.
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID string) (*entity.SupplierOrder, error) {
	const op = "order.get"
	if err := actor.validate(op); err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, op, orderID)
}

// ListOrders returns the company's supplier orders.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor) ([]entity.SupplierOrder, error) {
	const op = "order.list"
	if err := actor.validate(op); err != nil {
		return nil, err
	}
	orders, err := s.repos.Order.FindByCompany(ctx, actor.CompanyID)
	if err != nil {
		if repository.IsSchemaMissing(err) {
			return nil, validationErr(op, "Bestell-Tabellen fehlen. Bitte Migrationen ausführen (supplier_orders).")
		}
		return nil, internalErr(op, "Bestellungen konnten nicht geladen werden.", err)
	}
	return orders, nil
}

func (s *OrderService) loadOrder(ctx context.Context, op, orderID string) (*entity.SupplierOrder, error) {
	order, err := s.repos.Order.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(op, fmt.Sprintf("Bestellung %s nicht gefunden.", orderID))
		}
		if repository.IsSchemaMissing(err) {
			return nil, validationErr(op, "Bestell-Tabellen fehlen. Bitte Migrationen ausführen (supplier_orders).")
		}
		return nil, internalErr(op, "Bestellung konnte nicht geladen werden.", err)
	}
	return order, nil
}

// syncSentState writes the post-send order fields. sent_at is only ever
// set, never cleared or moved backwards.
func (s *OrderService) syncSentState(ctx context.Context, op string, order *entity.SupplierOrder, recipient, idempotencyKey string, sentAt *time.Time, actor Actor) error {
	now := time.Now()
	if sentAt == nil {
		sentAt = &now
	}
	effectiveSentAt := order.SentAt
	if effectiveSentAt == nil {
		effectiveSentAt = sentAt
	}
	sentTo := order.SentTo
	if sentTo == "" {
		sentTo = recipient
	}
	if err := s.repos.Order.UpdateFields(ctx, order.ID, map[string]interface{}{
		"status":          advanceStatus(order.Status, entity.OrderSent),
		"sent_to":         sentTo,
		"sent_at":         effectiveSentAt,
		"idempotency_key": idempotencyKey,
	}); err != nil {
		return internalErr(op, "Bestellstatus konnte nicht aktualisiert werden.", err)
	}
	return nil
}

// markItemsOrdered raises the ordered quantities of the supplier's
// candidate items to at least the ordered amount and recomputes the
// project's aggregate delivery state from the fresh rows.
func (s *OrderService) markItemsOrdered(ctx context.Context, order *entity.SupplierOrder) error {
	const op = "order.mark_items"
	if order.SupplierID == nil {
		return nil
	}

	items, err := s.repos.LineItem.FindByProject(ctx, order.ProjectID)
	if err != nil {
		return internalErr(op, "Positionen konnten nicht geladen werden.", err)
	}

	linked := make(map[string]bool)
	for i := range order.Items {
		if id := order.Items[i].LineItemID; id != nil && *id != "" {
			linked[*id] = true
		}
	}

	candidates := workflow.CandidateItemIDs(items, *order.SupplierID, linked)
	for i := range items {
		li := &items[i]
		if !candidates[li.ID] {
			continue
		}
		if li.ProcurementType != entity.ProcurementExternalOrder && li.ProcurementType != "" {
			continue
		}

		qty := li.EffectiveQuantity()
		ordered := li.QuantityOrdered
		if qty > ordered {
			ordered = qty
		}
		if li.QuantityDelivered > ordered {
			ordered = li.QuantityDelivered
		}

		status := workflow.ResolveItemDeliveryStatus(li.Quantity, ordered, li.QuantityDelivered, li.DeliveryStatus)

		if err := s.repos.LineItem.UpdateOrderedState(ctx, li.ID, ordered, status); err != nil {
			return internalErr(op, "Position konnte nicht aktualisiert werden.", err)
		}
	}

	return s.recomputeProjectDelivery(ctx, op, order.ProjectID)
}

// recomputeProjectDelivery reloads the project's items and writes the
// derived aggregate back. Reads the freshly-committed rows, never the
// in-memory pre-update values.
func (s *OrderService) recomputeProjectDelivery(ctx context.Context, op, projectID string) error {
	refreshed, err := s.repos.LineItem.FindByProject(ctx, projectID)
	if err != nil {
		return internalErr(op, "Positionen konnten nicht neu geladen werden.", err)
	}
	if len(refreshed) == 0 {
		return nil
	}

	state := workflow.DeriveProjectDeliveryStatus(refreshed)
	now := time.Now()
	if err := s.repos.Project.UpdateDeliveryState(ctx, projectID, state.Status, state.AllDelivered, &now); err != nil {
		return internalErr(op, "Projektstatus konnte nicht aktualisiert werden.", err)
	}
	return nil
}

// aggregateOrderItems collapses a supplier's resolvable line items into
// order positions, merging rows with the same article identity.
func aggregateOrderItems(items []entity.LineItem, supplierID string) []entity.SupplierOrderItem {
	type slot struct {
		index int
	}
	seen := make(map[string]slot)
	var positions []entity.SupplierOrderItem

	for i := range items {
		li := &items[i]
		if li.ProcurementType != entity.ProcurementExternalOrder && li.ProcurementType != "" {
			continue
		}
		resolved := li.ResolvedSupplierID()
		if resolved == nil || *resolved != supplierID {
			continue
		}

		key := strings.Join([]string{li.Description, li.ModelNumber, li.Manufacturer, li.Unit}, "|")
		qty := li.EffectiveQuantity()
		if existing, ok := seen[key]; ok {
			positions[existing.index].Quantity += qty
			continue
		}

		itemID := li.ID
		positions = append(positions, entity.SupplierOrderItem{
			ID:           newID(),
			LineItemID:   &itemID,
			Description:  li.Description,
			ModelNumber:  li.ModelNumber,
			Manufacturer: li.Manufacturer,
			Unit:         defaultUnit(li.Unit),
			Quantity:     qty,
		})
		seen[key] = slot{index: len(positions) - 1}
	}
	return positions
}

func defaultUnit(unit string) string {
	if unit == "" {
		return "Stk"
	}
	return unit
}

// deriveOrderNo builds the human-readable order number from the project
// order number and a supplier prefix. generation counts the orders that
// already exist for the pair, cancelled ones included; a replacement
// after a cancellation carries a numeric suffix so its number never
// collides with the cancelled predecessor.
func deriveOrderNo(project *entity.Project, supplierID string, generation int) string {
	base := strings.ReplaceAll(project.OrderNumber, " ", "")
	if base == "" {
		base = "PROJ-" + strings.ToUpper(prefixOf(project.ID, 8))
	}
	no := fmt.Sprintf("%s-L%s", base, strings.ToUpper(prefixOf(supplierID, 4)))
	if generation > 0 {
		no = fmt.Sprintf("%s-%d", no, generation+1)
	}
	return no
}

func prefixOf(id string, n int) string {
	if len(id) > n {
		return id[:n]
	}
	return id
}
