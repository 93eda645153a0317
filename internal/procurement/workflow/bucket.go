package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
)

// Bucket kind
const (
	BucketSupplier        = "supplier"
	BucketMissingSupplier = "missing_supplier"
)

// Supplier names the planners use for stock that never leaves the house.
// Items bucketed under these count as delivered from stock.
var internalStockSupplierNames = map[string]bool{
	"lagerware":      true,
	"lager":          true,
	"eigenbestand":   true,
	"internes lager": true,
}

// Bucket is the reconciliation unit for one (project, supplier) pair, or
// one per project for items whose supplier cannot be resolved.
type Bucket struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`

	ProjectID          string     `json:"project_id"`
	ProjectOrderNumber string     `json:"project_order_number"`
	CustomerName       string     `json:"customer_name"`
	DeliveryType       string     `json:"delivery_type"`
	ReadinessDate      *time.Time `json:"readiness_date,omitempty"`
	DaysUntilReadiness *int       `json:"days_until_readiness,omitempty"`

	SupplierID         string `json:"supplier_id,omitempty"`
	SupplierName       string `json:"supplier_name"`
	SupplierOrderEmail string `json:"supplier_order_email,omitempty"`

	Order *entity.SupplierOrder `json:"order,omitempty"`
	Items []entity.LineItem     `json:"items"`

	TotalItems           int `json:"total_items"`
	OpenOrderItems       int `json:"open_order_items"`
	OpenDeliveryItems    int `json:"open_delivery_items"`
	ExternalOrderItems   int `json:"external_order_items"`
	InternalStockItems   int `json:"internal_stock_items"`
	ReservationOnlyItems int `json:"reservation_only_items"`

	Queue      Queue    `json:"queue"`
	QueueLabel string   `json:"queue_label"`
	NextAction string   `json:"next_action"`
	AbTiming   AbTiming `json:"ab_timing_status"`

	ReservationStatus string `json:"reservation_status,omitempty"`
}

// Input carries the raw rows the aggregator reconciles. Orders are
// expected with their items preloaded; line items with their article.
type Input struct {
	Projects     []entity.Project
	Items        []entity.LineItem
	Orders       []entity.SupplierOrder
	Suppliers    []entity.Supplier
	Reservations []entity.InstallationReservation
}

// shouldReplaceOrder decides which of two orders is authoritative for a
// bucket: a cancelled order always loses to a live one, otherwise the
// newer order wins.
func shouldReplaceOrder(existing, next *entity.SupplierOrder) bool {
	if existing == nil {
		return true
	}
	if existing.Status == entity.OrderCancelled && next.Status != entity.OrderCancelled {
		return true
	}
	if existing.Status != entity.OrderCancelled && next.Status == entity.OrderCancelled {
		return false
	}
	return next.CreatedAt.After(existing.CreatedAt)
}

// summarize counts open positions. Stock and reservation items never
// enter the order/delivery backlog.
func summarize(items []entity.LineItem) (total, openOrder, openDelivery, external, stock, reservation int) {
	total = len(items)
	for i := range items {
		li := &items[i]
		switch li.ProcurementType {
		case entity.ProcurementInternalStock:
			stock++
			continue
		case entity.ProcurementReservation:
			reservation++
			continue
		}
		external++
		qty := li.EffectiveQuantity()
		if li.QuantityOrdered < qty {
			openOrder++
		}
		if li.QuantityDelivered < qty {
			openDelivery++
		}
	}
	return
}

// normalizeForInternalStock rewrites external-order items as fulfilled
// stock positions when the bucket's supplier is the in-house stock
// pseudo-supplier.
func normalizeForInternalStock(items []entity.LineItem, supplierName string) []entity.LineItem {
	if !internalStockSupplierNames[strings.ToLower(strings.TrimSpace(supplierName))] {
		return items
	}
	normalized := make([]entity.LineItem, len(items))
	for i := range items {
		li := items[i]
		if li.ProcurementType == entity.ProcurementExternalOrder || li.ProcurementType == "" {
			qty := li.EffectiveQuantity()
			li.ProcurementType = entity.ProcurementInternalStock
			if li.QuantityOrdered < qty {
				li.QuantityOrdered = qty
			}
			if li.QuantityDelivered < qty {
				li.QuantityDelivered = qty
			}
			li.DeliveryStatus = entity.ItemDelivered
		}
		normalized[i] = li
	}
	return normalized
}

// synthesizeItems rebuilds bucket rows from the order's own positions
// when no line item resolves to the bucket's supplier anymore. An order
// that already went out counts its recorded quantities as ordered.
func synthesizeItems(order *entity.SupplierOrder, itemsByID map[string]*entity.LineItem) []entity.LineItem {
	sent := order.SentAt != nil || entity.IsSentOrLater(order.Status)
	out := make([]entity.LineItem, 0, len(order.Items))
	for i := range order.Items {
		oi := &order.Items[i]

		if oi.LineItemID != nil {
			if li, ok := itemsByID[*oi.LineItemID]; ok {
				merged := *li
				merged.Description = firstNonEmpty(oi.Description, li.Description)
				merged.ModelNumber = firstNonEmpty(oi.ModelNumber, li.ModelNumber)
				merged.Manufacturer = firstNonEmpty(oi.Manufacturer, li.Manufacturer)
				merged.Unit = firstNonEmpty(oi.Unit, li.Unit)
				if oi.Quantity > merged.Quantity {
					merged.Quantity = oi.Quantity
				}
				if sent && oi.Quantity > merged.QuantityOrdered {
					merged.QuantityOrdered = oi.Quantity
				}
				out = append(out, merged)
				continue
			}
		}

		qty := oi.Quantity
		if qty < 1 {
			qty = 1
		}
		synthetic := entity.LineItem{
			ID:              fmt.Sprintf("%s:item:%s", order.ID, oi.ID),
			ProjectID:       order.ProjectID,
			Description:     oi.Description,
			ModelNumber:     oi.ModelNumber,
			Manufacturer:    oi.Manufacturer,
			Unit:            firstNonEmpty(oi.Unit, "Stk"),
			Quantity:        qty,
			ProcurementType: entity.ProcurementExternalOrder,
			DeliveryStatus:  entity.ItemNotOrdered,
		}
		if sent {
			synthetic.QuantityOrdered = qty
			synthetic.DeliveryStatus = entity.ItemOrdered
		}
		out = append(out, synthetic)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type accumulator struct {
	projectID  string
	supplierID string
	items      []entity.LineItem
	order      *entity.SupplierOrder
}

// Aggregate reconciles items and orders into one bucket per (project,
// supplier) pair plus one missing-supplier bucket per project, each
// classified into its workflow queue. The accumulation is commutative:
// any input order yields the same bucket set.
func Aggregate(in Input, now time.Time, th Thresholds) []Bucket {
	projectByID := make(map[string]*entity.Project, len(in.Projects))
	for i := range in.Projects {
		projectByID[in.Projects[i].ID] = &in.Projects[i]
	}
	supplierByID := make(map[string]*entity.Supplier, len(in.Suppliers))
	for i := range in.Suppliers {
		supplierByID[in.Suppliers[i].ID] = &in.Suppliers[i]
	}
	reservationByProject := make(map[string]*entity.InstallationReservation, len(in.Reservations))
	for i := range in.Reservations {
		reservationByProject[in.Reservations[i].ProjectID] = &in.Reservations[i]
	}
	itemsByID := make(map[string]*entity.LineItem, len(in.Items))
	for i := range in.Items {
		itemsByID[in.Items[i].ID] = &in.Items[i]
	}

	// Items linked to a live order stay out of the missing-supplier
	// bucket even when their supplier mapping drifted away.
	linkedToLiveOrder := make(map[string]bool)
	for i := range in.Orders {
		order := &in.Orders[i]
		if order.Status == entity.OrderCancelled {
			continue
		}
		for j := range order.Items {
			if id := order.Items[j].LineItemID; id != nil && *id != "" {
				linkedToLiveOrder[*id] = true
			}
		}
	}

	accs := make(map[string]*accumulator)
	missingByProject := make(map[string][]entity.LineItem)
	ensure := func(projectID, supplierID string) *accumulator {
		key := projectID + ":" + supplierID
		acc, ok := accs[key]
		if !ok {
			acc = &accumulator{projectID: projectID, supplierID: supplierID}
			accs[key] = acc
		}
		return acc
	}

	for i := range in.Items {
		li := in.Items[i]
		if li.ProjectID == "" {
			continue
		}
		if resolved := li.ResolvedSupplierID(); resolved != nil {
			acc := ensure(li.ProjectID, *resolved)
			acc.items = append(acc.items, li)
			continue
		}
		if linkedToLiveOrder[li.ID] {
			continue
		}
		missingByProject[li.ProjectID] = append(missingByProject[li.ProjectID], li)
	}

	for i := range in.Orders {
		order := &in.Orders[i]
		if order.SupplierID == nil || *order.SupplierID == "" {
			continue
		}
		acc := ensure(order.ProjectID, *order.SupplierID)
		if shouldReplaceOrder(acc.order, order) {
			acc.order = order
		}
	}

	buckets := make([]Bucket, 0, len(accs)+len(missingByProject))

	for _, acc := range accs {
		project := projectByID[acc.projectID]
		supplier := supplierByID[acc.supplierID]
		if project == nil && acc.order == nil {
			continue
		}

		items := acc.items
		if len(items) == 0 && acc.order != nil && len(acc.order.Items) > 0 {
			items = synthesizeItems(acc.order, itemsByID)
		}

		supplierName := fmt.Sprintf("Lieferant %s", strings.ToUpper(shortID(acc.supplierID)))
		orderEmail := ""
		if supplier != nil {
			supplierName = supplier.Name
			orderEmail = supplier.OrderRecipient()
		} else if acc.order != nil && acc.order.Supplier != nil {
			supplierName = acc.order.Supplier.Name
			orderEmail = acc.order.Supplier.OrderRecipient()
		}
		items = normalizeForInternalStock(items, supplierName)

		total, openOrder, openDelivery, external, stock, reservationOnly := summarize(items)

		b := Bucket{
			Key:                  acc.projectID + ":" + acc.supplierID,
			Kind:                 BucketSupplier,
			ProjectID:            acc.projectID,
			SupplierID:           acc.supplierID,
			SupplierName:         supplierName,
			SupplierOrderEmail:   orderEmail,
			Order:                acc.order,
			Items:                items,
			TotalItems:           total,
			OpenOrderItems:       openOrder,
			OpenDeliveryItems:    openDelivery,
			ExternalOrderItems:   external,
			InternalStockItems:   stock,
			ReservationOnlyItems: reservationOnly,
		}
		applyProjectFields(&b, project)
		b.DaysUntilReadiness = DaysUntil(b.ReadinessDate, now)

		snapshot := Snapshot{
			OpenOrderItems:    openOrder,
			OpenDeliveryItems: openDelivery,
			ReadinessDate:     b.ReadinessDate,
			NoOrderNeeded:     external == 0,
		}
		// Pure stock/reservation buckets never need a supplier order;
		// their order fields stay out of the classification.
		if external > 0 && acc.order != nil {
			snapshot.HasOrder = true
			snapshot.OrderStatus = acc.order.Status
			snapshot.SentAt = acc.order.SentAt
			snapshot.ABNumber = acc.order.ABNumber
			snapshot.ABReceivedAt = acc.order.ABReceivedAt
			snapshot.ABConfirmedDate = acc.order.ConfirmedDate
			snapshot.DeliveryNoteNo = acc.order.DeliveryNoteNo
			snapshot.BookedAt = acc.order.GoodsReceiptBookedAt
		}
		if project != nil {
			snapshot.Completed = project.CompletionDate != nil || project.Status == entity.ProjectStatusCompleted
		}
		reservation := reservationByProject[acc.projectID]
		if reservation != nil {
			b.ReservationStatus = reservation.Status
		}
		if b.DeliveryType != entity.DeliveryTypePickup && reservationNeeded(reservation) {
			snapshot.ReservationOpen = true
		}

		decision := Classify(snapshot, now, th)
		b.Queue = decision.Queue
		b.QueueLabel = decision.Queue.Meta().Label
		b.NextAction = decision.NextAction
		if acc.order != nil {
			b.AbTiming = AbTimingStatus(acc.order.ConfirmedDate, acc.order.GoodsReceiptBookedAt)
		} else {
			b.AbTiming = AbTimingOpen
		}

		buckets = append(buckets, b)
	}

	for projectID, unresolved := range missingByProject {
		project := projectByID[projectID]
		total, openOrder, openDelivery, external, stock, reservationOnly := summarize(unresolved)

		b := Bucket{
			Key:                  projectID + ":missing-supplier",
			Kind:                 BucketMissingSupplier,
			ProjectID:            projectID,
			SupplierName:         "Lieferant fehlt",
			Items:                unresolved,
			TotalItems:           total,
			OpenOrderItems:       openOrder,
			OpenDeliveryItems:    openDelivery,
			ExternalOrderItems:   external,
			InternalStockItems:   stock,
			ReservationOnlyItems: reservationOnly,
		}
		applyProjectFields(&b, project)
		b.DaysUntilReadiness = DaysUntil(b.ReadinessDate, now)

		decision := Classify(Snapshot{SupplierMissing: true}, now, th)
		b.Queue = decision.Queue
		b.QueueLabel = decision.Queue.Meta().Label
		b.NextAction = decision.NextAction
		b.AbTiming = AbTimingOpen

		buckets = append(buckets, b)
	}

	SortBuckets(buckets)
	return buckets
}

func reservationNeeded(reservation *entity.InstallationReservation) bool {
	return reservation == nil || reservation.Status != entity.ReservationStatusConfirmed
}

func applyProjectFields(b *Bucket, project *entity.Project) {
	b.ProjectOrderNumber = "—"
	b.CustomerName = "Unbekannt"
	b.DeliveryType = entity.DeliveryTypeDelivery
	if project == nil {
		return
	}
	if project.OrderNumber != "" {
		b.ProjectOrderNumber = project.OrderNumber
	}
	if project.CustomerName != "" {
		b.CustomerName = project.CustomerName
	}
	if project.DeliveryType != "" {
		b.DeliveryType = project.DeliveryType
	}
	b.ReadinessDate = project.ReadinessDate()
}

// SortBuckets orders buckets for list display: queue rank first, then
// readiness urgency (buckets without a date last), then customer name.
// The order is deterministic for stable pagination.
func SortBuckets(buckets []Bucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		a, b := &buckets[i], &buckets[j]
		ar, br := a.Queue.Meta().Rank, b.Queue.Meta().Rank
		if ar != br {
			return ar < br
		}
		ad, bd := readinessRank(a), readinessRank(b)
		if ad != bd {
			return ad < bd
		}
		if a.CustomerName != b.CustomerName {
			return a.CustomerName < b.CustomerName
		}
		return a.Key < b.Key
	})
}

func readinessRank(b *Bucket) int {
	if b.DaysUntilReadiness == nil {
		return int(^uint(0) >> 1)
	}
	return *b.DaysUntilReadiness
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
