package workflow

import (
	"math"
	"sort"
	"time"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
)

// orderedByStatus: delivery statuses that imply the item was ordered at
// some point, even when the recorded ordered quantity drifted.
var orderedByStatus = map[string]bool{
	entity.ItemOrdered:            true,
	entity.ItemPartiallyDelivered: true,
	entity.ItemDelivered:          true,
	entity.ItemMissing:            true,
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// normalizeQuantity treats legacy zero-quantity rows as a single unit.
func normalizeQuantity(v float64) float64 {
	return math.Max(1, nonNegative(v))
}

// ResolveItemDeliveryStatus recomputes an item's delivery status from its
// quantities. "missing" is sticky: only a full delivery clears it.
func ResolveItemDeliveryStatus(quantity, quantityOrdered, quantityDelivered float64, currentStatus string) string {
	qty := normalizeQuantity(quantity)
	delivered := nonNegative(quantityDelivered)
	ordered := math.Max(delivered, nonNegative(quantityOrdered))

	switch {
	case delivered >= qty:
		return entity.ItemDelivered
	case currentStatus == entity.ItemMissing:
		return entity.ItemMissing
	case delivered > 0:
		return entity.ItemPartiallyDelivered
	case ordered > 0 || orderedByStatus[currentStatus]:
		return entity.ItemOrdered
	default:
		return entity.ItemNotOrdered
	}
}

// ItemSnapshot holds the reconciled quantities for one line item.
type ItemSnapshot struct {
	Quantity          float64
	OrderedQuantity   float64
	DeliveredQuantity float64
	OpenOrderQty      float64
	OpenDeliveryQty   float64
	Status            string
	FullyOrdered      bool
	FullyDelivered    bool
}

// ItemSnapshotOf reconciles a line item's recorded quantities with its
// status flag. The ordered quantity never drops below what the status or
// the delivered quantity already proves.
func ItemSnapshotOf(li *entity.LineItem) ItemSnapshot {
	qty := normalizeQuantity(li.Quantity)
	delivered := nonNegative(li.QuantityDelivered)

	var statusImplied float64
	if orderedByStatus[li.DeliveryStatus] {
		statusImplied = qty
	}
	ordered := math.Max(math.Max(delivered, nonNegative(li.QuantityOrdered)), statusImplied)

	openOrder := math.Max(0, round2(qty-ordered))
	openDelivery := math.Max(0, round2(qty-delivered))

	return ItemSnapshot{
		Quantity:          qty,
		OrderedQuantity:   round2(ordered),
		DeliveredQuantity: round2(delivered),
		OpenOrderQty:      openOrder,
		OpenDeliveryQty:   openDelivery,
		Status:            ResolveItemDeliveryStatus(qty, ordered, delivered, li.DeliveryStatus),
		FullyOrdered:      openOrder <= 0,
		FullyDelivered:    openDelivery <= 0,
	}
}

// ProjectDeliveryState is the project-level aggregate derived from all
// line items.
type ProjectDeliveryState struct {
	Status       string
	AllDelivered bool
}

// DeriveProjectDeliveryStatus aggregates item states to the project
// level. Internal-stock and reservation positions are fulfilled without
// a supplier order, so they count as delivered here.
func DeriveProjectDeliveryStatus(items []entity.LineItem) ProjectDeliveryState {
	allDelivered := true
	allOrdered := true
	anyOrdered := false
	anyPartial := false
	considered := 0

	for i := range items {
		li := &items[i]
		if li.IsStockOrReservation() {
			continue
		}
		considered++

		qty := normalizeQuantity(li.Quantity)
		delivered := nonNegative(li.QuantityDelivered)

		if !(li.DeliveryStatus == entity.ItemDelivered && delivered >= qty) {
			allDelivered = false
		}
		if li.DeliveryStatus == entity.ItemPartiallyDelivered || (delivered > 0 && delivered < qty) {
			anyPartial = true
		}
		if li.DeliveryStatus == entity.ItemNotOrdered {
			allOrdered = false
		} else {
			anyOrdered = true
		}
	}

	if considered == 0 {
		return ProjectDeliveryState{Status: entity.ProjectDeliveryFullyDelivered, AllDelivered: true}
	}

	switch {
	case allDelivered:
		return ProjectDeliveryState{Status: entity.ProjectDeliveryFullyDelivered, AllDelivered: true}
	case anyPartial:
		return ProjectDeliveryState{Status: entity.ProjectDeliveryPartiallyDelivered}
	case allOrdered:
		return ProjectDeliveryState{Status: entity.ProjectDeliveryFullyOrdered}
	case anyOrdered:
		return ProjectDeliveryState{Status: entity.ProjectDeliveryPartiallyOrdered}
	default:
		return ProjectDeliveryState{Status: entity.ProjectDeliveryNotOrdered}
	}
}

// CandidateItemIDs picks the line items a supplier order covers when the
// order is placed: external-order items resolved to the supplier, items
// without any resolvable supplier, and items explicitly linked to the
// order positions.
func CandidateItemIDs(items []entity.LineItem, supplierID string, linked map[string]bool) map[string]bool {
	candidates := make(map[string]bool)
	for i := range items {
		li := &items[i]
		if li.ProcurementType != entity.ProcurementExternalOrder && li.ProcurementType != "" {
			continue
		}
		resolved := li.ResolvedSupplierID()
		switch {
		case linked[li.ID]:
			candidates[li.ID] = true
		case resolved == nil:
			candidates[li.ID] = true
		case *resolved == supplierID:
			candidates[li.ID] = true
		}
	}
	return candidates
}

// MaterialRiskLevel grades how endangered a project's installation date
// is by its material situation.
type MaterialRiskLevel string

const (
	RiskCritical MaterialRiskLevel = "critical"
	RiskWarning  MaterialRiskLevel = "warning"
	RiskOK       MaterialRiskLevel = "ok"
)

// ProjectMaterialSnapshot summarizes a project's material readiness for
// the planning dashboard.
type ProjectMaterialSnapshot struct {
	ProjectID           string            `json:"project_id"`
	OrderNumber         string            `json:"order_number"`
	CustomerName        string            `json:"customer_name"`
	InstallationDate    time.Time         `json:"installation_date"`
	DaysUntil           int               `json:"days_until_installation"`
	TotalItems          int               `json:"total_items"`
	FullyOrderedItems   int               `json:"fully_ordered_items"`
	FullyDeliveredItems int               `json:"fully_delivered_items"`
	OpenOrderItems      int               `json:"open_order_items"`
	OpenDeliveryItems   int               `json:"open_delivery_items"`
	MissingItems        int               `json:"missing_items"`
	RiskLevel           MaterialRiskLevel `json:"risk_level"`
}

// MaterialSnapshotOf computes the risk snapshot for one project. Returns
// false when the project has no installation date to measure against.
func MaterialSnapshotOf(project *entity.Project, items []entity.LineItem, now time.Time, th Thresholds) (ProjectMaterialSnapshot, bool) {
	if project.InstallationDate == nil {
		return ProjectMaterialSnapshot{}, false
	}

	days := DaysUntil(project.InstallationDate, now)

	snap := ProjectMaterialSnapshot{
		ProjectID:        project.ID,
		OrderNumber:      project.OrderNumber,
		CustomerName:     project.CustomerName,
		InstallationDate: Midnight(*project.InstallationDate),
		DaysUntil:        *days,
		TotalItems:       len(items),
	}

	for i := range items {
		li := &items[i]
		is := ItemSnapshotOf(li)
		ready := li.IsStockOrReservation()
		if is.FullyOrdered || ready {
			snap.FullyOrderedItems++
		}
		if is.FullyDelivered || ready {
			snap.FullyDeliveredItems++
		}
		if is.Status == entity.ItemMissing {
			snap.MissingItems++
		}
	}
	snap.OpenOrderItems = snap.TotalItems - snap.FullyOrderedItems
	snap.OpenDeliveryItems = snap.TotalItems - snap.FullyDeliveredItems

	switch {
	case snap.MissingItems > 0,
		snap.DaysUntil <= th.UrgentDays && snap.OpenDeliveryItems > 0,
		snap.DaysUntil <= th.OrderingWindowDays && snap.OpenOrderItems > 0:
		snap.RiskLevel = RiskCritical
	case snap.OpenOrderItems > 0, snap.OpenDeliveryItems > 0, snap.TotalItems == 0:
		snap.RiskLevel = RiskWarning
	default:
		snap.RiskLevel = RiskOK
	}

	return snap, true
}

var riskRank = map[MaterialRiskLevel]int{
	RiskCritical: 0,
	RiskWarning:  1,
	RiskOK:       2,
}

// SortMaterialSnapshots orders snapshots by severity, then urgency,
// then customer name.
func SortMaterialSnapshots(snapshots []ProjectMaterialSnapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		a, b := &snapshots[i], &snapshots[j]
		if riskRank[a.RiskLevel] != riskRank[b.RiskLevel] {
			return riskRank[a.RiskLevel] < riskRank[b.RiskLevel]
		}
		if a.DaysUntil != b.DaysUntil {
			return a.DaysUntil < b.DaysUntil
		}
		return a.CustomerName < b.CustomerName
	})
}
