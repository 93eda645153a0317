package workflow

import (
	"strings"
	"time"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
)

// Queue is the single workflow stage a (project, supplier) bucket sits
// in. The constants are listed in priority order; classification walks
// them top to bottom and the first match wins.
type Queue string

const (
	QueueLieferantFehlt    Queue = "lieferant_fehlt"
	QueueBrennt            Queue = "brennt"
	QueueZuBestellen       Queue = "zu_bestellen"
	QueueABFehlt           Queue = "ab_fehlt"
	QueueWareneingangOffen Queue = "wareneingang_offen"
	QueueReservierungOffen Queue = "reservierung_offen"
	QueueMontagebereit     Queue = "montagebereit"
	QueueErledigt          Queue = "erledigt"
)

// QueueMeta carries the display label and the fixed sort rank of a queue.
type QueueMeta struct {
	Label string
	Rank  int
}

var queueMeta = map[Queue]QueueMeta{
	QueueLieferantFehlt:    {Label: "Lieferant fehlt", Rank: 0},
	QueueBrennt:            {Label: "Brennt", Rank: 1},
	QueueZuBestellen:       {Label: "Zu bestellen", Rank: 2},
	QueueABFehlt:           {Label: "AB fehlt", Rank: 3},
	QueueWareneingangOffen: {Label: "Wareneingang offen", Rank: 4},
	QueueReservierungOffen: {Label: "Reservierung offen", Rank: 5},
	QueueMontagebereit:     {Label: "Montagebereit", Rank: 6},
	QueueErledigt:          {Label: "Erledigt", Rank: 7},
}

// Meta returns label and rank for q. Unknown queues rank last.
func (q Queue) Meta() QueueMeta {
	if m, ok := queueMeta[q]; ok {
		return m
	}
	return QueueMeta{Label: string(q), Rank: len(queueMeta)}
}

// ToParam renders the queue as a URL path/query segment.
func (q Queue) ToParam() string {
	return strings.ReplaceAll(string(q), "_", "-")
}

// QueueFromParam parses a URL segment back into a queue. Returns false
// for anything that is not a known queue.
func QueueFromParam(value string) (Queue, bool) {
	normalized := Queue(strings.ReplaceAll(strings.TrimSpace(strings.ToLower(value)), "-", "_"))
	_, ok := queueMeta[normalized]
	return normalized, ok
}

// AbTiming compares the AB-confirmed delivery date with the actual
// goods-receipt booking.
type AbTiming string

const (
	AbTimingOpen   AbTiming = "open"
	AbTimingOnTime AbTiming = "on_time"
	AbTimingLate   AbTiming = "late"
)

// Thresholds configures the urgency windows of the classifier. Both are
// deployment configuration, injected rather than hard-coded.
type Thresholds struct {
	// UrgentDays: readiness within this many days makes any open bucket
	// urgent.
	UrgentDays int
	// OrderingWindowDays: readiness within this many days makes a bucket
	// with unordered items urgent.
	OrderingWindowDays int
}

// DefaultThresholds mirrors the values the planning team works with.
func DefaultThresholds() Thresholds {
	return Thresholds{UrgentDays: 2, OrderingWindowDays: 7}
}

// Snapshot is everything the classifier needs about one bucket. It is a
// plain value so classification stays a pure function of its input and
// the supplied "today".
type Snapshot struct {
	SupplierMissing bool

	HasOrder    bool
	OrderStatus string
	SentAt      *time.Time

	ABNumber        string
	ABReceivedAt    *time.Time
	ABConfirmedDate *time.Time

	DeliveryNoteNo string
	GoodsReceiptID string
	BookedAt       *time.Time

	ReadinessDate *time.Time

	OpenOrderItems    int
	OpenDeliveryItems int

	// NoOrderNeeded marks buckets fulfilled without a supplier order
	// (pure internal-stock or reservation positions).
	NoOrderNeeded bool

	// ReservationOpen is true when the project needs an installer
	// reservation that has not been confirmed yet.
	ReservationOpen bool

	// Completed is true once the installation or pickup itself is done.
	Completed bool
}

// Decision is the classification result for one bucket.
type Decision struct {
	Queue      Queue
	NextAction string
}

// Midnight truncates t to local midnight.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysUntil returns the whole calendar days from now until target. Both
// dates are re-anchored at UTC midnight before subtracting so a DST
// transition (23- or 25-hour day) cannot shift the count. Nil when there
// is no target date.
func DaysUntil(target *time.Time, now time.Time) *int {
	if target == nil {
		return nil
	}
	to := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(to.Sub(from).Hours() / 24)
	return &days
}

// AbTimingStatus derives whether goods arrived on time relative to the
// supplier-confirmed delivery date. Open until both dates exist.
func AbTimingStatus(confirmed, booked *time.Time) AbTiming {
	if confirmed == nil || booked == nil {
		return AbTimingOpen
	}
	if Midnight(*booked).After(Midnight(*confirmed)) {
		return AbTimingLate
	}
	return AbTimingOnTime
}

// Classify maps a bucket snapshot to exactly one queue plus a German
// next-action hint for the planner. The function is total: any state
// the branches do not recognize lands in the earliest queue that is
// still unresolved for it.
func Classify(s Snapshot, now time.Time, th Thresholds) Decision {
	if s.SupplierMissing {
		return Decision{
			Queue:      QueueLieferantFehlt,
			NextAction: "Lieferant über Artikelzuordnung festlegen, dann Bestellung erzeugen.",
		}
	}

	hasDeliveryNote := s.DeliveryNoteNo != "" || s.OrderStatus == entity.OrderDeliveryNoteReceived
	hasGoodsReceipt := s.GoodsReceiptID != "" || s.BookedAt != nil ||
		s.OrderStatus == entity.OrderGoodsReceiptBooked ||
		s.OrderStatus == entity.OrderReadyForInstallation
	hasAB := s.ABReceivedAt != nil || s.ABNumber != "" || s.ABConfirmedDate != nil ||
		s.OrderStatus == entity.OrderABReceived ||
		hasDeliveryNote || hasGoodsReceipt
	orderSent := s.SentAt != nil || entity.IsSentOrLater(s.OrderStatus)

	days := DaysUntil(s.ReadinessDate, now)
	installClose := days != nil && *days <= th.UrgentDays
	orderingCritical := days != nil && *days <= th.OrderingWindowDays

	abOverdue := s.ABConfirmedDate != nil &&
		Midnight(*s.ABConfirmedDate).Before(Midnight(now)) &&
		!hasGoodsReceipt &&
		s.OpenDeliveryItems > 0

	if abOverdue ||
		(installClose && (s.OpenOrderItems > 0 || s.OpenDeliveryItems > 0 || (!orderSent && !s.NoOrderNeeded))) ||
		(orderingCritical && s.OpenOrderItems > 0) {
		return Decision{
			Queue:      QueueBrennt,
			NextAction: "Sofort Eskalation: Liefertermin und Wareneingang mit Lieferant klären.",
		}
	}

	if !s.NoOrderNeeded && (!s.HasOrder || !orderSent || s.OrderStatus == entity.OrderDraft || s.OpenOrderItems > 0) {
		next := "Bestell-Bucket aus Positionen erzeugen und Bestellung senden."
		if s.HasOrder {
			next = "Bestellung prüfen und senden."
		}
		return Decision{Queue: QueueZuBestellen, NextAction: next}
	}

	if !s.NoOrderNeeded && !hasAB {
		return Decision{
			Queue:      QueueABFehlt,
			NextAction: "AB erfassen (AB-Nummer + bestätigter Liefertermin + Abweichungen).",
		}
	}

	if (!s.NoOrderNeeded && (!hasDeliveryNote || !hasGoodsReceipt)) || s.OpenDeliveryItems > 0 {
		return Decision{
			Queue:      QueueWareneingangOffen,
			NextAction: "Lieferschein zuordnen und Wareneingang idempotent buchen.",
		}
	}

	if s.ReservationOpen {
		return Decision{
			Queue:      QueueReservierungOffen,
			NextAction: "Montagetermin mit Monteur reservieren und bestätigen lassen.",
		}
	}

	if !s.Completed {
		return Decision{
			Queue:      QueueMontagebereit,
			NextAction: "Keine Aktion: Material ist montagebereit.",
		}
	}

	return Decision{
		Queue:      QueueErledigt,
		NextAction: "Abgeschlossen.",
	}
}
