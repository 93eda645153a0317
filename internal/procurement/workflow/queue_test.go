package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.Local)

func daysFromNow(days int) *time.Time {
	d := testNow.AddDate(0, 0, days)
	return &d
}

func classify(t *testing.T, s Snapshot) Decision {
	t.Helper()
	return Classify(s, testNow, DefaultThresholds())
}

func TestClassifySupplierMissingWinsOverEverything(t *testing.T) {
	d := classify(t, Snapshot{
		SupplierMissing:   true,
		ReadinessDate:     daysFromNow(1),
		OpenOrderItems:    5,
		OpenDeliveryItems: 5,
	})
	assert.Equal(t, QueueLieferantFehlt, d.Queue)
}

func TestClassifyABOverdueIsUrgent(t *testing.T) {
	confirmed := testNow.AddDate(0, 0, -3)
	d := classify(t, Snapshot{
		HasOrder:          true,
		OrderStatus:       entity.OrderABReceived,
		SentAt:            daysFromNow(-10),
		ABConfirmedDate:   &confirmed,
		ReadinessDate:     daysFromNow(30),
		OpenDeliveryItems: 2,
	})
	assert.Equal(t, QueueBrennt, d.Queue)
}

func TestClassifyABOverdueIgnoredAfterGoodsReceipt(t *testing.T) {
	confirmed := testNow.AddDate(0, 0, -3)
	booked := testNow.AddDate(0, 0, -1)
	d := classify(t, Snapshot{
		HasOrder:        true,
		OrderStatus:     entity.OrderGoodsReceiptBooked,
		SentAt:          daysFromNow(-10),
		ABConfirmedDate: &confirmed,
		BookedAt:        &booked,
		DeliveryNoteNo:  "LS-100",
		ReadinessDate:   daysFromNow(30),
	})
	assert.NotEqual(t, QueueBrennt, d.Queue)
}

func TestClassifyDraftOrderCloseToReadinessIsUrgent(t *testing.T) {
	// Readiness in two days with only a draft order burns even when no
	// item counts are open anymore.
	d := classify(t, Snapshot{
		HasOrder:      true,
		OrderStatus:   entity.OrderDraft,
		ReadinessDate: daysFromNow(2),
	})
	assert.Equal(t, QueueBrennt, d.Queue)
}

func TestClassifyUnorderedInsideOrderingWindowIsUrgent(t *testing.T) {
	d := classify(t, Snapshot{
		HasOrder:       true,
		OrderStatus:    entity.OrderDraft,
		ReadinessDate:  daysFromNow(6),
		OpenOrderItems: 3,
	})
	assert.Equal(t, QueueBrennt, d.Queue)
}

func TestClassifyUnorderedOutsideWindowIsZuBestellen(t *testing.T) {
	d := classify(t, Snapshot{
		HasOrder:       true,
		OrderStatus:    entity.OrderDraft,
		ReadinessDate:  daysFromNow(20),
		OpenOrderItems: 3,
	})
	assert.Equal(t, QueueZuBestellen, d.Queue)
}

func TestClassifyNoOrderIsZuBestellen(t *testing.T) {
	d := classify(t, Snapshot{
		ReadinessDate:  daysFromNow(20),
		OpenOrderItems: 1,
	})
	assert.Equal(t, QueueZuBestellen, d.Queue)
}

func TestClassifySentWithoutABIsABFehlt(t *testing.T) {
	d := classify(t, Snapshot{
		HasOrder:      true,
		OrderStatus:   entity.OrderSent,
		SentAt:        daysFromNow(-5),
		ReadinessDate: daysFromNow(20),
	})
	assert.Equal(t, QueueABFehlt, d.Queue)
}

func TestClassifyABWithoutReceiptIsWareneingangOffen(t *testing.T) {
	confirmed := testNow.AddDate(0, 0, 5)
	d := classify(t, Snapshot{
		HasOrder:        true,
		OrderStatus:     entity.OrderABReceived,
		SentAt:          daysFromNow(-5),
		ABNumber:        "AB-123",
		ABConfirmedDate: &confirmed,
		ReadinessDate:   daysFromNow(20),
	})
	assert.Equal(t, QueueWareneingangOffen, d.Queue)
}

func TestClassifyBookedButReservationOpen(t *testing.T) {
	booked := testNow.AddDate(0, 0, -1)
	d := classify(t, Snapshot{
		HasOrder:        true,
		OrderStatus:     entity.OrderGoodsReceiptBooked,
		SentAt:          daysFromNow(-10),
		ABNumber:        "AB-123",
		DeliveryNoteNo:  "LS-9",
		GoodsReceiptID:  "gr-1",
		BookedAt:        &booked,
		ReadinessDate:   daysFromNow(20),
		ReservationOpen: true,
	})
	assert.Equal(t, QueueReservierungOffen, d.Queue)
}

func TestClassifyEverythingDoneButNotInstalled(t *testing.T) {
	booked := testNow.AddDate(0, 0, -1)
	d := classify(t, Snapshot{
		HasOrder:       true,
		OrderStatus:    entity.OrderReadyForInstallation,
		SentAt:         daysFromNow(-10),
		ABNumber:       "AB-123",
		DeliveryNoteNo: "LS-9",
		GoodsReceiptID: "gr-1",
		BookedAt:       &booked,
		ReadinessDate:  daysFromNow(5),
	})
	assert.Equal(t, QueueMontagebereit, d.Queue)
}

func TestClassifyStockOnlyBucketSkipsOrderStages(t *testing.T) {
	// A bucket fulfilled entirely from stock never asks for an order,
	// an AB, or a goods receipt, even right before installation.
	d := classify(t, Snapshot{
		NoOrderNeeded: true,
		ReadinessDate: daysFromNow(1),
	})
	assert.Equal(t, QueueMontagebereit, d.Queue)
}

func TestClassifyCompletedIsErledigt(t *testing.T) {
	booked := testNow.AddDate(0, 0, -10)
	d := classify(t, Snapshot{
		HasOrder:       true,
		OrderStatus:    entity.OrderReadyForInstallation,
		SentAt:         daysFromNow(-20),
		ABNumber:       "AB-123",
		DeliveryNoteNo: "LS-9",
		GoodsReceiptID: "gr-1",
		BookedAt:       &booked,
		ReadinessDate:  daysFromNow(-3),
		Completed:      true,
	})
	assert.Equal(t, QueueErledigt, d.Queue)
}

func TestClassifyIsTotal(t *testing.T) {
	// Arbitrary contradictory snapshots still land in exactly one queue.
	snapshots := []Snapshot{
		{},
		{HasOrder: true},
		{OrderStatus: "garbage-status"},
		{HasOrder: true, OrderStatus: entity.OrderCancelled, OpenDeliveryItems: -1},
		{SupplierMissing: true, Completed: true},
	}
	for _, s := range snapshots {
		d := Classify(s, testNow, DefaultThresholds())
		_, known := queueMeta[d.Queue]
		assert.True(t, known, "snapshot %+v landed in unknown queue %q", s, d.Queue)
		assert.NotEmpty(t, d.NextAction)
	}
}

func TestAbTimingStatus(t *testing.T) {
	confirmed := time.Date(2025, 3, 10, 23, 0, 0, 0, time.Local)

	assert.Equal(t, AbTimingOpen, AbTimingStatus(&confirmed, nil))
	assert.Equal(t, AbTimingOpen, AbTimingStatus(nil, &confirmed))

	sameDay := time.Date(2025, 3, 10, 1, 0, 0, 0, time.Local)
	assert.Equal(t, AbTimingOnTime, AbTimingStatus(&confirmed, &sameDay))

	early := confirmed.AddDate(0, 0, -2)
	assert.Equal(t, AbTimingOnTime, AbTimingStatus(&confirmed, &early))

	late := confirmed.AddDate(0, 0, 1)
	assert.Equal(t, AbTimingLate, AbTimingStatus(&confirmed, &late))
}

func TestDaysUntilNormalizesToMidnight(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 59, 0, 0, time.Local)
	target := time.Date(2025, 3, 12, 0, 1, 0, 0, time.Local)

	days := DaysUntil(&target, now)
	if assert.NotNil(t, days) {
		assert.Equal(t, 2, *days)
	}

	assert.Nil(t, DaysUntil(nil, now))
}

func TestDaysUntilAcrossDSTTransition(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 2025-03-30 is the spring-forward day in Berlin: only 23 hours long.
	// Counting must stay calendar-based, not elapsed-hours-based.
	now := time.Date(2025, 3, 29, 12, 0, 0, 0, berlin)
	target := time.Date(2025, 3, 30, 12, 0, 0, 0, berlin)
	days := DaysUntil(&target, now)
	if assert.NotNil(t, days) {
		assert.Equal(t, 1, *days)
	}

	// Same across the fall-back day (25 hours).
	now = time.Date(2025, 10, 25, 12, 0, 0, 0, berlin)
	target = time.Date(2025, 10, 26, 12, 0, 0, 0, berlin)
	days = DaysUntil(&target, now)
	if assert.NotNil(t, days) {
		assert.Equal(t, 1, *days)
	}
}

func TestQueueFromParam(t *testing.T) {
	q, ok := QueueFromParam("zu_bestellen")
	assert.True(t, ok)
	assert.Equal(t, QueueZuBestellen, q)

	_, ok = QueueFromParam("nope")
	assert.False(t, ok)
}

func TestQueueRanksAreStrictlyOrdered(t *testing.T) {
	order := []Queue{
		QueueLieferantFehlt,
		QueueBrennt,
		QueueZuBestellen,
		QueueABFehlt,
		QueueWareneingangOffen,
		QueueReservierungOffen,
		QueueMontagebereit,
		QueueErledigt,
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1].Meta().Rank, order[i].Meta().Rank)
	}
}
