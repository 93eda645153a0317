package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendOrderKeyIsPure(t *testing.T) {
	sentAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	a := SendOrderKey("ord-1", "einkauf@miele.example", &sentAt)
	b := SendOrderKey("ord-1", "einkauf@miele.example", &sentAt)
	assert.Equal(t, a, b)
}

func TestSendOrderKeyNormalizesRecipient(t *testing.T) {
	a := SendOrderKey("ord-1", "Einkauf@Miele.example", nil)
	b := SendOrderKey("ord-1", "  einkauf@miele.example ", nil)
	assert.Equal(t, a, b)
}

func TestSendOrderKeyChangesWithIntent(t *testing.T) {
	sentAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	later := sentAt.Add(48 * time.Hour)

	initial := SendOrderKey("ord-1", "a@b.example", nil)
	first := SendOrderKey("ord-1", "a@b.example", &sentAt)
	resend := SendOrderKey("ord-1", "a@b.example", &later)
	other := SendOrderKey("ord-1", "c@d.example", &sentAt)

	keys := []string{initial, first, resend, other}
	seen := make(map[string]bool)
	for _, k := range keys {
		assert.False(t, seen[k], "key %q derived twice for different intents", k)
		seen[k] = true
	}
}

func TestSendOrderKeyNormalizesTimezone(t *testing.T) {
	utc := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	berlin := utc.In(time.FixedZone("CET", 3600))

	assert.Equal(t,
		SendOrderKey("ord-1", "a@b.example", &utc),
		SendOrderKey("ord-1", "a@b.example", &berlin),
	)
}

func TestMarkOrderedKeyDistinctFromSendKey(t *testing.T) {
	assert.NotEqual(t,
		SendOrderKey("ord-1", "", nil),
		MarkOrderedKey("ord-1", nil),
	)
}

func TestGoodsReceiptKeyIgnoresPositionOrder(t *testing.T) {
	a := GoodsReceiptKey("ord-1", []ReceiptPosition{
		{LineItemID: "it-1", Quantity: 2},
		{LineItemID: "it-2", Quantity: 1.5},
	})
	b := GoodsReceiptKey("ord-1", []ReceiptPosition{
		{LineItemID: "it-2", Quantity: 1.5},
		{LineItemID: "it-1", Quantity: 2},
	})
	assert.Equal(t, a, b)
}

func TestGoodsReceiptKeyChangesWithPayload(t *testing.T) {
	base := GoodsReceiptKey("ord-1", []ReceiptPosition{{LineItemID: "it-1", Quantity: 2}})

	differentQty := GoodsReceiptKey("ord-1", []ReceiptPosition{{LineItemID: "it-1", Quantity: 3}})
	differentItem := GoodsReceiptKey("ord-1", []ReceiptPosition{{LineItemID: "it-2", Quantity: 2}})
	differentOrder := GoodsReceiptKey("ord-2", []ReceiptPosition{{LineItemID: "it-1", Quantity: 2}})

	assert.NotEqual(t, base, differentQty)
	assert.NotEqual(t, base, differentItem)
	assert.NotEqual(t, base, differentOrder)
}

func TestKeysCarryVersionPrefix(t *testing.T) {
	assert.Contains(t, SendOrderKey("o", "r", nil), "send-v1-")
	assert.Contains(t, MarkOrderedKey("o", nil), "mark-v1-")
	assert.Contains(t, GoodsReceiptKey("o", nil), "we-v1-")
}

func TestOutboxDedupeKeyScopesByOrder(t *testing.T) {
	assert.NotEqual(t,
		OutboxDedupeKey("ord-1", "k"),
		OutboxDedupeKey("ord-2", "k"),
	)
}
