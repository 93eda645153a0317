package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Idempotency keys are versioned so an old client retrying against a new
// deployment can never collide with a key derived under different rules.
// Each derivation is a pure function of the request intent: the same
// intent always yields the same key, a genuinely new attempt (different
// recipient, or a prior send changed the order's sent timestamp) yields
// a new one.

const keyVersion = "v1"

func sentMarker(sentAt *time.Time) string {
	if sentAt == nil {
		return "initial"
	}
	return sentAt.UTC().Format(time.RFC3339)
}

// SendOrderKey derives the key for sending an order to a recipient.
func SendOrderKey(orderID, recipient string, sentAt *time.Time) string {
	return fmt.Sprintf("send-%s-%s-%s-%s", keyVersion, orderID, strings.ToLower(strings.TrimSpace(recipient)), sentMarker(sentAt))
}

// MarkOrderedKey derives the key for marking an order as placed through
// an out-of-band channel.
func MarkOrderedKey(orderID string, sentAt *time.Time) string {
	return fmt.Sprintf("mark-%s-%s-%s", keyVersion, orderID, sentMarker(sentAt))
}

// ReceiptPosition is one (line item, received quantity) pair of a goods
// receipt payload.
type ReceiptPosition struct {
	LineItemID string  `json:"line_item_id"`
	Quantity   float64 `json:"quantity"`
}

// GoodsReceiptKey hashes the booked positions so the identical payload
// booked twice resolves to the same receipt. Positions are sorted before
// hashing, so submission order does not matter.
func GoodsReceiptKey(orderID string, positions []ReceiptPosition) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = fmt.Sprintf("%s:%g", p.LineItemID, p.Quantity)
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(orderID + "|" + strings.Join(parts, "|")))
	return fmt.Sprintf("we-%s-%s-%s", keyVersion, orderID, hex.EncodeToString(sum[:]))
}

// OutboxDedupeKey scopes an order-dispatch idempotency key into the
// outbox's dedupe namespace.
func OutboxDedupeKey(orderID, idempotencyKey string) string {
	return fmt.Sprintf("supplier-order:%s:%s", orderID, idempotencyKey)
}
