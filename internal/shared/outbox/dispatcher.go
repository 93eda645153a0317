package outbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/mail"
)

// ErrBusy means another worker holds the claim on an entry that has not
// finished yet.
var ErrBusy = errors.New("outbox entry is being processed")

// DefaultStaleAfter is how long a processing claim survives before a
// sweep may take it over from a crashed worker.
const DefaultStaleAfter = 10 * time.Minute

// Result reports the outcome of a dispatch.
type Result struct {
	OutboxID          string    `json:"outbox_id"`
	AlreadySent       bool      `json:"already_sent"`
	SentAt            time.Time `json:"sent_at"`
	ProviderMessageID string    `json:"provider_message_id"`
}

// BatchStats summarizes one sweep.
type BatchStats struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Dispatcher owns the queue-claim-send-finalize lifecycle. At most one
// successful send happens per entry; the dedupe-key unique constraint
// extends that to at most one per logical key.
type Dispatcher struct {
	repo       *Repository
	sender     mail.Sender
	logger     *zap.Logger
	staleAfter time.Duration
}

func NewDispatcher(repo *Repository, sender mail.Sender, logger *zap.Logger, staleAfter time.Duration) *Dispatcher {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Dispatcher{
		repo:       repo,
		sender:     sender,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// QueueAndSend enqueues the message and dispatches it in one call. With
// a dedupe key the enqueue is idempotent: an existing entry is
// dispatched instead of inserting a twin, and an insert race falls back
// to the winner's row.
func (d *Dispatcher) QueueAndSend(ctx context.Context, actorID, kind, dedupeKey string, payload mail.Message, metadata Metadata) (*Result, error) {
	dedupeKey = strings.TrimSpace(dedupeKey)

	var entry *Entry
	var err error

	if dedupeKey != "" {
		entry, err = d.repo.FindByDedupeKey(ctx, dedupeKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if entry == nil {
		fresh := &Entry{
			ID:       uuid.New().String()[:32],
			ActorID:  actorID,
			Kind:     kind,
			Status:   StatusQueued,
			Payload:  Payload(payload),
			Metadata: metadata,
		}
		if dedupeKey != "" {
			fresh.DedupeKey = &dedupeKey
		}
		if err := d.repo.Create(ctx, fresh); err != nil {
			if IsDuplicate(err) && dedupeKey != "" {
				entry, err = d.repo.FindByDedupeKey(ctx, dedupeKey)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		} else {
			entry = fresh
		}
	}

	return d.dispatch(ctx, entry)
}

// Dispatch re-drives an existing entry through claim-send-finalize.
func (d *Dispatcher) Dispatch(ctx context.Context, entryID string) (*Result, error) {
	entry, err := d.repo.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return d.dispatch(ctx, entry)
}

func (d *Dispatcher) dispatch(ctx context.Context, entry *Entry) (*Result, error) {
	now := time.Now()

	if entry.Status == StatusSent {
		return sentResult(entry, now), nil
	}

	claimed, err := d.repo.Claim(ctx, entry.ID, entry.Attempts+1, now, d.staleAfter)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the race. If the winner finished, hand back its result.
		latest, err := d.repo.FindByID(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		if latest.Status == StatusSent {
			return sentResult(latest, now), nil
		}
		return nil, ErrBusy
	}

	providerID, sendErr := d.sender.Send(ctx, mail.Message(entry.Payload))
	if sendErr != nil {
		d.logger.Warn("outbox send failed",
			zap.String("outbox_id", entry.ID),
			zap.String("kind", entry.Kind),
			zap.Int("attempts", entry.Attempts+1),
			zap.Error(sendErr),
		)
		if err := d.repo.MarkFailed(ctx, entry.ID, sendErr.Error()); err != nil {
			d.logger.Error("outbox mark failed errored", zap.String("outbox_id", entry.ID), zap.Error(err))
		}
		return nil, sendErr
	}

	sentAt := time.Now()
	if err := d.repo.MarkSent(ctx, entry.ID, providerID, sentAt); err != nil {
		return nil, err
	}

	d.logger.Info("outbox entry sent",
		zap.String("outbox_id", entry.ID),
		zap.String("kind", entry.Kind),
		zap.String("provider_message_id", providerID),
	)

	return &Result{
		OutboxID:          entry.ID,
		SentAt:            sentAt,
		ProviderMessageID: providerID,
	}, nil
}

// ProcessBatch sweeps up to limit dispatchable entries. A failing entry
// never aborts the batch.
func (d *Dispatcher) ProcessBatch(ctx context.Context, limit int) (BatchStats, error) {
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := d.repo.FindDispatchable(ctx, limit, time.Now(), d.staleAfter)
	if err != nil {
		return BatchStats{}, err
	}

	var stats BatchStats
	for i := range entries {
		stats.Processed++
		if _, err := d.dispatch(ctx, &entries[i]); err != nil {
			stats.Failed++
			continue
		}
		stats.Sent++
	}
	return stats, nil
}

func sentResult(entry *Entry, fallback time.Time) *Result {
	sentAt := fallback
	if entry.SentAt != nil {
		sentAt = *entry.SentAt
	}
	return &Result{
		OutboxID:          entry.ID,
		AlreadySent:       true,
		SentAt:            sentAt,
		ProviderMessageID: entry.ProviderMessageID,
	}
}
