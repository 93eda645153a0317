package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("outbox entry not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Entry, error) {
	var entry Entry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) FindByDedupeKey(ctx context.Context, dedupeKey string) (*Entry, error) {
	var entry Entry
	err := r.db.WithContext(ctx).Where("dedupe_key = ?", dedupeKey).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) Create(ctx context.Context, entry *Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// IsDuplicate reports whether err is the unique violation two enqueuers
// racing on the same dedupe key produce.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Claim moves the entry into processing with a single conditional
// update. Only queued and failed rows are claimable; a processing row is
// also claimable once it has been stuck longer than staleAfter. Returns
// false when another worker holds the claim.
func (r *Repository) Claim(ctx context.Context, id string, attempts int, now time.Time, staleAfter time.Duration) (bool, error) {
	staleBefore := now.Add(-staleAfter)
	res := r.db.WithContext(ctx).
		Model(&Entry{}).
		Where("id = ?", id).
		Where(
			r.db.Where("status IN ?", []string{StatusQueued, StatusFailed}).
				Or("status = ? AND processing_started_at < ?", StatusProcessing, staleBefore),
		).
		Updates(map[string]interface{}{
			"status":                StatusProcessing,
			"attempts":              attempts,
			"last_error":            "",
			"processing_started_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkSent finalizes a successful send.
func (r *Repository) MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&Entry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":                StatusSent,
			"sent_at":               sentAt,
			"provider_message_id":   providerMessageID,
			"processing_started_at": nil,
			"last_error":            "",
		}).Error
}

// MarkFailed records the failure and releases the claim so a later
// sweep can retry.
func (r *Repository) MarkFailed(ctx context.Context, id, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&Entry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":                StatusFailed,
			"processing_started_at": nil,
			"last_error":            lastError,
		}).Error
}

// FindDispatchable returns up to limit entries eligible for dispatch,
// oldest first: queued, failed, and processing rows stuck past
// staleAfter.
func (r *Repository) FindDispatchable(ctx context.Context, limit int, now time.Time, staleAfter time.Duration) ([]Entry, error) {
	staleBefore := now.Add(-staleAfter)
	var entries []Entry
	err := r.db.WithContext(ctx).
		Where(
			r.db.Where("status IN ?", []string{StatusQueued, StatusFailed}).
				Or("status = ? AND processing_started_at < ?", StatusProcessing, staleBefore),
		).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
