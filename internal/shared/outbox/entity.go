package outbox

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/mail"
)

// Entry status
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// Payload is the serialized message stored on an entry, as JSONB.
type Payload mail.Message

func (p Payload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Payload) Scan(value interface{}) error {
	if value == nil {
		*p = Payload{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// Metadata is free-form context stored with an entry.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Entry is the durable envelope for exactly one outbound email. A sent
// entry is terminal; re-dispatch with the same dedupe key returns the
// stored result instead of sending again.
type Entry struct {
	ID        string  `json:"id" gorm:"primaryKey;size:32"`
	ActorID   string  `json:"actor_id" gorm:"size:32;index"`
	Kind      string  `json:"kind" gorm:"size:50;not null;index"`
	DedupeKey *string `json:"dedupe_key" gorm:"size:300;uniqueIndex"`
	Status    string  `json:"status" gorm:"size:20;not null;default:queued;index"`

	Attempts          int    `json:"attempts" gorm:"not null;default:0"`
	LastError         string `json:"last_error" gorm:"type:text"`
	ProviderMessageID string `json:"provider_message_id" gorm:"size:100"`

	ProcessingStartedAt *time.Time `json:"processing_started_at"`
	SentAt              *time.Time `json:"sent_at"`

	Payload  Payload  `json:"payload" gorm:"type:jsonb"`
	Metadata Metadata `json:"metadata" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Entry) TableName() string {
	return "email_outbox"
}
