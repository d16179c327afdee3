package payments

import "time"

// Event is a payment confirmation delivered by the provider webhook.
// Providers may redeliver the same event; consumers must absorb duplicates.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	RecordID string `json:"record_id"`
}

// AuditEntry is the persisted trail of a received webhook delivery, valid or
// not, with its processing disposition.
type AuditEntry struct {
	ID             int64     `json:"id"`
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type,omitempty"`
	RecordID       string    `json:"record_id,omitempty"`
	SignatureValid bool      `json:"signature_valid"`
	Disposition    string    `json:"disposition"` // scheduled | duplicate | rejected | alerted | failed
	Message        string    `json:"message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Dispositions recorded on audit entries
const (
	DispositionScheduled = "scheduled"
	DispositionDuplicate = "duplicate"
	DispositionRejected  = "rejected"
	DispositionAlerted   = "alerted"
	DispositionFailed    = "failed"
)
