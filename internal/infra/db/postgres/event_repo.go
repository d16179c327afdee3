package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/snapworth/snapworth/internal/domain/payments"
)

type EventRepository struct{ db *sql.DB }

func NewEventRepository(db *sql.DB) *EventRepository { return &EventRepository{db: db} }

var _ domain.AuditRepository = (*EventRepository)(nil)

func (r *EventRepository) Save(ctx context.Context, e *domain.AuditEntry) error {
	const q = `
INSERT INTO payment_events
  (event_id, event_type, record_id, signature_valid, disposition, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);
`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		e.EventID, e.EventType, e.RecordID, e.SignatureValid, e.Disposition, e.Message, createdAt)
	return err
}

func (r *EventRepository) ListByRecord(ctx context.Context, recordID string, limit int) ([]*domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, event_id, event_type, record_id, signature_valid, disposition, message, created_at
FROM payment_events
WHERE record_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2;
`
	rows, err := r.db.QueryContext(ctx, q, recordID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.RecordID, &e.SignatureValid, &e.Disposition, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
