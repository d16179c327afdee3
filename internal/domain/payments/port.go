package payments

import (
	"context"
	"errors"
)

// ErrBadSignature indicates the webhook payload failed HMAC verification.
var ErrBadSignature = errors.New("payment event signature invalid")

// AuditRepository defines persistence for the webhook delivery trail.
// Writes are best effort and must never block event acknowledgement.
type AuditRepository interface {
	Save(ctx context.Context, e *AuditEntry) error
	ListByRecord(ctx context.Context, recordID string, limit int) ([]*AuditEntry, error)
}
