package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/snapworth/snapworth/internal/application"
	"github.com/snapworth/snapworth/internal/application/appraisals"
	domain "github.com/snapworth/snapworth/internal/domain/appraisal"
	dompay "github.com/snapworth/snapworth/internal/domain/payments"
)

// Service validates inbound payment confirmations, flips records to paid and
// schedules background completion. The acknowledgement path only ever raises
// a signature or storage error; everything deeper lands in the record.
type Service struct {
	Appraisals *appraisals.Service
	Audit      dompay.AuditRepository // optional, best effort
	Runner     application.Runner
	Secret     []byte
	Clock      application.Clock
}

// HandleEvent processes one webhook delivery. Returns nil whenever the
// provider should consider the event acknowledged, independent of the
// background completion outcome.
func (s *Service) HandleEvent(ctx context.Context, signature string, body []byte) error {
	if !s.verify(signature, body) {
		s.audit(ctx, &dompay.AuditEntry{
			Disposition: dompay.DispositionRejected,
			Message:     "signature verification failed",
		})
		return dompay.ErrBadSignature
	}

	var ev dompay.Event
	if err := json.Unmarshal(body, &ev); err != nil || ev.RecordID == "" {
		// Authenticated but unusable payload: ack and alert so the provider
		// does not redeliver something we can never act on.
		log.Printf("payment event unusable: err=%v body_len=%d", err, len(body))
		s.audit(ctx, &dompay.AuditEntry{
			EventID:        ev.ID,
			EventType:      ev.Type,
			SignatureValid: true,
			Disposition:    dompay.DispositionAlerted,
			Message:        "event payload missing record_id",
		})
		return nil
	}

	id := domain.AppraisalID(ev.RecordID)
	rec, err := s.Appraisals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Paid for a record that does not exist: nothing to write, so
			// raise an operational alert instead of failing the ack.
			log.Printf("ALERT payment for unknown appraisal: event=%s record=%s", ev.ID, ev.RecordID)
			s.audit(ctx, &dompay.AuditEntry{
				EventID:        ev.ID,
				EventType:      ev.Type,
				RecordID:       ev.RecordID,
				SignatureValid: true,
				Disposition:    dompay.DispositionAlerted,
				Message:        "record not found",
			})
			return nil
		}
		return err
	}

	transitioned, err := s.Appraisals.MarkPaid(ctx, id)
	if err != nil {
		return err
	}

	if rec.ImageKey == "" {
		// Payment landed but there is nothing to process. The record is paid
		// now, so the failure write sticks and the client sees it.
		if ferr := s.Appraisals.Fail(ctx, id, domain.KindInputMissing, "payment received but no image payload stored"); ferr != nil {
			log.Printf("fail write error: id=%s err=%v", id, ferr)
		}
		s.audit(ctx, &dompay.AuditEntry{
			EventID:        ev.ID,
			EventType:      ev.Type,
			RecordID:       ev.RecordID,
			SignatureValid: true,
			Disposition:    dompay.DispositionFailed,
			Message:        "input payload missing",
		})
		return nil
	}

	if !transitioned {
		// Duplicate delivery absorbed by the idempotent transition; do not
		// schedule a second completion unit.
		s.audit(ctx, &dompay.AuditEntry{
			EventID:        ev.ID,
			EventType:      ev.Type,
			RecordID:       ev.RecordID,
			SignatureValid: true,
			Disposition:    dompay.DispositionDuplicate,
		})
		return nil
	}

	s.Runner.Go(func() {
		s.Appraisals.ProcessUntilDone(id)
	})
	s.audit(ctx, &dompay.AuditEntry{
		EventID:        ev.ID,
		EventType:      ev.Type,
		RecordID:       ev.RecordID,
		SignatureValid: true,
		Disposition:    dompay.DispositionScheduled,
	})
	return nil
}

// verify checks the hex HMAC-SHA256 of the raw body in constant time.
// Accepts both a bare hex digest and the "sha256=<hex>" form.
func (s *Service) verify(signature string, body []byte) bool {
	if len(s.Secret) == 0 {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign computes the signature the provider is expected to send; exported for
// tests and local tooling.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Service) audit(ctx context.Context, e *dompay.AuditEntry) {
	if s.Audit == nil {
		return
	}
	e.CreatedAt = s.Clock.Now()
	if err := s.Audit.Save(ctx, e); err != nil {
		log.Printf("audit write error: %v", err)
	}
}
