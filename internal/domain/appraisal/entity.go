package appraisal

import (
	"time"
)

// ID type for Appraisal
type AppraisalID string

// Status enum, derived from the record's fields
type Status string

const (
	StatusUnpaid     Status = "unpaid"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Error kinds persisted on failed records
const (
	KindInvalidInput  = "INVALID_INPUT"
	KindInputMissing  = "INPUT_MISSING"
	KindNoResponse    = "AI_NO_RESPONSE"
	KindAIError       = "AI_ERROR"
	KindParseError    = "PARSE_ERROR"
	KindValidation    = "VALIDATION_ERROR"
	KindCriticalError = "CRITICAL_ERROR"
)

// ErrorInfo value object stored on a failed appraisal
type ErrorInfo struct {
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Aggregate Root: Appraisal
//
// Result and Error are mutually exclusive; the setters below are the only
// places that touch them so a record can never hold both.
type Appraisal struct {
	ID        AppraisalID `json:"id"`
	Category  string      `json:"category,omitempty"`
	ImageKey  string      `json:"image_key,omitempty"`
	ImageMIME string      `json:"image_mime,omitempty"`
	Paid      bool        `json:"paid"`
	Result    *Result     `json:"result,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Status derives the lifecycle state from the stored fields.
func (a *Appraisal) Status() Status {
	switch {
	case !a.Paid:
		return StatusUnpaid
	case a.Result != nil:
		return StatusCompleted
	case a.Error != nil:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// MarkPaid flips the paid flag. Returns false when the record was already
// paid so callers can tell a fresh transition from a duplicate delivery.
func (a *Appraisal) MarkPaid() bool {
	if a.Paid {
		return false
	}
	a.Paid = true
	return true
}

// SetResult records a successful outcome, clearing any prior error.
func (a *Appraisal) SetResult(r *Result) {
	a.Result = r
	a.Error = nil
}

// SetError records a failure, clearing any prior result of the attempt.
func (a *Appraisal) SetError(kind, message string, at time.Time) {
	a.Error = &ErrorInfo{Kind: kind, Message: message, OccurredAt: at}
	a.Result = nil
}

// CanRetry reports whether the retry transition is legal: the record must be
// failed, paid, and still hold its input image.
func (a *Appraisal) CanRetry() error {
	if !a.Paid {
		return ErrInvalidState
	}
	if a.Result != nil {
		return ErrInvalidState
	}
	if a.Error == nil {
		return ErrInvalidState
	}
	if a.ImageKey == "" {
		return ErrInvalidState
	}
	return nil
}
