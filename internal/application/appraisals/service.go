package appraisals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/snapworth/snapworth/internal/application"
	domai "github.com/snapworth/snapworth/internal/domain/ai"
	domain "github.com/snapworth/snapworth/internal/domain/appraisal"
)

// minImageBytes rejects obviously truncated uploads before any network call.
const minImageBytes = 128

// Counter names bumped on lifecycle transitions
const (
	CounterCreated   = "appraisals:created"
	CounterCompleted = "appraisals:completed"
	CounterFailed    = "appraisals:failed"
)

// Service implements the appraisal record lifecycle.
// Service is designed to be used concurrently and is thread-safe as long as
// its ports are.
type Service struct {
	Repo   domain.Repository
	Images domain.ImageStore
	AI     domai.Client
	Clock  application.Clock
}

//
// ==== USE CASES ====
//

// CreateCommand carries a submitted image
type CreateCommand struct {
	Data     []byte
	MIME     string
	Category string
}

// Create stores the image payload and an unpaid record. Malformed or
// trivially small image data is rejected locally.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*domain.Appraisal, error) {
	mime, err := validateImage(cmd.Data, cmd.MIME)
	if err != nil {
		return nil, err
	}

	id := domain.AppraisalID(uuid.New().String())
	key := fmt.Sprintf("images/%s", id)
	if err := s.Images.Put(ctx, key, cmd.Data, mime); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	a := &domain.Appraisal{
		ID:        id,
		Category:  strings.TrimSpace(cmd.Category),
		ImageKey:  key,
		ImageMIME: mime,
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, err
	}
	_ = s.Repo.Bump(ctx, CounterCreated)
	return a, nil
}

// Get returns the current record snapshot.
func (s *Service) Get(ctx context.Context, id domain.AppraisalID) (*domain.Appraisal, error) {
	return s.Repo.Get(ctx, id)
}

// MarkPaid flips the record to paid. Idempotent: a second call is a no-op
// success. The returned bool reports whether this call performed the
// transition, so the dispatcher schedules completion work at most once per
// observed unpaid record.
func (s *Service) MarkPaid(ctx context.Context, id domain.AppraisalID) (bool, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !a.MarkPaid() {
		return false, nil
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return false, err
	}
	return true, nil
}

// Complete writes a successful outcome, overwriting any prior error.
func (s *Service) Complete(ctx context.Context, id domain.AppraisalID, res *domain.Result) error {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.Paid {
		return domain.ErrInvalidState
	}
	a.SetResult(res)
	if err := s.Repo.Save(ctx, a); err != nil {
		return err
	}
	_ = s.Repo.Bump(ctx, CounterCompleted)
	return nil
}

// Fail writes a typed failure, overwriting any prior error and preserving
// the input payload so a retry stays possible.
func (s *Service) Fail(ctx context.Context, id domain.AppraisalID, kind, message string) error {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.Paid {
		return domain.ErrInvalidState
	}
	a.SetError(kind, message, s.Clock.Now())
	if err := s.Repo.Save(ctx, a); err != nil {
		return err
	}
	_ = s.Repo.Bump(ctx, CounterFailed)
	return nil
}

// Retry re-enters the completion path for a failed, paid record with its
// input still present. Runs one full cycle synchronously.
func (s *Service) Retry(ctx context.Context, id domain.AppraisalID) (*domain.Appraisal, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.CanRetry(); err != nil {
		return nil, err
	}
	if err := s.Process(ctx, id); err != nil {
		return nil, err
	}
	return s.Repo.Get(ctx, id)
}

// Process runs the completion path: fetch image, invoke the vision model,
// repair-parse, validate, persist a terminal outcome. Every failure becomes
// a Fail write; the returned error only reports store-level problems.
func (s *Service) Process(ctx context.Context, id domain.AppraisalID) error {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.Paid {
		return domain.ErrInvalidState
	}
	if a.ImageKey == "" {
		return s.Fail(ctx, id, domain.KindInputMissing, "no image payload stored for this appraisal")
	}

	img, err := s.Images.Fetch(ctx, a.ImageKey)
	if err != nil {
		return s.Fail(ctx, id, domain.KindCriticalError, fmt.Sprintf("fetch image payload: %v", err))
	}

	raw, err := s.AI.Invoke(ctx, domai.Image{Data: img, MIME: a.ImageMIME}, a.Category)
	if err != nil {
		return s.Fail(ctx, id, aiErrorKind(err), err.Error())
	}

	res, err := domain.ParseResult(raw)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidationFailed):
			return s.Fail(ctx, id, domain.KindValidation, err.Error())
		default:
			return s.Fail(ctx, id, domain.KindParseError, err.Error())
		}
	}

	return s.Complete(ctx, id, res)
}

// ProcessUntilDone runs Process with context.Background() so a detached unit
// survives the request that scheduled it, and converts panics and store
// errors into a best-effort failure write instead of letting anything
// propagate past the background boundary.
func (s *Service) ProcessUntilDone(id domain.AppraisalID) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("background appraisal panic: id=%s err=%v", id, r)
			_ = s.Fail(context.Background(), id, domain.KindCriticalError, fmt.Sprintf("panic: %v", r))
		}
	}()
	if err := s.Process(context.Background(), id); err != nil {
		log.Printf("background appraisal error: id=%s err=%v", id, err)
	}
}

func aiErrorKind(err error) string {
	if errors.Is(err, domai.ErrEmptyResponse) {
		return domain.KindNoResponse
	}
	return domain.KindAIError
}

// validateImage checks the payload is nontrivial, actually image bytes, and
// resolves the content type. Returns domain.ErrInvalidInput otherwise.
func validateImage(data []byte, declared string) (string, error) {
	if len(data) < minImageBytes {
		return "", fmt.Errorf("%w: payload too small (%d bytes)", domain.ErrInvalidInput, len(data))
	}
	detected := http.DetectContentType(data)
	if !strings.HasPrefix(detected, "image/") {
		return "", fmt.Errorf("%w: payload is %s, not an image", domain.ErrInvalidInput, detected)
	}
	if declared != "" && strings.HasPrefix(declared, "image/") {
		return declared, nil
	}
	return detected, nil
}
