package appraisals

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/snapworth/snapworth/internal/application"
	domai "github.com/snapworth/snapworth/internal/domain/ai"
	domain "github.com/snapworth/snapworth/internal/domain/appraisal"
	"github.com/snapworth/snapworth/internal/infra/kv/memory"
	"github.com/snapworth/snapworth/internal/infra/records"
)

const validReply = `{
  "attributes": {"name": "Gibson Les Paul", "brand": "Gibson", "condition": "fair"},
  "listing": {"title": "Gibson Les Paul Studio", "description": "Plays great, honest wear.", "keywords": ["guitar"]},
  "pricing": {"currency": "USD", "quick_sale": 900, "market": 1100, "premium": 1300}
}`

// fakeAI replays a scripted sequence of replies and errors.
type fakeAI struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeAI) Invoke(ctx context.Context, img domai.Image, category string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("unscripted call")
}

type fakeImages struct {
	m         map[string][]byte
	fetchErr  error
	putCalled int
}

func (f *fakeImages) Put(_ context.Context, key string, data []byte, _ string) error {
	f.putCalled++
	f.m[key] = data
	return nil
}

func (f *fakeImages) Fetch(_ context.Context, key string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	d, ok := f.m[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return d, nil
}

func pngPayload() []byte {
	sig := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	return append(sig, make([]byte, 300)...)
}

func newService(client domai.Client) (*Service, *fakeImages) {
	images := &fakeImages{m: map[string][]byte{}}
	return &Service{
		Repo:   records.New(memory.New(), time.Hour),
		Images: images,
		AI:     client,
		Clock:  application.SystemClock{},
	}, images
}

func mustCreate(t *testing.T, s *Service) *domain.Appraisal {
	t.Helper()
	a, err := s.Create(context.Background(), CreateCommand{Data: pngPayload(), Category: "guitars"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	return a
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh record is unpaid with no outcome", func(t *testing.T) {
		svc, images := newService(&fakeAI{})
		a := mustCreate(t, svc)
		if a.Paid || a.Result != nil || a.Error != nil {
			t.Fatalf("fresh record = paid:%v result:%v error:%v", a.Paid, a.Result, a.Error)
		}
		if a.Status() != domain.StatusUnpaid {
			t.Errorf("status = %s, want unpaid", a.Status())
		}
		if images.putCalled != 1 {
			t.Errorf("image uploads = %d, want 1", images.putCalled)
		}
	})

	t.Run("tiny payload rejected locally", func(t *testing.T) {
		svc, images := newService(&fakeAI{})
		_, err := svc.Create(ctx, CreateCommand{Data: []byte("tiny")})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
		if images.putCalled != 0 {
			t.Error("invalid payload should not be uploaded")
		}
	})

	t.Run("non-image payload rejected", func(t *testing.T) {
		svc, _ := newService(&fakeAI{})
		data := append([]byte("%PDF-1.4"), make([]byte, 300)...)
		if _, err := svc.Create(ctx, CreateCommand{Data: data}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})
}

func TestMarkPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		svc, _ := newService(&fakeAI{})
		a := mustCreate(t, svc)

		first, err := svc.MarkPaid(ctx, a.ID)
		if err != nil || !first {
			t.Fatalf("first MarkPaid = %v, %v", first, err)
		}
		second, err := svc.MarkPaid(ctx, a.ID)
		if err != nil {
			t.Fatalf("second MarkPaid error: %v", err)
		}
		if second {
			t.Error("second MarkPaid reported a transition")
		}

		got, _ := svc.Get(ctx, a.ID)
		if !got.Paid || got.Status() != domain.StatusProcessing {
			t.Errorf("record = paid:%v status:%s", got.Paid, got.Status())
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		svc, _ := newService(&fakeAI{})
		if _, err := svc.MarkPaid(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("valid fenced reply completes with exact result", func(t *testing.T) {
		svc, _ := newService(&fakeAI{replies: []string{"```json\n" + validReply + "\n```"}})
		a := mustCreate(t, svc)
		svc.MarkPaid(ctx, a.ID)

		if err := svc.Process(ctx, a.ID); err != nil {
			t.Fatalf("Process error: %v", err)
		}
		got, _ := svc.Get(ctx, a.ID)
		if got.Status() != domain.StatusCompleted {
			t.Fatalf("status = %s, want completed", got.Status())
		}
		if got.Result.Attributes.Name != "Gibson Les Paul" || got.Result.Pricing.Market != 1100 {
			t.Errorf("result = %+v", got.Result)
		}
		if got.Error != nil {
			t.Error("completed record still carries an error")
		}
	})

	t.Run("exhausted empty responses fail with no-response kind", func(t *testing.T) {
		exhausted := fmt.Errorf("%w: %w", domai.ErrExhausted, domai.ErrEmptyResponse)
		svc, _ := newService(&fakeAI{errs: []error{exhausted}})
		a := mustCreate(t, svc)
		svc.MarkPaid(ctx, a.ID)

		if err := svc.Process(ctx, a.ID); err != nil {
			t.Fatalf("Process error: %v", err)
		}
		got, _ := svc.Get(ctx, a.ID)
		if got.Status() != domain.StatusFailed {
			t.Fatalf("status = %s, want failed", got.Status())
		}
		if got.Error.Kind != domain.KindNoResponse {
			t.Errorf("error kind = %s, want %s", got.Error.Kind, domain.KindNoResponse)
		}
	})

	t.Run("unparseable reply fails with parse kind", func(t *testing.T) {
		svc, _ := newService(&fakeAI{replies: []string{"sorry, I cannot help with that"}})
		a := mustCreate(t, svc)
		svc.MarkPaid(ctx, a.ID)

		svc.Process(ctx, a.ID)
		got, _ := svc.Get(ctx, a.ID)
		if got.Error == nil || got.Error.Kind != domain.KindParseError {
			t.Fatalf("error = %+v, want kind %s", got.Error, domain.KindParseError)
		}
	})

	t.Run("schema violation fails with validation kind", func(t *testing.T) {
		svc, _ := newService(&fakeAI{replies: []string{`{"attributes":{"name":"x"},"listing":{"title":"t","description":"d"},"pricing":{"quick_sale":"100","market":200,"premium":300}}`}})
		a := mustCreate(t, svc)
		svc.MarkPaid(ctx, a.ID)

		svc.Process(ctx, a.ID)
		got, _ := svc.Get(ctx, a.ID)
		if got.Error == nil || got.Error.Kind != domain.KindValidation {
			t.Fatalf("error = %+v, want kind %s", got.Error, domain.KindValidation)
		}
	})

	t.Run("unpaid record never processes", func(t *testing.T) {
		svc, _ := newService(&fakeAI{replies: []string{validReply}})
		a := mustCreate(t, svc)
		if err := svc.Process(ctx, a.ID); !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("err = %v, want ErrInvalidState", err)
		}
		got, _ := svc.Get(ctx, a.ID)
		if got.Paid || got.Result != nil || got.Error != nil {
			t.Error("unpaid record mutated by Process")
		}
	})

	t.Run("image fetch failure becomes critical error", func(t *testing.T) {
		svc, images := newService(&fakeAI{replies: []string{validReply}})
		a := mustCreate(t, svc)
		svc.MarkPaid(ctx, a.ID)
		images.fetchErr = errors.New("blob store down")

		svc.Process(ctx, a.ID)
		got, _ := svc.Get(ctx, a.ID)
		if got.Error == nil || got.Error.Kind != domain.KindCriticalError {
			t.Fatalf("error = %+v, want kind %s", got.Error, domain.KindCriticalError)
		}
	})
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("failed record retries to completion", func(t *testing.T) {
		exhausted := fmt.Errorf("%w: %w", domai.ErrExhausted, domai.ErrEmptyResponse)
		client := &fakeAI{errs: []error{exhausted, nil}, replies: []string{"", validReply}}
		svc, _ := newService(client)
		a := mustCreate(t, svc)
		svc.MarkPaid(ctx, a.ID)
		svc.Process(ctx, a.ID)

		got, err := svc.Retry(ctx, a.ID)
		if err != nil {
			t.Fatalf("Retry error: %v", err)
		}
		if got.Status() != domain.StatusCompleted {
			t.Fatalf("status = %s, want completed", got.Status())
		}
		if got.Error != nil {
			t.Error("retry left the old error in place")
		}
	})

	t.Run("completed record rejects retry unchanged", func(t *testing.T) {
		svc, _ := newService(&fakeAI{replies: []string{validReply}})
		a := mustCreate(t, svc)
		svc.MarkPaid(ctx, a.ID)
		svc.Process(ctx, a.ID)

		before, _ := svc.Get(ctx, a.ID)
		_, err := svc.Retry(ctx, a.ID)
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("err = %v, want ErrInvalidState", err)
		}
		after, _ := svc.Get(ctx, a.ID)
		if after.Status() != before.Status() || after.Result.Pricing.Market != before.Result.Pricing.Market {
			t.Error("rejected retry mutated the record")
		}
	})

	t.Run("unpaid record rejects retry", func(t *testing.T) {
		svc, _ := newService(&fakeAI{})
		a := mustCreate(t, svc)
		if _, err := svc.Retry(ctx, a.ID); !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("err = %v, want ErrInvalidState", err)
		}
	})
}

func TestPollingObservation(t *testing.T) {
	// an unpaid record polled many times never grows an outcome
	ctx := context.Background()
	svc, _ := newService(&fakeAI{replies: []string{validReply}})
	a := mustCreate(t, svc)

	for i := 0; i < 10; i++ {
		got, err := svc.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if got.Paid || got.Result != nil || got.Error != nil {
			t.Fatalf("poll %d observed paid:%v result:%v error:%v", i, got.Paid, got.Result, got.Error)
		}
	}
}
