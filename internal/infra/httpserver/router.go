package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apppay "github.com/snapworth/snapworth/internal/application/payments"
	"github.com/snapworth/snapworth/internal/application/appraisals"
	domai "github.com/snapworth/snapworth/internal/domain/ai"
	domain "github.com/snapworth/snapworth/internal/domain/appraisal"
	dompay "github.com/snapworth/snapworth/internal/domain/payments"
	"github.com/snapworth/snapworth/internal/middleware"
)

// maxUploadBytes caps submitted image payloads.
const maxUploadBytes = 10 << 20

type Router struct {
	appraisalsSvc *appraisals.Service
	paymentsSvc   *apppay.Service
	audit         dompay.AuditRepository
	opsKey        string
}

func NewRouter(appraisalsSvc *appraisals.Service, paymentsSvc *apppay.Service, audit dompay.AuditRepository, opsKey string, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{appraisalsSvc: appraisalsSvc, paymentsSvc: paymentsSvc, audit: audit, opsKey: opsKey}
	mux := chi.NewRouter()

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/health/ready", middleware.HealthHandler(checkers))

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/appraisals", r.wrap(r.handleCreate))
		rt.Get("/appraisals/{id}", r.wrap(r.handleGet))
		rt.Post("/appraisals/{id}/retry", r.wrap(r.handleRetry))
		rt.Post("/webhooks/payment", r.wrap(r.handlePaymentWebhook))
	})

	mux.Group(func(ops chi.Router) {
		ops.Use(middleware.APIKeyAuth(opsKey))
		ops.Get("/metrics", r.handleMetrics)
		ops.Get("/v1/appraisals/{id}/events", r.wrap(r.handleEvents))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrInvalidState):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, domain.ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, dompay.ErrBadSignature):
				http.Error(w, "invalid signature", http.StatusUnauthorized)
			case errors.Is(err, domai.ErrQuotaExceeded):
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// snapshot is the client-facing record view. It never carries the input
// payload or its storage key.
type snapshot struct {
	ID        domain.AppraisalID `json:"id"`
	Status    domain.Status      `json:"status"`
	Paid      bool               `json:"paid"`
	Category  string             `json:"category,omitempty"`
	Result    *domain.Result     `json:"result,omitempty"`
	Error     *domain.ErrorInfo  `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func toSnapshot(a *domain.Appraisal) snapshot {
	return snapshot{
		ID:        a.ID,
		Status:    a.Status(),
		Paid:      a.Paid,
		Category:  a.Category,
		Result:    a.Result,
		Error:     a.Error,
		CreatedAt: a.CreatedAt,
	}
}

// POST /v1/appraisals
// Accepts multipart form ("image" file + "category" field) or JSON
// {"image": "<base64>", "mime": "...", "category": "..."}.
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	cmd, err := decodeCreate(req)
	if err != nil {
		return err
	}
	cmd.Category = middleware.SanitizeString(cmd.Category)
	if err := middleware.ValidateCategory(cmd.Category); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	a, err := r.appraisalsSvc.Create(req.Context(), cmd)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(toSnapshot(a))
}

func decodeCreate(req *http.Request) (appraisals.CreateCommand, error) {
	var cmd appraisals.CreateCommand
	req.Body = http.MaxBytesReader(nil, req.Body, maxUploadBytes)

	ct := req.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
			return cmd, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		f, hdr, err := req.FormFile("image")
		if err != nil {
			return cmd, fmt.Errorf("%w: missing image file", domain.ErrInvalidInput)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return cmd, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		cmd.Data = data
		cmd.MIME = hdr.Header.Get("Content-Type")
		cmd.Category = req.FormValue("category")
		return cmd, nil
	}

	var body struct {
		Image    string `json:"image"`
		MIME     string `json:"mime"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return cmd, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	data, err := base64.StdEncoding.DecodeString(body.Image)
	if err != nil {
		return cmd, fmt.Errorf("%w: image is not valid base64", domain.ErrInvalidInput)
	}
	cmd.Data = data
	cmd.MIME = body.MIME
	cmd.Category = body.Category
	return cmd, nil
}

// GET /v1/appraisals/{id}
//
// Polling endpoint. Reads never block on writes and a result is never
// forgotten once written. Suggested client policy: ~2s initial grace, ~3s
// interval, give up with a manual-refresh prompt after ~3 minutes.
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAppraisalID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	a, err := r.appraisalsSvc.Get(req.Context(), domain.AppraisalID(id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(toSnapshot(a))
}

// POST /v1/appraisals/{id}/retry
// Runs one synchronous completion cycle; the caller waits for it.
func (r *Router) handleRetry(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAppraisalID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	middleware.IncrementAppraisalsRetried()
	a, err := r.appraisalsSvc.Retry(req.Context(), domain.AppraisalID(id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(toSnapshot(a))
}

// POST /v1/webhooks/payment
// Acknowledges before background completion runs; only a bad signature or a
// store failure is surfaced to the provider.
func (r *Router) handlePaymentWebhook(w http.ResponseWriter, req *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	sig := req.Header.Get("X-Payment-Signature")
	if err := r.paymentsSvc.HandleEvent(req.Context(), sig, body); err != nil {
		if errors.Is(err, dompay.ErrBadSignature) {
			middleware.IncrementWebhooksRejected()
		}
		return err
	}
	middleware.IncrementAppraisalsScheduled()

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{
		"status":     "received",
		"receivedAt": time.Now(),
	})
}

// GET /v1/appraisals/{id}/events (ops)
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	if r.audit == nil {
		http.Error(w, "audit log not configured", http.StatusNotImplemented)
		return nil
	}
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAppraisalID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	list, err := r.audit.ListByRecord(req.Context(), id, middleware.ValidateLimit(0))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /metrics (ops): in-process counters plus the store-backed lifecycle
// counters.
func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	out := middleware.GetMetrics()

	counters := map[string]int64{}
	for _, name := range []string{appraisals.CounterCreated, appraisals.CounterCompleted, appraisals.CounterFailed} {
		if v, err := r.appraisalsSvc.Repo.Count(req.Context(), name); err == nil {
			counters[name] = v
		}
	}
	out["store_counters"] = counters

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
