package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/dedup"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/ensemble"
	"github.com/opensource-finance/shrike/internal/predict"
)

// PredictionIDHeader carries the audit-trail record ID of a freshly
// served prediction.
const PredictionIDHeader = "X-Prediction-ID"

// predictionCacheTTL bounds how long a scored invoice is served from
// cache. Reloading models does not invalidate entries early; the TTL
// is the staleness bound.
const predictionCacheTTL = 10 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	service *predict.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	tracker *dedup.Tracker

	modelsDir string
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(service *predict.Service, repo domain.Repository, c domain.Cache, bus domain.EventBus, tracker *dedup.Tracker, modelsDir, version string) *Handler {
	return &Handler{
		service:   service,
		repo:      repo,
		cache:     c,
		bus:       bus,
		tracker:   tracker,
		modelsDir: modelsDir,
		version:   version,
	}
}

// Predict handles POST /predict and POST /predict/{model}.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	selector := domain.Selector(chi.URLParam(r, "model"))

	var invoice domain.InvoiceRecord
	if err := json.NewDecoder(r.Body).Decode(&invoice); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Duplicate-submission tracking is advisory: it never influences
	// the verdict and a tracker failure never blocks scoring.
	duplicateCount := h.observeDuplicate(r, &invoice)

	contentHash := cache.ContentHash(&invoice, selector)
	if h.cache != nil {
		cached, err := h.cache.GetPrediction(ctx, contentHash)
		if err != nil {
			slog.Warn("prediction cache read failed", "error", err)
		} else if cached != nil {
			writeJSON(w, http.StatusOK, h.annotateDuplicate(cached, duplicateCount))
			return
		}
	}

	eval, err := h.service.Predict(ctx, &invoice, selector)
	if err != nil {
		writePredictError(w, err)
		return
	}

	record := &domain.PredictionRecord{
		ID:        uuid.New().String(),
		InvoiceID: invoice.InvoiceID,
		Invoice:   invoice,
		Result:    eval.Result,
		Score:     eval.Score,
		TraceID:   traceID,
		CreatedAt: time.Now().UTC(),
	}

	if h.repo != nil {
		if err := h.repo.SavePrediction(ctx, record); err != nil {
			slog.Error("failed to save prediction", "id", record.ID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetPrediction(ctx, contentHash, &eval.Result, predictionCacheTTL); err != nil {
			slog.Warn("prediction cache write failed", "error", err)
		}
	}

	h.publishPredictionEvents(r, record)

	w.Header().Set(PredictionIDHeader, record.ID)
	writeJSON(w, http.StatusOK, h.annotateDuplicate(&eval.Result, duplicateCount))
}

// observeDuplicate records the submission and returns the in-window
// count, or 0 when tracking is unavailable.
func (h *Handler) observeDuplicate(r *http.Request, invoice *domain.InvoiceRecord) int64 {
	if h.tracker == nil || invoice.InvoiceID == "" {
		return 0
	}

	count, err := h.tracker.Observe(r.Context(), invoice.InvoiceID)
	if err != nil {
		slog.Warn("duplicate tracking failed", "invoice_id", invoice.InvoiceID, "error", err)
		return 0
	}

	if dedup.IsDuplicate(count) {
		slog.Warn("duplicate invoice submission",
			"invoice_id", invoice.InvoiceID,
			"count", count,
		)
		if h.bus != nil {
			payload, _ := json.Marshal(map[string]any{
				"invoice_id": invoice.InvoiceID,
				"count":      count,
			})
			if err := h.bus.Publish(r.Context(), domain.TopicDuplicateDetected, payload); err != nil {
				slog.Warn("failed to publish duplicate event", "error", err)
			}
		}
	}
	return count
}

// annotateDuplicate appends the duplicate warning to a copy of the
// result. The scored result itself stays untouched so the cache and
// the audit trail keep the deterministic verdict.
func (h *Handler) annotateDuplicate(result *domain.PredictionResult, count int64) *domain.PredictionResult {
	if !dedup.IsDuplicate(count) {
		return result
	}

	annotated := *result
	annotated.Warnings = append(append([]string(nil), result.Warnings...),
		"duplicate submission: invoice ID seen before in tracking window")
	return &annotated
}

func (h *Handler) publishPredictionEvents(r *http.Request, record *domain.PredictionRecord) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		slog.Error("failed to marshal prediction event", "error", err)
		return
	}

	if err := h.bus.Publish(r.Context(), domain.TopicPredictionCompleted, payload); err != nil {
		slog.Warn("failed to publish prediction event", "error", err)
	}
	if record.Result.IsFake {
		if err := h.bus.Publish(r.Context(), domain.TopicInvoiceFlagged, payload); err != nil {
			slog.Warn("failed to publish flagged event", "error", err)
		}
	}
}

// SubmitResponse is the response for POST /submit.
type SubmitResponse struct {
	Status    string `json:"status"`
	InvoiceID string `json:"invoice_id"`
}

// Submit handles POST /submit: the invoice is validated, queued on the
// event bus, and scored asynchronously by the worker.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var invoice domain.InvoiceRecord
	if err := json.NewDecoder(r.Body).Decode(&invoice); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := invoice.Validate(); err != nil {
		writePredictError(w, err)
		return
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	payload, err := json.Marshal(&invoice)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode invoice",
		})
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicInvoiceSubmitted, payload); err != nil {
		slog.Error("failed to publish submission", "invoice_id", invoice.InvoiceID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue invoice",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		Status:    "queued",
		InvoiceID: invoice.InvoiceID,
	})
}

// Features handles GET /features.
func (h *Handler) Features(w http.ResponseWriter, r *http.Request) {
	names := h.service.FeatureNames()
	writeJSON(w, http.StatusOK, map[string]any{
		"features": names,
		"count":    len(names),
	})
}

// Models handles GET /models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	names := h.service.ModelNames()
	writeJSON(w, http.StatusOK, map[string]any{
		"models": names,
		"count":  len(names),
	})
}

// GetPrediction handles GET /predictions/{id}.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "prediction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	record, err := h.repo.GetPrediction(ctx, id)
	if err != nil {
		slog.Error("failed to get prediction", "id", id, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "prediction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// ReloadModels handles POST /models/reload. A fresh registry is loaded
// and validated first, then swapped in atomically; a failed load leaves
// the serving registry untouched.
func (h *Handler) ReloadModels(w http.ResponseWriter, r *http.Request) {
	var reg *ensemble.Registry
	var err error

	if h.modelsDir != "" {
		reg, err = ensemble.LoadDir(h.modelsDir)
		if err != nil {
			slog.Error("model reload failed", "dir", h.modelsDir, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load model artifacts: " + err.Error(),
			})
			return
		}
	} else {
		reg = ensemble.BuiltinRegistry()
	}

	h.service.ReloadModels(reg)

	slog.Info("models reloaded", "count", reg.Len(), "models", reg.Names())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "models reloaded successfully",
		"count":   reg.Len(),
		"models":  reg.Names(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	modelCount := len(h.service.ModelNames())
	if modelCount == 0 && !h.service.AnomalyAvailable() {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"version":           h.version,
		"models_loaded":     modelCount,
		"anomaly_available": h.service.AnomalyAvailable(),
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writePredictError maps pipeline errors to HTTP status codes.
func writePredictError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
		return
	}

	var unknown *domain.UnknownModelError
	if errors.As(err, &unknown) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": unknown.Error(),
		})
		return
	}

	var unavailable *domain.ModelUnavailableError
	if errors.As(err, &unavailable) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": unavailable.Error(),
		})
		return
	}

	if errors.Is(err, domain.ErrPredictionUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Error("prediction failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
