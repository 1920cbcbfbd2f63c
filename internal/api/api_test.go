package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/anomaly"
	"github.com/opensource-finance/shrike/internal/bus"
	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/decision"
	"github.com/opensource-finance/shrike/internal/dedup"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/ensemble"
	"github.com/opensource-finance/shrike/internal/explain"
	"github.com/opensource-finance/shrike/internal/features"
	"github.com/opensource-finance/shrike/internal/predict"
)

var fixedClock = func() time.Time {
	return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
}

// createTestServer creates a server with the full community stack
// except persistence, which the API treats as optional.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	expl, err := explain.NewExplainer(explain.DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("explainer setup failed: %v", err)
	}

	service := predict.NewService(
		features.NewExtractorWithClock(fixedClock),
		anomaly.NewScorer(anomaly.DefaultReference()),
		ensemble.New(ensemble.BuiltinRegistry(), 4, nil),
		decision.NewAggregator(),
		expl,
		nil,
	)

	lruCache := cache.NewLRUCache(100)
	t.Cleanup(func() { lruCache.Close() })

	channelBus := bus.NewChannelBus(100)
	t.Cleanup(func() { channelBus.Close() })

	tracker := dedup.NewTracker(lruCache, nil, time.Minute)

	return NewServer(cfg, service, nil, lruCache, channelBus, tracker, "", "test-v1")
}

func postInvoice(t *testing.T, server *Server, path string, invoice any) *httptest.ResponseRecorder {
	t.Helper()

	body, _ := json.Marshal(invoice)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func genuineInvoice() domain.InvoiceRecord {
	return domain.InvoiceRecord{
		InvoiceID:   "INV-1234",
		VendorName:  "Microsoft Corporation",
		Amount:      1500.00,
		TaxAmount:   270.00,
		TaxRate:     0.18,
		Description: "Software licensing and support services",
		Date:        "2024-01-15",
	}
}

func suspiciousInvoice() domain.InvoiceRecord {
	return domain.InvoiceRecord{
		InvoiceID:   "XYZABC123",
		VendorName:  "Microsft Corp",
		Amount:      10000.00,
		TaxAmount:   1800.00,
		TaxRate:     0.18,
		Description: "Miscellaneous services and products",
		Date:        "2024-01-20",
	}
}

func TestPredictEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("GenuineInvoice", func(t *testing.T) {
		rr := postInvoice(t, server, "/predict", genuineInvoice())

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.PredictionResult
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.IsFake {
			t.Error("genuine invoice flagged as fake")
		}
		if resp.ModelUsed != domain.ModelEnsemble {
			t.Errorf("expected model_used ensemble, got %s", resp.ModelUsed)
		}
		if rr.Header().Get(PredictionIDHeader) == "" {
			t.Error("expected X-Prediction-ID header")
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected X-Trace-ID header")
		}
	})

	t.Run("SuspiciousInvoice", func(t *testing.T) {
		rr := postInvoice(t, server, "/predict", suspiciousInvoice())

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.PredictionResult
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if !resp.IsFake {
			t.Error("suspicious invoice not flagged")
		}
		if _, ok := resp.RiskFactors.Get("vendor_name"); !ok {
			t.Errorf("expected vendor_name risk factor, got %v", resp.RiskFactors.Keys())
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		bad := genuineInvoice()
		bad.TaxRate = 1.5
		rr := postInvoice(t, server, "/predict", bad)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), "tax_rate") {
			t.Errorf("expected tax_rate in error body: %s", rr.Body.String())
		}
	})
}

func TestPredictModelEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SingleModel", func(t *testing.T) {
		rr := postInvoice(t, server, "/predict/xgboost", genuineInvoice())

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.PredictionResult
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.ModelUsed != "xgboost" {
			t.Errorf("expected model_used xgboost, got %s", resp.ModelUsed)
		}
	})

	t.Run("UnknownModel", func(t *testing.T) {
		rr := postInvoice(t, server, "/predict/neural_net", genuineInvoice())

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestPredictDuplicateWarning(t *testing.T) {
	server := createTestServer(t)

	first := postInvoice(t, server, "/predict", suspiciousInvoice())
	if first.Code != http.StatusOK {
		t.Fatalf("first submission failed: %d", first.Code)
	}
	var firstResp domain.PredictionResult
	json.Unmarshal(first.Body.Bytes(), &firstResp)
	for _, w := range firstResp.Warnings {
		if strings.Contains(w, "duplicate") {
			t.Errorf("first submission should not warn about duplicates: %v", firstResp.Warnings)
		}
	}

	second := postInvoice(t, server, "/predict", suspiciousInvoice())
	if second.Code != http.StatusOK {
		t.Fatalf("second submission failed: %d", second.Code)
	}
	var secondResp domain.PredictionResult
	json.Unmarshal(second.Body.Bytes(), &secondResp)

	found := false
	for _, w := range secondResp.Warnings {
		if strings.Contains(w, "duplicate") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected duplicate warning on repeat submission, got %v", secondResp.Warnings)
	}

	// Verdict fields must match the first response exactly.
	if secondResp.IsFake != firstResp.IsFake || secondResp.Confidence != firstResp.Confidence {
		t.Error("duplicate annotation must not change the verdict")
	}
}

func TestSubmitEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("Queued", func(t *testing.T) {
		rr := postInvoice(t, server, "/submit", genuineInvoice())

		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp SubmitResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Status != "queued" {
			t.Errorf("expected status queued, got %s", resp.Status)
		}
		if resp.InvoiceID != "INV-1234" {
			t.Errorf("expected invoice_id INV-1234, got %s", resp.InvoiceID)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		bad := genuineInvoice()
		bad.Amount = -5
		rr := postInvoice(t, server, "/submit", bad)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestFeaturesEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/features", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Features []string `json:"features"`
		Count    int      `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 15 || len(resp.Features) != 15 {
		t.Errorf("expected 15 features, got count=%d len=%d", resp.Count, len(resp.Features))
	}
	if resp.Features[0] != "vendor_name_similarity" {
		t.Errorf("expected vendor_name_similarity first, got %s", resp.Features[0])
	}
}

func TestModelsEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Models []string `json:"models"`
		Count  int      `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("expected 2 builtin models, got %v", resp.Models)
	}
}

func TestReloadEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/models/reload", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("expected 2 models after builtin reload, got %d", resp.Count)
	}
}

func TestGetPredictionEndpoint(t *testing.T) {
	server := createTestServer(t)

	// No repository wired: retrieval is unavailable.
	req := httptest.NewRequest(http.MethodGet, "/predictions/some-id", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 without repository, got %d", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Status           string `json:"status"`
		Version          string `json:"version"`
		ModelsLoaded     int    `json:"models_loaded"`
		AnomalyAvailable bool   `json:"anomaly_available"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
	if resp.Version != "test-v1" {
		t.Errorf("expected version test-v1, got %s", resp.Version)
	}
	if resp.ModelsLoaded != 2 || !resp.AnomalyAvailable {
		t.Errorf("unexpected health detail: %+v", resp)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}
