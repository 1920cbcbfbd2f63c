package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/anomaly"
	"github.com/opensource-finance/shrike/internal/bus"
	"github.com/opensource-finance/shrike/internal/decision"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/ensemble"
	"github.com/opensource-finance/shrike/internal/explain"
	"github.com/opensource-finance/shrike/internal/features"
	"github.com/opensource-finance/shrike/internal/predict"
)

var fixedClock = func() time.Time {
	return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T) *predict.Service {
	t.Helper()
	expl, err := explain.NewExplainer(explain.DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("explainer setup failed: %v", err)
	}
	return predict.NewService(
		features.NewExtractorWithClock(fixedClock),
		anomaly.NewScorer(anomaly.DefaultReference()),
		ensemble.New(ensemble.BuiltinRegistry(), 4, nil),
		decision.NewAggregator(),
		expl,
		nil,
	)
}

func awaitRecord(t *testing.T, ch <-chan *domain.PredictionRecord) *domain.PredictionRecord {
	t.Helper()
	select {
	case rec := <-ch:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for prediction record")
		return nil
	}
}

func TestWorkerProcessesSubmission(t *testing.T) {
	channelBus := bus.NewChannelBus(100)
	defer channelBus.Close()

	w := NewWorker(channelBus, nil, newTestService(t))
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	completed := make(chan *domain.PredictionRecord, 1)
	_, err := channelBus.Subscribe(context.Background(), domain.TopicPredictionCompleted, func(ctx context.Context, msg *domain.Message) error {
		var rec domain.PredictionRecord
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			return err
		}
		completed <- &rec
		return nil
	})
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	invoice := domain.InvoiceRecord{
		InvoiceID:   "INV-1234",
		VendorName:  "Microsoft Corporation",
		Amount:      1500.00,
		TaxAmount:   270.00,
		TaxRate:     0.18,
		Description: "Software licensing and support services",
		Date:        "2024-01-15",
	}
	payload, _ := json.Marshal(&invoice)
	if err := channelBus.Publish(context.Background(), domain.TopicInvoiceSubmitted, payload); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	rec := awaitRecord(t, completed)
	if rec.InvoiceID != "INV-1234" {
		t.Errorf("expected invoice INV-1234, got %s", rec.InvoiceID)
	}
	if rec.ID == "" {
		t.Error("expected record ID to be assigned")
	}
	if rec.Result.IsFake {
		t.Error("genuine invoice flagged as fake")
	}
	if rec.Result.ModelUsed != domain.ModelEnsemble {
		t.Errorf("expected model_used ensemble, got %s", rec.Result.ModelUsed)
	}
}

func TestWorkerPublishesFlagged(t *testing.T) {
	channelBus := bus.NewChannelBus(100)
	defer channelBus.Close()

	w := NewWorker(channelBus, nil, newTestService(t))
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	flagged := make(chan *domain.PredictionRecord, 1)
	_, err := channelBus.Subscribe(context.Background(), domain.TopicInvoiceFlagged, func(ctx context.Context, msg *domain.Message) error {
		var rec domain.PredictionRecord
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			return err
		}
		flagged <- &rec
		return nil
	})
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	invoice := domain.InvoiceRecord{
		InvoiceID:   "XYZABC123",
		VendorName:  "Microsft Corp",
		Amount:      10000.00,
		TaxAmount:   1800.00,
		TaxRate:     0.18,
		Description: "Miscellaneous services and products",
		Date:        "2024-01-20",
	}
	payload, _ := json.Marshal(&invoice)
	if err := channelBus.Publish(context.Background(), domain.TopicInvoiceSubmitted, payload); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	rec := awaitRecord(t, flagged)
	if !rec.Result.IsFake {
		t.Error("flagged topic should only carry fake verdicts")
	}
	if rec.Result.RiskFactors.Len() == 0 {
		t.Error("expected risk factors on a flagged invoice")
	}
}

func TestWorkerIgnoresMalformedPayload(t *testing.T) {
	channelBus := bus.NewChannelBus(100)
	defer channelBus.Close()

	w := NewWorker(channelBus, nil, newTestService(t))
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	completed := make(chan *domain.PredictionRecord, 1)
	channelBus.Subscribe(context.Background(), domain.TopicPredictionCompleted, func(ctx context.Context, msg *domain.Message) error {
		var rec domain.PredictionRecord
		json.Unmarshal(msg.Payload, &rec)
		completed <- &rec
		return nil
	})

	if err := channelBus.Publish(context.Background(), domain.TopicInvoiceSubmitted, []byte("not-json")); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	select {
	case rec := <-completed:
		t.Errorf("malformed payload should not produce a prediction, got %v", rec)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWorkerStop(t *testing.T) {
	channelBus := bus.NewChannelBus(100)
	defer channelBus.Close()

	w := NewWorker(channelBus, nil, newTestService(t))
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("failed to stop worker: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Error("expected no subscriptions after stop")
	}
}
