// Package worker provides async invoice scoring from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/predict"
)

// Worker scores submitted invoices asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	service *predict.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, service *predict.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the submission topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicInvoiceSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicInvoiceSubmitted,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processInvoice(ctx, msg)
}

// processInvoice scores a submitted invoice through the pipeline.
func (w *Worker) processInvoice(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var invoice domain.InvoiceRecord
	if err := json.Unmarshal(msg.Payload, &invoice); err != nil {
		slog.Error("failed to parse invoice message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("processing invoice",
		"invoice_id", invoice.InvoiceID,
		"message_id", msg.ID,
	)

	eval, err := w.service.Predict(ctx, &invoice, domain.SelectorAll)
	if err != nil {
		slog.Error("async prediction failed",
			"invoice_id", invoice.InvoiceID,
			"error", err,
		)
		return err
	}

	record := &domain.PredictionRecord{
		ID:        uuid.New().String(),
		InvoiceID: invoice.InvoiceID,
		Invoice:   invoice,
		Result:    eval.Result,
		Score:     eval.Score,
		TraceID:   msg.ID,
		CreatedAt: time.Now().UTC(),
	}

	if w.repo != nil {
		if err := w.repo.SavePrediction(ctx, record); err != nil {
			slog.Error("failed to save prediction",
				"invoice_id", invoice.InvoiceID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(record)
	if err := w.bus.Publish(ctx, domain.TopicPredictionCompleted, resultPayload); err != nil {
		slog.Error("failed to publish prediction",
			"invoice_id", invoice.InvoiceID,
			"error", err,
		)
	}

	if eval.Result.IsFake {
		if err := w.bus.Publish(ctx, domain.TopicInvoiceFlagged, resultPayload); err != nil {
			slog.Error("failed to publish flagged invoice",
				"invoice_id", invoice.InvoiceID,
				"error", err,
			)
		}
	}

	slog.Info("invoice processed",
		"invoice_id", invoice.InvoiceID,
		"is_fake", eval.Result.IsFake,
		"model_used", eval.Result.ModelUsed,
		"score", eval.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
