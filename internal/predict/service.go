// Package predict orchestrates the scoring pipeline: features, anomaly
// detection, classifier ensemble, aggregation, explanation.
package predict

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opensource-finance/shrike/internal/anomaly"
	"github.com/opensource-finance/shrike/internal/decision"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/ensemble"
	"github.com/opensource-finance/shrike/internal/explain"
	"github.com/opensource-finance/shrike/internal/features"
)

// Evaluation is the full pipeline output for one invoice: the wire
// result plus the internals the audit trail records.
type Evaluation struct {
	Result domain.PredictionResult
	Score  float64
	Vector domain.FeatureVector
}

// Service runs the scoring pipeline. It performs no I/O of its own:
// persistence, caching, and event publication belong to its callers,
// so identical invoices always produce identical evaluations.
type Service struct {
	extractor  *features.Extractor
	scorer     *anomaly.Scorer
	ensemble   *ensemble.Ensemble
	aggregator *decision.Aggregator
	explainer  *explain.Explainer
	logger     *slog.Logger
}

// NewService wires the pipeline stages together.
func NewService(ex *features.Extractor, sc *anomaly.Scorer, en *ensemble.Ensemble, ag *decision.Aggregator, expl *explain.Explainer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractor:  ex,
		scorer:     sc,
		ensemble:   en,
		aggregator: ag,
		explainer:  expl,
		logger:     logger,
	}
}

// Predict scores one invoice with the selected models.
//
// Validation failures surface as domain.ValidationError before any
// scoring runs. The anomaly scorer and the classifier ensemble run
// concurrently; their outputs are blended by the aggregator and the
// final vector is explained into risk factors.
func (s *Service) Predict(ctx context.Context, invoice *domain.InvoiceRecord, selector domain.Selector) (*Evaluation, error) {
	vector, err := s.extractor.Extract(invoice)
	if err != nil {
		return nil, err
	}

	expected := s.ensemble.Registry().Len()
	if !selector.IsAll() {
		expected = 1
	}

	var (
		wg           sync.WaitGroup
		anomalyScore float64
		preds        []ensemble.Prediction
		predErr      error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		anomalyScore = s.scorer.Score(vector)
	}()

	preds, predErr = s.ensemble.Predict(ctx, vector, selector)
	wg.Wait()

	if predErr != nil {
		return nil, predErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	probabilities := make(map[string]float64, len(preds))
	for _, p := range preds {
		probabilities[p.Model] = p.Probability
	}

	outcome, err := s.aggregator.Aggregate(decision.Input{
		Selector:         selector,
		Probabilities:    probabilities,
		ExpectedModels:   expected,
		AnomalyScore:     anomalyScore,
		AnomalyAvailable: s.scorer.Available(),
	})
	if err != nil {
		return nil, err
	}

	result := domain.PredictionResult{
		IsFake:      outcome.IsFake,
		Confidence:  outcome.Confidence,
		ModelUsed:   outcome.ModelUsed,
		RiskFactors: s.explainer.Explain(vector),
		Warnings:    outcome.Warnings,
	}

	s.logger.Debug("invoice scored",
		"invoice_id", invoice.InvoiceID,
		"model_used", result.ModelUsed,
		"score", outcome.Score,
		"risk", decision.RiskLabel(result.IsFake, result.Confidence))

	return &Evaluation{Result: result, Score: outcome.Score, Vector: vector}, nil
}

// FeatureNames returns the feature registry in schema order.
func (s *Service) FeatureNames() []string {
	return features.Names()
}

// ModelNames returns the identifiers of the loaded classifiers.
func (s *Service) ModelNames() []string {
	return s.ensemble.ModelNames()
}

// ReloadModels atomically swaps in a new classifier registry.
func (s *Service) ReloadModels(reg *ensemble.Registry) {
	s.ensemble.Reload(reg)
}

// AnomalyAvailable reports whether the anomaly reference is loaded.
func (s *Service) AnomalyAvailable() bool {
	return s.scorer.Available()
}
