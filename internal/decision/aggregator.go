// Package decision turns model outputs into a verdict.
package decision

import (
	"fmt"

	"github.com/opensource-finance/shrike/internal/domain"
)

const (
	// DecisionThreshold is the aggregate score at or above which an
	// invoice is flagged as fake.
	DecisionThreshold = 0.5

	// ClassifierWeight and AnomalyWeight blend the classifier mean with
	// the anomaly score when both signals are present.
	ClassifierWeight = 0.7
	AnomalyWeight    = 0.3

	// LowRiskConfidence is the display bucket boundary used for log
	// labels. It does not influence the verdict.
	LowRiskConfidence = 90.0
)

// Input carries every scoring signal gathered for one invoice.
type Input struct {
	Selector domain.Selector

	// Probabilities maps classifier name to its fake probability.
	// Failed classifiers are absent.
	Probabilities map[string]float64

	// ExpectedModels is how many classifiers were asked to run.
	ExpectedModels int

	AnomalyScore     float64
	AnomalyAvailable bool
}

// Outcome is the aggregated verdict before explanation.
type Outcome struct {
	IsFake     bool
	Confidence float64
	ModelUsed  string
	Score      float64
	Warnings   []string
}

// Aggregator combines classifier probabilities and the anomaly score
// into a single verdict.
type Aggregator struct {
	threshold float64
}

// NewAggregator returns an aggregator using DecisionThreshold.
func NewAggregator() *Aggregator {
	return &Aggregator{threshold: DecisionThreshold}
}

// Aggregate resolves the final score for the request.
//
// Single-model selectors report that classifier's probability directly.
// The full ensemble blends the classifier mean with the anomaly score;
// when one signal is missing the other carries the verdict alone, with
// a warning. With no signal at all the aggregate is unavailable rather
// than defaulting to a verdict.
func (a *Aggregator) Aggregate(in Input) (Outcome, error) {
	if !in.Selector.IsAll() {
		name := string(in.Selector)
		p, ok := in.Probabilities[name]
		if !ok {
			return Outcome{}, &domain.ModelUnavailableError{
				Model: name,
				Err:   fmt.Errorf("no probability produced"),
			}
		}
		return a.finish(p, name, nil), nil
	}

	var warnings []string
	if in.ExpectedModels > 0 && len(in.Probabilities) < in.ExpectedModels {
		warnings = append(warnings, fmt.Sprintf("%d of %d classifiers unavailable",
			in.ExpectedModels-len(in.Probabilities), in.ExpectedModels))
	}

	switch {
	case len(in.Probabilities) > 0 && in.AnomalyAvailable:
		score := ClassifierWeight*mean(in.Probabilities) + AnomalyWeight*in.AnomalyScore
		return a.finish(score, domain.ModelEnsemble, warnings), nil

	case len(in.Probabilities) > 0:
		warnings = append(warnings, "anomaly detector unavailable, classifier-only score")
		return a.finish(mean(in.Probabilities), domain.ModelEnsemble, warnings), nil

	case in.AnomalyAvailable:
		warnings = append(warnings, "no classifiers available, anomaly score only")
		return a.finish(in.AnomalyScore, domain.ModelAnomalyFallback, warnings), nil

	default:
		return Outcome{}, domain.ErrPredictionUnavailable
	}
}

func (a *Aggregator) finish(score float64, modelUsed string, warnings []string) Outcome {
	return Outcome{
		IsFake:     score >= a.threshold,
		Confidence: Confidence(score),
		ModelUsed:  modelUsed,
		Score:      score,
		Warnings:   warnings,
	}
}

// Confidence is the distance from indecision, as a percentage. A score
// of exactly 0.5 yields 50; certainty either way approaches 100.
func Confidence(score float64) float64 {
	if score < 0.5 {
		return (1 - score) * 100
	}
	return score * 100
}

// RiskLabel buckets a confidence value for log output.
func RiskLabel(isFake bool, confidence float64) string {
	switch {
	case isFake:
		return "flagged"
	case confidence >= LowRiskConfidence:
		return "low_risk"
	default:
		return "review"
	}
}

func mean(probs map[string]float64) float64 {
	total := 0.0
	for _, p := range probs {
		total += p
	}
	return total / float64(len(probs))
}
