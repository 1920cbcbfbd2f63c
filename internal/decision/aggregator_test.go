package decision

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/shrike/internal/domain"
)

func TestAggregateBlend(t *testing.T) {
	agg := NewAggregator()

	out, err := agg.Aggregate(Input{
		Selector:         domain.SelectorAll,
		Probabilities:    map[string]float64{"a": 0.8, "b": 0.6},
		ExpectedModels:   2,
		AnomalyScore:     0.9,
		AnomalyAvailable: true,
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	want := 0.7*0.7 + 0.3*0.9
	if math.Abs(out.Score-want) > 1e-9 {
		t.Errorf("expected score %.4f, got %.4f", want, out.Score)
	}
	if !out.IsFake {
		t.Error("score above threshold should flag the invoice")
	}
	if out.ModelUsed != domain.ModelEnsemble {
		t.Errorf("expected model_used ensemble, got %s", out.ModelUsed)
	}
	if len(out.Warnings) != 0 {
		t.Errorf("healthy path should carry no warnings, got %v", out.Warnings)
	}
}

func TestAggregateSingleModel(t *testing.T) {
	agg := NewAggregator()

	out, err := agg.Aggregate(Input{
		Selector:         "xgboost",
		Probabilities:    map[string]float64{"xgboost": 0.3},
		ExpectedModels:   1,
		AnomalyScore:     0.99,
		AnomalyAvailable: true,
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}

	// The anomaly score must not leak into a single-model verdict.
	if out.Score != 0.3 {
		t.Errorf("expected raw model probability 0.3, got %.4f", out.Score)
	}
	if out.IsFake {
		t.Error("0.3 is below threshold")
	}
	if out.ModelUsed != "xgboost" {
		t.Errorf("expected model_used xgboost, got %s", out.ModelUsed)
	}
	if out.Confidence != 70 {
		t.Errorf("expected confidence 70, got %.2f", out.Confidence)
	}
}

func TestAggregateSingleModelMissing(t *testing.T) {
	agg := NewAggregator()

	_, err := agg.Aggregate(Input{
		Selector:      "random_forest",
		Probabilities: map[string]float64{},
	})
	var unavailable *domain.ModelUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ModelUnavailableError, got %v", err)
	}
}

func TestAggregateAnomalyMissing(t *testing.T) {
	agg := NewAggregator()

	out, err := agg.Aggregate(Input{
		Selector:         domain.SelectorAll,
		Probabilities:    map[string]float64{"a": 0.2},
		ExpectedModels:   1,
		AnomalyAvailable: false,
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if out.Score != 0.2 {
		t.Errorf("expected classifier-only score 0.2, got %.4f", out.Score)
	}
	if out.ModelUsed != domain.ModelEnsemble {
		t.Errorf("expected model_used ensemble, got %s", out.ModelUsed)
	}
	if len(out.Warnings) == 0 {
		t.Error("degraded path must carry a warning")
	}
}

func TestAggregateAnomalyFallback(t *testing.T) {
	agg := NewAggregator()

	out, err := agg.Aggregate(Input{
		Selector:         domain.SelectorAll,
		Probabilities:    nil,
		ExpectedModels:   2,
		AnomalyScore:     0.85,
		AnomalyAvailable: true,
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if out.ModelUsed != domain.ModelAnomalyFallback {
		t.Errorf("expected anomaly_fallback, got %s", out.ModelUsed)
	}
	if out.Score != 0.85 {
		t.Errorf("expected anomaly score 0.85, got %.4f", out.Score)
	}
	if len(out.Warnings) == 0 {
		t.Error("fallback path must carry a warning")
	}
}

func TestAggregateNothingAvailable(t *testing.T) {
	agg := NewAggregator()

	_, err := agg.Aggregate(Input{
		Selector:         domain.SelectorAll,
		AnomalyAvailable: false,
	})
	if !errors.Is(err, domain.ErrPredictionUnavailable) {
		t.Fatalf("expected ErrPredictionUnavailable, got %v", err)
	}
}

func TestAggregatePartialEnsembleWarns(t *testing.T) {
	agg := NewAggregator()

	out, err := agg.Aggregate(Input{
		Selector:         domain.SelectorAll,
		Probabilities:    map[string]float64{"a": 0.4},
		ExpectedModels:   3,
		AnomalyScore:     0.1,
		AnomalyAvailable: true,
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if len(out.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", out.Warnings)
	}
	if out.Warnings[0] != "2 of 3 classifiers unavailable" {
		t.Errorf("unexpected warning %q", out.Warnings[0])
	}
}

func TestConfidenceSymmetry(t *testing.T) {
	for _, p := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
		a := Confidence(p)
		b := Confidence(1 - p)
		if math.Abs(a-b) > 1e-9 {
			t.Errorf("confidence not symmetric at %.2f: %.4f vs %.4f", p, a, b)
		}
		if a < 50 || a > 100 {
			t.Errorf("confidence out of [50,100] at %.2f: %.4f", p, a)
		}
	}
	if Confidence(0.5) != 50 {
		t.Errorf("indecision should give 50, got %.2f", Confidence(0.5))
	}
	if Confidence(1) != 100 {
		t.Errorf("certainty should give 100, got %.2f", Confidence(1))
	}
}

func TestThresholdBoundary(t *testing.T) {
	agg := NewAggregator()

	out, err := agg.Aggregate(Input{
		Selector:         domain.SelectorAll,
		Probabilities:    map[string]float64{"a": 0.5},
		ExpectedModels:   1,
		AnomalyScore:     0.5,
		AnomalyAvailable: true,
	})
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if !out.IsFake {
		t.Error("score exactly at threshold should flag")
	}
}

func TestRiskLabel(t *testing.T) {
	if got := RiskLabel(true, 95); got != "flagged" {
		t.Errorf("expected flagged, got %s", got)
	}
	if got := RiskLabel(false, 95); got != "low_risk" {
		t.Errorf("expected low_risk, got %s", got)
	}
	if got := RiskLabel(false, 60); got != "review" {
		t.Errorf("expected review, got %s", got)
	}
}
