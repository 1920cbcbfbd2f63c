package ensemble

import (
	"fmt"
	"math"

	"github.com/opensource-finance/shrike/internal/domain"
)

// LogisticModel is a logistic-regression classifier loaded from a trained
// artifact: per-feature weights, an intercept, and an optional scaler.
type LogisticModel struct {
	name      string
	version   string
	intercept float64
	weights   map[string]float64
	scaler    map[string]Scaler
}

// Scaler standardizes one feature before the linear term is applied.
type Scaler struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// NewLogisticModel builds a classifier from artifact fields.
func NewLogisticModel(name, version string, intercept float64, weights map[string]float64, scaler map[string]Scaler) (*LogisticModel, error) {
	if name == "" {
		return nil, fmt.Errorf("logistic model requires a name")
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("logistic model %s has no weights", name)
	}
	return &LogisticModel{
		name:      name,
		version:   version,
		intercept: intercept,
		weights:   weights,
		scaler:    scaler,
	}, nil
}

// Name returns the model identifier.
func (m *LogisticModel) Name() string { return m.name }

// Version returns the artifact version.
func (m *LogisticModel) Version() string { return m.version }

// PredictProbability computes sigmoid(intercept + w . x). A weight that
// references a feature missing from the vector indicates an artifact/schema
// version mismatch and fails this classifier for the request.
func (m *LogisticModel) PredictProbability(vector domain.FeatureVector) (float64, error) {
	z := m.intercept
	for feature, w := range m.weights {
		v, ok := vector[feature]
		if !ok {
			return 0, fmt.Errorf("feature %q not in vector: artifact/schema mismatch", feature)
		}
		if s, ok := m.scaler[feature]; ok && s.Std > 0 {
			v = (v - s.Mean) / s.Std
		}
		z += w * v
	}

	p := sigmoid(z)
	if math.IsNaN(p) {
		return 0, fmt.Errorf("model %s produced NaN probability", m.name)
	}
	return p, nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
