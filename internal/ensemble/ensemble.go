// Package ensemble runs the loaded classifiers over a feature vector.
package ensemble

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Prediction is the probability one classifier assigned to an invoice
// being fake.
type Prediction struct {
	Model       string
	Version     string
	Probability float64
}

// Ensemble dispatches feature vectors to the loaded classifiers. The
// registry is swapped atomically on reload, so in-flight predictions
// keep the registry they started with.
type Ensemble struct {
	registry   atomic.Pointer[Registry]
	maxWorkers int
	logger     *slog.Logger
}

// New creates an ensemble over an initial registry.
func New(reg *Registry, maxWorkers int, logger *slog.Logger) *Ensemble {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Ensemble{maxWorkers: maxWorkers, logger: logger}
	e.registry.Store(reg)
	return e
}

// Reload replaces the registry. Callers load and validate the new
// registry first; a failed load never disturbs the serving set.
func (e *Ensemble) Reload(reg *Registry) {
	e.registry.Store(reg)
}

// Registry returns the currently serving registry.
func (e *Ensemble) Registry() *Registry {
	return e.registry.Load()
}

// ModelNames returns the identifiers of the currently loaded classifiers.
func (e *Ensemble) ModelNames() []string {
	return e.registry.Load().Names()
}

// Predict runs the selected classifiers over the vector.
//
// For a single-model selector the named classifier must be loaded
// (domain.UnknownModelError otherwise) and must succeed
// (domain.ModelUnavailableError otherwise). For the all-models selector
// classifiers run in parallel and individual failures are logged and
// omitted; an empty result slice is the caller's signal to fall back.
func (e *Ensemble) Predict(ctx context.Context, vector domain.FeatureVector, selector domain.Selector) ([]Prediction, error) {
	reg := e.registry.Load()

	if !selector.IsAll() {
		name := string(selector)
		c, ok := reg.Get(name)
		if !ok {
			return nil, &domain.UnknownModelError{Model: name}
		}
		p, err := c.PredictProbability(vector)
		if err != nil {
			return nil, &domain.ModelUnavailableError{Model: name, Err: err}
		}
		return []Prediction{{Model: name, Version: c.Version(), Probability: p}}, nil
	}

	names := reg.Names()
	if len(names) == 0 {
		return nil, nil
	}

	results := make([]*Prediction, len(names))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, name := range names {
		c, _ := reg.Get(name)

		wg.Add(1)
		go func(idx int, c domain.Classifier) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			p, err := c.PredictProbability(vector)
			if err != nil {
				e.logger.Warn("classifier failed, omitting from ensemble",
					"model", c.Name(), "error", err)
				return
			}
			results[idx] = &Prediction{Model: c.Name(), Version: c.Version(), Probability: p}
		}(i, c)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Prediction, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
