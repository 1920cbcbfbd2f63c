package ensemble

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Registry is an immutable set of loaded classifiers. It is built once
// (at startup or on reload) and then only read; hot reload replaces the
// whole registry via atomic pointer swap in the Ensemble.
type Registry struct {
	byName map[string]domain.Classifier
	names  []string // sorted, for stable iteration and listings
}

// NewRegistry builds a registry from loaded classifiers. Duplicate names
// are rejected: model identifiers are part of the API contract.
func NewRegistry(classifiers ...domain.Classifier) (*Registry, error) {
	byName := make(map[string]domain.Classifier, len(classifiers))
	names := make([]string, 0, len(classifiers))
	for _, c := range classifiers {
		if _, ok := byName[c.Name()]; ok {
			return nil, fmt.Errorf("duplicate model name %q", c.Name())
		}
		byName[c.Name()] = c
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return &Registry{byName: byName, names: names}, nil
}

// Get returns the classifier with the given name.
func (r *Registry) Get(name string) (domain.Classifier, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns the sorted model identifiers.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of loaded classifiers.
func (r *Registry) Len() int {
	return len(r.names)
}

// artifact is the on-disk JSON envelope for one trained classifier.
// The artifact is opaque and versioned; only the fields of its declared
// type are read.
type artifact struct {
	Name    string `json:"name"`
	Type    string `json:"type"` // "logistic" or "forest"
	Version string `json:"version"`

	// logistic fields
	Intercept float64            `json:"intercept,omitempty"`
	Weights   map[string]float64 `json:"weights,omitempty"`
	Scaler    map[string]Scaler  `json:"scaler,omitempty"`

	// forest fields
	Mode  string  `json:"mode,omitempty"`
	Bias  float64 `json:"bias,omitempty"`
	Trees []Tree  `json:"trees,omitempty"`
}

// LoadArtifact parses a single classifier artifact.
func LoadArtifact(data []byte) (domain.Classifier, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}

	switch a.Type {
	case "logistic":
		return NewLogisticModel(a.Name, a.Version, a.Intercept, a.Weights, a.Scaler)
	case "forest":
		return NewForestModel(a.Name, a.Version, a.Mode, a.Bias, a.Trees)
	default:
		return nil, fmt.Errorf("model %q: unsupported artifact type %q", a.Name, a.Type)
	}
}

// LoadDir loads every *.json artifact in dir into a fresh registry.
// A directory with no artifacts yields an empty registry, which the
// pipeline treats as degraded rather than fatal.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read models dir: %w", err)
	}

	var classifiers []domain.Classifier
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		c, err := LoadArtifact(data)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", path, err)
		}
		classifiers = append(classifiers, c)
	}

	return NewRegistry(classifiers...)
}
