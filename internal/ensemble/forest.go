package ensemble

import (
	"fmt"
	"math"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Forest combination modes.
const (
	// ModeAverage averages leaf probabilities (random-forest style).
	ModeAverage = "average"

	// ModeLogitSum sums leaf logit contributions onto a bias and applies
	// the sigmoid (gradient-boosting style).
	ModeLogitSum = "logit_sum"
)

// TreeNode is one node of a decision tree, stored in a flat array.
// Internal nodes route on feature < threshold (left) vs >= (right);
// leaves carry a value: a probability in ModeAverage, a logit
// contribution in ModeLogitSum.
type TreeNode struct {
	Feature   string  `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Tree is a single decision tree.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// ForestModel is a decision-forest classifier loaded from a trained
// artifact. It covers both bagged forests and boosted ensembles via Mode.
type ForestModel struct {
	name    string
	version string
	mode    string
	bias    float64
	trees   []Tree
}

// NewForestModel builds a classifier from artifact fields.
func NewForestModel(name, version, mode string, bias float64, trees []Tree) (*ForestModel, error) {
	if name == "" {
		return nil, fmt.Errorf("forest model requires a name")
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("forest model %s has no trees", name)
	}
	if mode != ModeAverage && mode != ModeLogitSum {
		return nil, fmt.Errorf("forest model %s: unsupported mode %q", name, mode)
	}
	for ti, tree := range trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("forest model %s: tree %d is empty", name, ti)
		}
		for ni, node := range tree.Nodes {
			if node.Leaf {
				continue
			}
			if node.Left < 0 || node.Left >= len(tree.Nodes) ||
				node.Right < 0 || node.Right >= len(tree.Nodes) {
				return nil, fmt.Errorf("forest model %s: tree %d node %d has out-of-range children", name, ti, ni)
			}
		}
	}
	return &ForestModel{
		name:    name,
		version: version,
		mode:    mode,
		bias:    bias,
		trees:   trees,
	}, nil
}

// Name returns the model identifier.
func (m *ForestModel) Name() string { return m.name }

// Version returns the artifact version.
func (m *ForestModel) Version() string { return m.version }

// PredictProbability walks every tree and combines leaf values per Mode.
func (m *ForestModel) PredictProbability(vector domain.FeatureVector) (float64, error) {
	total := 0.0
	for ti := range m.trees {
		v, err := m.evalTree(&m.trees[ti], vector)
		if err != nil {
			return 0, fmt.Errorf("model %s tree %d: %w", m.name, ti, err)
		}
		total += v
	}

	var p float64
	switch m.mode {
	case ModeAverage:
		p = total / float64(len(m.trees))
	case ModeLogitSum:
		p = sigmoid(m.bias + total)
	}

	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("model %s produced invalid probability %v", m.name, p)
	}
	return p, nil
}

func (m *ForestModel) evalTree(tree *Tree, vector domain.FeatureVector) (float64, error) {
	idx := 0
	// A well-formed tree terminates in at most len(Nodes) hops.
	for steps := 0; steps <= len(tree.Nodes); steps++ {
		node := &tree.Nodes[idx]
		if node.Leaf {
			return node.Value, nil
		}
		v, ok := vector[node.Feature]
		if !ok {
			return 0, fmt.Errorf("feature %q not in vector: artifact/schema mismatch", node.Feature)
		}
		if v < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return 0, fmt.Errorf("tree walk did not reach a leaf (cycle in artifact)")
}
