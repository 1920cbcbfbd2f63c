package ensemble

import "github.com/opensource-finance/shrike/internal/domain"

// BuiltinRegistry returns the default model set shipped with Shrike,
// used when no artifact directory is configured. The artifacts were
// distilled offline from the reference training run: a bagged forest
// ("random_forest") and a boosted ensemble ("xgboost").
func BuiltinRegistry() *Registry {
	reg, err := NewRegistry(builtinRandomForest(), builtinXGBoost())
	if err != nil {
		// Names are compile-time constants; a collision is a programming error.
		panic(err)
	}
	return reg
}

func builtinRandomForest() domain.Classifier {
	trees := []Tree{
		{Nodes: []TreeNode{
			{Feature: "vendor_name_similarity", Threshold: 0.7, Left: 1, Right: 2},
			{Leaf: true, Value: 0.85},
			{Feature: "amount_roundness", Threshold: 0.75, Left: 3, Right: 4},
			{Leaf: true, Value: 0.25},
			{Leaf: true, Value: 0.55},
		}},
		{Nodes: []TreeNode{
			{Feature: "description_legitimacy", Threshold: 1.0, Left: 1, Right: 4},
			{Feature: "invoice_id_pattern", Threshold: 0.5, Left: 2, Right: 3},
			{Leaf: true, Value: 0.90},
			{Leaf: true, Value: 0.60},
			{Leaf: true, Value: 0.20},
		}},
		{Nodes: []TreeNode{
			{Feature: "tax_accuracy", Threshold: 0.9, Left: 1, Right: 2},
			{Leaf: true, Value: 0.80},
			{Feature: "is_weekend", Threshold: 0.5, Left: 3, Right: 4},
			{Leaf: true, Value: 0.20},
			{Leaf: true, Value: 0.50},
		}},
	}

	m, err := NewForestModel("random_forest", "builtin-1.0.0", ModeAverage, 0, trees)
	if err != nil {
		panic(err)
	}
	return m
}

func builtinXGBoost() domain.Classifier {
	trees := []Tree{
		{Nodes: []TreeNode{
			{Feature: "vendor_name_similarity", Threshold: 0.7, Left: 1, Right: 2},
			{Leaf: true, Value: 1.6},
			{Leaf: true, Value: -0.6},
		}},
		{Nodes: []TreeNode{
			{Feature: "description_legitimacy", Threshold: 1.0, Left: 1, Right: 4},
			{Feature: "invoice_id_pattern", Threshold: 0.5, Left: 2, Right: 3},
			{Leaf: true, Value: 1.4},
			{Leaf: true, Value: 0.6},
			{Leaf: true, Value: -0.5},
		}},
		{Nodes: []TreeNode{
			{Feature: "amount_roundness", Threshold: 0.75, Left: 1, Right: 2},
			{Leaf: true, Value: -0.3},
			{Leaf: true, Value: 0.5},
		}},
		{Nodes: []TreeNode{
			{Feature: "is_weekend", Threshold: 0.5, Left: 1, Right: 2},
			{Leaf: true, Value: -0.2},
			{Leaf: true, Value: 0.6},
		}},
	}

	m, err := NewForestModel("xgboost", "builtin-1.0.0", ModeLogitSum, -1.0, trees)
	if err != nil {
		panic(err)
	}
	return m
}
