// Package explain maps a scored feature vector to human-readable risk
// factors using CEL predicates.
package explain

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/features"
)

// RiskRule pairs one risk-factor key with the CEL predicate that
// triggers it and the explanation it reports.
type RiskRule struct {
	Key        string `json:"key"`
	Expression string `json:"expression"`
	Message    string `json:"message"`
}

// compiledRule holds a pre-compiled CEL program for one risk rule.
type compiledRule struct {
	rule    RiskRule
	program cel.Program
}

// Explainer evaluates the risk-rule catalog against a feature vector.
// Rules are compiled once at construction and evaluated in catalog
// order, so risk-factor output order is stable across requests.
type Explainer struct {
	env      *cel.Env
	compiled []compiledRule
	logger   *slog.Logger
}

// NewExplainer compiles the catalog. Every feature in the registry is
// exposed to the expressions as a double variable under its own name.
func NewExplainer(catalog []RiskRule, logger *slog.Logger) (*Explainer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]cel.EnvOption, 0, len(features.Names()))
	for _, name := range features.Names() {
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	seen := make(map[string]bool, len(catalog))
	compiled := make([]compiledRule, 0, len(catalog))
	for _, rule := range catalog {
		if seen[rule.Key] {
			return nil, fmt.Errorf("duplicate risk-factor key %q", rule.Key)
		}
		seen[rule.Key] = true

		ast, issues := env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", rule.Key, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.Key, ast.OutputType())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.Key, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, program: program})
	}

	return &Explainer{env: env, compiled: compiled, logger: logger}, nil
}

// Explain evaluates every rule against the vector and collects the
// triggered explanations in catalog order. A rule that fails to
// evaluate is logged and skipped; one bad rule never takes down the
// explanation step.
func (e *Explainer) Explain(vector domain.FeatureVector) domain.RiskFactors {
	factors := domain.NewRiskFactors()
	activation := vector.Activation()

	for _, c := range e.compiled {
		out, _, err := c.program.Eval(activation)
		if err != nil {
			e.logger.Warn("risk rule evaluation failed",
				"key", c.rule.Key, "error", err)
			continue
		}
		if triggered, ok := out.(types.Bool); ok && bool(triggered) {
			factors.Add(c.rule.Key, c.rule.Message)
		}
	}
	return factors
}

// RulesCount returns the number of compiled rules.
func (e *Explainer) RulesCount() int {
	return len(e.compiled)
}
