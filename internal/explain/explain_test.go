package explain

import (
	"testing"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/features"
)

// cleanVector returns a full-schema vector that triggers no default rule.
func cleanVector() domain.FeatureVector {
	fv := make(domain.FeatureVector, len(features.Names()))
	for _, name := range features.Names() {
		fv[name] = 0
	}
	fv["vendor_name_similarity"] = 1.0
	fv["description_legitimacy"] = 2.0
	fv["tax_accuracy"] = 1.0
	fv["invoice_id_pattern"] = 1.0
	return fv
}

func TestDefaultCatalogCompiles(t *testing.T) {
	e, err := NewExplainer(DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("NewExplainer failed: %v", err)
	}
	if e.RulesCount() != 6 {
		t.Errorf("expected 6 rules, got %d", e.RulesCount())
	}
}

func TestExplainClean(t *testing.T) {
	e, err := NewExplainer(DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("NewExplainer failed: %v", err)
	}

	factors := e.Explain(cleanVector())
	if factors.Len() != 0 {
		t.Errorf("clean vector should trigger nothing, got %v", factors.Keys())
	}

	// An empty mapping still serializes as an object.
	data, err := factors.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("expected {}, got %s", data)
	}
}

func TestExplainTriggered(t *testing.T) {
	e, err := NewExplainer(DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("NewExplainer failed: %v", err)
	}

	fv := cleanVector()
	fv["vendor_name_similarity"] = 0.6
	fv["amount_roundness"] = 1.0
	fv["description_legitimacy"] = 0.0
	fv["is_weekend"] = 1.0
	fv["invoice_id_pattern"] = 0.4

	factors := e.Explain(fv)

	wantKeys := []string{"vendor_name", "amount", "description", "date", "invoice_id"}
	gotKeys := factors.Keys()
	if len(gotKeys) != len(wantKeys) {
		t.Fatalf("expected keys %v, got %v", wantKeys, gotKeys)
	}
	for i, k := range wantKeys {
		if gotKeys[i] != k {
			t.Errorf("key %d: expected %s, got %s", i, k, gotKeys[i])
		}
	}

	if msg, _ := factors.Get("vendor_name"); msg != "Low similarity to known legitimate vendors" {
		t.Errorf("unexpected vendor_name message %q", msg)
	}
	if msg, _ := factors.Get("date"); msg != "Invoice issued on weekend" {
		t.Errorf("unexpected date message %q", msg)
	}
}

func TestExplainThresholdBoundaries(t *testing.T) {
	e, err := NewExplainer(DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("NewExplainer failed: %v", err)
	}

	// Values exactly at the thresholds do not trigger.
	fv := cleanVector()
	fv["vendor_name_similarity"] = 0.7
	fv["amount_roundness"] = 0.5
	fv["tax_accuracy"] = 0.9
	fv["description_legitimacy"] = 1.0
	fv["invoice_id_pattern"] = 0.5

	if factors := e.Explain(fv); factors.Len() != 0 {
		t.Errorf("boundary values should not trigger, got %v", factors.Keys())
	}
}

func TestExplainDeterministicOrder(t *testing.T) {
	e, err := NewExplainer(DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("NewExplainer failed: %v", err)
	}

	fv := cleanVector()
	fv["invoice_id_pattern"] = 0.1
	fv["vendor_name_similarity"] = 0.1

	first := e.Explain(fv).Keys()
	for i := 0; i < 10; i++ {
		got := e.Explain(fv).Keys()
		if len(got) != len(first) {
			t.Fatalf("order not stable: %v vs %v", first, got)
		}
		for j := range got {
			if got[j] != first[j] {
				t.Fatalf("order not stable: %v vs %v", first, got)
			}
		}
	}
	// Catalog order, not severity or trigger order.
	if first[0] != "vendor_name" || first[1] != "invoice_id" {
		t.Errorf("expected catalog order, got %v", first)
	}
}

func TestExplainIsolatesBadRule(t *testing.T) {
	catalog := append(DefaultCatalog(), RiskRule{
		Key: "totals",
		// References a variable absent from short vectors; evaluation
		// errors must not take down the other rules.
		Expression: "total_amount > 100000.0",
		Message:    "Unusually large amount",
	})
	e, err := NewExplainer(catalog, nil)
	if err != nil {
		t.Fatalf("NewExplainer failed: %v", err)
	}

	fv := domain.FeatureVector{
		"vendor_name_similarity": 0.1,
		"amount_roundness":       0.0,
		"tax_accuracy":           1.0,
		"description_legitimacy": 1.0,
		"is_weekend":             0.0,
		"invoice_id_pattern":     1.0,
	}
	factors := e.Explain(fv)
	if _, ok := factors.Get("vendor_name"); !ok {
		t.Error("healthy rules should still evaluate")
	}
	if _, ok := factors.Get("totals"); ok {
		t.Error("failed rule should be skipped")
	}
}

func TestNewExplainerRejectsBadCatalog(t *testing.T) {
	if _, err := NewExplainer([]RiskRule{{Key: "x", Expression: "((", Message: "m"}}, nil); err == nil {
		t.Error("expected error for unparsable expression")
	}
	if _, err := NewExplainer([]RiskRule{{Key: "x", Expression: "total_amount + 1.0", Message: "m"}}, nil); err == nil {
		t.Error("expected error for non-bool expression")
	}
	dup := []RiskRule{
		{Key: "x", Expression: "is_weekend == 1.0", Message: "a"},
		{Key: "x", Expression: "is_weekend == 0.0", Message: "b"},
	}
	if _, err := NewExplainer(dup, nil); err == nil {
		t.Error("expected error for duplicate keys")
	}
}
