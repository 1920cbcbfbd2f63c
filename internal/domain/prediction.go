package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Model identifiers reported in PredictionResult.ModelUsed beyond the
// concrete classifier names held by the registry.
const (
	// ModelEnsemble is reported when the full ensemble produced the verdict.
	ModelEnsemble = "ensemble"

	// ModelAnomalyFallback is reported when no classifier probability was
	// available and the verdict came from the anomaly score alone.
	ModelAnomalyFallback = "anomaly_fallback"
)

// Selector chooses which model subset runs for a prediction.
type Selector string

// SelectorAll runs the full ensemble. Any other value names a single model.
const SelectorAll Selector = "all"

// IsAll reports whether the selector requests the full ensemble.
func (s Selector) IsAll() bool {
	return s == "" || s == SelectorAll || string(s) == ModelEnsemble
}

// PredictionResult is the outcome of scoring one invoice. It is created
// fresh per request and never mutated after construction. The json field
// names are part of the wire contract.
type PredictionResult struct {
	IsFake      bool        `json:"is_fake"`
	Confidence  float64     `json:"confidence"`
	ModelUsed   string      `json:"model_used"`
	RiskFactors RiskFactors `json:"risk_factors"`

	// Warnings carries degraded-mode indications (e.g. an ensemble member
	// was missing). Additive to the wire contract; omitted when empty.
	Warnings []string `json:"warnings,omitempty"`
}

// PredictionRecord is the audit-trail row persisted for every served
// prediction, consumed by the review UI and the audit pipeline.
type PredictionRecord struct {
	ID        string           `json:"id"`
	InvoiceID string           `json:"invoiceId"`
	Invoice   InvoiceRecord    `json:"invoice"`
	Result    PredictionResult `json:"result"`
	Score     float64          `json:"score"` // raw aggregate score in [0,1]
	TraceID   string           `json:"traceId,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// RiskFactors is an insertion-ordered mapping of risk-factor key to a
// human-readable explanation. Keys are drawn from the fixed vocabulary
// (vendor_name, amount, tax_calculation, description, date, invoice_id)
// and iteration/serialization order equals detection order.
type RiskFactors struct {
	keys    []string
	entries map[string]string
}

// NewRiskFactors returns an empty ordered risk-factor mapping.
func NewRiskFactors() RiskFactors {
	return RiskFactors{entries: make(map[string]string)}
}

// Add appends an entry. Re-adding an existing key updates the explanation
// but keeps the original detection position.
func (rf *RiskFactors) Add(key, explanation string) {
	if rf.entries == nil {
		rf.entries = make(map[string]string)
	}
	if _, ok := rf.entries[key]; !ok {
		rf.keys = append(rf.keys, key)
	}
	rf.entries[key] = explanation
}

// Get returns the explanation for a key.
func (rf RiskFactors) Get(key string) (string, bool) {
	v, ok := rf.entries[key]
	return v, ok
}

// Keys returns the keys in detection order.
func (rf RiskFactors) Keys() []string {
	out := make([]string, len(rf.keys))
	copy(out, rf.keys)
	return out
}

// Len returns the number of entries.
func (rf RiskFactors) Len() int {
	return len(rf.keys)
}

// MarshalJSON serializes the mapping as a JSON object in detection order.
// An empty mapping serializes as {} rather than null.
func (rf RiskFactors) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range rf.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(rf.entries[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores the mapping. Source order inside the JSON object
// is preserved as detection order.
func (rf *RiskFactors) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}
	*rf = NewRiskFactors()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}
		rf.Add(key, val)
	}
	_, err = dec.Token() // closing brace
	return err
}
