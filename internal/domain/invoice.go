// Package domain defines the core interfaces and types for Shrike.
package domain

import (
	"fmt"
	"math"
	"time"
)

// InvoiceRecord is a single invoice submitted for fraud scoring.
// It is created by the caller per request and never mutated.
type InvoiceRecord struct {
	InvoiceID   string  `json:"invoice_id"`
	VendorName  string  `json:"vendor_name"`
	Amount      float64 `json:"amount"`
	TaxAmount   float64 `json:"tax_amount"`
	TaxRate     float64 `json:"tax_rate"`
	Description string  `json:"description"`
	Date        string  `json:"date"` // ISO calendar date, e.g. "2024-01-15"
}

// Validate checks field-level constraints before any feature derivation.
// It returns a ValidationError naming the offending field.
func (r *InvoiceRecord) Validate() error {
	if r.InvoiceID == "" {
		return &ValidationError{Field: "invoice_id", Reason: "must not be empty"}
	}
	if r.VendorName == "" {
		return &ValidationError{Field: "vendor_name", Reason: "must not be empty"}
	}
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount < 0 {
		return &ValidationError{Field: "amount", Reason: "must be a finite number >= 0"}
	}
	if math.IsNaN(r.TaxAmount) || math.IsInf(r.TaxAmount, 0) || r.TaxAmount < 0 {
		return &ValidationError{Field: "tax_amount", Reason: "must be a finite number >= 0"}
	}
	if math.IsNaN(r.TaxRate) || r.TaxRate < 0 || r.TaxRate > 1 {
		return &ValidationError{Field: "tax_rate", Reason: "must be within [0,1]"}
	}
	if _, err := r.ParseDate(); err != nil {
		return &ValidationError{Field: "date", Reason: "must be an ISO calendar date (YYYY-MM-DD)"}
	}
	return nil
}

// ParseDate parses the invoice date. Plain calendar dates are preferred;
// RFC 3339 timestamps are accepted for callers that send full timestamps.
func (r *InvoiceRecord) ParseDate() (time.Time, error) {
	if t, err := time.Parse("2006-01-02", r.Date); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, r.Date); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", r.Date)
}

// FeatureVector is a fixed-shape mapping of feature name to numeric value,
// deterministically derived from an InvoiceRecord. The set of keys is the
// process-wide feature registry and is identical across all invocations.
type FeatureVector map[string]float64

// Activation converts the vector into a CEL-compatible activation map.
func (v FeatureVector) Activation() map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
