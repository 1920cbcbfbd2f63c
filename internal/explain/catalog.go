package explain

// DefaultCatalog returns the built-in risk-rule catalog. Keys form the
// fixed risk-factor vocabulary; order here is the order factors appear
// in responses.
func DefaultCatalog() []RiskRule {
	return []RiskRule{
		{
			Key:        "vendor_name",
			Expression: "vendor_name_similarity < 0.7",
			Message:    "Low similarity to known legitimate vendors",
		},
		{
			Key:        "amount",
			Expression: "amount_roundness > 0.5",
			Message:    "Suspiciously round amount",
		},
		{
			Key:        "tax_calculation",
			Expression: "tax_accuracy < 0.9",
			Message:    "Inaccurate tax calculation",
		},
		{
			Key:        "description",
			Expression: "description_legitimacy < 1.0",
			Message:    "Vague or suspicious description",
		},
		{
			Key:        "date",
			Expression: "is_weekend == 1.0",
			Message:    "Invoice issued on weekend",
		},
		{
			Key:        "invoice_id",
			Expression: "invoice_id_pattern < 0.5",
			Message:    "Unusual invoice ID pattern",
		},
	}
}
