package repository

// Schema definitions for the Shrike audit store.
// Compatible with both SQLite and PostgreSQL.

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    invoice_id TEXT NOT NULL,
    vendor_name TEXT NOT NULL,
    invoice TEXT NOT NULL,
    is_fake INTEGER NOT NULL,
    confidence REAL NOT NULL,
    score REAL NOT NULL,
    model_used TEXT NOT NULL,
    risk_factors TEXT NOT NULL,
    warnings TEXT,
    trace_id TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_invoice ON predictions(invoice_id);
CREATE INDEX IF NOT EXISTS idx_predictions_vendor ON predictions(vendor_name);
CREATE INDEX IF NOT EXISTS idx_predictions_flagged ON predictions(is_fake, created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPredictions,
	}
}
