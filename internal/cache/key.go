package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/opensource-finance/shrike/internal/domain"
)

// ContentHash derives the cache key for a prediction: a digest of the
// invoice content and the model selector. Scoring is deterministic for
// a fixed model snapshot, so equal hashes mean equal results.
func ContentHash(inv *domain.InvoiceRecord, selector domain.Selector) string {
	payload, _ := json.Marshal(struct {
		Invoice  *domain.InvoiceRecord `json:"invoice"`
		Selector string                `json:"selector"`
	}{inv, string(selector)})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
