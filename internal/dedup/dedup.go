// Package dedup tracks repeat submissions of the same invoice ID.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// DefaultWindow is the window within which repeat submissions of the
// same invoice ID count as duplicates.
const DefaultWindow = 24 * time.Hour

// Tracker counts submissions per invoice ID within a sliding window.
// The cache counter is the fast path; when no cache is configured the
// audit store is consulted instead.
type Tracker struct {
	cache  domain.Cache
	repo   domain.Repository
	window time.Duration
}

// NewTracker creates a duplicate-submission tracker.
func NewTracker(cache domain.Cache, repo domain.Repository, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		cache:  cache,
		repo:   repo,
		window: window,
	}
}

// Observe records a submission of the invoice ID and returns how many
// times it has been seen within the window, this submission included.
func (t *Tracker) Observe(ctx context.Context, invoiceID string) (int64, error) {
	if invoiceID == "" {
		return 0, fmt.Errorf("invoiceID is required")
	}

	if t.cache != nil {
		return t.cache.IncrementCounter(ctx, "dup:"+invoiceID, t.window)
	}

	if t.repo != nil {
		since := time.Now().Add(-t.window)
		records, err := t.repo.ListPredictionsByInvoice(ctx, invoiceID, since)
		if err != nil {
			return 0, fmt.Errorf("failed to list prior predictions: %w", err)
		}
		return int64(len(records)) + 1, nil
	}

	return 0, fmt.Errorf("no data source available")
}

// IsDuplicate reports whether the count indicates a repeat submission.
func IsDuplicate(count int64) bool {
	return count > 1
}

// Window returns the tracking window.
func (t *Tracker) Window() time.Duration {
	return t.window
}
