// Package features derives the fixed invoice feature schema used by the
// anomaly scorer and the classifier ensemble.
package features

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Feature names, in registry order. This is the stable schema exposed via
// the feature-listing endpoint; external tooling validates against it.
const (
	VendorNameSimilarity  = "vendor_name_similarity"
	DescriptionLegitimacy = "description_legitimacy"
	DescriptionSentiment  = "description_sentiment"
	DescriptionLength     = "description_length"
	DescriptionWordCount  = "description_word_count"
	AmountRoundness       = "amount_roundness"
	TaxAccuracy           = "tax_accuracy"
	AmountLog             = "amount_log"
	TaxRateDeviation      = "tax_rate_deviation"
	InvoiceIDPattern      = "invoice_id_pattern"
	InvoiceIDLength       = "invoice_id_length"
	DateRecency           = "date_recency"
	IsWeekend             = "is_weekend"
	AmountToTaxRatio      = "amount_to_tax_ratio"
	TotalAmount           = "total_amount"
)

var registry = []string{
	VendorNameSimilarity,
	DescriptionLegitimacy,
	DescriptionSentiment,
	DescriptionLength,
	DescriptionWordCount,
	AmountRoundness,
	TaxAccuracy,
	AmountLog,
	TaxRateDeviation,
	InvoiceIDPattern,
	InvoiceIDLength,
	DateRecency,
	IsWeekend,
	AmountToTaxRatio,
	TotalAmount,
}

// Names returns the ordered feature schema. The returned slice is a copy.
func Names() []string {
	out := make([]string, len(registry))
	copy(out, registry)
	return out
}

// StandardTaxRate is the reference rate tax_rate_deviation measures against.
const StandardTaxRate = 0.18

// Invoice ID pattern classes, most legitimate first.
var idPatterns = []struct {
	re    *regexp.Regexp
	score float64
}{
	{regexp.MustCompile(`^INV-\d{4}$`), 1.0},       // standard format
	{regexp.MustCompile(`^\d{4}-\d{3}$`), 0.8},     // year-number format
	{regexp.MustCompile(`^[A-Z]{2,3}-\d{4,6}$`), 0.6}, // company prefix format
}

// Extractor turns a raw invoice record into the fixed feature vector.
// Extraction is pure and deterministic given the same reference data; the
// only ambient input is the clock used for date recency.
type Extractor struct {
	vendors    []string
	legitTerms []string
	vagueTerms []string
	positive   map[string]bool
	negative   map[string]bool
	now        func() time.Time
}

// NewExtractor creates an extractor with the built-in reference data.
func NewExtractor() *Extractor {
	return NewExtractorWithClock(time.Now)
}

// NewExtractorWithClock creates an extractor using the given clock for
// date-relative features. Tests pin the clock to keep recency stable.
func NewExtractorWithClock(now func() time.Time) *Extractor {
	return &Extractor{
		vendors:    knownVendors,
		legitTerms: legitimateTerms,
		vagueTerms: vagueTerms,
		positive:   positiveWords,
		negative:   negativeWords,
		now:        now,
	}
}

// Extract derives the full feature schema from a validated invoice.
// It validates first and surfaces a ValidationError on malformed input;
// on well-formed input it never fails, producing every feature even when
// a sub-score cannot be computed (e.g. empty description scores 0).
func (e *Extractor) Extract(inv *domain.InvoiceRecord) (domain.FeatureVector, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	date, _ := inv.ParseDate() // validated above

	fv := make(domain.FeatureVector, len(registry))
	fv[VendorNameSimilarity] = e.vendorSimilarity(inv.VendorName)
	fv[DescriptionLegitimacy] = e.descriptionLegitimacy(inv.Description)
	fv[DescriptionSentiment] = e.descriptionSentiment(inv.Description)
	fv[DescriptionLength] = float64(len(inv.Description))
	fv[DescriptionWordCount] = float64(len(strings.Fields(inv.Description)))
	fv[AmountRoundness] = amountRoundness(inv.Amount)
	fv[TaxAccuracy] = taxAccuracy(inv.Amount, inv.TaxAmount, inv.TaxRate)
	fv[AmountLog] = math.Log1p(inv.Amount)
	fv[TaxRateDeviation] = math.Abs(inv.TaxRate - StandardTaxRate)
	fv[InvoiceIDPattern] = invoiceIDPattern(inv.InvoiceID)
	fv[InvoiceIDLength] = float64(len(inv.InvoiceID))
	fv[DateRecency] = e.dateRecency(date)
	fv[IsWeekend] = isWeekend(date)
	fv[AmountToTaxRatio] = inv.Amount / (inv.TaxAmount + 1e-6)
	fv[TotalAmount] = inv.Amount + inv.TaxAmount
	return fv, nil
}

// vendorSimilarity returns the highest edit-distance similarity between
// the vendor name and the known-vendor reference list.
func (e *Extractor) vendorSimilarity(name string) float64 {
	lower := strings.ToLower(name)
	best := 0.0
	for _, vendor := range e.vendors {
		if sim := similarity(lower, strings.ToLower(vendor)); sim > best {
			best = sim
		}
	}
	return best
}

// similarity is 1 - levenshtein(a,b)/max(len(a),len(b)), over runes.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// descriptionLegitimacy counts legitimate business terms and subtracts
// vague terms, floored at zero.
func (e *Extractor) descriptionLegitimacy(desc string) float64 {
	lower := strings.ToLower(desc)
	score := 0.0
	for _, term := range e.legitTerms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	for _, term := range e.vagueTerms {
		if strings.Contains(lower, term) {
			score--
		}
	}
	return math.Max(0, score)
}

// descriptionSentiment is a lexicon polarity in [-1,1]: (positive hits -
// negative hits) over token count. Empty descriptions score 0.
func (e *Extractor) descriptionSentiment(desc string) float64 {
	tokens := strings.Fields(strings.ToLower(desc))
	if len(tokens) == 0 {
		return 0
	}
	hits := 0.0
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if e.positive[tok] {
			hits++
		}
		if e.negative[tok] {
			hits--
		}
	}
	polarity := hits / float64(len(tokens))
	return math.Max(-1, math.Min(1, polarity))
}

// amountRoundness buckets how round an amount is. Fake invoices often use
// round numbers.
func amountRoundness(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	switch {
	case nearMultiple(amount, 1000):
		return 1.0
	case nearMultiple(amount, 100):
		return 0.7
	case nearMultiple(amount, 10):
		return 0.3
	default:
		return 0
	}
}

func nearMultiple(amount, unit float64) bool {
	rem := math.Mod(amount, unit)
	return rem < 1e-9 || unit-rem < 1e-9
}

// taxAccuracy maps the relative tax calculation error to (0,1]: 1 when
// tax_amount exactly equals amount * tax_rate.
func taxAccuracy(amount, taxAmount, taxRate float64) float64 {
	expected := amount * taxRate
	relErr := math.Abs(taxAmount-expected) / (expected + 1e-6)
	return 1.0 / (1.0 + relErr)
}

func invoiceIDPattern(id string) float64 {
	for _, p := range idPatterns {
		if p.re.MatchString(id) {
			return p.score
		}
	}
	if len(id) < 5 || len(id) > 15 {
		return 0.2
	}
	return 0.4
}

// dateRecency buckets how recent the invoice date is.
func (e *Extractor) dateRecency(date time.Time) float64 {
	daysOld := e.now().Sub(date).Hours() / 24
	switch {
	case daysOld < 30:
		return 1.0
	case daysOld < 90:
		return 0.8
	case daysOld < 365:
		return 0.6
	default:
		return 0.2
	}
}

// isWeekend flags invoices dated Saturday or Sunday; unusual for
// business invoices.
func isWeekend(date time.Time) float64 {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return 1
	default:
		return 0
	}
}
