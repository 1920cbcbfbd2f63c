// Benchmark tool for testing Shrike against labeled invoice data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/invoices.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled invoice data (with fraud labels)
//   2. Sends each invoice to Shrike for scoring
//   3. Compares Shrike's verdict (is_fake) with actual fraud labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns:
//   invoice_id,vendor_name,amount,tax_amount,tax_rate,description,date,is_fake
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledInvoice represents a row from the labeled dataset
type LabeledInvoice struct {
	InvoiceID   string
	VendorName  string
	Amount      float64
	TaxAmount   float64
	TaxRate     float64
	Description string
	Date        string
	IsFake      bool
}

// PredictRequest is the Shrike API request format
type PredictRequest struct {
	InvoiceID   string  `json:"invoice_id"`
	VendorName  string  `json:"vendor_name"`
	Amount      float64 `json:"amount"`
	TaxAmount   float64 `json:"tax_amount"`
	TaxRate     float64 `json:"tax_rate"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

// PredictResponse is the Shrike API response format
type PredictResponse struct {
	IsFake      bool              `json:"is_fake"`
	Confidence  float64           `json:"confidence"`
	ModelUsed   string            `json:"model_used"`
	RiskFactors map[string]string `json:"risk_factors"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fake invoices flagged
	FalsePositives int64 // Genuine invoices flagged
	TrueNegatives  int64 // Genuine invoices passed
	FalseNegatives int64 // Fake invoices passed (missed fraud!)

	TotalProcessed int64
	TotalFake      int64
	TotalGenuine   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled invoice CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Shrike base URL")
	model := flag.String("model", "", "Score with a single model instead of the ensemble")
	limit := flag.Int("limit", 10000, "Maximum invoices to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fakeOnly := flag.Bool("fake-only", false, "Only test fake invoices")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for genuine invoices (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each invoice result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/invoices.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          SHRIKE BENCHMARK - Invoice Fraud Detection           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Shrike URL:  %s\n", *baseURL)
	if *model != "" {
		fmt.Printf("Model:       %s\n", *model)
	} else {
		fmt.Printf("Model:       ensemble\n")
	}
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fake Only:   %v\n", *fakeOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	// Check Shrike is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Shrike not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Shrike is running:")
		fmt.Println("  cd shrike && go run cmd/shrike/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Shrike is healthy")

	// Read labeled data
	fmt.Printf("\nReading invoice data from %s...\n", *csvPath)
	invoices, err := readInvoiceCSV(*csvPath, *limit, *fakeOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d invoices\n", len(invoices))

	// Count fake vs genuine
	fakeCount := 0
	for _, inv := range invoices {
		if inv.IsFake {
			fakeCount++
		}
	}
	fmt.Printf("  - Fake:    %d (%.2f%%)\n", fakeCount, 100*float64(fakeCount)/float64(len(invoices)))
	fmt.Printf("  - Genuine: %d (%.2f%%)\n", len(invoices)-fakeCount, 100*float64(len(invoices)-fakeCount)/float64(len(invoices)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(invoices, *baseURL, *model, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readInvoiceCSV(path string, limit int, fakeOnly bool, sampleRate float64) ([]LabeledInvoice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, required := range []string{"invoice_id", "vendor_name", "amount", "is_fake"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var invoices []LabeledInvoice
	sampleCounter := 0

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFake := field(record, "is_fake") == "1" || strings.EqualFold(field(record, "is_fake"), "true")

		// Apply filters
		if fakeOnly && !isFake {
			continue
		}

		// Sample genuine invoices
		if !isFake && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		amount, _ := strconv.ParseFloat(field(record, "amount"), 64)
		taxAmount, _ := strconv.ParseFloat(field(record, "tax_amount"), 64)
		taxRate, _ := strconv.ParseFloat(field(record, "tax_rate"), 64)

		inv := LabeledInvoice{
			InvoiceID:   field(record, "invoice_id"),
			VendorName:  field(record, "vendor_name"),
			Amount:      amount,
			TaxAmount:   taxAmount,
			TaxRate:     taxRate,
			Description: field(record, "description"),
			Date:        field(record, "date"),
			IsFake:      isFake,
		}

		invoices = append(invoices, inv)

		if limit > 0 && len(invoices) >= limit {
			break
		}
	}

	return invoices, nil
}

func runBenchmark(invoices []LabeledInvoice, baseURL, model string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledInvoice, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for inv := range work {
				start := time.Now()
				result, err := scoreInvoice(client, baseURL, model, inv)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", inv.InvoiceID, err)
					}
					continue
				}

				// Track actual labels
				if inv.IsFake {
					atomic.AddInt64(&metrics.TotalFake, 1)
				} else {
					atomic.AddInt64(&metrics.TotalGenuine, 1)
				}

				// Calculate confusion matrix
				predicted := result.IsFake
				actual := inv.IsFake

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					vendor := inv.VendorName
					if len(vendor) > 20 {
						vendor = vendor[:20]
					}
					fmt.Printf("%s %-12s | Vendor: %-20s | Amount: $%12.2f | Fake: %-5v | Shrike: %-5v (%.1f%%) | Factors: %d\n",
						status,
						inv.InvoiceID,
						vendor,
						inv.Amount,
						inv.IsFake,
						result.IsFake,
						result.Confidence,
						len(result.RiskFactors),
					)
				}
			}
		}()
	}

	// Send work
	for _, inv := range invoices {
		work <- inv
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func scoreInvoice(client *http.Client, baseURL, model string, inv LabeledInvoice) (*PredictResponse, error) {
	req := PredictRequest{
		InvoiceID:   inv.InvoiceID,
		VendorName:  inv.VendorName,
		Amount:      inv.Amount,
		TaxAmount:   inv.TaxAmount,
		TaxRate:     inv.TaxRate,
		Description: inv.Description,
		Date:        inv.Date,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := baseURL + "/predict"
	if model != "" {
		url += "/" + model
	}

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fake:       %d\n", m.TotalFake)
	fmt.Printf("   Total Genuine:    %d\n", m.TotalGenuine)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FAKE        PASS")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           G  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged invoices, how many were actually fake)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fake invoices, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFake > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFake) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFake) * 100
		fmt.Printf("   Fakes Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFake, detectionRate)
		fmt.Printf("   Fakes Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFake, missRate)
	}
	if m.TotalGenuine > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalGenuine) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalGenuine, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f invoices/sec\n", tps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fake invoices")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fakes")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fakes are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
