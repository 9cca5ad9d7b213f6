// Benchmark tool for replaying retail transaction CSV data through Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/online_retail.csv -url http://localhost:8080
//
// This tool:
//   1. Reads cleaned retail transaction data (Online Retail export format)
//   2. Sends records to Kestrel in batches via POST /classify
//   3. Collects the label distribution across all three sales ladders
//      and all three returns ladders
//   4. Reports throughput and latency
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
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RetailRow represents a row from the cleaned retail export.
type RetailRow struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    int64
	InvoiceDate string
	UnitPrice   float64
	CustomerID  string
	Country     string
}

// RecordRequest mirrors the Kestrel API record payload.
type RecordRequest struct {
	InvoiceNo        string  `json:"invoiceNo"`
	InvoiceDate      string  `json:"invoiceDate"`
	StockCode        string  `json:"stockCode"`
	DescriptionClean string  `json:"descriptionClean"`
	Quantity         int64   `json:"quantity"`
	UnitPrice        float64 `json:"unitPrice"`
	CustomerID       string  `json:"customerId,omitempty"`
	Country          string  `json:"country,omitempty"`
}

// ClassifyRequest is the Kestrel batch request format.
type ClassifyRequest struct {
	Records []RecordRequest `json:"records"`
}

// ClassifyResult is the per-record result shape we care about.
type ClassifyResult struct {
	Partition string `json:"partition"`
	Sales     *struct {
		TransactionCategory string `json:"transactionCategory"`
		ProductType         string `json:"productType"`
		FinancialType       string `json:"financialType"`
	} `json:"sales,omitempty"`
	Returns *struct {
		ReturnType   string `json:"returnType"`
		ReturnReason string `json:"returnReason"`
		RefundStatus string `json:"refundStatus"`
	} `json:"returns,omitempty"`
	Alerts []string `json:"alerts,omitempty"`
}

// ClassifyBatchResult is the Kestrel batch response format.
type ClassifyBatchResult struct {
	Results []ClassifyResult `json:"results"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	mu     sync.Mutex
	labels map[string]map[string]int64 // ladder -> label -> count

	TotalRecords int64
	TotalBatches int64
	TotalErrors  int64
	TotalAlerts  int64
	SalesRows    int64
	ReturnRows   int64

	ProcessingTimeMs int64
}

func (m *Metrics) count(ladder, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.labels[ladder] == nil {
		m.labels[ladder] = make(map[string]int64)
	}
	m.labels[ladder][label]++
}

// Layouts seen in retail CSV exports, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04",
	"1/2/06 15:04",
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to retail CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 100000, "Maximum records to process (0 = all)")
	batchSize := flag.Int("batch", 500, "Records per classify request")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	returnsOnly := flag.Bool("returns-only", false, "Only replay return rows (negative quantity)")
	verbose := flag.Bool("verbose", false, "Print each batch result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/online_retail.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Retail Classification Replay       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Kestrel URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Batch Size:   %d\n", *batchSize)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Printf("Returns Only: %v\n", *returnsOnly)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read retail data
	fmt.Printf("\nReading retail data from %s...\n", *csvPath)
	rows, err := readRetailCSV(*csvPath, *limit, *returnsOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d records\n", len(rows))

	returnCount := 0
	for _, row := range rows {
		if row.Quantity < 0 {
			returnCount++
		}
	}
	fmt.Printf("  - Sales:   %d (%.2f%%)\n", len(rows)-returnCount, 100*float64(len(rows)-returnCount)/float64(len(rows)))
	fmt.Printf("  - Returns: %d (%.2f%%)\n", returnCount, 100*float64(returnCount)/float64(len(rows)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(rows, *baseURL, *tenantID, *batchSize, *workers, *verbose)
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

func readRetailCSV(path string, limit int, returnsOnly bool) ([]RetailRow, error) {
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

	col := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []RetailRow

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		quantity, err := strconv.ParseInt(col(record, "quantity"), 10, 64)
		if err != nil || quantity == 0 {
			continue
		}

		if returnsOnly && quantity >= 0 {
			continue
		}

		unitPrice, _ := strconv.ParseFloat(col(record, "unitprice"), 64)

		when, err := parseInvoiceDate(col(record, "invoicedate"))
		if err != nil {
			continue
		}

		rows = append(rows, RetailRow{
			InvoiceNo:   col(record, "invoiceno"),
			StockCode:   col(record, "stockcode"),
			Description: col(record, "description"),
			Quantity:    quantity,
			InvoiceDate: when.UTC().Format(time.RFC3339),
			UnitPrice:   unitPrice,
			CustomerID:  col(record, "customerid"),
			Country:     col(record, "country"),
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

func parseInvoiceDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if when, err := time.Parse(layout, raw); err == nil {
			return when, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func runBenchmark(rows []RetailRow, baseURL, tenantID string, batchSize, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{labels: make(map[string]map[string]int64)}

	// Create work channel of batches
	work := make(chan []RetailRow, numWorkers)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 60 * time.Second}

			for batch := range work {
				start := time.Now()
				result, err := classifyBatch(client, baseURL, tenantID, batch)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalBatches, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: batch of %d -> %v\n", len(batch), err)
					}
					continue
				}

				atomic.AddInt64(&metrics.TotalRecords, int64(len(result.Results)))

				for _, r := range result.Results {
					atomic.AddInt64(&metrics.TotalAlerts, int64(len(r.Alerts)))
					if r.Sales != nil {
						atomic.AddInt64(&metrics.SalesRows, 1)
						metrics.count("transaction_category", r.Sales.TransactionCategory)
						metrics.count("product_type", r.Sales.ProductType)
						metrics.count("financial_type", r.Sales.FinancialType)
					}
					if r.Returns != nil {
						atomic.AddInt64(&metrics.ReturnRows, 1)
						metrics.count("return_type", r.Returns.ReturnType)
						metrics.count("return_reason", r.Returns.ReturnReason)
						metrics.count("refund_status", r.Returns.RefundStatus)
					}
				}

				if verbose {
					fmt.Printf("✓ batch of %-5d | %6d ms\n", len(batch), elapsed)
				}
			}
		}()
	}

	// Send work in batches
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		work <- rows[start:end]
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func classifyBatch(client *http.Client, baseURL, tenantID string, batch []RetailRow) (*ClassifyBatchResult, error) {
	req := ClassifyRequest{Records: make([]RecordRequest, 0, len(batch))}
	for _, row := range batch {
		req.Records = append(req.Records, RecordRequest{
			InvoiceNo:        row.InvoiceNo,
			InvoiceDate:      row.InvoiceDate,
			StockCode:        row.StockCode,
			DescriptionClean: row.Description,
			Quantity:         row.Quantity,
			UnitPrice:        row.UnitPrice,
			CustomerID:       row.CustomerID,
			Country:          row.Country,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ClassifyBatchResult
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
	fmt.Printf("   Total Classified: %d\n", m.TotalRecords)
	fmt.Printf("   Sales Rows:       %d\n", m.SalesRows)
	fmt.Printf("   Return Rows:      %d\n", m.ReturnRows)
	fmt.Printf("   Batches:          %d\n", m.TotalBatches)
	fmt.Printf("   Failed Batches:   %d\n", m.TotalErrors)
	fmt.Printf("   Screen Alerts:    %d\n", m.TotalAlerts)

	fmt.Printf("\n🏷️  LABEL DISTRIBUTION\n")
	ladders := make([]string, 0, len(m.labels))
	for ladder := range m.labels {
		ladders = append(ladders, ladder)
	}
	sort.Strings(ladders)
	for _, ladder := range ladders {
		fmt.Printf("   %s:\n", ladder)
		labels := make([]string, 0, len(m.labels[ladder]))
		for label := range m.labels[ladder] {
			labels = append(labels, label)
		}
		sort.Slice(labels, func(i, j int) bool {
			return m.labels[ladder][labels[i]] > m.labels[ladder][labels[j]]
		})
		for _, label := range labels {
			fmt.Printf("     %-22s %10d\n", label, m.labels[ladder][label])
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalBatches > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalBatches)
		fmt.Printf("   Avg Batch Time:   %.2f ms\n", avgMs)
	}
	if m.TotalRecords > 0 {
		rps := float64(m.TotalRecords) / duration.Seconds()
		fmt.Printf("   Throughput:       %.2f records/sec\n", rps)
	}

	fmt.Println()
}
