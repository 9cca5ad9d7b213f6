//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel
// classification engine.
//
// These tests verify the COMPLETE classification pipeline:
//
//	Record batch → Window aggregates → Rule ladders → Labels → Screens
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. RECORD: One cleaned retail transaction line. Quantity sign decides
//    the partition: positive = Sales, negative = Returns.
//
// 2. LADDER: An ordered list of (condition, label) rules evaluated
//    top-to-bottom, first match wins. Sales rows get three labels
//    (TransactionCategory, ProductType, FinancialType); return rows get
//    three labels (ReturnType, ReturnReason, RefundStatus).
//
// 3. WINDOW AGGREGATES: Same-customer same-day net quantity and
//    per-customer return count, computed over the whole returns
//    partition before any row is labeled.
//
// 4. SCREEN: An optional tenant-configured CEL expression evaluated over
//    the labeled row; matches flag rows for review but never change
//    the labels.
//
// The label vocabulary is a downstream contract: these tests assert
// exact string values on purpose.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// RecordRequest is one line sent to POST /classify
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

// ClassifyRequest is the batch sent to POST /classify
type ClassifyRequest struct {
	Records []RecordRequest `json:"records"`
}

// SalesLabels are the three sales-partition labels
type SalesLabels struct {
	TransactionCategory string `json:"transactionCategory"`
	ProductType         string `json:"productType"`
	FinancialType       string `json:"financialType"`
}

// ReturnLabels are the three returns-partition labels plus audit aggregates
type ReturnLabels struct {
	ReturnType          string `json:"returnType"`
	ReturnReason        string `json:"returnReason"`
	RefundStatus        string `json:"refundStatus"`
	DayNetQuantity      int64  `json:"dayNetQuantity"`
	CustomerReturnCount int    `json:"customerReturnCount"`
}

// ClassifyResult is one per-record result
type ClassifyResult struct {
	ClassificationID string        `json:"classificationId"`
	RecordID         string        `json:"recordId"`
	Partition        string        `json:"partition"`
	Sales            *SalesLabels  `json:"sales,omitempty"`
	Returns          *ReturnLabels `json:"returns,omitempty"`
	Alerts           []string      `json:"alerts,omitempty"`
}

// ClassifyResponse is what POST /classify returns
type ClassifyResponse struct {
	Results  []ClassifyResult `json:"results"`
	Metadata struct {
		TraceID    string `json:"traceId"`
		Records    int    `json:"records"`
		SalesRows  int    `json:"salesRows"`
		ReturnRows int    `json:"returnRows"`
		TotalMs    int64  `json:"totalMs"`
		Version    string `json:"version"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func classify(t *testing.T, config TestConfig, req ClassifyRequest) ClassifyResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result ClassifyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}

	return result
}

func saleLine(stockCode string, quantity int64, unitPrice float64) RecordRequest {
	return RecordRequest{
		InvoiceNo:        "536365",
		InvoiceDate:      "2011-12-01T08:26:00Z",
		StockCode:        stockCode,
		DescriptionClean: "WHITE HANGING HEART T-LIGHT HOLDER",
		Quantity:         quantity,
		UnitPrice:        unitPrice,
		CustomerID:       "17850",
		Country:          "United Kingdom",
	}
}

func returnLine(customerID, stockCode, description string, quantity int64, unitPrice float64, date string) RecordRequest {
	return RecordRequest{
		InvoiceNo:        "C536379",
		InvoiceDate:      date,
		StockCode:        stockCode,
		DescriptionClean: description,
		Quantity:         quantity,
		UnitPrice:        unitPrice,
		CustomerID:       customerID,
		Country:          "United Kingdom",
	}
}

// ============================================================================
// SCENARIO 1: Ordinary Product Sale
// ============================================================================

func TestRegularSale(t *testing.T) {
	/*
	   SCENARIO: A plain product line, six units at £2.55

	   EXPECTED LABELS:
	   - No stock-code rule matches → all three ladders fall through
	   - product / regular / revenue
	*/
	config := getTestConfig()

	result := classify(t, config, ClassifyRequest{
		Records: []RecordRequest{saleLine("85123A", 6, 2.55)},
	})

	if len(result.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(result.Results))
	}

	labels := result.Results[0].Sales
	if labels == nil {
		t.Fatal("Missing sales labels")
	}
	if labels.TransactionCategory != "product" {
		t.Errorf("TransactionCategory = %q, want product", labels.TransactionCategory)
	}
	if labels.ProductType != "regular" {
		t.Errorf("ProductType = %q, want regular", labels.ProductType)
	}
	if labels.FinancialType != "revenue" {
		t.Errorf("FinancialType = %q, want revenue", labels.FinancialType)
	}

	t.Logf("✓ Regular sale labeled: %s / %s / %s",
		labels.TransactionCategory, labels.ProductType, labels.FinancialType)
}

// ============================================================================
// SCENARIO 2: Free Sample Edge Case
// ============================================================================

func TestFreeSample(t *testing.T) {
	/*
	   SCENARIO: StockCode 'S', quantity 3, unit price 0 → OrderValue 0

	   EXPECTED LABELS: adjustment / free_sample / non_revenue

	   WHY THIS TEST:
	   The 'S' rules are value-dependent and the zero-value branch is the
	   one downstream reporting relies on to exclude giveaways from
	   revenue.
	*/
	config := getTestConfig()

	result := classify(t, config, ClassifyRequest{
		Records: []RecordRequest{saleLine("S", 3, 0)},
	})

	labels := result.Results[0].Sales
	if labels == nil {
		t.Fatal("Missing sales labels")
	}
	if labels.TransactionCategory != "adjustment" ||
		labels.ProductType != "free_sample" ||
		labels.FinancialType != "non_revenue" {
		t.Errorf("Labels = %s / %s / %s, want adjustment / free_sample / non_revenue",
			labels.TransactionCategory, labels.ProductType, labels.FinancialType)
	}

	t.Logf("✓ Free sample labeled correctly")
}

// ============================================================================
// SCENARIO 3: Discount Precedence on Returns
// ============================================================================

func TestLargeDiscountPrecedence(t *testing.T) {
	/*
	   SCENARIO: StockCode 'D' with OrderValue -600

	   EXPECTED LABELS: price_adjustment / suspicious_discount / fraud_review

	   WHY THIS TEST:
	   Both the discount-code rule and the generic high-value rule match;
	   the ladder order must make the discount rule win.
	*/
	config := getTestConfig()

	result := classify(t, config, ClassifyRequest{
		Records: []RecordRequest{
			returnLine("17850", "D", "DISCOUNT", -1, 600, "2011-12-09T09:57:00Z"),
		},
	})

	labels := result.Results[0].Returns
	if labels == nil {
		t.Fatal("Missing return labels")
	}
	if labels.ReturnType != "price_adjustment" {
		t.Errorf("ReturnType = %q, want price_adjustment", labels.ReturnType)
	}
	if labels.ReturnReason != "suspicious_discount" {
		t.Errorf("ReturnReason = %q, want suspicious_discount", labels.ReturnReason)
	}
	if labels.RefundStatus != "fraud_review" {
		t.Errorf("RefundStatus = %q, want fraud_review", labels.RefundStatus)
	}

	t.Logf("✓ Discount precedence held: %s / %s / %s",
		labels.ReturnType, labels.ReturnReason, labels.RefundStatus)
}

// ============================================================================
// SCENARIO 4: Frequent Returner Window Aggregate
// ============================================================================

func TestFrequentReturner(t *testing.T) {
	/*
	   SCENARIO: Six plain return rows from one customer in one batch

	   EXPECTED LABELS (all six rows):
	   - ReturnReason = frequent_returner
	   - RefundStatus = review_required
	   - CustomerReturnCount = 6

	   WHY THIS TEST:
	   The frequency signal is a window aggregate over the whole batch;
	   every row must see the final count, not a running prefix.
	*/
	config := getTestConfig()

	records := make([]RecordRequest, 6)
	for i := range records {
		date := time.Date(2011, 12, 9+i, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
		records[i] = returnLine("12583", "22423", "REGENCY CAKESTAND 3 TIER", -2, 25, date)
	}

	result := classify(t, config, ClassifyRequest{Records: records})

	if len(result.Results) != 6 {
		t.Fatalf("Expected 6 results, got %d", len(result.Results))
	}

	for i, r := range result.Results {
		labels := r.Returns
		if labels == nil {
			t.Fatalf("Row %d: missing return labels", i)
		}
		if labels.ReturnReason != "frequent_returner" {
			t.Errorf("Row %d: ReturnReason = %q, want frequent_returner", i, labels.ReturnReason)
		}
		if labels.RefundStatus != "review_required" {
			t.Errorf("Row %d: RefundStatus = %q, want review_required", i, labels.RefundStatus)
		}
		if labels.CustomerReturnCount != 6 {
			t.Errorf("Row %d: CustomerReturnCount = %d, want 6", i, labels.CustomerReturnCount)
		}
	}

	t.Logf("✓ All 6 rows saw the full-batch return count")
}

// ============================================================================
// SCENARIO 5: Mixed Batch Metadata
// ============================================================================

func TestMixedBatchMetadata(t *testing.T) {
	/*
	   SCENARIO: Two sales rows and one return row in a single batch

	   EXPECTED:
	   - Results index-aligned with the request
	   - Metadata partition counts match
	   - TraceID and engine version present
	*/
	config := getTestConfig()

	result := classify(t, config, ClassifyRequest{
		Records: []RecordRequest{
			saleLine("85123A", 6, 2.55),
			saleLine("POST", 1, 18.0),
			returnLine("17850", "21035", "SET OF 6 SPICE TINS DAMAGED", -1, 9.95, "2011-12-09T09:57:00Z"),
		},
	})

	if result.Metadata.Records != 3 {
		t.Errorf("Metadata.Records = %d, want 3", result.Metadata.Records)
	}
	if result.Metadata.SalesRows != 2 || result.Metadata.ReturnRows != 1 {
		t.Errorf("Partition counts = %d/%d, want 2/1",
			result.Metadata.SalesRows, result.Metadata.ReturnRows)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	if result.Results[1].Sales == nil || result.Results[1].Sales.ProductType != "domestic_shipping" {
		t.Errorf("Row 1 labels = %+v", result.Results[1].Sales)
	}
	if result.Results[2].Returns == nil || result.Results[2].Returns.ReturnType != "damaged_goods" {
		t.Errorf("Row 2 labels = %+v", result.Results[2].Returns)
	}

	t.Logf("✓ Mixed batch metadata complete: traceId=%s, totalMs=%d",
		result.Metadata.TraceID[:8], result.Metadata.TotalMs)
}

// ============================================================================
// SCENARIO 6: Input Validation
// ============================================================================

func TestMalformedRecord_Error(t *testing.T) {
	/*
	   SCENARIO: A record with zero quantity (partition undecidable)

	   EXPECTED: HTTP 400 Bad Request for the whole batch; partial
	   labeling would silently skew downstream aggregates.
	*/
	config := getTestConfig()

	req := ClassifyRequest{
		Records: []RecordRequest{
			saleLine("85123A", 6, 2.55),
			saleLine("85123A", 0, 2.55), // Invalid!
		},
	}

	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/classify", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero quantity, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: zero quantity → HTTP %d", resp.StatusCode)
}

func TestMissingTenantHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Request without X-Tenant-ID header

	   EXPECTED: HTTP 400 Bad Request. Tenant ID is validated as a
	   required field, not as auth.
	*/
	config := getTestConfig()

	req := ClassifyRequest{
		Records: []RecordRequest{saleLine("85123A", 6, 2.55)},
	}

	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/classify", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	// NO X-Tenant-ID header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 400 or 401 for missing tenant, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing tenant → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 7: Label Vocabulary Contract
// ============================================================================

func TestLabelVocabulary(t *testing.T) {
	/*
	   SCENARIO: GET /labels returns the exact vocabulary downstream
	   consumers group by.
	*/
	config := getTestConfig()

	httpReq, _ := http.NewRequest("GET", config.BaseURL+"/labels", nil)
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var vocab map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&vocab); err != nil {
		t.Fatalf("Failed to decode vocabulary: %v", err)
	}

	expect := map[string]int{
		"transactionCategory": 3,
		"productType":         10,
		"financialType":       4,
		"returnType":          6,
		"returnReason":        11,
		"refundStatus":        6,
	}
	for key, n := range expect {
		if len(vocab[key]) != n {
			t.Errorf("vocabulary[%s] has %d labels, want %d", key, len(vocab[key]), n)
		}
	}

	t.Logf("✓ Vocabulary contract intact across %d outputs", len(expect))
}
