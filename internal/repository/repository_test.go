package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/retail-insights/kestrel/internal/domain"
)

func testRecord(id, customerID string, quantity int64, when time.Time) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:               id,
		TenantID:         "tenant-001",
		InvoiceNo:        "536365",
		InvoiceDate:      when,
		StockCode:        "85123A",
		DescriptionClean: "WHITE HANGING HEART T-LIGHT HOLDER",
		Quantity:         quantity,
		UnitPrice:        2.55,
		OrderValue:       float64(quantity) * 2.55,
		CustomerID:       customerID,
		Country:          "United Kingdom",
		CreatedAt:        time.Now().UTC(),
	}
}

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"
	when := time.Date(2011, 12, 9, 9, 57, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetRecord", func(t *testing.T) {
		rec := testRecord("rec-001", "17850", 6, when)

		if err := repo.SaveRecord(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}

		got, err := repo.GetRecord(ctx, tenantID, "rec-001")
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if got.StockCode != "85123A" {
			t.Errorf("StockCode = %q, want 85123A", got.StockCode)
		}
		if got.Quantity != 6 {
			t.Errorf("Quantity = %d, want 6", got.Quantity)
		}
		if got.OrderValue != 6*2.55 {
			t.Errorf("OrderValue = %f", got.OrderValue)
		}
	})

	t.Run("GetRecordNotFound", func(t *testing.T) {
		_, err := repo.GetRecord(ctx, tenantID, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		rec := testRecord("rec-isolated", "17850", 2, when)
		if err := repo.SaveRecord(ctx, "tenant-a", rec); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}

		if _, err := repo.GetRecord(ctx, "tenant-b", "rec-isolated"); !errors.Is(err, ErrNotFound) {
			t.Errorf("tenant-b should not see tenant-a's record, got %v", err)
		}
	})

	t.Run("SaveRecordsBatch", func(t *testing.T) {
		batch := []*domain.TransactionRecord{
			testRecord("batch-1", "17850", 3, when),
			testRecord("batch-2", "17850", -3, when),
			testRecord("batch-3", "12583", -1, when.AddDate(0, 0, 1)),
		}

		if err := repo.SaveRecords(ctx, tenantID, batch); err != nil {
			t.Fatalf("SaveRecords failed: %v", err)
		}

		for _, rec := range batch {
			if _, err := repo.GetRecord(ctx, tenantID, rec.ID); err != nil {
				t.Errorf("GetRecord(%s) failed: %v", rec.ID, err)
			}
		}
	})

	t.Run("ListReturns", func(t *testing.T) {
		returns, err := repo.ListReturns(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListReturns failed: %v", err)
		}

		// batch-2 and batch-3 from the previous subtest
		if len(returns) != 2 {
			t.Fatalf("got %d returns, want 2", len(returns))
		}
		for _, rec := range returns {
			if rec.Quantity >= 0 {
				t.Errorf("record %s: quantity %d is not a return", rec.ID, rec.Quantity)
			}
		}
		// Ordered by invoice date
		if returns[0].ID != "batch-2" || returns[1].ID != "batch-3" {
			t.Errorf("order = %s, %s", returns[0].ID, returns[1].ID)
		}
	})

	t.Run("ListReturnsByCustomer", func(t *testing.T) {
		rows, err := repo.ListReturnsByCustomer(ctx, tenantID, "17850", time.Time{})
		if err != nil {
			t.Fatalf("ListReturnsByCustomer failed: %v", err)
		}
		if len(rows) != 1 || rows[0].ID != "batch-2" {
			t.Errorf("rows = %v", rows)
		}

		// since filter cuts off older rows
		rows, err = repo.ListReturnsByCustomer(ctx, tenantID, "17850", when.AddDate(0, 0, 5))
		if err != nil {
			t.Fatalf("ListReturnsByCustomer failed: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("got %d rows, want 0", len(rows))
		}
	})

	t.Run("SaveAndGetClassification", func(t *testing.T) {
		c := &domain.Classification{
			ID:        "cls-001",
			TenantID:  tenantID,
			RecordID:  "batch-2",
			Partition: domain.PartitionReturns,
			Timestamp: time.Now().UTC(),
			Returns: &domain.ReturnLabels{
				ReturnType:          "customer_return",
				ReturnReason:        "unsatisfied",
				RefundStatus:        "processed",
				DayNetQuantity:      -3,
				CustomerReturnCount: 1,
			},
			Metadata: domain.ClassificationMetadata{
				TraceID:       "trace-001",
				EngineVersion: "kestrel-1.0",
			},
		}

		if err := repo.SaveClassification(ctx, tenantID, c); err != nil {
			t.Fatalf("SaveClassification failed: %v", err)
		}

		got, err := repo.GetClassification(ctx, tenantID, "cls-001")
		if err != nil {
			t.Fatalf("GetClassification failed: %v", err)
		}
		if got.Partition != domain.PartitionReturns {
			t.Errorf("Partition = %q", got.Partition)
		}
		if got.Sales != nil {
			t.Error("sales labels should be nil for a return row")
		}
		if got.Returns == nil {
			t.Fatal("return labels missing")
		}
		if got.Returns.ReturnReason != "unsatisfied" {
			t.Errorf("ReturnReason = %q", got.Returns.ReturnReason)
		}
		if got.Returns.DayNetQuantity != -3 {
			t.Errorf("DayNetQuantity = %d", got.Returns.DayNetQuantity)
		}
		if got.Metadata.EngineVersion != "kestrel-1.0" {
			t.Errorf("EngineVersion = %q", got.Metadata.EngineVersion)
		}
	})

	t.Run("GetClassificationByRecord", func(t *testing.T) {
		got, err := repo.GetClassificationByRecord(ctx, tenantID, "batch-2")
		if err != nil {
			t.Fatalf("GetClassificationByRecord failed: %v", err)
		}
		if got.ID != "cls-001" {
			t.Errorf("ID = %q, want cls-001", got.ID)
		}

		if _, err := repo.GetClassificationByRecord(ctx, tenantID, "never-classified"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ScreenConfigCRUD", func(t *testing.T) {
		cfg := &domain.ScreenConfig{
			ID:         "screen-001",
			TenantID:   "*",
			Name:       "Fraud Review Watch",
			Version:    "1.0.0",
			Expression: `refund_status == "fraud_review"`,
			Reason:     "flagged for fraud review",
			Severity:   domain.ScreenSeverityAlert,
			Enabled:    true,
		}

		if err := repo.SaveScreenConfig(ctx, "*", cfg); err != nil {
			t.Fatalf("SaveScreenConfig failed: %v", err)
		}

		got, err := repo.GetScreenConfig(ctx, "*", "screen-001")
		if err != nil {
			t.Fatalf("GetScreenConfig failed: %v", err)
		}
		if got.Expression != cfg.Expression {
			t.Errorf("Expression = %q", got.Expression)
		}
		if !got.Enabled {
			t.Error("Enabled should round-trip")
		}

		// Upsert on same (id, tenant, version)
		cfg.Reason = "updated reason"
		if err := repo.SaveScreenConfig(ctx, "*", cfg); err != nil {
			t.Fatalf("SaveScreenConfig upsert failed: %v", err)
		}
		got, err = repo.GetScreenConfig(ctx, "*", "screen-001")
		if err != nil {
			t.Fatalf("GetScreenConfig failed: %v", err)
		}
		if got.Reason != "updated reason" {
			t.Errorf("Reason = %q, want updated reason", got.Reason)
		}

		configs, err := repo.ListScreenConfigs(ctx, "*")
		if err != nil {
			t.Fatalf("ListScreenConfigs failed: %v", err)
		}
		if len(configs) != 1 {
			t.Errorf("got %d configs, want 1", len(configs))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveRecord(ctx, "", testRecord("x", "1", 1, when)); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.GetRecord(ctx, "", "x"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.ListReturns(ctx, ""); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	r := &SQLRepository{driver: "postgres"}
	got := r.rebind("SELECT * FROM records WHERE tenant_id = ? AND id = ?")
	want := "SELECT * FROM records WHERE tenant_id = $1 AND id = $2"
	if got != want {
		t.Errorf("rebind() = %q, want %q", got, want)
	}

	r = &SQLRepository{driver: "sqlite"}
	query := "SELECT * FROM records WHERE id = ?"
	if got := r.rebind(query); got != query {
		t.Errorf("sqlite rebind should be a no-op, got %q", got)
	}
}
