package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/retail-insights/kestrel/internal/classify"
	"github.com/retail-insights/kestrel/internal/domain"
	"github.com/retail-insights/kestrel/internal/screen"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *classify.Engine
	screens *screen.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *classify.Engine, screens *screen.Engine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		screens: screens,
		version: version,
	}
}

// ClassifyRequest is the request body for POST /classify and POST /records.
type ClassifyRequest struct {
	Records []domain.RecordRequest `json:"records"`
}

// ClassifyBatchResponse is the response for POST /classify.
type ClassifyBatchResponse struct {
	Results  []*domain.ClassifyResponse `json:"results"`
	Metadata struct {
		TraceID    string `json:"traceId"`
		Records    int    `json:"records"`
		SalesRows  int    `json:"salesRows"`
		ReturnRows int    `json:"returnRows"`
		TotalMs    int64  `json:"totalMs"`
		Version    string `json:"version"`
	} `json:"metadata"`
}

// parseRecords validates and converts a request batch into records.
func (h *Handler) parseRecords(req *ClassifyRequest, tenantID string) ([]*domain.TransactionRecord, error) {
	records := make([]*domain.TransactionRecord, 0, len(req.Records))
	for i := range req.Records {
		rec, err := req.Records[i].ToRecord(uuid.New().String(), tenantID)
		if err != nil {
			return nil, err
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Classify handles POST /classify: synchronous batch classification.
// The posted batch is treated as the full returns partition for the
// window aggregates; use POST /records for history-aware async labeling.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records is required and must be non-empty",
		})
		return
	}

	records, err := h.parseRecords(&req, tenantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	// Persist records if repository is available
	if h.repo != nil {
		if err := h.repo.SaveRecords(ctx, tenantID, records); err != nil {
			slog.Error("failed to save records", "error", err)
			// Continue: labeling matters more than persistence here.
		}
	}

	classifications, err := h.engine.ClassifyBatch(ctx, &classify.BatchInput{
		TenantID: tenantID,
		TraceID:  traceID,
		Records:  records,
	})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	resp := ClassifyBatchResponse{
		Results: make([]*domain.ClassifyResponse, 0, len(classifications)),
	}

	for i, c := range classifications {
		if h.screens != nil && h.screens.ScreensCount() > 0 {
			c.ScreenResults = h.screens.EvaluateAll(ctx, records[i], c)
			c.Metadata.ScreensEvaluated = len(c.ScreenResults)
			c.Metadata.ScreensMatched = screen.MatchedCount(c.ScreenResults)
		}

		if h.repo != nil {
			if err := h.repo.SaveClassification(ctx, tenantID, c); err != nil {
				slog.Error("failed to save classification", "record_id", c.RecordID, "error", err)
			}
		}

		resp.Results = append(resp.Results, c.ToResponse())
		switch c.Partition {
		case domain.PartitionSales:
			resp.Metadata.SalesRows++
		case domain.PartitionReturns:
			resp.Metadata.ReturnRows++
		}
	}

	resp.Metadata.TraceID = traceID
	resp.Metadata.Records = len(classifications)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// ingestMessage is the payload published for async classification.
// Mirrors worker.BatchMessage.
type ingestMessage struct {
	BatchID  string                      `json:"batchId"`
	TenantID string                      `json:"tenantId"`
	TraceID  string                      `json:"traceId"`
	Records  []*domain.TransactionRecord `json:"records"`
}

// IngestRecords handles POST /records: stores the batch and hands it to
// the async worker for history-aware classification.
func (h *Handler) IngestRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "records is required and must be non-empty",
		})
		return
	}

	records, err := h.parseRecords(&req, tenantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if err := h.repo.SaveRecords(ctx, tenantID, records); err != nil {
		slog.Error("failed to save records", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save records",
		})
		return
	}

	batchID := uuid.New().String()
	payload, _ := json.Marshal(ingestMessage{
		BatchID:  batchID,
		TenantID: tenantID,
		TraceID:  traceID,
		Records:  records,
	})

	if err := h.bus.Publish(ctx, tenantID, domain.TopicBatchIngested, payload); err != nil {
		slog.Error("failed to publish batch", "batch_id", batchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue batch",
		})
		return
	}

	recordIDs := make([]string, len(records))
	for i, rec := range records {
		recordIDs[i] = rec.ID
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"batchId":   batchID,
		"recordIds": recordIDs,
		"traceId":   traceID,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Labels returns the label vocabulary contract consumed downstream.
func (h *Handler) Labels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.Vocabulary())
}

// GetRecord retrieves a record by ID.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	recordID := chi.URLParam(r, "id")

	if recordID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "record id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetRecord(ctx, tenantID, recordID)
	if err != nil {
		slog.Error("failed to get record", "id", recordID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "record not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetClassification retrieves a classification by ID.
func (h *Handler) GetClassification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	classificationID := chi.URLParam(r, "id")

	if classificationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "classification id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	c, err := h.repo.GetClassification(ctx, tenantID, classificationID)
	if err != nil {
		slog.Error("failed to get classification", "id", classificationID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "classification not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// GetRecordClassification retrieves the latest classification for a record.
func (h *Handler) GetRecordClassification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	recordID := chi.URLParam(r, "id")

	if recordID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "record id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	c, err := h.repo.GetClassificationByRecord(ctx, tenantID, recordID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "classification not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// GlobalTenantID is used for screens that apply to all tenants.
const GlobalTenantID = "*"

// ListScreens returns all loaded screens from the engine.
func (h *Handler) ListScreens(w http.ResponseWriter, r *http.Request) {
	loaded := h.screens.GetLoadedScreens()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"screens": loaded,
		"count":   len(loaded),
		"source":  "database",
	})
}

// GetScreen retrieves a screen by ID from the loaded engine screens.
func (h *Handler) GetScreen(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "id")

	if screenID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "screen id is required",
		})
		return
	}

	for _, s := range h.screens.GetLoadedScreens() {
		if s.ID == screenID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "screen not found",
	})
}

// CreateScreenRequest is the request body for creating a screen.
type CreateScreenRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Reason      string `json:"reason"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
}

// CreateScreen creates a new screen and saves it to the database.
// Screens are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /screens/reload to hot-reload into the engine.
func (h *Handler) CreateScreen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.ScreenSeverityReview
	}

	cfg := &domain.ScreenConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Reason:      req.Reason,
		Severity:    severity,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.screens.LoadScreen(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveScreenConfig(ctx, GlobalTenantID, cfg); err != nil {
			slog.Error("failed to save screen config", "id", cfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save screen",
			})
			return
		}
	}

	slog.Info("screen created", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"screen":  cfg,
		"message": "Screen created. Call POST /screens/reload to apply changes.",
	})
}

// ReloadScreens reloads all screens from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadScreens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbScreens, err := h.repo.ListScreenConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list screens from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load screens from database",
		})
		return
	}

	if err := h.screens.ReloadScreens(dbScreens); err != nil {
		slog.Error("failed to reload screens into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload screens: " + err.Error(),
		})
		return
	}

	slog.Info("screens reloaded from database", "count", len(dbScreens))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "screens reloaded successfully",
		"count":   len(dbScreens),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
