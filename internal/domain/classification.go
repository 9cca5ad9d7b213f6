package domain

import (
	"time"
)

// Classification is the stored labeling result for one record.
// Exactly one of Sales / Returns is set, matching the partition.
type Classification struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	RecordID  string    `json:"recordId"`
	Partition Partition `json:"partition"`
	Timestamp time.Time `json:"timestamp"`

	Sales   *SalesLabels  `json:"sales,omitempty"`
	Returns *ReturnLabels `json:"returns,omitempty"`

	// Screen results (if any screens are loaded)
	ScreenResults []ScreenResult `json:"screenResults,omitempty"`

	Metadata ClassificationMetadata `json:"metadata"`
}

// ClassificationMetadata carries processing information.
type ClassificationMetadata struct {
	TraceID          string `json:"traceId"`
	AggregateMs      int64  `json:"aggregateMs"` // window aggregate pass (returns only)
	ClassifyMs       int64  `json:"classifyMs"`
	TotalMs          int64  `json:"totalMs"`
	ScreensMatched   int    `json:"screensMatched"`
	ScreensEvaluated int    `json:"screensEvaluated"`
	EngineVersion    string `json:"engineVersion"`
}

// ClassifyResponse is the per-record API response for batch classification.
type ClassifyResponse struct {
	ClassificationID string        `json:"classificationId"`
	RecordID         string        `json:"recordId"`
	Partition        Partition     `json:"partition"`
	Sales            *SalesLabels  `json:"sales,omitempty"`
	Returns          *ReturnLabels `json:"returns,omitempty"`
	Alerts           []string      `json:"alerts,omitempty"`
}

// ToResponse converts a Classification to its API shape.
func (c *Classification) ToResponse() *ClassifyResponse {
	var alerts []string
	for _, s := range c.ScreenResults {
		if s.Matched && s.Reason != "" {
			alerts = append(alerts, s.Reason)
		}
	}

	return &ClassifyResponse{
		ClassificationID: c.ID,
		RecordID:         c.RecordID,
		Partition:        c.Partition,
		Sales:            c.Sales,
		Returns:          c.Returns,
		Alerts:           alerts,
	}
}
