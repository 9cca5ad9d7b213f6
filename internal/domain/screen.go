package domain

// ScreenConfig defines a post-classification screening rule. Screens are
// CEL expressions evaluated over a labeled record; they flag rows for
// operational review, they never change the labels themselves.
type ScreenConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression, must return bool
	Expression string `json:"expression"`

	// Reason reported when the screen matches
	Reason string `json:"reason"`

	// Severity of a match: "info", "review", "alert"
	Severity string `json:"severity"`

	Enabled bool `json:"enabled"`
}

// Screen severities.
const (
	ScreenSeverityInfo   = "info"
	ScreenSeverityReview = "review"
	ScreenSeverityAlert  = "alert"
)

// ScreenResult is the outcome of evaluating one screen against one
// labeled record.
type ScreenResult struct {
	ScreenID  string `json:"screenId"`
	TenantID  string `json:"tenantId"`
	RecordID  string `json:"recordId"`
	Matched   bool   `json:"matched"`
	Reason    string `json:"reason,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Err       string `json:"error,omitempty"`
	ProcessMs int64  `json:"processMs"`
}
