package screen

import "github.com/retail-insights/kestrel/internal/domain"

// ShouldAlert reports whether any matched screen carries alert severity.
func ShouldAlert(results []domain.ScreenResult) bool {
	for _, r := range results {
		if r.Matched && r.Severity == domain.ScreenSeverityAlert {
			return true
		}
	}
	return false
}

// MatchedCount returns how many screens matched.
func MatchedCount(results []domain.ScreenResult) int {
	n := 0
	for _, r := range results {
		if r.Matched {
			n++
		}
	}
	return n
}

// Reasons extracts the human-readable reasons from matched screens.
func Reasons(results []domain.ScreenResult) []string {
	var reasons []string
	for _, r := range results {
		if r.Matched && r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}
