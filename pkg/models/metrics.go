package models

import "time"

// MetricsWindow holds outcome counters for one period.
type MetricsWindow struct {
	Period    string    `json:"period"`
	Total     int64     `json:"total"`
	Succeeded int64     `json:"succeeded"`
	Failed    int64     `json:"failed"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// PeriodKeyLayout is the layout of period keys (one window per calendar day).
const PeriodKeyLayout = "2006-01-02"

// PeriodKey returns the period key for t in UTC.
func PeriodKey(t time.Time) string {
	return t.UTC().Format(PeriodKeyLayout)
}

// OutcomeRecord is what the outcome recorder receives for each request.
type OutcomeRecord struct {
	RequestID   string      `json:"request_id"`
	Query       string      `json:"query"`
	PlanVariant PlanVariant `json:"plan_variant"`
	EntityTypes []string    `json:"entity_types"`
	Attempts    int         `json:"attempts"`
	Success     bool        `json:"success"`
	ErrorKind   ErrorKind   `json:"error_kind,omitempty"`
	// CorrectedErrorKinds lists, in order, the error each retry corrected.
	CorrectedErrorKinds []ErrorKind   `json:"corrected_error_kinds,omitempty"`
	DetectionFallback   bool          `json:"detection_fallback"`
	Duration            time.Duration `json:"duration"`
	CompletedAt         time.Time     `json:"completed_at"`
}
