package models

// Answer is the response of the single exposed operation.
type Answer struct {
	RequestID         string      `json:"request_id"`
	Success           bool        `json:"success"`
	Result            *ResultSet  `json:"result,omitempty"`
	ErrorSummary      string      `json:"error_summary,omitempty"`
	ErrorKind         ErrorKind   `json:"error_kind,omitempty"`
	PlanVariantUsed   PlanVariant `json:"plan_variant_used,omitempty"`
	EntityTypesUsed   []string    `json:"entity_types_used"`
	DetectionFallback bool        `json:"detection_fallback,omitempty"`
	Attempts          int         `json:"attempts"`
	Rationale         string      `json:"rationale,omitempty"`
	// QueryMetadata is nil when the query was rejected before detection ran.
	QueryMetadata *QueryMetadata `json:"query_metadata,omitempty"`
}

// QueryMetadata explains how the engine read the query.
type QueryMetadata struct {
	// Detection is every candidate entity with its confidence and the
	// keywords that matched it, highest confidence first.
	Detection  []DetectedEntity `json:"detection"`
	TokenCount int              `json:"token_count"`
	// Corrections describes each repair applied before the final attempt.
	Corrections []string `json:"corrections,omitempty"`
}
