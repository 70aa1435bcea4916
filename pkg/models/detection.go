package models

// DetectedEntity is one entity type candidate with its confidence in [0,1].
type DetectedEntity struct {
	EntityType      string   `json:"entity_type"`
	Confidence      float64  `json:"confidence"`
	KeywordsMatched []string `json:"keywords_matched,omitempty"`
}

// DetectionResult is the ordered, confidence-scored candidate list for one
// query. Confidences are non-increasing in order.
type DetectionResult struct {
	Entities []DetectedEntity `json:"entities"`
	// FallbackUsed is set when no candidate cleared the confidence floor and
	// the semantic or default fallback produced the list.
	FallbackUsed bool `json:"fallback_used"`
	TokenCount   int  `json:"token_count"`
}

// EntityTypes returns the detected entity type names in order.
func (r *DetectionResult) EntityTypes() []string {
	names := make([]string, 0, len(r.Entities))
	for _, e := range r.Entities {
		names = append(names, e.EntityType)
	}
	return names
}

// ValidationVerdict is the result of validating a plan. Rule names the
// first rule that failed.
type ValidationVerdict struct {
	Valid  bool   `json:"valid"`
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Valid returns an accepting verdict.
func Valid() ValidationVerdict {
	return ValidationVerdict{Valid: true}
}

// Invalid returns a rejecting verdict for the given rule.
func Invalid(rule, reason string) ValidationVerdict {
	return ValidationVerdict{Valid: false, Rule: rule, Reason: rule + ": " + reason}
}
