package models

import "errors"

// PlanVariant tags which arm of a Plan is populated.
type PlanVariant string

const (
	PlanVariantDirectCall     PlanVariant = "direct_call"
	PlanVariantGeneratedQuery PlanVariant = "generated_query"
	PlanVariantNone           PlanVariant = ""
)

// Operation names of the fixed DirectCall allow-list.
const (
	OperationSearchRecords = "search_records"
	OperationGetRecord     = "get_record"
	OperationCountRecords  = "count_records"
)

var (
	// ErrPlanAmbiguous is returned when both plan variants are populated.
	ErrPlanAmbiguous = errors.New("plan populates both direct_call and generated_query")
	// ErrPlanEmpty is returned when neither plan variant is populated.
	ErrPlanEmpty = errors.New("plan populates neither direct_call nor generated_query")
)

// DirectCall is a parameterized call against one of the fixed safe operations.
// Parameters maps field names to either a scalar (equality) or a
// two-element [operator, value] condition.
type DirectCall struct {
	Operation  string         `json:"operation"`
	EntityType string         `json:"entity_type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	OrderBy    string         `json:"order_by,omitempty"`
}

// GeneratedQuery is a free-form read-only query produced by the oracle.
type GeneratedQuery struct {
	Dialect     string   `json:"dialect"`
	Query       string   `json:"query"`
	EntityTypes []string `json:"entity_types"`
}

// Plan is the tagged union produced by the oracle adapter.
// Exactly one of DirectCall and GeneratedQuery is set.
type Plan struct {
	DirectCall     *DirectCall     `json:"direct_call,omitempty"`
	GeneratedQuery *GeneratedQuery `json:"generated_query,omitempty"`
	// Rationale is advisory text from the oracle and never drives control flow.
	Rationale string `json:"rationale,omitempty"`
}

// Variant returns the populated arm, or PlanVariantNone if the plan is
// empty or ambiguous.
func (p *Plan) Variant() PlanVariant {
	if p == nil {
		return PlanVariantNone
	}
	switch {
	case p.DirectCall != nil && p.GeneratedQuery == nil:
		return PlanVariantDirectCall
	case p.GeneratedQuery != nil && p.DirectCall == nil:
		return PlanVariantGeneratedQuery
	default:
		return PlanVariantNone
	}
}

// CheckShape returns an error unless exactly one variant is populated.
func (p *Plan) CheckShape() error {
	if p == nil || (p.DirectCall == nil && p.GeneratedQuery == nil) {
		return ErrPlanEmpty
	}
	if p.DirectCall != nil && p.GeneratedQuery != nil {
		return ErrPlanAmbiguous
	}
	return nil
}

// EntityTypes returns every entity type the plan declares it touches.
func (p *Plan) EntityTypes() []string {
	switch p.Variant() {
	case PlanVariantDirectCall:
		return []string{p.DirectCall.EntityType}
	case PlanVariantGeneratedQuery:
		return append([]string(nil), p.GeneratedQuery.EntityTypes...)
	}
	return nil
}

// Clone returns a deep copy so corrections never mutate a plan held elsewhere.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := &Plan{Rationale: p.Rationale}
	if p.DirectCall != nil {
		dc := *p.DirectCall
		if p.DirectCall.Parameters != nil {
			dc.Parameters = make(map[string]any, len(p.DirectCall.Parameters))
			for k, v := range p.DirectCall.Parameters {
				dc.Parameters[k] = v
			}
		}
		out.DirectCall = &dc
	}
	if p.GeneratedQuery != nil {
		gq := *p.GeneratedQuery
		gq.EntityTypes = append([]string(nil), p.GeneratedQuery.EntityTypes...)
		out.GeneratedQuery = &gq
	}
	return out
}
