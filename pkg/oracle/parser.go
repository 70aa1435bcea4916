package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// planResponse is the only JSON shape accepted from the oracle.
type planResponse struct {
	Variant        string                  `json:"variant"`
	Rationale      string                  `json:"rationale"`
	DirectCall     *directCallResponse     `json:"direct_call"`
	GeneratedQuery *generatedQueryResponse `json:"generated_query"`
}

type directCallResponse struct {
	Operation  string         `json:"operation"`
	EntityType string         `json:"entity_type"`
	Parameters map[string]any `json:"parameters"`
	Limit      int            `json:"limit"`
	OrderBy    string         `json:"order_by"`
}

type generatedQueryResponse struct {
	Dialect     string   `json:"dialect"`
	Query       string   `json:"query"`
	EntityTypes []string `json:"entity_types"`
}

// ParsePlan extracts exactly one Plan from a raw oracle reply. Any deviation
// from the contract yields an OracleUnparseable error.
func ParsePlan(raw string, catalog *Catalog) (*models.Plan, error) {
	resp, err := llm.ParseStrictJSONResponse[planResponse](raw)
	if errors.Is(err, llm.ErrMultipleJSON) {
		return nil, unparseable("response contains more than one plan", models.ErrPlanAmbiguous)
	}
	if err != nil {
		return nil, unparseable("response is not a plan object", err)
	}

	plan := &models.Plan{Rationale: strings.TrimSpace(resp.Rationale)}

	switch {
	case resp.DirectCall != nil && resp.GeneratedQuery != nil:
		return nil, unparseable("response is ambiguous", models.ErrPlanAmbiguous)
	case resp.DirectCall == nil && resp.GeneratedQuery == nil:
		return nil, unparseable("response has no plan", models.ErrPlanEmpty)
	}

	switch models.PlanVariant(resp.Variant) {
	case models.PlanVariantDirectCall:
		if resp.DirectCall == nil {
			return nil, unparseable("variant direct_call without direct_call body", nil)
		}
		dc, err := parseDirectCall(resp.DirectCall, catalog)
		if err != nil {
			return nil, err
		}
		plan.DirectCall = dc
	case models.PlanVariantGeneratedQuery:
		if resp.GeneratedQuery == nil {
			return nil, unparseable("variant generated_query without generated_query body", nil)
		}
		gq, err := parseGeneratedQuery(resp.GeneratedQuery)
		if err != nil {
			return nil, err
		}
		plan.GeneratedQuery = gq
	default:
		return nil, unparseable(fmt.Sprintf("unknown variant %q", resp.Variant), nil)
	}

	return plan, nil
}

func parseDirectCall(r *directCallResponse, catalog *Catalog) (*models.DirectCall, error) {
	if !catalog.Allowed(r.Operation) {
		return nil, unparseable(fmt.Sprintf("operation %q is not allowed", r.Operation), nil)
	}
	entity := strings.TrimSpace(r.EntityType)
	if entity == "" {
		return nil, unparseable("direct_call without entity_type", nil)
	}
	if r.Limit < 0 {
		return nil, unparseable("direct_call with negative limit", nil)
	}

	params := make(map[string]any, len(r.Parameters))
	for k, v := range r.Parameters {
		params[k] = normalizeValue(v)
	}

	return &models.DirectCall{
		Operation:  r.Operation,
		EntityType: entity,
		Parameters: params,
		Limit:      r.Limit,
		OrderBy:    strings.TrimSpace(r.OrderBy),
	}, nil
}

func parseGeneratedQuery(r *generatedQueryResponse) (*models.GeneratedQuery, error) {
	query := strings.TrimSpace(r.Query)
	if query == "" {
		return nil, unparseable("generated_query without query text", nil)
	}
	if strings.TrimSpace(r.Dialect) == "" {
		return nil, unparseable("generated_query without dialect", nil)
	}

	var entities []string
	for _, e := range r.EntityTypes {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}
	if len(entities) == 0 {
		return nil, unparseable("generated_query without entity_types", nil)
	}

	return &models.GeneratedQuery{
		Dialect:     strings.TrimSpace(r.Dialect),
		Query:       query,
		EntityTypes: entities,
	}, nil
}

// normalizeValue converts json.Number leaves to int64 or float64.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

func unparseable(msg string, cause error) *models.ClassifiedError {
	return models.NewClassifiedError(models.ErrorKindOracleUnparseable, msg, cause)
}

// IsUnparseable reports whether err is an OracleUnparseable classification.
func IsUnparseable(err error) bool {
	var ce *models.ClassifiedError
	return errors.As(err, &ce) && ce.Kind == models.ErrorKindOracleUnparseable
}
