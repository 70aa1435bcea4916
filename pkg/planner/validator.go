// Package planner validates, corrects and executes plans, classifies
// execution failures and answers natural-language queries end to end.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/oracle"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// Validation rule identifiers, in the order the rules run.
const (
	RuleVariant          = "variant"
	RuleEntityScope      = "entity_scope"
	RuleFieldMembership  = "field_membership"
	RuleMutatingKeyword  = "mutating_keyword"
	RuleUnknownReference = "unknown_reference"
)

// ExistenceChecker answers whether the record store knows an entity type.
type ExistenceChecker interface {
	Exists(ctx context.Context, entityType string) (bool, error)
}

// ValidatorConfig holds the validator's fixed sets.
type ValidatorConfig struct {
	TablePrefix string
	// MetaFields are accepted as DirectCall parameters on every entity.
	MetaFields []string
	// Dialects lists the dialects a generated query may be written in.
	Dialects []sql.Dialect
}

// Validator rejects unsafe or schema-inconsistent plans.
type Validator struct {
	catalog    *oracle.Catalog
	exists     ExistenceChecker
	prefix     string
	metaFields map[string]bool
	dialects   map[sql.Dialect]bool
}

// NewValidator creates a validator.
func NewValidator(catalog *oracle.Catalog, exists ExistenceChecker, cfg ValidatorConfig) *Validator {
	v := &Validator{
		catalog:    catalog,
		exists:     exists,
		prefix:     cfg.TablePrefix,
		metaFields: make(map[string]bool, len(cfg.MetaFields)),
		dialects:   make(map[sql.Dialect]bool, len(cfg.Dialects)),
	}
	for _, f := range cfg.MetaFields {
		v.metaFields[strings.ToLower(f)] = true
	}
	for _, d := range cfg.Dialects {
		v.dialects[d] = true
	}
	return v
}

// Validate applies the rules in order; the first failing rule decides the
// verdict. The error is non-nil only when the existence check itself failed.
func (v *Validator) Validate(ctx context.Context, plan *models.Plan, schemas models.SchemaSet) (models.ValidationVerdict, error) {
	if verdict := v.checkVariant(plan); !verdict.Valid {
		return verdict, nil
	}
	if verdict := v.checkEntityScope(plan, schemas); !verdict.Valid {
		return verdict, nil
	}

	if plan.Variant() == models.PlanVariantDirectCall {
		return v.checkFieldMembership(plan.DirectCall, schemas), nil
	}

	if verdict := checkReadOnly(plan.GeneratedQuery.Query); !verdict.Valid {
		return verdict, nil
	}
	return v.checkTableRefs(ctx, plan.GeneratedQuery.Query, schemas)
}

func (v *Validator) checkVariant(plan *models.Plan) models.ValidationVerdict {
	if err := plan.CheckShape(); err != nil {
		return models.Invalid(RuleVariant, err.Error())
	}
	switch plan.Variant() {
	case models.PlanVariantDirectCall:
		dc := plan.DirectCall
		if !v.catalog.Allowed(dc.Operation) {
			return models.Invalid(RuleVariant, fmt.Sprintf("operation %q is not allowed", dc.Operation))
		}
		if _, ok := dc.Parameters["name"]; dc.Operation == models.OperationGetRecord && !ok {
			return models.Invalid(RuleVariant, "get_record requires a name parameter")
		}
		if dc.Limit < 0 {
			return models.Invalid(RuleVariant, "limit must not be negative")
		}
	case models.PlanVariantGeneratedQuery:
		d, err := sql.ParseDialect(plan.GeneratedQuery.Dialect)
		if err != nil {
			return models.Invalid(RuleVariant, err.Error())
		}
		if !v.dialects[d] {
			return models.Invalid(RuleVariant, fmt.Sprintf("no read-only runner for dialect %q", d))
		}
	}
	return models.Valid()
}

func (v *Validator) checkEntityScope(plan *models.Plan, schemas models.SchemaSet) models.ValidationVerdict {
	entityTypes := plan.EntityTypes()
	if len(entityTypes) == 0 {
		return models.Invalid(RuleEntityScope, "plan declares no entity type")
	}
	for _, et := range entityTypes {
		if schemas.Find(et) == nil {
			return models.Invalid(RuleEntityScope, fmt.Sprintf("entity type %q was not in the supplied schema context", et))
		}
	}
	return models.Valid()
}

func (v *Validator) checkFieldMembership(dc *models.DirectCall, schemas models.SchemaSet) models.ValidationVerdict {
	schema := schemas.Find(dc.EntityType)

	keys := make([]string, 0, len(dc.Parameters))
	for k := range dc.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !v.knownField(schema, k) {
			return models.Invalid(RuleFieldMembership, fmt.Sprintf("%q is not a field of %q", k, dc.EntityType))
		}
		if _, err := recordstore.ParseCondition(dc.Parameters[k]); err != nil {
			return models.Invalid(RuleFieldMembership, fmt.Sprintf("parameter %q: %v", k, err))
		}
	}

	if dc.OrderBy != "" {
		field, _, err := recordstore.ParseOrderBy(dc.OrderBy)
		if err != nil {
			return models.Invalid(RuleFieldMembership, err.Error())
		}
		if !v.knownField(schema, field) {
			return models.Invalid(RuleFieldMembership, fmt.Sprintf("order_by %q is not a field of %q", field, dc.EntityType))
		}
	}

	if hits := sql.CheckAllParameters(dc.Parameters); len(hits) > 0 {
		return models.Invalid(RuleFieldMembership, fmt.Sprintf("parameter %q looks like SQL injection (fingerprint %s)",
			hits[0].ParamName, hits[0].Fingerprint))
	}
	return models.Valid()
}

func (v *Validator) knownField(schema *models.EntitySchema, name string) bool {
	return v.metaFields[strings.ToLower(name)] || schema.HasField(name)
}

func checkReadOnly(query string) models.ValidationVerdict {
	if result := sql.ValidateReadOnly(query); result.Error != nil {
		return models.Invalid(RuleMutatingKeyword, result.Error.Error())
	}
	return models.Valid()
}

// checkTableRefs requires the query to read at least one entity table and
// nothing else. Every entity table outside the schema context must exist.
func (v *Validator) checkTableRefs(ctx context.Context, query string, schemas models.SchemaSet) (models.ValidationVerdict, error) {
	type entityRef struct{ entityType, raw string }
	var refs []entityRef
	seen := make(map[string]bool)
	add := func(entityType, raw string) {
		if key := strings.ToLower(entityType); !seen[key] {
			seen[key] = true
			refs = append(refs, entityRef{entityType: entityType, raw: raw})
		}
	}

	for _, ref := range sql.ExtractTableRefs(query, v.prefix) {
		add(ref.EntityType, ref.Raw)
	}
	for _, target := range sql.FromTargets(query) {
		switch {
		case target.Function:
			return models.Invalid(RuleUnknownReference, fmt.Sprintf("%s is a table function, not an entity table", target.Raw)), nil
		case target.Qualified:
			return models.Invalid(RuleUnknownReference, fmt.Sprintf("%s is schema-qualified; entity tables are referenced by name only", target.Raw)), nil
		case !strings.HasPrefix(target.Name, v.prefix) || len(target.Name) == len(v.prefix):
			return models.Invalid(RuleUnknownReference, fmt.Sprintf("%s is not an entity table", target.Raw)), nil
		}
		add(target.Name[len(v.prefix):], target.Raw)
	}
	if len(refs) == 0 {
		return models.Invalid(RuleUnknownReference, "query reads no entity table"), nil
	}

	for _, ref := range refs {
		if schemas.Find(ref.entityType) != nil {
			continue
		}
		ok, err := v.exists.Exists(ctx, ref.entityType)
		if err != nil {
			return models.ValidationVerdict{}, fmt.Errorf("check table reference %s: %w", ref.raw, err)
		}
		if !ok {
			return models.Invalid(RuleUnknownReference, fmt.Sprintf("%s does not name a known entity type", ref.raw)), nil
		}
	}
	return models.Valid(), nil
}
