package planner

import (
	"context"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

var (
	customerSchema = &models.EntitySchema{
		EntityType: "Customer",
		Fields: []models.FieldDefinition{
			{Name: "customer_name", Type: models.FieldTypeText, Required: true},
			{Name: "territory", Type: models.FieldTypeText},
			{Name: "phone", Type: models.FieldTypeText},
		},
	}
	orderItemSchema = &models.EntitySchema{
		EntityType: "Sales Order Item",
		Fields: []models.FieldDefinition{
			{Name: "item_code", Type: models.FieldTypeText},
			{Name: "qty", Type: models.FieldTypeNumber},
		},
	}
	salesOrderSchema = &models.EntitySchema{
		EntityType: "Sales Order",
		Fields: []models.FieldDefinition{
			{Name: "customer", Type: models.FieldTypeReference, Reference: "Customer"},
			{Name: "status", Type: models.FieldTypeEnumerated, AllowedValues: []string{"Draft", "To Deliver", "Completed"}},
			{Name: "grand_total", Type: models.FieldTypeNumber},
		},
		Children: []models.ChildEntity{{FieldName: "items", EntityType: "Sales Order Item", Schema: orderItemSchema}},
	}
)

func testSchemas() models.SchemaSet {
	return models.SchemaSet{customerSchema, salesOrderSchema}
}

var testMetaFields = []string{"name", "docstatus", "creation", "modified", "modified_by", "owner"}

func testCorrector() *Corrector {
	return NewCorrector(CorrectorConfig{
		TablePrefix:    "tab",
		BoundaryColumn: "docstatus",
		BoundaryValue:  "1",
		DefaultDialect: sql.DialectPostgres,
	})
}

// fakeExistence answers Exists from a fixed set of names.
type fakeExistence struct {
	known map[string]bool
	err   error
	calls int
}

func (f *fakeExistence) Exists(_ context.Context, entityType string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.known[strings.ToLower(entityType)], nil
}

func directPlan(op, entityType string, params map[string]any) *models.Plan {
	return &models.Plan{DirectCall: &models.DirectCall{Operation: op, EntityType: entityType, Parameters: params}}
}

func queryPlan(query string, entityTypes ...string) *models.Plan {
	return &models.Plan{GeneratedQuery: &models.GeneratedQuery{Dialect: "postgres", Query: query, EntityTypes: entityTypes}}
}

// scriptedExecutor returns queued results in order and records what ran.
type scriptedExecutor struct {
	mu      sync.Mutex
	results []execResult
	calls   []*models.DirectCall
	queries []string
}

type execResult struct {
	rs  *models.ResultSet
	err error
}

func (e *scriptedExecutor) next() (*models.ResultSet, error) {
	if len(e.results) == 0 {
		return &models.ResultSet{Columns: []string{}, Rows: []map[string]any{}}, nil
	}
	r := e.results[0]
	if len(e.results) > 1 {
		e.results = e.results[1:]
	}
	return r.rs, r.err
}

func (e *scriptedExecutor) Invoke(_ context.Context, call *models.DirectCall) (*models.ResultSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return e.next()
}

func (e *scriptedExecutor) RunReadOnly(_ context.Context, query string, _ sql.Dialect) (*models.ResultSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, query)
	return e.next()
}

func rows(n int) *models.ResultSet {
	rs := &models.ResultSet{Columns: []string{"name"}, Rows: make([]map[string]any, 0, n)}
	for i := 0; i < n; i++ {
		rs.Rows = append(rs.Rows, map[string]any{"name": i})
	}
	rs.RowCount = n
	return rs
}
