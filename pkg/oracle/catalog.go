// Package oracle turns a user query plus schema context into a structured
// Plan by asking an LLM, and strictly parses what comes back.
package oracle

import (
	"sort"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// ParamSpec describes one argument of a catalog operation.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Operation is one entry of the fixed DirectCall allow-list.
type Operation struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
	Example     string      `json:"example"`
}

// Catalog is the allow-list of operations a DirectCall plan may name.
type Catalog struct {
	ops map[string]Operation
}

// NewCatalog builds a catalog from ops.
func NewCatalog(ops ...Operation) *Catalog {
	c := &Catalog{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		c.ops[op.Name] = op
	}
	return c
}

// DefaultCatalog returns the read-only operations every record store supports.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Operation{
			Name:        models.OperationSearchRecords,
			Description: "List records of one entity type matching field filters",
			Params: []ParamSpec{
				{Name: "entity_type", Type: "string", Required: true, Description: "entity type to search"},
				{Name: "parameters", Type: "object", Description: "field filters; value or [operator, value]"},
				{Name: "limit", Type: "integer", Description: "maximum rows, default 20"},
				{Name: "order_by", Type: "string", Description: `field and direction, e.g. "modified desc"`},
			},
			Example: `{"operation": "search_records", "entity_type": "Customer", "parameters": {"territory": "USA"}, "limit": 20}`,
		},
		Operation{
			Name:        models.OperationGetRecord,
			Description: "Fetch one record by its name identifier",
			Params: []ParamSpec{
				{Name: "entity_type", Type: "string", Required: true, Description: "entity type of the record"},
				{Name: "parameters", Type: "object", Required: true, Description: `must contain "name"`},
			},
			Example: `{"operation": "get_record", "entity_type": "Customer", "parameters": {"name": "CUST-00001"}}`,
		},
		Operation{
			Name:        models.OperationCountRecords,
			Description: "Count records of one entity type matching field filters",
			Params: []ParamSpec{
				{Name: "entity_type", Type: "string", Required: true, Description: "entity type to count"},
				{Name: "parameters", Type: "object", Description: "field filters; value or [operator, value]"},
			},
			Example: `{"operation": "count_records", "entity_type": "Purchase Order", "parameters": {"docstatus": 1}}`,
		},
	)
}

// Allowed reports whether name is on the allow-list.
func (c *Catalog) Allowed(name string) bool {
	_, ok := c.ops[name]
	return ok
}

// Get returns the operation with the given name.
func (c *Catalog) Get(name string) (Operation, bool) {
	op, ok := c.ops[name]
	return op, ok
}

// Operations returns all operations sorted by name.
func (c *Catalog) Operations() []Operation {
	ops := make([]Operation, 0, len(c.ops))
	for _, op := range c.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Names returns the operation names sorted.
func (c *Catalog) Names() []string {
	ops := c.Operations()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name
	}
	return names
}
