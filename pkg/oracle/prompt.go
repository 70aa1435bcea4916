package oracle

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

const (
	maxPromptFields      = 30
	maxPromptChildFields = 10
)

// PromptOptions carries the store-specific details the prompt explains.
type PromptOptions struct {
	Dialect     sql.Dialect
	TablePrefix string
	MetaFields  []string
}

const systemMessage = `You plan read-only answers to questions about business records.
Respond with exactly one JSON object and nothing else. Never propose statements that create, change or remove data.`

// BuildPrompt renders the user prompt for one query: schema context for each
// entity type, the operation catalog and the response contract.
func BuildPrompt(query string, schemas models.SchemaSet, catalog *Catalog, opts PromptOptions) string {
	var prompt strings.Builder

	prompt.WriteString("# Record Query Planning\n\n")

	prompt.WriteString("## Entity Types and Fields\n\n")
	for _, s := range schemas {
		writeEntity(&prompt, s, opts)
	}
	if len(opts.MetaFields) > 0 {
		prompt.WriteString(fmt.Sprintf("Every entity type also has: %s\n\n", strings.Join(opts.MetaFields, ", ")))
	}

	prompt.WriteString("## Operations\n\n")
	prompt.WriteString("Prefer a direct_call with one of these operations:\n\n")
	for i, op := range catalog.Operations() {
		prompt.WriteString(fmt.Sprintf("%d. **%s** - %s\n", i+1, op.Name, op.Description))
		for _, p := range op.Params {
			req := ""
			if p.Required {
				req = " [REQUIRED]"
			}
			prompt.WriteString(fmt.Sprintf("   - `%s` (%s)%s: %s\n", p.Name, p.Type, req, p.Description))
		}
		if op.Example != "" {
			prompt.WriteString(fmt.Sprintf("   - Example: %s\n", op.Example))
		}
	}
	prompt.WriteString("\nFilter values are either a plain value (equality) or a two element list ")
	prompt.WriteString(`[operator, value] with operator one of =, !=, <, <=, >, >=, like, not like, in, not in, is.`)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Generated Queries\n\n")
	prompt.WriteString(fmt.Sprintf("Only when no operation can answer the question, write a single %s SELECT query.\n", opts.Dialect))
	example := opts.Dialect.TableName(opts.TablePrefix, "Sales Order")
	prompt.WriteString(fmt.Sprintf("Table names are the entity type prefixed with %q and always delimited, e.g. %s.\n", opts.TablePrefix, example))
	prompt.WriteString("List every entity type the query reads in entity_types.\n\n")

	prompt.WriteString("## User Query\n\n")
	prompt.WriteString(fmt.Sprintf("%q\n\n", query))

	prompt.WriteString("## Response Format\n\n")
	prompt.WriteString("Return exactly one of these shapes:\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{"variant": "direct_call", "rationale": "...", "direct_call": {"operation": "search_records", "entity_type": "...", "parameters": {}, "limit": 20, "order_by": "modified desc"}}`)
	prompt.WriteString("\n```\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(fmt.Sprintf(`{"variant": "generated_query", "rationale": "...", "generated_query": {"dialect": "%s", "query": "SELECT ...", "entity_types": ["..."]}}`, opts.Dialect))
	prompt.WriteString("\n```\n")

	return prompt.String()
}

func writeEntity(prompt *strings.Builder, s *models.EntitySchema, opts PromptOptions) {
	prompt.WriteString(fmt.Sprintf("### %s\n", s.EntityType))
	prompt.WriteString(fmt.Sprintf("Table: %s\n", opts.Dialect.TableName(opts.TablePrefix, s.EntityType)))
	prompt.WriteString("Fields:\n")

	fields := s.Fields
	if len(fields) > maxPromptFields {
		fields = fields[:maxPromptFields]
	}
	for _, f := range fields {
		line := fmt.Sprintf("- `%s` (%s)", f.Name, f.Type)
		if f.Required {
			line += " [REQUIRED]"
		}
		if f.Reference != "" {
			line += fmt.Sprintf(" [LINK→%s]", f.Reference)
		}
		if len(f.AllowedValues) > 0 {
			line += fmt.Sprintf(" one of: %s", strings.Join(f.AllowedValues, ", "))
		}
		prompt.WriteString(line + "\n")
	}
	if omitted := len(s.Fields) - len(fields); omitted > 0 {
		prompt.WriteString(fmt.Sprintf("- ... %d more fields not shown\n", omitted))
	}

	if len(s.Children) > 0 {
		prompt.WriteString("Child tables:\n")
		for _, c := range s.Children {
			prompt.WriteString(fmt.Sprintf("- `%s` → %s", c.FieldName, c.EntityType))
			if c.Schema != nil {
				names := c.Schema.FieldNames()
				if len(names) > maxPromptChildFields {
					names = names[:maxPromptChildFields]
				}
				prompt.WriteString(fmt.Sprintf(" (fields: %s)", strings.Join(names, ", ")))
			}
			prompt.WriteString("\n")
		}
	}
	prompt.WriteString("\n")
}
