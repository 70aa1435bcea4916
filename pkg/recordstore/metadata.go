package recordstore

import (
	"strings"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// FieldRow is one row of the entity_fields catalog table.
type FieldRow struct {
	Name          string
	Label         string
	FieldType     string
	Required      bool
	AllowedValues string // newline separated
	Reference     string
}

// ChildRow is one row of the entity_children catalog table.
type ChildRow struct {
	FieldName string
	ChildType string
}

// MetadataQueries holds the catalog lookups for one dialect.
type MetadataQueries struct {
	EntityExists string
	ListEntities string
	Fields       string
	Children     string
}

// NewMetadataQueries renders the catalog queries with the dialect's placeholder.
func NewMetadataQueries(d sql.Dialect) MetadataQueries {
	p := "$1"
	if d == sql.DialectSQLServer {
		p = "@p1"
	}
	return MetadataQueries{
		EntityExists: "SELECT COUNT(*) FROM entity_types WHERE name = " + p,
		ListEntities: "SELECT name FROM entity_types WHERE is_child = " + boolLiteral(d, false) + " ORDER BY name",
		Fields: "SELECT field_name, label, field_type, required, allowed_values, reference " +
			"FROM entity_fields WHERE entity_type = " + p + " ORDER BY position, field_name",
		Children: "SELECT field_name, child_type FROM entity_children WHERE parent = " + p + " ORDER BY field_name",
	}
}

func boolLiteral(d sql.Dialect, v bool) string {
	if d == sql.DialectSQLServer {
		if v {
			return "1"
		}
		return "0"
	}
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// ToFieldDefinition converts a catalog row. Unknown field types become text.
func (r FieldRow) ToFieldDefinition() models.FieldDefinition {
	ft := models.FieldType(strings.ToLower(strings.TrimSpace(r.FieldType)))
	if !models.IsValidFieldType(string(ft)) {
		ft = models.FieldTypeText
	}

	def := models.FieldDefinition{
		Name:      r.Name,
		Label:     r.Label,
		Type:      ft,
		Required:  r.Required,
		Reference: strings.TrimSpace(r.Reference),
	}
	if ft == models.FieldTypeEnumerated {
		for _, v := range strings.Split(r.AllowedValues, "\n") {
			if v = strings.TrimSpace(v); v != "" {
				def.AllowedValues = append(def.AllowedValues, v)
			}
		}
	}
	return def
}

// AssembleSchema builds an EntitySchema from catalog rows.
func AssembleSchema(entityType string, fields []FieldRow, children []ChildRow) *models.EntitySchema {
	s := &models.EntitySchema{
		EntityType: entityType,
		Fields:     make([]models.FieldDefinition, 0, len(fields)),
	}
	for _, f := range fields {
		s.Fields = append(s.Fields, f.ToFieldDefinition())
	}
	for _, c := range children {
		s.Children = append(s.Children, models.ChildEntity{FieldName: c.FieldName, EntityType: c.ChildType})
	}
	return s
}
