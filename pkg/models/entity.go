// Package models holds the planner's data model: entity schemas, plans,
// detection results, classified errors and answers.
package models

import "strings"

// FieldType is the semantic type of a record field.
type FieldType string

const (
	FieldTypeText       FieldType = "text"
	FieldTypeNumber     FieldType = "number"
	FieldTypeDate       FieldType = "date"
	FieldTypeEnumerated FieldType = "enumerated"
	FieldTypeReference  FieldType = "reference"
)

// ValidFieldTypes lists all supported field types.
var ValidFieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeNumber,
	FieldTypeDate,
	FieldTypeEnumerated,
	FieldTypeReference,
}

// IsValidFieldType checks if the given type is a known field type.
func IsValidFieldType(t string) bool {
	for _, ft := range ValidFieldTypes {
		if string(ft) == t {
			return true
		}
	}
	return false
}

// FieldDefinition describes one field of an entity type.
// AllowedValues is only set for enumerated fields; Reference names the
// target entity type for reference fields.
type FieldDefinition struct {
	Name          string    `json:"name"`
	Label         string    `json:"label,omitempty"`
	Type          FieldType `json:"type"`
	Required      bool      `json:"required"`
	AllowedValues []string  `json:"allowed_values,omitempty"`
	Reference     string    `json:"reference,omitempty"`
}

// ChildEntity is a nested entity type embedded in a parent through a field.
type ChildEntity struct {
	FieldName  string        `json:"field_name"`
	EntityType string        `json:"entity_type"`
	Schema     *EntitySchema `json:"schema,omitempty"`
}

// EntitySchema is the schema context for one entity type: its fields plus
// the schemas of its child entity types.
type EntitySchema struct {
	EntityType string            `json:"entity_type"`
	Fields     []FieldDefinition `json:"fields"`
	Children   []ChildEntity     `json:"children,omitempty"`
}

// HasField reports whether the schema declares a field with the given name.
func (s *EntitySchema) HasField(name string) bool {
	return s.Field(name) != nil
}

// Field returns the field definition with the given name, or nil.
func (s *EntitySchema) Field(name string) *FieldDefinition {
	if s == nil {
		return nil
	}
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// FieldNames returns the declared field names in order.
func (s *EntitySchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// SchemaSet is an ordered collection of entity schemas supplied for one request.
type SchemaSet []*EntitySchema

// Get returns the schema for the named entity type, matching case-insensitively.
func (ss SchemaSet) Get(entityType string) *EntitySchema {
	for _, s := range ss {
		if strings.EqualFold(s.EntityType, entityType) {
			return s
		}
	}
	return nil
}

// Contains reports whether a schema for the entity type was supplied.
func (ss SchemaSet) Contains(entityType string) bool {
	return ss.Get(entityType) != nil
}

// EntityTypes returns the entity type names in order.
func (ss SchemaSet) EntityTypes() []string {
	names := make([]string, 0, len(ss))
	for _, s := range ss {
		names = append(names, s.EntityType)
	}
	return names
}

// AllEntityTypes returns the supplied entity types and every nested child
// entity type, without duplicates.
func (ss SchemaSet) AllEntityTypes() []string {
	seen := make(map[string]bool)
	var names []string
	var walk func(s *EntitySchema)
	walk = func(s *EntitySchema) {
		if s == nil || seen[s.EntityType] {
			return
		}
		seen[s.EntityType] = true
		names = append(names, s.EntityType)
		for _, c := range s.Children {
			if c.Schema != nil {
				walk(c.Schema)
			} else if !seen[c.EntityType] {
				seen[c.EntityType] = true
				names = append(names, c.EntityType)
			}
		}
	}
	for _, s := range ss {
		walk(s)
	}
	return names
}

// Find returns the schema for entityType among the supplied schemas and
// their nested children, matching case-insensitively.
func (ss SchemaSet) Find(entityType string) *EntitySchema {
	if s := ss.Get(entityType); s != nil {
		return s
	}
	for _, s := range ss {
		for _, c := range s.Children {
			if c.Schema != nil && strings.EqualFold(c.Schema.EntityType, entityType) {
				return c.Schema
			}
		}
	}
	return nil
}
