package recordstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

func TestAssembleSchema(t *testing.T) {
	s := AssembleSchema("Sales Order",
		[]FieldRow{
			{Name: "customer", FieldType: "reference", Required: true, Reference: "Customer"},
			{Name: "status", FieldType: "Enumerated", AllowedValues: "Draft\n\nSubmitted \n"},
			{Name: "notes", FieldType: "longtext"},
		},
		[]ChildRow{{FieldName: "items", ChildType: "Sales Order Item"}},
	)

	assert.Equal(t, "Sales Order", s.EntityType)
	assert.Equal(t, []string{"customer", "status", "notes"}, s.FieldNames())
	assert.Equal(t, "Customer", s.Field("customer").Reference)
	assert.Equal(t, []string{"Draft", "Submitted"}, s.Field("status").AllowedValues)
	assert.Equal(t, models.FieldTypeText, s.Field("notes").Type)
	assert.Equal(t, []models.ChildEntity{{FieldName: "items", EntityType: "Sales Order Item"}}, s.Children)
}

func TestNewMetadataQueries(t *testing.T) {
	pg := NewMetadataQueries(sql.DialectPostgres)
	assert.Contains(t, pg.Fields, "entity_type = $1")
	assert.Contains(t, pg.ListEntities, "is_child = FALSE")

	ms := NewMetadataQueries(sql.DialectSQLServer)
	assert.Contains(t, ms.Fields, "entity_type = @p1")
	assert.Contains(t, ms.ListEntities, "is_child = 0")
}
