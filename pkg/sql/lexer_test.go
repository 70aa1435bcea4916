package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit_RoundTrips(t *testing.T) {
	queries := []string{
		"",
		"SELECT 1",
		`SELECT "name" FROM "tabSales Order" WHERE status = 'Open'`,
		"SELECT [name] FROM [tabItem] -- trailing\nWHERE x = 1",
		"SELECT /* a ; b */ 1",
		"SELECT 'O''Brien', 'back\\'slash'",
		"SELECT 'unterminated",
		"SELECT `tabItem`.`name` FROM `tabItem`",
	}
	for _, q := range queries {
		assert.Equal(t, q, Join(Split(q)), q)
	}
}

func TestSplit_Kinds(t *testing.T) {
	segs := Split(`SELECT "tabItem".x, 'a;b' FROM [tabItem] /* c */ -- d`)

	var kinds []SegmentKind
	for _, s := range segs {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []SegmentKind{
		SegmentCode, SegmentIdentifier, SegmentCode, SegmentString, SegmentCode,
		SegmentIdentifier, SegmentCode, SegmentComment, SegmentCode, SegmentComment,
	}, kinds)
	assert.Equal(t, `"tabItem"`, segs[1].Text)
	assert.Equal(t, "'a;b'", segs[3].Text)
	assert.Equal(t, "[tabItem]", segs[5].Text)
}

func TestMapCode_LeavesLiteralsAlone(t *testing.T) {
	out := MapCode(`select 'select' from "select"`, func(code string) string {
		return strings.ReplaceAll(code, "select", "SELECT")
	})
	assert.Equal(t, `SELECT 'select' from "select"`, out)
}
