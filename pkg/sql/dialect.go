package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect tags the SQL flavour a generated query is written in.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectSQLServer Dialect = "sqlserver"
	DialectMySQL     Dialect = "mysql"
)

// ParseDialect maps a dialect tag to a Dialect. Common aliases are accepted.
func ParseDialect(tag string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlserver", "mssql", "tsql":
		return DialectSQLServer, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", tag)
	}
}

// Delimiters returns the opening and closing identifier delimiters.
func (d Dialect) Delimiters() (open, closing string) {
	switch d {
	case DialectSQLServer:
		return "[", "]"
	case DialectMySQL:
		return "`", "`"
	default:
		return `"`, `"`
	}
}

// QuoteIdent delimits an identifier, escaping embedded closing delimiters.
func (d Dialect) QuoteIdent(name string) string {
	open, closing := d.Delimiters()
	return open + strings.ReplaceAll(name, closing, closing+closing) + closing
}

// TableName returns the delimited table name for an entity type.
func (d Dialect) TableName(prefix, entityType string) string {
	return d.QuoteIdent(prefix + entityType)
}

// TableRef is a delimited table reference found in query text.
type TableRef struct {
	// Raw is the reference as written, delimiters included.
	Raw string
	// EntityType is the referenced name with the table prefix removed.
	EntityType string
}

// ExtractTableRefs returns every delimited reference whose name starts with
// prefix, in any of the supported delimiter styles. Duplicates are removed;
// order of first appearance is kept. References inside string literals and
// comments are ignored.
func ExtractTableRefs(query, prefix string) []TableRef {
	if prefix == "" {
		return nil
	}
	seen := make(map[string]bool)
	var refs []TableRef
	for _, seg := range Split(query) {
		if seg.Kind != SegmentIdentifier || len(seg.Text) < 2 {
			continue
		}
		inner := unquote(seg.Text)
		if !strings.HasPrefix(inner, prefix) || len(inner) == len(prefix) {
			continue
		}
		entity := inner[len(prefix):]
		if seen[entity] {
			continue
		}
		seen[entity] = true
		refs = append(refs, TableRef{Raw: seg.Text, EntityType: entity})
	}
	return refs
}

func unquote(ident string) string {
	open, closing := ident[0], ident[len(ident)-1]
	inner := ident[1 : len(ident)-1]
	switch {
	case open == '"' && closing == '"':
		return strings.ReplaceAll(inner, `""`, `"`)
	case open == '[' && closing == ']':
		return strings.ReplaceAll(inner, "]]", "]")
	case open == '`' && closing == '`':
		return strings.ReplaceAll(inner, "``", "`")
	default:
		return ident[1:]
	}
}

// BareTableRefPattern matches undelimited references such as tabSalesOrder:
// the prefix followed by an upper-case letter and word characters.
func BareTableRefPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(prefix) + `([A-Z][A-Za-z0-9_]*)\b`)
}
