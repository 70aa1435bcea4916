package sql

import (
	"fmt"
	"strings"
)

// MutatingKeywords is the denylist of write, DDL, privilege and transaction
// control keywords. A generated query containing any of them as a
// standalone token is never executed.
var MutatingKeywords = []string{
	"insert", "update", "delete", "merge", "upsert",
	"create", "alter", "drop", "truncate", "rename",
	"grant", "revoke",
	"exec", "execute", "call",
	"commit", "rollback", "savepoint",
	"copy", "into",
	"vacuum", "reindex", "cluster", "lock",
	"attach", "detach",
}

var mutatingSet = func() map[string]bool {
	m := make(map[string]bool, len(MutatingKeywords))
	for _, k := range MutatingKeywords {
		m[k] = true
	}
	return m
}()

// MutatingKeywordError reports the denylisted keyword found in a query.
type MutatingKeywordError struct {
	Keyword string
}

func (e *MutatingKeywordError) Error() string {
	return fmt.Sprintf("query contains mutating keyword %q", e.Keyword)
}

// Tokens lowercases the query and splits it into runs of letters, digits
// and underscores. The whole text is scanned, literals and comments included.
func Tokens(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !isWordRune(r)
	})
}

// FindMutatingKeyword returns the first denylisted token in query.
func FindMutatingKeyword(query string) (string, bool) {
	for _, tok := range Tokens(query) {
		if mutatingSet[tok] {
			return tok, true
		}
	}
	return "", false
}

// IsMutatingKeyword reports whether word is on the denylist.
func IsMutatingKeyword(word string) bool {
	return mutatingSet[strings.ToLower(word)]
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
