// Package sql provides text-level checks and helpers for generated queries:
// statement normalization, mutating keyword detection, dialect quoting and
// table reference extraction.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyQuery indicates the query has no text.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrNotReadStatement indicates the query does not start with SELECT or WITH.
	ErrNotReadStatement = errors.New("only SELECT or WITH queries are permitted")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims the query, strips one trailing semicolon and
// rejects any remaining statement separator outside literals and comments.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	normalized := stripTrailingSemicolon(strings.TrimSpace(sqlQuery))
	if normalized == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	for _, seg := range Split(normalized) {
		if seg.Kind == SegmentCode && strings.Contains(seg.Text, ";") {
			return ValidationResult{Error: ErrMultipleStatements}
		}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// ValidateReadOnly runs ValidateAndNormalize and additionally requires a
// read statement with no mutating keyword anywhere in the text.
func ValidateReadOnly(sqlQuery string) ValidationResult {
	result := ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return result
	}
	if !IsReadStatement(result.NormalizedSQL) {
		return ValidationResult{Error: ErrNotReadStatement}
	}
	if kw, found := FindMutatingKeyword(result.NormalizedSQL); found {
		return ValidationResult{Error: &MutatingKeywordError{Keyword: kw}}
	}
	return result
}

// IsReadStatement reports whether the first keyword outside comments is
// SELECT or WITH. Leading parentheses are skipped.
func IsReadStatement(sqlQuery string) bool {
	for _, seg := range Split(sqlQuery) {
		if seg.Kind == SegmentComment {
			continue
		}
		if seg.Kind != SegmentCode {
			return false
		}
		text := strings.TrimLeft(seg.Text, " \t\r\n(")
		if text == "" {
			continue
		}
		word := strings.ToLower(firstWord(text))
		return word == "select" || word == "with"
	}
	return false
}

func firstWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool { return !isWordRune(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
