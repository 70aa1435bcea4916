package sql

import "strings"

// SegmentKind classifies a run of query text.
type SegmentKind int

const (
	// SegmentCode is unquoted query text.
	SegmentCode SegmentKind = iota
	// SegmentString is a single-quoted literal, quotes included.
	SegmentString
	// SegmentIdentifier is a delimited identifier ("x", [x] or `x`), delimiters included.
	SegmentIdentifier
	// SegmentComment is a -- line comment or /* block */ comment.
	SegmentComment
)

// Segment is a contiguous piece of query text of one kind.
type Segment struct {
	Kind SegmentKind
	Text string
}

// Split breaks a query into code, string literal, delimited identifier and
// comment segments. Concatenating the Text of every segment yields the input.
// Unterminated quotes or comments run to the end of the input.
func Split(query string) []Segment {
	var segments []Segment
	start := 0
	kind := SegmentCode

	emit := func(end int, next SegmentKind) {
		if end > start {
			segments = append(segments, Segment{Kind: kind, Text: query[start:end]})
		}
		start = end
		kind = next
	}

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			emit(i, SegmentString)
			i = closeQuoted(query, i, '\'')
			emit(i+1, SegmentCode)
		case c == '"':
			emit(i, SegmentIdentifier)
			i = closeQuoted(query, i, '"')
			emit(i+1, SegmentCode)
		case c == '`':
			emit(i, SegmentIdentifier)
			i = closeQuoted(query, i, '`')
			emit(i+1, SegmentCode)
		case c == '[':
			emit(i, SegmentIdentifier)
			i = closeQuoted(query, i, ']')
			emit(i+1, SegmentCode)
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			emit(i, SegmentComment)
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				i = len(query) - 1
			} else {
				i += end
			}
			emit(i+1, SegmentCode)
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			emit(i, SegmentComment)
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				i = len(query) - 1
			} else {
				i += end + 3
			}
			emit(i+1, SegmentCode)
		}
	}
	emit(len(query), SegmentCode)
	return segments
}

// closeQuoted returns the index of the delimiter closing the quoted run that
// opens at open. A doubled closing delimiter is an escape and does not close.
// A backslash escapes the next byte inside string literals.
func closeQuoted(query string, open int, closing byte) int {
	for j := open + 1; j < len(query); j++ {
		c := query[j]
		if closing == '\'' && c == '\\' {
			j++
			continue
		}
		if c != closing {
			continue
		}
		if j+1 < len(query) && query[j+1] == closing {
			j++
			continue
		}
		return j
	}
	return len(query) - 1
}

// Join concatenates segments back into query text.
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// MapCode applies fn to every code segment and leaves literals,
// identifiers and comments untouched.
func MapCode(query string, fn func(code string) string) string {
	segments := Split(query)
	for i := range segments {
		if segments[i].Kind == SegmentCode {
			segments[i].Text = fn(segments[i].Text)
		}
	}
	return Join(segments)
}
