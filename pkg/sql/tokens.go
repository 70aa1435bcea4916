package sql

import "strings"

// TokenKind classifies a query token.
type TokenKind int

const (
	TokenWord TokenKind = iota
	TokenIdentifier
	TokenString
	TokenComment
	TokenSpace
	TokenPunct
)

// Token is one lexical token with its byte offsets in the query and the
// parenthesis depth it appears at.
type Token struct {
	Kind  TokenKind
	Text  string
	Start int
	End   int
	Depth int
}

// Is reports whether the token is the given keyword, case-insensitively.
func (t Token) Is(word string) bool {
	return t.Kind == TokenWord && strings.EqualFold(t.Text, word)
}

// Name returns the identifier a word or delimited identifier token names,
// without delimiters.
func (t Token) Name() string {
	if t.Kind == TokenIdentifier && len(t.Text) >= 2 {
		return unquote(t.Text)
	}
	return t.Text
}

// Lex splits a query into tokens. Concatenating every token's Text yields
// the input. Depth counts open parentheses; a ")" token carries the depth
// of its matching "(".
func Lex(query string) []Token {
	var tokens []Token
	offset := 0
	depth := 0
	for _, seg := range Split(query) {
		switch seg.Kind {
		case SegmentString:
			tokens = append(tokens, Token{Kind: TokenString, Text: seg.Text, Start: offset, End: offset + len(seg.Text), Depth: depth})
		case SegmentIdentifier:
			tokens = append(tokens, Token{Kind: TokenIdentifier, Text: seg.Text, Start: offset, End: offset + len(seg.Text), Depth: depth})
		case SegmentComment:
			tokens = append(tokens, Token{Kind: TokenComment, Text: seg.Text, Start: offset, End: offset + len(seg.Text), Depth: depth})
		default:
			tokens, depth = lexCode(tokens, seg.Text, offset, depth)
		}
		offset += len(seg.Text)
	}
	return tokens
}

func lexCode(tokens []Token, code string, offset, depth int) ([]Token, int) {
	runes := []rune(code)
	pos := offset
	for i := 0; i < len(runes); {
		r := runes[i]
		j := i + 1
		kind := TokenPunct
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			kind = TokenSpace
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n' || runes[j] == '\r') {
				j++
			}
		case isWordRune(r):
			kind = TokenWord
			for j < len(runes) && isWordRune(runes[j]) {
				j++
			}
		}
		text := string(runes[i:j])
		tokDepth := depth
		switch {
		case kind == TokenPunct && r == '(':
			depth++
		case kind == TokenPunct && r == ')':
			if depth > 0 {
				depth--
			}
			tokDepth = depth
		}
		tokens = append(tokens, Token{Kind: kind, Text: text, Start: pos, End: pos + len(text), Depth: tokDepth})
		pos += len(text)
		i = j
	}
	return tokens, depth
}
