package sql

import "strings"

// FromTarget is a relation named after FROM, JOIN or APPLY, or in a
// comma-separated FROM list. Derived tables and CTE names are not targets.
type FromTarget struct {
	// Raw is the reference as written, qualifiers and delimiters included.
	Raw string
	// Name is the last part of the reference without delimiters.
	Name string
	// Qualified is set when the reference carries a schema or database part.
	Qualified bool
	// Function is set when the target is a call such as generate_series(1, 5).
	Function bool
}

// Words that end a FROM item list at the same parenthesis depth.
var fromListStopWords = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "having": true,
	"order": true, "limit": true, "offset": true, "fetch": true, "window": true,
	"union": true, "intersect": true, "except": true, "join": true, "inner": true,
	"left": true, "right": true, "full": true, "cross": true, "natural": true,
	"outer": true, "apply": true, "for": true, "returning": true,
}

// FromTargets returns every relation the query reads, subqueries included,
// in order of appearance. FROM inside EXTRACT(... FROM ...) and similar
// function syntax is not a query FROM and is skipped.
func FromTargets(query string) []FromTarget {
	tokens := Lex(query)
	ctes := cteNames(tokens)

	var targets []FromTarget
	for i, tok := range tokens {
		if !tok.Is("from") && !tok.Is("join") && !tok.Is("apply") {
			continue
		}
		if tok.Is("from") && !belongsToSelect(tokens, i) {
			continue
		}

		pos := i
		for pos >= 0 {
			target, end, ok := parseFromItem(tokens, pos)
			if !ok {
				break
			}
			if target != nil && !isCTERef(ctes, target, i) {
				targets = append(targets, *target)
			}
			pos = nextListItem(tokens, end, tok.Depth)
		}
	}
	return targets
}

// belongsToSelect reports whether the FROM at tokens[i] follows a SELECT at
// the same parenthesis level, which rules out EXTRACT(YEAR FROM x) and
// IS DISTINCT FROM.
func belongsToSelect(tokens []Token, i int) bool {
	depth := tokens[i].Depth
	if prev := prevSignificant(tokens, i-1); prev >= 0 && tokens[prev].Is("distinct") {
		return false
	}
	for k := i - 1; k >= 0; k-- {
		t := tokens[k]
		if t.Depth < depth {
			return false
		}
		if t.Depth == depth && t.Is("select") {
			return true
		}
	}
	return false
}

// parseFromItem reads the item after tokens[pos]. It returns a nil target
// for a derived table and the index of the item's last token.
func parseFromItem(tokens []Token, pos int) (*FromTarget, int, bool) {
	k := nextSignificant(tokens, pos+1)
	for k >= 0 && (tokens[k].Is("lateral") || tokens[k].Is("only")) {
		k = nextSignificant(tokens, k+1)
	}
	if k < 0 {
		return nil, 0, false
	}

	first := tokens[k]
	if first.Kind == TokenPunct && first.Text == "(" {
		for m := k + 1; m < len(tokens); m++ {
			if tokens[m].Kind == TokenPunct && tokens[m].Text == ")" && tokens[m].Depth == first.Depth {
				return nil, m, true
			}
		}
		return nil, len(tokens) - 1, true
	}
	if first.Kind != TokenWord && first.Kind != TokenIdentifier {
		return nil, 0, false
	}

	end := k
	for end+2 < len(tokens) && tokens[end+1].Kind == TokenPunct && tokens[end+1].Text == "." &&
		(tokens[end+2].Kind == TokenWord || tokens[end+2].Kind == TokenIdentifier) {
		end += 2
	}
	target := &FromTarget{
		Raw:       joinTokens(tokens[k : end+1]),
		Name:      tokens[end].Name(),
		Qualified: end > k,
	}
	if next := nextSignificant(tokens, end+1); next >= 0 && tokens[next].Kind == TokenPunct && tokens[next].Text == "(" {
		target.Function = true
	}
	return target, end, true
}

// nextListItem returns the index of the comma that starts the next item of
// a FROM list at depth, or -1 when the list ends first.
func nextListItem(tokens []Token, from, depth int) int {
	for m := from + 1; m < len(tokens); m++ {
		t := tokens[m]
		if t.Depth < depth {
			return -1
		}
		if t.Depth > depth {
			continue
		}
		if t.Kind == TokenPunct && t.Text == "," {
			return m
		}
		if t.Kind == TokenWord && fromListStopWords[strings.ToLower(t.Text)] {
			return -1
		}
	}
	return -1
}

// isCTERef reports whether target names a CTE whose definition ends before
// tokens[at]. Inside its own body the name still means the real table.
func isCTERef(ctes map[string]int, target *FromTarget, at int) bool {
	if target.Qualified || target.Function {
		return false
	}
	end, ok := ctes[strings.ToLower(target.Name)]
	return ok && at > end
}

// cteNames maps each name defined as NAME [(columns)] AS [NOT]
// [MATERIALIZED] ( ... ) to the index of the body's closing parenthesis.
func cteNames(tokens []Token) map[string]int {
	names := make(map[string]int)
	for i, tok := range tokens {
		if tok.Kind != TokenWord && tok.Kind != TokenIdentifier {
			continue
		}
		k := nextSignificant(tokens, i+1)
		if k >= 0 && tokens[k].Kind == TokenPunct && tokens[k].Text == "(" {
			for m := k + 1; m < len(tokens); m++ {
				if tokens[m].Kind == TokenPunct && tokens[m].Text == ")" && tokens[m].Depth == tokens[k].Depth {
					k = nextSignificant(tokens, m+1)
					break
				}
			}
		}
		if k < 0 || !tokens[k].Is("as") {
			continue
		}
		k = nextSignificant(tokens, k+1)
		for k >= 0 && (tokens[k].Is("not") || tokens[k].Is("materialized")) {
			k = nextSignificant(tokens, k+1)
		}
		if k < 0 || tokens[k].Kind != TokenPunct || tokens[k].Text != "(" {
			continue
		}
		end := len(tokens) - 1
		for m := k + 1; m < len(tokens); m++ {
			if tokens[m].Kind == TokenPunct && tokens[m].Text == ")" && tokens[m].Depth == tokens[k].Depth {
				end = m
				break
			}
		}
		names[strings.ToLower(tok.Name())] = end
	}
	return names
}

func nextSignificant(tokens []Token, from int) int {
	for j := from; j < len(tokens); j++ {
		if tokens[j].Kind != TokenSpace && tokens[j].Kind != TokenComment {
			return j
		}
	}
	return -1
}

func prevSignificant(tokens []Token, from int) int {
	for j := from; j >= 0; j-- {
		if tokens[j].Kind != TokenSpace && tokens[j].Kind != TokenComment {
			return j
		}
	}
	return -1
}

func joinTokens(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}
