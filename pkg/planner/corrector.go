package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// CorrectorConfig configures the deterministic query repairs.
type CorrectorConfig struct {
	TablePrefix string
	// BoundaryColumn and BoundaryValue form the default clause added to
	// joins without a filter. An empty column disables the clause.
	BoundaryColumn string
	BoundaryValue  string
	DefaultDialect sql.Dialect
}

// Corrector applies textual repairs to generated queries and removes
// unknown fields from direct calls. It never adds new filters other than
// the boundary clause.
type Corrector struct {
	cfg  CorrectorConfig
	bare *regexp.Regexp
}

// NewCorrector creates a corrector.
func NewCorrector(cfg CorrectorConfig) *Corrector {
	if cfg.DefaultDialect == "" {
		cfg.DefaultDialect = sql.DialectPostgres
	}
	c := &Corrector{cfg: cfg}
	if cfg.TablePrefix != "" {
		c.bare = sql.BareTableRefPattern(cfg.TablePrefix)
	}
	return c
}

// Correct returns a repaired copy of gq and a description of every repair
// applied. No descriptions means the query is unchanged. Without a hint the
// result is stable: correcting it again changes nothing.
func (c *Corrector) Correct(gq *models.GeneratedQuery, schemas models.SchemaSet, hint *models.ClassifiedError) (*models.GeneratedQuery, []string) {
	out := *gq
	out.EntityTypes = append([]string(nil), gq.EntityTypes...)

	d, err := sql.ParseDialect(gq.Dialect)
	if err != nil {
		d = c.cfg.DefaultDialect
	}
	idx := newNameIndex(schemas)

	var applied []string
	q := out.Query
	if norm := sql.ValidateAndNormalize(q); norm.Error == nil && norm.NormalizedSQL != q {
		q = norm.NormalizedSQL
		applied = append(applied, "trimmed trailing terminator")
	}

	if hint != nil && hint.Kind == models.ErrorKindUnknownEntityRef && hint.Entity != "" {
		if fixed, ok := c.substituteEntity(q, d, idx, hint.Entity); ok {
			q = fixed
			applied = append(applied, fmt.Sprintf("replaced unknown reference %q with its canonical table", hint.Entity))
		}
	}

	if fixed, n := c.normalizeNames(q, d, idx); n > 0 {
		q = fixed
		applied = append(applied, fmt.Sprintf("normalized %d table reference(s)", n))
	}

	if hint != nil && hint.Kind == models.ErrorKindUnknownField && hint.Field != "" {
		if fixed, ok := removeFieldRefs(q, hint.Field); ok {
			q = fixed
			applied = append(applied, fmt.Sprintf("removed references to unknown field %q", hint.Field))
		}
	}

	if fixed, ok := c.addBoundary(q, d); ok {
		q = fixed
		applied = append(applied, "added default boundary clause to join")
	}

	out.Query = q
	return &out, applied
}

// CorrectDirectCall removes the field named by an UnknownField hint from
// the call's filters and ordering.
func (c *Corrector) CorrectDirectCall(dc *models.DirectCall, hint *models.ClassifiedError) (*models.DirectCall, []string) {
	out := *dc
	out.Parameters = make(map[string]any, len(dc.Parameters))
	for k, v := range dc.Parameters {
		out.Parameters[k] = v
	}
	if hint == nil || hint.Kind != models.ErrorKindUnknownField || hint.Field == "" {
		return &out, nil
	}

	var applied []string
	for k := range out.Parameters {
		if !strings.EqualFold(k, hint.Field) {
			continue
		}
		if dc.Operation == models.OperationGetRecord && k == "name" {
			continue
		}
		delete(out.Parameters, k)
		applied = append(applied, fmt.Sprintf("removed filter on unknown field %q", k))
	}
	if parts := strings.Fields(out.OrderBy); len(parts) > 0 && strings.EqualFold(parts[0], hint.Field) {
		out.OrderBy = ""
		applied = append(applied, fmt.Sprintf("dropped ordering on unknown field %q", parts[0]))
	}
	return &out, applied
}

// nameIndex maps a compacted entity name to its canonical form.
type nameIndex map[string]string

func newNameIndex(schemas models.SchemaSet) nameIndex {
	idx := make(nameIndex)
	for _, et := range schemas.AllEntityTypes() {
		idx[compactName(et)] = et
	}
	return idx
}

// compactName lowercases s and drops everything but letters and digits,
// so "Sales Order", "sales_order" and "SalesOrder" collide.
func compactName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (idx nameIndex) resolve(name string) (string, bool) {
	if et, ok := idx[compactName(name)]; ok {
		return et, true
	}
	if et, ok := idx[compactName(inflection.Singular(name))]; ok {
		return et, true
	}
	return "", false
}

// normalizeNames rewrites table references to the canonical delimited form
// of the dialect. It returns the number of references rewritten.
func (c *Corrector) normalizeNames(q string, d sql.Dialect, idx nameIndex) (string, int) {
	prefix := c.cfg.TablePrefix
	if prefix == "" || len(idx) == 0 {
		return q, 0
	}

	tokens := sql.Lex(q)
	var b strings.Builder
	changed := 0
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.Kind == sql.TokenIdentifier:
			name := tok.Name()
			if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
				if et, ok := idx.resolve(name[len(prefix):]); ok {
					canonical := d.TableName(prefix, et)
					if canonical != tok.Text {
						changed++
					}
					b.WriteString(canonical)
					continue
				}
			}
		case tok.Kind == sql.TokenWord && c.bare != nil && c.bare.FindString(tok.Text) == tok.Text:
			if et, last, ok := resolveBare(tokens, i, prefix, idx); ok {
				b.WriteString(d.TableName(prefix, et))
				changed++
				i = last
				continue
			}
		}
		b.WriteString(tok.Text)
	}
	return b.String(), changed
}

// resolveBare resolves an undelimited reference starting at tokens[i],
// which may continue over up to two more space-separated name words
// ("tabSales Order"). The longest resolving run wins.
func resolveBare(tokens []sql.Token, i int, prefix string, idx nameIndex) (string, int, bool) {
	ends := []int{i}
	for j := i + 1; j+1 < len(tokens) && len(ends) < 3; j += 2 {
		if tokens[j].Kind != sql.TokenSpace || tokens[j].Text != " " || !isNameWord(tokens, j+1) {
			break
		}
		ends = append(ends, j+1)
	}
	for k := len(ends) - 1; k >= 0; k-- {
		var parts []string
		for j := i; j <= ends[k]; j += 2 {
			parts = append(parts, tokens[j].Text)
		}
		name := strings.Join(parts, " ")[len(prefix):]
		if et, ok := idx.resolve(name); ok {
			return et, ends[k], true
		}
	}
	return "", i, false
}

// Keywords that end an undelimited multi-word table name.
var nameStopWords = map[string]bool{
	"as": true, "by": true, "and": true, "or": true, "not": true, "in": true,
	"is": true, "null": true, "like": true, "between": true, "case": true,
	"when": true, "then": true, "else": true, "end": true, "asc": true,
	"desc": true, "top": true, "distinct": true, "all": true, "with": true,
	"values": true, "set": true, "into": true, "tablesample": true,
}

// isNameWord reports whether tokens[j] can continue an entity name: a word
// starting with an upper-case letter that is not a keyword. A title-cased
// clause keyword ("Sales Order") is accepted unless BY follows it.
func isNameWord(tokens []sql.Token, j int) bool {
	tok := tokens[j]
	if tok.Kind != sql.TokenWord || tok.Text == "" {
		return false
	}
	if r := []rune(tok.Text)[0]; !unicode.IsUpper(r) {
		return false
	}
	lower := strings.ToLower(tok.Text)
	if nameStopWords[lower] {
		return false
	}
	if !clauseKeywords[lower] && !aliasStopWords[lower] {
		return true
	}
	if tok.Text == strings.ToUpper(tok.Text) {
		return false
	}
	next := nextSignificant(tokens, j+1)
	return next < 0 || !tokens[next].Is("by")
}

// substituteEntity replaces every occurrence of the reference named in an
// UnknownEntityRef error with the canonical table name, when one resolves.
func (c *Corrector) substituteEntity(q string, d sql.Dialect, idx nameIndex, ref string) (string, bool) {
	prefix := c.cfg.TablePrefix
	name := strings.TrimPrefix(ref, prefix)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = strings.TrimPrefix(name[i+1:], prefix)
	}
	et, ok := idx.resolve(name)
	if !ok {
		return q, false
	}
	canonical := d.TableName(prefix, et)

	var b strings.Builder
	changed := false
	for _, tok := range sql.Lex(q) {
		if (tok.Kind == sql.TokenWord || tok.Kind == sql.TokenIdentifier) &&
			(strings.EqualFold(tok.Name(), ref) || strings.EqualFold(tok.Name(), prefix+name)) && tok.Text != canonical {
			b.WriteString(canonical)
			changed = true
			continue
		}
		b.WriteString(tok.Text)
	}
	return b.String(), changed
}

// Clause keywords that end the previous top-level clause.
var clauseKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "having": true,
	"order": true, "limit": true, "offset": true, "fetch": true, "window": true,
	"union": true, "intersect": true, "except": true,
}

// Words that cannot be a table alias.
var aliasStopWords = map[string]bool{
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"cross": true, "outer": true, "natural": true, "on": true, "using": true,
	"lateral": true, "where": true, "group": true, "order": true, "limit": true,
	"having": true, "offset": true, "fetch": true, "union": true, "window": true,
}

// clause is one top-level clause of the main statement.
type clause struct {
	keyword string // lowercased
	// kwStart is the offset of the keyword; start and end bound the body.
	kwStart, start, end int
	body                []sql.Token
}

func topLevelClauses(q string, tokens []sql.Token) []clause {
	var clauses []clause
	for i, tok := range tokens {
		if tok.Kind != sql.TokenWord || tok.Depth != 0 || !clauseKeywords[strings.ToLower(tok.Text)] {
			continue
		}
		if n := len(clauses); n > 0 {
			clauses[n-1].end = tok.Start
		}
		cl := clause{keyword: strings.ToLower(tok.Text), kwStart: tok.Start, start: tok.End}
		if cl.keyword == "group" || cl.keyword == "order" {
			if j := nextSignificant(tokens, i+1); j >= 0 && tokens[j].Is("by") {
				cl.start = tokens[j].End
			}
		}
		clauses = append(clauses, cl)
	}
	if n := len(clauses); n > 0 {
		clauses[n-1].end = len(q)
	}
	for i := range clauses {
		for _, tok := range tokens {
			if tok.Start >= clauses[i].start && tok.End <= clauses[i].end {
				clauses[i].body = append(clauses[i].body, tok)
			}
		}
	}
	return clauses
}

func nextSignificant(tokens []sql.Token, from int) int {
	for j := from; j < len(tokens); j++ {
		if tokens[j].Kind != sql.TokenSpace && tokens[j].Kind != sql.TokenComment {
			return j
		}
	}
	return -1
}

// addBoundary inserts "WHERE <alias>.<boundary> = <value>" into a top-level
// join that has no WHERE clause. Only joins whose first FROM item is an
// entity table are touched.
func (c *Corrector) addBoundary(q string, d sql.Dialect) (string, bool) {
	if c.cfg.BoundaryColumn == "" {
		return q, false
	}
	tokens := sql.Lex(q)

	fromIdx, hasJoin := -1, false
	for i, tok := range tokens {
		if tok.Depth != 0 || tok.Kind != sql.TokenWord {
			continue
		}
		switch strings.ToLower(tok.Text) {
		case "where", "union", "intersect", "except":
			return q, false
		case "from":
			if fromIdx < 0 {
				fromIdx = i
			}
		case "join":
			hasJoin = true
		}
	}
	if !hasJoin || fromIdx < 0 {
		return q, false
	}

	tableIdx := nextSignificant(tokens, fromIdx+1)
	if tableIdx < 0 {
		return q, false
	}
	table := tokens[tableIdx]
	if (table.Kind != sql.TokenIdentifier && table.Kind != sql.TokenWord) || !strings.HasPrefix(table.Name(), c.cfg.TablePrefix) {
		return q, false
	}
	qualifier := table.Text
	if j := nextSignificant(tokens, tableIdx+1); j >= 0 {
		if tokens[j].Is("as") {
			j = nextSignificant(tokens, j+1)
		}
		if j >= 0 && tokens[j].Depth == 0 && (tokens[j].Kind == sql.TokenIdentifier ||
			(tokens[j].Kind == sql.TokenWord && !aliasStopWords[strings.ToLower(tokens[j].Text)])) {
			qualifier = tokens[j].Text
		}
	}

	pos := -1
	for _, tok := range tokens[fromIdx+1:] {
		if tok.Depth == 0 && tok.Kind == sql.TokenWord && clauseKeywords[strings.ToLower(tok.Text)] {
			pos = tok.Start
			break
		}
	}
	clauseText := "WHERE " + qualifier + "." + d.QuoteIdent(c.cfg.BoundaryColumn) + " = " + sqlLiteral(c.cfg.BoundaryValue)
	if pos >= 0 {
		return strings.TrimRight(q[:pos], " \t\r\n") + " " + clauseText + " " + q[pos:], true
	}

	// Append before any trailing comments so the clause is not commented out.
	end := 0
	for _, tok := range tokens {
		if tok.Kind != sql.TokenSpace && tok.Kind != sql.TokenComment {
			end = tok.End
		}
	}
	return q[:end] + " " + clauseText + q[end:], true
}

func sqlLiteral(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// removeFieldRefs drops select items, predicates, join conditions and
// ordering/grouping items of the main statement that reference field.
func removeFieldRefs(q, field string) (string, bool) {
	clauses := topLevelClauses(q, sql.Lex(q))
	changed := false
	for i := len(clauses) - 1; i >= 0; i-- {
		cl := clauses[i]
		var (
			body   string
			remove bool
			ok     bool
		)
		switch cl.keyword {
		case "select":
			body, ok = filterList(cl.body, field, true)
			if ok && strings.TrimSpace(body) == "" {
				body = " *"
			}
		case "where", "having":
			body, ok = filterPredicates(cl.body, field)
			remove = ok && strings.TrimSpace(body) == ""
		case "group", "order":
			body, ok = filterList(cl.body, field, false)
			remove = ok && strings.TrimSpace(body) == ""
		case "from":
			body, ok = filterJoinConditions(cl.body, field)
		}
		if !ok {
			continue
		}
		changed = true
		// A later removal may have trimmed whitespace inside this clause.
		end := min(cl.end, len(q))
		if remove {
			q = strings.TrimRight(q[:cl.kwStart], " \t\r\n") + spaceBefore(q[end:]) + q[end:]
			continue
		}
		q = q[:cl.start] + " " + strings.TrimSpace(body) + spaceBefore(q[end:]) + q[end:]
	}
	return q, changed
}

func spaceBefore(rest string) string {
	if rest == "" || strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\n") {
		return ""
	}
	return " "
}

func references(tokens []sql.Token, field string) bool {
	for _, tok := range tokens {
		if (tok.Kind == sql.TokenWord || tok.Kind == sql.TokenIdentifier) && strings.EqualFold(tok.Name(), field) {
			return true
		}
	}
	return false
}

func tokensText(tokens []sql.Token) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteString(tok.Text)
	}
	return strings.TrimSpace(b.String())
}

// filterList drops comma-separated items that reference field. A select
// list keeps a leading DISTINCT or TOP (n) modifier.
func filterList(body []sql.Token, field string, selectList bool) (string, bool) {
	var modifier []sql.Token
	if selectList {
		body, modifier = splitSelectModifier(body)
	}

	var items [][]sql.Token
	var cur []sql.Token
	for _, tok := range body {
		if tok.Depth == 0 && tok.Kind == sql.TokenPunct && tok.Text == "," {
			items = append(items, cur)
			cur = nil
			continue
		}
		cur = append(cur, tok)
	}
	items = append(items, cur)

	var kept []string
	for _, item := range items {
		if !references(item, field) {
			kept = append(kept, tokensText(item))
		}
	}
	if len(kept) == len(items) {
		return "", false
	}
	text := strings.Join(kept, ", ")
	if m := tokensText(modifier); m != "" {
		if text == "" {
			text = "*"
		}
		text = m + " " + text
	}
	return text, true
}

func splitSelectModifier(body []sql.Token) (rest, modifier []sql.Token) {
	i := nextSignificant(body, 0)
	if i < 0 {
		return body, nil
	}
	switch {
	case body[i].Is("distinct") || body[i].Is("all"):
		return body[i+1:], body[:i+1]
	case body[i].Is("top"):
		j := nextSignificant(body, i+1)
		if j < 0 {
			return body, nil
		}
		if body[j].Text == "(" {
			for k := j + 1; k < len(body); k++ {
				if body[k].Text == ")" && body[k].Depth == body[j].Depth {
					return body[k+1:], body[:k+1]
				}
			}
			return body, nil
		}
		return body[j+1:], body[:j+1]
	}
	return body, nil
}

// filterPredicates drops AND/OR-separated predicates that reference field.
// The AND of a BETWEEN belongs to its predicate.
func filterPredicates(body []sql.Token, field string) (string, bool) {
	type predicate struct {
		connector string
		tokens    []sql.Token
	}
	var preds []predicate
	cur := predicate{}
	between := false
	for _, tok := range body {
		if tok.Depth == 0 && tok.Kind == sql.TokenWord {
			switch {
			case tok.Is("between"):
				between = true
			case tok.Is("and") && between:
				between = false
			case tok.Is("and") || tok.Is("or"):
				preds = append(preds, cur)
				cur = predicate{connector: strings.ToUpper(tok.Text)}
				continue
			}
		}
		cur.tokens = append(cur.tokens, tok)
	}
	preds = append(preds, cur)

	var b strings.Builder
	removed := false
	for _, p := range preds {
		if references(p.tokens, field) {
			removed = true
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" " + p.connector + " ")
		}
		b.WriteString(tokensText(p.tokens))
	}
	if !removed {
		return "", false
	}
	return b.String(), true
}

// Words that end the ON condition of a join.
var joinBoundaryWords = map[string]bool{
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"cross": true, "outer": true, "natural": true, "lateral": true,
}

// filterJoinConditions drops predicates that reference field from every
// top-level ON condition of a FROM clause. A condition left empty becomes
// 1 = 1.
func filterJoinConditions(body []sql.Token, field string) (string, bool) {
	var b strings.Builder
	changed := false
	for i := 0; i < len(body); {
		tok := body[i]
		b.WriteString(tok.Text)
		i++
		if tok.Depth != 0 || !tok.Is("on") {
			continue
		}

		j := i
		for ; j < len(body); j++ {
			t := body[j]
			if t.Depth != 0 {
				continue
			}
			if (t.Kind == sql.TokenWord && joinBoundaryWords[strings.ToLower(t.Text)]) ||
				(t.Kind == sql.TokenPunct && t.Text == ",") {
				break
			}
		}
		condition := body[i:j]
		filtered, ok := filterPredicates(condition, field)
		if !ok {
			for _, t := range condition {
				b.WriteString(t.Text)
			}
			i = j
			continue
		}
		changed = true
		if strings.TrimSpace(filtered) == "" {
			filtered = "1 = 1"
		}
		b.WriteString(" " + filtered)
		if j < len(body) && body[j].Kind != sql.TokenPunct {
			b.WriteString(" ")
		}
		i = j
	}
	return b.String(), changed
}
