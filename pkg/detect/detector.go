// Package detect maps free-text queries to ranked, confidence-scored entity types.
package detect

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// FallbackRule maps keywords to an entity type used when nothing clears the
// confidence floor.
type FallbackRule struct {
	Keywords   []string
	EntityType string
}

// Config holds the scoring constants. All values are tunable; DefaultConfig
// returns the reference values.
type Config struct {
	MinConfidence      float64
	ExactPhraseScore   float64
	ExactWordScore     float64
	PartialScore       float64
	PerMatchBonus      float64
	MaxConfidence      float64
	FallbackConfidence float64

	ShortQueryTokens  int
	MediumQueryTokens int
	ShortCap          int
	MediumCap         int
	LongCap           int

	// Aliases maps an entity type name to extra keywords (synonyms, role nouns).
	Aliases            map[string][]string
	FallbackRules      []FallbackRule
	DefaultEntityTypes []string
}

// DefaultConfig returns the reference scoring constants.
func DefaultConfig() Config {
	return Config{
		MinConfidence:      0.7,
		ExactPhraseScore:   0.98,
		ExactWordScore:     0.9,
		PartialScore:       0.6,
		PerMatchBonus:      0.02,
		MaxConfidence:      0.98,
		FallbackConfidence: 0.6,
		ShortQueryTokens:   5,
		MediumQueryTokens:  10,
		ShortCap:           1,
		MediumCap:          2,
		LongCap:            3,
	}
}

type keyword struct {
	text   string
	tokens []string
}

type entityKeywords struct {
	name     string
	keywords []keyword
}

// Detector scores queries against a fixed catalog of entity types.
// It is immutable after construction and safe for concurrent use.
type Detector struct {
	cfg      Config
	entities []entityKeywords
	known    map[string]string // lowercased name -> canonical name
}

// New builds a detector for the given entity type names.
func New(entityTypes []string, cfg Config) *Detector {
	d := &Detector{
		cfg:   cfg,
		known: make(map[string]string, len(entityTypes)),
	}

	aliases := make(map[string][]string, len(cfg.Aliases))
	for name, list := range cfg.Aliases {
		aliases[strings.ToLower(name)] = list
	}

	for _, name := range entityTypes {
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == "" {
			continue
		}
		if _, dup := d.known[lower]; dup {
			continue
		}
		d.known[lower] = name
		d.entities = append(d.entities, entityKeywords{
			name:     name,
			keywords: buildKeywords(lower, aliases[lower]),
		})
	}
	return d
}

// buildKeywords returns the lowercased name, its plural and singular forms,
// the name with spaces removed, and each alias with its plural.
func buildKeywords(lower string, aliases []string) []keyword {
	seen := make(map[string]bool)
	var out []keyword
	add := func(text string) {
		text = strings.Join(Tokenize(text), " ")
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, keyword{text: text, tokens: strings.Fields(text)})
	}

	for _, base := range append([]string{lower}, lowerAll(aliases)...) {
		add(base)
		add(inflectLast(base, inflection.Plural))
		add(inflectLast(base, inflection.Singular))
	}
	add(strings.ReplaceAll(lower, " ", ""))
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

// inflectLast applies fn to the final word only ("sales order" -> "sales orders").
func inflectLast(s string, fn func(string) string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return s
	}
	words[len(words)-1] = fn(words[len(words)-1])
	return strings.Join(words, " ")
}

// Tokenize lowercases s and splits it into alphanumeric word tokens.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Cap returns the maximum result size for a query of tokenCount tokens.
func (d *Detector) Cap(tokenCount int) int {
	switch {
	case tokenCount <= d.cfg.ShortQueryTokens:
		return d.cfg.ShortCap
	case tokenCount <= d.cfg.MediumQueryTokens:
		return d.cfg.MediumCap
	default:
		return d.cfg.LongCap
	}
}

// EntityTypes returns the catalog the detector scores against.
func (d *Detector) EntityTypes() []string {
	names := make([]string, 0, len(d.entities))
	for _, e := range d.entities {
		names = append(names, e.name)
	}
	return names
}

type span struct{ start, end int }

func (s span) len() int { return s.end - s.start }

func (s span) within(o span) bool {
	return s.start >= o.start && s.end <= o.end && s.len() < o.len()
}

type candidate struct {
	name       string
	base       float64
	matches    int
	keywords   []string
	spans      []span
	confidence float64
}

// Detect scores query against the catalog. It never fails: when no entity
// type clears the floor, the fallback rules and then the default set apply.
func (d *Detector) Detect(query string) models.DetectionResult {
	tokens := Tokenize(query)
	tokenCount := len(strings.Fields(query))
	limit := d.Cap(tokenCount)

	candidates := d.score(tokens)

	var kept []models.DetectedEntity
	for _, c := range candidates {
		if c.confidence < d.cfg.MinConfidence {
			continue
		}
		kept = append(kept, models.DetectedEntity{
			EntityType:      c.name,
			Confidence:      c.confidence,
			KeywordsMatched: c.keywords,
		})
	}

	result := models.DetectionResult{TokenCount: tokenCount}
	if len(kept) == 0 {
		kept = d.fallback(tokens)
		result.FallbackUsed = true
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	result.Entities = kept
	return result
}

func (d *Detector) score(tokens []string) []candidate {
	joined := " " + strings.Join(tokens, " ") + " "
	flat := strings.Join(tokens, "")

	var candidates []candidate
	for _, e := range d.entities {
		c := candidate{name: e.name}
		for _, kw := range e.keywords {
			score, sp, ok := d.matchKeyword(kw, tokens, joined, flat)
			if !ok {
				continue
			}
			c.matches++
			c.keywords = append(c.keywords, kw.text)
			if sp.len() > 0 {
				c.spans = append(c.spans, sp)
			}
			if score > c.base {
				c.base = score
			}
		}
		if c.matches > 0 {
			candidates = append(candidates, c)
		}
	}

	d.demoteShadowed(candidates)

	for i := range candidates {
		c := &candidates[i]
		c.confidence = c.base + d.cfg.PerMatchBonus*float64(c.matches)
		if c.confidence > d.cfg.MaxConfidence {
			c.confidence = d.cfg.MaxConfidence
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		return candidates[i].name < candidates[j].name
	})
	return candidates
}

// matchKeyword returns the score for kw: exact phrase for a multi-word run of
// tokens, exact word for a single token, partial for a substring only.
func (d *Detector) matchKeyword(kw keyword, tokens []string, joined, flat string) (float64, span, bool) {
	if start := indexTokens(tokens, kw.tokens); start >= 0 {
		sp := span{start: start, end: start + len(kw.tokens)}
		if len(kw.tokens) > 1 {
			return d.cfg.ExactPhraseScore, sp, true
		}
		return d.cfg.ExactWordScore, sp, true
	}
	if strings.Contains(joined, kw.text) || (len(kw.tokens) == 1 && strings.Contains(flat, kw.text)) {
		return d.cfg.PartialScore, span{}, true
	}
	return 0, span{}, false
}

// demoteShadowed lowers candidates whose every token match lies inside a
// longer phrase matched by another entity type ("customer" inside
// "customer group") to the partial score.
func (d *Detector) demoteShadowed(candidates []candidate) {
	for i := range candidates {
		if len(candidates[i].spans) == 0 || candidates[i].base < d.cfg.ExactWordScore {
			continue
		}
		shadowed := true
		for _, sp := range candidates[i].spans {
			covered := false
			for j := range candidates {
				if i == j {
					continue
				}
				for _, other := range candidates[j].spans {
					if sp.within(other) {
						covered = true
						break
					}
				}
				if covered {
					break
				}
			}
			if !covered {
				shadowed = false
				break
			}
		}
		if shadowed {
			candidates[i].base = d.cfg.PartialScore
		}
	}
}

func indexTokens(haystack, needle []string) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func (d *Detector) fallback(tokens []string) []models.DetectedEntity {
	present := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		present[t] = true
	}

	seen := make(map[string]bool)
	var out []models.DetectedEntity
	add := func(name string, matched []string) {
		canonical, ok := d.known[strings.ToLower(name)]
		if !ok || seen[canonical] {
			return
		}
		seen[canonical] = true
		out = append(out, models.DetectedEntity{
			EntityType:      canonical,
			Confidence:      d.cfg.FallbackConfidence,
			KeywordsMatched: matched,
		})
	}

	for _, rule := range d.cfg.FallbackRules {
		var matched []string
		for _, kw := range rule.Keywords {
			kwTokens := Tokenize(kw)
			if len(kwTokens) == 1 && present[kwTokens[0]] || len(kwTokens) > 1 && indexTokens(tokens, kwTokens) >= 0 {
				matched = append(matched, strings.Join(kwTokens, " "))
			}
		}
		if len(matched) > 0 {
			add(rule.EntityType, matched)
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, name := range d.cfg.DefaultEntityTypes {
		add(name, nil)
	}
	if len(out) > 0 {
		return out
	}

	// No configured defaults are known to the catalog; use catalog order.
	for _, e := range d.entities {
		if len(out) >= d.cfg.LongCap {
			break
		}
		add(e.name, nil)
	}
	return out
}
