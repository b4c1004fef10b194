// Package extract turns a free-form shopping request into structured constraints.
// It is deterministic and does no I/O; all vocabulary lives in the tables of rules.go.
package extract

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/kailas-cloud/shopfinder/internal/domain/query"
	"github.com/kailas-cloud/shopfinder/internal/textnorm"
)

// Extractor applies compiled discount, budget, brand and feature tables to an
// utterance. It is safe for concurrent use.
type Extractor struct {
	discount []discountMatcher
	budget   []budgetMatcher
	brands   []dictMatcher
	features []dictMatcher
	fillers  map[string]struct{}
}

type budgetMatcher struct {
	BudgetRule
	re   *regexp.Regexp
	a, b amountGroups
}

type discountMatcher struct {
	name string
	re   *regexp.Regexp
	pct  int // submatch index of the percentage, -1 when the rule has none
}

type dictMatcher struct {
	canonical string
	re        *regexp.Regexp
}

// amountGroups holds submatch indexes of one amount slot; -1 when the slot is absent.
type amountGroups struct {
	num, munit, frac, unit int
}

type amount struct {
	value   float64
	mult    float64
	hasUnit bool
}

var (
	defaultOnce sync.Once
	defaultExt  *Extractor
)

// Default returns the extractor built from the package tables.
func Default() *Extractor {
	defaultOnce.Do(func() {
		e, err := New(BudgetRules, DiscountRules, BrandTable, FeatureTable, Fillers)
		if err != nil {
			panic(fmt.Sprintf("extract: invalid built-in tables: %v", err))
		}
		defaultExt = e
	})
	return defaultExt
}

// New compiles the given tables.
func New(
	rules []BudgetRule, discounts []DiscountRule, brands, features []DictEntry, fillers []string,
) (*Extractor, error) {
	e := &Extractor{fillers: make(map[string]struct{}, len(fillers))}

	for _, r := range discounts {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("discount rule %s: %w", r.Name, err)
		}
		e.discount = append(e.discount, discountMatcher{name: r.Name, re: re, pct: re.SubexpIndex("pct")})
	}

	for _, r := range rules {
		expr := strings.NewReplacer("{A}", amountPattern("a"), "{B}", amountPattern("b")).Replace(r.Pattern)
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("budget rule %s: %w", r.Name, err)
		}
		m := budgetMatcher{BudgetRule: r, re: re, a: groupsFor(re, "a"), b: groupsFor(re, "b")}
		if m.a.num < 0 {
			return nil, fmt.Errorf("budget rule %s: pattern has no {A} amount", r.Name)
		}
		if r.Kind == BoundRange && m.b.num < 0 {
			return nil, fmt.Errorf("budget rule %s: range pattern has no {B} amount", r.Name)
		}
		e.budget = append(e.budget, m)
	}

	var err error
	if e.brands, err = compileDict(brands); err != nil {
		return nil, fmt.Errorf("brand table: %w", err)
	}
	if e.features, err = compileDict(features); err != nil {
		return nil, fmt.Errorf("feature table: %w", err)
	}
	for _, f := range fillers {
		e.fillers[textnorm.Fold(f)] = struct{}{}
	}
	return e, nil
}

// Version returns the rule table version.
func (e *Extractor) Version() string { return RulesVersion }

// Extract parses text. It never fails: unrecognized input yields empty constraints
// with the leftover words in SearchText.
func (e *Extractor) Extract(text string) query.Constraints {
	text = strings.Join(strings.Fields(norm.NFC.String(text)), " ")
	c := query.Constraints{Brands: []string{}, Features: []string{}, Query: text}
	if text == "" {
		return c
	}

	doc := newDocument(text)
	e.extractDiscount(doc, &c)
	e.extractBudget(doc, &c)
	c.Brands = matchDict(doc, e.brands)
	c.Features = matchDict(doc, e.features)
	c.SearchText = doc.residual(e.fillers)
	return c.Normalize()
}

// extractDiscount sets MinDiscount from the first accepted match and consumes
// every accepted span. Percentages outside 1..100 are left in the text.
func (e *Extractor) extractDiscount(doc *document, c *query.Constraints) {
	for _, m := range e.discount {
		for _, loc := range m.re.FindAllStringSubmatchIndex(doc.folded, -1) {
			if doc.isConsumed(loc[0], loc[1]) {
				continue
			}
			pct := DefaultMinDiscount
			if m.pct >= 0 {
				v, err := strconv.Atoi(submatch(doc.folded, loc, m.pct))
				if err != nil || v < 1 || v > 100 {
					continue
				}
				pct = v
			}
			if c.MinDiscount == nil {
				c.MinDiscount = &pct
			}
			doc.consume(loc[0], loc[1])
		}
	}
}

func (e *Extractor) extractBudget(doc *document, c *query.Constraints) {
	for i := range e.budget {
		m := &e.budget[i]
		for _, loc := range m.re.FindAllStringSubmatchIndex(doc.folded, -1) {
			if doc.isConsumed(loc[0], loc[1]) {
				continue
			}
			if m.apply(doc.folded, loc, c) {
				doc.consume(loc[0], loc[1])
			}
		}
	}
}

// apply sets the bounds a match yields. Bounds that are already set are kept.
// It returns false when the match is rejected and its words stay in the text.
func (m *budgetMatcher) apply(s string, loc []int, c *query.Constraints) bool {
	a, ok := m.a.read(s, loc)
	if !ok {
		return false
	}

	switch m.Kind {
	case BoundRange:
		b, ok := m.b.read(s, loc)
		if !ok {
			return false
		}
		if m.RequireUnit && !a.hasUnit && !b.hasUnit {
			return false
		}
		setBound(&c.BudgetMin, a.resolve(&b))
		setBound(&c.BudgetMax, b.resolve(&a))
	case BoundMax, BoundBare:
		if m.RequireUnit && !a.hasUnit {
			return false
		}
		setBound(&c.BudgetMax, a.resolve(nil))
	case BoundMin:
		setBound(&c.BudgetMin, a.resolve(nil))
	case BoundAround:
		v := a.resolve(nil)
		setBound(&c.BudgetMin, v*(1-AroundTolerance))
		setBound(&c.BudgetMax, v*(1+AroundTolerance))
	default:
		return false
	}
	return true
}

func setBound(dst **int64, v float64) {
	if *dst != nil || math.IsNaN(v) || v <= 0 || v > MaxBudget {
		return
	}
	n := int64(math.Round(v))
	if n <= 0 {
		return
	}
	*dst = &n
}

// resolve converts an amount to VND. A unitless amount borrows its partner's unit;
// otherwise small numbers are read as millions ("dưới 10" means 10 triệu).
func (a amount) resolve(partner *amount) float64 {
	switch {
	case a.hasUnit:
		return a.value * a.mult
	case partner != nil && partner.hasUnit:
		return a.value * partner.mult
	case a.value < ShorthandMillionLimit:
		return a.value * 1e6
	default:
		return a.value
	}
}

func (g amountGroups) read(s string, loc []int) (amount, bool) {
	num := submatch(s, loc, g.num)
	if num == "" {
		return amount{}, false
	}
	v, ok := parseNumber(num)
	if !ok {
		return amount{}, false
	}
	a := amount{value: v, mult: 1}
	if u := submatch(s, loc, g.munit); u != "" {
		a.mult, a.hasUnit = MillionUnits[u], true
		if f := submatch(s, loc, g.frac); f != "" {
			if fv, err := strconv.ParseFloat("0."+f, 64); err == nil {
				a.value += fv
			}
		}
	} else if u := submatch(s, loc, g.unit); u != "" {
		a.mult, a.hasUnit = PlainUnits[u], true
	}
	return a, true
}

// parseNumber reads "10", "1.5", "1,5", "10.000.000" and "10,000".
// Groups of exactly three digits after a separator are thousands; otherwise the
// first separator is a decimal point.
func parseNumber(s string) (float64, bool) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == ',' })
	if len(parts) == 0 {
		return 0, false
	}
	joined := parts[0]
	if len(parts) > 1 {
		thousands := true
		for _, p := range parts[1:] {
			if len(p) != 3 {
				thousands = false
				break
			}
		}
		if thousands {
			joined = strings.Join(parts, "")
		} else {
			joined = parts[0] + "." + parts[1]
		}
	}
	v, err := strconv.ParseFloat(joined, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func amountPattern(slot string) string {
	return fmt.Sprintf(
		`\b(?P<%[1]s_num>\d+(?:[.,]\d+)*)`+
			`(?:\s*(?:(?P<%[1]s_munit>trieu|tr|cu|ty|ti)(?P<%[1]s_frac>\d{1,3})?|`+
			`(?P<%[1]s_unit>nghin|ngan|dong|vnd|k|m|d))\b|\b)`,
		slot)
}

func groupsFor(re *regexp.Regexp, slot string) amountGroups {
	return amountGroups{
		num:   re.SubexpIndex(slot + "_num"),
		munit: re.SubexpIndex(slot + "_munit"),
		frac:  re.SubexpIndex(slot + "_frac"),
		unit:  re.SubexpIndex(slot + "_unit"),
	}
}

func submatch(s string, loc []int, i int) string {
	if i < 0 || 2*i+1 >= len(loc) || loc[2*i] < 0 {
		return ""
	}
	return s[loc[2*i]:loc[2*i+1]]
}

func compileDict(entries []DictEntry) ([]dictMatcher, error) {
	out := make([]dictMatcher, 0, len(entries))
	for _, entry := range entries {
		if entry.Canonical == "" || len(entry.Aliases) == 0 {
			return nil, fmt.Errorf("entry %q: canonical name and aliases are required", entry.Canonical)
		}
		aliases := make([]string, 0, len(entry.Aliases))
		for _, a := range entry.Aliases {
			aliases = append(aliases, regexp.QuoteMeta(textnorm.Fold(a)))
		}
		// longest alias first so "pin trau" wins over "pin"
		sort.SliceStable(aliases, func(i, j int) bool { return len(aliases[i]) > len(aliases[j]) })
		re, err := regexp.Compile(`\b(?:` + strings.Join(aliases, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry.Canonical, err)
		}
		out = append(out, dictMatcher{canonical: entry.Canonical, re: re})
	}
	return out, nil
}

// matchDict returns canonical names in order of first appearance in the text.
func matchDict(doc *document, dict []dictMatcher) []string {
	type hit struct {
		name string
		pos  int
	}
	hits := make([]hit, 0)
	for _, m := range dict {
		locs := m.re.FindAllStringIndex(doc.folded, -1)
		if len(locs) == 0 {
			continue
		}
		for _, l := range locs {
			doc.consume(l[0], l[1])
		}
		hits = append(hits, hit{name: m.canonical, pos: locs[0][0]})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.name)
	}
	return out
}

// document keeps the original words next to their folded form so that spans matched
// in folded text map back to original tokens.
type document struct {
	words    []string
	folded   string
	starts   []int
	ends     []int
	consumed []bool
}

func newDocument(text string) *document {
	words := strings.Fields(text)
	d := &document{
		words:    words,
		starts:   make([]int, len(words)),
		ends:     make([]int, len(words)),
		consumed: make([]bool, len(words)),
	}
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		d.starts[i] = b.Len()
		b.WriteString(textnorm.Fold(w))
		d.ends[i] = b.Len()
	}
	d.folded = b.String()
	return d
}

func (d *document) overlapping(start, end int, fn func(i int)) {
	for i := range d.words {
		if d.starts[i] < end && start < d.ends[i] {
			fn(i)
		}
	}
}

func (d *document) isConsumed(start, end int) bool {
	hit := false
	d.overlapping(start, end, func(i int) {
		if d.consumed[i] {
			hit = true
		}
	})
	return hit
}

func (d *document) consume(start, end int) {
	d.overlapping(start, end, func(i int) { d.consumed[i] = true })
}

// residual joins the words no rule consumed, minus fillers and stray punctuation.
func (d *document) residual(fillers map[string]struct{}) string {
	out := make([]string, 0, len(d.words))
	for i, w := range d.words {
		if d.consumed[i] {
			continue
		}
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w == "" || isFiller(w, fillers) {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func isFiller(w string, fillers map[string]struct{}) bool {
	toks := textnorm.Tokens(w)
	if len(toks) == 0 {
		return true
	}
	for _, t := range toks {
		if _, ok := fillers[t]; !ok {
			return false
		}
	}
	return true
}
