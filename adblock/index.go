package adblock

import (
	radix "github.com/hashicorp/go-immutable-radix"
)

// minKeywordLen is the shortest token used as a keyword. Shorter tokens are
// shared by too many URLs to prune anything.
const minKeywordLen = 3

// commonKeywords appear in nearly every URL; a filter is filed under one of
// them only when it has no other candidate.
var commonKeywords = map[string]struct{}{
	"http":  {},
	"https": {},
	"www":   {},
	"com":   {},
	"net":   {},
	"org":   {},
	"html":  {},
}

// ruleTable files filters for candidate lookup, fastest table first:
// complete host literals of "||host^" rules in a radix tree keyed by the
// reversed host, then keywords that must appear as a whole token of a
// matching URL, then a fallback list scanned for every request.
type ruleTable struct {
	hosts    *radix.Tree
	keywords map[string][]*Filter
	fallback []*Filter
	size     int
}

// IndexStats describes how filters were distributed over the lookup tables.
type IndexStats struct {
	Filters     int `json:"filters"`
	Exceptions  int `json:"exceptions"`
	Inert       int `json:"inert"`
	HostKeys    int `json:"host_keys"`
	Keywords    int `json:"keywords"`
	FallbackLen int `json:"fallback"`
}

// RuleIndex is an immutable snapshot of compiled filters. It is safe for
// concurrent use.
type RuleIndex struct {
	blocking   ruleTable
	exceptions ruleTable
	inert      []*Filter
}

// BuildIndex files filters into a new RuleIndex. The result depends only on
// the filters and their order.
func BuildIndex(filters []*Filter) *RuleIndex {
	blocking := newTableBuilder()
	exceptions := newTableBuilder()
	idx := &RuleIndex{}

	for _, f := range filters {
		switch {
		case f == nil:
		case f.inert:
			idx.inert = append(idx.inert, f)
		case f.IsException:
			exceptions.add(f)
		default:
			blocking.add(f)
		}
	}

	idx.blocking = blocking.build()
	idx.exceptions = exceptions.build()
	return idx
}

type tableBuilder struct {
	hosts    map[string][]*Filter
	keywords map[string][]*Filter
	fallback []*Filter
	size     int
}

func newTableBuilder() *tableBuilder {
	return &tableBuilder{
		hosts:    make(map[string][]*Filter),
		keywords: make(map[string][]*Filter),
	}
}

func (b *tableBuilder) add(f *Filter) {
	b.size++
	if host, ok := hostKey(f); ok {
		b.hosts[host] = append(b.hosts[host], f)
		return
	}

	best := ""
	bestScore := -1
	for _, kw := range keywordCandidates(f.Pattern) {
		score := len(b.keywords[kw])
		if _, common := commonKeywords[kw]; common {
			score += 1 << 20
		}
		if bestScore < 0 || score < bestScore || (score == bestScore && len(kw) > len(best)) {
			best, bestScore = kw, score
		}
	}
	if best != "" {
		b.keywords[best] = append(b.keywords[best], f)
		return
	}
	b.fallback = append(b.fallback, f)
}

func (b *tableBuilder) build() ruleTable {
	txn := radix.New().Txn()
	for host, filters := range b.hosts {
		txn.Insert(reverseBytes(host), filters)
	}
	return ruleTable{
		hosts:    txn.Commit(),
		keywords: b.keywords,
		fallback: b.fallback,
		size:     b.size,
	}
}

// find calls fn for candidate filters until fn returns true. Every filter
// that can match rq is visited; some that cannot may be visited too.
func (t *ruleTable) find(rq *request, fn func(*Filter) bool) bool {
	if t.size == 0 {
		return false
	}
	if t.hosts.Len() > 0 && t.findHosts(rq, fn) {
		return true
	}
	if len(t.keywords) > 0 && t.findKeywords(rq, fn) {
		return true
	}
	for _, f := range t.fallback {
		if fn(f) {
			return true
		}
	}
	return false
}

func (t *ruleTable) findHosts(rq *request, fn func(*Filter) bool) bool {
	s := rq.lower
	covered := 0
	for _, start := range hostAnchorStarts(s) {
		if start < covered {
			continue
		}
		end := start
		for end < len(s) && !isSeparator(s[end]) {
			end++
		}
		covered = end
		if end == start {
			continue
		}

		rev := reverseBytes(s[start:end])
		found := false
		t.hosts.Root().WalkPath(rev, func(k []byte, v interface{}) bool {
			// a key must end on a label boundary of the run
			if len(k) < len(rev) && rev[len(k)] != '.' {
				return false
			}
			for _, f := range v.([]*Filter) {
				if fn(f) {
					found = true
					return true
				}
			}
			return false
		})
		if found {
			return true
		}
	}
	return false
}

func (t *ruleTable) findKeywords(rq *request, fn func(*Filter) bool) bool {
	s := rq.lower
	var seen map[string]struct{}
	for i := 0; i < len(s); {
		if !isKeywordChar(s[i]) {
			i++
			continue
		}
		j := i
		for j < len(s) && isKeywordChar(s[j]) {
			j++
		}
		token := s[i:j]
		i = j
		if len(token) < minKeywordLen {
			continue
		}
		candidates := t.keywords[token]
		if len(candidates) == 0 {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		if seen == nil {
			seen = make(map[string]struct{})
		}
		seen[token] = struct{}{}
		for _, f := range candidates {
			if fn(f) {
				return true
			}
		}
	}
	return false
}

func (t *ruleTable) stats() (hostKeys, keywords, fallback int) {
	return t.hosts.Len(), len(t.keywords), len(t.fallback)
}

// hostKey returns the complete host literal of a "||host^", "||host/..." or
// "||host|" pattern. Any URL the pattern matches contains the host as the
// whole separator-delimited run at one of its anchor starts.
func hostKey(f *Filter) (string, bool) {
	p := f.Pattern
	if len(p) < 3 || p[0] != '|' || p[1] != '|' {
		return "", false
	}
	p = p[2:]
	end := 0
	for end < len(p) && !isSeparator(p[end]) {
		end++
	}
	if end == 0 || end == len(p) {
		return "", false
	}
	switch next := p[end]; {
	case next == '^':
	case next == '|' && end == len(p)-1:
	case next == '*' || next == '|':
		return "", false
	}
	return toLowerASCII(p[:end]), true
}

// keywordCandidates lists the tokens of a pattern that any matching URL must
// contain as a complete token: runs of keyword characters bounded on both
// sides by an anchor, a "^" or a literal non-keyword character.
func keywordCandidates(pattern string) []string {
	if isRegexpRule(pattern) {
		return nil
	}
	p := toLowerASCII(pattern)
	leftBound := false
	switch {
	case len(p) >= 2 && p[:2] == "||":
		p, leftBound = p[2:], true
	case len(p) >= 1 && p[0] == '|':
		p, leftBound = p[1:], true
	}
	rightBound := false
	if len(p) > 0 && p[len(p)-1] == '|' {
		p, rightBound = p[:len(p)-1], true
	}

	var out []string
	for i := 0; i < len(p); {
		if !isKeywordChar(p[i]) {
			i++
			continue
		}
		j := i
		for j < len(p) && isKeywordChar(p[j]) {
			j++
		}
		okLeft := (i == 0 && leftBound) || (i > 0 && p[i-1] != '*')
		okRight := (j == len(p) && rightBound) || (j < len(p) && p[j] != '*')
		if okLeft && okRight && j-i >= minKeywordLen {
			out = append(out, p[i:j])
		}
		i = j
	}
	return out
}

func isKeywordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '%'
}

func toLowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

func reverseBytes(s string) []byte {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b[len(s)-1-i] = s[i]
	}
	return b
}
