package adblock

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// PatternKind is the matching strategy chosen for a URL pattern.
type PatternKind int

const (
	KindSubstring PatternKind = iota // plain substring
	KindPrefix                       // |literal
	KindSuffix                       // literal|
	KindExact                        // |literal|
	KindHost                         // ||literal, optionally followed by ^
	KindRegexp                       // anything else, or /regex/
)

func (k PatternKind) String() string {
	switch k {
	case KindSubstring:
		return "substring"
	case KindPrefix:
		return "prefix"
	case KindSuffix:
		return "suffix"
	case KindExact:
		return "exact"
	case KindHost:
		return "host"
	case KindRegexp:
		return "regexp"
	default:
		return "unknown"
	}
}

const (
	// domainAnchorRegexp matches an optional scheme and the optional
	// "//user@sub." part of an authority, so the literal that follows starts
	// at a host label boundary.
	domainAnchorRegexp = `^(?:[^:/?#]+:)?(?://(?:[^/?#]*\.)?)?`
	separatorRegexp    = `(?:[^\w\-.%]|$)`

	// backtrackTimeout bounds a single match of a /regex/ rule that needed
	// the backtracking engine.
	backtrackTimeout = 50 * time.Millisecond
)

// CompiledPattern is the matchable form of a filter's URL pattern.
type CompiledPattern struct {
	kind      PatternKind
	literal   string
	matchCase bool
	sepEnd    bool

	re   *regexp.Regexp
	re2  *regexp2.Regexp
	expr string
}

// CompilePattern translates an Adblock Plus URL pattern. Compilation is
// deterministic; an error means the pattern must not be loaded.
func CompilePattern(raw string, matchCase bool) (*CompiledPattern, error) {
	if raw == "" {
		return nil, &CompileError{Pattern: raw, Err: ErrEmptyPattern}
	}

	if len(raw) > 2 && raw[0] == '/' && raw[len(raw)-1] == '/' {
		return compileRegexpRule(raw, raw[1:len(raw)-1], matchCase)
	}

	p := &CompiledPattern{matchCase: matchCase}
	lit := func(s string) string {
		if matchCase {
			return s
		}
		return strings.ToLower(s)
	}

	body := raw
	hostAnchor := strings.HasPrefix(body, "||")
	startAnchor := !hostAnchor && strings.HasPrefix(body, "|")
	switch {
	case hostAnchor:
		body = body[2:]
	case startAnchor:
		body = body[1:]
	default:
		body = strings.TrimLeft(body, "*")
	}
	endAnchor := len(body) > 0 && strings.HasSuffix(body, "|")
	if endAnchor {
		body = body[:len(body)-1]
	} else {
		body = strings.TrimRight(body, "*")
	}

	if !strings.ContainsAny(body, "*^|") {
		p.literal = lit(body)
		switch {
		case hostAnchor && endAnchor:
			// "||host|" needs the end anchor, which KindHost cannot express
		case hostAnchor:
			if body == "" {
				break
			}
			p.kind = KindHost
			return p, nil
		case startAnchor && endAnchor:
			p.kind = KindExact
			return p, nil
		case startAnchor:
			p.kind = KindPrefix
			return p, nil
		case endAnchor:
			p.kind = KindSuffix
			return p, nil
		default:
			p.kind = KindSubstring
			return p, nil
		}
	}

	if hostAnchor && !endAnchor && body != "" && strings.IndexByte(body, '^') == len(body)-1 &&
		!strings.ContainsAny(body[:len(body)-1], "*|") {
		p.kind = KindHost
		p.literal = lit(body[:len(body)-1])
		p.sepEnd = true
		if p.literal != "" {
			return p, nil
		}
	}

	return compileTranslated(raw, body, hostAnchor, startAnchor, endAnchor, matchCase)
}

func compileTranslated(raw, body string, hostAnchor, startAnchor, endAnchor, matchCase bool) (*CompiledPattern, error) {
	var b strings.Builder
	if !matchCase {
		b.WriteString("(?i)")
	}
	switch {
	case hostAnchor:
		b.WriteString(domainAnchorRegexp)
	case startAnchor:
		b.WriteByte('^')
	}
	start := 0
	flush := func(end int) {
		if end > start {
			b.WriteString(regexp.QuoteMeta(body[start:end]))
		}
	}
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '*':
			flush(i)
			b.WriteString(".*")
			start = i + 1
		case '^':
			flush(i)
			b.WriteString(separatorRegexp)
			start = i + 1
		}
	}
	flush(len(body))
	if endAnchor {
		b.WriteByte('$')
	}

	expr := b.String()
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &CompileError{Pattern: raw, Err: err}
	}
	return &CompiledPattern{kind: KindRegexp, matchCase: matchCase, re: re, expr: expr}, nil
}

// compileRegexpRule compiles a /regex/ rule as authored. Expressions RE2
// cannot express (lookaround, backreferences) go to the backtracking engine.
func compileRegexpRule(raw, expr string, matchCase bool) (*CompiledPattern, error) {
	p := &CompiledPattern{kind: KindRegexp, matchCase: matchCase, expr: expr}

	stdExpr := expr
	if !matchCase {
		stdExpr = "(?i)" + expr
	}
	re, err := regexp.Compile(stdExpr)
	if err == nil {
		p.re = re
		return p, nil
	}

	opts := regexp2.None
	if !matchCase {
		opts |= regexp2.IgnoreCase
	}
	re2, err2 := regexp2.Compile(expr, opts)
	if err2 != nil {
		return nil, &CompileError{Pattern: raw, Err: fmt.Errorf("%v; backtracking engine: %w", err, err2)}
	}
	re2.MatchTimeout = backtrackTimeout
	p.re2 = re2
	return p, nil
}

// Kind returns the matching strategy.
func (p *CompiledPattern) Kind() PatternKind { return p.kind }

func (p *CompiledPattern) String() string {
	if p.kind == KindRegexp {
		return p.expr
	}
	return p.kind.String() + ":" + p.literal
}

// Match reports whether url matches the pattern.
func (p *CompiledPattern) Match(url string) bool {
	return p.match(url, strings.ToLower(url))
}

// match takes the URL and its lower-cased form so callers evaluating many
// patterns lower-case once.
func (p *CompiledPattern) match(url, lower string) bool {
	s := lower
	if p.matchCase {
		s = url
	}
	switch p.kind {
	case KindSubstring:
		return strings.Contains(s, p.literal)
	case KindPrefix:
		return strings.HasPrefix(s, p.literal)
	case KindSuffix:
		return strings.HasSuffix(s, p.literal)
	case KindExact:
		return s == p.literal
	case KindHost:
		for _, start := range hostAnchorStarts(s) {
			if !strings.HasPrefix(s[start:], p.literal) {
				continue
			}
			end := start + len(p.literal)
			if !p.sepEnd || end == len(s) || isSeparator(s[end]) {
				return true
			}
		}
		return false
	case KindRegexp:
		if p.re != nil {
			return p.re.MatchString(url)
		}
		ok, err := p.re2.MatchString(url)
		// a timed out match never blocks
		return err == nil && ok
	}
	return false
}

// hostAnchorStarts returns every offset of u at which a "||" anchored literal
// may begin: the start of u, after a scheme, after "//", and after every dot
// of the authority.
func hostAnchorStarts(u string) []int {
	starts := make([]int, 0, 8)
	starts = append(starts, 0)
	starts = appendAuthorityStarts(starts, u, 0)
	if i := strings.IndexAny(u, ":/?#"); i > 0 && u[i] == ':' {
		starts = append(starts, i+1)
		starts = appendAuthorityStarts(starts, u, i+1)
	}
	return starts
}

func appendAuthorityStarts(starts []int, u string, at int) []int {
	if !strings.HasPrefix(u[at:], "//") {
		return starts
	}
	at += 2
	starts = append(starts, at)
	for i := at; i < len(u); i++ {
		switch u[i] {
		case '/', '?', '#':
			return starts
		case '.':
			starts = append(starts, i+1)
		}
	}
	return starts
}

// isSeparator reports whether c matches the "^" placeholder: anything but a
// letter, a digit or one of _ - . %.
func isSeparator(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	case c == '_', c == '-', c == '.', c == '%':
		return false
	}
	return true
}
