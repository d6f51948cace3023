package adblock

import (
	"errors"
	"net"
	"strings"
)

var errWhitespace = errors.New("whitespace in pattern")

// cosmeticMarkers separate a domain list from an element hiding or
// scriptlet body.
var cosmeticMarkers = []string{"##", "#@#", "#?#", "#@?#", "#$#", "#@$#", "#%#", "#@%#"}

// hostsPlaceholders are names hosts files map for the local machine.
var hostsPlaceholders = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"local":                 {},
	"broadcasthost":         {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
	"0.0.0.0":               {},
}

// ParseLine turns one filter-list line into a compiled Filter.
//
// Blank lines, "!" comments, "#" comments and "[Adblock ...]" headers return
// ErrComment; element hiding rules return ErrCosmetic. Malformed lines return
// a *ParseError and patterns that cannot be compiled a *CompileError. A filter
// with options this engine does not know is returned with those options in
// Options.Unknown; under UnknownOptionsSkip it never matches.
func ParseLine(line string, policy UnknownOptionPolicy) (*Filter, error) {
	text := strings.TrimSpace(line)
	switch {
	case text == "",
		strings.HasPrefix(text, "!"),
		strings.HasPrefix(text, "#"),
		strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		return nil, ErrComment
	}
	for _, m := range cosmeticMarkers {
		if strings.Contains(text, m) {
			return nil, ErrCosmetic
		}
	}

	if f, ok, err := parseHostsLine(text); ok {
		return f, err
	}

	f := &Filter{Raw: text}
	if strings.HasPrefix(text, "@@") {
		f.IsException = true
		text = text[2:]
	}

	pattern := text
	if !isRegexpRule(pattern) {
		if i := strings.LastIndexByte(pattern, '$'); i >= 0 {
			optText := pattern[i+1:]
			pattern = pattern[:i]
			if strings.TrimSpace(optText) == "" {
				return nil, &ParseError{Text: f.Raw, Err: ErrEmptyOptions}
			}
			opts, err := parseOptions(optText)
			if err != nil {
				return nil, &ParseError{Text: f.Raw, Err: err}
			}
			f.Options = opts
		}
	}

	if pattern == "" {
		return nil, &ParseError{Text: f.Raw, Err: ErrEmptyPattern}
	}
	if strings.ContainsAny(pattern, " \t") {
		return nil, &ParseError{Text: f.Raw, Err: errWhitespace}
	}
	if policy == UnknownOptionsIgnore {
		f.inert = false
	} else {
		f.inert = len(f.Options.Unknown) > 0
	}

	compiled, err := CompilePattern(pattern, f.Options.MatchCase)
	if err != nil {
		return nil, err
	}
	f.Pattern = pattern
	f.Compiled = compiled
	return f, nil
}

func isRegexpRule(s string) bool {
	return len(s) > 2 && s[0] == '/' && s[len(s)-1] == '/'
}

// parseHostsLine accepts "0.0.0.0 ads.example.com" lines and turns them into
// "||ads.example.com^". ok is false when the line is not in hosts format.
func parseHostsLine(text string) (f *Filter, ok bool, err error) {
	fields := strings.Fields(text)
	if len(fields) < 2 || net.ParseIP(fields[0]) == nil {
		return nil, false, nil
	}
	name := fields[1]
	if _, skip := hostsPlaceholders[strings.ToLower(name)]; skip {
		return nil, true, ErrComment
	}
	host, err := normalizeDomain(name)
	if err != nil {
		return nil, true, &ParseError{Text: text, Err: err}
	}
	pattern := "||" + host + "^"
	compiled, err := CompilePattern(pattern, false)
	if err != nil {
		return nil, true, err
	}
	return &Filter{Raw: text, Pattern: pattern, Compiled: compiled}, true, nil
}
