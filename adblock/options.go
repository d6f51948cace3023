package adblock

import (
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// UnknownOptionPolicy decides what happens to filters carrying options this
// engine does not implement.
type UnknownOptionPolicy string

const (
	// UnknownOptionsSkip keeps such filters but never lets them match.
	UnknownOptionsSkip UnknownOptionPolicy = "skip"
	// UnknownOptionsIgnore evaluates such filters as if the unknown options
	// were absent.
	UnknownOptionsIgnore UnknownOptionPolicy = "ignore"
)

type triState int8

const (
	optUnset triState = iota
	optRequire
	optNegate
)

// Options holds the parsed "$..." part of a filter.
type Options struct {
	Types      ResourceType // types listed positively
	NotTypes   ResourceType // types listed as ~type
	ThirdParty triState
	MatchCase  bool
	Domains    DomainSet
	// Unknown keeps option names this engine does not understand, as authored.
	Unknown []string

	// text lists the understood options in canonical form, comma separated.
	text string
}

// HasTypeRestriction reports whether the filter lists any resource type.
func (o *Options) HasTypeRestriction() bool {
	return o.Types != 0 || o.NotTypes != 0
}

var optionAliases = map[string]string{
	"css":         "stylesheet",
	"xhr":         "xmlhttprequest",
	"frame":       "subdocument",
	"doc":         "document",
	"3p":          "third-party",
	"1p":          "~third-party",
	"first-party": "~third-party",
}

func parseOptions(text string) (Options, error) {
	var (
		opts Options
		kept []string
	)
	for _, raw := range strings.Split(text, ",") {
		opt := strings.TrimSpace(raw)
		if opt == "" {
			return opts, ErrEmptyOptions
		}
		name := strings.ToLower(opt)
		if alias, ok := optionAliases[strings.TrimPrefix(name, "~")]; ok {
			if strings.HasPrefix(name, "~") {
				// ~1p is third-party, ~3p is first-party
				if strings.HasPrefix(alias, "~") {
					alias = alias[1:]
				} else {
					alias = "~" + alias
				}
			}
			name = alias
		}

		if strings.HasPrefix(name, "domain=") {
			ds, err := parseDomainSet(opt[len("domain="):])
			if err != nil {
				return opts, err
			}
			opts.Domains = ds
			kept = append(kept, "domain="+opt[len("domain="):])
			continue
		}

		negated := strings.HasPrefix(name, "~")
		key := strings.TrimPrefix(name, "~")

		switch key {
		case "third-party":
			if negated {
				opts.ThirdParty = optNegate
			} else {
				opts.ThirdParty = optRequire
			}
			kept = append(kept, name)
			continue
		case "match-case":
			if !negated {
				opts.MatchCase = true
				kept = append(kept, name)
				continue
			}
		}

		if t, ok := ParseResourceType(key); ok {
			if negated {
				opts.NotTypes |= t
			} else {
				opts.Types |= t
			}
			kept = append(kept, name)
			continue
		}

		opts.Unknown = append(opts.Unknown, opt)
	}
	opts.text = strings.Join(kept, ",")
	return opts, nil
}

// DomainSet is the parsed value of a domain= option.
type DomainSet struct {
	include map[string]struct{}
	exclude map[string]struct{}
}

func parseDomainSet(value string) (DomainSet, error) {
	ds := DomainSet{}
	if strings.TrimSpace(value) == "" {
		return ds, fmt.Errorf("%w: empty domain list", ErrBadDomain)
	}
	for _, part := range strings.Split(value, "|") {
		part = strings.TrimSpace(part)
		negated := strings.HasPrefix(part, "~")
		name, err := normalizeDomain(strings.TrimPrefix(part, "~"))
		if err != nil {
			return DomainSet{}, err
		}
		if negated {
			if ds.exclude == nil {
				ds.exclude = make(map[string]struct{})
			}
			ds.exclude[name] = struct{}{}
		} else {
			if ds.include == nil {
				ds.include = make(map[string]struct{})
			}
			ds.include[name] = struct{}{}
		}
	}
	return ds, nil
}

// normalizeDomain lower-cases, strips the root dot, converts IDNs to their
// ASCII form and validates the result.
func normalizeDomain(name string) (string, error) {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrBadDomain)
	}
	ascii, err := idna.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrBadDomain, name, err)
	}
	if _, ok := dns.IsDomainName(ascii); !ok {
		return "", fmt.Errorf("%w: %q", ErrBadDomain, name)
	}
	return ascii, nil
}

// IsEmpty reports whether the set restricts nothing.
func (ds DomainSet) IsEmpty() bool {
	return len(ds.include) == 0 && len(ds.exclude) == 0
}

// Includes returns the sorted include list.
func (ds DomainSet) Includes() []string { return sortedKeys(ds.include) }

// Excludes returns the sorted exclude list.
func (ds DomainSet) Excludes() []string { return sortedKeys(ds.exclude) }

// Allows reports whether a request from domain satisfies the set. The most
// specific suffix of domain found in either list decides; when none is found
// the set is satisfied only if it has no include entries.
func (ds DomainSet) Allows(domain string) bool {
	if ds.IsEmpty() {
		return true
	}
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain != "" {
		for _, i := range dns.Split(domain) {
			suffix := domain[i:]
			if _, ok := ds.exclude[suffix]; ok {
				return false
			}
			if _, ok := ds.include[suffix]; ok {
				return true
			}
		}
	}
	return len(ds.include) == 0
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// satisfiedBy checks every option against the request. The URL pattern is
// matched separately.
func (o *Options) satisfiedBy(rq *request) bool {
	if o.HasTypeRestriction() {
		t := rq.resourceType()
		if t == TypeUnknown {
			return false
		}
		if o.Types != 0 && t&o.Types == 0 {
			return false
		}
		if t&o.NotTypes != 0 {
			return false
		}
	}

	if o.ThirdParty != optUnset {
		tp, known := rq.isThirdParty()
		if !known {
			return false
		}
		if (o.ThirdParty == optRequire) != tp {
			return false
		}
	}

	return o.Domains.Allows(rq.domain)
}
