package adblock

import (
	"errors"
	"fmt"
)

var (
	// ErrComment marks comment, header and blank lines.
	ErrComment = errors.New("comment")
	// ErrCosmetic marks element hiding rules, which a request filter skips.
	ErrCosmetic = errors.New("cosmetic rule")

	ErrEmptyPattern = errors.New("empty pattern")
	ErrEmptyOptions = errors.New("empty option list")
	ErrBadDomain    = errors.New("invalid domain")

	// ErrNoRulesLoaded is returned by Load when no usable filter resulted
	// from any source.
	ErrNoRulesLoaded = errors.New("no rules loaded")
)

// ParseError describes a malformed filter line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("%q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CompileError describes a URL pattern that cannot become a matcher.
type CompileError struct {
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %q: %v", e.Pattern, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Diagnostic is a per-line problem reported while loading. The line was
// skipped and loading went on.
type Diagnostic struct {
	Source string
	Line   int
	Text   string
	Err    error
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %v", d.Source, d.Err)
	}
	return fmt.Sprintf("%s:%d: %v", d.Source, d.Line, d.Err)
}
