package adblock

// FilterEngine is the interface for adblock filter engines. Implementations
// are immutable once built and safe for concurrent use.
type FilterEngine interface {
	Match(url string, rc RequestContext) MatchResult
	Count() int
}

var (
	_ FilterEngine = (*RuleIndex)(nil)
	_ FilterEngine = (*URLFilterEngine)(nil)
)
