package adblock

// Match evaluates url and rc against the index. Exceptions are consulted
// first and win over any blocking filter; otherwise the first blocking filter
// whose pattern and options all match blocks the request.
func (idx *RuleIndex) Match(url string, rc RequestContext) MatchResult {
	if idx == nil {
		return MatchResult{Decision: Allow}
	}
	rq := newRequest(url, rc)

	var hit *Filter
	visit := func(f *Filter) bool {
		if f.matches(rq) {
			hit = f
			return true
		}
		return false
	}

	if idx.exceptions.find(rq, visit) {
		return MatchResult{Decision: Allow, Filter: hit}
	}
	if idx.blocking.find(rq, visit) {
		return MatchResult{Decision: Block, Filter: hit}
	}
	return MatchResult{Decision: Allow}
}

// Decide returns Block or Allow for url. It never fails; a nil index allows
// everything.
func (idx *RuleIndex) Decide(url string, rc RequestContext) Decision {
	return idx.Match(url, rc).Decision
}

// Count returns the number of filters held, exceptions and inert filters
// included.
func (idx *RuleIndex) Count() int {
	if idx == nil {
		return 0
	}
	return idx.blocking.size + idx.exceptions.size + len(idx.inert)
}

// Stats describes the index layout.
func (idx *RuleIndex) Stats() IndexStats {
	if idx == nil {
		return IndexStats{}
	}
	bh, bk, bf := idx.blocking.stats()
	eh, ek, ef := idx.exceptions.stats()
	return IndexStats{
		Filters:     idx.blocking.size,
		Exceptions:  idx.exceptions.size,
		Inert:       len(idx.inert),
		HostKeys:    bh + eh,
		Keywords:    bk + ek,
		FallbackLen: bf + ef,
	}
}

// InertFilters returns the filters kept but disabled by the unknown option
// policy.
func (idx *RuleIndex) InertFilters() []*Filter {
	if idx == nil {
		return nil
	}
	return idx.inert
}
