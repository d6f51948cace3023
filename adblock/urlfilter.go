package adblock

import (
	"strings"

	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/AdguardTeam/urlfilter/rules"
)

// URLFilterEngine answers the same questions as RuleIndex using AdGuard's
// urlfilter network engine. It is selected with engine: urlfilter and is
// mostly useful to cross-check the builtin index.
type URLFilterEngine struct {
	engine    *urlfilter.NetworkEngine
	ruleCount int
}

// NewURLFilterEngine builds an engine from raw filter-list lines.
func NewURLFilterEngine(lines []string) (*URLFilterEngine, error) {
	rulesStr := strings.Join(lines, "\n")

	stringList := &filterlist.StringRuleList{
		RulesText:      rulesStr,
		ID:             1,
		IgnoreCosmetic: true,
	}

	storage, err := filterlist.NewRuleStorage([]filterlist.RuleList{stringList})
	if err != nil {
		return nil, err
	}

	e := &URLFilterEngine{engine: urlfilter.NewNetworkEngine(storage)}
	e.ruleCount = e.engine.RulesCount
	return e, nil
}

var urlfilterTypes = map[ResourceType]rules.RequestType{
	TypeImage:          rules.TypeImage,
	TypeScript:         rules.TypeScript,
	TypeStylesheet:     rules.TypeStylesheet,
	TypeObject:         rules.TypeObject,
	TypeDocument:       rules.TypeDocument,
	TypeSubdocument:    rules.TypeSubdocument,
	TypeXMLHTTPRequest: rules.TypeXmlhttprequest,
	TypeFont:           rules.TypeFont,
	TypeMedia:          rules.TypeMedia,
	TypeOther:          rules.TypeOther,
}

// Match implements FilterEngine.
func (e *URLFilterEngine) Match(url string, rc RequestContext) MatchResult {
	if e == nil || e.engine == nil {
		return MatchResult{Decision: Allow}
	}

	t := rc.Type
	if t == TypeUnknown {
		t = ClassifyURL(url)
	}
	reqType, ok := urlfilterTypes[t]
	if !ok {
		reqType = rules.TypeOther
	}
	sourceURL := ""
	if rc.Domain != "" {
		sourceURL = "https://" + rc.Domain + "/"
	}

	rule, matched := e.engine.Match(rules.NewRequest(url, sourceURL, reqType))
	if !matched || rule == nil {
		return MatchResult{Decision: Allow}
	}

	ruleText := rule.Text()
	f := &Filter{Raw: ruleText, IsException: strings.HasPrefix(ruleText, "@@")}
	if f.IsException {
		return MatchResult{Decision: Allow, Filter: f}
	}
	return MatchResult{Decision: Block, Filter: f}
}

// Count implements FilterEngine.
func (e *URLFilterEngine) Count() int {
	if e == nil {
		return 0
	}
	return e.ruleCount
}
