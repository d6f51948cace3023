package adblock

import "strings"

// ResourceType 请求资源类型（位掩码，便于选项匹配）
type ResourceType uint16

const (
	TypeUnknown ResourceType = 0

	TypeImage ResourceType = 1 << iota
	TypeScript
	TypeStylesheet
	TypeObject
	TypeDocument
	TypeSubdocument
	TypeXMLHTTPRequest
	TypeFont
	TypeMedia
	TypeOther
)

var resourceTypeNames = []struct {
	t    ResourceType
	name string
}{
	{TypeImage, "image"},
	{TypeScript, "script"},
	{TypeStylesheet, "stylesheet"},
	{TypeObject, "object"},
	{TypeDocument, "document"},
	{TypeSubdocument, "subdocument"},
	{TypeXMLHTTPRequest, "xmlhttprequest"},
	{TypeFont, "font"},
	{TypeMedia, "media"},
	{TypeOther, "other"},
}

// ParseResourceType maps an option or API name to a ResourceType.
func ParseResourceType(name string) (ResourceType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, rt := range resourceTypeNames {
		if rt.name == name {
			return rt.t, true
		}
	}
	return TypeUnknown, false
}

func (t ResourceType) String() string {
	if t == TypeUnknown {
		return "unknown"
	}
	var names []string
	for _, rt := range resourceTypeNames {
		if t&rt.t != 0 {
			names = append(names, rt.name)
		}
	}
	return strings.Join(names, "|")
}

// Decision 单次请求的拦截结果
type Decision int

const (
	Allow Decision = iota
	Block
)

func (d Decision) String() string {
	if d == Block {
		return "block"
	}
	return "allow"
}

// RequestContext carries the per-request classification input. Type may be
// left as TypeUnknown; the matcher then classifies from the URL path.
type RequestContext struct {
	// Domain is the requesting (originating) domain.
	Domain string
	Type   ResourceType
}

// Filter 表示一条已编译的过滤规则
type Filter struct {
	Raw         string // 原始规则文本
	Pattern     string // 去掉 @@ 与 $options 后的 URL 模式
	IsException bool
	Options     Options
	Compiled    *CompiledPattern

	inert bool // 含有未知选项，按策略永不匹配
}

// Inert reports whether the filter is kept but can never match because it
// carries options this engine does not implement.
func (f *Filter) Inert() bool {
	return f.inert
}

// matches evaluates the pattern and every option of the filter.
func (f *Filter) matches(rq *request) bool {
	if f.inert {
		return false
	}
	return f.Compiled.match(rq.url, rq.lower) && f.Options.satisfiedBy(rq)
}

func (f *Filter) String() string {
	return f.Raw
}

// NetworkRule returns the filter in network rule syntax with only the
// options this engine understands. Hosts lines come back as "||host^".
func (f *Filter) NetworkRule() string {
	var b strings.Builder
	if f.IsException {
		b.WriteString("@@")
	}
	b.WriteString(f.Pattern)
	if f.Options.text != "" {
		b.WriteByte('$')
		b.WriteString(f.Options.text)
	}
	return b.String()
}

// MatchResult 匹配结果
type MatchResult struct {
	Decision Decision
	Filter   *Filter // 命中的规则（放行时可能是例外规则或 nil）
	// Generation is the rule generation that produced the decision; 0 when
	// no generation was consulted.
	Generation uint64
}

// Rule returns the text of the rule behind the decision, if any.
func (r MatchResult) Rule() string {
	if r.Filter == nil {
		return ""
	}
	return r.Filter.Raw
}
