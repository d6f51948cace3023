package adblock

import (
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// extensionTypes classifies a request from the extension of its URL path.
var extensionTypes = map[string]ResourceType{
	".png":   TypeImage,
	".jpg":   TypeImage,
	".jpeg":  TypeImage,
	".gif":   TypeImage,
	".webp":  TypeImage,
	".svg":   TypeImage,
	".ico":   TypeImage,
	".bmp":   TypeImage,
	".js":    TypeScript,
	".mjs":   TypeScript,
	".css":   TypeStylesheet,
	".woff":  TypeFont,
	".woff2": TypeFont,
	".ttf":   TypeFont,
	".otf":   TypeFont,
	".mp4":   TypeMedia,
	".webm":  TypeMedia,
	".mp3":   TypeMedia,
	".ogg":   TypeMedia,
	".swf":   TypeObject,
}

// ClassifyURL guesses the resource type from the URL path suffix. The query
// string and fragment are ignored. Unrecognized suffixes yield TypeUnknown.
func ClassifyURL(rawURL string) ResourceType {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+3:]
		slash := strings.IndexByte(p, '/')
		if slash < 0 {
			return TypeUnknown
		}
		p = p[slash:]
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return TypeUnknown
	}
	return extensionTypes[ext]
}

// HostOf extracts the lower-cased host name of rawURL, without port or
// credentials. It returns "" when the URL has no authority.
func HostOf(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i < 0 {
		return ""
	}
	rest := rawURL[i+3:]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		rest = rest[at+1:]
	}
	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end > 0 {
			return strings.ToLower(rest[1:end])
		}
	}
	if colon := strings.LastIndexByte(rest, ':'); colon >= 0 {
		rest = rest[:colon]
	}
	return strings.TrimSuffix(strings.ToLower(rest), ".")
}

// request is the per-decision view of a URL and its context. It is owned by a
// single decision and never shared.
type request struct {
	url    string
	lower  string
	domain string
	typ    ResourceType

	host       string
	hostDone   bool
	thirdParty int8 // 0 not computed, 1 yes, 2 no, 3 unknown
}

func newRequest(rawURL string, rc RequestContext) *request {
	rq := &request{
		url:    rawURL,
		lower:  strings.ToLower(rawURL),
		domain: strings.TrimSuffix(strings.ToLower(rc.Domain), "."),
		typ:    rc.Type,
	}
	if rq.typ == TypeUnknown {
		rq.typ = ClassifyURL(rawURL)
	}
	return rq
}

func (rq *request) resourceType() ResourceType {
	return rq.typ
}

func (rq *request) targetHost() string {
	if !rq.hostDone {
		rq.host = HostOf(rq.url)
		rq.hostDone = true
	}
	return rq.host
}

// isThirdParty compares the registrable domains of the target and the
// requesting domain. known is false when either side is missing.
func (rq *request) isThirdParty() (thirdParty, known bool) {
	if rq.thirdParty == 0 {
		host := rq.targetHost()
		switch {
		case host == "" || rq.domain == "":
			rq.thirdParty = 3
		case registrableDomain(host) != registrableDomain(rq.domain):
			rq.thirdParty = 1
		default:
			rq.thirdParty = 2
		}
	}
	return rq.thirdParty == 1, rq.thirdParty != 3
}

func registrableDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
