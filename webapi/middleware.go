package webapi

import (
	"net/http"

	"mitmblock/adblock"
)

// Decider is the part of the manager the middleware needs.
type Decider interface {
	Match(url string, rc adblock.RequestContext) adblock.MatchResult
}

// Middleware terminates requests the decider blocks with blockStatus and
// passes everything else to next unchanged. The requesting domain comes from
// Origin or Referer, the resource type from Sec-Fetch-Dest or Accept.
func Middleware(d Decider, blockStatus int, next http.Handler) http.Handler {
	if blockStatus == 0 {
		blockStatus = http.StatusForbidden
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := adblock.RequestContext{
			Domain: requestingDomain(r),
			Type:   ClassifyTransport(r.Header.Get("Sec-Fetch-Dest"), r.Header.Get("Accept")),
		}
		res := d.Match(absoluteURL(r), rc)
		if res.Decision == adblock.Block {
			w.Header().Set("X-Blocked-By", res.Rule())
			http.Error(w, "blocked", blockStatus)
			return
		}
		next.ServeHTTP(w, r)
	})
}
