package webapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"mitmblock/adblock"
)

type recordingDecider struct {
	block bool
	url   string
	rc    adblock.RequestContext
}

func (d *recordingDecider) Match(url string, rc adblock.RequestContext) adblock.MatchResult {
	d.url, d.rc = url, rc
	if d.block {
		return adblock.MatchResult{Decision: adblock.Block, Filter: &adblock.Filter{Raw: "||ads.example^"}}
	}
	return adblock.MatchResult{Decision: adblock.Allow}
}

func TestMiddlewareBlocks(t *testing.T) {
	d := &recordingDecider{block: true}
	called := false
	h := Middleware(d, 0, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "http://ads.example/pixel.gif?id=1", nil)
	req.Header.Set("Referer", "https://news.example.org/article")
	req.Header.Set("Sec-Fetch-Dest", "image")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "||ads.example^", rec.Header().Get("X-Blocked-By"))
	assert.Equal(t, "http://ads.example/pixel.gif?id=1", d.url)
	assert.Equal(t, "news.example.org", d.rc.Domain)
	assert.Equal(t, adblock.TypeImage, d.rc.Type)
}

func TestMiddlewarePassesAllowed(t *testing.T) {
	d := &recordingDecider{}
	h := Middleware(d, http.StatusNoContent, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Host = "site.example"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("Origin", "https://app.example:8443")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "https://site.example/index.html", d.url)
	assert.Equal(t, "app.example", d.rc.Domain)
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		dest, accept string
		want         adblock.ResourceType
	}{
		{"script", "", adblock.TypeScript},
		{"style", "*/*", adblock.TypeStylesheet},
		{"iframe", "", adblock.TypeSubdocument},
		{"empty", "application/json", adblock.TypeXMLHTTPRequest},
		{"", "text/css,*/*;q=0.1", adblock.TypeStylesheet},
		{"", "image/avif,image/webp,*/*", adblock.TypeImage},
		{"", "text/html,application/xhtml+xml", adblock.TypeDocument},
		{"", "*/*", adblock.TypeUnknown},
		{"", "", adblock.TypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyTransport(tt.dest, tt.accept); got != tt.want {
			t.Errorf("ClassifyTransport(%q, %q) = %s, want %s", tt.dest, tt.accept, got, tt.want)
		}
	}
}

func TestServerBlockingMiddlewareUsesConfiguredStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.cfg.AdBlock.BlockStatus = http.StatusUnavailableForLegalReasons

	h := srv.BlockingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://ads.example.com/banner.png", nil))
	assert.Equal(t, http.StatusUnavailableForLegalReasons, rec.Code)
	assert.Equal(t, "||ads.example.com^", rec.Header().Get("X-Blocked-By"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://clean.example.org/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
