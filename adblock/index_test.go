package adblock

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var indexTestRules = []string{
	"||ads.example.com^",
	"||example.com/banner/",
	"||cdn.tracker.net^$script",
	"||metrics.",
	"|http://pop.",
	".swf|",
	"/adserver/*",
	"&ad_type=",
	"-ad-300x250.",
	"*/track?*",
	"banner",
	"/ads[0-9]+\\.js/",
	"ad^",
	"||tracker.org^$third-party",
	"/sponsor/*$domain=news.example|~sports.news.example",
	"@@||ads.example.com/whitelisted/",
	"@@/adserver/ok^",
	"@@||cdn.tracker.net/lib.js",
}

var indexTestURLs = []string{
	"http://ads.example.com/",
	"https://sub.ads.example.com/img.png",
	"http://ads.example.com/whitelisted/a.gif",
	"http://example.com/banner/1.png",
	"http://www.example.com/banner/1.png",
	"http://notexample.com/banner/1.png",
	"https://cdn.tracker.net/lib.js",
	"https://cdn.tracker.net/x.js",
	"https://cdn.tracker.net/x.css",
	"https://metrics.site.io/collect",
	"http://pop.up.com/",
	"https://pop.up.com/",
	"http://x.com/movie.swf",
	"http://x.com/adserver/x",
	"http://x.com/adserver/ok",
	"http://x.com/adserver/okay",
	"http://x.com/page?id=1&ad_type=video",
	"http://x.com/img-ad-300x250.gif",
	"http://x.com/a/track?x=1",
	"http://x.com/BANNER.png",
	"http://x.com/ads42.js",
	"http://x.com/ad?x=1",
	"http://x.com/add",
	"http://tracker.org/p",
	"http://x.com/sponsor/1",
	"http://example.org/clean/page.html",
	"ads.example.com",
	"HTTP://ADS.EXAMPLE.COM/",
}

// bruteForce evaluates every filter without the index.
func bruteForce(filters []*Filter, url string, rc RequestContext) Decision {
	rq := newRequest(url, rc)
	for _, f := range filters {
		if f.IsException && f.matches(rq) {
			return Allow
		}
	}
	for _, f := range filters {
		if !f.IsException && f.matches(rq) {
			return Block
		}
	}
	return Allow
}

func TestIndexAgreesWithBruteForce(t *testing.T) {
	var filters []*Filter
	for _, line := range indexTestRules {
		f, err := ParseLine(line, UnknownOptionsSkip)
		require.NoError(t, err, line)
		filters = append(filters, f)
	}
	idx := BuildIndex(filters)

	contexts := []RequestContext{
		{},
		{Domain: "news.example"},
		{Domain: "sports.news.example"},
		{Domain: "tracker.org", Type: TypeScript},
		{Domain: "elsewhere.net", Type: TypeImage},
	}
	for _, u := range indexTestURLs {
		for _, rc := range contexts {
			want := bruteForce(filters, u, rc)
			got := idx.Decide(u, rc)
			if got != want {
				t.Errorf("Decide(%q, %+v) = %s, brute force says %s", u, rc, got, want)
			}
		}
	}
}

func TestIndexUsesHostAndKeywordTables(t *testing.T) {
	idx := mustIndex(t,
		"||ads.example.com^",
		"||example.net/path",
		"/adserver/",
		"/ads[0-9]+/",
		"@@||ads.example.com/ok",
	)
	st := idx.Stats()

	assert.Equal(t, 4, st.Filters)
	assert.Equal(t, 1, st.Exceptions)
	assert.Equal(t, 3, st.HostKeys)
	assert.Equal(t, 1, st.Keywords)
	assert.Equal(t, 1, st.FallbackLen)
}

func TestFindKeywordsVisitsFilterOncePerRequest(t *testing.T) {
	idx := mustIndex(t, "/adserver/$domain=only.example")
	url := "http://x.example/" + strings.Repeat("adserver/", 50) + "?adserver=1"

	visits := 0
	found := idx.blocking.findKeywords(newRequest(url, RequestContext{Domain: "other.example"}), func(f *Filter) bool {
		visits++
		return false
	})
	assert.False(t, found)
	assert.Equal(t, 1, visits)
}

func TestHostKey(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
		ok      bool
	}{
		{"||Ads.Example.com^", "ads.example.com", true},
		{"||example.com/ads", "example.com", true},
		{"||example.com|", "example.com", true},
		{"||example.com", "", false},
		{"||example.com*ads", "", false},
		{"||ex*ample.com^", "", false},
		{"|http://x.com/", "", false},
	}
	for _, tt := range tests {
		got, ok := hostKey(&Filter{Pattern: tt.pattern})
		if got != tt.want || ok != tt.ok {
			t.Errorf("hostKey(%q) = %q, %v; want %q, %v", tt.pattern, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKeywordCandidates(t *testing.T) {
	tests := []struct {
		pattern string
		want    []string
	}{
		{"/adserver/", []string{"adserver"}},
		{"banner", nil},
		{"|https://ads.", []string{"https", "ads"}},
		{"*/track?*", []string{"track"}},
		{"/ad*server/", nil},
		{"&ad_type=", []string{"type"}},
		{"/ad/", nil},
		{"/ads[0-9]+/", nil},
	}
	for _, tt := range tests {
		got := keywordCandidates(tt.pattern)
		assert.Equal(t, tt.want, got, tt.pattern)
	}
}

func TestBuildIndexDeterministic(t *testing.T) {
	var filters []*Filter
	for i := 0; i < 200; i++ {
		f, err := ParseLine(fmt.Sprintf("||host%d.example^", i%50), UnknownOptionsSkip)
		require.NoError(t, err)
		filters = append(filters, f)
	}
	a := BuildIndex(filters)
	b := BuildIndex(filters)
	assert.Equal(t, a.Stats(), b.Stats())

	for i := 0; i < 60; i++ {
		u := fmt.Sprintf("http://host%d.example/", i)
		ra, rb := a.Match(u, RequestContext{}), b.Match(u, RequestContext{})
		assert.Equal(t, ra.Decision, rb.Decision, u)
		assert.Same(t, ra.Filter, rb.Filter, u)
	}
}
