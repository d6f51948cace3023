package adblock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadToleratesMalformedLine(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "||ads%d.example.com^\n", i)
	}
	b.WriteString("||broken.example^$\n")
	for i := 50; i < 100; i++ {
		fmt.Fprintf(&b, "/banner%d/\n", i)
	}

	idx, report, err := Load(context.Background(), []Source{TextSource{Label: "list", Text: b.String()}}, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 100, report.Filters)
	assert.Equal(t, 1, report.Malformed)
	require.Len(t, report.Diagnostics, 1)

	d := report.Diagnostics[0]
	assert.Equal(t, "list", d.Source)
	assert.Equal(t, 51, d.Line)
	assert.True(t, errors.Is(d.Err, ErrEmptyOptions))
	var pe *ParseError
	require.True(t, errors.As(d.Err, &pe))
	assert.Equal(t, 51, pe.Line)

	assert.Equal(t, 100, idx.Count())
	assert.Equal(t, Block, idx.Decide("http://ads7.example.com/", RequestContext{}))
	assert.Equal(t, Allow, idx.Decide("http://broken.example/", RequestContext{}))
}

func TestLoadCommentsOnlyFailsClosed(t *testing.T) {
	text := "! Title: empty\n\n[Adblock Plus 2.0]\n! nothing here\nexample.com##.cosmetic-only\n"
	idx, report, err := Load(context.Background(), []Source{TextSource{Label: "empty", Text: text}}, LoadOptions{})

	assert.True(t, errors.Is(err, ErrNoRulesLoaded))
	assert.Nil(t, idx)
	require.NotNil(t, report)
	assert.Equal(t, 4, report.Comments)
	assert.Equal(t, 1, report.Cosmetic)
}

func TestLoadOnlyInertFiltersFailsClosed(t *testing.T) {
	_, report, err := Load(context.Background(), []Source{TextSource{Label: "l", Text: "||a.example^$popup\n"}}, LoadOptions{})
	assert.True(t, errors.Is(err, ErrNoRulesLoaded))
	assert.Equal(t, 1, report.Inert)
	assert.Equal(t, 1, report.UnknownOptions["popup"])
}

func TestLoadConcatenatesSourcesInOrder(t *testing.T) {
	sources := []Source{
		TextSource{Label: "a", Text: "||a.example^\n"},
		TextSource{Label: "b", Text: "@@||a.example/ok\n||b.example^\n"},
	}
	idx, report, err := Load(context.Background(), sources, LoadOptions{MaxConcurrent: 1})
	require.NoError(t, err)

	require.Len(t, report.Sources, 2)
	assert.Equal(t, "a", report.Sources[0].Name)
	assert.Equal(t, "b", report.Sources[1].Name)
	assert.Equal(t, 2, report.Filters)
	assert.Equal(t, 1, report.Exceptions)

	// an exception from a later list still wins
	assert.Equal(t, Allow, idx.Decide("http://a.example/ok", RequestContext{}))
	assert.Equal(t, Block, idx.Decide("http://a.example/other", RequestContext{}))
}

func TestLoadUnreadableSourceIsReported(t *testing.T) {
	sources := []Source{
		FileSource(filepath.Join(t.TempDir(), "missing.txt")),
		TextSource{Label: "ok", Text: "||ok.example^\n"},
	}
	_, report, err := Load(context.Background(), sources, LoadOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.Sources[0].Error)
	assert.Equal(t, 0, report.Malformed)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, 0, report.Diagnostics[0].Line)
}

func TestLoadSizeLimit(t *testing.T) {
	text := strings.Repeat("||big.example^\n", 100)
	_, report, err := Load(context.Background(), []Source{TextSource{Label: "big", Text: text}}, LoadOptions{MaxListSize: 64})
	require.NoError(t, err)

	assert.Contains(t, report.Sources[0].Error, "exceeds")
	// 65 bytes read: four whole lines and the start of a fifth
	assert.Equal(t, 4, report.Filters)
	assert.Equal(t, 4, report.Sources[0].Lines)
}

func TestLoadSizeLimitDropsCutLine(t *testing.T) {
	text := "||a.example^\n||ads.example.com^$domain=only.example\n"
	idx, report, err := Load(context.Background(), []Source{TextSource{Label: "cut", Text: text}}, LoadOptions{MaxListSize: 30})
	require.NoError(t, err)

	assert.Contains(t, report.Sources[0].Error, "truncated")
	assert.Equal(t, 1, report.Filters)
	assert.Zero(t, report.Malformed)

	res := idx.Match("http://ads.example.com/", RequestContext{Domain: "other.example"})
	if res.Decision != Allow {
		t.Errorf("cut line became a filter: blocked by %q", res.Rule())
	}
	assert.Equal(t, Block, idx.Decide("http://a.example/", RequestContext{}))
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Load(ctx, []Source{TextSource{Label: "l", Text: "||a.example^\n"}}, LoadOptions{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExpandSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("||x.example^\n"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	sources, err := ExpandSources([]string{
		filepath.Join(dir, "*"),
		"https://lists.example/easylist.txt",
		"file://" + filepath.Join(dir, "a.txt"),
		"",
	}, "/var/cache/mitmblock")
	require.NoError(t, err)

	var names []string
	for _, s := range sources {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		"https://lists.example/easylist.txt",
		filepath.Join(dir, "a.txt"),
	}, names)

	remote, ok := sources[2].(RemoteSource)
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/var/cache/mitmblock", cacheFileName(remote.URL)), remote.Path)
}

func TestExpandSourcesEmptyGlob(t *testing.T) {
	_, err := ExpandSources([]string{filepath.Join(t.TempDir(), "*")}, "")
	assert.True(t, errors.Is(err, ErrNoSources))
}
