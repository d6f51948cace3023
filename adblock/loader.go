package adblock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxConcurrentLoads = 4
	defaultMaxListSize        = 50 * 1024 * 1024
	maxLineLength             = 1024 * 1024
	maxDiagnostics            = 1000
	ctxCheckEvery             = 4096
)

// ErrNoSources is returned when list entries expand to nothing.
var ErrNoSources = errors.New("no filter lists found")

// Source is one filter list.
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a filter list from a local file.
type FileSource string

func (s FileSource) Name() string { return string(s) }

func (s FileSource) Open(context.Context) (io.ReadCloser, error) {
	return os.Open(string(s))
}

// TextSource serves filter-list text held in memory.
type TextSource struct {
	Label string
	Text  string
}

func (s TextSource) Name() string { return s.Label }

func (s TextSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.Text)), nil
}

// RemoteSource is a downloaded list read from its cache file.
type RemoteSource struct {
	URL  string
	Path string
}

func (s RemoteSource) Name() string { return s.URL }

func (s RemoteSource) Open(context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s has not been downloaded yet", s.URL)
	}
	return f, err
}

// IsRemote reports whether a list entry is fetched over HTTP.
func IsRemote(entry string) bool {
	return strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://")
}

// ExpandSources turns configured list entries into sources, in order. Entries
// may be http(s) URLs (read from cacheDir), file:// URLs, paths or globs; a
// glob expands to its matches in lexical order.
func ExpandSources(entries []string, cacheDir string) ([]Source, error) {
	var sources []Source
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case IsRemote(entry):
			sources = append(sources, RemoteSource{URL: entry, Path: filepath.Join(cacheDir, cacheFileName(entry))})
		case strings.ContainsAny(entry, "*?["):
			matches, err := filepath.Glob(strings.TrimPrefix(entry, "file://"))
			if err != nil {
				return nil, fmt.Errorf("bad list pattern %q: %w", entry, err)
			}
			sort.Strings(matches)
			for _, m := range matches {
				if info, err := os.Stat(m); err == nil && !info.IsDir() {
					sources = append(sources, FileSource(m))
				}
			}
		default:
			sources = append(sources, FileSource(strings.TrimPrefix(entry, "file://")))
		}
	}
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return sources, nil
}

// LoadOptions tunes Load.
type LoadOptions struct {
	UnknownOptions UnknownOptionPolicy
	MaxConcurrent  int
	// MaxListSize caps the bytes read from one source; 0 means the default.
	MaxListSize int64
}

// SourceReport summarizes one source of a load.
type SourceReport struct {
	Name    string `json:"name"`
	Lines   int    `json:"lines"`
	Filters int    `json:"filters"`
	Error   string `json:"error,omitempty"`
}

// LoadReport summarizes a load. Diagnostics holds at most maxDiagnostics
// entries; Malformed counts all of them.
type LoadReport struct {
	Sources        []SourceReport `json:"sources"`
	Lines          int            `json:"lines"`
	Filters        int            `json:"filters"`
	Exceptions     int            `json:"exceptions"`
	Inert          int            `json:"inert"`
	Comments       int            `json:"comments"`
	Cosmetic       int            `json:"cosmetic"`
	Malformed      int            `json:"malformed"`
	Diagnostics    []Diagnostic   `json:"-"`
	UnknownOptions map[string]int `json:"unknown_options,omitempty"`
	Duration       time.Duration  `json:"duration"`
}

// Usable returns the number of filters that can take part in decisions.
func (r *LoadReport) Usable() int {
	return r.Filters + r.Exceptions
}

type sourceResult struct {
	report      SourceReport
	filters     []*Filter
	diagnostics []Diagnostic
	comments    int
	cosmetic    int
}

// Load reads every source, parses and compiles each line and builds a
// RuleIndex. Malformed lines and unreadable sources are reported and
// skipped. Load fails with ErrNoRulesLoaded when nothing usable remains and
// with the context error when ctx is cancelled.
func Load(ctx context.Context, sources []Source, opts LoadOptions) (*RuleIndex, *LoadReport, error) {
	filters, report, err := loadFilters(ctx, sources, opts)
	if err != nil {
		return nil, report, err
	}
	return BuildIndex(filters), report, nil
}

func loadFilters(ctx context.Context, sources []Source, opts LoadOptions) ([]*Filter, *LoadReport, error) {
	start := time.Now()
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrentLoads
	}
	if opts.MaxListSize <= 0 {
		opts.MaxListSize = defaultMaxListSize
	}
	if opts.UnknownOptions == "" {
		opts.UnknownOptions = UnknownOptionsSkip
	}

	results := make([]sourceResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrent)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := readSource(gctx, src, opts)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			if err != nil {
				res.report.Error = err.Error()
				res.diagnostics = append(res.diagnostics, Diagnostic{Source: src.Name(), Err: err})
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	report := &LoadReport{}
	var filters []*Filter
	for _, res := range results {
		report.Sources = append(report.Sources, res.report)
		report.Lines += res.report.Lines
		report.Comments += res.comments
		report.Cosmetic += res.cosmetic
		for _, d := range res.diagnostics {
			if d.Line > 0 {
				report.Malformed++
			}
			if len(report.Diagnostics) < maxDiagnostics {
				report.Diagnostics = append(report.Diagnostics, d)
			}
		}
		for _, f := range res.filters {
			switch {
			case f.inert:
				report.Inert++
			case f.IsException:
				report.Exceptions++
			default:
				report.Filters++
			}
			for _, opt := range f.Options.Unknown {
				if report.UnknownOptions == nil {
					report.UnknownOptions = make(map[string]int)
				}
				report.UnknownOptions[strings.TrimPrefix(strings.ToLower(opt), "~")]++
			}
		}
		filters = append(filters, res.filters...)
	}
	report.Duration = time.Since(start)

	if report.Usable() == 0 {
		return nil, report, ErrNoRulesLoaded
	}
	return filters, report, nil
}

func (res *sourceResult) parseLine(source, line string, lineNo int, policy UnknownOptionPolicy) {
	f, err := ParseLine(line, policy)
	switch {
	case err == nil:
		res.filters = append(res.filters, f)
	case errors.Is(err, ErrComment):
		res.comments++
	case errors.Is(err, ErrCosmetic):
		res.cosmetic++
	default:
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Line = lineNo
		}
		res.diagnostics = append(res.diagnostics, Diagnostic{
			Source: source,
			Line:   lineNo,
			Text:   strings.TrimSpace(line),
			Err:    err,
		})
	}
}

func readSource(ctx context.Context, src Source, opts LoadOptions) (sourceResult, error) {
	res := sourceResult{report: SourceReport{Name: src.Name()}}

	rc, err := src.Open(ctx)
	if err != nil {
		return res, err
	}
	defer rc.Close()

	limited := &io.LimitedReader{R: rc, N: opts.MaxListSize + 1}
	scanner := bufio.NewScanner(limited)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	// A line is parsed once the next one has been read, so a list cut at
	// the size cap never yields a filter from its truncated last line.
	var (
		pending    string
		hasPending bool
		lineNo     int
	)
	for scanner.Scan() {
		lineNo++
		if lineNo%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		if hasPending {
			res.parseLine(src.Name(), pending, lineNo-1, opts.UnknownOptions)
		}
		pending, hasPending = scanner.Text(), true
	}
	scanErr := scanner.Err()
	truncated := limited.N <= 0
	if hasPending && !truncated {
		res.parseLine(src.Name(), pending, lineNo, opts.UnknownOptions)
	}
	res.report.Lines = lineNo
	if truncated && hasPending {
		res.report.Lines--
	}
	res.report.Filters = len(res.filters)
	if scanErr != nil {
		return res, scanErr
	}
	if truncated {
		return res, fmt.Errorf("list exceeds %d bytes, truncated", opts.MaxListSize)
	}
	return res, nil
}
