package adblock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mitmblock/config"
	"mitmblock/logger"
)

// snapshot is one complete, immutable generation of loaded rules. Requests
// always see exactly one snapshot.
type snapshot struct {
	engine     FilterEngine
	report     *LoadReport
	generation uint64
	loadedAt   time.Time
	// cache memoizes decisions for this snapshot only and is dropped with it
	cache *lru.Cache
}

type AdBlockManager struct {
	cfg        *config.AdBlockConfig
	current    atomic.Pointer[snapshot]
	enabled    atomic.Bool
	generation atomic.Uint64
	sourcesMgr *SourceManager
	loader     *RuleLoader
	stats      *Stats
	group      singleflight.Group
	reloads    reloadGate
}

// UpdateResult summarizes one refresh of the remote lists.
type UpdateResult struct {
	Sources         int      `json:"sources"`
	Downloaded      int      `json:"downloaded"`
	FailedSources   []string `json:"failed_sources"`
	TotalRules      int      `json:"total_rules"`
	Generation      uint64   `json:"generation"`
	DurationSeconds float64  `json:"duration_seconds"`
}

func NewManager(cfg *config.AdBlockConfig) (*AdBlockManager, error) {
	switch strings.ToLower(cfg.Engine) {
	case "builtin", "urlfilter":
	default:
		return nil, fmt.Errorf("unknown adblock engine: %s", cfg.Engine)
	}

	sourcesMgr, err := NewSourceManager(cfg.CacheDir, cfg.Lists)
	if err != nil {
		return nil, fmt.Errorf("error creating source manager: %w", err)
	}

	loader := NewRuleLoader(cfg.CacheDir, int64(cfg.MaxListSize.Bytes()),
		time.Duration(cfg.DownloadTimeoutSeconds)*time.Second)

	m := &AdBlockManager{
		cfg:        cfg,
		sourcesMgr: sourcesMgr,
		loader:     loader,
		stats:      NewStats(),
	}
	m.enabled.Store(cfg.Enable)
	return m, nil
}

// Start performs the initial load and then refreshes the lists every
// update_interval_hours until ctx is done. When the initial load yields no
// rules, Start fails unless on_empty is "allow", in which case the manager
// runs without blocking until a later reload succeeds.
func (m *AdBlockManager) Start(ctx context.Context) error {
	m.UpdateRemote(ctx, false)

	if _, err := m.Reload(ctx); err != nil {
		if !errors.Is(err, ErrNoRulesLoaded) && !errors.Is(err, ErrNoSources) {
			return err
		}
		if m.cfg.OnEmpty != config.OnEmptyAllow {
			return err
		}
		logger.Warnf("[AdBlock] %v; running without blocking (on_empty: allow)", err)
	}

	if m.cfg.UpdateIntervalHours > 0 {
		ticker := time.NewTicker(time.Duration(m.cfg.UpdateIntervalHours) * time.Hour)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := m.Update(ctx, false); err != nil {
						logger.Errorf("[AdBlock] periodic update failed: %v", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return nil
}

// Update refreshes stale remote lists and reloads all lists.
func (m *AdBlockManager) Update(ctx context.Context, force bool) (UpdateResult, error) {
	res := m.UpdateRemote(ctx, force)
	report, err := m.Reload(ctx)
	if err != nil {
		return res, err
	}
	res.TotalRules = report.Usable()
	res.Generation = m.generation.Load()
	return res, nil
}

// UpdateRemote downloads the remote lists whose cached copy is missing or
// older than update_interval_hours, or all of them when force is set. It
// only refreshes the cache; the rules in use change on the next Reload.
func (m *AdBlockManager) UpdateRemote(ctx context.Context, force bool) UpdateResult {
	key := "update"
	if force {
		key = "update-force"
	}
	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		return m.updateRemote(ctx, force), nil
	})
	return v.(UpdateResult)
}

func (m *AdBlockManager) updateRemote(ctx context.Context, force bool) UpdateResult {
	startTime := time.Now()
	sources := m.sourcesMgr.GetAllSources()
	failed := make([]bool, len(sources))
	var downloaded atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.cfg.MaxConcurrentLoads, 1))
	for i, s := range sources {
		i, s := i, s
		if !force && m.isFresh(s) {
			continue
		}
		g.Go(func() error {
			dl, err := m.loader.Download(gctx, s)
			m.sourcesMgr.UpdateSourceStatus(s.URL, dl, err)
			if err != nil {
				failed[i] = true
				logger.Warnf("[AdBlock] download %s failed: %v", s.URL, err)
				return nil
			}
			if dl.Changed {
				downloaded.Add(1)
				logger.Infof("[AdBlock] downloaded %s (%d lines)", s.URL, dl.Lines)
			}
			return nil
		})
	}
	g.Wait()

	if len(sources) > 0 {
		if err := m.sourcesMgr.SaveMeta(); err != nil {
			logger.Errorf("[AdBlock] saving list metadata: %v", err)
		}
	}

	res := UpdateResult{
		Sources:         len(sources),
		Downloaded:      int(downloaded.Load()),
		FailedSources:   []string{},
		DurationSeconds: time.Since(startTime).Seconds(),
	}
	for i, s := range sources {
		if failed[i] {
			res.FailedSources = append(res.FailedSources, s.URL)
		}
	}
	return res
}

func (m *AdBlockManager) isFresh(s SourceInfo) bool {
	if s.Status != StatusActive || s.LastUpdate.IsZero() {
		return false
	}
	if _, err := os.Stat(filepath.Join(m.cfg.CacheDir, s.CacheFile)); err != nil {
		return false
	}
	if m.cfg.UpdateIntervalHours <= 0 {
		return true
	}
	return time.Since(s.LastUpdate) < time.Duration(m.cfg.UpdateIntervalHours)*time.Hour
}

// Reload reads every configured list into a new engine and swaps it in. The
// live engine keeps serving while the new one is built and stays in place
// when the load fails or yields no usable rules. Every call is answered by a
// load that started after it; calls queued behind a running load share the
// next one.
func (m *AdBlockManager) Reload(ctx context.Context) (*LoadReport, error) {
	return m.reloads.do(ctx, m.reload)
}

// reloadGate runs loads one at a time and lets queued callers share one.
type reloadGate struct {
	mu        sync.Mutex
	requested atomic.Uint64
	// served is the highest request number the last shared result answers.
	served uint64
	report *LoadReport
	err    error
}

func (g *reloadGate) do(ctx context.Context, load func(context.Context) (*LoadReport, error)) (*LoadReport, error) {
	seq := g.requested.Add(1)

	g.mu.Lock()
	defer g.mu.Unlock()
	if seq <= g.served {
		return g.report, g.err
	}

	covered := g.requested.Load()
	report, err := load(ctx)
	// a load cut short by its caller's context answers only that caller
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		g.served, g.report, g.err = covered, report, err
	}
	return report, err
}

func (m *AdBlockManager) reload(ctx context.Context) (*LoadReport, error) {
	sources, err := ExpandSources(m.cfg.Lists, m.cfg.CacheDir)
	if err != nil {
		if errors.Is(err, ErrNoSources) {
			return nil, fmt.Errorf("%w in %v: add lists to the directory or run an update first", err, m.cfg.Lists)
		}
		return nil, err
	}

	filters, report, err := loadFilters(ctx, sources, LoadOptions{
		UnknownOptions: UnknownOptionPolicy(m.cfg.UnknownOptions),
		MaxConcurrent:  m.cfg.MaxConcurrentLoads,
		MaxListSize:    int64(m.cfg.MaxListSize.Bytes()),
	})
	if report != nil {
		logDiagnostics(report)
	}
	if err != nil {
		if errors.Is(err, ErrNoRulesLoaded) && m.current.Load() != nil {
			logger.Warnf("[AdBlock] reload produced no rules, keeping generation %d", m.generation.Load())
		}
		return report, err
	}

	engine, err := m.buildEngine(filters)
	if err != nil {
		return report, err
	}

	snap := &snapshot{
		engine:   engine,
		report:   report,
		loadedAt: time.Now(),
	}
	if m.cfg.DecisionCacheSize > 0 {
		snap.cache, _ = lru.New(m.cfg.DecisionCacheSize)
	}
	snap.generation = m.generation.Add(1)
	m.current.Store(snap)

	logger.Infof("[AdBlock] generation %d: %d filters, %d exceptions, %d inert, %d malformed from %d lists in %v",
		snap.generation, report.Filters, report.Exceptions, report.Inert, report.Malformed,
		len(report.Sources), report.Duration.Round(time.Millisecond))
	return report, nil
}

func (m *AdBlockManager) buildEngine(filters []*Filter) (FilterEngine, error) {
	if strings.ToLower(m.cfg.Engine) != "urlfilter" {
		return BuildIndex(filters), nil
	}
	lines := make([]string, 0, len(filters))
	for _, f := range filters {
		if f.Inert() {
			continue
		}
		lines = append(lines, f.NetworkRule())
	}
	engine, err := NewURLFilterEngine(lines)
	if err != nil {
		return nil, fmt.Errorf("error creating urlfilter engine: %w", err)
	}
	return engine, nil
}

func logDiagnostics(report *LoadReport) {
	for _, s := range report.Sources {
		if s.Error != "" {
			logger.Warnf("[AdBlock] list %s: %s", s.Name, s.Error)
		}
	}
	if report.Malformed > 0 {
		logger.Warnf("[AdBlock] skipped %d malformed lines", report.Malformed)
	}
	if logger.Enabled(logger.DebugLevel) {
		for _, d := range report.Diagnostics {
			logger.Debugf("[AdBlock] %s", d)
		}
	}
	for opt, n := range report.UnknownOptions {
		logger.Debugf("[AdBlock] unknown option %q on %d filters", opt, n)
	}
}

// Match decides a request against the current generation. It allows
// everything while blocking is disabled or before the first successful load.
func (m *AdBlockManager) Match(url string, rc RequestContext) MatchResult {
	if !m.enabled.Load() {
		return MatchResult{Decision: Allow}
	}
	snap := m.current.Load()
	if snap == nil {
		return MatchResult{Decision: Allow}
	}

	var res MatchResult
	key := decisionKey(url, rc)
	if v, ok := cacheGet(snap.cache, key); ok {
		res = v
	} else {
		res = snap.engine.Match(url, rc)
		if snap.cache != nil {
			snap.cache.Add(key, res)
		}
	}
	res.Generation = snap.generation

	switch {
	case res.Decision == Block:
		m.stats.RecordBlock(HostOf(url), res.Rule())
		typ := rc.Type
		if typ == TypeUnknown {
			typ = ClassifyURL(url)
		}
		logger.Infof("[AdBlock] BLOCKED %s (domain=%s type=%s) rule=%s", url, rc.Domain, typ, res.Rule())
	case res.Filter != nil:
		m.stats.RecordAllow(true)
		logger.Debugf("[AdBlock] allowed %s by exception %s", url, res.Rule())
	default:
		m.stats.RecordAllow(false)
	}
	return res
}

// Decide is Match reduced to the decision.
func (m *AdBlockManager) Decide(url string, rc RequestContext) Decision {
	return m.Match(url, rc).Decision
}

func decisionKey(url string, rc RequestContext) string {
	return url + "\x00" + rc.Domain + "\x00" + strconv.FormatUint(uint64(rc.Type), 10)
}

func cacheGet(c *lru.Cache, key string) (MatchResult, bool) {
	if c == nil {
		return MatchResult{}, false
	}
	v, ok := c.Get(key)
	if !ok {
		return MatchResult{}, false
	}
	return v.(MatchResult), true
}

// Generation returns the number of the live rule generation, 0 before the
// first successful load.
func (m *AdBlockManager) Generation() uint64 {
	if snap := m.current.Load(); snap != nil {
		return snap.generation
	}
	return 0
}

// LastReport returns the load report of the live generation.
func (m *AdBlockManager) LastReport() *LoadReport {
	if snap := m.current.Load(); snap != nil {
		return snap.report
	}
	return nil
}

// SetEnabled dynamically enables or disables filtering.
func (m *AdBlockManager) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	logger.Infof("[AdBlock] filtering enabled=%v", enabled)
}

func (m *AdBlockManager) Enabled() bool {
	return m.enabled.Load()
}

func (m *AdBlockManager) GetStats() AdBlockStats {
	snap := m.current.Load()
	sources := m.sourcesMgr.GetAllSources()

	var failedSources []string
	for _, s := range m.sourcesMgr.GetStatuses() {
		if s.Status == StatusFailed || s.Status == StatusBad {
			failedSources = append(failedSources, s.URL)
		}
	}

	var (
		totalRules int
		lastUpdate time.Time
	)
	if snap != nil {
		totalRules = snap.engine.Count()
		lastUpdate = snap.loadedAt
	}

	st := m.stats.GetStats(m.enabled.Load(), strings.ToLower(m.cfg.Engine), totalRules, len(sources), failedSources, lastUpdate)
	if snap != nil {
		st.Generation = snap.generation
		st.LastLoad = snap.report
		if idx, ok := snap.engine.(*RuleIndex); ok {
			is := idx.Stats()
			st.Index = &is
		}
	}
	return st
}

func (m *AdBlockManager) GetSources() []SourceStatus {
	return m.sourcesMgr.GetStatuses()
}
