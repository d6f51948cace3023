package adblock

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// AdBlockStats holds statistics about adblock activity.
type AdBlockStats struct {
	Enabled       bool        `json:"enabled"`
	Engine        string      `json:"engine"`
	TotalRules    int         `json:"total_rules"`
	Generation    uint64      `json:"generation"`
	BlockedToday  int64       `json:"blocked_today"`
	BlockedTotal  int64       `json:"blocked_total"`
	AllowedTotal  int64       `json:"allowed_total"`
	ExceptionHits int64       `json:"exception_hits"`
	LastUpdate    string      `json:"last_update"`
	SourcesCount  int         `json:"sources_count"`
	FailedSources []string    `json:"failed_sources"`
	TopHosts      []TopCount  `json:"top_blocked_hosts"`
	TopRules      []TopCount  `json:"top_rules"`
	LastLoad      *LoadReport `json:"last_load,omitempty"`
	Index         *IndexStats `json:"index,omitempty"`
	Memory        MemoryStats `json:"memory"`
}

// MemoryStats reports process heap usage next to system memory.
type MemoryStats struct {
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	SystemTotalMB uint64  `json:"system_total_mb"`
	SystemUsedPct float64 `json:"system_used_percent"`
}

// Stats manages adblock statistics.
type Stats struct {
	blockedTotal  int64
	blockedToday  int64
	allowedTotal  int64
	exceptionHits int64
	lastReset     time.Time
	mu            sync.RWMutex

	hosts *topCounter
	rules *topCounter
}

// NewStats creates a new Stats manager.
func NewStats() *Stats {
	return &Stats{
		lastReset: time.Now(),
		hosts:     newTopCounter(),
		rules:     newTopCounter(),
	}
}

// RecordBlock increments the block counters and tallies the blocked host
// and the rule that blocked it.
func (s *Stats) RecordBlock(host, rule string) {
	atomic.AddInt64(&s.blockedTotal, 1)
	s.hosts.record(host)
	s.rules.record(rule)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Day() != s.lastReset.Day() || now.Month() != s.lastReset.Month() || now.Year() != s.lastReset.Year() {
		atomic.StoreInt64(&s.blockedToday, 0)
		s.lastReset = now
	}
	atomic.AddInt64(&s.blockedToday, 1)
}

// RecordAllow counts an allowed request; exception marks one that a
// whitelisting rule let through.
func (s *Stats) RecordAllow(exception bool) {
	atomic.AddInt64(&s.allowedTotal, 1)
	if exception {
		atomic.AddInt64(&s.exceptionHits, 1)
	}
}

// GetStats returns the current adblock statistics.
func (s *Stats) GetStats(enabled bool, engine string, totalRules int, sourcesCount int, failedSources []string, lastUpdate time.Time) AdBlockStats {
	st := AdBlockStats{
		Enabled:       enabled,
		Engine:        engine,
		TotalRules:    totalRules,
		BlockedToday:  atomic.LoadInt64(&s.blockedToday),
		BlockedTotal:  atomic.LoadInt64(&s.blockedTotal),
		AllowedTotal:  atomic.LoadInt64(&s.allowedTotal),
		ExceptionHits: atomic.LoadInt64(&s.exceptionHits),
		SourcesCount:  sourcesCount,
		FailedSources: failedSources,
		TopHosts:      s.hosts.top(defaultTopEntries),
		TopRules:      s.rules.top(defaultTopEntries),
		Memory:        readMemoryStats(),
	}
	if !lastUpdate.IsZero() {
		st.LastUpdate = lastUpdate.Format(time.RFC3339)
	}
	return st
}

func readMemoryStats() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	out := MemoryStats{HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024}

	if vm, err := mem.VirtualMemory(); err == nil {
		out.SystemTotalMB = vm.Total / 1024 / 1024
		out.SystemUsedPct = vm.UsedPercent
	}
	return out
}
