package adblock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const metaFileName = "rules_meta.json"

// Source status values.
const (
	StatusActive = "active"
	StatusFailed = "failed"
	StatusBad    = "bad"
)

// badAfterFailures is the number of consecutive failed downloads after which
// a source is reported as bad.
const badAfterFailures = 3

type SourceStatus struct {
	URL        string    `json:"url"`
	Status     string    `json:"status"` // "active", "failed", "bad"
	RuleCount  int       `json:"rule_count"`
	LastUpdate time.Time `json:"last_update"`
	LastError  string    `json:"last_error"`
}

// SourceInfo is the persisted download state of a remote list.
type SourceInfo struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	CacheFile    string    `json:"cache_file"`
	RuleCount    int       `json:"rule_count"`
	LastUpdate   time.Time `json:"last_update"`
	LastError    string    `json:"last_error"`
	FailCount    int       `json:"fail_count"`
	Status       string    `json:"status"` // active | failed | bad
}

// SourceManager tracks remote lists and persists their state next to the
// cached copies.
type SourceManager struct {
	sources  map[string]*SourceInfo
	metaFile string
	mu       sync.RWMutex
}

// NewSourceManager creates cacheDir if needed, restores saved state and
// registers every remote entry of urls. State of lists no longer configured
// is dropped.
func NewSourceManager(cacheDir string, urls []string) (*SourceManager, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, err
	}

	sm := &SourceManager{
		sources:  make(map[string]*SourceInfo),
		metaFile: filepath.Join(cacheDir, metaFileName),
	}

	saved := map[string]*SourceInfo{}
	if list, err := readMeta(sm.metaFile); err == nil {
		for _, s := range list {
			saved[s.URL] = s
		}
	}

	for _, url := range urls {
		if !IsRemote(url) {
			continue
		}
		if s, ok := saved[url]; ok {
			sm.sources[url] = s
			continue
		}
		sm.AddSource(url)
	}
	return sm, nil
}

func readMeta(path string) ([]*SourceInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sources []*SourceInfo
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// SaveMeta writes the state of every source to disk.
func (sm *SourceManager) SaveMeta() error {
	sources := sm.GetAllSources()
	data, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sm.metaFile, data, 0644)
}

func cacheFileName(url string) string {
	h := sha256.Sum256([]byte(url))
	return "rules_" + hex.EncodeToString(h[:16]) + ".txt"
}

func (sm *SourceManager) AddSource(url string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sources[url]; !exists {
		sm.sources[url] = &SourceInfo{
			URL:       url,
			Status:    StatusActive,
			CacheFile: cacheFileName(url),
		}
	}
}

// GetSource returns a copy of the state of url, or nil when it is not
// tracked.
func (sm *SourceManager) GetSource(url string) *SourceInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sources[url]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// GetAllSources returns copies of the sources sorted by URL.
func (sm *SourceManager) GetAllSources() []SourceInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sources := make([]SourceInfo, 0, len(sm.sources))
	for _, s := range sm.sources {
		sources = append(sources, *s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].URL < sources[j].URL })
	return sources
}

// UpdateSourceStatus records the outcome of a download. On success the
// line count and validators of res replace the stored ones.
func (sm *SourceManager) UpdateSourceStatus(url string, res DownloadResult, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	source, exists := sm.sources[url]
	if !exists {
		return
	}
	source.LastUpdate = time.Now()
	if err != nil {
		source.LastError = err.Error()
		source.FailCount++
		source.Status = StatusFailed
		if source.FailCount >= badAfterFailures {
			source.Status = StatusBad
		}
		return
	}
	source.RuleCount = res.Lines
	source.ETag = res.ETag
	source.LastModified = res.LastModified
	source.LastError = ""
	source.FailCount = 0
	source.Status = StatusActive
}

func (sm *SourceManager) GetStatuses() []SourceStatus {
	var statuses []SourceStatus
	for _, s := range sm.GetAllSources() {
		statuses = append(statuses, SourceStatus{
			URL:        s.URL,
			Status:     s.Status,
			RuleCount:  s.RuleCount,
			LastUpdate: s.LastUpdate,
			LastError:  s.LastError,
		})
	}
	return statuses
}
