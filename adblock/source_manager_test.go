package adblock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSourceManagerRegistersRemoteLists(t *testing.T) {
	tempDir := t.TempDir()
	urls := []string{
		"https://lists.example/easylist.txt",
		"blocklists/*",
		"http://lists.example/hosts",
	}

	sm, err := NewSourceManager(tempDir, urls)
	if err != nil {
		t.Fatalf("Failed to create SourceManager: %v", err)
	}

	sources := sm.GetAllSources()
	if len(sources) != 2 {
		t.Fatalf("Expected 2 remote sources, got %d", len(sources))
	}
	// sorted by URL
	if sources[0].URL != "http://lists.example/hosts" {
		t.Errorf("Unexpected first source %s", sources[0].URL)
	}
	for _, s := range sources {
		if s.Status != StatusActive {
			t.Errorf("Expected new source %s to be active, got %s", s.URL, s.Status)
		}
		if !strings.HasPrefix(s.CacheFile, "rules_") || !strings.HasSuffix(s.CacheFile, ".txt") {
			t.Errorf("Unexpected cache file name %s", s.CacheFile)
		}
	}
	if sm.GetSource("blocklists/*") != nil {
		t.Error("Local list should not be tracked as a remote source")
	}
}

func TestCacheFileNameIsStable(t *testing.T) {
	a := cacheFileName("https://lists.example/easylist.txt")
	b := cacheFileName("https://lists.example/easylist.txt")
	c := cacheFileName("https://lists.example/other.txt")

	if a != b {
		t.Errorf("cache file name not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("different URLs share cache file %s", a)
	}
}

func TestUpdateSourceStatusMarksBadAfterRepeatedFailures(t *testing.T) {
	url := "https://lists.example/easylist.txt"
	sm, err := NewSourceManager(t.TempDir(), []string{url})
	if err != nil {
		t.Fatalf("Failed to create SourceManager: %v", err)
	}

	failure := errors.New("connection refused")
	sm.UpdateSourceStatus(url, DownloadResult{}, failure)
	if got := sm.GetSource(url).Status; got != StatusFailed {
		t.Errorf("Expected status failed after one failure, got %s", got)
	}

	sm.UpdateSourceStatus(url, DownloadResult{}, failure)
	sm.UpdateSourceStatus(url, DownloadResult{}, failure)
	if got := sm.GetSource(url).Status; got != StatusBad {
		t.Errorf("Expected status bad after three failures, got %s", got)
	}

	sm.UpdateSourceStatus(url, DownloadResult{Lines: 1200, Changed: true}, nil)
	s := sm.GetSource(url)
	if s.Status != StatusActive || s.FailCount != 0 || s.LastError != "" || s.RuleCount != 1200 {
		t.Errorf("Expected recovered source, got %+v", s)
	}
}

func TestSourceMetaRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	url := "https://lists.example/easylist.txt"

	sm, err := NewSourceManager(tempDir, []string{url})
	if err != nil {
		t.Fatalf("Failed to create SourceManager: %v", err)
	}
	sm.UpdateSourceStatus(url, DownloadResult{Lines: 42, Changed: true, ETag: `"abc"`}, nil)
	if err := sm.SaveMeta(); err != nil {
		t.Fatalf("SaveMeta failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, metaFileName)); err != nil {
		t.Fatalf("metadata file not written: %v", err)
	}

	// a list removed from the configuration is forgotten
	reloaded, err := NewSourceManager(tempDir, []string{url, "https://lists.example/new.txt"})
	if err != nil {
		t.Fatalf("Failed to reload SourceManager: %v", err)
	}
	s := reloaded.GetSource(url)
	if s == nil {
		t.Fatal("saved source was not restored")
	}
	if s.ETag != `"abc"` || s.RuleCount != 42 {
		t.Errorf("saved state not restored: %+v", s)
	}
	if reloaded.GetSource("https://lists.example/new.txt") == nil {
		t.Error("new source was not registered")
	}

	// callers get copies
	s.ETag = "changed"
	if got := reloaded.GetSource(url).ETag; got != `"abc"` {
		t.Errorf("GetSource leaked shared state, ETag = %s", got)
	}

	statuses := reloaded.GetStatuses()
	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
}
