package adblock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"mitmblock/logger"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	defaultDownloadRetries = 3
)

// RuleLoader downloads remote filter lists into the cache directory.
type RuleLoader struct {
	client   *retryablehttp.Client
	cacheDir string
	maxSize  int64
}

// NewRuleLoader creates a loader writing into cacheDir. maxSize caps a single
// download in bytes; timeout applies per attempt.
func NewRuleLoader(cacheDir string, maxSize int64, timeout time.Duration) *RuleLoader {
	if maxSize <= 0 {
		maxSize = defaultMaxListSize
	}
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	client := retryablehttp.NewClient()
	client.RetryMax = defaultDownloadRetries
	client.HTTPClient.Timeout = timeout
	client.Logger = logger.Leveled("Loader")

	return &RuleLoader{
		client:   client,
		cacheDir: cacheDir,
		maxSize:  maxSize,
	}
}

// DownloadResult describes one download. ETag and LastModified are the
// validators to send next time.
type DownloadResult struct {
	Lines        int
	Changed      bool
	ETag         string
	LastModified string
}

// Download fetches one remote source into its cache file. It sends the
// validators from the previous download and keeps the cached copy on 304.
// source is only read; the caller records the result.
func (rl *RuleLoader) Download(ctx context.Context, source SourceInfo) (DownloadResult, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return DownloadResult{}, err
	}
	if source.ETag != "" {
		req.Header.Set("If-None-Match", source.ETag)
	}
	if source.LastModified != "" {
		req.Header.Set("If-Modified-Since", source.LastModified)
	}

	resp, err := rl.client.Do(req)
	if err != nil {
		return DownloadResult{}, err
	}
	defer resp.Body.Close()

	cachePath := filepath.Join(rl.cacheDir, source.CacheFile)
	if resp.StatusCode == http.StatusNotModified {
		if _, err := os.Stat(cachePath); err == nil {
			return DownloadResult{
				Lines:        source.RuleCount,
				ETag:         source.ETag,
				LastModified: source.LastModified,
			}, nil
		}
		return DownloadResult{}, fmt.Errorf("server answered 304 but %s is missing", cachePath)
	}
	if resp.StatusCode != http.StatusOK {
		return DownloadResult{}, fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(rl.cacheDir, source.CacheFile+".*.tmp")
	if err != nil {
		return DownloadResult{}, err
	}
	defer os.Remove(tmp.Name())

	limited := &io.LimitedReader{R: resp.Body, N: rl.maxSize + 1}
	lines, err := countLines(io.TeeReader(limited, tmp))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return DownloadResult{}, err
	}
	if limited.N <= 0 {
		return DownloadResult{}, fmt.Errorf("list exceeds %d bytes", rl.maxSize)
	}
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		return DownloadResult{}, err
	}

	return DownloadResult{
		Lines:        lines,
		Changed:      true,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func countLines(r io.Reader) (int, error) {
	buf := make([]byte, 32*1024)
	count := 0
	for {
		c, err := r.Read(buf)
		count += bytes.Count(buf[:c], []byte{'\n'})
		switch {
		case err == io.EOF:
			return count, nil
		case err != nil:
			return count, err
		}
	}
}
