package fm

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/logandonley/fontreg/internal/platform"
)

// CacheOptions bounds the cache directory search and the deletion retries
type CacheOptions struct {
	MaxDepth        int           `yaml:"max_depth"`
	Attempts        int           `yaml:"attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
}

var DefaultCacheOptions = CacheOptions{
	MaxDepth:        6,
	Attempts:        3,
	InitialInterval: 50 * time.Millisecond,
}

// CacheReport lists the cache directories a purge removed and gave up on
type CacheReport struct {
	Removed []string
	Failed  []string
}

// PurgeFontCache stops the OS font cache, deletes the per-user font cache
// directories and restarts the cache. Every failure is logged and none aborts
// the purge.
func PurgeFontCache(ctx context.Context, p platform.Manager, opts CacheOptions, logger *slog.Logger) CacheReport {
	if logger == nil {
		logger = slog.Default()
	}
	var report CacheReport

	layout, err := p.CacheLayout()
	if err != nil {
		logger.Error("failed to locate font cache", "error", err)
		return report
	}

	if err := p.StopFontCache(); err != nil {
		logger.Warn("failed to stop font cache", "error", err)
	}
	defer func() {
		if err := p.StartFontCache(); err != nil {
			logger.Warn("failed to start font cache", "error", err)
		}
	}()

	for _, dir := range findCacheDirs(layout, opts.MaxDepth, logger) {
		if ctx.Err() != nil {
			break
		}
		if err := removeWithBackoff(ctx, dir, opts); err != nil {
			logger.Warn("failed to remove font cache directory", "path", dir, "error", err)
			report.Failed = append(report.Failed, dir)
			continue
		}
		logger.Info("removed font cache directory", "path", dir)
		report.Removed = append(report.Removed, dir)
	}
	return report
}

// findCacheDirs walks layout.Root no deeper than maxDepth levels and collects
// directories named layout.DirName. Unreadable subtrees are skipped.
func findCacheDirs(layout platform.CacheLayout, maxDepth int, logger *slog.Logger) []string {
	if maxDepth <= 0 {
		maxDepth = DefaultCacheOptions.MaxDepth
	}
	root := filepath.Clean(layout.Root)

	var found []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug("skipping unreadable directory", "path", path, "error", err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if cacheDirName(d.Name(), layout.DirName) {
			found = append(found, path)
			return filepath.SkipDir
		}
		if walkDepth(root, path) >= maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	return found
}

// walkDepth is 1 for the direct children of root
func walkDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func cacheDirName(name, want string) bool {
	if platform.CaseInsensitivePaths {
		return strings.EqualFold(name, want)
	}
	return name == want
}

func removeWithBackoff(ctx context.Context, dir string, opts CacheOptions) error {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		eb.InitialInterval = opts.InitialInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
	return backoff.Retry(func() error {
		return os.RemoveAll(dir)
	}, b)
}
