package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Key derives the content address of an artifact: sha256 over the spoken text
// and the voice parameters, truncated to 16 hex characters. Identical requests
// always land on the same file.
func Key(text, voice string, speed float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%g", text, voice, speed)))
	return hex.EncodeToString(sum[:])[:16]
}

// Cache owns the directory of synthesized WAV artifacts. Files live flat in
// the directory as <key>.wav; callers hold keys, never paths, so eviction can
// run at any time.
type Cache struct {
	dir      string
	maxBytes int64
	ttl      time.Duration
	log      *slog.Logger

	// mu serializes writes and sweeps; reads are plain stat calls.
	mu sync.Mutex
}

// NewCache creates dir if needed and returns a cache bounded by maxMB and ttl.
func NewCache(dir string, maxMB int, ttl time.Duration, log *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tts: create cache dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		dir:      dir,
		maxBytes: int64(maxMB) * 1024 * 1024,
		ttl:      ttl,
		log:      log.With("component", "audiocache"),
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Has reports whether the artifact for key is on disk.
func (c *Cache) Has(key string) bool {
	_, err := os.Stat(c.path(key))
	return err == nil
}

// Resolve maps an artifact id from the wire to a file path inside the cache
// directory. IDs carrying path separators or dot-dot segments are refused, as
// is anything that does not resolve to an existing cache entry.
func (c *Cache) Resolve(audioID string) (string, error) {
	if audioID == "" ||
		strings.ContainsAny(audioID, `/\`) ||
		strings.Contains(audioID, "..") {
		return "", fmt.Errorf("tts: invalid audio id %q", audioID)
	}
	p := c.path(audioID)
	if filepath.Dir(p) != filepath.Clean(c.dir) {
		return "", fmt.Errorf("tts: audio id %q escapes cache dir", audioID)
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("tts: artifact %s: %w", audioID, err)
	}
	return p, nil
}

// Put writes data for key atomically: a temp sibling first, then a rename.
func (c *Cache) Put(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("tts: create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("tts: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("tts: close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("tts: publish artifact: %w", err)
	}
	return nil
}

// Size reports the total bytes of cached artifacts.
func (c *Cache) Size() int64 {
	var total int64
	for _, f := range c.artifacts() {
		total += f.size
	}
	return total
}

// Sweep enforces the TTL and then the size cap, unlinking expired artifacts
// and, if still over the cap, the oldest artifacts until within bounds.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	files := c.artifacts()
	now := time.Now()

	if c.ttl > 0 {
		kept := files[:0]
		for _, f := range files {
			if now.Sub(f.mtime) > c.ttl {
				if err := os.Remove(f.path); err == nil {
					c.log.Debug("removed expired artifact", "file", filepath.Base(f.path))
					continue
				}
			}
			kept = append(kept, f)
		}
		files = kept
	}

	if c.maxBytes <= 0 {
		return
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })
	for _, f := range files {
		if total <= c.maxBytes {
			break
		}
		if err := os.Remove(f.path); err == nil {
			total -= f.size
			c.log.Debug("evicted artifact for size", "file", filepath.Base(f.path))
		}
	}
}

// StartJanitor sweeps on an interval until ctx is cancelled. Sweeps also run
// inline after every write; the janitor only covers idle periods.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".wav")
}

type artifact struct {
	path  string
	size  int64
	mtime time.Time
}

func (c *Cache) artifacts() []artifact {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("cache scan failed", "error", err)
		return nil
	}
	files := make([]artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wav") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, artifact{
			path:  filepath.Join(c.dir, e.Name()),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
	}
	return files
}
