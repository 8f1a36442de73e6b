package queue

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// DuplicateDetector suppresses repeats of the same text inside a short window.
// Texts are compared by MD5 content hash; the hash is not used for anything
// security-sensitive.
type DuplicateDetector struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// NewDuplicateDetector builds a detector with the given suppression window.
func NewDuplicateDetector(window time.Duration) *DuplicateDetector {
	return &DuplicateDetector{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// IsDuplicate reports whether text was already seen inside the window. A miss
// records the text, so the first call for any text returns false exactly once
// per window.
func (d *DuplicateDetector) IsDuplicate(text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for h, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, h)
		}
	}

	sum := md5.Sum([]byte(text))
	h := hex.EncodeToString(sum[:])
	if _, dup := d.seen[h]; dup {
		return true
	}
	d.seen[h] = now
	return false
}
