// Package cache keeps fetched pages on disk so repeated runs against the
// same products do not hit the marketplace again inside the TTL.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Entry struct {
	Body      string        `json:"body"`
	Status    int           `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
}

func (e Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.Timestamp) > e.TTL
}

// Cache is a JSON file backed page cache. An empty path keeps it in memory.
type Cache struct {
	path    string
	entries map[string]Entry
	now     func() time.Time
	mu      sync.RWMutex
	saveMu  sync.Mutex
}

func New(path string) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.entries); err != nil {
			logrus.WithError(err).WithField("path", path).Warn("Cache: ignoring corrupt cache file")
			c.entries = make(map[string]Entry)
		}
	}
	return c, nil
}

// Get returns the cached page for key. Expired entries are dropped.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if !entry.expired(c.now()) {
		return entry, true
	}

	c.mu.Lock()
	if e, exists := c.entries[key]; exists && e.expired(c.now()) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return Entry{}, false
}

// Put stores a page body and persists the cache.
func (c *Cache) Put(key, body string, status int, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = Entry{
		Body:      body,
		Status:    status,
		Timestamp: c.now(),
		TTL:       ttl,
	}
	c.mu.Unlock()
	return c.save()
}

// Len counts entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune drops every expired entry and reports how many went.
func (c *Cache) Prune() (int, error) {
	now := c.now()
	removed := 0
	c.mu.Lock()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	if removed == 0 {
		return 0, nil
	}
	return removed, c.save()
}

// Clear removes all cache entries and persists the empty cache.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	return c.save()
}

func (c *Cache) save() error {
	if c.path == "" {
		return nil
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	if dir := filepath.Dir(c.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	c.mu.RLock()
	data, err := json.Marshal(c.entries)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// BuildKey joins key parts with "|".
func BuildKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// PageKey is the key for a fetched page.
func PageKey(kind, url string) string {
	return BuildKey("page", kind, url)
}
