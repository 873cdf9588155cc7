package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/anushabukke/peerBench-sub002/internal/models"
)

// Cache stores forwarded responses on disk so identical requests are not
// sent to a provider twice.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a cache rooted at dir. An empty dir disables caching.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// KeyInput is everything that can change a model's answer.
type KeyInput struct {
	Provider      string
	Model         string
	SystemPrompt  string
	PromptCID     string
	Temperature   *float64
	MaxTokens     int
	ProviderExtra string
}

// Key returns the hex sha256 of the request identity.
func Key(in KeyInput) string {
	h := sha256.New()
	writeString(h, in.Provider)
	writeString(h, in.Model)
	writeString(h, in.SystemPrompt)
	writeString(h, in.PromptCID)
	if in.Temperature != nil {
		writeString(h, strconv.FormatFloat(*in.Temperature, 'g', -1, 64))
	} else {
		writeString(h, "default")
	}
	writeString(h, strconv.Itoa(in.MaxTokens))
	writeString(h, in.ProviderExtra)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key. Unreadable entries are misses.
func (c *Cache) Get(key string) (*models.PromptResponse, bool) {
	if c == nil || c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		return nil, false
	}

	var resp models.PromptResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

// Put stores resp under key.
func (c *Cache) Put(key string, resp *models.PromptResponse) error {
	if c == nil || c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}

	tmp := c.cachePath(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, c.cachePath(key)); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Clear removes all cached responses. It refuses to delete a directory that
// holds anything other than cache entries.
func (c *Cache) Clear() error {
	if c == nil || c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
		}
		if filepath.Ext(entry.Name()) != ".json" {
			return fmt.Errorf("cache directory contains non-cache files - refusing to delete for safety")
		}
	}

	return os.RemoveAll(c.dir)
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// writeString writes s with a NUL delimiter so adjacent fields cannot
// collide.
func writeString(w io.Writer, s string) {
	_, _ = w.Write([]byte(s + "\x00"))
}
