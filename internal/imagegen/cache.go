package imagegen

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/hazardmap/internal/hazard"
)

// Cache stores generated banners on disk, one file per hazard level.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates the cache directory. Banners older than maxAge are regenerated.
func NewCache(dir string, maxAge time.Duration) *Cache {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("imagegen: create cache dir: %v", err)
	}
	return &Cache{dir: dir, maxAge: maxAge}
}

func (c *Cache) path(level hazard.Level) string {
	return filepath.Join(c.dir, fmt.Sprintf("hazard_%s.png", level.Slug()))
}

// Get returns a cached banner unless it is missing or stale.
func (c *Cache) Get(level hazard.Level) ([]byte, bool) {
	path := c.path(level)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) Set(level hazard.Level, data []byte) error {
	return os.WriteFile(c.path(level), data, 0o644)
}

// GetAny returns any cached banner regardless of age.
func (c *Cache) GetAny() ([]byte, bool) {
	for _, level := range c.List() {
		data, err := os.ReadFile(c.path(level))
		if err == nil {
			return data, true
		}
	}
	return nil, false
}

// List returns the levels that have a banner on disk.
func (c *Cache) List() []hazard.Level {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}
	present := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "hazard_") || filepath.Ext(name) != ".png" {
			continue
		}
		present[strings.TrimSuffix(strings.TrimPrefix(name, "hazard_"), ".png")] = true
	}
	var levels []hazard.Level
	for _, b := range hazard.Legend {
		if present[b.Level.Slug()] {
			levels = append(levels, b.Level)
		}
	}
	return levels
}
