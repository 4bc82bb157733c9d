// Package tilecache proxies hazard overlay tiles with a memory and disk cache.
package tilecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lox/hazardmap/internal/metrics"
)

const fetchTimeout = 30 * time.Second

// Fetcher loads a tile from the backend.
type Fetcher interface {
	Tile(ctx context.Context, tif string, z, x, y int) ([]byte, string, error)
}

// Tile is an encoded tile image.
type Tile struct {
	Data        []byte
	ContentType string
}

// Cache wraps a Fetcher. Memory is checked first, then disk, then the backend.
// Concurrent misses for the same tile share one backend request.
type Cache struct {
	inner  Fetcher
	mem    *lruCache
	dir    string
	maxAge time.Duration
	group  singleflight.Group
}

// New creates a cache. An empty dir disables the disk layer.
func New(inner Fetcher, dir string, maxAge time.Duration, maxEntries int) *Cache {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("tiles: create cache dir: %v", err)
			dir = ""
		}
	}
	return &Cache{
		inner:  inner,
		mem:    newLRUCache(maxEntries),
		dir:    dir,
		maxAge: maxAge,
	}
}

func key(tif string, z, x, y int) string {
	return fmt.Sprintf("%s/%d/%d/%d", tif, z, x, y)
}

// Tile returns the tile, fetching and caching it on a miss.
func (c *Cache) Tile(ctx context.Context, tif string, z, x, y int) (Tile, error) {
	k := key(tif, z, x, y)
	if t, ok := c.mem.get(k); ok {
		metrics.TileCacheTotal.WithLabelValues("memory", "hit").Inc()
		return t, nil
	}
	metrics.TileCacheTotal.WithLabelValues("memory", "miss").Inc()

	if t, ok := c.readDisk(tif, z, x, y); ok {
		metrics.TileCacheTotal.WithLabelValues("disk", "hit").Inc()
		c.mem.put(k, t)
		return t, nil
	}
	if c.dir != "" {
		metrics.TileCacheTotal.WithLabelValues("disk", "miss").Inc()
	}

	ch := c.group.DoChan(k, func() (any, error) {
		// The shared fetch outlives any one caller giving up.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		data, contentType, err := c.inner.Tile(fctx, tif, z, x, y)
		if err != nil {
			return Tile{}, err
		}
		t := Tile{Data: data, ContentType: contentType}
		// Empty bodies are not cached so transient gaps can be retried.
		if len(data) > 0 {
			c.mem.put(k, t)
			c.writeDisk(tif, z, x, y, t)
		}
		return t, nil
	})
	select {
	case <-ctx.Done():
		return Tile{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Tile{}, res.Err
		}
		return res.Val.(Tile), nil
	}
}

// Len reports the number of tiles held in memory.
func (c *Cache) Len() int {
	return c.mem.len()
}

// Raster file names are hashed so they never form paths.
func (c *Cache) path(tif string, z, x, y int) string {
	sum := sha256.Sum256([]byte(tif))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8]), strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".png")
}

func (c *Cache) readDisk(tif string, z, x, y int) (Tile, bool) {
	if c.dir == "" {
		return Tile{}, false
	}
	path := c.path(tif, z, x, y)
	info, err := os.Stat(path)
	if err != nil {
		return Tile{}, false
	}
	if c.maxAge > 0 && time.Since(info.ModTime()) > c.maxAge {
		return Tile{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return Tile{}, false
	}
	return Tile{Data: data, ContentType: "image/png"}, true
}

func (c *Cache) writeDisk(tif string, z, x, y int, t Tile) {
	if c.dir == "" {
		return
	}
	path := c.path(tif, z, x, y)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("tiles: create dir: %v", err)
		return
	}
	if err := os.WriteFile(path, t.Data, 0o644); err != nil {
		log.Printf("tiles: write %s: %v", key(tif, z, x, y), err)
	}
}

// Prune removes disk tiles older than the max age and returns how many were deleted.
func (c *Cache) Prune() (int, error) {
	if c.dir == "" || c.maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-c.maxAge)
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}
