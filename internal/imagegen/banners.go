package imagegen

import (
	"context"
	"errors"
	"sync"

	"github.com/lox/hazardmap/internal/hazard"
)

// ErrDisabled is returned when no generator is configured and nothing is cached.
var ErrDisabled = errors.New("banner generation disabled")

// BannerGenerator renders one banner image.
type BannerGenerator interface {
	Generate(ctx context.Context, level hazard.Level) ([]byte, error)
}

// Banners serves cached banners, generating at most one at a time.
type Banners struct {
	gen   BannerGenerator // nil when disabled
	cache *Cache
	mu    sync.Mutex
}

func NewBanners(gen BannerGenerator, cache *Cache) *Banners {
	return &Banners{gen: gen, cache: cache}
}

func (b *Banners) Enabled() bool {
	return b.gen != nil
}

// Cached returns the banner for level, or any banner when that one is missing.
func (b *Banners) Cached(level hazard.Level) ([]byte, bool) {
	if data, ok := b.cache.Get(level); ok {
		return data, true
	}
	return b.cache.GetAny()
}

// Ensure returns a fresh banner for level, generating it if needed.
func (b *Banners) Ensure(ctx context.Context, level hazard.Level) ([]byte, error) {
	if data, ok := b.cache.Get(level); ok {
		return data, nil
	}
	if b.gen == nil {
		if data, ok := b.cache.GetAny(); ok {
			return data, nil
		}
		return nil, ErrDisabled
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if data, ok := b.cache.Get(level); ok {
		return data, nil
	}
	data, err := b.gen.Generate(ctx, level)
	if err != nil {
		return nil, err
	}
	if err := b.cache.Set(level, data); err != nil {
		return data, err
	}
	return data, nil
}
