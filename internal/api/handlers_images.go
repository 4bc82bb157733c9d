package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lox/hazardmap/internal/hazard"
	"github.com/lox/hazardmap/internal/imagegen"
	"github.com/lox/hazardmap/internal/viewer"
)

const maxTileZoom = 24

// handleTile proxies /tiles/{z}/{x}/{y}.png?tif= through the tile cache.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	tif := r.URL.Query().Get("tif")
	z, zerr := strconv.Atoi(r.PathValue("z"))
	x, xerr := strconv.Atoi(r.PathValue("x"))
	yStr, hasExt := strings.CutSuffix(r.PathValue("y"), ".png")
	y, yerr := strconv.Atoi(yStr)
	if tif == "" || !hasExt || zerr != nil || xerr != nil || yerr != nil ||
		z < 0 || z > maxTileZoom || x < 0 || y < 0 || x >= 1<<z || y >= 1<<z {
		http.Error(w, "bad tile request", http.StatusBadRequest)
		return
	}

	t, err := s.cfg.Tiles.Tile(r.Context(), tif, z, x, y)
	if err != nil {
		log.Printf("api: tile %s %d/%d/%d: %v", tif, z, x, y, err)
		backendError(w, err)
		return
	}
	if len(t.Data) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ct := t.ContentType
	if ct == "" {
		ct = "image/png"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(t.Data)
}

// latestSummary describes the newest forecast for share cards and banners.
func (s *Server) latestSummary(ctx context.Context) imagegen.ShareCardData {
	data := imagegen.ShareCardData{SiteName: siteName}
	date, stats, err := viewer.LatestStatistics(ctx, s.cfg.Backend)
	if err != nil {
		log.Printf("api: latest statistics: %v", err)
	}
	data.Date = date
	if p, ok := hazard.Headline(stats); ok {
		data.Headline = p
		data.Level = hazard.Classify(p)
		data.HasStats = true
	}
	return data
}

// handleOGImage serves the Open Graph share card for the newest forecast.
func (s *Server) handleOGImage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	data := s.latestSummary(ctx)
	key := data.Date + "|" + data.Level.Slug()
	if img, ok := s.shareCards.Get(key); ok {
		servePNG(w, img, 300)
		return
	}

	var banner []byte
	if s.cfg.Banners != nil && data.HasStats {
		banner, _ = s.cfg.Banners.Cached(data.Level)
	}
	img, err := imagegen.GenerateShareCard(banner, data)
	if err != nil {
		log.Printf("api: og-image: %v", err)
		http.Error(w, "Failed to generate share card", http.StatusInternalServerError)
		return
	}
	s.shareCards.Set(key, img)
	servePNG(w, img, 300)
}

// handleHazardImage serves the banner for ?level=, defaulting to the newest
// forecast's level. A cached banner for another level is served while the
// right one generates in the background.
func (s *Server) handleHazardImage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Banners == nil {
		http.Error(w, "Hazard image service unavailable", http.StatusServiceUnavailable)
		return
	}

	var level hazard.Level
	if slug := r.URL.Query().Get("level"); slug != "" {
		l, ok := hazard.ParseLevel(slug)
		if !ok {
			http.Error(w, "unknown level", http.StatusBadRequest)
			return
		}
		level = l
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		data := s.latestSummary(ctx)
		cancel()
		level = data.Level
	}

	if data, ok := s.cfg.Banners.Cached(level); ok {
		if s.cfg.Banners.Enabled() {
			go s.generateBanner(level)
		}
		servePNG(w, data, 3600)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()
	data, err := s.cfg.Banners.Ensure(ctx, level)
	if err != nil {
		log.Printf("api: hazard-image %s: %v", level.Slug(), err)
		http.Error(w, "Hazard image service unavailable", http.StatusServiceUnavailable)
		return
	}
	servePNG(w, data, 3600)
}

// generateBanner fills the cache for level. Ensure returns at once when the
// banner is already fresh.
func (s *Server) generateBanner(level hazard.Level) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := s.cfg.Banners.Ensure(ctx, level); err != nil {
		log.Printf("api: background banner %s: %v", level.Slug(), err)
	}
}

func servePNG(w http.ResponseWriter, data []byte, maxAge int) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
	w.Write(data)
}
