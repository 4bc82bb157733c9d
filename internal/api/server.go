package api

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/hazardmap/internal/imagegen"
	"github.com/lox/hazardmap/internal/models"
	"github.com/lox/hazardmap/internal/status"
	"github.com/lox/hazardmap/internal/tilecache"
	"github.com/lox/hazardmap/internal/viewer"
)

const (
	siteName   = "LHASA Hazard Map"
	cookieName = "hazardmap"
)

// Backend is what the server calls directly, outside any session.
type Backend interface {
	viewer.StatisticsSource
	Bounds(ctx context.Context, tif string) (models.Bounds, error)
	Download(ctx context.Context) error
}

// TileSource serves overlay tiles.
type TileSource interface {
	Tile(ctx context.Context, tif string, z, x, y int) (tilecache.Tile, error)
}

// StatusHistory is the stored record of backend checks. Optional.
type StatusHistory interface {
	Ping() error
	Uptime(since time.Time) (float64, int, error)
}

type Config struct {
	Sessions      *viewer.Manager
	Backend       Backend
	Monitor       *status.Monitor
	Tiles         TileSource
	Banners       *imagegen.Banners // optional
	History       StatusHistory     // optional
	SessionSecret string
	SessionTTL    time.Duration
	// ServeMetrics mounts /metrics on the main handler.
	ServeMetrics bool
	Clock        clockwork.Clock
}

type Server struct {
	cfg        Config
	clock      clockwork.Clock
	tmpl       *template.Template
	cookies    *sessions.CookieStore
	shareCards *imagegen.ShareCardCache
}

func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	key := []byte(cfg.SessionSecret)
	if len(key) == 0 {
		log.Println("api: SESSION_SECRET not set, sessions will not survive a restart")
		key = securecookie.GenerateRandomKey(32)
	}
	cookies := sessions.NewCookieStore(key)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		cfg:        cfg,
		clock:      cfg.Clock,
		tmpl:       newTemplates(),
		cookies:    cookies,
		shareCards: imagegen.NewShareCardCache(5 * time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/about", s.handleAbout)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("POST /select", s.handleSelect)
	mux.HandleFunc("POST /view", s.handleView)
	mux.HandleFunc("POST /download", s.handleDownload)
	mux.HandleFunc("POST /reload", s.handleReload)

	mux.HandleFunc("/partials/statistics", s.handleStatisticsPartial)
	mux.HandleFunc("/partials/status", s.handleStatusPartial)
	mux.HandleFunc("/partials/forecast", s.handleForecastPartial)
	mux.HandleFunc("/partials/map", s.handleMapPartial)
	mux.HandleFunc("/partials/calendar", s.handleCalendarPartial)

	mux.HandleFunc("/api/files", s.handleAPIFiles)
	mux.HandleFunc("/api/bounds", s.handleAPIBounds)
	mux.HandleFunc("/api/statistics", s.handleAPIStatistics)
	mux.HandleFunc("/api/countries", s.handleAPICountries)
	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/session", s.handleAPISession)

	mux.HandleFunc("GET /tiles/{z}/{x}/{y}", s.handleTile)
	mux.HandleFunc("/og-image.png", s.handleOGImage)
	mux.HandleFunc("/hazard-image", s.handleHazardImage)

	if s.cfg.ServeMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// session returns the caller's dashboard session, issuing a cookie for new ones.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *viewer.Session {
	cs, err := s.cookies.Get(r, cookieName)
	if err != nil {
		// Signed with an old key; a fresh cookie replaces it.
		log.Printf("api: decode session cookie: %v", err)
	}
	id, _ := cs.Values["id"].(string)
	vs, _ := s.cfg.Sessions.GetOrCreate(id)
	if vs.ID != id {
		cs.Values["id"] = vs.ID
		if err := cs.Save(r, w); err != nil {
			log.Printf("api: save session cookie: %v", err)
		}
	}
	return vs
}

// loadedSession is session plus a synchronous registry load. A failed load is
// not retried here.
func (s *Server) loadedSession(w http.ResponseWriter, r *http.Request) *viewer.Session {
	vs := s.session(w, r)
	vs.Load()
	return vs
}
