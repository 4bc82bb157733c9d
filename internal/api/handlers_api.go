package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/lox/hazardmap/internal/backend"
	"github.com/lox/hazardmap/internal/hazard"
	"github.com/lox/hazardmap/internal/models"
	"github.com/lox/hazardmap/internal/viewer"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// backendError maps a backend failure to a response code.
func backendError(w http.ResponseWriter, err error) {
	if errors.Is(err, backend.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusBadGateway, "backend unavailable")
}

type filesResponse struct {
	Dates  []string                   `json:"dates"`
	Latest string                     `json:"latest,omitempty"`
	Files  map[string]models.FileInfo `json:"files"`
	Error  string                     `json:"error,omitempty"`
}

// handleAPIFiles returns the caller's registry, newest date first.
func (s *Server) handleAPIFiles(w http.ResponseWriter, r *http.Request) {
	v := s.loadedSession(w, r).Snapshot()
	if v.LoadState == viewer.LoadFailed {
		writeJSON(w, http.StatusBadGateway, filesResponse{Dates: []string{}, Files: map[string]models.FileInfo{}, Error: v.LoadError})
		return
	}
	resp := filesResponse{Dates: v.Registry.Dates(), Files: make(map[string]models.FileInfo, v.Registry.Len())}
	if resp.Dates == nil {
		resp.Dates = []string{}
	}
	for _, d := range resp.Dates {
		info, _ := v.Registry.Lookup(d)
		resp.Files[d] = info
	}
	resp.Latest, _ = v.Registry.Latest()
	writeJSON(w, http.StatusOK, resp)
}

type boundsResponse struct {
	Bounds models.Bounds       `json:"bounds"`
	Fit    viewer.LatLngBounds `json:"fit"`
}

func (s *Server) handleAPIBounds(w http.ResponseWriter, r *http.Request) {
	tif := r.URL.Query().Get("tif")
	if tif == "" {
		writeError(w, http.StatusBadRequest, "tif is required")
		return
	}
	b, err := s.cfg.Backend.Bounds(r.Context(), tif)
	if err != nil {
		log.Printf("api: bounds %s: %v", tif, err)
		backendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boundsResponse{Bounds: b, Fit: viewer.FitBounds(b)})
}

type statisticsResponse struct {
	State      string             `json:"state"`
	Date       string             `json:"date,omitempty"`
	File       string             `json:"file,omitempty"`
	Statistics *models.Statistics `json:"statistics,omitempty"`
	Level      string             `json:"level,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func panelStateName(p viewer.PanelState) string {
	switch p {
	case viewer.PanelLoading:
		return "loading"
	case viewer.PanelReady:
		return "ready"
	case viewer.PanelError:
		return "error"
	default:
		return "empty"
	}
}

// handleAPIStatistics reports the statistics panel for the caller's active file.
func (s *Server) handleAPIStatistics(w http.ResponseWriter, r *http.Request) {
	p := s.loadedSession(w, r).Snapshot().Statistics
	resp := statisticsResponse{
		State:      panelStateName(p.State),
		Date:       p.Date,
		File:       p.File,
		Statistics: p.Stats,
		Error:      p.Err,
	}
	if p.State == viewer.PanelReady {
		if h, ok := hazard.Headline(p.Stats); ok {
			resp.Level = hazard.Classify(h).Slug()
		}
		resp.Summary = hazard.Summarize(p.Date, p.Stats)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPICountries(w http.ResponseWriter, r *http.Request) {
	v := s.loadedSession(w, r).Snapshot()
	if v.CountriesError != "" {
		writeError(w, http.StatusBadGateway, v.CountriesError)
		return
	}
	countries := v.Countries
	if countries == nil {
		countries = []models.Country{}
	}
	writeJSON(w, http.StatusOK, countries)
}

type statusResponse struct {
	Status    models.BackendStatus `json:"status"`
	Label     string               `json:"label"`
	CheckedAt *time.Time           `json:"checked_at,omitempty"`
	LatencyMS int64                `json:"latency_ms"`
	Error     string               `json:"error,omitempty"`
	Uptime24h *float64             `json:"uptime_24h,omitempty"`
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	sd := s.statusData()
	resp := statusResponse{
		Status:    sd.Status,
		Label:     sd.Label,
		LatencyMS: sd.LatencyMS,
		Error:     sd.Error,
	}
	if !sd.CheckedAt.IsZero() {
		resp.CheckedAt = &sd.CheckedAt
	}
	if sd.HasUptime {
		resp.Uptime24h = &sd.Uptime
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPISession(w http.ResponseWriter, r *http.Request) {
	v := s.loadedSession(w, r).Snapshot()
	writeJSON(w, http.StatusOK, newSessionJSON(v))
}

type healthResponse struct {
	Status   string               `json:"status"`
	Backend  models.BackendStatus `json:"backend"`
	Database string               `json:"database,omitempty"`
	Sessions int                  `json:"sessions"`
	Errors   []string             `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := healthResponse{
		Status:   "ok",
		Backend:  s.cfg.Monitor.Current().Status,
		Sessions: s.cfg.Sessions.Len(),
	}
	if health.Backend == models.StatusOffline {
		health.Status = "degraded"
	}
	if s.cfg.History != nil {
		health.Database = "ok"
		if err := s.cfg.History.Ping(); err != nil {
			health.Database = "error"
			health.Errors = append(health.Errors, "database: "+err.Error())
			health.Status = "error"
		}
	}

	code := http.StatusOK
	if health.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}
