package viewer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lox/hazardmap/internal/config"
	"github.com/lox/hazardmap/internal/models"
)

// Backend is the subset of the LHASA API a session reads from.
type Backend interface {
	Files(ctx context.Context) (map[string]models.FileInfo, error)
	Countries(ctx context.Context) ([]models.Country, error)
	Bounds(ctx context.Context, tif string) (models.Bounds, error)
	Statistics(ctx context.Context, tif string) (*models.Statistics, error)
	Forecast(ctx context.Context, nutsID, tif string) (*models.ForecastPlot, error)
}

type LoadState int

const (
	LoadIdle LoadState = iota
	LoadLoading
	LoadReady
	LoadFailed
)

type PanelState int

const (
	PanelEmpty PanelState = iota
	PanelLoading
	PanelReady
	PanelError
)

// User-facing messages.
const (
	msgFilesError     = "Error fetching available forecast files"
	msgCountriesError = "Error fetching countries data"
	msgStatsError     = "Error fetching statistics"
	msgForecastError  = "Error fetching forecast plot"
	msgBoundsError    = "Could not load the extent of this forecast"
	msgNoFiles        = "Forecast files are unavailable"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type StatisticsPanel struct {
	State PanelState
	Date  string
	File  string
	Stats *models.Statistics
	Err   string
}

type ForecastPanel struct {
	State   PanelState
	Country string
	File    string
	Plot    *models.ForecastPlot
	Err     string
}

// Options configures a new session.
type Options struct {
	BoundsPolicy config.BoundsPolicy
	View         ViewState
	Country      string
	// TileURL maps a raster file to the overlay tile template.
	TileURL func(tif string) string
}

// Session is one browser's dashboard state. All fields are guarded by mu and
// fetches run on goroutines bound to the session's base context.
type Session struct {
	ID string

	backend Backend
	ctx     context.Context
	opts    Options

	mu sync.Mutex
	wg sync.WaitGroup

	loadState    LoadState
	loadErr      string
	registry     *Registry
	countries    []models.Country
	countriesErr string
	restoredDate string

	selection Selection
	view      ViewState
	theme     string
	country   string

	fit           *RasterFit
	boundsErr     string
	boundsPending bool

	bounds   guard
	stats    guard
	forecast guard

	statsPanel    StatisticsPanel
	forecastPanel ForecastPanel

	lastSeen time.Time
}

// NewSession creates an unloaded session. ctx bounds every background fetch.
func NewSession(ctx context.Context, id string, backend Backend, opts Options, now time.Time) *Session {
	if opts.TileURL == nil {
		opts.TileURL = func(tif string) string { return "/tiles/{z}/{x}/{y}.png?tif=" + tif }
	}
	if opts.BoundsPolicy == "" {
		opts.BoundsPolicy = config.BoundsSilent
	}
	return &Session{
		ID:       id,
		backend:  backend,
		ctx:      ctx,
		opts:     opts,
		view:     opts.View,
		theme:    ThemeLight,
		country:  opts.Country,
		bounds:   newGuard("bounds"),
		stats:    newGuard("statistics"),
		forecast: newGuard("forecast"),
		lastSeen: now,
	}
}

// Load fetches the file registry and country list once, under the session's
// base context. On success the most recent date is selected unless the user
// already picked one. Only the first call fetches; a failed load stays failed
// until Reload.
func (s *Session) Load() {
	s.mu.Lock()
	if s.loadState != LoadIdle {
		s.mu.Unlock()
		return
	}
	s.loadState = LoadLoading
	s.loadErr = ""
	s.mu.Unlock()

	files, err := s.backend.Files(s.ctx)
	countries, cerr := s.backend.Countries(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cerr != nil {
		log.Printf("session %s: fetch countries: %v", shortID(s.ID), cerr)
		s.countriesErr = msgCountriesError
	} else {
		s.countries = countries
		s.countriesErr = ""
	}

	if err != nil {
		log.Printf("session %s: fetch files: %v", shortID(s.ID), err)
		s.loadState = LoadFailed
		s.loadErr = msgFilesError
		s.registry = nil
		if s.selection.State == DateSelectedPendingResolution {
			s.selection.State = DateSelectedUnavailable
			s.selection.Err = msgNoFiles
		}
		return
	}

	s.registry = NewRegistry(files)
	s.loadState = LoadReady

	var date string
	switch {
	case s.selection.State == DateSelectedPendingResolution:
		date = s.selection.SelectedDate
	case s.restoredDate != "" && s.registry.Has(s.restoredDate):
		date = s.restoredDate
	case s.selection.State == DateResolvedActive && s.registry.Has(s.selection.SelectedDate):
		date = s.selection.SelectedDate
	default:
		date, _ = s.registry.Latest()
	}
	s.restoredDate = ""

	if date == "" {
		s.clearActiveLocked(Selection{State: NoDateSelected})
		return
	}
	s.selectLocked(date)
}

// Reload discards a failed or stale registry and loads it again.
func (s *Session) Reload() {
	s.mu.Lock()
	if s.loadState == LoadLoading {
		s.mu.Unlock()
		return
	}
	s.loadState = LoadIdle
	s.mu.Unlock()
	s.Load()
}

// Select changes the selected date. Re-selecting the active date is a no-op.
func (s *Session) Select(date string) Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectLocked(date)
	return s.selection
}

func (s *Session) selectLocked(date string) {
	sel := Resolve(s.registry, date)
	if sel.State == DateSelectedPendingResolution && s.loadState == LoadFailed {
		sel.State = DateSelectedUnavailable
		sel.Err = msgNoFiles
	}

	if sel.State != DateResolvedActive {
		s.clearActiveLocked(sel)
		return
	}

	prev := s.selection
	s.selection = sel
	if prev.State == DateResolvedActive && prev.ActiveFile == sel.ActiveFile {
		s.statsPanel.Date = sel.ActiveDate
		return
	}
	s.startFetchesLocked(sel)
}

// clearActiveLocked drops the active file and everything derived from it.
func (s *Session) clearActiveLocked(sel Selection) {
	s.selection = sel
	s.bounds.invalidate()
	s.stats.invalidate()
	s.forecast.invalidate()
	s.boundsPending = false
	s.boundsErr = ""
	s.statsPanel = StatisticsPanel{}
	s.forecastPanel = ForecastPanel{Country: s.country}
}

// startFetchesLocked issues the per-file requests. The active file is already
// set on s.selection when this runs.
func (s *Session) startFetchesLocked(sel Selection) {
	file := sel.ActiveFile

	bt := s.bounds.issue(file)
	s.boundsPending = true
	s.boundsErr = ""

	st := s.stats.issue(file)
	s.statsPanel = StatisticsPanel{State: PanelLoading, Date: sel.ActiveDate, File: file}

	s.wg.Add(2)
	go s.fetchBounds(bt)
	go s.fetchStatistics(st)

	s.startForecastLocked()
}

func (s *Session) startForecastLocked() {
	file := s.selection.ActiveFile
	if s.country == "" || file == "" {
		s.forecast.invalidate()
		s.forecastPanel = ForecastPanel{Country: s.country}
		return
	}
	ft := s.forecast.issue(s.country + "|" + file)
	s.forecastPanel = ForecastPanel{State: PanelLoading, Country: s.country, File: file}
	s.wg.Add(1)
	go s.fetchForecast(ft, s.country, file)
}

func (s *Session) fetchBounds(t ticket) {
	defer s.wg.Done()
	b, err := s.backend.Bounds(s.ctx, t.key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bounds.accept(t) {
		return
	}
	s.boundsPending = false
	if err != nil {
		log.Printf("session %s: bounds %s: %v", shortID(s.ID), t.key, err)
		if s.opts.BoundsPolicy == config.BoundsSurface {
			s.boundsErr = msgBoundsError
		}
		return
	}
	s.fit = &RasterFit{File: t.key, LatLngBounds: FitBounds(b)}
	s.boundsErr = ""
}

func (s *Session) fetchStatistics(t ticket) {
	defer s.wg.Done()
	stats, err := s.backend.Statistics(s.ctx, t.key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stats.accept(t) {
		return
	}
	if err != nil {
		log.Printf("session %s: statistics %s: %v", shortID(s.ID), t.key, err)
		s.statsPanel.State = PanelError
		s.statsPanel.Err = msgStatsError
		s.statsPanel.Stats = nil
		return
	}
	s.statsPanel.State = PanelReady
	s.statsPanel.Stats = stats
	s.statsPanel.Err = ""
}

func (s *Session) fetchForecast(t ticket, country, file string) {
	defer s.wg.Done()
	plot, err := s.backend.Forecast(s.ctx, country, file)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.forecast.accept(t) {
		return
	}
	if err != nil {
		log.Printf("session %s: forecast %s %s: %v", shortID(s.ID), country, file, err)
		s.forecastPanel.State = PanelError
		s.forecastPanel.Err = msgForecastError
		return
	}
	s.forecastPanel.State = PanelReady
	s.forecastPanel.Plot = plot
}

// SetView updates the basemap and overlay opacity. Neither triggers a fetch.
func (s *Session) SetView(v ViewState) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	return nil
}

func (s *Session) SetTheme(theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("unknown theme %q", theme)
	}
	s.mu.Lock()
	s.theme = theme
	s.mu.Unlock()
	return nil
}

// SetCountry picks the region for the forecast plot and refetches it.
func (s *Session) SetCountry(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code != "" && len(s.countries) > 0 && !hasCountry(s.countries, code) {
		return fmt.Errorf("unknown country %q", code)
	}
	if code == s.country && s.forecastPanel.State != PanelError && s.forecastPanel.File == s.selection.ActiveFile {
		return nil
	}
	s.country = code
	s.startForecastLocked()
	return nil
}

func hasCountry(countries []models.Country, code string) bool {
	for _, c := range countries {
		if c.Code == code {
			return true
		}
	}
	return false
}

// View is a consistent copy of a session for rendering.
type View struct {
	SessionID      string
	LoadState      LoadState
	LoadError      string
	Registry       *Registry
	Selection      Selection
	Map            MapView
	ViewState      ViewState
	BoundsError    string
	BoundsPending  bool
	Statistics     StatisticsPanel
	Forecast       ForecastPanel
	Countries      []models.Country
	CountriesError string
	Country        string
	Theme          string
}

// Busy reports whether any fetch is still outstanding.
func (v View) Busy() bool {
	return v.LoadState == LoadLoading ||
		v.Selection.State == DateSelectedPendingResolution ||
		v.BoundsPending ||
		v.Statistics.State == PanelLoading ||
		v.Forecast.State == PanelLoading
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	countries := make([]models.Country, len(s.countries))
	copy(countries, s.countries)
	return View{
		SessionID:      s.ID,
		LoadState:      s.loadState,
		LoadError:      s.loadErr,
		Registry:       s.registry,
		Selection:      s.selection,
		Map:            ComposeMapView(s.selection.ActiveFile, s.view, s.fit, s.opts.TileURL),
		ViewState:      s.view,
		BoundsError:    s.boundsErr,
		BoundsPending:  s.boundsPending,
		Statistics:     s.statsPanel,
		Forecast:       s.forecastPanel,
		Countries:      countries,
		CountriesError: s.countriesErr,
		Country:        s.country,
		Theme:          s.theme,
	}
}

// Preferences returns the state worth persisting across restarts.
func (s *Session) Preferences(now time.Time) models.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Preferences{
		SessionID:    s.ID,
		Basemap:      s.view.Basemap,
		Opacity:      s.view.Opacity,
		Country:      s.country,
		Theme:        s.theme,
		SelectedDate: s.selection.SelectedDate,
		UpdatedAt:    now,
	}
}

// Restore applies saved preferences to a session that has not loaded yet.
// Invalid values are ignored.
func (s *Session) Restore(p models.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := ViewState{Basemap: p.Basemap, Opacity: p.Opacity}
	if v.Validate() == nil {
		s.view = v
	}
	if p.Theme == ThemeLight || p.Theme == ThemeDark {
		s.theme = p.Theme
	}
	if p.Country != "" {
		s.country = p.Country
	}
	s.restoredDate = p.SelectedDate
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Wait blocks until every background fetch has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
