package api

import (
	"encoding/json"
	"html/template"
	"log"
	"time"

	"github.com/lox/hazardmap/internal/hazard"
	"github.com/lox/hazardmap/internal/models"
	"github.com/lox/hazardmap/internal/status"
	"github.com/lox/hazardmap/internal/viewer"
)

// PageData is the full dashboard page.
type PageData struct {
	SiteName   string
	Title      string
	Theme      string
	Palette    hazard.Palette
	Notice     string
	NoticeErr  bool
	LoadError  string
	Selection  SelectionData
	Status     StatusData
	Map        MapData
	Calendar   CalendarData
	Statistics StatisticsData
	Forecast   ForecastData
}

type SelectionData struct {
	State      string
	Date       string
	ActiveDate string
	ActiveFile string
	Error      string
}

type StatusData struct {
	Status    models.BackendStatus
	Label     string
	CheckedAt time.Time
	LatencyMS int64
	Error     string
	Uptime    float64
	HasUptime bool
}

type BasemapOption struct {
	ID       string
	Name     string
	Selected bool
}

type LegendEntry struct {
	Label  string
	Range  string
	Color  template.CSS
	Active bool
}

type MapData struct {
	ViewJSON    template.JS
	Basemaps    []BasemapOption
	Opacity     float64
	Theme       string
	BoundsError string
	LegendTitle string
	Legend      []LegendEntry
	HasOverlay  bool
}

type CalendarData struct {
	viewer.CalendarMonth
	Weekdays []string
}

type StatisticsData struct {
	Title   string
	Tooltip string
	Date    string
	Loading bool
	Empty   bool
	Error   string
	Metrics []hazard.Metric
	Summary string
	Level   string
	Color   template.CSS
	Poll    bool
}

type ForecastData struct {
	Country        string
	Countries      []models.Country
	CountriesError string
	Loading        bool
	Error          string
	HasPlot        bool
	PlotJSON       template.JS
	Poll           bool
}

// SessionJSON is the /api/session payload the map script polls.
type SessionJSON struct {
	SessionID   string         `json:"sessionId"`
	LoadState   string         `json:"loadState"`
	LoadError   string         `json:"loadError,omitempty"`
	Selection   SelectionJSON  `json:"selection"`
	Map         viewer.MapView `json:"map"`
	BoundsError string         `json:"boundsError,omitempty"`
	Busy        bool           `json:"busy"`
}

type SelectionJSON struct {
	State        string `json:"state"`
	SelectedDate string `json:"selectedDate,omitempty"`
	ActiveDate   string `json:"activeDate,omitempty"`
	ActiveFile   string `json:"activeFile,omitempty"`
	Error        string `json:"error,omitempty"`
}

func loadStateName(s viewer.LoadState) string {
	switch s {
	case viewer.LoadLoading:
		return "loading"
	case viewer.LoadReady:
		return "ready"
	case viewer.LoadFailed:
		return "failed"
	default:
		return "idle"
	}
}

func newSelectionData(sel viewer.Selection) SelectionData {
	return SelectionData{
		State:      sel.State.String(),
		Date:       sel.SelectedDate,
		ActiveDate: sel.ActiveDate,
		ActiveFile: sel.ActiveFile,
		Error:      sel.Err,
	}
}

func newSessionJSON(v viewer.View) SessionJSON {
	return SessionJSON{
		SessionID: v.SessionID,
		LoadState: loadStateName(v.LoadState),
		LoadError: v.LoadError,
		Selection: SelectionJSON{
			State:        v.Selection.State.String(),
			SelectedDate: v.Selection.SelectedDate,
			ActiveDate:   v.Selection.ActiveDate,
			ActiveFile:   v.Selection.ActiveFile,
			Error:        v.Selection.Err,
		},
		Map:         v.Map,
		BoundsError: v.BoundsError,
		Busy:        v.Busy(),
	}
}

func newMapData(v viewer.View) MapData {
	raw, err := json.Marshal(newSessionJSON(v))
	if err != nil {
		log.Printf("api: encode map view: %v", err)
		raw = []byte("{}")
	}

	var active *hazard.Band
	if p, ok := hazard.Headline(v.Statistics.Stats); ok && v.Statistics.State == viewer.PanelReady {
		b := hazard.BandFor(hazard.Classify(p))
		active = &b
	}

	md := MapData{
		ViewJSON:    template.JS(raw),
		Opacity:     v.ViewState.Opacity,
		Theme:       v.Theme,
		BoundsError: v.BoundsError,
		LegendTitle: hazard.LegendTitle,
		HasOverlay:  v.Map.Overlay != nil,
	}
	for _, b := range viewer.Basemaps {
		md.Basemaps = append(md.Basemaps, BasemapOption{
			ID:       b.ID,
			Name:     b.Name,
			Selected: b.ID == v.Map.Basemap.ID,
		})
	}
	for _, b := range hazard.Legend {
		md.Legend = append(md.Legend, LegendEntry{
			Label:  b.Label,
			Range:  b.Range(),
			Color:  template.CSS(b.CSS()),
			Active: active != nil && active.Level == b.Level,
		})
	}
	return md
}

func newStatisticsData(v viewer.View) StatisticsData {
	p := v.Statistics
	sd := StatisticsData{
		Title:   hazard.PanelTitle,
		Tooltip: hazard.PanelTooltip,
		Date:    p.Date,
		Poll:    p.State == viewer.PanelLoading,
	}
	switch p.State {
	case viewer.PanelLoading:
		sd.Loading = true
	case viewer.PanelError:
		sd.Error = p.Err
	case viewer.PanelReady:
		sd.Metrics = hazard.Metrics(p.Stats)
		sd.Summary = hazard.Summarize(p.Date, p.Stats)
		if h, ok := hazard.Headline(p.Stats); ok {
			b := hazard.BandFor(hazard.Classify(h))
			sd.Level = b.Label
			sd.Color = template.CSS(b.CSS())
		}
	default:
		sd.Empty = true
	}
	return sd
}

func newForecastData(v viewer.View) ForecastData {
	p := v.Forecast
	fd := ForecastData{
		Country:        v.Country,
		Countries:      v.Countries,
		CountriesError: v.CountriesError,
		Loading:        p.State == viewer.PanelLoading,
		Error:          p.Err,
		Poll:           p.State == viewer.PanelLoading,
	}
	if p.State == viewer.PanelReady && p.Plot != nil {
		raw, err := json.Marshal(p.Plot)
		if err != nil {
			log.Printf("api: encode forecast plot: %v", err)
			return fd
		}
		fd.HasPlot = true
		fd.PlotJSON = template.JS(raw)
	}
	return fd
}

func newCalendarData(v viewer.View, month string, today time.Time) CalendarData {
	def := today
	if sel := v.Selection.SelectedDate; sel != "" {
		if t, err := time.Parse(models.DateLayout, sel); err == nil {
			def = t
		}
	} else if latest, ok := v.Registry.Latest(); ok {
		def, _ = time.Parse(models.DateLayout, latest)
	}
	m := viewer.ParseMonth(month, def)
	return CalendarData{
		CalendarMonth: viewer.BuildCalendar(v.Registry, m, v.Selection.SelectedDate, today),
		Weekdays:      viewer.Weekdays,
	}
}

func (s *Server) statusData() StatusData {
	c := s.cfg.Monitor.Current()
	sd := StatusData{
		Status:    c.Status,
		Label:     status.Label(c.Status),
		CheckedAt: c.CheckedAt,
		LatencyMS: c.LatencyMS,
		Error:     c.Error,
	}
	if s.cfg.History != nil {
		uptime, n, err := s.cfg.History.Uptime(s.clock.Now().Add(-24 * time.Hour))
		if err != nil {
			log.Printf("api: uptime: %v", err)
		} else if n > 0 {
			sd.Uptime = uptime
			sd.HasUptime = true
		}
	}
	return sd
}

func (s *Server) pageData(v viewer.View, month string) PageData {
	return PageData{
		SiteName:   siteName,
		Title:      siteName,
		Theme:      v.Theme,
		Palette:    hazard.PaletteFor(v.Theme),
		LoadError:  v.LoadError,
		Selection:  newSelectionData(v.Selection),
		Status:     s.statusData(),
		Map:        newMapData(v),
		Calendar:   newCalendarData(v, month, s.clock.Now()),
		Statistics: newStatisticsData(v),
		Forecast:   newForecastData(v),
	}
}

// notices maps the ?notice= codes set by form redirects to messages.
var notices = map[string]struct {
	text string
	err  bool
}{
	"download-ok":     {"Forecast data refreshed from NASA LHASA.", false},
	"download-failed": {"Data download failed. Try again later.", true},
	"reloaded":        {"Forecast list reloaded.", false},
	"invalid-view":    {"That map setting is not supported.", true},
}
