package models

import (
	"encoding/json"
	"time"
)

// DateLayout is the ISO calendar date used as registry key.
const DateLayout = "2006-01-02"

// FileInfo describes the latest forecast raster published for one day.
type FileInfo struct {
	FileName string `json:"file_name" validate:"required"`
	Datetime string `json:"datetime"`
	Time     string `json:"time"`
}

type Country struct {
	Label string `json:"label" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

// Bounds is a raster extent as [minLon, minLat, maxLon, maxLat].
type Bounds [4]float64

func (b Bounds) MinLon() float64 { return b[0] }
func (b Bounds) MinLat() float64 { return b[1] }
func (b Bounds) MaxLon() float64 { return b[2] }
func (b Bounds) MaxLat() float64 { return b[3] }

// Valid reports whether the extent is within WGS84 range and not inverted.
func (b Bounds) Valid() bool {
	if b[0] < -180 || b[2] > 180 || b[1] < -90 || b[3] > 90 {
		return false
	}
	return b[0] <= b[2] && b[1] <= b[3]
}

// Statistics holds the scalar aggregates the backend computes for one raster band.
// Fields are pointers because the schema varies between deployments.
type Statistics struct {
	ValidPercent *float64 `json:"valid_percent,omitempty"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Mean         *float64 `json:"mean,omitempty"`
	Median       *float64 `json:"median,omitempty"`
	Std          *float64 `json:"std,omitempty"`
	Percentile2  *float64 `json:"percentile_2,omitempty"`
	Percentile98 *float64 `json:"percentile_98,omitempty"`
	Count        *float64 `json:"count,omitempty"`
	ValidPixels  *float64 `json:"valid_pixels,omitempty"`
	MaskedPixels *float64 `json:"masked_pixels,omitempty"`
}

// ForecastPlot is the chart payload returned by the backend, passed through untouched.
type ForecastPlot struct {
	Data   json.RawMessage `json:"data"`
	Layout json.RawMessage `json:"layout"`
	Config json.RawMessage `json:"config,omitempty"`
}

// BackendStatus mirrors the status chip states.
type BackendStatus string

const (
	StatusChecking BackendStatus = "checking"
	StatusOnline   BackendStatus = "online"
	StatusOffline  BackendStatus = "offline"
)

// StatusCheck is one health probe of the backend.
type StatusCheck struct {
	ID        int64
	CheckedAt time.Time
	Status    BackendStatus
	LatencyMS int64
	Error     string
}

// FetchRun represents a single backend call for auditing.
type FetchRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        time.Time
	Endpoint          string // "files", "bounds", "statistics", ...
	RasterFile        string
	HTTPStatus        int
	ResponseSizeBytes int
	Attempts          int
	Success           bool
	ErrorMessage      string
}

// Preferences are the per-session view settings kept across restarts.
type Preferences struct {
	SessionID    string
	Basemap      string
	Opacity      float64
	Country      string
	Theme        string
	SelectedDate string
	UpdatedAt    time.Time
}
