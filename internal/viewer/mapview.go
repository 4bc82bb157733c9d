package viewer

import (
	"fmt"

	"github.com/lox/hazardmap/internal/models"
)

// Basemap is a background tile layer.
type Basemap struct {
	ID          string
	Name        string
	URL         string
	Attribution string
}

var Basemaps = []Basemap{
	{
		ID:          "street",
		Name:        "Street",
		URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors",
	},
	{
		ID:          "satellite",
		Name:        "Satellite",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: "Tiles &copy; Esri",
	},
	{
		ID:          "dark",
		Name:        "Dark",
		URL:         "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors &copy; CARTO",
	},
	{
		ID:          "light",
		Name:        "Light",
		URL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors &copy; CARTO",
	},
}

// LookupBasemap finds a basemap by ID.
func LookupBasemap(id string) (Basemap, bool) {
	for _, b := range Basemaps {
		if b.ID == id {
			return b, true
		}
	}
	return Basemap{}, false
}

// Map defaults, centred on Innsbruck.
const (
	DefaultCenterLat = 47.2692
	DefaultCenterLng = 11.4041
	DefaultZoom      = 5
	MinZoom          = 4
	MaxZoom          = 10
	OverlayTileSize  = 256
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LatLngBounds uses the map library's corner convention.
type LatLngBounds struct {
	SouthWest LatLng `json:"southWest"`
	NorthEast LatLng `json:"northEast"`
}

// RasterFit is the viewport extent of one raster.
type RasterFit struct {
	File string `json:"file"`
	LatLngBounds
}

// FitBounds converts a [minLon, minLat, maxLon, maxLat] extent into corners.
func FitBounds(b models.Bounds) LatLngBounds {
	return LatLngBounds{
		SouthWest: LatLng{Lat: b.MinLat(), Lng: b.MinLon()},
		NorthEast: LatLng{Lat: b.MaxLat(), Lng: b.MaxLon()},
	}
}

// ViewState holds the user-controlled map settings.
type ViewState struct {
	Basemap string
	Opacity float64
}

// Validate checks the basemap exists and the opacity is within [0, 1].
func (v ViewState) Validate() error {
	if _, ok := LookupBasemap(v.Basemap); !ok {
		return fmt.Errorf("unknown basemap %q", v.Basemap)
	}
	if v.Opacity < 0 || v.Opacity > 1 {
		return fmt.Errorf("opacity %.2f out of range", v.Opacity)
	}
	return nil
}

// Overlay is the hazard tile layer for one raster.
type Overlay struct {
	File     string  `json:"file"`
	URL      string  `json:"url"`
	Opacity  float64 `json:"opacity"`
	TileSize int     `json:"tileSize"`
	MinZoom  int     `json:"minZoom"`
	MaxZoom  int     `json:"maxZoom"`
}

// MapView is everything the page needs to draw the map.
type MapView struct {
	Basemap     Basemap       `json:"-"`
	BasemapURL  string        `json:"basemapUrl"`
	Attribution string        `json:"attribution"`
	Overlay     *Overlay      `json:"overlay,omitempty"`
	Center      LatLng        `json:"center"`
	Zoom        int           `json:"zoom"`
	MinZoom     int           `json:"minZoom"`
	MaxZoom     int           `json:"maxZoom"`
	Fit         *RasterFit    `json:"fit,omitempty"`
}

// ComposeMapView always includes the basemap and adds the overlay only when a
// raster is active. tileURL maps a raster file to its tile template. fit may
// belong to an earlier raster while the active one's extent is pending or has
// failed; fit.File tells them apart.
func ComposeMapView(activeFile string, state ViewState, fit *RasterFit, tileURL func(string) string) MapView {
	basemap, ok := LookupBasemap(state.Basemap)
	if !ok {
		basemap, _ = LookupBasemap("light")
	}
	mv := MapView{
		Basemap:     basemap,
		BasemapURL:  basemap.URL,
		Attribution: basemap.Attribution,
		Center:      LatLng{Lat: DefaultCenterLat, Lng: DefaultCenterLng},
		Zoom:        DefaultZoom,
		MinZoom:     MinZoom,
		MaxZoom:     MaxZoom,
	}
	if activeFile == "" {
		return mv
	}
	mv.Overlay = &Overlay{
		File:     activeFile,
		URL:      tileURL(activeFile),
		Opacity:  state.Opacity,
		TileSize: OverlayTileSize,
		MinZoom:  MinZoom,
		MaxZoom:  MaxZoom,
	}
	if fit != nil {
		f := *fit
		mv.Fit = &f
	}
	return mv
}
