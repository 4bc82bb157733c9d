// Package viewer coordinates what a dashboard session shows: which dates have
// forecast rasters, which one is selected, and the map and statistics derived from it.
package viewer

import (
	"sort"

	"github.com/lox/hazardmap/internal/models"
)

// Registry is an immutable snapshot of the backend's date to file mapping.
// A nil *Registry means the mapping has not been loaded.
type Registry struct {
	files map[string]models.FileInfo
	dates []string // newest first
}

// NewRegistry copies files into a snapshot.
func NewRegistry(files map[string]models.FileInfo) *Registry {
	r := &Registry{
		files: make(map[string]models.FileInfo, len(files)),
		dates: make([]string, 0, len(files)),
	}
	for date, info := range files {
		r.files[date] = info
		r.dates = append(r.dates, date)
	}
	// ISO dates sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(r.dates)))
	return r
}

// Lookup returns the file info for a date.
func (r *Registry) Lookup(date string) (models.FileInfo, bool) {
	if r == nil {
		return models.FileInfo{}, false
	}
	info, ok := r.files[date]
	return info, ok
}

func (r *Registry) Has(date string) bool {
	_, ok := r.Lookup(date)
	return ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.dates)
}

// Dates returns all dates, newest first.
func (r *Registry) Dates() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.dates))
	copy(out, r.dates)
	return out
}

// Latest returns the most recent date with data.
func (r *Registry) Latest() (string, bool) {
	if r.Len() == 0 {
		return "", false
	}
	return r.dates[0], true
}

// Earliest returns the oldest date with data.
func (r *Registry) Earliest() (string, bool) {
	if r.Len() == 0 {
		return "", false
	}
	return r.dates[len(r.dates)-1], true
}

// DateDisabled reports whether the calendar must refuse a date. Nothing is
// disabled until the registry is loaded.
func DateDisabled(r *Registry, date string) bool {
	if r == nil {
		return false
	}
	return !r.Has(date)
}

// ActiveRasterFile derives the raster for a selected date, or "" when there is none.
func ActiveRasterFile(r *Registry, selected string) string {
	info, ok := r.Lookup(selected)
	if !ok {
		return ""
	}
	return info.FileName
}
