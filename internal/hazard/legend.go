// Package hazard describes landslide hazard probabilities for people: the
// legend colormap, level classification and the statistics panel text.
package hazard

import (
	"fmt"
	"image/color"
)

// Level is a band of the hazard colormap.
type Level int

const (
	VeryLow Level = iota
	Low
	Moderate
	High
)

// Band is one legend entry covering [Min, Max).
type Band struct {
	Level Level
	Label string
	Min   float64
	Max   float64
	Color color.RGBA
}

// Legend mirrors the colormap the backend renders tiles with.
var Legend = []Band{
	{Level: VeryLow, Label: "Very Low", Min: 0, Max: 0.25, Color: color.RGBA{201, 242, 155, 255}},
	{Level: Low, Label: "Low", Min: 0.25, Max: 0.5, Color: color.RGBA{255, 255, 153, 255}},
	{Level: Moderate, Label: "Moderate", Min: 0.5, Max: 0.75, Color: color.RGBA{255, 140, 0, 255}},
	{Level: High, Label: "High", Min: 0.75, Max: 1.0, Color: color.RGBA{217, 30, 24, 255}},
}

const LegendTitle = "Landslide Hazard Probability"

func (l Level) String() string {
	return Legend[l].Label
}

// Slug is a stable lowercase key, used for cache names.
func (l Level) Slug() string {
	switch l {
	case VeryLow:
		return "very_low"
	case Low:
		return "low"
	case Moderate:
		return "moderate"
	default:
		return "high"
	}
}

// ParseLevel is the inverse of Slug.
func ParseLevel(slug string) (Level, bool) {
	for _, b := range Legend {
		if b.Level.Slug() == slug {
			return b.Level, true
		}
	}
	return 0, false
}

// Range formats the band bounds like "0.25 - 0.5".
func (b Band) Range() string {
	return fmt.Sprintf("%g - %g", b.Min, b.Max)
}

// CSS returns the band colour as an rgba() value.
func (b Band) CSS() string {
	return fmt.Sprintf("rgba(%d, %d, %d, 1)", b.Color.R, b.Color.G, b.Color.B)
}

// Classify maps a probability to its band. Values outside [0, 1] clamp.
func Classify(p float64) Level {
	for _, b := range Legend[:len(Legend)-1] {
		if p < b.Max {
			return b.Level
		}
	}
	return High
}

func BandFor(l Level) Band {
	return Legend[l]
}
