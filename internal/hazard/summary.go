package hazard

import (
	"fmt"
	"strings"

	"github.com/lox/hazardmap/internal/models"
)

// Metric is one statistics tile.
type Metric struct {
	Key     string
	Label   string
	Value   string
	Tooltip string
}

const PanelTitle = "Global Forecast Analytics"

const PanelTooltip = "Statistics are calculated from the global landslide hazard data. " +
	"They provide insights into the distribution and variability of landslide probabilities worldwide."

// Metrics builds the panel tiles. Missing fields render as N/A.
func Metrics(s *models.Statistics) []Metric {
	if s == nil {
		return nil
	}
	out := []Metric{
		{
			Key:     "valid_percent",
			Label:   "Coverage",
			Value:   formatValue(s.ValidPercent, "%.3f%%"),
			Tooltip: "Percentage of the global area that has landslide risk data available.",
		},
		{
			Key:   "std",
			Label: "Standard Deviation",
			Value: formatValue(s.Std, "%.3f"),
			Tooltip: "Measures how spread out the landslide probability values are. " +
				"Higher values indicate more extreme risk variations worldwide.",
		},
		{
			Key:   "percentile_98",
			Label: "98% Quantile",
			Value: formatValue(s.Percentile98, "%.3f"),
			Tooltip: "The probability value below which 98% of all observed areas fall. " +
				"This represents the upper extreme of landslide risk, excluding only the top 2% most extreme values.",
		},
	}
	if s.Mean != nil {
		out = append(out, Metric{
			Key:     "mean",
			Label:   "Mean",
			Value:   formatValue(s.Mean, "%.3f"),
			Tooltip: "Average landslide probability across all cells with data.",
		})
	}
	if s.Max != nil {
		out = append(out, Metric{
			Key:     "max",
			Label:   "Maximum",
			Value:   formatValue(s.Max, "%.3f"),
			Tooltip: "Highest landslide probability in the forecast.",
		})
	}
	return out
}

func formatValue(v *float64, format string) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *v)
}

// Headline picks the probability that best describes the day: the 98th
// percentile, then the maximum, then the mean.
func Headline(s *models.Statistics) (float64, bool) {
	if s == nil {
		return 0, false
	}
	for _, v := range []*float64{s.Percentile98, s.Max, s.Mean} {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// Summarize writes a one-paragraph description of a forecast's statistics.
func Summarize(date string, s *models.Statistics) string {
	p, ok := Headline(s)
	if !ok {
		return fmt.Sprintf("No statistics are available for the %s forecast.", date)
	}
	level := Classify(p)

	var b strings.Builder
	fmt.Fprintf(&b, "The %s forecast peaks in the %s hazard band", date, strings.ToLower(level.String()))
	if s.Percentile98 != nil {
		fmt.Fprintf(&b, ", with 98%% of areas below a probability of %.2f", *s.Percentile98)
	}
	b.WriteString(".")
	if s.ValidPercent != nil {
		fmt.Fprintf(&b, " Data covers %.1f%% of the globe.", *s.ValidPercent)
	}
	if s.Std != nil {
		switch {
		case *s.Std >= 0.2:
			b.WriteString(" Probabilities vary widely between regions.")
		case *s.Std < 0.05:
			b.WriteString(" Probabilities are fairly uniform.")
		}
	}
	if level >= Moderate {
		b.WriteString(" Expect elevated landslide risk in steep terrain with recent heavy rain.")
	}
	return b.String()
}
