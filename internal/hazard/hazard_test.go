package hazard

import (
	"strings"
	"testing"

	"github.com/lox/hazardmap/internal/models"
)

func ptr(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	tests := []struct {
		p    float64
		want Level
	}{
		{-0.1, VeryLow},
		{0, VeryLow},
		{0.2499, VeryLow},
		{0.25, Low},
		{0.5, Moderate},
		{0.74, Moderate},
		{0.75, High},
		{1, High},
		{1.7, High},
	}
	for _, tt := range tests {
		if got := Classify(tt.p); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestLegend(t *testing.T) {
	if len(Legend) != 4 {
		t.Fatalf("len(Legend) = %d, want 4", len(Legend))
	}
	if got := Legend[0].CSS(); got != "rgba(201, 242, 155, 1)" {
		t.Errorf("Very Low CSS = %q", got)
	}
	if got := Legend[3].CSS(); got != "rgba(217, 30, 24, 1)" {
		t.Errorf("High CSS = %q", got)
	}
	if got := Legend[1].Range(); got != "0.25 - 0.5" {
		t.Errorf("Low range = %q", got)
	}
	for i := 1; i < len(Legend); i++ {
		if Legend[i].Min != Legend[i-1].Max {
			t.Errorf("gap between %s and %s", Legend[i-1].Label, Legend[i].Label)
		}
	}
	if Moderate.Slug() != "moderate" || VeryLow.Slug() != "very_low" {
		t.Error("unexpected slugs")
	}
}

func TestMetrics_MissingFieldsShowNA(t *testing.T) {
	metrics := Metrics(&models.Statistics{ValidPercent: ptr(31.5)})
	if len(metrics) != 3 {
		t.Fatalf("len(metrics) = %d, want 3", len(metrics))
	}
	if metrics[0].Value != "31.500%" {
		t.Errorf("coverage = %q", metrics[0].Value)
	}
	if metrics[1].Value != "N/A" || metrics[2].Value != "N/A" {
		t.Errorf("expected N/A, got %q and %q", metrics[1].Value, metrics[2].Value)
	}
	for _, m := range metrics {
		if m.Tooltip == "" {
			t.Errorf("%s has no tooltip", m.Key)
		}
	}
}

func TestMetrics_OptionalFields(t *testing.T) {
	metrics := Metrics(&models.Statistics{Mean: ptr(0.1), Max: ptr(0.9)})
	if len(metrics) != 5 {
		t.Fatalf("len(metrics) = %d, want 5", len(metrics))
	}
	if metrics[4].Value != "0.900" {
		t.Errorf("max = %q", metrics[4].Value)
	}
	if Metrics(nil) != nil {
		t.Error("nil statistics should produce no metrics")
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize("2024-05-01", &models.Statistics{
		ValidPercent: ptr(31.24),
		Std:          ptr(0.25),
		Percentile98: ptr(0.8),
	})
	for _, want := range []string{
		"2024-05-01",
		"high hazard band",
		"below a probability of 0.80",
		"31.2% of the globe",
		"vary widely",
		"elevated landslide risk",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q: %s", want, got)
		}
	}

	low := Summarize("2024-05-02", &models.Statistics{Mean: ptr(0.1), Std: ptr(0.01)})
	if !strings.Contains(low, "very low hazard band") || !strings.Contains(low, "fairly uniform") {
		t.Errorf("low summary = %s", low)
	}
	if strings.Contains(low, "elevated") {
		t.Errorf("low summary should not warn: %s", low)
	}

	if got := Summarize("2024-05-03", &models.Statistics{}); !strings.Contains(got, "No statistics") {
		t.Errorf("empty summary = %s", got)
	}
}

func TestPaletteFor(t *testing.T) {
	if PaletteFor("dark") != DarkPalette {
		t.Error("dark theme should use DarkPalette")
	}
	if PaletteFor("sepia") != LightPalette {
		t.Error("unknown theme should fall back to LightPalette")
	}
}

func TestParseLevel(t *testing.T) {
	for _, b := range Legend {
		got, ok := ParseLevel(b.Level.Slug())
		if !ok || got != b.Level {
			t.Errorf("ParseLevel(%q) = %v, %v", b.Level.Slug(), got, ok)
		}
	}
	if _, ok := ParseLevel("extreme"); ok {
		t.Error("expected unknown slug to fail")
	}
}
