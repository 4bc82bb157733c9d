package api

import (
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"percent": func(f float64) string {
			return fmt.Sprintf("%.1f%%", f*100)
		},
		"opacityPct": func(f float64) int {
			return int(f*100 + 0.5)
		},
		"clock": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return t.UTC().Format("15:04 UTC")
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
