package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/hazardmap/internal/hazard"
	"github.com/lox/hazardmap/internal/viewer"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	// A full page load remounts a session whose registry failed to load.
	vs := s.session(w, r)
	if vs.Snapshot().LoadState == viewer.LoadFailed {
		vs.Reload()
	} else {
		vs.Load()
	}
	data := s.pageData(vs.Snapshot(), r.URL.Query().Get("month"))
	if n, ok := notices[r.URL.Query().Get("notice")]; ok {
		data.Notice = n.text
		data.NoticeErr = n.err
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	v := s.session(w, r).Snapshot()
	s.render(w, "about.html", PageData{
		SiteName: siteName,
		Title:    "About - " + siteName,
		Theme:    v.Theme,
		Palette:  hazard.PaletteFor(v.Theme),
		Status:   s.statusData(),
	})
}

// handleSelect picks a forecast date from the calendar form.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	vs := s.session(w, r)
	sel := vs.Select(r.FormValue("date"))
	s.cfg.Sessions.Save(vs)
	if sel.State == viewer.DateSelectedUnavailable {
		log.Printf("api: session %s selected unavailable date %q", shortID(vs.ID), sel.SelectedDate)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleView applies whichever of basemap, opacity, theme and country the form sends.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	vs := s.session(w, r)
	v := vs.Snapshot()

	view := v.ViewState
	if b := r.PostForm.Get("basemap"); b != "" {
		view.Basemap = b
	}
	if o := r.PostForm.Get("opacity"); o != "" {
		f, err := strconv.ParseFloat(o, 64)
		if err != nil {
			s.redirectNotice(w, r, "invalid-view")
			return
		}
		view.Opacity = f
	}
	if err := vs.SetView(view); err != nil {
		log.Printf("api: session %s: %v", shortID(vs.ID), err)
		s.redirectNotice(w, r, "invalid-view")
		return
	}
	if t := r.PostForm.Get("theme"); t != "" {
		if err := vs.SetTheme(t); err != nil {
			s.redirectNotice(w, r, "invalid-view")
			return
		}
	}
	if r.PostForm.Has("country") {
		if err := vs.SetCountry(r.PostForm.Get("country")); err != nil {
			s.redirectNotice(w, r, "invalid-view")
			return
		}
	}
	s.cfg.Sessions.Save(vs)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleDownload asks the backend to refresh its forecasts, then reloads the
// caller's file list.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	vs := s.session(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	if err := s.cfg.Backend.Download(ctx); err != nil {
		log.Printf("api: download: %v", err)
		s.redirectNotice(w, r, "download-failed")
		return
	}
	log.Println("api: backend data download completed")
	vs.Reload()
	s.redirectNotice(w, r, "download-ok")
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	vs := s.session(w, r)
	vs.Reload()
	s.redirectNotice(w, r, "reloaded")
}

func (s *Server) redirectNotice(w http.ResponseWriter, r *http.Request, notice string) {
	http.Redirect(w, r, "/?notice="+notice, http.StatusSeeOther)
}

func (s *Server) handleStatisticsPartial(w http.ResponseWriter, r *http.Request) {
	v := s.loadedSession(w, r).Snapshot()
	s.render(w, "statistics.html", newStatisticsData(v))
}

func (s *Server) handleStatusPartial(w http.ResponseWriter, r *http.Request) {
	s.render(w, "status.html", s.statusData())
}

func (s *Server) handleForecastPartial(w http.ResponseWriter, r *http.Request) {
	v := s.loadedSession(w, r).Snapshot()
	s.render(w, "forecast.html", newForecastData(v))
}

func (s *Server) handleMapPartial(w http.ResponseWriter, r *http.Request) {
	v := s.loadedSession(w, r).Snapshot()
	s.render(w, "map.html", newMapData(v))
}

func (s *Server) handleCalendarPartial(w http.ResponseWriter, r *http.Request) {
	v := s.loadedSession(w, r).Snapshot()
	s.render(w, "calendar.html", newCalendarData(v, r.URL.Query().Get("month"), s.clock.Now()))
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("api: template %s: %v", name, err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
