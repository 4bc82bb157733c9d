package viewer

import (
	"time"

	"github.com/lox/hazardmap/internal/models"
)

// CalendarDay is one cell of the month grid.
type CalendarDay struct {
	Date     string
	Day      int
	InMonth  bool
	Disabled bool
	Selected bool
	Today    bool
}

// CalendarMonth is a Sunday-first month grid.
type CalendarMonth struct {
	Title string
	Month string // "2006-01"
	Prev  string
	Next  string
	Weeks [][]CalendarDay
}

var Weekdays = []string{"S", "M", "T", "W", "T", "F", "S"}

// BuildCalendar lays out the month containing month. Days outside the month are
// included to fill the weeks and are disabled like any date without data.
func BuildCalendar(r *Registry, month time.Time, selected string, today time.Time) CalendarMonth {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -int(first.Weekday()))
	todayStr := today.Format(models.DateLayout)

	cal := CalendarMonth{
		Title: first.Format("January 2006"),
		Month: first.Format("2006-01"),
		Prev:  first.AddDate(0, -1, 0).Format("2006-01"),
		Next:  first.AddDate(0, 1, 0).Format("2006-01"),
	}

	day := start
	for {
		week := make([]CalendarDay, 0, 7)
		for i := 0; i < 7; i++ {
			date := day.Format(models.DateLayout)
			week = append(week, CalendarDay{
				Date:     date,
				Day:      day.Day(),
				InMonth:  day.Month() == first.Month(),
				Disabled: DateDisabled(r, date),
				Selected: date == selected,
				Today:    date == todayStr,
			})
			day = day.AddDate(0, 0, 1)
		}
		cal.Weeks = append(cal.Weeks, week)
		if day.Month() != first.Month() {
			break
		}
	}
	return cal
}

// ParseMonth parses "2006-01", falling back to the given default.
func ParseMonth(s string, def time.Time) time.Time {
	if t, err := time.Parse("2006-01", s); err == nil {
		return t
	}
	return def
}
