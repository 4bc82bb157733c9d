package viewer

import (
	"fmt"
	"time"

	"github.com/lox/hazardmap/internal/models"
)

// SelectionState is where a date selection stands against the registry.
type SelectionState int

const (
	NoDateSelected SelectionState = iota
	DateSelectedPendingResolution
	DateResolvedActive
	DateSelectedUnavailable
)

func (s SelectionState) String() string {
	switch s {
	case DateSelectedPendingResolution:
		return "pending"
	case DateResolvedActive:
		return "active"
	case DateSelectedUnavailable:
		return "unavailable"
	default:
		return "none"
	}
}

// Selection is the outcome of resolving a selected date.
type Selection struct {
	State        SelectionState
	SelectedDate string
	ActiveDate   string
	ActiveFile   string
	Info         models.FileInfo
	Err          string
}

// Resolve looks a date up in the registry. A nil registry leaves the
// selection pending; it is resolved again once the registry arrives.
func Resolve(r *Registry, date string) Selection {
	if date == "" {
		return Selection{State: NoDateSelected}
	}
	sel := Selection{SelectedDate: date}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		sel.State = DateSelectedUnavailable
		sel.Err = fmt.Sprintf("%q is not a valid date", date)
		return sel
	}
	if r == nil {
		sel.State = DateSelectedPendingResolution
		return sel
	}
	info, ok := r.Lookup(date)
	if !ok {
		sel.State = DateSelectedUnavailable
		sel.Err = fmt.Sprintf("No forecast available for %s", date)
		return sel
	}
	sel.State = DateResolvedActive
	sel.ActiveDate = date
	sel.ActiveFile = info.FileName
	sel.Info = info
	return sel
}
