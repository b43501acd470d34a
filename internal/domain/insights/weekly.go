package insights

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/respira/insights/internal/domain/dataset"
)

// Mode selects what the weekly engine aggregates besides active patients.
type Mode int

const (
	// CountOnly reports the across-patient mean of per-patient event counts.
	CountOnly Mode = iota
	// SumPayload additionally sums the events' numeric payload and derives
	// the per-active-patient average.
	SumPayload
)

// WeekRow is one Monday-to-Sunday week of the analysis window.
type WeekRow struct {
	Index          int       `json:"week"`
	Start          time.Time `json:"start"`
	Period         string    `json:"period"`
	ActivePatients int       `json:"active_patients"`
	AvgRecords     float64   `json:"avg_records"`

	// Populated in SumPayload mode only.
	TotalPayload        float64 `json:"total_payload,omitempty"`
	AvgPayloadPerActive int     `json:"avg_payload_per_active,omitempty"`
}

// Engine buckets per-patient events into calendar weeks. One engine serves
// every collection; the per-feature variations live in the Collection values,
// not in copies of the loop.
type Engine struct {
	norm *dataset.Normalizer
}

func NewEngine(norm *dataset.Normalizer) *Engine {
	return &Engine{norm: norm}
}

// weekStart returns the Monday 00:00 UTC of the week containing t.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

// periodLabel renders a week as "Mar 3-9", or "Mar 31 - Apr 6" when the week
// spans a month boundary.
func periodLabel(monday time.Time) string {
	sunday := monday.AddDate(0, 0, 6)
	if monday.Month() == sunday.Month() {
		return fmt.Sprintf("%s %d-%d", monday.Format("Jan"), monday.Day(), sunday.Day())
	}
	return fmt.Sprintf("%s %d - %s %d", monday.Format("Jan"), monday.Day(), sunday.Format("Jan"), sunday.Day())
}

// EventTime returns the event's normalized timestamp, trying the collection's
// candidate fields in order.
func (e *Engine) EventTime(ev dataset.Event, col Collection) (time.Time, bool) {
	for _, f := range col.TimeFields {
		if ts, ok := e.norm.Normalize(ev[f]); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

// PayloadValue extracts the event's numeric payload by probing the
// collection's candidate keys, then the same keys nested one level under the
// candidate container keys. No recognized key yields 0, never an error.
func PayloadValue(ev dataset.Event, col Collection) float64 {
	if v, ok := ev.Number(col.PayloadKeys...); ok {
		return v
	}
	for _, ck := range col.ContainerKeys {
		if inner, ok := ev[ck].(map[string]interface{}); ok {
			if v, ok := dataset.Event(inner).Number(col.PayloadKeys...); ok {
				return v
			}
		}
	}
	return 0
}

// FirstEvent returns the collection's earliest event for a patient. Events
// with unparseable timestamps sort last and are never chosen when any
// parseable one exists.
func (e *Engine) FirstEvent(events []dataset.Event, col Collection) (dataset.Event, bool) {
	if len(events) == 0 {
		return nil, false
	}
	type dated struct {
		ev dataset.Event
		ts time.Time
		ok bool
	}
	all := make([]dated, len(events))
	for i, ev := range events {
		ts, ok := e.EventTime(ev, col)
		all[i] = dated{ev, ts, ok}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].ok != all[j].ok {
			return all[i].ok
		}
		return all[i].ts.Before(all[j].ts)
	})
	if !all[0].ok {
		return nil, false
	}
	return all[0].ev, true
}

// WeeklyUsage partitions [start, end] into Monday-aligned weeks and reports,
// per week, the active patients and aggregates for one collection. The first
// week is the Monday of the week containing start; weeks are consecutive and
// cover every day of the window with no gaps or overlaps. Weeks with zero
// active patients are retained here; Reported drops them.
func (e *Engine) WeeklyUsage(patients []*dataset.Patient, col Collection, start, end time.Time, mode Mode) []WeekRow {
	var rows []WeekRow
	for idx, ws := 0, weekStart(start); !ws.After(end.UTC()); idx, ws = idx+1, ws.AddDate(0, 0, 7) {
		next := ws.AddDate(0, 0, 7)

		row := WeekRow{Index: idx, Start: ws, Period: periodLabel(ws)}
		var totalRecords int
		for _, p := range patients {
			records := 0
			payload := 0.0
			for _, ev := range col.Events(p) {
				ts, ok := e.EventTime(ev, col)
				if !ok || ts.Before(ws) || !ts.Before(next) {
					continue
				}
				records++
				if mode == SumPayload {
					payload += PayloadValue(ev, col)
				}
			}
			if records > 0 {
				row.ActivePatients++
				totalRecords += records
				row.TotalPayload += payload
			}
		}
		if row.ActivePatients > 0 {
			row.AvgRecords = float64(totalRecords) / float64(row.ActivePatients)
			if mode == SumPayload {
				row.AvgPayloadPerActive = int(math.Round(row.TotalPayload / float64(row.ActivePatients)))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Reported drops weeks without any active patient. Empty weeks carry no
// information for the consumer and every caller filters them.
func Reported(rows []WeekRow) []WeekRow {
	out := make([]WeekRow, 0, len(rows))
	for _, r := range rows {
		if r.ActivePatients > 0 {
			out = append(out, r)
		}
	}
	return out
}

// DayRow is one day of a patient's monthly payload drill-down.
type DayRow struct {
	Day     int     `json:"day"`
	Records int     `json:"records"`
	Payload float64 `json:"payload"`
}

// DailyPayload totals one patient's events per day over a calendar month.
// Days without events are retained with zeros so the series is continuous.
func (e *Engine) DailyPayload(p *dataset.Patient, col Collection, year int, month time.Month) []DayRow {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, 0).Sub(first).Hours() / 24

	rows := make([]DayRow, int(days))
	for i := range rows {
		rows[i].Day = i + 1
	}
	for _, ev := range col.Events(p) {
		ts, ok := e.EventTime(ev, col)
		if !ok || ts.Year() != year || ts.Month() != month {
			continue
		}
		d := &rows[ts.Day()-1]
		d.Records++
		d.Payload += PayloadValue(ev, col)
	}
	return rows
}
