package types

import "time"

// DateLayout is the calendar-date format used to key reconciliation state.
const DateLayout = "2006-01-02"

// DateKey returns the local calendar date of t.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ReconciliationState is the record persisted between cycles so grid power
// can be derived from energy deltas.
type ReconciliationState struct {
	Date               string    `json:"date"`
	ConsumptionKWH     float64   `json:"consumptionKWH"`
	InverterACTodayKWH float64   `json:"inverterACTodayKWH"`
	ImportedKWH        float64   `json:"importedKWH"`
	ExportedKWH        float64   `json:"exportedKWH"`
	Timestamp          time.Time `json:"timestamp"`
}

// SameDay reports whether the state was recorded on now's calendar date.
func (s ReconciliationState) SameDay(now time.Time) bool {
	return s.Date == DateKey(now)
}
