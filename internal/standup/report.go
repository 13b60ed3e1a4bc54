package standup

import (
	"sort"
	"time"
)

const (
	keyUsers  = "users"
	keyIMs    = "ims"
	keyReport = "report"

	dayLayout = "2006-01-02"
)

// UserReport is one member's standup for one team and day.
type UserReport struct {
	Report     []string   `json:"report"`
	SeenOnline bool       `json:"seen_online,omitempty"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
	LastCallAt *time.Time `json:"last_call_at,omitempty"`
	Department string     `json:"department,omitempty"`
}

// TeamReport is a team's day. ReportedAt is set once the summary went out
// (or the day was a holiday).
type TeamReport struct {
	ReportedAt *time.Time             `json:"reported_at,omitempty"`
	LastCallAt *time.Time             `json:"last_call_at,omitempty"`
	Reports    map[string]*UserReport `json:"reports"`
}

// DayReport is keyed by team id.
type DayReport map[string]*TeamReport

// Report is keyed by calendar day (YYYY-MM-DD).
type Report map[string]DayReport

func (rep Report) team(day, team string) *TeamReport {
	dr := rep[day]
	if dr == nil {
		return nil
	}
	return dr[team]
}

func (rep Report) user(day, team, userID string) *UserReport {
	tr := rep.team(day, team)
	if tr == nil || tr.Reports == nil {
		return nil
	}
	return tr.Reports[userID]
}

// Days returns the stored days, oldest first.
func (rep Report) Days() []string {
	out := make([]string, 0, len(rep))
	for d := range rep {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

func isWeekend(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// endOfDay is the next midnight in loc.
func endOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func stamp(t time.Time) *time.Time { return &t }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
