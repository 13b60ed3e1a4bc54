package standup

import (
	"errors"
	"time"
)

var ErrUnknownTeam = errors.New("standup: unknown team")

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// On returns the instant the clock shows on the calendar date of day, read
// in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

type Member struct {
	Name       string
	Department string
}

type Team struct {
	ID            string
	Name          string
	PostSummaryTo string
	AskEarliest   Clock
	ReportBy      Clock
	// Location defaults to Settings.Location.
	Location *time.Location
	// LastCall overrides Settings.LastCall when positive.
	LastCall time.Duration
	Members  []Member
}

// DisplayName falls back to the team id.
func (t Team) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// Settings is the hot-reloadable part of the runtime. It is replaced as a
// whole and never mutated after it is handed to a Runtime.
type Settings struct {
	// Location decides the calendar day, weekends and holidays.
	Location    *time.Location
	ActiveTeams []string
	Teams       map[string]Team
	// Holidays maps YYYY-MM-DD to a description.
	Holidays map[string]string

	LastCall      time.Duration
	ReplyWindow   time.Duration
	TypingDelay   time.Duration
	SummaryMaxLen int

	AnnounceHolidays bool
	// RetentionDays bounds stored report days; 0 keeps everything.
	RetentionDays int
}

const (
	defaultReplyWindow   = 5 * time.Minute
	defaultSummaryMaxLen = 1024
)

func (s Settings) withDefaults() Settings {
	if s.Location == nil {
		s.Location = time.UTC
	}
	if s.ReplyWindow <= 0 {
		s.ReplyWindow = defaultReplyWindow
	}
	if s.SummaryMaxLen <= 0 {
		s.SummaryMaxLen = defaultSummaryMaxLen
	}
	if s.Teams == nil {
		s.Teams = map[string]Team{}
	}
	if s.Holidays == nil {
		s.Holidays = map[string]string{}
	}
	return s
}

func (s *Settings) team(id string) (Team, bool) {
	t, ok := s.Teams[id]
	if !ok {
		return Team{}, false
	}
	if t.ID == "" {
		t.ID = id
	}
	return t, true
}

func (s *Settings) teamLocation(t Team) *time.Location {
	if t.Location != nil {
		return t.Location
	}
	return s.Location
}

func (s *Settings) lastCallLead(t Team) time.Duration {
	if t.LastCall > 0 {
		return t.LastCall
	}
	return s.LastCall
}
