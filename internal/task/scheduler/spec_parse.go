package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SecondOptional accepts both 5- and 6-field specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a normalized schedule string.
//
// Accepted forms:
//   - cron: "0 3 * * *", "@daily", "@every 30m"
//   - Go duration: "30m", "1h30m"
//   - HH:MM interval: "00:30" (30 minutes), "02:00"
//
// "cron:" forces cron parsing; "interval:" and "every:" force interval parsing.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

// CronSpec renders the spec in robfig/cron syntax.
func (p ParsedSpec) CronSpec() string {
	if p.Kind == SpecInterval {
		return "@every " + p.Every.String()
	}
	return p.Cron
}

// ValidateSchedule reports whether Add would accept raw.
func ValidateSchedule(raw string) error {
	_, err := parseChecked(cronParser, raw)
	return err
}

func parseChecked(p cron.Parser, raw string) (ParsedSpec, error) {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return ParsedSpec{}, err
	}
	if ps.Kind == SpecCron {
		if _, err := p.Parse(ps.Cron); err != nil {
			return ParsedSpec{}, err
		}
	}
	return ps, nil
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}

	p, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf(
			"invalid schedule %q (use cron like '0 3 * * *', HH:MM like '00:30', or duration like '30m')", raw)
	}
	return p, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		src = "hhmm"
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q: %w", v, err)
		}
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}
