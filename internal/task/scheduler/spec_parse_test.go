package scheduler

import (
	"context"
	"testing"
	"time"

	logx "standupbot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
		cron     string
	}{
		{name: "cron", raw: "0 3 * * *", kind: SpecCron, source: "cron", cron: "0 3 * * *"},
		{name: "prefixed cron", raw: "cron:0 3 * * *", kind: SpecCron, source: "cron", cron: "0 3 * * *"},
		{name: "descriptor", raw: "@daily", kind: SpecCron, source: "cron", cron: "@daily"},
		{name: "duration", raw: "30m", kind: SpecInterval, source: "duration", duration: 30 * time.Minute, cron: "@every 30m0s"},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix hhmm", raw: "every: 00:30", kind: SpecInterval, source: "hhmm", duration: 30 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if tt.cron != "" && got.CronSpec() != tt.cron {
				t.Fatalf("CronSpec = %q, want %q", got.CronSpec(), tt.cron)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:75", "interval:-5m", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestAddRejectsBadCron(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.Add("prune", "cron:61 * * * *", func() {}); err == nil {
		t.Fatal("expected error for out-of-range minute")
	}
	if err := s.Add("", "30m", func() {}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestAddReplacesByName(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	if err := s.Add("roster", "30m", func() {}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("roster", "cron:0 * * * *", func() {}); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	got := s.Schedules()
	if len(got) != 1 || got[0].Spec != "0 * * * *" {
		t.Fatalf("Schedules = %+v", got)
	}
	if got[0].Next.IsZero() {
		t.Fatal("started schedule has no next run")
	}
	if !s.Remove("roster") || s.Remove("roster") {
		t.Fatal("Remove should succeed exactly once")
	}
}

func TestIntervalTriggerFires(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	fired := make(chan struct{}, 4)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// cron.Every rounds to whole seconds; jitter stays below one interval.
	if err := s.Add("tick", "1s", func() { fired <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("interval trigger never fired")
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw string
		ok  bool
	}{
		{raw: "30m", ok: true},
		{raw: "cron:0 3 * * *", ok: true},
		{raw: "@daily", ok: true},
		{raw: "cron:nope", ok: false},
		{raw: "every day", ok: false},
		{raw: "", ok: false},
	}
	for _, tt := range tests {
		err := ValidateSchedule(tt.raw)
		if (err == nil) != tt.ok {
			t.Fatalf("ValidateSchedule(%q) err = %v, want ok=%v", tt.raw, err, tt.ok)
		}
	}
}
