package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "standupbot/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "scheduler")),
		parser: cronParser,
	}
}

// Add registers (or replaces, by name) a trigger. fire runs on the cron
// goroutine and must not block.
func (s *Service) Add(name, schedule string, fire func()) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if fire == nil {
		return errors.New("fire func required")
	}
	ps, err := parseChecked(s.parser, schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: ps.CronSpec(), fire: fire})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.registerLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", d.spec), logx.Duration("spread", d.startupSpread))
	return nil
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	for i := range s.defs {
		if s.defs[i].name != name {
			continue
		}
		if s.c != nil && s.defs[i].entryID != 0 {
			s.c.Remove(s.defs[i].entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return true
	}
	return false
}

func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Apply restarts the cron runner when the timezone changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || !changed {
		return
	}
	<-s.c.Stop().Done()
	s.startLocked()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()))
}

func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		info := ScheduleInfo{Name: d.name, Spec: d.spec}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	return out
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.registerLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.String("spec", s.defs[i].spec), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) registerLocked(d *scheduleDef) error {
	name, fire := d.name, d.fire
	job := cron.FuncJob(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("trigger panic", logx.String("name", name), logx.Any("panic", r))
			}
		}()
		s.log.Debug("trigger fired", logx.String("name", name))
		fire()
	})

	if every, ok := strings.CutPrefix(d.spec, "@every "); ok {
		if dur, err := time.ParseDuration(every); err == nil && dur > 0 {
			sched, jitter := intervalWithSpread(dur, time.Now().In(s.loc), name)
			d.startupSpread = jitter
			d.entryID = s.c.Schedule(sched, job)
			return nil
		}
	}
	id, err := s.c.AddJob(d.spec, job)
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
