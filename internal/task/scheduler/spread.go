package scheduler

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// delayedFirst runs an interval schedule with a jittered first fire so that
// triggers registered together do not all land on the same tick.
type delayedFirst struct {
	base  cron.Schedule
	first time.Time
}

func (s *delayedFirst) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

func intervalWithSpread(every time.Duration, now time.Time, name string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spread := min(every, maxStartupSpread)
	if spread <= 0 {
		return base, 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	rng := rand.New(rand.NewSource(now.UnixNano() ^ int64(h.Sum64())))
	jitter := time.Duration(rng.Int63n(int64(spread)))
	return &delayedFirst{base: base, first: now.Add(every + jitter)}, jitter
}
