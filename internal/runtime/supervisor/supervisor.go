// Package supervisor runs the bot's long-lived goroutines: named, panic
// safe, optionally restarted with backoff, and stopped together.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "standupbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log         logx.Logger
	cancelOnErr bool

	mu       sync.Mutex
	firstErr error
	routines map[string]*Routine
}

// Routine is the bookkeeping for one goroutine name.
type Routine struct {
	Name      string    `json:"name"`
	Active    int       `json:"active"`
	Starts    uint64    `json:"starts"`
	Restarts  uint64    `json:"restarts"`
	Panics    uint64    `json:"panics"`
	LastStart time.Time `json:"last_start"`
	LastErr   string    `json:"last_err,omitempty"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels every goroutine after the first failure of a Go
// routine or a GoRestart that gave up.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, routines: map[string]*Routine{}}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel stops the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first recorded failure.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Snapshot lists routines by name.
func (s *Supervisor) Snapshot() []Routine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Routine, 0, len(s.routines))
	for _, r := range s.routines {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Supervisor) begin(name string, restart bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.routines[name]
	if r == nil {
		r = &Routine{Name: name}
		s.routines[name] = r
	}
	r.Active++
	r.Starts++
	if restart {
		r.Restarts++
	}
	r.LastStart = time.Now()
}

func (s *Supervisor) end(name string, err error, panicked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.routines[name]
	if r == nil {
		return
	}
	r.Active--
	if panicked {
		r.Panics++
	}
	if err != nil {
		r.LastErr = err.Error()
	}
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.mu.Unlock()
	if s.cancelOnErr {
		s.cancel()
	}
}

// runOnce calls fn and converts a panic into an error.
func (s *Supervisor) runOnce(name string, fn func(context.Context) error) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return false, fn(s.ctx)
}

// Go runs fn once. A returned error other than context.Canceled, or a
// panic, is recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.begin(name, false)
		panicked, err := s.runOnce(name, fn)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.end(name, err, panicked)
		if err != nil {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

type restartConfig struct {
	min, max    time.Duration
	maxRestarts int
}

type RestartOption func(*restartConfig)

// WithBackoff bounds the exponential delay between restarts.
func WithBackoff(min, max time.Duration) RestartOption {
	return func(c *restartConfig) {
		if min > 0 {
			c.min = min
		}
		if max > 0 {
			c.max = max
		}
	}
}

// WithMaxRestarts gives up after n restarts; 0 retries forever.
func WithMaxRestarts(n int) RestartOption { return func(c *restartConfig) { c.maxRestarts = n } }

// GoRestart keeps fn running until the context ends. A nil return stops the
// loop; an error or panic restarts fn after a backoff that doubles up to the
// maximum and resets after a run of at least 30s.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartConfig{min: 250 * time.Millisecond, max: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.max = max(cfg.max, cfg.min)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := cfg.min
		for restarts := 0; ; restarts++ {
			if s.ctx.Err() != nil {
				return
			}
			s.begin(name, restarts > 0)
			started := time.Now()
			panicked, err := s.runOnce(name, fn)
			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				s.end(name, nil, panicked)
				return
			}
			s.end(name, err, panicked)

			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				s.log.Error("goroutine gave up", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(fmt.Errorf("%s: %w", name, err))
				return
			}
			if time.Since(started) >= 30*time.Second {
				backoff = cfg.min
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", backoff), logx.Err(err))

			t := time.NewTimer(backoff)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, cfg.max)
		}
	}()
}

// Stop cancels and waits.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}
