package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	alertQueueSize = 256
	alertMaxLen    = 3500
	alertFieldLen  = 600
)

// AlertSender delivers a preformatted record to operators (a Telegram chat
// in production).
type AlertSender interface {
	SendAlert(ctx context.Context, text string) error
}

// alertSink is a zerolog.LevelWriter that hands records to a background
// sender. Writes never block; records over the rate limit or the queue
// capacity are dropped.
type alertSink struct {
	sender AlertSender
	queue  chan string

	mu       sync.Mutex
	limiter  *rate.Limiter
	minLevel zerolog.Level

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func newAlertSink(sender AlertSender) *alertSink {
	return &alertSink{
		sender:   sender,
		queue:    make(chan string, alertQueueSize),
		limiter:  rate.NewLimiter(1, 1),
		minLevel: zerolog.WarnLevel,
		done:     make(chan struct{}),
	}
}

func (a *alertSink) configure(cfg AlertConfig) {
	rps := max(1, cfg.RatePerSec)
	a.mu.Lock()
	a.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	a.mu.Unlock()
	if cfg.Enabled {
		a.start()
	}
}

func (a *alertSink) start() {
	a.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		a.mu.Lock()
		a.cancel = cancel
		a.mu.Unlock()
		go a.run(ctx)
	})
}

func (a *alertSink) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.queue:
			_ = a.sender.SendAlert(ctx, msg)
		}
	}
}

// stop is a no-op when the worker never started.
func (a *alertSink) stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-a.done
}

func (a *alertSink) Write(p []byte) (int, error) {
	return a.WriteLevel(zerolog.InfoLevel, p)
}

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	pass := level >= a.minLevel && a.limiter.Allow()
	a.mu.Unlock()
	if !pass {
		return len(p), nil
	}
	if msg := formatAlert(p); msg != "" {
		select {
		case a.queue <- msg:
		default:
		}
	}
	return len(p), nil
}

// formatAlert renders a zerolog JSON line as "[LEVEL] message" followed by
// one "- key=value" line per field, sorted by key.
func formatAlert(p []byte) string {
	line := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return truncate(line, alertMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	delete(m, "time")
	delete(m, "level")
	delete(m, "message")
	delete(m, zerolog.CallerFieldName)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(m[k]), alertFieldLen))
	}
	return truncate(b.String(), alertMaxLen)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
