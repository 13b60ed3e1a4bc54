// Package queue implements the time-gated FIFO task queues that drive the
// bot. A queue drains only the tasks visible when a tick starts, so a task
// that re-enqueues itself runs again on the next tick, not in a loop.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"standupbot/internal/eventbus"
	logx "standupbot/pkg/logx"
)

const defaultHistorySize = 100

// Queue is safe for concurrent use. Process calls are serialized; Append may
// run concurrently with a tick and the appended task waits for the next one.
type Queue[T Named] struct {
	procMu sync.Mutex

	mu      sync.Mutex
	cfg     Config
	items   []T
	lastRun time.Time
	history []HistoryItem

	ticks, processed, failed uint64

	log  logx.Logger
	bus  eventbus.Bus
	inst instruments
}

type options struct {
	log       logx.Logger
	bus       eventbus.Bus
	meter     metric.Meter
	startedAt time.Time
}

type Option func(*options)

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(o *options) { o.bus = bus } }

// WithMeter overrides the global OpenTelemetry meter provider.
func WithMeter(m metric.Meter) Option { return func(o *options) { o.meter = m } }

// WithStartedAt sets the initial last-run time, which delays the first tick
// by one interval. Defaults to time.Now().
func WithStartedAt(t time.Time) Option { return func(o *options) { o.startedAt = t } }

func New[T Named](cfg Config, opts ...Option) *Queue[T] {
	var o options
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	if o.meter == nil {
		o.meter = otel.GetMeterProvider().Meter("standupbot/queue")
	}
	if o.startedAt.IsZero() {
		o.startedAt = time.Now()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Queue[T]{
		cfg:     cfg,
		lastRun: o.startedAt,
		log:     o.log.With(logx.String("comp", "queue"), logx.String("queue", cfg.Name)),
		bus:     o.bus,
		inst:    newInstruments(o.meter, o.log),
	}
}

func (q *Queue[T]) Name() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg.Name
}

// SetConfig applies interval and strictness changes. The queue name is kept.
func (q *Queue[T]) SetConfig(cfg Config) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cfg.Name = q.cfg.Name
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	q.cfg = cfg
}

// Append enqueues t at the tail.
func (q *Queue[T]) Append(t T) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

// Pop removes and returns the tail.
func (q *Queue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	n := len(q.items)
	if n == 0 {
		return zero, ErrEmpty
	}
	t := q.items[n-1]
	q.items[n-1] = zero
	q.items = q.items[:n-1]
	return t, nil
}

// PopLeft removes and returns the head.
func (q *Queue[T]) PopLeft() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, ErrEmpty
	}
	t := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return t, nil
}

func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the pending tasks, head first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]T(nil), q.items...)
}

// Process runs one tick. It does nothing and returns 0 unless at least one
// interval has passed since the last completed tick. Otherwise it takes the
// current length n, pops and runs exactly n tasks in FIFO order and returns n.
//
// A failing or panicking task is logged and the tick continues. In strict
// mode the tick stops at the first failure, the error is returned and the
// last-run time is left unchanged.
func (q *Queue[T]) Process(ctx context.Context, now time.Time, run func(context.Context, T) error) (int, error) {
	q.procMu.Lock()
	defer q.procMu.Unlock()

	q.mu.Lock()
	if now.Sub(q.lastRun) < q.cfg.Interval {
		q.mu.Unlock()
		return 0, nil
	}
	n := len(q.items)
	strict := q.cfg.Strict
	name := q.cfg.Name
	q.ticks++
	q.mu.Unlock()

	q.inst.tick(ctx, name)

	done := 0
	for ; done < n; done++ {
		t, err := q.PopLeft()
		if err != nil {
			// Drained by a concurrent Pop.
			break
		}
		if err := q.exec(ctx, name, t, run); err != nil && strict {
			return done + 1, fmt.Errorf("queue %s: task %s: %w", name, t.Name(), err)
		}
	}

	q.mu.Lock()
	q.lastRun = now
	q.mu.Unlock()
	return done, nil
}

func (q *Queue[T]) exec(ctx context.Context, queueName string, t T, run func(context.Context, T) error) (err error) {
	id := uuid.NewString()
	name := t.Name()
	start := time.Now()

	q.log.Debug("task started", logx.String("task", name), logx.String("id", id))
	q.publish(eventbus.TaskStarted, TaskEvent{Queue: queueName, ID: id, Name: name, Started: start})

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				q.log.Error("task panic",
					logx.String("task", name),
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())),
				)
			}
		}()
		err = run(ctx, t)
	}()

	dur := time.Since(start)
	item := HistoryItem{ID: id, Name: name, Started: start, Duration: dur}
	ev := TaskEvent{Queue: queueName, ID: id, Name: name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		q.log.Error("task failed", logx.String("task", name), logx.Duration("took", dur), logx.Err(err))
		q.publish(eventbus.TaskFailed, ev)
		q.inst.task(ctx, queueName, name, "failed")
	} else {
		q.log.Debug("task finished", logx.String("task", name), logx.Duration("took", dur))
		q.publish(eventbus.TaskFinished, ev)
		q.inst.task(ctx, queueName, name, "ok")
	}

	q.mu.Lock()
	if err != nil {
		q.failed++
	}
	q.processed++
	q.history = append(q.history, item)
	if len(q.history) > q.cfg.HistorySize {
		q.history = q.history[len(q.history)-q.cfg.HistorySize:]
	}
	q.mu.Unlock()
	return err
}

func (q *Queue[T]) publish(typ string, ev TaskEvent) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(eventbus.Event{Type: typ, Time: ev.Started, Data: ev})
}

// History returns the most recent executions, oldest first.
func (q *Queue[T]) History() []HistoryItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]HistoryItem(nil), q.history...)
}

func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Name:      q.cfg.Name,
		Size:      len(q.items),
		Interval:  q.cfg.Interval,
		Strict:    q.cfg.Strict,
		LastRun:   q.lastRun,
		Ticks:     q.ticks,
		Processed: q.processed,
		Failed:    q.failed,
	}
}

type instruments struct {
	tasks metric.Int64Counter
	ticks metric.Int64Counter
}

func newInstruments(m metric.Meter, log logx.Logger) instruments {
	var in instruments
	var err error
	in.tasks, err = m.Int64Counter("standup.queue.tasks",
		metric.WithDescription("Tasks executed, by queue and outcome"),
	)
	if err != nil {
		log.Warn("queue metric init failed", logx.String("metric", "standup.queue.tasks"), logx.Err(err))
	}
	in.ticks, err = m.Int64Counter("standup.queue.ticks",
		metric.WithDescription("Draining ticks, by queue"),
	)
	if err != nil {
		log.Warn("queue metric init failed", logx.String("metric", "standup.queue.ticks"), logx.Err(err))
	}
	return in
}

func (in instruments) tick(ctx context.Context, queueName string) {
	if in.ticks == nil {
		return
	}
	in.ticks.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queueName)))
}

func (in instruments) task(ctx context.Context, queueName, task, outcome string) {
	if in.tasks == nil {
		return
	}
	in.tasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queueName),
		attribute.String("task", task),
		attribute.String("outcome", outcome),
	))
}
