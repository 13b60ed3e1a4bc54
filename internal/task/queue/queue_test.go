package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"standupbot/internal/eventbus"
)

type job struct {
	name string
	fn   func() error
}

func (j job) Name() string { return j.name }

func runJob(_ context.Context, j job) error {
	if j.fn == nil {
		return nil
	}
	return j.fn()
}

var epoch = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func TestPopEmpty(t *testing.T) {
	t.Parallel()
	q := New[job](Config{Name: "fast"})
	if _, err := q.Pop(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Pop = %v, want ErrEmpty", err)
	}
	if _, err := q.PopLeft(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("PopLeft = %v, want ErrEmpty", err)
	}

	q.Append(job{name: "a"})
	q.Append(job{name: "b"})
	q.Append(job{name: "c"})
	if j, _ := q.Pop(); j.name != "c" {
		t.Fatalf("Pop = %q, want c", j.name)
	}
	if j, _ := q.PopLeft(); j.name != "a" {
		t.Fatalf("PopLeft = %q, want a", j.name)
	}
	if q.Size() != 1 {
		t.Fatalf("Size = %d, want 1", q.Size())
	}
}

func TestProcessHonoursInterval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := New[job](Config{Name: "slow", Interval: 5 * time.Second}, WithStartedAt(epoch))

	runs := 0
	add := func() { q.Append(job{name: "count", fn: func() error { runs++; return nil }}) }
	add()

	if n, _ := q.Process(ctx, epoch.Add(4*time.Second), runJob); n != 0 || runs != 0 {
		t.Fatalf("early Process ran %d tasks", n)
	}
	if n, _ := q.Process(ctx, epoch.Add(5*time.Second), runJob); n != 1 || runs != 1 {
		t.Fatalf("Process = %d, runs = %d; want 1, 1", n, runs)
	}

	add()
	if n, _ := q.Process(ctx, epoch.Add(7*time.Second), runJob); n != 0 || runs != 1 {
		t.Fatalf("second Process inside interval ran %d tasks", n)
	}
	if n, _ := q.Process(ctx, epoch.Add(10*time.Second), runJob); n != 1 || runs != 2 {
		t.Fatalf("Process = %d, runs = %d; want 1, 2", n, runs)
	}
}

func TestProcessDrainsSnapshotOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := New[job](Config{Name: "slow"}, WithStartedAt(epoch))

	var order []string
	var self job
	self = job{name: "check_reports", fn: func() error {
		order = append(order, "check_reports")
		q.Append(self)
		return nil
	}}
	q.Append(self)
	q.Append(job{name: "sync_db", fn: func() error { order = append(order, "sync_db"); return nil }})

	n, err := q.Process(ctx, epoch, runJob)
	if err != nil || n != 2 {
		t.Fatalf("Process = %d, %v; want 2, nil", n, err)
	}
	if len(order) != 2 || order[0] != "check_reports" || order[1] != "sync_db" {
		t.Fatalf("order = %v", order)
	}
	if q.Size() != 1 {
		t.Fatalf("re-enqueued task should wait for the next tick, size = %d", q.Size())
	}
}

func TestProcessIsolatesFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := New[job](Config{Name: "fast"}, WithStartedAt(epoch))

	ran := map[string]bool{}
	q.Append(job{name: "first", fn: func() error { ran["first"] = true; return nil }})
	q.Append(job{name: "broken", fn: func() error { return errors.New("boom") }})
	q.Append(job{name: "panics", fn: func() error { panic("nil roster") }})
	q.Append(job{name: "last", fn: func() error { ran["last"] = true; return nil }})

	n, err := q.Process(ctx, epoch, runJob)
	if err != nil || n != 4 {
		t.Fatalf("Process = %d, %v; want 4, nil", n, err)
	}
	if !ran["first"] || !ran["last"] {
		t.Fatalf("siblings of failing tasks did not run: %v", ran)
	}

	h := q.History()
	if len(h) != 4 {
		t.Fatalf("history len = %d, want 4", len(h))
	}
	if h[1].Error != "boom" || h[2].Error == "" || h[0].Error != "" {
		t.Fatalf("unexpected history errors: %+v", h)
	}
	if st := q.Stats(); st.Failed != 2 || st.Processed != 4 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestProcessStrictAbortsTick(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := New[job](Config{Name: "fast", Interval: time.Second, Strict: true}, WithStartedAt(epoch))

	boom := errors.New("boom")
	ran := 0
	q.Append(job{name: "broken", fn: func() error { return boom }})
	q.Append(job{name: "after", fn: func() error { ran++; return nil }})

	n, err := q.Process(ctx, epoch.Add(time.Second), runJob)
	if !errors.Is(err, boom) {
		t.Fatalf("Process err = %v, want boom", err)
	}
	if n != 1 || ran != 0 || q.Size() != 1 {
		t.Fatalf("n=%d ran=%d size=%d; want 1, 0, 1", n, ran, q.Size())
	}

	// The aborted tick did not count as a run, so the next call is not gated.
	if n, err := q.Process(ctx, epoch.Add(time.Second+time.Millisecond), runJob); err != nil || n != 1 || ran != 1 {
		t.Fatalf("follow-up Process = %d, %v, ran=%d", n, err, ran)
	}
}

func TestProcessPublishesEventsAndMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	q := New[job](Config{Name: "fast"}, WithStartedAt(epoch), WithBus(bus), WithMeter(mp.Meter("test")))
	q.Append(job{name: "send_message"})
	q.Append(job{name: "send_message", fn: func() error { return errors.New("channel_not_found") }})
	if _, err := q.Process(ctx, epoch, runJob); err != nil {
		t.Fatal(err)
	}

	var types []string
	for len(types) < 4 {
		e := <-events
		types = append(types, e.Type)
		if te, ok := e.Data.(TaskEvent); !ok || te.Queue != "fast" || te.ID == "" {
			t.Fatalf("unexpected event payload %#v", e.Data)
		}
	}
	want := []string{eventbus.TaskStarted, eventbus.TaskFinished, eventbus.TaskStarted, eventbus.TaskFailed}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	outcomes := map[string]int64{}
	var ticks int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch m.Name {
				case "standup.queue.tasks":
					v, _ := dp.Attributes.Value("outcome")
					outcomes[v.AsString()] += dp.Value
				case "standup.queue.ticks":
					ticks += dp.Value
				}
			}
		}
	}
	if outcomes["ok"] != 1 || outcomes["failed"] != 1 || ticks != 1 {
		t.Fatalf("metrics outcomes=%v ticks=%d", outcomes, ticks)
	}
}
