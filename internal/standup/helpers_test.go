package standup

import (
	"context"
	"sync"
	"testing"
	"time"

	"standupbot/internal/chat"
	"standupbot/internal/chat/chattest"
	"standupbot/internal/kv"
	"standupbot/internal/task/queue"
)

// monday10 is a Monday morning.
var monday10 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	rt     *Runtime
	chat   *chattest.Platform
	clock  *fakeClock
	sleeps []time.Duration
}

func testSettings() Settings {
	return Settings{
		Location:    time.UTC,
		ActiveTeams: []string{"t1", "t2"},
		Teams: map[string]Team{
			"t1": {
				Name:          "Platform",
				PostSummaryTo: "#standup-platform",
				AskEarliest:   Clock{Hour: 9},
				ReportBy:      Clock{Hour: 12},
				Members: []Member{
					{Name: "@alice", Department: "Backend"},
					{Name: "@bob"},
					{Name: "@carol"},
				},
			},
			"t2": {
				Name:          "Infra",
				PostSummaryTo: "#standup-infra",
				AskEarliest:   Clock{Hour: 9},
				ReportBy:      Clock{Hour: 12},
				Members:       []Member{{Name: "alice"}},
			},
		},
		ReplyWindow:      5 * time.Minute,
		SummaryMaxLen:    1024,
		AnnounceHolidays: true,
	}
}

func newFixture(t *testing.T, s Settings) *fixture {
	t.Helper()
	f := &fixture{chat: chattest.New(), clock: &fakeClock{t: monday10}}

	f.chat.SetUsers(
		chat.User{ID: "U1", Name: "alice", Color: "9f69e7", Presence: chat.PresenceActive, Profile: chat.Profile{RealName: "Alice Liddell", Image192: "https://img/alice.png"}},
		chat.User{ID: "U2", Name: "bob", Presence: chat.PresenceAway, Profile: chat.Profile{RealName: "Bob Stone"}},
		chat.User{ID: "U3", Name: "carol", Presence: chat.PresenceActive, Profile: chat.Profile{RealName: "Carol Danvers"}},
		chat.User{ID: "U9", Name: "gone", Deleted: true},
	)
	f.chat.SetIMs(
		chat.IM{ID: "D1", User: "U1", IsIM: true},
		chat.IM{ID: "D2", User: "U2", IsIM: true},
		chat.IM{ID: "D3", User: "U3", IsIM: true},
		chat.IM{ID: "D9", User: "U9", IsIM: true, IsUserDeleted: true},
	)

	store := kv.New(kv.WithClock(f.clock.Now))
	rt, err := New(Options{
		Store:    store,
		Slow:     queue.New[Task](queue.Config{Name: "slow"}),
		Fast:     queue.New[Task](queue.Config{Name: "fast"}),
		Chat:     f.chat,
		Typer:    f.chat,
		Settings: s,
		Now:      f.clock.Now,
		Sleep:    func(_ context.Context, d time.Duration) { f.sleeps = append(f.sleeps, d) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.rt = rt

	f.run(t, &UpdateUserList{})
	f.run(t, &UpdateIMList{})
	return f
}

func (f *fixture) run(t *testing.T, task Task) {
	t.Helper()
	if err := task.Execute(context.Background(), f.rt); err != nil {
		t.Fatalf("%s: %v", task.Name(), err)
	}
}

func (f *fixture) report(t *testing.T) Report {
	t.Helper()
	rep, err := f.rt.Report()
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	return rep
}

func drain(q *queue.Queue[Task]) []Task {
	var out []Task
	for {
		task, err := q.PopLeft()
		if err != nil {
			return out
		}
		out = append(out, task)
	}
}

func only[T Task](tasks []Task) []T {
	var out []T
	for _, task := range tasks {
		if v, ok := task.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func asTasks[T Task](tasks []T) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task)
	}
	return out
}
