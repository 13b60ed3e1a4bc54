package standup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"standupbot/internal/chat"
	"standupbot/internal/kv"
	"standupbot/internal/task/queue"
	logx "standupbot/pkg/logx"
)

// Task is one unit of work on a queue. Execute runs synchronously and to
// completion; side effects are store writes and new enqueues.
type Task interface {
	Name() string
	Execute(ctx context.Context, rt *Runtime) error
}

// Typer shows a typing indicator in a channel.
type Typer interface {
	SendTyping(ctx context.Context, channel string) error
}

type Options struct {
	Store *kv.Store
	Slow  *queue.Queue[Task]
	Fast  *queue.Queue[Task]
	Chat  chat.Client
	// Typer may be nil.
	Typer    Typer
	Settings Settings
	Logger   logx.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

// Runtime is passed to every task. The store, queues and client are shared;
// settings are swapped atomically on reload.
type Runtime struct {
	Store *kv.Store
	Slow  *queue.Queue[Task]
	Fast  *queue.Queue[Task]
	Chat  chat.Client
	Typer Typer

	settings atomic.Pointer[Settings]
	log      logx.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

func New(opts Options) (*Runtime, error) {
	if opts.Store == nil {
		return nil, errors.New("standup: store is required")
	}
	if opts.Slow == nil || opts.Fast == nil {
		return nil, errors.New("standup: slow and fast queues are required")
	}
	if opts.Chat == nil {
		return nil, errors.New("standup: chat client is required")
	}
	rt := &Runtime{
		Store: opts.Store,
		Slow:  opts.Slow,
		Fast:  opts.Fast,
		Chat:  opts.Chat,
		Typer: opts.Typer,
		log:   opts.Logger,
		now:   opts.Now,
		sleep: opts.Sleep,
	}
	if rt.log.IsZero() {
		rt.log = logx.Nop()
	}
	rt.log = rt.log.With(logx.String("comp", "standup"))
	if rt.now == nil {
		rt.now = time.Now
	}
	if rt.sleep == nil {
		rt.sleep = sleepCtx
	}
	rt.ApplySettings(opts.Settings)
	return rt, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ApplySettings swaps the settings used by later task executions.
func (rt *Runtime) ApplySettings(s Settings) {
	s = s.withDefaults()
	rt.settings.Store(&s)
}

func (rt *Runtime) Settings() *Settings { return rt.settings.Load() }

func (rt *Runtime) Now() time.Time { return rt.now() }

func (rt *Runtime) Logger() logx.Logger { return rt.log }

// ---- Locks ----

func lockKey(userID string) string { return userID + "_lock" }

// LockUser marks userID as mid-interview for teams until ttl elapses.
func (rt *Runtime) LockUser(userID string, teams []string, ttl time.Duration) error {
	return rt.Store.Set(lockKey(userID), teams, ttl)
}

// UserLock returns the teams userID is locked for.
func (rt *Runtime) UserLock(userID string) ([]string, bool, error) {
	var teams []string
	ok, err := rt.Store.Get(lockKey(userID), &teams)
	if err != nil || !ok {
		return nil, false, err
	}
	return teams, true, nil
}

// UnlockUser reports whether a live lock was removed.
func (rt *Runtime) UnlockUser(userID string) (bool, error) {
	err := rt.Store.Unset(lockKey(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ---- Roster ----

func (rt *Runtime) users() ([]chat.User, bool, error) {
	var users []chat.User
	ok, err := rt.Store.Get(keyUsers, &users)
	return users, ok, err
}

func (rt *Runtime) UserByID(id string) (chat.User, bool, error) {
	users, _, err := rt.users()
	if err != nil {
		return chat.User{}, false, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, true, nil
		}
	}
	return chat.User{}, false, nil
}

// UserByName accepts the name with or without a leading "@".
func (rt *Runtime) UserByName(name string) (chat.User, bool, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	users, _, err := rt.users()
	if err != nil {
		return chat.User{}, false, err
	}
	for _, u := range users {
		if u.Name == name {
			return u, true, nil
		}
	}
	return chat.User{}, false, nil
}

// UserIsOnline reads the presence cached on the roster and asks the
// platform only when nothing is cached. The answer is written back to the
// roster; presence_change events keep it current from then on.
func (rt *Runtime) UserIsOnline(ctx context.Context, userID string) (bool, error) {
	u, ok, err := rt.UserByID(userID)
	if err != nil {
		return false, err
	}
	if ok && u.Presence != "" {
		return u.Presence == chat.PresenceActive, nil
	}
	p, err := rt.Chat.GetPresence(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("standup: presence of %s: %w", userID, err)
	}
	if ok && p != "" {
		if err := (&ProcessPresenceChange{UserID: userID, Presence: p}).Execute(ctx, rt); err != nil {
			return false, err
		}
	}
	return p == chat.PresenceActive, nil
}

func (rt *Runtime) imChannel(userID string) (string, bool, error) {
	var ims []chat.IM
	if _, err := rt.Store.Get(keyIMs, &ims); err != nil {
		return "", false, err
	}
	for _, im := range ims {
		if im.User == userID {
			return im.ID, true, nil
		}
	}
	return "", false, nil
}

func (rt *Runtime) isDirectChannel(channel string) (bool, error) {
	var ims []chat.IM
	if _, err := rt.Store.Get(keyIMs, &ims); err != nil {
		return false, err
	}
	for _, im := range ims {
		if im.ID == channel {
			return true, nil
		}
	}
	return false, nil
}

// SendTyping shows the typing indicator for a quarter of the typing delay
// and then waits out the rest.
func (rt *Runtime) SendTyping(ctx context.Context, channel string) {
	delay := rt.Settings().TypingDelay
	if rt.Typer == nil || delay <= 0 {
		return
	}
	before := delay / 4
	rt.sleep(ctx, before)
	if err := rt.Typer.SendTyping(ctx, channel); err != nil {
		rt.log.Debug("typing indicator failed", logx.String("channel", channel), logx.Err(err))
	}
	rt.sleep(ctx, delay-before)
}

// ---- Report ----

func (rt *Runtime) loadReport() (Report, error) {
	rep := Report{}
	if _, err := rt.Store.Get(keyReport, &rep); err != nil {
		return nil, err
	}
	if rep == nil {
		rep = Report{}
	}
	return rep, nil
}

func (rt *Runtime) saveReport(rep Report) error {
	return rt.Store.Set(keyReport, rep, 0)
}

// Report returns a decoded copy of the stored report history.
func (rt *Runtime) Report() (Report, error) { return rt.loadReport() }

func (rt *Runtime) today() string {
	return dayKey(rt.now(), rt.Settings().Location)
}

func (rt *Runtime) teamNames(ids []string) string {
	s := rt.Settings()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.team(id); ok {
			names = append(names, t.DisplayName())
			continue
		}
		names = append(names, id)
	}
	return strings.Join(names, ", ")
}

// ---- Loop hooks ----

// HandleEvent turns an inbound realtime event into fast queue work. Events
// without a handler are ignored.
func (rt *Runtime) HandleEvent(ev chat.Event) {
	switch ev.Type {
	case chat.EventMessage:
		if ev.Message != nil {
			rt.Fast.Append(&ReadMessage{Msg: *ev.Message})
		}
	case chat.EventIMCreated:
		rt.Fast.Append(&UpdateIMList{})
	case chat.EventPresenceChange:
		if ev.Presence != nil {
			rt.Fast.Append(&ProcessPresenceChange{UserID: ev.Presence.User, Presence: ev.Presence.Presence})
		}
	case chat.EventHello:
		rt.log.Info("realtime session ready")
	case chat.EventPong:
		rt.log.Trace("pong")
	default:
		rt.log.Trace("event ignored", logx.String("type", ev.Type))
	}
}

// Bootstrap seeds the slow queue: roster, DM channels and the two periodic
// tasks.
func (rt *Runtime) Bootstrap() {
	rt.Slow.Append(&UpdateUserList{})
	rt.Slow.Append(&UpdateIMList{})
	rt.Slow.Append(&CheckReports{})
	rt.Slow.Append(&SyncDB{})
}

// Tick processes the slow queue, then the fast one. Each queue keeps its
// own interval.
func (rt *Runtime) Tick(ctx context.Context, now time.Time) (int, error) {
	run := func(ctx context.Context, t Task) error { return t.Execute(ctx, rt) }
	slow, err := rt.Slow.Process(ctx, now, run)
	if err != nil {
		return slow, err
	}
	fast, err := rt.Fast.Process(ctx, now, run)
	return slow + fast, err
}
