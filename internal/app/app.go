package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"standupbot/internal/chat"
	"standupbot/internal/chat/slack"
	"standupbot/internal/config"
	"standupbot/internal/eventbus"
	"standupbot/internal/kv"
	"standupbot/internal/observability/status"
	"standupbot/internal/runtime/supervisor"
	"standupbot/internal/standup"
	"standupbot/internal/storage"
	"standupbot/internal/task/queue"
	"standupbot/internal/task/scheduler"
	"standupbot/internal/transport/telegram"
	logx "standupbot/pkg/logx"
)

const (
	eventBuffer   = 256
	snapshotLoadT = 10 * time.Second
)

// errReconnect ends a read session so the supervisor dials a fresh one.
var errReconnect = errors.New("rtm: server requested reconnect")

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	sink  storage.Sink
	store *kv.Store

	client chat.Client
	rtm    chat.RealTime

	rt     *standup.Runtime
	slow   *queue.Queue[standup.Task]
	fast   *queue.Queue[standup.Task]
	sched  *scheduler.Service
	status *status.Server

	metrics *sdkmetric.ManualReader
	meters  *sdkmetric.MeterProvider

	timings atomic.Pointer[loopTimings]
	events  chan chat.Event

	startedAt time.Time
	connected atomic.Bool
	lastEvent atomic.Int64
}

// deps are the outer resources New opens from the config file.
type deps struct {
	log    logx.Logger
	logs   *logx.Service
	client chat.Client
	rtm    chat.RealTime
	sink   storage.Sink
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO")

	var sender logx.AlertSender
	if cfg.Logging.Alert.Enabled {
		tg, err := telegram.New(telegram.Config{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		}, bootLog.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram alerts: %w", err)
		}
		sender = tg
	}
	logSvc, log := logx.New(mapLogConfig(cfg), sender)

	client := slack.New(slack.Config{
		Token:      cfg.Slack.Token,
		APIURL:     cfg.Slack.APIURL,
		RatePerSec: cfg.Slack.RatePerSec,
		Debug:      cfg.Bot.Debug,
	}, log)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	sink, err := storage.Open(sc, log)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		log.Warn("storage disabled; reports will not survive a restart")
		sink = storage.NewMemory()
	case err != nil:
		return nil, err
	default:
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	return build(cfgm, cfg, deps{
		log:    log,
		logs:   logSvc,
		client: client,
		rtm:    slack.NewRTM(client),
		sink:   sink,
	})
}

func build(cfgm *config.Manager, cfg *config.Config, d deps) (*App, error) {
	log := d.log
	if log.IsZero() {
		log = logx.Nop()
	}
	timings, err := mapLoopTimings(cfg)
	if err != nil {
		return nil, err
	}
	settings, err := mapStandupSettings(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	reader := sdkmetric.NewManualReader()
	meters := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := meters.Meter("standupbot/queue")

	now := time.Now()
	slowCfg, fastCfg := queueConfigs(cfg, timings)
	qlog := log.With(logx.String("comp", "queue"))
	slow := queue.New[standup.Task](slowCfg, queue.WithLogger(qlog), queue.WithBus(bus), queue.WithMeter(meter), queue.WithStartedAt(now))
	fast := queue.New[standup.Task](fastCfg, queue.WithLogger(qlog), queue.WithBus(bus), queue.WithMeter(meter), queue.WithStartedAt(now))

	store := kv.New(kv.WithSink(d.sink), kv.WithLogger(log))
	loadCtx, cancel := context.WithTimeout(context.Background(), snapshotLoadT)
	err = store.Load(loadCtx)
	cancel()
	if err != nil {
		return nil, err
	}

	rt, err := standup.New(standup.Options{
		Store:    store,
		Slow:     slow,
		Fast:     fast,
		Chat:     d.client,
		Typer:    d.rtm,
		Settings: settings,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      d.logs,
		bus:       bus,
		sink:      d.sink,
		store:     store,
		client:    d.client,
		rtm:       d.rtm,
		rt:        rt,
		slow:      slow,
		fast:      fast,
		sched:     scheduler.New(scheduler.Config{Timezone: cfg.Schedules.Timezone}, log.With(logx.String("comp", "scheduler"))),
		metrics:   reader,
		meters:    meters,
		events:    make(chan chat.Event, eventBuffer),
		startedAt: now,
	}
	a.timings.Store(&timings)
	if err := a.registerTriggers(cfg); err != nil {
		return nil, err
	}
	if cfg.Status.Enabled {
		a.status = status.New(status.Config{
			Addr:  cfg.Status.Addr,
			Token: cfg.Status.Token,
			Pprof: cfg.Status.Pprof,
		}, a, log.With(logx.String("comp", "status")))
	}
	return a, nil
}

// registerTriggers (re)binds the maintenance schedules. Add replaces an
// existing trigger with the same name.
func (a *App) registerTriggers(cfg *config.Config) error {
	roster := scheduleOrDefault(cfg.Schedules.RosterRefresh, defaultRosterRefresh)
	if err := a.sched.Add("roster_refresh", roster, func() {
		a.slow.Append(&standup.UpdateUserList{})
		a.slow.Append(&standup.UpdateIMList{})
	}); err != nil {
		return fmt.Errorf("schedules.roster_refresh: %w", err)
	}
	prune := scheduleOrDefault(cfg.Schedules.ReportPrune, defaultReportPrune)
	if err := a.sched.Add("report_prune", prune, func() {
		a.slow.Append(&standup.PruneReports{})
	}); err != nil {
		return fmt.Errorf("schedules.report_prune: %w", err)
	}
	return nil
}

// validate rejects reloads that would fail to apply.
func validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapLoopTimings(cfg); err != nil {
		return err
	}
	if _, err := mapStandupSettings(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	for path, raw := range map[string]string{
		"schedules.roster_refresh": scheduleOrDefault(cfg.Schedules.RosterRefresh, defaultRosterRefresh),
		"schedules.report_prune":   scheduleOrDefault(cfg.Schedules.ReportPrune, defaultReportPrune),
	} {
		if err := scheduler.ValidateSchedule(raw); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log)
		a.cfgm.SetValidator(validate)
	}

	a.rt.Bootstrap()
	a.sched.Start(a.sup.Context())

	if a.rtm != nil {
		a.sup.GoRestart("rtm.read", a.readLoop, supervisor.WithBackoff(time.Second, time.Minute))
	}
	a.sup.Go("loop", a.loop)

	if a.status != nil {
		a.sup.GoRestart("status", a.status.Run, supervisor.WithBackoff(time.Second, time.Minute))
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
				}
			}
		})
	}

	if a.cfgm != nil {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			last := a.cfgm.Get()
			for {
				select {
				case <-c.Done():
					return nil
				case next, ok := <-sub:
					if !ok {
						return nil
					}
					// Coalesce bursts: keep only the latest config.
				drain:
					for {
						select {
						case newer := <-sub:
							if newer != nil {
								next = newer
							}
						default:
							break drain
						}
					}
					a.applyConfig(last, next)
					last = next
				}
			}
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started", logx.Strings("active_teams", a.rt.Settings().ActiveTeams))
	return nil
}

// applyConfig hot-applies a validated reload. Sections that need a restart
// only produce a warning.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.Strings("sections", restart))
	}

	if a.logs != nil {
		a.logs.Apply(mapLogConfig(next))
	}
	if s, err := mapStandupSettings(next); err != nil {
		a.log.Warn("invalid standup config; keeping previous", logx.Err(err))
	} else {
		a.rt.ApplySettings(s)
	}
	if t, err := mapLoopTimings(next); err != nil {
		a.log.Warn("invalid bot timings; keeping previous", logx.Err(err))
	} else {
		a.timings.Store(&t)
		slowCfg, fastCfg := queueConfigs(next, t)
		a.slow.SetConfig(slowCfg)
		a.fast.SetConfig(fastCfg)
	}
	a.sched.Apply(scheduler.Config{Timezone: next.Schedules.Timezone})
	if err := a.registerTriggers(next); err != nil {
		a.log.Warn("invalid schedules; keeping previous triggers", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// readLoop holds one realtime session and forwards its events to the loop.
// It returns on any read failure; the supervisor restarts it with backoff.
func (a *App) readLoop(ctx context.Context) error {
	if err := a.rtm.Connect(ctx); err != nil {
		return err
	}
	a.connected.Store(true)
	defer a.connected.Store(false)

	for {
		ev, err := a.rtm.Read(ctx)
		if err != nil {
			_ = a.rtm.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("rtm read: %w", err)
		}
		a.lastEvent.Store(time.Now().UnixNano())
		if ev.Type == chat.EventGoodbye {
			_ = a.rtm.Close()
			return errReconnect
		}
		select {
		case a.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// loop is the single consumer of inbound events and the only caller of
// Runtime.Tick.
func (a *App) loop(ctx context.Context) error {
	t := *a.timings.Load()
	poll := time.NewTicker(t.poll)
	defer poll.Stop()

	watchdog, _ := daemon.SdWatchdogEnabled(false)
	var lastPing, lastWatchdog time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.events:
			a.rt.HandleEvent(ev)
			continue
		case <-poll.C:
		}

		now := time.Now()
		if _, err := a.rt.Tick(ctx, now); err != nil {
			return fmt.Errorf("tick: %w", err)
		}

		next := *a.timings.Load()
		if next.poll != t.poll {
			poll.Reset(next.poll)
		}
		t = next
		if a.rtm != nil && a.connected.Load() && now.Sub(lastPing) >= t.ping {
			if err := a.rtm.Ping(ctx); err != nil {
				a.log.Debug("rtm ping failed", logx.Err(err))
			}
			lastPing = now
		}
		if watchdog > 0 && now.Sub(lastWatchdog) >= watchdog/2 {
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			lastWatchdog = now
		}
	}
}

// Status implements status.Source.
func (a *App) Status() status.Snapshot {
	keys := a.store.Keys()
	snap := status.Snapshot{
		StartedAt: a.startedAt,
		Connected: a.connected.Load(),
		StoreKeys: len(keys),
		Keys:      keys,
		Queues:    []queue.Stats{a.slow.Stats(), a.fast.Stats()},
		Schedules: a.sched.Schedules(),
		Metrics:   a.collectMetrics(context.Background()),
	}
	if a.bus != nil {
		snap.EventsDropped = a.bus.Dropped()
	}
	if ns := a.lastEvent.Load(); ns > 0 {
		snap.LastEvent = time.Unix(0, ns)
	}
	if a.sup != nil {
		snap.Routines = a.sup.Snapshot()
	}
	return snap
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "rtm", time.Second, func(context.Context) error {
		if a.rtm == nil {
			return nil
		}
		return a.rtm.Close()
	})
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "snapshot", 3*time.Second, a.store.Save)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.sink.Close() })
	a.step(ctx, "metrics", time.Second, a.meters.Shutdown)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown stage bounded by max and the caller's deadline, so
// one component cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
