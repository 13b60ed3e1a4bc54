package app

import (
	"path/filepath"
	"strings"
	"time"

	"standupbot/internal/config"
	"standupbot/internal/standup"
	"standupbot/internal/storage"
	"standupbot/internal/task/queue"
	logx "standupbot/pkg/logx"
)

const (
	defaultRosterRefresh = "30m"
	defaultReportPrune   = "cron:0 3 * * *"
)

// loopTimings are the scheduler loop cadences.
type loopTimings struct {
	slow, fast, poll, ping time.Duration
}

func mapLoopTimings(cfg *config.Config) (loopTimings, error) {
	var (
		t   loopTimings
		err error
	)
	if t.slow, err = config.ParseDurationOrDefault("bot.slow_interval", cfg.Bot.SlowInterval, 5*time.Second); err != nil {
		return t, err
	}
	if t.fast, err = config.ParseDurationOrDefault("bot.fast_interval", cfg.Bot.FastInterval, 500*time.Millisecond); err != nil {
		return t, err
	}
	if t.poll, err = config.ParseDurationOrDefault("bot.poll_interval", cfg.Bot.PollInterval, 100*time.Millisecond); err != nil {
		return t, err
	}
	if t.ping, err = config.ParseDurationOrDefault("bot.ping_interval", cfg.Bot.PingInterval, 5*time.Second); err != nil {
		return t, err
	}
	return t, nil
}

func queueConfigs(cfg *config.Config, t loopTimings) (slow, fast queue.Config) {
	slow = queue.Config{Name: "slow", Interval: t.slow, Strict: cfg.Bot.Debug}
	fast = queue.Config{Name: "fast", Interval: t.fast, Strict: cfg.Bot.Debug}
	return slow, fast
}

// mapStandupSettings turns the standup section into runtime settings.
func mapStandupSettings(cfg *config.Config) (standup.Settings, error) {
	sc := cfg.Standup
	loc, err := config.LoadLocation("standup.timezone", sc.Timezone)
	if err != nil {
		return standup.Settings{}, err
	}
	lastCall, err := config.ParseDurationField("standup.last_call", sc.LastCall)
	if err != nil {
		return standup.Settings{}, err
	}
	reply, err := config.ParseDurationOrDefault("standup.reply_window", sc.ReplyWindow, 5*time.Minute)
	if err != nil {
		return standup.Settings{}, err
	}
	typing, err := config.ParseDurationOrDefault("bot.typing_delay", cfg.Bot.TypingDelay, 1250*time.Millisecond)
	if err != nil {
		return standup.Settings{}, err
	}

	s := standup.Settings{
		Location:         loc,
		ActiveTeams:      append([]string(nil), sc.ActiveTeams...),
		Teams:            make(map[string]standup.Team, len(sc.Teams)),
		Holidays:         make(map[string]string, len(sc.Holidays)),
		LastCall:         lastCall,
		ReplyWindow:      reply,
		TypingDelay:      typing,
		SummaryMaxLen:    sc.SummaryMaxLen,
		AnnounceHolidays: sc.AnnounceHolidays == nil || *sc.AnnounceHolidays,
		RetentionDays:    sc.ReportRetentionDays,
	}
	for day, desc := range sc.Holidays {
		s.Holidays[strings.TrimSpace(day)] = desc
	}
	for id, tc := range sc.Teams {
		team, err := mapTeam(id, tc)
		if err != nil {
			return standup.Settings{}, err
		}
		s.Teams[id] = team
	}
	return s, nil
}

func mapTeam(id string, tc config.TeamConfig) (standup.Team, error) {
	path := "standup.teams." + id
	askH, askM, err := config.ParseClock(path+".ask_earliest", tc.AskEarliest)
	if err != nil {
		return standup.Team{}, err
	}
	byH, byM, err := config.ParseClock(path+".report_by", tc.ReportBy)
	if err != nil {
		return standup.Team{}, err
	}
	lastCall, err := config.ParseDurationField(path+".last_call", tc.LastCall)
	if err != nil {
		return standup.Team{}, err
	}
	team := standup.Team{
		ID:            id,
		Name:          tc.Name,
		PostSummaryTo: tc.PostSummaryTo,
		AskEarliest:   standup.Clock{Hour: askH, Minute: askM},
		ReportBy:      standup.Clock{Hour: byH, Minute: byM},
		LastCall:      lastCall,
	}
	if strings.TrimSpace(tc.Timezone) != "" {
		if team.Location, err = config.LoadLocation(path+".timezone", tc.Timezone); err != nil {
			return standup.Team{}, err
		}
	}
	for _, m := range tc.Users {
		team.Members = append(team.Members, standup.Member{Name: m.Name, Department: m.Department})
	}
	return team, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	level := lc.Level
	if cfg.Bot.Debug {
		level = "debug"
	}
	path := lc.File.Path
	if lc.File.Enabled && path != "" {
		path = resolvePath(cfg.Bot.WorkDir, path)
	}
	return logx.Config{
		Level:   level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: path},
		Alert: logx.AlertConfig{
			Enabled:    lc.Alert.Enabled,
			MinLevel:   lc.Alert.MinLevel,
			RatePerSec: lc.Alert.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(sc.Path)
	if path != "" {
		path = resolvePath(cfg.Bot.WorkDir, path)
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        path,
		BusyTimeout: busy,
	}, nil
}

// resolvePath anchors relative paths at workDir.
func resolvePath(workDir, p string) string {
	if workDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, p)
}

func scheduleOrDefault(raw, def string) string {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	return raw
}
