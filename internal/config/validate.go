package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate reports every problem it finds, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Slack.Token) == "" {
		add(fmt.Errorf("slack.token is required (or set %s)", EnvSlackToken))
	}

	for path, raw := range map[string]string{
		"bot.slow_interval":    cfg.Bot.SlowInterval,
		"bot.fast_interval":    cfg.Bot.FastInterval,
		"bot.poll_interval":    cfg.Bot.PollInterval,
		"bot.ping_interval":    cfg.Bot.PingInterval,
		"bot.typing_delay":     cfg.Bot.TypingDelay,
		"storage.busy_timeout": cfg.Storage.BusyTimeout,
		"standup.last_call":    cfg.Standup.LastCall,
		"standup.reply_window": cfg.Standup.ReplyWindow,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path is required for file/sqlite drivers"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	if cfg.Logging.Alert.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || cfg.Telegram.ChatID == 0) {
		add(errors.New("logging.alert requires telegram.token and telegram.chat_id"))
	}

	_, err := LoadLocation("standup.timezone", cfg.Standup.Timezone)
	add(err)
	_, err = LoadLocation("schedules.timezone", cfg.Schedules.Timezone)
	add(err)

	if cfg.Standup.SummaryMaxLen < 0 {
		add(errors.New("standup.summary_max_len must be >= 0"))
	}
	if cfg.Standup.ReportRetentionDays < 0 {
		add(errors.New("standup.report_retention_days must be >= 0"))
	}
	for day := range cfg.Standup.Holidays {
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(day)); err != nil {
			add(fmt.Errorf("standup.holidays: invalid date %q (want YYYY-MM-DD)", day))
		}
	}

	seen := map[string]bool{}
	for _, id := range cfg.Standup.ActiveTeams {
		if seen[id] {
			add(fmt.Errorf("standup.active_teams: %q listed twice", id))
		}
		seen[id] = true
		team, ok := cfg.Standup.Teams[id]
		if !ok {
			add(fmt.Errorf("standup.active_teams: unknown team %q", id))
			continue
		}
		add(validateTeam("standup.teams."+id, team))
	}
	return errors.Join(errs...)
}

func validateTeam(path string, t TeamConfig) error {
	var errs []error
	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", path))
	}
	if strings.TrimSpace(t.PostSummaryTo) == "" {
		errs = append(errs, fmt.Errorf("%s.post_summary_to is required", path))
	}
	ah, am, err := ParseClock(path+".ask_earliest", t.AskEarliest)
	if err != nil {
		errs = append(errs, err)
	}
	rh, rm, err2 := ParseClock(path+".report_by", t.ReportBy)
	if err2 != nil {
		errs = append(errs, err2)
	}
	if err == nil && err2 == nil && rh*60+rm <= ah*60+am {
		errs = append(errs, fmt.Errorf("%s: report_by must be after ask_earliest", path))
	}
	if _, err := LoadLocation(path+".timezone", t.Timezone); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField(path+".last_call", t.LastCall); err != nil {
		errs = append(errs, err)
	}
	for i, u := range t.Users {
		if strings.TrimPrefix(u.Name, "@") == "" {
			errs = append(errs, fmt.Errorf("%s.users[%d]: empty name", path, i))
		}
	}
	return errors.Join(errs...)
}
