package config

import (
	"reflect"
	"sort"

	logx "standupbot/pkg/logx"
)

// SummarizeConfigChange lists the top-level sections that differ and a few
// safe log attrs describing the new values. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	if oldCfg.Slack.APIURL != newCfg.Slack.APIURL || oldCfg.Slack.Token != newCfg.Slack.Token ||
		oldCfg.Slack.RatePerSec != newCfg.Slack.RatePerSec {
		changed = append(changed, "slack")
		attrs = append(attrs, logx.Bool("slack.token_changed", oldCfg.Slack.Token != newCfg.Slack.Token))
	}
	if oldCfg.Bot != newCfg.Bot {
		changed = append(changed, "bot")
		attrs = append(attrs,
			logx.Bool("bot.debug", newCfg.Bot.Debug),
			logx.String("bot.slow_interval", newCfg.Bot.SlowInterval),
			logx.String("bot.fast_interval", newCfg.Bot.FastInterval),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.alert", newCfg.Logging.Alert.Enabled),
		)
	}
	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID || oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Status.Enabled != newCfg.Status.Enabled || oldCfg.Status.Addr != newCfg.Status.Addr ||
		oldCfg.Status.Pprof != newCfg.Status.Pprof || oldCfg.Status.Token != newCfg.Status.Token {
		changed = append(changed, "status")
	}
	if oldCfg.Schedules != newCfg.Schedules {
		changed = append(changed, "schedules")
	}
	if !reflect.DeepEqual(oldCfg.Standup, newCfg.Standup) {
		changed = append(changed, "standup")
		teams := append([]string(nil), newCfg.Standup.ActiveTeams...)
		sort.Strings(teams)
		attrs = append(attrs,
			logx.Strings("standup.active_teams", teams),
			logx.Int("standup.holidays", len(newCfg.Standup.Holidays)),
		)
	}
	return changed, attrs
}

// RestartRequired reports sections whose change only takes effect after a
// restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "slack", "telegram", "storage", "status":
			out = append(out, s)
		}
	}
	return out
}
