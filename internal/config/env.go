package config

import (
	"os"
	"strings"
)

const (
	EnvSlackToken    = "STANDUP_SLACK_TOKEN"
	EnvTelegramToken = "STANDUP_TELEGRAM_TOKEN"
)

// ApplyEnv lets secrets live outside the config file (.env or the process
// environment). Non-empty variables win over file values.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv(EnvSlackToken)); v != "" {
		cfg.Slack.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
}
