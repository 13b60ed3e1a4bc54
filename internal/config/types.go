package config

// Config is the whole bot configuration file (JSON or YAML).
type Config struct {
	Slack     SlackConfig     `json:"slack"`
	Bot       BotConfig       `json:"bot"`
	Logging   LoggingConfig   `json:"logging"`
	Telegram  TelegramConfig  `json:"telegram,omitempty"`
	Storage   StorageConfig   `json:"storage"`
	Status    StatusConfig    `json:"status,omitempty"`
	Schedules SchedulesConfig `json:"schedules,omitempty"`
	Standup   StandupConfig   `json:"standup"`
}

// SlackConfig holds the chat platform credentials.
// STANDUP_SLACK_TOKEN overrides Token.
type SlackConfig struct {
	Token  string `json:"token"`
	APIURL string `json:"api_url,omitempty"` // default: https://slack.com/api/
	// RatePerSec paces chat.postMessage; default 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// BotConfig controls the scheduler loop. Durations are Go duration strings.
//
// Defaults:
//   - slow_interval: "5s"
//   - fast_interval: "500ms"
//   - poll_interval: "100ms"
//   - ping_interval: "5s"
//   - typing_delay: "1.25s"
type BotConfig struct {
	WorkDir      string `json:"work_dir,omitempty"`
	Debug        bool   `json:"debug"`
	SlowInterval string `json:"slow_interval,omitempty"`
	FastInterval string `json:"fast_interval,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	PingInterval string `json:"ping_interval,omitempty"`
	TypingDelay  string `json:"typing_delay,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert forwards records at or above MinLevel to the telegram chat.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig is the operator alert target.
// STANDUP_TELEGRAM_TOKEN overrides Token.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// StorageConfig selects where the store snapshot lives.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./standup.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// StatusConfig controls the optional HTTP status endpoint.
//
// Prefer a loopback address; set a token when binding elsewhere.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:6061"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)
	Pprof   bool   `json:"pprof,omitempty"`
}

// SchedulesConfig holds maintenance triggers (cron, duration or HH:MM).
//
// Defaults:
//   - roster_refresh: "30m"
//   - report_prune: "cron:0 3 * * *"
type SchedulesConfig struct {
	RosterRefresh string `json:"roster_refresh,omitempty"`
	ReportPrune   string `json:"report_prune,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

// StandupConfig is the hot-reloadable standup behaviour.
type StandupConfig struct {
	// Timezone keys report dates and the end-of-day lock expiry. Default UTC.
	Timezone    string                `json:"timezone,omitempty"`
	ActiveTeams []string              `json:"active_teams"`
	Teams       map[string]TeamConfig `json:"teams"`
	// Holidays maps YYYY-MM-DD to a description.
	Holidays map[string]string `json:"holidays,omitempty"`

	LastCall            string `json:"last_call,omitempty"`    // default "0s" (disabled)
	ReplyWindow         string `json:"reply_window,omitempty"` // default "5m"
	SummaryMaxLen       int    `json:"summary_max_len,omitempty"`
	AnnounceHolidays    *bool  `json:"announce_holidays,omitempty"` // default true
	ReportRetentionDays int    `json:"report_retention_days,omitempty"`
}

type TeamConfig struct {
	Name          string   `json:"name"`
	PostSummaryTo string   `json:"post_summary_to"`
	AskEarliest   string   `json:"ask_earliest"` // HH:MM, team-local
	ReportBy      string   `json:"report_by"`    // HH:MM, team-local
	Timezone      string   `json:"timezone,omitempty"`
	LastCall      string   `json:"last_call,omitempty"`
	Users         []Member `json:"users"`
}
