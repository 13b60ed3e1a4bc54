package logx

// Config is the hot-swappable sink setup applied by Service.Apply.
type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Alert   AlertConfig
}

type FileConfig struct {
	Enabled bool
	// Path defaults to ./standupbot.log.
	Path string
}

// AlertConfig forwards records at or above MinLevel to the AlertSender,
// at most RatePerSec per second.
type AlertConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}
