package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "standupbot/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local
}

type scheduleDef struct {
	name          string
	spec          string // cron expression or "@every <dur>"
	fire          func()
	entryID       cron.EntryID
	startupSpread time.Duration
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
}

type ScheduleInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}
