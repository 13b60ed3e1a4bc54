// Package telegram forwards operator alerts from the log sink to a Telegram
// chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "standupbot/pkg/logx"
)

const textLimit = 4096

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint.
	APIURL  string
	Timeout time.Duration
}

// Sender implements logx.AlertSender.
type Sender struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
}

var _ logx.AlertSender = (*Sender)(nil)

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{cfg: cfg, bot: b, log: log.With(logx.String("comp", "telegram"))}, nil
}

// SendAlert delivers text, split into chunks that fit one message.
func (s *Sender) SendAlert(ctx context.Context, text string) error {
	chat := &tele.Chat{ID: s.cfg.ChatID}
	opts := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: s.cfg.ThreadID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(chat, chunk, opts); err != nil {
			// Logging here would feed the alert sink again.
			return err
		}
	}
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that do not leave tiny chunks behind.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
