// Package slack adapts github.com/slack-go/slack to the chat boundary: the
// Web API calls behind chat.Client and the managed RTM websocket behind
// chat.RealTime.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

const pageLimit = 200

type Config struct {
	Token   string
	APIURL  string
	Timeout time.Duration
	// RatePerSec paces chat.postMessage; Slack allows about one per second
	// per channel.
	RatePerSec int
	Debug      bool
}

// Client is safe for concurrent use.
type Client struct {
	api  *slackapi.Client
	post *rate.Limiter
	log  logx.Logger
}

var _ chat.Client = (*Client)(nil)

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "slack"))

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts := []slackapi.Option{
		slackapi.OptionHTTPClient(&http.Client{Timeout: timeout}),
		slackapi.OptionLog(libLogger{log: log}),
		slackapi.OptionDebug(cfg.Debug),
	}
	if base := strings.TrimSpace(cfg.APIURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, slackapi.OptionAPIURL(base))
	}
	rps := max(1, cfg.RatePerSec)
	return &Client{
		api:  slackapi.New(cfg.Token, opts...),
		post: rate.NewLimiter(rate.Limit(rps), rps),
		log:  log,
	}
}

// libLogger routes the library's own diagnostics into the service logger.
type libLogger struct{ log logx.Logger }

func (l libLogger) Output(_ int, s string) error {
	l.log.Debug(strings.TrimSpace(s), logx.String("sub", "slack-go"))
	return nil
}

func (c *Client) PostMessage(ctx context.Context, channel, text string, attachments []chat.Attachment) error {
	if err := c.post.Wait(ctx); err != nil {
		return err
	}
	opts := []slackapi.MsgOption{
		slackapi.MsgOptionText(text, false),
		slackapi.MsgOptionAsUser(true),
	}
	if len(attachments) > 0 {
		opts = append(opts, slackapi.MsgOptionAttachments(toAttachments(attachments)...))
	}
	start := time.Now()
	_, _, err := c.api.PostMessageContext(ctx, channel, opts...)
	c.log.Debug("api call", logx.String("method", "chat.postMessage"), logx.Duration("took", time.Since(start)))
	if err != nil {
		return fmt.Errorf("slack chat.postMessage: %w", err)
	}
	return nil
}

func toAttachments(in []chat.Attachment) []slackapi.Attachment {
	out := make([]slackapi.Attachment, 0, len(in))
	for _, a := range in {
		att := slackapi.Attachment{
			Color:    a.Color,
			Title:    a.Title,
			Text:     a.Text,
			ThumbURL: a.ThumbURL,
			Footer:   a.Footer,
		}
		if a.Ts != 0 {
			att.Ts = json.Number(strconv.FormatInt(a.Ts, 10))
		}
		out = append(out, att)
	}
	return out
}

// ListUsers pages through users.list; the library waits out rate limits.
func (c *Client) ListUsers(ctx context.Context) ([]chat.User, error) {
	users, err := c.api.GetUsersContext(ctx,
		slackapi.GetUsersOptionLimit(pageLimit),
		slackapi.GetUsersOptionPresence(true),
	)
	if err != nil {
		return nil, fmt.Errorf("slack users.list: %w", err)
	}
	out := make([]chat.User, 0, len(users))
	for _, u := range users {
		out = append(out, chat.User{
			ID:       u.ID,
			Name:     u.Name,
			Deleted:  u.Deleted,
			Color:    u.Color,
			Presence: u.Presence,
			TZ:       u.TZ,
			Profile: chat.Profile{
				RealName: u.Profile.RealName,
				Image192: u.Profile.Image192,
			},
		})
	}
	return out, nil
}

// ListIMs returns the bot's direct-message channels. conversations.list does
// not carry the deleted flag through the library's Channel type, so deleted
// users are filtered against the roster by the caller.
func (c *Client) ListIMs(ctx context.Context) ([]chat.IM, error) {
	var out []chat.IM
	params := &slackapi.GetConversationsParameters{Types: []string{"im"}, Limit: pageLimit}
	for {
		channels, next, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("slack conversations.list: %w", err)
		}
		for _, ch := range channels {
			out = append(out, chat.IM{ID: ch.ID, User: ch.User, IsIM: ch.IsIM})
		}
		if next == "" {
			return out, nil
		}
		params.Cursor = next
	}
}

func (c *Client) GetPresence(ctx context.Context, userID string) (string, error) {
	p, err := c.api.GetUserPresenceContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("slack users.getPresence: %w", err)
	}
	return p.Presence, nil
}
