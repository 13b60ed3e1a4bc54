package slack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

var errInvalidAuth = errors.New("slack rtm: invalid auth")

// drainTimeout bounds how long a closed session's event channel is drained
// while the library winds down its goroutines.
const drainTimeout = 10 * time.Second

// RTM wraps one library-managed websocket per Connect. The library's own
// reconnects are not used: an unintentional disconnect is surfaced as a
// goodbye so the caller closes and reconnects with its own backoff.
//
// Read must be called from one goroutine; SendTyping and Ping may be
// called concurrently with it.
type RTM struct {
	client *Client
	log    logx.Logger

	mu   sync.Mutex
	sess *session
}

type session struct {
	rtm  *slackapi.RTM
	done chan struct{}
}

var _ chat.RealTime = (*RTM)(nil)

func NewRTM(client *Client) *RTM {
	return &RTM{client: client, log: client.log.With(logx.String("sub", "rtm"))}
}

// Connect opens a fresh session, closing the previous one if any.
func (r *RTM) Connect(ctx context.Context) error {
	_ = r.Close()

	s := &session{rtm: r.client.api.NewRTM(), done: make(chan struct{})}
	go func() {
		defer close(s.done)
		s.rtm.ManageConnection()
	}()

	for {
		select {
		case <-ctx.Done():
			r.shut(s)
			return ctx.Err()
		case <-s.done:
			return errors.New("slack rtm: connection manager stopped")
		case ev := <-s.rtm.IncomingEvents:
			switch data := ev.Data.(type) {
			case *slackapi.ConnectedEvent:
				r.mu.Lock()
				r.sess = s
				r.mu.Unlock()
				self := ""
				if data.Info != nil && data.Info.User != nil {
					self = data.Info.User.Name
				}
				r.log.Info("rtm connected", logx.String("self", self))
				return nil
			case *slackapi.InvalidAuthEvent:
				r.shut(s)
				return errInvalidAuth
			case *slackapi.ConnectionErrorEvent:
				r.shut(s)
				return fmt.Errorf("slack rtm connect: %w", data.ErrorObj)
			}
		}
	}
}

func (r *RTM) current() *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

// Read returns the next event the bot reacts to. Frames the library could
// not decode are logged and skipped.
func (r *RTM) Read(ctx context.Context) (chat.Event, error) {
	s := r.current()
	if s == nil {
		return chat.Event{}, chat.ErrNotConnected
	}
	for {
		select {
		case <-ctx.Done():
			return chat.Event{}, ctx.Err()
		case <-s.done:
			r.detach(s)
			return chat.Event{}, chat.ErrNotConnected
		case ev := <-s.rtm.IncomingEvents:
			out, keep, err := r.translate(ev)
			if err != nil {
				return chat.Event{}, err
			}
			if keep {
				return out, nil
			}
		}
	}
}

func (r *RTM) translate(ev slackapi.RTMEvent) (chat.Event, bool, error) {
	switch data := ev.Data.(type) {
	case *slackapi.HelloEvent:
		return chat.Event{Type: chat.EventHello}, true, nil
	case *slackapi.LatencyReport:
		r.log.Trace("rtm pong", logx.Duration("latency", data.Value))
		return chat.Event{Type: chat.EventPong}, true, nil
	case *slackapi.MessageEvent:
		return chat.Event{Type: chat.EventMessage, Message: toMessage(data)}, true, nil
	case *slackapi.PresenceChangeEvent:
		return chat.Event{
			Type:     chat.EventPresenceChange,
			Presence: &chat.PresenceChange{User: data.User, Presence: data.Presence},
		}, true, nil
	case *slackapi.IMCreatedEvent:
		return chat.Event{Type: chat.EventIMCreated}, true, nil
	case *slackapi.DisconnectedEvent:
		if data.Intentional {
			return chat.Event{}, false, chat.ErrNotConnected
		}
		r.log.Info("rtm disconnected", logx.Err(data.Cause))
		return chat.Event{Type: chat.EventGoodbye}, true, nil
	case *slackapi.InvalidAuthEvent:
		return chat.Event{}, false, errInvalidAuth
	case *slackapi.UnmarshallingErrorEvent:
		r.log.Warn("rtm frame skipped", logx.Err(data.ErrorObj))
		return chat.Event{}, false, nil
	case *slackapi.ConnectingEvent, *slackapi.ConnectedEvent, *slackapi.ConnectionErrorEvent, *slackapi.AckMessage:
		return chat.Event{}, false, nil
	case error:
		r.log.Warn("rtm error event", logx.String("type", ev.Type), logx.Err(data))
		return chat.Event{}, false, nil
	default:
		return chat.Event{Type: ev.Type}, true, nil
	}
}

func toMessage(m *slackapi.MessageEvent) *chat.Message {
	out := fromMsg(m.Msg)
	out.Type = chat.EventMessage
	if m.SubMessage != nil {
		out.Message = fromMsg(*m.SubMessage)
	}
	if m.PreviousMessage != nil {
		out.PreviousMessage = fromMsg(*m.PreviousMessage)
	}
	return out
}

func fromMsg(m slackapi.Msg) *chat.Message {
	return &chat.Message{
		Type:    m.Type,
		Subtype: m.SubType,
		Channel: m.Channel,
		User:    m.User,
		Text:    m.Text,
		BotID:   m.BotID,
		TS:      m.Timestamp,
		Hidden:  m.Hidden,
	}
}

// send queues an outgoing frame. The library's outgoing buffer is small, so
// the wait is bounded by ctx.
func (r *RTM) send(ctx context.Context, build func(*slackapi.RTM) *slackapi.OutgoingMessage) error {
	s := r.current()
	if s == nil {
		return chat.ErrNotConnected
	}
	msg := build(s.rtm)
	sent := make(chan struct{})
	go func() {
		s.rtm.SendMessage(msg)
		close(sent)
	}()
	select {
	case <-sent:
		return nil
	case <-s.done:
		return chat.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RTM) SendTyping(ctx context.Context, channel string) error {
	return r.send(ctx, func(rtm *slackapi.RTM) *slackapi.OutgoingMessage {
		return rtm.NewTypingMessage(channel)
	})
}

func (r *RTM) Ping(ctx context.Context) error {
	return r.send(ctx, func(rtm *slackapi.RTM) *slackapi.OutgoingMessage {
		msg := rtm.NewOutgoingMessage("", "")
		msg.Type = "ping"
		return msg
	})
}

func (r *RTM) Close() error {
	r.mu.Lock()
	s := r.sess
	r.sess = nil
	r.mu.Unlock()
	if s != nil {
		r.shut(s)
	}
	return nil
}

func (r *RTM) detach(s *session) {
	r.mu.Lock()
	if r.sess == s {
		r.sess = nil
	}
	r.mu.Unlock()
}

// shut asks the library to disconnect and drains its event channel until
// the connection manager returns, so none of its goroutines block on a
// full channel.
func (r *RTM) shut(s *session) {
	go func() { _ = s.rtm.Disconnect() }()
	go func() {
		timeout := time.NewTimer(drainTimeout)
		defer timeout.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-timeout.C:
				r.log.Warn("rtm shutdown timed out")
				return
			case <-s.rtm.IncomingEvents:
			}
		}
	}()
}
