// Package chat defines the boundary between the standup core and the chat
// platform: the roster and DM channel shapes, inbound realtime events and
// the calls the core makes.
package chat

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("chat: realtime session not connected")

// Presence values reported by the platform.
const (
	PresenceActive = "active"
	PresenceAway   = "away"
)

// Realtime event types the bot reacts to.
const (
	EventHello          = "hello"
	EventPong           = "pong"
	EventGoodbye        = "goodbye"
	EventMessage        = "message"
	EventIMCreated      = "im_created"
	EventPresenceChange = "presence_change"
)

// SubtypeMessageChanged marks an edit notification.
const SubtypeMessageChanged = "message_changed"

type Profile struct {
	RealName string `json:"real_name"`
	Image192 string `json:"image_192,omitempty"`
}

type User struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Deleted  bool    `json:"deleted"`
	Color    string  `json:"color,omitempty"`
	Presence string  `json:"presence,omitempty"`
	TZ       string  `json:"tz,omitempty"`
	Profile  Profile `json:"profile"`
}

// IM is a direct-message channel with one user.
type IM struct {
	ID            string `json:"id"`
	User          string `json:"user"`
	IsIM          bool   `json:"is_im"`
	IsUserDeleted bool   `json:"is_user_deleted"`
}

type Attachment struct {
	Color    string `json:"color,omitempty"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text,omitempty"`
	ThumbURL string `json:"thumb_url,omitempty"`
	Footer   string `json:"footer,omitempty"`
	Ts       int64  `json:"ts,omitempty"`
}

// Message is an inbound "message" event. Edits arrive hidden, with subtype
// message_changed and both versions nested.
type Message struct {
	Type            string   `json:"type"`
	Subtype         string   `json:"subtype,omitempty"`
	Channel         string   `json:"channel,omitempty"`
	User            string   `json:"user,omitempty"`
	Text            string   `json:"text,omitempty"`
	BotID           string   `json:"bot_id,omitempty"`
	TS              string   `json:"ts,omitempty"`
	Hidden          bool     `json:"hidden,omitempty"`
	Message         *Message `json:"message,omitempty"`
	PreviousMessage *Message `json:"previous_message,omitempty"`
}

type PresenceChange struct {
	User     string `json:"user"`
	Presence string `json:"presence"`
}

// Event is one decoded realtime frame. Only the field matching Type is set.
type Event struct {
	Type     string
	Message  *Message
	Presence *PresenceChange
}

// Client is the request/response side of the platform.
type Client interface {
	PostMessage(ctx context.Context, channel, text string, attachments []Attachment) error
	ListUsers(ctx context.Context) ([]User, error)
	ListIMs(ctx context.Context) ([]IM, error)
	// GetPresence returns PresenceActive or PresenceAway.
	GetPresence(ctx context.Context, userID string) (string, error)
}

// RealTime is the event stream side of the platform.
type RealTime interface {
	Connect(ctx context.Context) error
	// Read blocks for the next event, skipping frames that cannot be
	// decoded. It returns ErrNotConnected when no session is open.
	Read(ctx context.Context) (Event, error)
	SendTyping(ctx context.Context, channel string) error
	Ping(ctx context.Context) error
	Close() error
}
