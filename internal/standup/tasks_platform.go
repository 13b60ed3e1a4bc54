package standup

import (
	"context"
	"strings"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

// SendMessage posts Text to To, which is a channel or a user id. A user id
// with a known DM channel is delivered there.
type SendMessage struct {
	To          string
	Text        string
	Attachments []chat.Attachment
}

func (*SendMessage) Name() string { return "send_message" }

func (t *SendMessage) Execute(ctx context.Context, rt *Runtime) error {
	channel := t.To
	if im, ok, err := rt.imChannel(t.To); err != nil {
		return err
	} else if ok {
		channel = im
	}

	rt.SendTyping(ctx, channel)

	if err := rt.Chat.PostMessage(ctx, channel, t.Text, t.Attachments); err != nil {
		rt.log.Warn("send message failed", logx.String("to", t.To), logx.String("channel", channel), logx.Err(err))
		return nil
	}
	rt.log.Debug("message sent", logx.String("channel", channel), logx.Int("attachments", len(t.Attachments)))
	return nil
}

// UpdateUserList replaces the cached roster, deleted accounts excluded.
type UpdateUserList struct{}

func (*UpdateUserList) Name() string { return "update_user_list" }

func (*UpdateUserList) Execute(ctx context.Context, rt *Runtime) error {
	users, err := rt.Chat.ListUsers(ctx)
	if err != nil {
		rt.log.Warn("roster refresh failed", logx.Err(err))
		return nil
	}
	live := make([]chat.User, 0, len(users))
	for _, u := range users {
		if u.Deleted {
			continue
		}
		live = append(live, u)
	}
	if err := rt.Store.Set(keyUsers, live, 0); err != nil {
		return err
	}
	rt.log.Debug("roster refreshed", logx.Int("users", len(live)))
	return nil
}

// UpdateIMList replaces the cached DM channels. Channels of deleted users
// are dropped, including users missing from a loaded roster.
type UpdateIMList struct{}

func (*UpdateIMList) Name() string { return "update_im_list" }

func (*UpdateIMList) Execute(ctx context.Context, rt *Runtime) error {
	ims, err := rt.Chat.ListIMs(ctx)
	if err != nil {
		rt.log.Warn("dm channel refresh failed", logx.Err(err))
		return nil
	}
	users, haveRoster, err := rt.users()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}
	live := make([]chat.IM, 0, len(ims))
	for _, im := range ims {
		if !im.IsIM || im.IsUserDeleted {
			continue
		}
		if haveRoster && !known[im.User] {
			continue
		}
		live = append(live, im)
	}
	if err := rt.Store.Set(keyIMs, live, 0); err != nil {
		return err
	}
	rt.log.Debug("dm channels refreshed", logx.Int("ims", len(live)))
	return nil
}

// ProcessPresenceChange records a presence update on the cached roster.
type ProcessPresenceChange struct {
	UserID   string
	Presence string
}

func (*ProcessPresenceChange) Name() string { return "process_presence_change" }

func (t *ProcessPresenceChange) Execute(_ context.Context, rt *Runtime) error {
	users, ok, err := rt.users()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	found := false
	for i := range users {
		if users[i].ID == t.UserID {
			users[i].Presence = strings.ToLower(t.Presence)
			found = true
			break
		}
	}
	if !found {
		rt.log.Debug("presence for unknown user", logx.String("user", t.UserID))
		return nil
	}
	return rt.Store.Set(keyUsers, users, 0)
}
