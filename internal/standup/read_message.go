package standup

import (
	"context"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

// ReadMessage routes an inbound message: edits to ReadMessageEdit, human
// direct messages to ReadStatusMessage. Everything else is dropped.
type ReadMessage struct {
	Msg chat.Message
}

func (*ReadMessage) Name() string { return "read_message" }

func (t *ReadMessage) Execute(_ context.Context, rt *Runtime) error {
	m := t.Msg
	if m.Hidden && m.Subtype == chat.SubtypeMessageChanged {
		rt.Fast.Append(&ReadMessageEdit{Msg: m})
		return nil
	}
	if m.BotID != "" || m.Subtype != "" || m.User == "" {
		return nil
	}
	direct, err := rt.isDirectChannel(m.Channel)
	if err != nil {
		return err
	}
	if !direct {
		return nil
	}
	rt.Fast.Append(&ReadStatusMessage{Msg: m})
	return nil
}

// ReadStatusMessage records a direct reply for every team the sender is
// locked for, then extends the lock by the reply window.
type ReadStatusMessage struct {
	Msg chat.Message
}

func (*ReadStatusMessage) Name() string { return "read_status_message" }

func (t *ReadStatusMessage) Execute(_ context.Context, rt *Runtime) error {
	uid := t.Msg.User
	log := rt.log.With(logx.String("user", uid))

	teams, ok, err := rt.UserLock(uid)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("message without an open standup, dropped")
		return nil
	}

	rep, err := rt.loadReport()
	if err != nil {
		return err
	}
	now := rt.now()
	day := dayKey(now, rt.Settings().Location)

	first := false
	recorded := 0
	for _, team := range teams {
		ur := rep.user(day, team, uid)
		if ur == nil {
			log.Warn("no report entry for locked user", logx.String("team", team))
			continue
		}
		if len(ur.Report) == 0 {
			first = true
		}
		ur.Report = append(ur.Report, t.Msg.Text)
		ur.ReportedAt = stamp(now)
		recorded++
	}
	if recorded == 0 {
		return nil
	}
	if err := rt.saveReport(rep); err != nil {
		return err
	}
	if err := rt.LockUser(uid, teams, rt.Settings().ReplyWindow); err != nil {
		return err
	}

	text := FollowUp
	if first {
		text = Pick(Thanks, uid, now.In(rt.Settings().Location))
	}
	rt.Fast.Append(&SendMessage{To: uid, Text: text})
	log.Info("status recorded", logx.Strings("teams", teams))
	return nil
}

// ReadMessageEdit replaces an edited line in the author's reports for
// today, across all active teams.
type ReadMessageEdit struct {
	Msg chat.Message
}

func (*ReadMessageEdit) Name() string { return "read_message_edit" }

func (t *ReadMessageEdit) Execute(_ context.Context, rt *Runtime) error {
	cur, prev := t.Msg.Message, t.Msg.PreviousMessage
	if cur == nil || prev == nil {
		return nil
	}
	uid := cur.User
	if uid == "" {
		uid = prev.User
	}

	rep, err := rt.loadReport()
	if err != nil {
		return err
	}
	now := rt.now()
	s := rt.Settings()
	day := dayKey(now, s.Location)

	changed := false
	for _, team := range s.ActiveTeams {
		ur := rep.user(day, team, uid)
		if ur == nil {
			continue
		}
		for i, line := range ur.Report {
			if line == prev.Text {
				ur.Report[i] = cur.Text
				ur.EditedAt = stamp(now)
				changed = true
				break
			}
		}
	}
	if !changed {
		return nil
	}
	rt.log.Debug("report line edited", logx.String("user", uid))
	return rt.saveReport(rep)
}
