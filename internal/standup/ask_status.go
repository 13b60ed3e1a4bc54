package standup

import (
	"context"
	"strings"

	logx "standupbot/pkg/logx"
)

// AskStatus prompts UserID for an update covering Teams.
//
// A locked user is left alone, except for a last call to someone who has
// neither answered nor been nudged yet. An offline user is retried by the
// next CheckReports.
type AskStatus struct {
	Teams    []string
	UserID   string
	LastCall bool
}

func (*AskStatus) Name() string { return "ask_status" }

func (t *AskStatus) Execute(ctx context.Context, rt *Runtime) error {
	log := rt.log.With(logx.String("user", t.UserID), logx.Strings("teams", t.Teams))

	_, locked, err := rt.UserLock(t.UserID)
	if err != nil {
		return err
	}
	if locked && !t.LastCall {
		log.Debug("user already locked")
		return nil
	}

	online, err := rt.UserIsOnline(ctx, t.UserID)
	if err != nil {
		log.Warn("presence lookup failed", logx.Err(err))
		return nil
	}
	if !online {
		log.Debug("user offline, asking later")
		return nil
	}

	rep, err := rt.loadReport()
	if err != nil {
		return err
	}
	now := rt.now()
	day := dayKey(now, rt.Settings().Location)

	if t.LastCall && !t.needsLastCall(rep, day) {
		return nil
	}

	for _, team := range t.Teams {
		ur := rep.user(day, team, t.UserID)
		if ur == nil {
			log.Warn("no report entry for user", logx.String("team", team))
			continue
		}
		ur.SeenOnline = true
		if t.LastCall {
			ur.LastCallAt = stamp(now)
		}
	}
	if err := rt.saveReport(rep); err != nil {
		return err
	}

	if !locked {
		ttl := endOfDay(now, rt.Settings().Location).Sub(now)
		if err := rt.LockUser(t.UserID, t.Teams, ttl); err != nil {
			return err
		}
	}

	pool := PleaseReport
	if t.LastCall {
		pool = PleaseReportLastCall
	}
	text := strings.ReplaceAll(Pick(pool, t.UserID, now.In(rt.Settings().Location)), "{team}", rt.teamNames(t.Teams))
	rt.Fast.Append(&SendMessage{To: t.UserID, Text: text})
	log.Info("status requested", logx.Bool("last_call", t.LastCall))
	return nil
}

// needsLastCall is true when no team has heard from the user yet and none
// has sent the last call.
func (t *AskStatus) needsLastCall(rep Report, day string) bool {
	found := false
	for _, team := range t.Teams {
		ur := rep.user(day, team, t.UserID)
		if ur == nil {
			continue
		}
		found = true
		if ur.ReportedAt != nil || ur.LastCallAt != nil {
			return false
		}
	}
	return found
}
