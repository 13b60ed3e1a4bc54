package standup

import (
	"context"
	"sort"
	"strings"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

const bucketColor = "#ccc"

// SendReportSummary posts today's summary for Team and marks the team
// reported. Members who answered get one attachment each; the rest are
// grouped under "No Response" or "Offline".
type SendReportSummary struct {
	Team string
}

func (*SendReportSummary) Name() string { return "send_report_summary" }

func (t *SendReportSummary) Execute(ctx context.Context, rt *Runtime) error {
	s := rt.Settings()
	log := rt.log.With(logx.String("team", t.Team))

	team, ok := s.team(t.Team)
	if !ok {
		log.Warn("summary for unknown team", logx.Err(ErrUnknownTeam))
		return nil
	}

	rep, err := rt.loadReport()
	if err != nil {
		return err
	}
	now := rt.now()
	local := now.In(s.Location)
	day := dayKey(now, s.Location)
	tr := rep.team(day, t.Team)
	if tr == nil || tr.ReportedAt != nil {
		return nil
	}

	type entry struct {
		user chat.User
		ur   *UserReport
	}
	var entries []entry
	for uid, ur := range tr.Reports {
		u, ok, err := rt.UserByID(uid)
		if err != nil {
			return err
		}
		if !ok {
			log.Warn("reported user not in roster", logx.String("user", uid))
			continue
		}
		entries = append(entries, entry{user: u, ur: ur})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := displayName(entries[i].user), displayName(entries[j].user)
		if a != b {
			return a < b
		}
		return entries[i].user.ID < entries[j].user.ID
	})

	avatar := rt.avatarLookup(ctx)
	var attachments []chat.Attachment
	var silent, offline []string
	for _, e := range entries {
		switch {
		case !e.ur.SeenOnline:
			offline = append(offline, displayName(e.user))
		case e.ur.ReportedAt == nil:
			silent = append(silent, displayName(e.user))
		default:
			a := chat.Attachment{
				Title:    displayName(e.user),
				Text:     truncateRunes(strings.Join(e.ur.Report, "\n"), s.SummaryMaxLen),
				ThumbURL: avatar(e.user),
				Footer:   e.ur.Department,
				Ts:       e.ur.ReportedAt.Unix(),
			}
			if e.user.Color != "" {
				a.Color = "#" + strings.TrimPrefix(e.user.Color, "#")
			}
			attachments = append(attachments, a)
		}
	}
	if len(silent) > 0 {
		attachments = append(attachments, chat.Attachment{Color: bucketColor, Title: "No Response", Text: strings.Join(silent, ", ")})
	}
	if len(offline) > 0 {
		attachments = append(attachments, chat.Attachment{Color: bucketColor, Title: "Offline", Text: strings.Join(offline, ", ")})
	}

	if len(attachments) > 0 && team.PostSummaryTo != "" {
		rt.Fast.Append(&SendMessage{
			To:          team.PostSummaryTo,
			Text:        "Summary for " + team.DisplayName() + ": " + local.Format("Monday, 02 January"),
			Attachments: attachments,
		})
	}

	// Stamped even when nothing was posted, so CheckReports stops
	// enqueueing summaries for this team today.
	tr.ReportedAt = stamp(now)
	if err := rt.saveReport(rep); err != nil {
		return err
	}
	rt.Fast.Append(&UnlockTeam{Team: t.Team})
	log.Info("summary posted", logx.Int("entries", len(attachments)), logx.Int("no_response", len(silent)), logx.Int("offline", len(offline)))
	return nil
}

// avatarLookup returns a resolver for profile images that fetches the live
// roster on first use only. The cached profile image is the fallback.
func (rt *Runtime) avatarLookup(ctx context.Context) func(chat.User) string {
	var live map[string]string
	loaded := false
	return func(u chat.User) string {
		if !loaded {
			loaded = true
			users, err := rt.Chat.ListUsers(ctx)
			if err != nil {
				rt.log.Warn("avatar lookup failed, using cached profiles", logx.Err(err))
			} else {
				live = make(map[string]string, len(users))
				for _, lu := range users {
					live[lu.ID] = lu.Profile.Image192
				}
			}
		}
		if img := live[u.ID]; img != "" {
			return img
		}
		return u.Profile.Image192
	}
}

func displayName(u chat.User) string {
	if u.Profile.RealName != "" {
		return u.Profile.RealName
	}
	return u.Name
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
