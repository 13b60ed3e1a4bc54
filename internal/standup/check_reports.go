package standup

import (
	"context"

	logx "standupbot/pkg/logx"
)

const holidayHeadline = "No Standup Today :tada:"

// CheckReports is the periodic poller. Every run appends a fresh instance to
// the slow queue first, then walks the active teams for today.
type CheckReports struct{}

func (*CheckReports) Name() string { return "check_reports" }

func (*CheckReports) Execute(_ context.Context, rt *Runtime) error {
	rt.Slow.Append(&CheckReports{})

	if _, ok, err := rt.users(); err != nil {
		return err
	} else if !ok {
		rt.log.Warn("roster not loaded yet, skipping report check")
		return nil
	}

	s := rt.Settings()
	now := rt.now()
	local := now.In(s.Location)
	day := dayKey(now, s.Location)

	rep, err := rt.loadReport()
	if err != nil {
		return err
	}
	dr := rep[day]
	if dr == nil {
		dr = DayReport{}
		rep[day] = dr
	}

	changed := false
	for _, id := range s.ActiveTeams {
		team, ok := s.team(id)
		if !ok {
			rt.log.Warn("active team is not configured", logx.String("team", id), logx.Err(ErrUnknownTeam))
			continue
		}
		if _, ok := dr[id]; ok {
			continue
		}
		tr, err := rt.newTeamReport(team)
		if err != nil {
			return err
		}
		dr[id] = tr
		changed = true
		rt.log.Info("team report initialized", logx.String("team", id), logx.String("day", day), logx.Int("users", len(tr.Reports)))
	}

	teamsByUser := map[string][]string{}
	for _, id := range s.ActiveTeams {
		tr := dr[id]
		if tr == nil {
			continue
		}
		for _, uid := range sortedKeys(tr.Reports) {
			teamsByUser[uid] = append(teamsByUser[uid], id)
		}
	}

	asked := map[string]bool{}
	for _, id := range s.ActiveTeams {
		team, ok := s.team(id)
		tr := dr[id]
		if !ok || tr == nil || tr.ReportedAt != nil {
			continue
		}

		loc := s.teamLocation(team)
		askAt := team.AskEarliest.On(local, loc)
		reportBy := team.ReportBy.On(local, loc)

		if desc, holiday := s.Holidays[day]; holiday {
			if now.Before(askAt) {
				continue
			}
			tr.ReportedAt = stamp(now)
			changed = true
			if s.AnnounceHolidays && team.PostSummaryTo != "" {
				text := holidayHeadline
				if desc != "" {
					text += "\n" + desc
				}
				rt.Fast.Append(&SendMessage{To: team.PostSummaryTo, Text: text})
			}
			rt.log.Info("holiday, no standup", logx.String("team", id), logx.String("holiday", desc))
			continue
		}
		if isWeekend(local) {
			continue
		}
		if !now.Before(reportBy) {
			rt.Fast.Append(&SendReportSummary{Team: id})
			continue
		}
		if now.Before(askAt) {
			continue
		}

		lead := s.lastCallLead(team)
		lastCall := lead > 0 && !now.Before(reportBy.Add(-lead))
		if lastCall && tr.LastCallAt == nil {
			tr.LastCallAt = stamp(now)
			changed = true
			rt.log.Info("last call", logx.String("team", id))
		}

		for _, uid := range sortedKeys(tr.Reports) {
			if tr.Reports[uid].ReportedAt != nil || asked[uid] {
				continue
			}
			asked[uid] = true
			rt.Fast.Append(&AskStatus{Teams: teamsByUser[uid], UserID: uid, LastCall: lastCall})
		}
	}

	if !changed {
		return nil
	}
	return rt.saveReport(rep)
}

func (rt *Runtime) newTeamReport(team Team) (*TeamReport, error) {
	tr := &TeamReport{Reports: map[string]*UserReport{}}
	for _, m := range team.Members {
		u, ok, err := rt.UserByName(m.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			rt.log.Warn("team member not in roster", logx.String("team", team.ID), logx.String("user", m.Name))
			continue
		}
		tr.Reports[u.ID] = &UserReport{Report: []string{}, Department: m.Department}
	}
	return tr, nil
}
