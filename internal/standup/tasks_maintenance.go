package standup

import (
	"context"
	"fmt"
	"slices"
	"time"

	logx "standupbot/pkg/logx"
)

// SyncDB saves the store snapshot. It re-enqueues itself on the slow queue
// before anything else.
type SyncDB struct{}

func (*SyncDB) Name() string { return "sync_db" }

func (*SyncDB) Execute(ctx context.Context, rt *Runtime) error {
	rt.Slow.Append(&SyncDB{})
	if err := rt.Store.Save(ctx); err != nil {
		return fmt.Errorf("sync db: %w", err)
	}
	return nil
}

// PruneReports drops report days older than the retention window.
type PruneReports struct{}

func (*PruneReports) Name() string { return "prune_reports" }

func (*PruneReports) Execute(_ context.Context, rt *Runtime) error {
	s := rt.Settings()
	if s.RetentionDays <= 0 {
		return nil
	}
	rep, err := rt.loadReport()
	if err != nil {
		return err
	}
	y, m, d := rt.now().In(s.Location).Date()
	cutoff := dayKey(time.Date(y, m, d-s.RetentionDays, 0, 0, 0, 0, s.Location), s.Location)

	var dropped []string
	for _, day := range rep.Days() {
		if day < cutoff {
			delete(rep, day)
			dropped = append(dropped, day)
		}
	}
	if len(dropped) == 0 {
		return nil
	}
	if err := rt.saveReport(rep); err != nil {
		return err
	}
	rt.log.Info("report days pruned", logx.Strings("days", dropped), logx.String("cutoff", cutoff))
	return nil
}

// UnlockTeam releases the locks of Team's members that cover no other team.
// Locks shared with another team are left to expire.
type UnlockTeam struct {
	Team string
}

func (*UnlockTeam) Name() string { return "unlock_team" }

func (t *UnlockTeam) Execute(_ context.Context, rt *Runtime) error {
	rep, err := rt.loadReport()
	if err != nil {
		return err
	}
	tr := rep.team(rt.today(), t.Team)
	if tr == nil {
		return nil
	}
	for _, uid := range sortedKeys(tr.Reports) {
		teams, ok, err := rt.UserLock(uid)
		if err != nil {
			return err
		}
		if !ok || !slices.Equal(teams, []string{t.Team}) {
			continue
		}
		if _, err := rt.UnlockUser(uid); err != nil {
			return err
		}
		rt.log.Debug("user unlocked", logx.String("user", uid), logx.String("team", t.Team))
	}
	return nil
}
