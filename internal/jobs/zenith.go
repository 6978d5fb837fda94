package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/journeylabs/shoal/internal/shells"
	"github.com/journeylabs/shoal/internal/store"
)

// ZenithJob syncs the shell leaderboard and rebuilds balance history for
// every user whose balance moved.
type ZenithJob struct {
	d Deps
}

// NewZenithJob builds the leaderboard sync job.
func NewZenithJob(d Deps) *ZenithJob { return &ZenithJob{d: d} }

func (j *ZenithJob) Name() string { return "zenith" }

func (j *ZenithJob) Execute(ctx context.Context) error {
	return syncLeaderboard(ctx, j.d, fullRebuild)
}

// historyMode selects how balance history is reconstructed after a
// leaderboard sync.
type historyMode int

const (
	// fullRebuild walks the complete payout list backward from the
	// current balance. Authoritative; safe to repeat because inserts
	// ignore already recorded timestamps.
	fullRebuild historyMode = iota
	// incremental appends only payouts newer than the latest recorded
	// entry, walking forward from the previously stored balance.
	incremental
)

// syncLeaderboard fetches the leaderboard, upserts balances, and runs a
// history pass for each user whose balance actually changed. Per-user
// history failures are logged and skipped.
func syncLeaderboard(ctx context.Context, d Deps, mode historyMode) error {
	entries, err := d.Client.FetchLeaderboard(ctx)
	if err != nil {
		return ExternalAPIErr(err)
	}
	if len(entries) == 0 {
		return nil
	}

	previous, err := d.Store.UserShells(ctx)
	if err != nil {
		return DatabaseErr(err)
	}

	users := make([]store.LeaderboardUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, store.LeaderboardUser{
			SlackID:  e.SlackID,
			Username: e.Username,
			Shells:   e.Shells,
		})
	}
	if err := d.Store.UpsertLeaderboardUsers(ctx, users); err != nil {
		return DatabaseErr(err)
	}

	changed := 0
	for _, e := range entries {
		prev, known := previous[e.SlackID]
		if known && prev == e.Shells {
			continue
		}
		changed++

		var rows []store.ShellHistory
		switch mode {
		case fullRebuild:
			rows = historyRows(e.SlackID, shells.Rebuild(e.Shells, e.Payouts))
		case incremental:
			latest, err := d.Store.LatestShellHistory(ctx, e.SlackID)
			if err != nil {
				log.Warn().Err(err).Str("slack_id", e.SlackID).Msg("history lookup failed, skipping user")
				continue
			}
			var since time.Time
			if latest != nil {
				since = latest.RecordedAt
			}
			rows = historyRows(e.SlackID, shells.Extend(prev, since, e.Payouts))
		}

		if err := d.Store.InsertShellHistory(ctx, rows); err != nil {
			log.Warn().Err(err).Str("slack_id", e.SlackID).Msg("history insert failed, skipping user")
		}
	}

	log.Info().Int("users", len(entries)).Int("changed", changed).Msg("leaderboard synced")
	return nil
}
