package jobs

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/journeylabs/shoal/internal/store"
	"github.com/journeylabs/shoal/internal/upstream"
)

// devModePageCap limits full-backfill pagination when DEV_MODE is set.
const devModePageCap = 5

// InitJob performs the one-time full backfill: fetch every page of every
// stream, reconcile parents, store inside one transaction, then embed.
type InitJob struct {
	d Deps
}

// NewInitJob builds the backfill job.
func NewInitJob(d Deps) *InitJob { return &InitJob{d: d} }

func (j *InitJob) Name() string { return "init" }

func (j *InitJob) Execute(ctx context.Context) error {
	if j.d.Cfg.Wipe {
		if err := j.d.Store.Wipe(ctx); err != nil {
			return DatabaseErr(err)
		}
	}

	maxPages := 0
	if j.d.Cfg.DevMode {
		maxPages = devModePageCap
		log.Warn().Int("pages", devModePageCap).Msg("dev mode, capping backfill pagination")
	}
	conc := j.d.Cfg.ResolvedFetchConcurrency()

	projects, err := fetchPagesWithRetry(ctx, "projects", projectPages(j.d.Client), 1, maxPages, conc)
	if err != nil {
		return ExternalAPIErr(err)
	}
	comments, err := fetchPagesWithRetry(ctx, "comments", commentPages(j.d.Client), 1, maxPages, conc)
	if err != nil {
		return ExternalAPIErr(err)
	}
	devlogs, err := fetchPagesWithRetry(ctx, "devlogs", devlogPages(j.d.Client), 1, maxPages, conc)
	if err != nil {
		return ExternalAPIErr(err)
	}
	log.Info().
		Int("projects", len(projects.items)).
		Int("devlogs", len(devlogs.items)).
		Int("comments", len(comments.items)).
		Msg("backfill fetched")

	if err := j.d.Store.InsertPlaceholderUsers(ctx, authorUnion(projects.items, devlogs.items, comments.items)); err != nil {
		return DatabaseErr(err)
	}

	if err := syncLeaderboard(ctx, j.d, fullRebuild); err != nil {
		// The mirror is still useful without shell history; log and move on.
		log.Warn().Err(err).Msg("leaderboard sync failed during backfill")
	}

	if err := j.storeAll(ctx, projects.items, devlogs.items, comments.items); err != nil {
		return err
	}

	for key, page := range map[string]int{
		store.CursorProjects: projects.maxDrained,
		store.CursorDevlogs:  devlogs.maxDrained,
		store.CursorComments: comments.maxDrained,
	} {
		if err := j.d.Store.SetSyncCursor(ctx, key, page); err != nil {
			return DatabaseErr(err)
		}
	}

	pass := j.d.embedPass()
	if err := pass.projects(ctx); err != nil {
		return err
	}
	if err := pass.devlogs(ctx); err != nil {
		return err
	}
	if err := pass.comments(ctx); err != nil {
		return err
	}

	log.Info().Msg("backfill complete")
	return nil
}

// storeAll writes the fetched snapshot in one transaction: projects,
// then devlogs under existing projects, then comments under existing
// devlogs. Records with malformed timestamps are skipped.
func (j *InitJob) storeAll(ctx context.Context, projects []upstream.Project, devlogs []upstream.Devlog, comments []upstream.Comment) error {
	projectRows := make([]store.Project, 0, len(projects))
	for _, p := range projects {
		row, err := projectFromUpstream(p)
		if err != nil {
			log.Warn().Err(err).Int64("project_id", p.ID).Msg("skipping project")
			continue
		}
		projectRows = append(projectRows, row)
	}
	devlogRows := make([]store.Devlog, 0, len(devlogs))
	for _, d := range devlogs {
		row, err := devlogFromUpstream(d)
		if err != nil {
			log.Warn().Err(err).Int64("devlog_id", d.ID).Msg("skipping devlog")
			continue
		}
		devlogRows = append(devlogRows, row)
	}
	commentRows := make([]store.Comment, 0, len(comments))
	for _, c := range comments {
		row, err := commentFromUpstream(c)
		if err != nil {
			log.Warn().Err(err).Int64("comment_id", c.ID).Msg("skipping comment")
			continue
		}
		commentRows = append(commentRows, row)
	}

	err := j.d.Store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.UpsertProjects(ctx, projectRows); err != nil {
			return err
		}
		if err := tx.UpsertDevlogs(ctx, devlogRows); err != nil {
			return err
		}
		_, err := tx.InsertComments(ctx, commentRows)
		return err
	})
	if err != nil {
		return DatabaseErr(err)
	}
	return nil
}

// authorUnion collects every distinct slack ID sighted in the snapshot.
func authorUnion(projects []upstream.Project, devlogs []upstream.Devlog, comments []upstream.Comment) []string {
	seen := make(map[string]struct{})
	for _, p := range projects {
		seen[p.SlackID] = struct{}{}
	}
	for _, d := range devlogs {
		seen[d.SlackID] = struct{}{}
	}
	for _, c := range comments {
		seen[c.SlackID] = struct{}{}
	}
	delete(seen, "")

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}
