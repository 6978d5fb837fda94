package jobs

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/journeylabs/shoal/internal/upstream"
)

// PruneJob reconciles the mirror against a full upstream snapshot:
// deletes rows gone upstream, re-embeds and updates rows whose content
// moved, and sweeps orphans. Comments are reconciled only through the
// orphan sweep.
type PruneJob struct {
	d Deps
}

// NewPruneJob builds the reconciliation job.
func NewPruneJob(d Deps) *PruneJob { return &PruneJob{d: d} }

func (j *PruneJob) Name() string { return "prune" }

func (j *PruneJob) Execute(ctx context.Context) error {
	conc := j.d.Cfg.ResolvedFetchConcurrency()

	upProjects, err := fetchPagesWithRetry(ctx, "projects", projectPages(j.d.Client), 1, 0, conc)
	if err != nil {
		return ExternalAPIErr(err)
	}
	upDevlogs, err := fetchPagesWithRetry(ctx, "devlogs", devlogPages(j.d.Client), 1, 0, conc)
	if err != nil {
		return ExternalAPIErr(err)
	}

	if err := j.reconcileProjects(ctx, upProjects.items); err != nil {
		return err
	}
	if err := j.reconcileDevlogs(ctx, upDevlogs.items); err != nil {
		return err
	}

	if err := j.d.Store.CleanOrphans(ctx); err != nil {
		return DatabaseErr(err)
	}
	return nil
}

func (j *PruneJob) reconcileProjects(ctx context.Context, snapshot []upstream.Project) error {
	byID := make(map[int64]upstream.Project, len(snapshot))
	ids := make([]int64, 0, len(snapshot))
	for _, p := range snapshot {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	deleted, err := j.d.Store.DeleteProjectsNotIn(ctx, ids)
	if err != nil {
		return DatabaseErr(err)
	}

	local, err := j.d.Store.ListProjects(ctx)
	if err != nil {
		return DatabaseErr(err)
	}

	updated := 0
	for _, row := range local {
		up, ok := byID[row.ID]
		if !ok {
			continue
		}
		fresh, err := projectFromUpstream(up)
		if err != nil {
			log.Warn().Err(err).Int64("project_id", up.ID).Msg("skipping project update")
			continue
		}
		if !fresh.UpdatedAt.After(row.UpdatedAt) && fresh.EmbeddingText() == row.EmbeddingText() {
			continue
		}

		vec, err := j.d.Embedder.Embed(ctx, fresh.EmbeddingText())
		if err != nil {
			log.Warn().Err(err).Int64("project_id", up.ID).Msg("re-embed failed, skipping update")
			continue
		}
		v := pgvector.NewVector(vec)
		fresh.TitleDescriptionEmbedding = &v
		if err := j.d.Store.UpdateProject(ctx, fresh); err != nil {
			log.Warn().Err(err).Int64("project_id", up.ID).Msg("project update failed")
			continue
		}
		updated++
	}

	log.Info().Int64("deleted", deleted).Int("updated", updated).Msg("projects reconciled")
	return nil
}

func (j *PruneJob) reconcileDevlogs(ctx context.Context, snapshot []upstream.Devlog) error {
	byID := make(map[int64]upstream.Devlog, len(snapshot))
	ids := make([]int64, 0, len(snapshot))
	for _, d := range snapshot {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}

	deleted, err := j.d.Store.DeleteDevlogsNotIn(ctx, ids)
	if err != nil {
		return DatabaseErr(err)
	}

	local, err := j.d.Store.ListDevlogs(ctx)
	if err != nil {
		return DatabaseErr(err)
	}

	updated := 0
	for _, row := range local {
		up, ok := byID[row.ID]
		if !ok {
			continue
		}
		fresh, err := devlogFromUpstream(up)
		if err != nil {
			log.Warn().Err(err).Int64("devlog_id", up.ID).Msg("skipping devlog update")
			continue
		}
		if !fresh.UpdatedAt.After(row.UpdatedAt) && fresh.Text == row.Text {
			continue
		}

		vec, err := j.d.Embedder.Embed(ctx, fresh.Text)
		if err != nil {
			log.Warn().Err(err).Int64("devlog_id", up.ID).Msg("re-embed failed, skipping update")
			continue
		}
		v := pgvector.NewVector(vec)
		fresh.TextEmbedding = &v
		if err := j.d.Store.UpdateDevlog(ctx, fresh); err != nil {
			log.Warn().Err(err).Int64("devlog_id", up.ID).Msg("devlog update failed")
			continue
		}
		updated++
	}

	log.Info().Int64("deleted", deleted).Int("updated", updated).Msg("devlogs reconciled")
	return nil
}
