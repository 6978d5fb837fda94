package jobs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/journeylabs/shoal/internal/store"
)

// ForgeJob is the incremental forward sweep: fetch pages past the
// per-stream cursor, embed and store the new records, then extend shell
// history from the leaderboard.
type ForgeJob struct {
	d Deps
}

// NewForgeJob builds the incremental sweep job.
func NewForgeJob(d Deps) *ForgeJob { return &ForgeJob{d: d} }

func (j *ForgeJob) Name() string { return "forge" }

func (j *ForgeJob) Execute(ctx context.Context) error {
	if err := j.sweepProjects(ctx); err != nil {
		return err
	}
	if err := j.sweepDevlogs(ctx); err != nil {
		return err
	}
	if err := j.sweepComments(ctx); err != nil {
		return err
	}
	return syncLeaderboard(ctx, j.d, incremental)
}

func (j *ForgeJob) sweepProjects(ctx context.Context) error {
	start, err := j.d.Store.StartPage(ctx, store.CursorProjects)
	if err != nil {
		return DatabaseErr(err)
	}
	res, err := fetchPages(ctx, "projects", projectPages(j.d.Client), start, 0, j.d.Cfg.ResolvedFetchConcurrency())
	if err != nil {
		return ExternalAPIErr(err)
	}
	if len(res.items) == 0 {
		return nil
	}

	existing, err := j.d.Store.ProjectIDSet(ctx)
	if err != nil {
		return DatabaseErr(err)
	}
	fresh := res.items[:0]
	authors := make([]string, 0, len(res.items))
	for _, p := range res.items {
		if _, ok := existing[p.ID]; !ok {
			fresh = append(fresh, p)
			authors = append(authors, p.SlackID)
		}
	}
	j.ensureAuthors(ctx, authors)

	stored := j.embedAndStore(ctx, len(fresh), func(i int) error {
		row, err := projectFromUpstream(fresh[i])
		if err != nil {
			return err
		}
		vec, err := j.d.Embedder.Embed(ctx, row.EmbeddingText())
		if err != nil {
			return err
		}
		v := pgvector.NewVector(vec)
		row.TitleDescriptionEmbedding = &v
		_, err = j.d.Store.InsertProjects(ctx, []store.Project{row})
		return err
	})

	log.Info().Int("new", len(fresh)).Int64("stored", stored).Int("max_page", res.maxDrained).Msg("project sweep done")
	if stored > 0 {
		if err := j.d.Store.SetSyncCursor(ctx, store.CursorProjects, res.maxDrained); err != nil {
			return DatabaseErr(err)
		}
	}
	return nil
}

func (j *ForgeJob) sweepDevlogs(ctx context.Context) error {
	start, err := j.d.Store.StartPage(ctx, store.CursorDevlogs)
	if err != nil {
		return DatabaseErr(err)
	}
	res, err := fetchPages(ctx, "devlogs", devlogPages(j.d.Client), start, 0, j.d.Cfg.ResolvedFetchConcurrency())
	if err != nil {
		return ExternalAPIErr(err)
	}
	if len(res.items) == 0 {
		return nil
	}
	items := res.items
	authors := make([]string, 0, len(items))
	for _, d := range items {
		authors = append(authors, d.SlackID)
	}
	j.ensureAuthors(ctx, authors)

	stored := j.embedAndStore(ctx, len(items), func(i int) error {
		row, err := devlogFromUpstream(items[i])
		if err != nil {
			return err
		}
		vec, err := j.d.Embedder.Embed(ctx, row.Text)
		if err != nil {
			return err
		}
		v := pgvector.NewVector(vec)
		row.TextEmbedding = &v
		_, err = j.d.Store.InsertDevlogs(ctx, []store.Devlog{row})
		return err
	})

	log.Info().Int("fetched", len(items)).Int64("stored", stored).Int("max_page", res.maxDrained).Msg("devlog sweep done")
	if stored > 0 {
		if err := j.d.Store.SetSyncCursor(ctx, store.CursorDevlogs, res.maxDrained); err != nil {
			return DatabaseErr(err)
		}
	}
	return nil
}

func (j *ForgeJob) sweepComments(ctx context.Context) error {
	start, err := j.d.Store.StartPage(ctx, store.CursorComments)
	if err != nil {
		return DatabaseErr(err)
	}
	res, err := fetchPages(ctx, "comments", commentPages(j.d.Client), start, 0, j.d.Cfg.ResolvedFetchConcurrency())
	if err != nil {
		return ExternalAPIErr(err)
	}
	if len(res.items) == 0 {
		return nil
	}
	items := res.items
	authors := make([]string, 0, len(items))
	for _, c := range items {
		authors = append(authors, c.SlackID)
	}
	j.ensureAuthors(ctx, authors)

	stored := j.embedAndStore(ctx, len(items), func(i int) error {
		row, err := commentFromUpstream(items[i])
		if err != nil {
			return err
		}
		vec, err := j.d.Embedder.Embed(ctx, row.Text)
		if err != nil {
			return err
		}
		v := pgvector.NewVector(vec)
		row.TextEmbedding = &v
		_, err = j.d.Store.InsertComments(ctx, []store.Comment{row})
		return err
	})

	log.Info().Int("fetched", len(items)).Int64("stored", stored).Int("max_page", res.maxDrained).Msg("comment sweep done")
	if stored > 0 {
		if err := j.d.Store.SetSyncCursor(ctx, store.CursorComments, res.maxDrained); err != nil {
			return DatabaseErr(err)
		}
	}
	return nil
}

// ensureAuthors widens the placeholder user set with authors sighted
// mid-sweep so history and enrichment can pick them up.
func (j *ForgeJob) ensureAuthors(ctx context.Context, slackIDs []string) {
	if err := j.d.Store.InsertPlaceholderUsers(ctx, slackIDs); err != nil {
		log.Warn().Err(err).Msg("placeholder user insert failed")
	}
}

// embedAndStore runs fn(0..n-1) in parallel under the embedding
// concurrency cap. Per-record failures are logged and counted, never
// fatal. Returns how many records stored cleanly.
func (j *ForgeJob) embedAndStore(ctx context.Context, n int, fn func(i int) error) int64 {
	limit := int64(j.d.Cfg.ResolvedEmbedConcurrency())
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	var (
		wg     sync.WaitGroup
		stored atomic.Int64
		failed atomic.Int64
	)
	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			if err := fn(i); err != nil {
				failed.Add(1)
				log.Warn().Err(err).Msg("record store failed, skipping")
				return
			}
			stored.Add(1)
		}(i)
	}
	wg.Wait()

	if f := failed.Load(); f > 0 {
		log.Warn().Int64("failed", f).Msg("sweep finished with per-record failures")
	}
	return stored.Load()
}
