package jobs

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/journeylabs/shoal/internal/embedding"
	"github.com/journeylabs/shoal/internal/store"
)

// embedPass recomputes embeddings table by table: read a batch of rows,
// embed their texts, and fan the vector writes out under a DB
// concurrency cap. A failing batch falls back to per-row embedding so
// one bad record cannot poison its neighbors.
type embedPass struct {
	store         *store.Store
	embedder      *embedding.Service
	batchSize     int
	dbConcurrency int
}

func (p *embedPass) projects(ctx context.Context) error {
	afterID := int64(0)
	for {
		rows, err := p.store.ProjectsBatchAfter(ctx, afterID, p.batchSize)
		if err != nil {
			return DatabaseErr(err)
		}
		if len(rows) == 0 {
			return nil
		}

		texts := make([]string, len(rows))
		for i := range rows {
			texts[i] = rows[i].EmbeddingText()
		}
		vecs := p.embedBatch(ctx, texts)

		if err := p.fanOut(ctx, len(rows), func(i int) error {
			if vecs[i] == nil {
				return nil
			}
			return p.store.UpdateProjectEmbedding(ctx, rows[i].ID, pgvector.NewVector(vecs[i]))
		}); err != nil {
			return err
		}
		afterID = rows[len(rows)-1].ID
	}
}

func (p *embedPass) devlogs(ctx context.Context) error {
	afterID := int64(0)
	for {
		rows, err := p.store.DevlogsBatchAfter(ctx, afterID, p.batchSize)
		if err != nil {
			return DatabaseErr(err)
		}
		if len(rows) == 0 {
			return nil
		}

		texts := make([]string, len(rows))
		for i := range rows {
			texts[i] = rows[i].Text
		}
		vecs := p.embedBatch(ctx, texts)

		if err := p.fanOut(ctx, len(rows), func(i int) error {
			if vecs[i] == nil {
				return nil
			}
			return p.store.UpdateDevlogEmbedding(ctx, rows[i].ID, pgvector.NewVector(vecs[i]))
		}); err != nil {
			return err
		}
		afterID = rows[len(rows)-1].ID
	}
}

func (p *embedPass) comments(ctx context.Context) error {
	afterID := int64(0)
	for {
		rows, err := p.store.CommentsBatchAfter(ctx, afterID, p.batchSize)
		if err != nil {
			return DatabaseErr(err)
		}
		if len(rows) == 0 {
			return nil
		}

		texts := make([]string, len(rows))
		for i := range rows {
			texts[i] = rows[i].Text
		}
		vecs := p.embedBatch(ctx, texts)

		if err := p.fanOut(ctx, len(rows), func(i int) error {
			if vecs[i] == nil {
				return nil
			}
			return p.store.UpdateCommentEmbedding(ctx, rows[i].ID, pgvector.NewVector(vecs[i]))
		}); err != nil {
			return err
		}
		afterID = rows[len(rows)-1].ID
	}
}

// embedBatch embeds texts, falling back to one-by-one on batch failure.
// A nil slot marks a text whose embedding could not be computed.
func (p *embedPass) embedBatch(ctx context.Context, texts []string) [][]float32 {
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		return vecs
	}
	log.Warn().Err(err).Int("batch", len(texts)).Msg("batch embed failed, retrying per record")

	vecs = make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.embedder.Embed(ctx, text)
		if err != nil {
			log.Warn().Err(err).Msg("embedding failed for record, skipping")
			continue
		}
		vecs[i] = vec
	}
	return vecs
}

// fanOut runs fn(0..n-1) concurrently under the DB concurrency cap.
// Individual write failures are logged and skipped.
func (p *embedPass) fanOut(ctx context.Context, n int, fn func(i int) error) error {
	limit := int64(p.dbConcurrency)
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func(i int) {
			defer sem.Release(1)
			if err := fn(i); err != nil {
				log.Warn().Err(err).Msg("embedding write failed, skipping")
			}
		}(i)
	}
	// Draining the semaphore waits for all in-flight writes.
	if err := sem.Acquire(ctx, limit); err != nil {
		return err
	}
	sem.Release(limit)
	return nil
}
