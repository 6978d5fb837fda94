package jobs

import (
	"context"

	"github.com/journeylabs/shoal/internal/config"
	"github.com/journeylabs/shoal/internal/embedding"
	"github.com/journeylabs/shoal/internal/store"
	"github.com/journeylabs/shoal/internal/upstream"
)

// Deps bundles the shared collaborators every job composes.
type Deps struct {
	Store    *store.Store
	Client   *upstream.Client
	Embedder *embedding.Service
	Cfg      config.Config
}

func (d Deps) embedPass() *embedPass {
	return &embedPass{
		store:         d.Store,
		embedder:      d.Embedder,
		batchSize:     d.Cfg.EmbedBatchSize,
		dbConcurrency: d.Cfg.ResolvedDBEmbedConcurrency(),
	}
}

// Page adapters bridging the upstream client to the generic pager.

func projectPages(c *upstream.Client) pageFunc[upstream.Project] {
	return func(ctx context.Context, page int) ([]upstream.Project, int, error) {
		resp, err := c.FetchProjects(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		return resp.Projects, resp.Pagination.TotalPages(page), nil
	}
}

func devlogPages(c *upstream.Client) pageFunc[upstream.Devlog] {
	return func(ctx context.Context, page int) ([]upstream.Devlog, int, error) {
		resp, err := c.FetchDevlogs(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		return resp.Devlogs, resp.Pagination.TotalPages(page), nil
	}
}

func commentPages(c *upstream.Client) pageFunc[upstream.Comment] {
	return func(ctx context.Context, page int) ([]upstream.Comment, int, error) {
		resp, err := c.FetchComments(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		return resp.Comments, resp.Pagination.TotalPages(page), nil
	}
}
