package jobs

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ReformJob recomputes embeddings for the tables named by
// REEMBED_TARGET. It walks every row, so it is run on demand rather
// than on a schedule.
type ReformJob struct {
	d Deps
}

// NewReformJob builds the re-embedding job.
func NewReformJob(d Deps) *ReformJob { return &ReformJob{d: d} }

func (j *ReformJob) Name() string { return "reform" }

func (j *ReformJob) Execute(ctx context.Context) error {
	target := j.d.Cfg.ReembedTarget
	if target == "" {
		target = "all"
	}

	pass := j.d.embedPass()
	log.Info().Str("target", target).Msg("re-embedding")

	if target == "projects" || target == "all" {
		if err := pass.projects(ctx); err != nil {
			return err
		}
	}
	if target == "devlogs" || target == "all" {
		if err := pass.devlogs(ctx); err != nil {
			return err
		}
	}
	if target == "comments" || target == "all" {
		if err := pass.comments(ctx); err != nil {
			return err
		}
	}
	return nil
}
