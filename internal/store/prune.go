package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// DeleteProjectsNotIn removes local projects whose IDs are absent from
// the upstream snapshot. An empty snapshot deletes nothing; a vanished
// upstream should not wipe the mirror.
func (s *Store) DeleteProjectsNotIn(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Where("id NOT IN ?", ids).Delete(&Project{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete absent projects: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteDevlogsNotIn removes local devlogs absent from the upstream
// snapshot.
func (s *Store) DeleteDevlogsNotIn(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Where("id NOT IN ?", ids).Delete(&Devlog{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete absent devlogs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CleanOrphans removes rows whose parent is gone: comments without a
// devlog, devlogs without a project, shell history without a user.
// Devlogs are swept before comments so a cascade settles in one pass.
func (s *Store) CleanOrphans(ctx context.Context) error {
	sweeps := []struct {
		name string
		sql  string
	}{
		{"devlogs", `DELETE FROM logs l WHERE NOT EXISTS (SELECT 1 FROM projects p WHERE p.id = l.project_id)`},
		{"comments", `DELETE FROM comments c WHERE NOT EXISTS (SELECT 1 FROM logs l WHERE l.id = c.devlog_id)`},
		{"shell_history", `DELETE FROM shell_history sh WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.slack_id = sh.slack_id)`},
	}
	for _, sweep := range sweeps {
		res := s.DB.WithContext(ctx).Exec(sweep.sql)
		if res.Error != nil {
			return fmt.Errorf("clean orphan %s: %w", sweep.name, res.Error)
		}
		if res.RowsAffected > 0 {
			log.Info().Str("table", sweep.name).Int64("deleted", res.RowsAffected).Msg("removed orphan rows")
		}
	}
	return nil
}

// Wipe truncates every mirror table, leaving the schema and migration
// history in place.
func (s *Store) Wipe(ctx context.Context) error {
	const q = `TRUNCATE TABLE comments, logs, projects, shell_history, users, sync_metadata RESTART IDENTITY`
	if err := s.DB.WithContext(ctx).Exec(q).Error; err != nil {
		return fmt.Errorf("wipe mirror tables: %w", err)
	}
	log.Warn().Msg("wiped all mirror tables")
	return nil
}
