package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ProjectIDSet returns all local project IDs.
func (s *Store) ProjectIDSet(ctx context.Context) (map[int64]struct{}, error) {
	var ids []int64
	if err := s.DB.WithContext(ctx).Model(&Project{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// ListProjects returns all local projects without their vectors.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	var rows []Project
	err := s.DB.WithContext(ctx).
		Select("id", "title", "description", "readme_link", "slack_id", "created_at", "updated_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return rows, nil
}

// ListDevlogs returns all local devlogs without their vectors.
func (s *Store) ListDevlogs(ctx context.Context) ([]Devlog, error) {
	var rows []Devlog
	err := s.DB.WithContext(ctx).
		Select("id", "text", "project_id", "slack_id", "created_at", "updated_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list devlogs: %w", err)
	}
	return rows, nil
}

// HasUsers reports whether any user row exists. Used to decide whether
// the one-time full backfill still needs to run.
func (s *Store) HasUsers(ctx context.Context) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&User{}).Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// UserShells returns the recorded current_shells per slack ID. Users
// without a recorded balance are absent from the map.
func (s *Store) UserShells(ctx context.Context) (map[string]int32, error) {
	var rows []struct {
		SlackID       string
		CurrentShells *int32
	}
	err := s.DB.WithContext(ctx).Model(&User{}).
		Select("slack_id", "current_shells").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list user shells: %w", err)
	}
	out := make(map[string]int32, len(rows))
	for _, r := range rows {
		if r.CurrentShells != nil {
			out[r.SlackID] = *r.CurrentShells
		}
	}
	return out, nil
}

// LatestShellHistory returns the most recent chain link for a user, or
// nil when the user has no history yet.
func (s *Store) LatestShellHistory(ctx context.Context, slackID string) (*ShellHistory, error) {
	var row ShellHistory
	err := s.DB.WithContext(ctx).
		Where("slack_id = ?", slackID).
		Order("recorded_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest shell history for %s: %w", slackID, err)
	}
	return &row, nil
}

// UsersNeedingEnrichment selects up to limit users still carrying
// placeholder profile or trust data, least recently synced first.
func (s *Store) UsersNeedingEnrichment(ctx context.Context, limit int) ([]User, error) {
	var rows []User
	err := s.DB.WithContext(ctx).
		Where("username IS NULL OR pfp_url = ? OR trust_level = ?", PlaceholderPfp, PlaceholderTrust).
		Order("last_synced ASC NULLS FIRST").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select users needing enrichment: %w", err)
	}
	return rows, nil
}

// ProjectsBatchAfter pages through projects by ascending ID.
func (s *Store) ProjectsBatchAfter(ctx context.Context, afterID int64, limit int) ([]Project, error) {
	var rows []Project
	err := s.DB.WithContext(ctx).
		Select("id", "title", "description").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("page projects after %d: %w", afterID, err)
	}
	return rows, nil
}

// DevlogsBatchAfter pages through devlogs by ascending ID.
func (s *Store) DevlogsBatchAfter(ctx context.Context, afterID int64, limit int) ([]Devlog, error) {
	var rows []Devlog
	err := s.DB.WithContext(ctx).
		Select("id", "text").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("page devlogs after %d: %w", afterID, err)
	}
	return rows, nil
}

// CommentsBatchAfter pages through comments by ascending ID.
func (s *Store) CommentsBatchAfter(ctx context.Context, afterID int64, limit int) ([]Comment, error) {
	var rows []Comment
	err := s.DB.WithContext(ctx).
		Select("id", "text").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("page comments after %d: %w", afterID, err)
	}
	return rows, nil
}
