package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 500

// InsertProjects inserts new projects, leaving existing rows untouched.
// Returns the number of rows actually inserted.
func (s *Store) InsertProjects(ctx context.Context, projects []Project) (int64, error) {
	if len(projects) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(projects, insertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert projects: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpsertProjects inserts projects, overwriting all mutable columns on
// conflict. Used by the full backfill, where upstream is authoritative.
func (s *Store) UpsertProjects(ctx context.Context, projects []Project) error {
	if len(projects) == 0 {
		return nil
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "readme_link", "slack_id",
				"created_at", "updated_at", "title_description_embedding", "last_synced",
			}),
		}).
		CreateInBatches(projects, insertBatchSize)
	if res.Error != nil {
		return fmt.Errorf("upsert projects: %w", res.Error)
	}
	return nil
}

// InsertDevlogs inserts new devlogs whose parent project exists. Devlogs
// with a missing parent are skipped and logged at debug level. Returns
// the number of rows actually inserted.
func (s *Store) InsertDevlogs(ctx context.Context, devlogs []Devlog) (int64, error) {
	kept, err := s.filterDevlogParents(ctx, devlogs)
	if err != nil || len(kept) == 0 {
		return 0, err
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(kept, insertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert devlogs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpsertDevlogs is the full-backfill variant of InsertDevlogs.
func (s *Store) UpsertDevlogs(ctx context.Context, devlogs []Devlog) error {
	kept, err := s.filterDevlogParents(ctx, devlogs)
	if err != nil || len(kept) == 0 {
		return err
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"text", "project_id", "slack_id",
				"created_at", "updated_at", "text_embedding", "last_synced",
			}),
		}).
		CreateInBatches(kept, insertBatchSize)
	if res.Error != nil {
		return fmt.Errorf("upsert devlogs: %w", res.Error)
	}
	return nil
}

func (s *Store) filterDevlogParents(ctx context.Context, devlogs []Devlog) ([]Devlog, error) {
	if len(devlogs) == 0 {
		return nil, nil
	}
	parentIDs := make([]int64, 0, len(devlogs))
	for _, d := range devlogs {
		parentIDs = append(parentIDs, d.ProjectID)
	}
	existing, err := s.existingIDs(ctx, "projects", parentIDs)
	if err != nil {
		return nil, fmt.Errorf("check devlog parents: %w", err)
	}

	kept := make([]Devlog, 0, len(devlogs))
	for _, d := range devlogs {
		if _, ok := existing[d.ProjectID]; !ok {
			log.Debug().Int64("devlog_id", d.ID).Int64("project_id", d.ProjectID).
				Msg("skipping devlog with missing parent project")
			continue
		}
		kept = append(kept, d)
	}
	return kept, nil
}

// InsertComments inserts new comments whose parent devlog exists,
// deduplicated on (devlog_id, slack_id). Comments with a missing parent
// are skipped. Returns the number of rows actually inserted.
func (s *Store) InsertComments(ctx context.Context, comments []Comment) (int64, error) {
	if len(comments) == 0 {
		return 0, nil
	}
	parentIDs := make([]int64, 0, len(comments))
	for _, c := range comments {
		parentIDs = append(parentIDs, c.DevlogID)
	}
	existing, err := s.existingIDs(ctx, "logs", parentIDs)
	if err != nil {
		return 0, fmt.Errorf("check comment parents: %w", err)
	}

	kept := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if _, ok := existing[c.DevlogID]; !ok {
			log.Debug().Int64("devlog_id", c.DevlogID).Str("slack_id", c.SlackID).
				Msg("skipping comment with missing parent devlog")
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return 0, nil
	}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "devlog_id"}, {Name: "slack_id"}},
			DoNothing: true,
		}).
		CreateInBatches(kept, insertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert comments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// existingIDs returns which of ids are present in table.
func (s *Store) existingIDs(ctx context.Context, table string, ids []int64) (map[int64]struct{}, error) {
	var found []int64
	if err := s.DB.WithContext(ctx).Table(table).
		Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(found))
	for _, id := range found {
		set[id] = struct{}{}
	}
	return set, nil
}

// InsertPlaceholderUsers creates placeholder rows for newly sighted
// slack IDs. Existing users are untouched.
func (s *Store) InsertPlaceholderUsers(ctx context.Context, slackIDs []string) error {
	if len(slackIDs) == 0 {
		return nil
	}
	trust := PlaceholderTrust
	users := make([]User, 0, len(slackIDs))
	for _, id := range slackIDs {
		users = append(users, User{
			SlackID:    id,
			PfpURL:     PlaceholderPfp,
			TrustLevel: &trust,
		})
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "slack_id"}}, DoNothing: true}).
		CreateInBatches(users, insertBatchSize)
	if res.Error != nil {
		return fmt.Errorf("insert placeholder users: %w", res.Error)
	}
	return nil
}

// LeaderboardUser is the per-user slice of a leaderboard snapshot.
type LeaderboardUser struct {
	SlackID  string
	Username *string
	Shells   int32
}

// UpsertLeaderboardUsers records current shell balances. A conflicting
// row is only touched when the balance actually changed; the stored
// username is kept when the leaderboard omits one. GORM's conflict
// clause cannot express the conditional update, so this is raw SQL.
func (s *Store) UpsertLeaderboardUsers(ctx context.Context, users []LeaderboardUser) error {
	const q = `
		INSERT INTO users (slack_id, username, current_shells, pfp_url, trust_level, last_synced)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON CONFLICT (slack_id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, users.username),
			current_shells = EXCLUDED.current_shells,
			last_synced = NOW()
		WHERE users.current_shells IS DISTINCT FROM EXCLUDED.current_shells`

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range users {
			if err := tx.Exec(q, u.SlackID, u.Username, u.Shells, PlaceholderPfp, PlaceholderTrust).Error; err != nil {
				return fmt.Errorf("upsert leaderboard user %s: %w", u.SlackID, err)
			}
		}
		return nil
	})
}

// InsertShellHistory appends balance chain links, ignoring entries
// already recorded for the same (slack_id, recorded_at).
func (s *Store) InsertShellHistory(ctx context.Context, rows []ShellHistory) error {
	if len(rows) == 0 {
		return nil
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slack_id"}, {Name: "recorded_at"}},
			DoNothing: true,
		}).
		CreateInBatches(rows, insertBatchSize)
	if res.Error != nil {
		return fmt.Errorf("insert shell history: %w", res.Error)
	}
	return nil
}

// UpdateProject rewrites all mutable columns of an existing project,
// including its embedding, in one statement.
func (s *Store) UpdateProject(ctx context.Context, p Project) error {
	err := s.DB.WithContext(ctx).Model(&Project{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"title":                       p.Title,
			"description":                 p.Description,
			"readme_link":                 p.ReadmeLink,
			"slack_id":                    p.SlackID,
			"created_at":                  p.CreatedAt,
			"updated_at":                  p.UpdatedAt,
			"title_description_embedding": p.TitleDescriptionEmbedding,
			"last_synced":                 time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update project %d: %w", p.ID, err)
	}
	return nil
}

// UpdateDevlog rewrites all mutable columns of an existing devlog.
func (s *Store) UpdateDevlog(ctx context.Context, d Devlog) error {
	err := s.DB.WithContext(ctx).Model(&Devlog{}).
		Where("id = ?", d.ID).
		Updates(map[string]any{
			"text":           d.Text,
			"project_id":     d.ProjectID,
			"slack_id":       d.SlackID,
			"created_at":     d.CreatedAt,
			"updated_at":     d.UpdatedAt,
			"text_embedding": d.TextEmbedding,
			"last_synced":    time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update devlog %d: %w", d.ID, err)
	}
	return nil
}

// UpdateProjectEmbedding stores a freshly computed vector.
func (s *Store) UpdateProjectEmbedding(ctx context.Context, id int64, vec pgvector.Vector) error {
	err := s.DB.WithContext(ctx).Model(&Project{}).
		Where("id = ?", id).
		Update("title_description_embedding", vec).Error
	if err != nil {
		return fmt.Errorf("update project %d embedding: %w", id, err)
	}
	return nil
}

// UpdateDevlogEmbedding stores a freshly computed vector.
func (s *Store) UpdateDevlogEmbedding(ctx context.Context, id int64, vec pgvector.Vector) error {
	err := s.DB.WithContext(ctx).Model(&Devlog{}).
		Where("id = ?", id).
		Update("text_embedding", vec).Error
	if err != nil {
		return fmt.Errorf("update devlog %d embedding: %w", id, err)
	}
	return nil
}

// UpdateCommentEmbedding stores a freshly computed vector.
func (s *Store) UpdateCommentEmbedding(ctx context.Context, id int64, vec pgvector.Vector) error {
	err := s.DB.WithContext(ctx).Model(&Comment{}).
		Where("id = ?", id).
		Update("text_embedding", vec).Error
	if err != nil {
		return fmt.Errorf("update comment %d embedding: %w", id, err)
	}
	return nil
}

// UpdateUserProfile applies a fetched Slack profile to a user, marking
// the row synced.
func (s *Store) UpdateUserProfile(ctx context.Context, slackID string, updates map[string]any) error {
	updates["last_synced"] = time.Now()
	err := s.DB.WithContext(ctx).Model(&User{}).
		Where("slack_id = ?", slackID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("update user %s profile: %w", slackID, err)
	}
	return nil
}

// UpdateUserTrust stores trust metadata for a user.
func (s *Store) UpdateUserTrust(ctx context.Context, slackID, level string, value int32) error {
	err := s.DB.WithContext(ctx).Model(&User{}).
		Where("slack_id = ?", slackID).
		Updates(map[string]any{
			"trust_level": level,
			"trust_value": value,
		}).Error
	if err != nil {
		return fmt.Errorf("update user %s trust: %w", slackID, err)
	}
	return nil
}
