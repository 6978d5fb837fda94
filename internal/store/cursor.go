package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cursor keys, one per upstream stream.
const (
	CursorProjects = "projects"
	CursorDevlogs  = "devlogs"
	CursorComments = "comments"
)

// GetSyncCursor returns the cursor row for key, or nil when no sweep
// has completed yet.
func (s *Store) GetSyncCursor(ctx context.Context, key string) (*SyncMetadata, error) {
	var row SyncMetadata
	err := s.DB.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync cursor %s: %w", key, err)
	}
	return &row, nil
}

// SetSyncCursor records that pages up to page are durably stored for key.
func (s *Store) SetSyncCursor(ctx context.Context, key string, page int) error {
	row := SyncMetadata{
		Key:      key,
		LastSync: time.Now(),
		LastPage: page,
		Status:   "completed",
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_sync", "last_page", "status"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("set sync cursor %s: %w", key, err)
	}
	return nil
}

// StartPage returns the page the next sweep of key should begin at:
// one past the recorded cursor, or page 1 when no cursor exists.
func (s *Store) StartPage(ctx context.Context, key string) (int, error) {
	cur, err := s.GetSyncCursor(ctx, key)
	if err != nil {
		return 0, err
	}
	if cur == nil {
		return 1, nil
	}
	return cur.LastPage + 1, nil
}
