package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Project mirrors an upstream project. The embedding covers the title
// and description concatenated with a space.
type Project struct {
	ID                        int64   `gorm:"primaryKey"`
	Title                     string  `gorm:"type:text;not null"`
	Description               *string `gorm:"type:text"`
	ReadmeLink                *string `gorm:"type:text"`
	SlackID                   string  `gorm:"index;not null"`
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	TitleDescriptionEmbedding *pgvector.Vector `gorm:"type:vector(384)"`
	LastSynced                *time.Time
}

// EmbeddingText is the text the project's vector is computed from.
func (p *Project) EmbeddingText() string {
	if p.Description != nil {
		return p.Title + " " + *p.Description
	}
	return p.Title + " "
}

// Devlog is a project update post. Upstream calls these devlogs; the
// table keeps the historical name logs.
type Devlog struct {
	ID            int64  `gorm:"primaryKey"`
	Text          string `gorm:"type:text;not null"`
	ProjectID     int64  `gorm:"index;not null"`
	SlackID       string `gorm:"index;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TextEmbedding *pgvector.Vector `gorm:"type:vector(384)"`
	LastSynced    *time.Time
}

// TableName keeps the devlogs table named logs.
func (Devlog) TableName() string { return "logs" }

// Comment is a comment on a devlog, deduplicated by (devlog_id, slack_id).
type Comment struct {
	ID            int64  `gorm:"primaryKey"`
	Text          string `gorm:"type:text;not null"`
	DevlogID      int64  `gorm:"uniqueIndex:idx_comments_devlog_slack;not null"`
	SlackID       string `gorm:"uniqueIndex:idx_comments_devlog_slack;not null"`
	CreatedAt     time.Time
	TextEmbedding *pgvector.Vector `gorm:"type:vector(384)"`
	LastSynced    *time.Time
}

// PlaceholderPfp marks a user whose Slack profile has not been fetched.
const PlaceholderPfp = "notfound"

// PlaceholderTrust marks a user whose trust metadata has not been fetched.
const PlaceholderTrust = "unavailable"

// User is a platform member, created as a placeholder on first sighting
// and enriched asynchronously with Slack profile and trust metadata.
type User struct {
	SlackID       string  `gorm:"primaryKey"`
	Username      *string `gorm:"type:text"`
	CurrentShells *int32
	TrustLevel    *string `gorm:"type:text"`
	TrustValue    *int32
	PfpURL        string  `gorm:"type:text;not null;default:notfound"`
	Image24       *string `gorm:"column:image_24;type:text"`
	Image32       *string `gorm:"column:image_32;type:text"`
	Image48       *string `gorm:"column:image_48;type:text"`
	Image72       *string `gorm:"column:image_72;type:text"`
	Image192      *string `gorm:"column:image_192;type:text"`
	Image512      *string `gorm:"column:image_512;type:text"`
	LastSynced    *time.Time
}

// ShellHistory is one link of a user's append-only balance chain.
// Shells always equals ShellsThen + ShellDiff.
type ShellHistory struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	SlackID    string `gorm:"uniqueIndex:idx_shell_history_user_time;index;not null"`
	ShellsThen *int32
	ShellDiff  int32
	Shells     int32
	RecordedAt time.Time `gorm:"uniqueIndex:idx_shell_history_user_time;not null"`
}

// TableName pins the pluralization.
func (ShellHistory) TableName() string { return "shell_history" }

// SyncMetadata is the per-stream page cursor. Key is one of projects,
// devlogs or comments.
type SyncMetadata struct {
	Key      string `gorm:"primaryKey"`
	LastSync time.Time
	LastPage int
	Status   string `gorm:"type:text"`
}

// TableName keeps the singular table name.
func (SyncMetadata) TableName() string { return "sync_metadata" }
