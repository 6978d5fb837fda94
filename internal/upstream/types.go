package upstream

// Pagination carries the paging metadata attached to list responses.
// All fields are optional; a missing Pages means the listing is single-page.
type Pagination struct {
	Pages *int `json:"pages"`
	Count *int `json:"count"`
	Page  *int `json:"page"`
	Items *int `json:"items"`
}

// TotalPages returns the reported page count, or fallback when absent.
func (p *Pagination) TotalPages(fallback int) int {
	if p == nil || p.Pages == nil {
		return fallback
	}
	return *p.Pages
}

// Project is a project record as returned by the upstream API.
// Timestamps are RFC 3339 strings; parsing happens at store time.
type Project struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	ReadmeLink  *string `json:"readme_link"`
	SlackID     string  `json:"slack_id"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// ProjectsResponse is one page of projects.
type ProjectsResponse struct {
	Projects   []Project   `json:"projects"`
	Pagination *Pagination `json:"pagination"`
}

// Devlog is a project update post. The upstream API calls these devlogs;
// the local table is named logs.
type Devlog struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	ProjectID int64  `json:"project_id"`
	SlackID   string `json:"slack_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// DevlogsResponse is one page of devlogs.
type DevlogsResponse struct {
	Devlogs    []Devlog    `json:"devlogs"`
	Pagination *Pagination `json:"pagination"`
}

// Comment is a comment on a devlog. Upstream assigns no usable identity
// beyond (devlog_id, slack_id), which is the local dedup key.
type Comment struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	DevlogID  int64  `json:"devlog_id"`
	SlackID   string `json:"slack_id"`
	CreatedAt string `json:"created_at"`
}

// CommentsResponse is one page of comments.
type CommentsResponse struct {
	Comments   []Comment   `json:"comments"`
	Pagination *Pagination `json:"pagination"`
}

// Payout is a single shell-balance change event. Amount is a signed decimal
// transported as a string ("+10", "-5.0").
type Payout struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
	Type      string `json:"type"`
}

// LeaderboardEntry is one user on the shell leaderboard, with optional
// historical payouts.
type LeaderboardEntry struct {
	SlackID  string   `json:"slack_id"`
	Username *string  `json:"username"`
	Shells   int32    `json:"shells"`
	Payouts  []Payout `json:"payouts"`
}

// TrustFactor is the trust metadata portion of a user-stats response.
type TrustFactor struct {
	TrustLevel string `json:"trust_level"`
	TrustValue int32  `json:"trust_value"`
}

// UserStats is the per-user statistics response.
type UserStats struct {
	TrustFactor TrustFactor `json:"trust_factor"`
}

type rateLimitBody struct {
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
}
