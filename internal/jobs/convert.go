package jobs

import (
	"time"

	"github.com/journeylabs/shoal/internal/shells"
	"github.com/journeylabs/shoal/internal/store"
	"github.com/journeylabs/shoal/internal/upstream"
)

// parseUpstreamTime parses the RFC 3339 timestamps upstream attaches to
// every record.
func parseUpstreamTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ValidationErr("bad timestamp "+s, err)
	}
	return t, nil
}

func projectFromUpstream(p upstream.Project) (store.Project, error) {
	createdAt, err := parseUpstreamTime(p.CreatedAt)
	if err != nil {
		return store.Project{}, err
	}
	updatedAt, err := parseUpstreamTime(p.UpdatedAt)
	if err != nil {
		return store.Project{}, err
	}
	return store.Project{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		ReadmeLink:  p.ReadmeLink,
		SlackID:     p.SlackID,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func devlogFromUpstream(d upstream.Devlog) (store.Devlog, error) {
	createdAt, err := parseUpstreamTime(d.CreatedAt)
	if err != nil {
		return store.Devlog{}, err
	}
	updatedAt, err := parseUpstreamTime(d.UpdatedAt)
	if err != nil {
		return store.Devlog{}, err
	}
	return store.Devlog{
		ID:        d.ID,
		Text:      d.Text,
		ProjectID: d.ProjectID,
		SlackID:   d.SlackID,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func commentFromUpstream(c upstream.Comment) (store.Comment, error) {
	createdAt, err := parseUpstreamTime(c.CreatedAt)
	if err != nil {
		return store.Comment{}, err
	}
	return store.Comment{
		ID:        c.ID,
		Text:      c.Text,
		DevlogID:  c.DevlogID,
		SlackID:   c.SlackID,
		CreatedAt: createdAt,
	}, nil
}

func historyRows(slackID string, entries []shells.Entry) []store.ShellHistory {
	rows := make([]store.ShellHistory, 0, len(entries))
	for _, e := range entries {
		then := e.ShellsThen
		rows = append(rows, store.ShellHistory{
			SlackID:    slackID,
			ShellsThen: &then,
			ShellDiff:  e.Diff,
			Shells:     e.Shells,
			RecordedAt: e.RecordedAt,
		})
	}
	return rows
}
