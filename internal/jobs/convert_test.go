package jobs

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/journeylabs/shoal/internal/shells"
	"github.com/journeylabs/shoal/internal/upstream"
)

func TestProjectFromUpstream(t *testing.T) {
	desc := "a boat tracker"
	p, err := projectFromUpstream(upstream.Project{
		ID:          7,
		Title:       "Shipwatch",
		Description: &desc,
		SlackID:     "U01",
		CreatedAt:   "2025-06-01T10:00:00Z",
		UpdatedAt:   "2025-06-02T11:30:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "Shipwatch", p.Title)
	assert.Equal(t, time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC), p.UpdatedAt)
	assert.Equal(t, "Shipwatch a boat tracker", p.EmbeddingText())
}

func TestProjectFromUpstreamBadTimestamp(t *testing.T) {
	_, err := projectFromUpstream(upstream.Project{
		ID:        7,
		CreatedAt: "yesterday",
		UpdatedAt: "2025-06-02T11:30:00Z",
	})
	var je *Error
	require.ErrorAs(t, err, &je)
	assert.Equal(t, KindValidation, je.Kind)
}

func TestCommentFromUpstream(t *testing.T) {
	c, err := commentFromUpstream(upstream.Comment{
		ID:        91,
		Text:      "nice",
		DevlogID:  12,
		SlackID:   "U02",
		CreatedAt: "2025-06-03T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), c.DevlogID)
	assert.Equal(t, "U02", c.SlackID)
}

func TestHistoryRowsPreservesChain(t *testing.T) {
	t1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	rows := historyRows("U03", []shells.Entry{
		{RecordedAt: t1, ShellsThen: 0, Diff: 10, Shells: 10},
		{RecordedAt: t2, ShellsThen: 10, Diff: -5, Shells: 5},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "U03", rows[0].SlackID)
	require.NotNil(t, rows[1].ShellsThen)
	assert.Equal(t, int32(10), *rows[1].ShellsThen)
	assert.Equal(t, int32(-5), rows[1].ShellDiff)
	assert.Equal(t, int32(5), rows[1].Shells)
	assert.NotSame(t, rows[0].ShellsThen, rows[1].ShellsThen)
}

func TestAuthorUnionDedupsAndDropsEmpty(t *testing.T) {
	ids := authorUnion(
		[]upstream.Project{{SlackID: "U01"}, {SlackID: "U02"}},
		[]upstream.Devlog{{SlackID: "U02"}, {SlackID: ""}},
		[]upstream.Comment{{SlackID: "U03"}, {SlackID: "U01"}},
	)
	sort.Strings(ids)
	assert.Equal(t, []string{"U01", "U02", "U03"}, ids)
}
