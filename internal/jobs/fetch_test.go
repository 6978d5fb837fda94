package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pager is a scripted pageFunc: one item per page named after the page,
// with selected pages failing.
type pager struct {
	mu         sync.Mutex
	totalPages int
	failPages  map[int]bool
	calls      []int
}

func (p *pager) fetch(_ context.Context, page int) ([]string, int, error) {
	p.mu.Lock()
	p.calls = append(p.calls, page)
	p.mu.Unlock()
	if p.failPages[page] {
		return nil, p.totalPages, errors.New("upstream hiccup")
	}
	return []string{fmt.Sprintf("page-%d", page)}, p.totalPages, nil
}

func TestFetchPagesSinglePage(t *testing.T) {
	p := &pager{totalPages: 1}
	res, err := fetchPages(context.Background(), "projects", p.fetch, 1, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"page-1"}, res.items)
	assert.Equal(t, 1, res.maxDrained)
	assert.Equal(t, 1, res.totalPages)
}

func TestFetchPagesDrainsAllPages(t *testing.T) {
	p := &pager{totalPages: 5}
	res, err := fetchPages(context.Background(), "projects", p.fetch, 1, 0, 3)
	require.NoError(t, err)

	sort.Strings(res.items)
	assert.Equal(t, []string{"page-1", "page-2", "page-3", "page-4", "page-5"}, res.items)
	assert.Equal(t, 5, res.maxDrained)
}

func TestFetchPagesResumesFromCursor(t *testing.T) {
	p := &pager{totalPages: 6}
	res, err := fetchPages(context.Background(), "logs", p.fetch, 4, 0, 2)
	require.NoError(t, err)

	sort.Ints(p.calls)
	assert.Equal(t, []int{4, 5, 6}, p.calls)
	assert.Equal(t, 6, res.maxDrained)
}

func TestFetchPagesFirstPageFailureIsFatal(t *testing.T) {
	p := &pager{totalPages: 3, failPages: map[int]bool{1: true}}
	_, err := fetchPages(context.Background(), "projects", p.fetch, 1, 0, 2)
	require.Error(t, err)
}

func TestFetchPagesFailedPageHaltsCursorNotItems(t *testing.T) {
	p := &pager{totalPages: 5, failPages: map[int]bool{3: true}}
	res, err := fetchPages(context.Background(), "comments", p.fetch, 1, 0, 1)
	require.NoError(t, err)

	sort.Strings(res.items)
	assert.Equal(t, []string{"page-1", "page-2", "page-4", "page-5"}, res.items)
	// The cursor may only advance through pages with no gap behind them.
	assert.Equal(t, 2, res.maxDrained)
}

func TestFetchPagesWithRetryRecoversFromOutage(t *testing.T) {
	var calls int
	fetch := func(_ context.Context, page int) ([]string, int, error) {
		calls++
		if calls == 1 {
			return nil, 0, errors.New("upstream down")
		}
		return []string{fmt.Sprintf("page-%d", page)}, 1, nil
	}

	res, err := fetchPagesWithRetry(context.Background(), "projects", fetch, 1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a failed sweep must be retried whole")
	assert.Equal(t, []string{"page-1"}, res.items)
}

func TestFetchPagesWithRetryGivesUp(t *testing.T) {
	var calls int
	fetch := func(context.Context, int) ([]string, int, error) {
		calls++
		return nil, 0, errors.New("upstream down")
	}

	_, err := fetchPagesWithRetry(context.Background(), "logs", fetch, 1, 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch logs")
	assert.Equal(t, 3, calls)
}

func TestFetchPagesHonorsPageCap(t *testing.T) {
	p := &pager{totalPages: 20}
	res, err := fetchPages(context.Background(), "projects", p.fetch, 1, devModePageCap, 4)
	require.NoError(t, err)

	assert.Len(t, p.calls, devModePageCap)
	assert.Equal(t, devModePageCap, res.maxDrained)
	assert.Equal(t, 20, res.totalPages)
}
