package jobs

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// pageFunc fetches one page of a stream, returning its records and the
// total page count reported by the response.
type pageFunc[T any] func(ctx context.Context, page int) (items []T, totalPages int, err error)

// pageResult is what a paged sweep produced: the collected records, the
// highest page actually drained, and the total page count upstream
// reported. Items carry no ordering guarantee across pages.
type pageResult[T any] struct {
	items      []T
	maxDrained int
	totalPages int
}

// fetchPages drains a stream from startPage. The first page is fetched
// alone to learn the total page count; the rest fan out under the
// concurrency cap. maxPages > 0 caps how many pages are read in total.
// Failed pages beyond the first are logged and skipped; maxDrained only
// covers the contiguous prefix of drained pages, so a cursor advanced to
// it never skips a failed page.
func fetchPages[T any](ctx context.Context, stream string, fetch pageFunc[T], startPage, maxPages int, concurrency int) (pageResult[T], error) {
	var res pageResult[T]

	items, totalPages, err := fetch(ctx, startPage)
	if err != nil {
		return res, err
	}
	res.items = items
	res.maxDrained = startPage
	res.totalPages = totalPages

	lastPage := totalPages
	if maxPages > 0 && startPage+maxPages-1 < lastPage {
		lastPage = startPage + maxPages - 1
	}
	if startPage >= lastPage {
		return res, nil
	}

	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed = make(map[int]bool)
	)
	for page := startPage + 1; page <= lastPage; page++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			defer sem.Release(1)

			pageItems, _, err := fetch(ctx, page)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("stream", stream).Int("page", page).Msg("page fetch failed, skipping")
				failed[page] = true
				return
			}
			res.items = append(res.items, pageItems...)
		}(page)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// Advance only through the contiguous run of successful pages.
	for page := startPage + 1; page <= lastPage; page++ {
		if failed[page] {
			break
		}
		res.maxDrained = page
	}
	return res, nil
}

// fetchPagesWithRetry wraps a full drain of a stream in WithRetry, so a
// transient upstream outage costs a repeat of the sweep rather than the
// whole job run.
func fetchPagesWithRetry[T any](ctx context.Context, stream string, fetch pageFunc[T], startPage, maxPages int, concurrency int) (pageResult[T], error) {
	var res pageResult[T]
	err := WithRetry(ctx, "fetch "+stream, func() error {
		var err error
		res, err = fetchPages(ctx, stream, fetch, startPage, maxPages, concurrency)
		return err
	})
	return res, err
}
