package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	userAgent     = "shoal/1.0"
	sessionCookie = "_journey_session"

	maxAttempts    = 5
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Client talks to the upstream platform API. It authenticates every
// request with the session cookie and retries transient failures with
// doubling backoff.
type Client struct {
	http           *http.Client
	baseURL        string
	leaderboardURL string
	statsBaseURL   string
	cookie         string
	log            zerolog.Logger

	// test seams
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewClient builds a Client. baseURL and statsBaseURL are used without
// their trailing slash; leaderboardURL is requested as given.
func NewClient(baseURL, leaderboardURL, statsBaseURL, cookie string) *Client {
	return &Client{
		http:           &http.Client{Timeout: 30 * time.Second},
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		leaderboardURL: leaderboardURL,
		statsBaseURL:   strings.TrimSuffix(statsBaseURL, "/"),
		cookie:         cookie,
		log:            log.With().Str("component", "upstream").Logger(),
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

// FetchProjects returns one page of projects.
func (c *Client) FetchProjects(ctx context.Context, page int) (*ProjectsResponse, error) {
	var out ProjectsResponse
	url := fmt.Sprintf("%s/api/v1/projects?page=%d", c.baseURL, page)
	if err := c.getJSON(ctx, url, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchDevlogs returns one page of devlogs.
func (c *Client) FetchDevlogs(ctx context.Context, page int) (*DevlogsResponse, error) {
	var out DevlogsResponse
	url := fmt.Sprintf("%s/api/v1/devlogs?page=%d", c.baseURL, page)
	if err := c.getJSON(ctx, url, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchComments returns one page of comments.
func (c *Client) FetchComments(ctx context.Context, page int) (*CommentsResponse, error) {
	var out CommentsResponse
	url := fmt.Sprintf("%s/api/v1/comments?page=%d", c.baseURL, page)
	if err := c.getJSON(ctx, url, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchLeaderboard returns the full shell leaderboard with payout history.
func (c *Client) FetchLeaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	if err := c.getJSON(ctx, c.leaderboardURL, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchUserStats returns stats for one user. A 404 means the user has no
// stats and yields (nil, nil). A 429 yields a *RateLimitError with the
// server's retry hint.
func (c *Client) FetchUserStats(ctx context.Context, slackID string) (*UserStats, error) {
	url := fmt.Sprintf("%s/api/v1/users/%s/stats", c.statsBaseURL, slackID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch user stats: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read user stats body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var out UserStats
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode user stats: %w", err)
		}
		return &out, nil
	case http.StatusNotFound:
		return nil, nil
	case http.StatusTooManyRequests:
		var rl rateLimitBody
		_ = json.Unmarshal(body, &rl)
		if rl.RetryAfter <= 0 {
			rl.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), 60)
		}
		return nil, &RateLimitError{RetryAfter: rl.RetryAfter, Message: rl.Message}
	default:
		return nil, &StatusError{Status: resp.StatusCode, URL: url}
	}
}

// getJSON fetches url with retries and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, url string, authed bool, out any) error {
	body, err := c.fetchWithRetry(ctx, url, authed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// fetchWithRetry issues the request up to maxAttempts times, doubling the
// backoff between failures. A 429 carrying a Retry-After header waits the
// indicated time without consuming an attempt; a headerless 429 counts
// like any other transient failure. Blocked, expired-auth, and
// non-retryable 4xx responses fail immediately.
func (c *Client) fetchWithRetry(ctx context.Context, url string, authed bool) ([]byte, error) {
	backoff := c.initialBackoff
	attempt := 0
	var lastErr error

	for attempt < maxAttempts {
		body, retryAfter, err := c.fetchOnce(ctx, url, authed)
		if err == nil {
			return body, nil
		}
		if err == ErrBlocked || err == ErrAuthExpired {
			return nil, err
		}
		var se *StatusError
		if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 && se.Status != http.StatusTooManyRequests {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if retryAfter > 0 {
			// Server told us exactly how long to wait; this does not
			// count against the attempt budget.
			c.log.Warn().Str("url", url).Dur("wait", retryAfter).Msg("rate limited, honoring Retry-After")
			if err := sleepCtx(ctx, retryAfter); err != nil {
				return nil, err
			}
			continue
		}

		lastErr = err
		attempt++
		if attempt >= maxAttempts {
			break
		}
		c.log.Warn().Err(err).Str("url", url).Int("attempt", attempt).Dur("backoff", backoff).Msg("request failed, retrying")
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return nil, fmt.Errorf("upstream: %s failed after %d attempts: %w", url, maxAttempts, lastErr)
}

// fetchOnce performs a single request. A positive retryAfter means the
// server rate limited us and asked for that wait.
func (c *Client) fetchOnce(ctx context.Context, url string, authed bool) (body []byte, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	if authed {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: c.cookie})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return raw, 0, nil
	case resp.StatusCode == http.StatusForbidden:
		if strings.Contains(string(raw), "get blocked nerd") {
			return nil, 0, ErrBlocked
		}
		return nil, 0, ErrAuthExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		// Only a present Retry-After header carries a server wait hint;
		// a bare 429 retries on the counted backoff schedule.
		if h := resp.Header.Get("Retry-After"); h != "" {
			secs := parseRetryAfter(h, 10)
			return nil, time.Duration(secs) * time.Second, &StatusError{Status: resp.StatusCode, URL: url}
		}
		return nil, 0, &StatusError{Status: resp.StatusCode, URL: url}
	default:
		return nil, 0, &StatusError{Status: resp.StatusCode, URL: url}
	}
}

func parseRetryAfter(h string, fallback int64) int64 {
	if h == "" {
		return fallback
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(h), 10, 64); err == nil && n > 0 {
		return n
	}
	return fallback
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
