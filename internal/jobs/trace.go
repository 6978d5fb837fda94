package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/journeylabs/shoal/internal/store"
	"github.com/journeylabs/shoal/internal/upstream"
)

// traceBatchSize caps how many users one sweep enriches.
const traceBatchSize = 100

// traceParallelism bounds concurrent per-user enrichment.
const traceParallelism = 10

// TraceJob enriches placeholder users with their Slack profile and
// upstream trust metadata. It runs continuously and reports no work
// when every user is enriched.
type TraceJob struct {
	d       Deps
	slack   *slack.Client
	limiter *rate.Limiter
}

// NewTraceJob builds the enrichment job. Without a Slack token only the
// trust half runs.
func NewTraceJob(d Deps) *TraceJob {
	j := &TraceJob{
		d: d,
		// Slack allows roughly 100 profile reads a minute; stay under it.
		limiter: rate.NewLimiter(rate.Limit(1.5), 3),
	}
	if d.Cfg.SlackToken != "" {
		j.slack = slack.New(d.Cfg.SlackToken)
	}
	return j
}

func (j *TraceJob) Name() string { return "trace" }

func (j *TraceJob) Execute(ctx context.Context) error {
	users, err := j.d.Store.UsersNeedingEnrichment(ctx, traceBatchSize)
	if err != nil {
		return DatabaseErr(err)
	}
	if len(users) == 0 {
		return ErrNoWork
	}

	sem := semaphore.NewWeighted(traceParallelism)
	var wg sync.WaitGroup
	for _, u := range users {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(u store.User) {
			defer wg.Done()
			defer sem.Release(1)
			j.enrich(ctx, u)
		}(u)
	}
	wg.Wait()
	return ctx.Err()
}

// enrich fills in whatever halves of the user are still placeholders.
// Either half may fail; the user simply stays eligible for the next
// sweep.
func (j *TraceJob) enrich(ctx context.Context, u store.User) {
	if j.slack != nil && (u.Username == nil || u.PfpURL == store.PlaceholderPfp) {
		if err := j.enrichProfile(ctx, u.SlackID); err != nil {
			log.Warn().Err(err).Str("slack_id", u.SlackID).Msg("profile enrichment failed")
		}
	}
	if u.TrustLevel == nil || *u.TrustLevel == store.PlaceholderTrust {
		if err := j.enrichTrust(ctx, u.SlackID); err != nil {
			log.Warn().Err(err).Str("slack_id", u.SlackID).Msg("trust enrichment failed")
		}
	}
}

func (j *TraceJob) enrichProfile(ctx context.Context, slackID string) error {
	if err := j.limiter.Wait(ctx); err != nil {
		return err
	}

	profile, err := j.slack.GetUserProfileContext(ctx, &slack.GetUserProfileParameters{UserID: slackID})
	if err != nil {
		var rle *slack.RateLimitedError
		if errors.As(err, &rle) {
			log.Warn().Dur("retry_after", rle.RetryAfter).Msg("slack rate limited")
			sleepOrDone(ctx, rle.RetryAfter)
		}
		return err
	}

	updates := map[string]any{
		"pfp_url":  pickPfp(profile),
		"username": profileName(profile),
	}
	setImage(updates, "image_24", profile.Image24)
	setImage(updates, "image_32", profile.Image32)
	setImage(updates, "image_48", profile.Image48)
	setImage(updates, "image_72", profile.Image72)
	setImage(updates, "image_192", profile.Image192)
	setImage(updates, "image_512", profile.Image512)

	return j.d.Store.UpdateUserProfile(ctx, slackID, updates)
}

func (j *TraceJob) enrichTrust(ctx context.Context, slackID string) error {
	stats, err := j.d.Client.FetchUserStats(ctx, slackID)
	if err != nil {
		var rl *upstream.RateLimitError
		if errors.As(err, &rl) {
			sleepOrDone(ctx, time.Duration(rl.RetryAfter)*time.Second)
		}
		return err
	}
	if stats == nil {
		// User has no stats upstream; leave the placeholder in place.
		return nil
	}
	return j.d.Store.UpdateUserTrust(ctx, slackID, stats.TrustFactor.TrustLevel, stats.TrustFactor.TrustValue)
}

// profileName falls back through display name and real name; an empty
// profile still yields a non-null username so the user stops matching
// the enrichment filter.
func profileName(p *slack.UserProfile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.RealName != "" {
		return p.RealName
	}
	return "unknown"
}

// pickPfp selects the largest useful avatar, preferring 192 then 512
// then 72 then 48.
func pickPfp(p *slack.UserProfile) string {
	for _, img := range []string{p.Image192, p.Image512, p.Image72, p.Image48} {
		if img != "" {
			return img
		}
	}
	return store.PlaceholderPfp
}

func setImage(updates map[string]any, col, url string) {
	if url != "" {
		updates[col] = url
	}
}
