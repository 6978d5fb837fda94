// Package shells reconstructs per-user shell balance history from
// leaderboard payout events.
package shells

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/journeylabs/shoal/internal/upstream"
)

// Entry is one link of a user's balance chain: the balance before the
// payout, the payout amount, and the balance after, at RecordedAt.
// Shells is always ShellsThen + Diff.
type Entry struct {
	RecordedAt time.Time
	ShellsThen int32
	Diff       int32
	Shells     int32
}

// ParseAmount converts a payout amount string to whole shells. Amounts
// arrive as signed decimals; fractional shells are truncated toward zero.
func ParseAmount(s string) (int32, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse payout amount %q: %w", s, err)
	}
	return int32(math.Trunc(f)), nil
}

// Rebuild reconstructs the full balance chain for a user from their
// complete payout list and current balance. Payouts are sorted by time
// and walked newest-first, subtracting each diff from the running
// balance, so the chain ends exactly at finalShells. Entries come back
// oldest-first. Payouts with unparseable amounts or timestamps are
// skipped.
func Rebuild(finalShells int32, payouts []upstream.Payout) []Entry {
	resolved := resolve(payouts)
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].at.Before(resolved[j].at)
	})

	entries := make([]Entry, 0, len(resolved))
	running := finalShells
	for i := len(resolved) - 1; i >= 0; i-- {
		p := resolved[i]
		shellsThen := running - p.amount
		entries = append(entries, Entry{
			RecordedAt: p.at,
			ShellsThen: shellsThen,
			Diff:       p.amount,
			Shells:     running,
		})
		running = shellsThen
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

// Extend appends chain links for payouts strictly newer than
// lastRecorded, walking forward from the previously known balance.
// Entries come back oldest-first.
func Extend(previous int32, lastRecorded time.Time, payouts []upstream.Payout) []Entry {
	resolved := resolve(payouts)
	fresh := resolved[:0]
	for _, p := range resolved {
		if p.at.After(lastRecorded) {
			fresh = append(fresh, p)
		}
	}
	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].at.Before(fresh[j].at)
	})

	entries := make([]Entry, 0, len(fresh))
	running := previous
	for _, p := range fresh {
		entries = append(entries, Entry{
			RecordedAt: p.at,
			ShellsThen: running,
			Diff:       p.amount,
			Shells:     running + p.amount,
		})
		running += p.amount
	}
	return entries
}

type resolvedPayout struct {
	at     time.Time
	amount int32
}

func resolve(payouts []upstream.Payout) []resolvedPayout {
	out := make([]resolvedPayout, 0, len(payouts))
	for _, p := range payouts {
		at, err := time.Parse(time.RFC3339, p.CreatedAt)
		if err != nil {
			continue
		}
		amount, err := ParseAmount(p.Amount)
		if err != nil {
			continue
		}
		out = append(out, resolvedPayout{at: at, amount: amount})
	}
	return out
}
