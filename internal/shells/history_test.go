package shells

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/journeylabs/shoal/internal/upstream"
)

func payout(amount, createdAt string) upstream.Payout {
	return upstream.Payout{ID: "p", Amount: amount, CreatedAt: createdAt, Type: "ship"}
}

func TestParseAmountTruncatesTowardZero(t *testing.T) {
	cases := map[string]int32{
		"+10":   10,
		"10.9":  10,
		"-5.0":  -5,
		"-2.7":  -2,
		"0":     0,
		"+0.25": 0,
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAmount("ten")
	assert.Error(t, err)
}

func TestRebuildWalksBackwardFromFinalBalance(t *testing.T) {
	// Current balance 50 built from +10, -5, +45.
	payouts := []upstream.Payout{
		payout("+45", "2025-06-03T00:00:00Z"),
		payout("+10", "2025-06-01T00:00:00Z"),
		payout("-5", "2025-06-02T00:00:00Z"),
	}
	entries := Rebuild(50, payouts)
	require.Len(t, entries, 3)

	assert.Equal(t, Entry{
		RecordedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		ShellsThen: 0, Diff: 10, Shells: 10,
	}, entries[0])
	assert.Equal(t, Entry{
		RecordedAt: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		ShellsThen: 10, Diff: -5, Shells: 5,
	}, entries[1])
	assert.Equal(t, Entry{
		RecordedAt: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		ShellsThen: 5, Diff: 45, Shells: 50,
	}, entries[2])
}

func TestRebuildChainIsConsistent(t *testing.T) {
	payouts := []upstream.Payout{
		payout("+7", "2025-06-01T00:00:00Z"),
		payout("-2", "2025-06-02T00:00:00Z"),
		payout("+9", "2025-06-03T00:00:00Z"),
		payout("-1", "2025-06-04T00:00:00Z"),
	}
	entries := Rebuild(13, payouts)
	require.Len(t, entries, 4)

	for i, e := range entries {
		assert.Equal(t, e.Shells, e.ShellsThen+e.Diff, "entry %d", i)
		if i > 0 {
			assert.Equal(t, entries[i-1].Shells, e.ShellsThen, "entry %d", i)
		}
	}
	assert.Equal(t, int32(13), entries[len(entries)-1].Shells)
}

func TestRebuildSkipsMalformedPayouts(t *testing.T) {
	payouts := []upstream.Payout{
		payout("+5", "2025-06-01T00:00:00Z"),
		payout("oops", "2025-06-02T00:00:00Z"),
		payout("+1", "not-a-time"),
	}
	entries := Rebuild(5, payouts)
	require.Len(t, entries, 1)
	assert.Equal(t, int32(5), entries[0].Shells)
	assert.Equal(t, int32(0), entries[0].ShellsThen)
}

func TestRebuildEmptyPayouts(t *testing.T) {
	assert.Empty(t, Rebuild(40, nil))
}

func TestExtendFiltersAlreadyRecorded(t *testing.T) {
	last := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	payouts := []upstream.Payout{
		payout("+5", "2025-06-01T00:00:00Z"),
		payout("-3", "2025-06-02T00:00:00Z"), // equal to last, excluded
		payout("+10", "2025-06-03T00:00:00Z"),
		payout("+2", "2025-06-04T00:00:00Z"),
	}
	entries := Extend(2, last, payouts)
	require.Len(t, entries, 2)

	assert.Equal(t, Entry{
		RecordedAt: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		ShellsThen: 2, Diff: 10, Shells: 12,
	}, entries[0])
	assert.Equal(t, Entry{
		RecordedAt: time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
		ShellsThen: 12, Diff: 2, Shells: 14,
	}, entries[1])
}

func TestExtendMatchesRebuildTail(t *testing.T) {
	// Extending from a rebuilt prefix must agree with a full rebuild.
	payouts := []upstream.Payout{
		payout("+5", "2025-06-01T00:00:00Z"),
		payout("-3", "2025-06-02T00:00:00Z"),
		payout("+10", "2025-06-03T00:00:00Z"),
	}
	full := Rebuild(12, payouts)
	require.Len(t, full, 3)

	prefix := full[:2]
	tail := Extend(prefix[1].Shells, prefix[1].RecordedAt, payouts)
	require.Len(t, tail, 1)
	assert.Equal(t, full[2], tail[0])
}
