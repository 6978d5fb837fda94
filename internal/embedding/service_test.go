package embedding

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTokenizer maps each text to a fixed-length encoding.
type stubTokenizer struct {
	mu      sync.Mutex
	lengths map[string]int
	calls   int
}

func (s *stubTokenizer) Encode(text string) (Encoding, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	n := s.lengths[text]
	enc := Encoding{
		IDs:           make([]int64, n),
		AttentionMask: make([]int64, n),
		TypeIDs:       make([]int64, n),
	}
	for i := 0; i < n; i++ {
		enc.IDs[i] = int64(i)
		enc.AttentionMask[i] = 1
	}
	return enc, nil
}

// stubModel records every window it is asked to embed.
type stubModel struct {
	mu      sync.Mutex
	windows [][2]int64 // first and last token id of each window
	vec     []float32
}

func (s *stubModel) Forward(enc Encoding) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, [2]int64{enc.IDs[0], enc.IDs[len(enc.IDs)-1]})
	if s.vec != nil {
		return s.vec, nil
	}
	v := make([]float32, Dim)
	v[0] = 1
	return v, nil
}

func (s *stubModel) Close() error { return nil }

func TestEmbedBlankTextIsZeroVector(t *testing.T) {
	tk := &stubTokenizer{lengths: map[string]int{}}
	svc := newService(tk, &stubModel{}, 1, 0)

	vec, err := svc.Embed(context.Background(), "   \n\t ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, Dim), vec)
	assert.Zero(t, tk.calls, "blank text must not reach the tokenizer")
}

func TestEmbedShortTextIsZeroVector(t *testing.T) {
	tk := &stubTokenizer{lengths: map[string]int{"hi": MinTokens - 1}}
	model := &stubModel{}
	svc := newService(tk, model, 1, 0)

	vec, err := svc.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, Dim), vec)
	assert.Empty(t, model.windows)
}

func TestEmbedSingleWindow(t *testing.T) {
	tk := &stubTokenizer{lengths: map[string]int{"short": 100}}
	model := &stubModel{}
	svc := newService(tk, model, 1, 0)

	_, err := svc.Embed(context.Background(), "short")
	require.NoError(t, err)
	require.Len(t, model.windows, 1)
	assert.Equal(t, [2]int64{0, 99}, model.windows[0])
}

func TestEmbedLongTextWindowOffsets(t *testing.T) {
	tk := &stubTokenizer{lengths: map[string]int{"long": 1100}}
	model := &stubModel{}
	svc := newService(tk, model, 1, 0)

	_, err := svc.Embed(context.Background(), "long")
	require.NoError(t, err)

	// 1100 tokens: [0,512), [448,960), [896,1100).
	require.Len(t, model.windows, 3)
	assert.Equal(t, [2]int64{0, 511}, model.windows[0])
	assert.Equal(t, [2]int64{448, 959}, model.windows[1])
	assert.Equal(t, [2]int64{896, 1099}, model.windows[2])
}

func TestEmbedCachesByExactText(t *testing.T) {
	tk := &stubTokenizer{lengths: map[string]int{"text": 100}}
	model := &stubModel{}
	svc := newService(tk, model, 1, DefaultCacheTTL)

	first, err := svc.Embed(context.Background(), "text")
	require.NoError(t, err)
	second, err := svc.Embed(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, model.windows, 1, "second call must be served from cache")
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newTTLCache(time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.put("a", []float32{1})
	_, ok := c.get("a")
	assert.True(t, ok)

	now = now.Add(time.Hour + time.Second)
	_, ok = c.get("a")
	assert.False(t, ok)
}

func TestCacheZeroTTLDisabled(t *testing.T) {
	c := newTTLCache(0)
	c.put("a", []float32{1})
	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Empty(t, c.entries)
}

func TestCacheEvictsAtCap(t *testing.T) {
	c := newTTLCache(time.Hour)
	for i := 0; i < cacheMaxEntries; i++ {
		c.put(fmt.Sprintf("k%d", i), []float32{float32(i)})
	}
	c.put("overflow", []float32{9})
	assert.LessOrEqual(t, len(c.entries), cacheMaxEntries)
	_, ok := c.get("overflow")
	assert.True(t, ok)
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	tk := &stubTokenizer{lengths: map[string]int{}}
	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
		tk.lengths[texts[i]] = 100
	}
	// Every text embeds to the same vector; blanks interleaved check slots.
	texts[3] = ""
	texts[15] = ""

	svc := newService(tk, &stubModel{vec: unitVec()}, 4, 0)
	results, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, results, len(texts))

	for i, vec := range results {
		if texts[i] == "" {
			assert.Equal(t, make([]float32, Dim), vec, "slot %d", i)
		} else {
			assert.Equal(t, unitVec(), vec, "slot %d", i)
		}
	}
}

func unitVec() []float32 {
	v := make([]float32, Dim)
	v[0] = 1
	return v
}

func TestMeanPoolIgnoresPadding(t *testing.T) {
	// Two real tokens followed by padding; hidden values 2 and 4 average to 3.
	seqLen := 4
	hidden := make([]float32, seqLen*Dim)
	for h := 0; h < Dim; h++ {
		hidden[0*Dim+h] = 2
		hidden[1*Dim+h] = 4
		hidden[2*Dim+h] = 100
		hidden[3*Dim+h] = 100
	}
	mask := []int64{1, 1, 0, 0}

	pooled := meanPool(hidden, mask)
	for h := 0; h < Dim; h++ {
		assert.InDelta(t, 3.0, pooled[h], 1e-6)
	}
}

func TestNormalizeGuardsNearZero(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	tiny := []float32{1e-8, 0}
	normalize(tiny)
	assert.Equal(t, float32(1e-8), tiny[0])
}
