package embedding

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultCacheTTL is how long computed embeddings stay cached.
const DefaultCacheTTL = time.Hour

// Service generates sentence embeddings. Long texts are split into
// overlapping token windows whose embeddings are averaged. Results are
// memoized per exact input text.
type Service struct {
	tk    Tokenizer
	model Model
	cache *ttlCache
	limit int64
}

// NewService loads the model and tokenizer from disk. concurrency bounds
// how many embeddings are computed at once in EmbedBatch; cacheTTL of
// zero disables the cache.
func NewService(modelPath, tokenizerPath string, concurrency int, cacheTTL time.Duration) (*Service, error) {
	tk, err := NewTokenizer(tokenizerPath)
	if err != nil {
		return nil, err
	}
	model, err := NewONNXModel(modelPath)
	if err != nil {
		return nil, err
	}
	return newService(tk, model, concurrency, cacheTTL), nil
}

func newService(tk Tokenizer, model Model, concurrency int, cacheTTL time.Duration) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		tk:    tk,
		model: model,
		cache: newTTLCache(cacheTTL),
		limit: int64(concurrency),
	}
}

// Dimensions returns the embedding vector size.
func (s *Service) Dimensions() int { return Dim }

// Embed returns the embedding for one text. Blank texts and texts under
// MinTokens tokens map to the zero vector.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, Dim), nil
	}
	if cached, ok := s.cache.get(text); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := s.tk.Encode(text)
	if err != nil {
		return nil, err
	}
	if enc.Len() < MinTokens {
		return make([]float32, Dim), nil
	}

	var vec []float32
	if enc.Len() <= MaxSequenceLength {
		vec, err = s.model.Forward(enc)
		if err != nil {
			return nil, err
		}
	} else {
		vec, err = s.embedWindowed(enc)
		if err != nil {
			return nil, err
		}
	}

	s.cache.put(text, vec)
	return vec, nil
}

// embedWindowed embeds a long encoding as overlapping windows of
// MaxSequenceLength tokens, WindowStride apart, and averages them.
func (s *Service) embedWindowed(enc Encoding) ([]float32, error) {
	sum := make([]float32, Dim)
	windows := 0

	pos := 0
	for pos < enc.Len() {
		end := pos + MaxSequenceLength
		if end > enc.Len() {
			end = enc.Len()
		}
		vec, err := s.model.Forward(enc.Slice(pos, end))
		if err != nil {
			return nil, err
		}
		for i := range sum {
			sum[i] += vec[i]
		}
		windows++
		if end >= enc.Len() {
			break
		}
		pos += WindowStride
	}

	for i := range sum {
		sum[i] /= float32(windows)
	}
	normalize(sum)
	return sum, nil
}

// EmbedBatch embeds texts concurrently, preserving input order. The
// first failure cancels the remaining work.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	sem := semaphore.NewWeighted(s.limit)
	g, gctx := errgroup.WithContext(ctx)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			vec, err := s.Embed(gctx, text)
			if err != nil {
				return err
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases model resources.
func (s *Service) Close() error {
	return s.model.Close()
}
