// Package embedding generates 384-dimensional text embeddings with a
// local MiniLM ONNX model.
package embedding

// Dim is the embedding dimension produced by the model.
// all-MiniLM-L6-v2 outputs 384-dimensional sentence embeddings.
const Dim = 384

// MaxSequenceLength is the maximum token window the model accepts.
const MaxSequenceLength = 512

// WindowStride is the step between overlapping windows for texts longer
// than MaxSequenceLength. Consecutive windows share 64 tokens.
const WindowStride = 448

// MinTokens is the shortest token sequence worth embedding. Anything
// shorter gets a zero vector.
const MinTokens = 8

// Encoding is the tokenized form of a text, untruncated.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Len returns the token count.
func (e Encoding) Len() int { return len(e.IDs) }

// Slice returns the encoding restricted to [start, end).
func (e Encoding) Slice(start, end int) Encoding {
	return Encoding{
		IDs:           e.IDs[start:end],
		AttentionMask: e.AttentionMask[start:end],
		TypeIDs:       e.TypeIDs[start:end],
	}
}

// Tokenizer converts text into model token IDs.
type Tokenizer interface {
	Encode(text string) (Encoding, error)
}

// Model runs inference on one token window and returns a pooled,
// normalized sentence embedding. Windows longer than MaxSequenceLength
// are an error.
type Model interface {
	Forward(enc Encoding) ([]float32, error)
	Close() error
}
