package embedding

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}
var onnxOutputNames = []string{"last_hidden_state"}

// minilmModel runs all-MiniLM-L6-v2 through onnxruntime. The session is
// not safe for concurrent Run calls, so inference is serialized.
type minilmModel struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

var _ Model = (*minilmModel)(nil)

// NewONNXModel loads the model from modelPath and prepares an inference
// session. The onnxruntime shared library is resolved from the
// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable when set.
func NewONNXModel(modelPath string) (Model, error) {
	if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize ONNX runtime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, onnxInputNames, onnxOutputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("create ONNX session from %s: %w", modelPath, err)
	}
	return &minilmModel{session: session}, nil
}

// Forward computes the pooled embedding for one token window. The window
// is zero-padded to MaxSequenceLength before inference.
func (m *minilmModel) Forward(enc Encoding) ([]float32, error) {
	if enc.Len() == 0 {
		return make([]float32, Dim), nil
	}
	if enc.Len() > MaxSequenceLength {
		return nil, fmt.Errorf("window of %d tokens exceeds maximum %d", enc.Len(), MaxSequenceLength)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inputIDs := make([]int64, MaxSequenceLength)
	attentionMask := make([]int64, MaxSequenceLength)
	tokenTypeIDs := make([]int64, MaxSequenceLength)
	copy(inputIDs, enc.IDs)
	copy(attentionMask, enc.AttentionMask)
	copy(tokenTypeIDs, enc.TypeIDs)

	inputShape := ort.NewShape(1, MaxSequenceLength)

	inputIDsTensor, err := ort.NewTensor(inputShape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer inputIDsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(inputShape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()

	tokenTypeIDsTensor, err := ort.NewTensor(inputShape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDsTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, MaxSequenceLength, Dim))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	inputs := []ort.Value{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor}
	outputs := []ort.Value{outputTensor}
	if err := m.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}

	pooled := meanPool(outputTensor.GetData(), attentionMask)
	normalize(pooled)
	return pooled, nil
}

// Close destroys the session. The shared ONNX environment is left alive
// for other sessions in the process.
func (m *minilmModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
		m.session = nil
	}
	return nil
}

// meanPool averages token embeddings weighted by the attention mask.
// Input shape is [1, seq_len, Dim] flattened.
func meanPool(hidden []float32, attentionMask []int64) []float32 {
	result := make([]float32, Dim)
	var maskSum float32
	for s := 0; s < len(attentionMask); s++ {
		if attentionMask[s] == 0 {
			continue
		}
		maskSum++
		off := s * Dim
		for h := 0; h < Dim; h++ {
			result[h] += hidden[off+h]
		}
	}
	if maskSum > 0 {
		for h := 0; h < Dim; h++ {
			result[h] /= maskSum
		}
	}
	return result
}

// normalize scales v to unit length in place. Near-zero vectors are left
// untouched to avoid amplifying noise.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm < 1e-6 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// wordpieceTokenizer adapts a sugarme tokenizer, with truncation
// disabled so the service can window long texts itself.
type wordpieceTokenizer struct {
	tk *tokenizer.Tokenizer
	mu sync.Mutex
}

var _ Tokenizer = (*wordpieceTokenizer)(nil)

// NewTokenizer loads a tokenizer.json from disk.
func NewTokenizer(path string) (Tokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer from %s: %w", path, err)
	}
	tk.WithTruncation(nil)
	return &wordpieceTokenizer{tk: tk}, nil
}

// Encode tokenizes text with special tokens, without truncation.
func (t *wordpieceTokenizer) Encode(text string) (Encoding, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	enc, err := t.tk.EncodeSingle(text, true)
	if err != nil {
		return Encoding{}, fmt.Errorf("tokenize: %w", err)
	}

	out := Encoding{
		IDs:           make([]int64, len(enc.Ids)),
		AttentionMask: make([]int64, len(enc.AttentionMask)),
		TypeIDs:       make([]int64, len(enc.TypeIds)),
	}
	for i, id := range enc.Ids {
		out.IDs[i] = int64(id)
	}
	for i, m := range enc.AttentionMask {
		out.AttentionMask[i] = int64(m)
	}
	for i, ty := range enc.TypeIds {
		out.TypeIDs[i] = int64(ty)
	}
	return out, nil
}
