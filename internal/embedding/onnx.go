//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kansa/pkg/utils"
)

// ONNXEmbedder runs a sentence-transformer model exported with a pooled
// "output" tensor. It needs CGO and the onnxruntime shared library.
//
// Text longer than one sequence is embedded window by window and the window
// vectors are averaged, so long chunks are not silently cut.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	tokenizer  wordTokenizer
	dimensions int

	ids, mask, types *ort.Tensor[int64]
	output           *ort.Tensor[float32]
}

var onnxInputs = []string{"input_ids", "attention_mask", "token_type_ids"}

// NewONNXEmbedder loads the model at modelPath, initializing the runtime on
// first use.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if err := checkModelFile(modelPath); err != nil {
		return nil, err
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("ONNX embedder: dimensions must be positive, got %d", dimensions)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize ONNX runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{tokenizer: newWordTokenizer(maxTokens), dimensions: dimensions}
	seq := ort.NewShape(1, int64(e.tokenizer.maxTokens))
	var err error
	for _, in := range []**ort.Tensor[int64]{&e.ids, &e.mask, &e.types} {
		if *in, err = ort.NewEmptyTensor[int64](seq); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("allocate input tensor: %w", err)
		}
	}
	if e.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(modelPath, onnxInputs, []string{"output"},
		[]ort.ArbitraryTensor{e.ids, e.mask, e.types},
		[]ort.ArbitraryTensor{e.output},
		nil)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}
	return e, nil
}

// Embed returns the L2-normalized mean of the window embeddings of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sum := make([]float32, e.dimensions)
	windows := e.tokenizer.windows(text)
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.tokenizer.encode(w, e.ids.GetData(), e.mask.GetData(), e.types.GetData())
		if err := e.session.Run(); err != nil {
			return nil, fmt.Errorf("ONNX inference: %w", err)
		}
		for i, v := range e.output.GetData()[:e.dimensions] {
			sum[i] += v
		}
	}
	// Normalizing the sum gives the same direction as normalizing the mean.
	utils.NormalizeL2(sum)
	return sum, nil
}

// EmbedBatch embeds texts one at a time; the session holds a single sequence.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// Close releases the session and its tensors. It is safe on a partially
// constructed embedder.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range []*ort.Tensor[int64]{e.ids, e.mask, e.types} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	e.ids, e.mask, e.types = nil, nil, nil
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}
