//go:build !cgo

package embedding

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("ONNX embedder needs a CGO build with onnxruntime available")

// ONNXEmbedder is unavailable without CGO; New falls back to the hash embedder.
type ONNXEmbedder struct{}

func NewONNXEmbedder(string, int, int) (*ONNXEmbedder, error) { return nil, errNoCGO }

func (*ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, errNoCGO }

func (*ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errNoCGO
}

func (*ONNXEmbedder) Dimensions() int { return 0 }
func (*ONNXEmbedder) Close() error    { return nil }
