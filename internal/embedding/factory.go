package embedding

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/pkg/utils"
)

// Providers.
const (
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// New builds the configured embedder wrapped in an LRU cache and returns it
// with an identifier of the model actually in use. When the ONNX or OpenAI
// provider cannot be set up it falls back to the hash embedder and logs a
// warning; indexes record the identifier, so a later load with a different
// model is detected.
func New(cfg config.EmbeddingConfig, oai config.OpenAIConfig, logger *zap.Logger) (Embedder, string, error) {
	logger = utils.OrNop(logger)
	var (
		emb Embedder
		id  string
		err error
	)
	switch cfg.Provider {
	case ProviderONNX, "":
		var onnx *ONNXEmbedder
		onnx, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err == nil {
			emb, id = onnx, ProviderONNX+":"+cfg.ModelName
		}
	case ProviderOpenAI:
		if oai.APIKey == "" && oai.BaseURL == "" {
			err = fmt.Errorf("openai embeddings need an API key or base URL")
		} else {
			emb = NewOpenAIEmbedder(oai.APIKey, oai.BaseURL, oai.EmbeddingModel, cfg.Dimensions)
			id = ProviderOpenAI + ":" + oai.EmbeddingModel
		}
	case ProviderHash:
		emb, id = NewHashEmbedder(cfg.Dimensions), ProviderHash
	default:
		return nil, "", fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		logger.Warn("embedding provider unavailable, using hash embedder",
			zap.String("provider", cfg.Provider),
			zap.Error(err))
		emb, id = NewHashEmbedder(cfg.Dimensions), ProviderHash
	}
	return NewCachedEmbedder(emb, cfg.CacheSize), id, nil
}

// checkModelFile reports a readable error when the model file is missing.
func checkModelFile(path string) error {
	if path == "" {
		return fmt.Errorf("no ONNX model path configured")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("ONNX model: %w", err)
	}
	return nil
}
