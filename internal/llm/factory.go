package llm

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/pkg/utils"
)

// Providers.
const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
)

// ErrUnavailable means no language model could be configured.
var ErrUnavailable = errors.New("no language model available")

// New creates the configured client. A Bedrock client that cannot resolve
// AWS credentials falls back to OpenAI when an API key or a base URL (a local
// OpenAI-compatible server) is configured.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	logger = utils.OrNop(logger)
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAI(cfg)
	case ProviderBedrock, "":
		client, err := newBedrock(ctx, cfg)
		if err == nil {
			logger.Info("language model ready", zap.String("client", client.Name()), zap.String("region", cfg.Region))
			return client, nil
		}
		if !openAIConfigured(cfg.OpenAI) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		logger.Warn("bedrock unavailable, falling back to openai", zap.Error(err), zap.String("model", cfg.OpenAI.Model))
		return newOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func openAIConfigured(cfg config.OpenAIConfig) bool {
	return cfg.APIKey != "" || cfg.BaseURL != ""
}

func newOpenAI(cfg config.LLMConfig) (Client, error) {
	if !openAIConfigured(cfg.OpenAI) {
		return nil, fmt.Errorf("%w: openai requires an api key or base url", ErrUnavailable)
	}
	return NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.MaxTokens, cfg.Timeout), nil
}

func newBedrock(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Credentials == nil {
		return nil, errors.New("no aws credentials provider")
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("resolve aws credentials: %w", err)
	}
	return NewBedrockClient(awsCfg, cfg.ModelID, cfg.MaxTokens, cfg.Timeout), nil
}
