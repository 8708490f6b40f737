package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/hyperjump/kansa/internal/models"
)

// converser is the subset of the Bedrock runtime client used here.
type converser interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient calls a Bedrock model through the Converse API.
type BedrockClient struct {
	api       converser
	modelID   string
	maxTokens int
	timeout   time.Duration
}

// NewBedrockClient wraps an AWS config for modelID.
func NewBedrockClient(cfg aws.Config, modelID string, maxTokens int, timeout time.Duration) *BedrockClient {
	return &BedrockClient{
		api:       bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// Complete runs one Converse call and concatenates the text blocks of the reply.
func (c *BedrockClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.api.Converse(ctx, c.input(req))
	if err != nil {
		return "", fmt.Errorf("bedrock converse %s: %w: %w", c.modelID, models.ErrInvocation, err)
	}
	text, err := outputText(out)
	if err != nil {
		return "", fmt.Errorf("bedrock converse %s: %w: %w", c.modelID, models.ErrInvocation, err)
	}
	return strings.TrimSpace(text), nil
}

// Name returns "bedrock:<model id>".
func (c *BedrockClient) Name() string {
	return "bedrock:" + c.modelID
}

func (c *BedrockClient) input(req Request) *bedrockruntime.ConverseInput {
	user := req.User
	var system []types.SystemContentBlock
	if req.System != "" {
		if supportsSystemPrompt(c.modelID) {
			system = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
		} else {
			user = req.System + "\n\n" + req.User
		}
	}
	inference := &types.InferenceConfiguration{
		Temperature: aws.Float32(float32(req.Temperature)),
	}
	if c.maxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(c.maxTokens))
	}
	return &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		System:  system,
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: user}},
		}},
		InferenceConfig: inference,
	}
}

// Titan text models reject system content blocks.
func supportsSystemPrompt(modelID string) bool {
	return !strings.Contains(modelID, "amazon.titan")
}

func outputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", fmt.Errorf("empty response")
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("unexpected output type %T", out.Output)
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(t.Value)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("response has no text content")
	}
	return b.String(), nil
}
