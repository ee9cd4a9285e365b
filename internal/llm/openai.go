package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/recipebot/internal/metrics"
	"github.com/xaenox/recipebot/internal/models"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
)

type OpenAIClient struct {
	client              *openai.Client
	model               string
	maxTokens           int
	temperature         float64
	classifyTemperature float64
	timeout             time.Duration
	logger              *zap.Logger
}

func NewOpenAIClient(cfg config.OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:              openai.NewClientWithConfig(clientConfig),
		model:               cfg.Model,
		maxTokens:           cfg.MaxTokens,
		temperature:         cfg.Temperature,
		classifyTemperature: cfg.ClassifyTemperature,
		timeout:             cfg.Timeout,
		logger:              logger.Named("openai"),
	}
}

func (c *OpenAIClient) Infer(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	temperature := c.temperature
	if req.Mode == Deterministic {
		temperature = c.classifyTemperature
	}

	completionReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: sendableTemperature(temperature),
	}
	if req.Format == Structured {
		completionReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, completionReq)
	metrics.InferenceDuration.WithLabelValues(req.Mode.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InferenceErrors.WithLabelValues(req.Mode.String()).Inc()
		c.logger.Error("Failed to get completion",
			zap.Error(err),
			zap.String("mode", req.Mode.String()))
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		metrics.InferenceErrors.WithLabelValues(req.Mode.String()).Inc()
		return "", ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		metrics.InferenceErrors.WithLabelValues(req.Mode.String()).Inc()
		return "", ErrEmptyCompletion
	}

	return content, nil
}

// go-openai drops a zero temperature from the request body, which makes the
// provider fall back to its default of 1.
func sendableTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
