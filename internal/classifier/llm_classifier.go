package classifier

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/xaenox/recipebot/internal/llm"
	"github.com/xaenox/recipebot/internal/metrics"
	"go.uber.org/zap"
)

// FailurePolicy is the verdict used when the inference call cannot decide.
type FailurePolicy string

const (
	FailOpen     FailurePolicy = "open"
	FailClosed   FailurePolicy = "closed"
	FailKeywords FailurePolicy = "keywords"
)

const systemInstruction = `You are the relevance gate of a recipe platform.
Decide whether the user's message is about cooking, recipes, ingredients, meals, diets or food preparation.
Answer with exactly one word: "yes" or "no".`

type LLMClassifier struct {
	inference llm.Inference
	policy    FailurePolicy
	fallback  Classifier
	logger    *zap.Logger
}

func NewLLMClassifier(inference llm.Inference, policy FailurePolicy, logger *zap.Logger) *LLMClassifier {
	if policy == "" {
		policy = FailOpen
	}
	return &LLMClassifier{
		inference: inference,
		policy:    policy,
		fallback:  NewKeywordClassifier(),
		logger:    logger.Named("classifier"),
	}
}

func (c *LLMClassifier) Classify(ctx context.Context, utterance string) bool {
	answer, err := c.inference.Infer(ctx, llm.Request{
		System:   systemInstruction,
		Messages: llm.UserPrompt(utterance),
		Mode:     llm.Deterministic,
		Format:   llm.Text,
	})
	if err != nil {
		c.logger.Error("Failed to classify utterance", zap.Error(err))
		return c.onFailure(ctx, utterance)
	}

	verdict, err := parseVerdict(answer)
	if err != nil {
		c.logger.Error("Failed to parse classifier answer",
			zap.Error(err),
			zap.String("answer", answer))
		return c.onFailure(ctx, utterance)
	}

	return verdict
}

func (c *LLMClassifier) onFailure(ctx context.Context, utterance string) bool {
	metrics.StageFailures.WithLabelValues("classify").Inc()
	switch c.policy {
	case FailClosed:
		return false
	case FailKeywords:
		return c.fallback.Classify(ctx, utterance)
	default:
		return true
	}
}

// parseVerdict reads the first token of the answer case-insensitively.
func parseVerdict(answer string) (bool, error) {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return false, fmt.Errorf("empty answer")
	}
	token := strings.ToLower(strings.TrimFunc(fields[0], func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	switch token {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("unexpected token %q", fields[0])
}
