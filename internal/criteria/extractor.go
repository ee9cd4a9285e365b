// Package criteria turns a free-text request into structured recipe
// constraints.
package criteria

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xaenox/recipebot/internal/llm"
	"github.com/xaenox/recipebot/internal/metrics"
	"github.com/xaenox/recipebot/internal/models"
	"go.uber.org/zap"
)

const systemInstruction = `Extract recipe search criteria from the user's message.
Only include a field when the message states it explicitly. Never guess or infer unstated fields.
Return a single JSON object using only these keys:
{
    "ingredients": ["ingredient the user has or wants"],
    "dietary_preferences": ["vegetarian", "vegan", "gluten-free", ...],
    "difficulty": "easy" | "medium" | "hard",
    "max_prep_time": minutes as a positive integer,
    "max_cook_time": minutes as a positive integer,
    "servings": minimum number of servings as a positive integer,
    "tags": ["cuisine, course or occasion keyword"]
}
Omit every key the message does not mention. Return {} when nothing applies.`

// extraction mirrors the JSON schema sent to the model.
type extraction struct {
	Ingredients        []string `json:"ingredients"`
	DietaryPreferences []string `json:"dietary_preferences"`
	Difficulty         *string  `json:"difficulty"`
	MaxPrepTime        *int     `json:"max_prep_time"`
	MaxCookTime        *int     `json:"max_cook_time"`
	Servings           *int     `json:"servings"`
	Tags               []string `json:"tags"`
}

type Extractor struct {
	inference llm.Inference
	logger    *zap.Logger
}

func NewExtractor(inference llm.Inference, logger *zap.Logger) *Extractor {
	return &Extractor{
		inference: inference,
		logger:    logger.Named("extractor"),
	}
}

// Extract returns the criteria stated in utterance. Any failure yields empty
// criteria, never a partial result.
func (e *Extractor) Extract(ctx context.Context, utterance string) models.Criteria {
	answer, err := e.inference.Infer(ctx, llm.Request{
		System:   systemInstruction,
		Messages: llm.UserPrompt(utterance),
		Mode:     llm.Deterministic,
		Format:   llm.Structured,
	})
	if err != nil {
		metrics.StageFailures.WithLabelValues("extract").Inc()
		e.logger.Error("Failed to extract criteria", zap.Error(err))
		return models.Criteria{}
	}

	criteria, err := Parse(answer)
	if err != nil {
		metrics.StageFailures.WithLabelValues("extract").Inc()
		e.logger.Error("Failed to parse criteria",
			zap.Error(err),
			zap.String("response", answer))
		return models.Criteria{}
	}

	return criteria
}

// Parse decodes and validates a structured answer.
func Parse(answer string) (models.Criteria, error) {
	raw := stripCodeFence(answer)

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	var ex extraction
	if err := dec.Decode(&ex); err != nil {
		return models.Criteria{}, fmt.Errorf("decode criteria: %w", err)
	}
	if rest := raw[min(int(dec.InputOffset()), len(raw)):]; strings.TrimSpace(rest) != "" {
		return models.Criteria{}, fmt.Errorf("decode criteria: trailing data %q", rest)
	}

	out := models.Criteria{
		Ingredients:        normalizeTerms(ex.Ingredients),
		DietaryPreferences: normalizeTerms(ex.DietaryPreferences),
		Tags:               normalizeTerms(ex.Tags),
	}

	if ex.Difficulty != nil && strings.TrimSpace(*ex.Difficulty) != "" {
		d, ok := models.ParseDifficulty(*ex.Difficulty)
		if !ok {
			return models.Criteria{}, fmt.Errorf("unknown difficulty %q", *ex.Difficulty)
		}
		out.Difficulty = &d
	}

	var err error
	if out.MaxPrepTime, err = positive("max_prep_time", ex.MaxPrepTime); err != nil {
		return models.Criteria{}, err
	}
	if out.MaxCookTime, err = positive("max_cook_time", ex.MaxCookTime); err != nil {
		return models.Criteria{}, err
	}
	if out.Servings, err = positive("servings", ex.Servings); err != nil {
		return models.Criteria{}, err
	}

	return out, nil
}

func positive(field string, v *int) (*int, error) {
	if v == nil {
		return nil, nil
	}
	if *v <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %d", field, *v)
	}
	n := *v
	return &n, nil
}

// normalizeTerms lowercases, trims and deduplicates, keeping first-seen order.
func normalizeTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Some models wrap JSON in a markdown fence even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
