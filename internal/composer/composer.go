// Package composer turns ranked recipes into the assistant's answer. The
// model only ever sees the recipes the ranker found.
package composer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xaenox/recipebot/internal/llm"
	"github.com/xaenox/recipebot/internal/metrics"
	"github.com/xaenox/recipebot/internal/models"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
)

// Apology is the answer persisted when composition fails.
const Apology = "Sorry, I couldn't put an answer together right now. Please try again in a moment."

// NoMatchesNotice replaces the recipe listing when the ranker found nothing.
const NoMatchesNotice = "NO MATCHING RECIPES FOUND. The catalog has no recipe satisfying this request."

const systemInstructionTemplate = `You are a friendly cooking assistant for a recipe platform.
Answer the user's latest message using ONLY the recipes listed in the CATALOG RESULTS block.
Rules:
- Never mention, suggest or invent a recipe that is not listed in CATALOG RESULTS.
- If CATALOG RESULTS says no matching recipes were found, say plainly that nothing matched and suggest loosening the request. Do not make up recipes, not even generic ones.
- Do not talk about links, URLs or where to click.
- Use the recipe details as given; do not invent ratings, times or ingredients.
- Keep the answer under %d words.`

type Composer struct {
	inference     llm.Inference
	historyWindow int
	maxWords      int
	logger        *zap.Logger
}

func New(inference llm.Inference, cfg config.ComposerConfig, logger *zap.Logger) *Composer {
	return &Composer{
		inference:     inference,
		historyWindow: cfg.HistoryWindow,
		maxWords:      cfg.MaxWords,
		logger:        logger.Named("composer"),
	}
}

// Compose answers utterance from ranked and the prior turns. Only the latest
// historyWindow turns are replayed. Any failure yields Apology.
func (c *Composer) Compose(ctx context.Context, utterance string, ranked []models.Item, history []models.Turn) string {
	answer, err := c.inference.Infer(ctx, llm.Request{
		System:   fmt.Sprintf(systemInstructionTemplate, c.maxWords),
		Messages: c.messages(utterance, ranked, history),
		Mode:     llm.Creative,
		Format:   llm.Text,
	})
	if err != nil {
		metrics.StageFailures.WithLabelValues("compose").Inc()
		c.logger.Error("Failed to compose response",
			zap.Error(err),
			zap.Int("ranked", len(ranked)))
		return Apology
	}
	return answer
}

// HistoryWindow is the number of prior turns replayed into a composition.
func (c *Composer) HistoryWindow() int {
	return c.historyWindow
}

func (c *Composer) messages(utterance string, ranked []models.Item, history []models.Turn) []llm.Message {
	if len(history) > c.historyWindow {
		history = history[len(history)-c.historyWindow:]
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	var b strings.Builder
	b.WriteString("CATALOG RESULTS:\n")
	b.WriteString(GroundingBlock(ranked))
	b.WriteString("\n\nUSER MESSAGE:\n")
	b.WriteString(utterance)

	return append(messages, llm.Message{Role: models.RoleUser, Content: b.String()})
}

// GroundingBlock lists every field of each ranked recipe, or the no-matches
// notice when there are none.
func GroundingBlock(ranked []models.Item) string {
	if len(ranked) == 0 {
		return NoMatchesNotice
	}

	var b strings.Builder
	for i, item := range ranked {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s (id %d)\n", i+1, item.Title, item.ID)
		fmt.Fprintf(&b, "   Description: %s\n", orNone(item.Description))
		fmt.Fprintf(&b, "   Difficulty: %s\n", orNone(string(item.Difficulty)))
		fmt.Fprintf(&b, "   Prep time: %s\n", minutes(item.PrepMinutes))
		fmt.Fprintf(&b, "   Cook time: %s\n", minutes(item.CookMinutes))
		fmt.Fprintf(&b, "   Servings: %s\n", count(item.Servings))
		fmt.Fprintf(&b, "   Tags: %s\n", orNone(strings.Join(item.Tags, ", ")))
		fmt.Fprintf(&b, "   Ingredients: %s\n", orNone(strings.Join(item.Ingredients, ", ")))
		fmt.Fprintf(&b, "   Average rating: %.1f\n", item.AverageRating)
		fmt.Fprintf(&b, "   Favorites: %d\n", item.FavoriteCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

// GroundedItemIDs returns the ids an answer composed from ranked may
// reference, in rank order.
func GroundedItemIDs(ranked []models.Item) []int64 {
	ids := make([]int64, 0, len(ranked))
	for _, item := range ranked {
		ids = append(ids, item.ID)
	}
	return ids
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

func minutes(v *int) string {
	if v == nil {
		return "unknown"
	}
	return strconv.Itoa(*v) + " min"
}

func count(v *int) string {
	if v == nil {
		return "unknown"
	}
	return strconv.Itoa(*v)
}
