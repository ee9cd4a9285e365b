// Package ranker retrieves catalog candidates and filters, scores and
// truncates them against extracted criteria.
package ranker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xaenox/recipebot/internal/catalog"
	"github.com/xaenox/recipebot/internal/models"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
)

type Ranker struct {
	reader         catalog.Reader
	retrievalLimit int
	resultLimit    int
	ratingWeight   float64
	favoriteWeight float64
	synonyms       Synonyms
	logger         *zap.Logger
}

func New(reader catalog.Reader, cfg config.RankerConfig, logger *zap.Logger) *Ranker {
	synonyms := cfg.DietarySynonyms
	if synonyms == nil {
		synonyms = config.DefaultDietarySynonyms()
	}
	return &Ranker{
		reader:         reader,
		retrievalLimit: cfg.RetrievalLimit,
		resultLimit:    cfg.ResultLimit,
		ratingWeight:   cfg.RatingWeight,
		favoriteWeight: cfg.FavoriteWeight,
		synonyms:       NewSynonyms(synonyms),
		logger:         logger.Named("ranker"),
	}
}

// Rank returns at most resultLimit recipes satisfying every stated criterion,
// best score first. An empty catalog answer is a valid empty result.
func (r *Ranker) Rank(ctx context.Context, criteria models.Criteria) ([]models.Item, error) {
	candidates, err := r.reader.Query(ctx, catalog.Filter{
		Tags:  criteria.Tags,
		Limit: r.retrievalLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}

	matched := make([]models.Item, 0, len(candidates))
	for _, item := range candidates {
		if r.Matches(item, criteria) {
			matched = append(matched, item)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return r.Score(matched[i]) > r.Score(matched[j])
	})

	if len(matched) > r.resultLimit {
		matched = matched[:r.resultLimit]
	}

	r.logger.Debug("Ranked candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(matched)))

	return matched, nil
}

// Score is the weighted popularity of a recipe.
func (r *Ranker) Score(item models.Item) float64 {
	return item.AverageRating*r.ratingWeight + float64(item.FavoriteCount)*r.favoriteWeight
}

// Matches applies every stated predicate conjunctively.
func (r *Ranker) Matches(item models.Item, c models.Criteria) bool {
	if c.Difficulty != nil && item.Difficulty != *c.Difficulty {
		return false
	}
	// Unknown times pass; absence is not failure.
	if c.MaxPrepTime != nil && item.PrepMinutes != nil && *item.PrepMinutes > *c.MaxPrepTime {
		return false
	}
	if c.MaxCookTime != nil && item.CookMinutes != nil && *item.CookMinutes > *c.MaxCookTime {
		return false
	}
	if c.Servings != nil && (item.Servings == nil || *item.Servings < *c.Servings) {
		return false
	}
	if len(c.Ingredients) > 0 && !hasAnyIngredient(item.Ingredients, c.Ingredients) {
		return false
	}
	if len(c.DietaryPreferences) > 0 && !r.synonyms.MatchAny(dietaryText(item), c.DietaryPreferences) {
		return false
	}
	return true
}

func hasAnyIngredient(itemIngredients, wanted []string) bool {
	for _, w := range wanted {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		for _, name := range itemIngredients {
			if strings.Contains(strings.ToLower(name), w) {
				return true
			}
		}
	}
	return false
}

func dietaryText(item models.Item) string {
	return strings.ToLower(item.Title + " " + item.Description + " " + strings.Join(item.Tags, " "))
}
