// Package catalog reads recipe projections from the content platform.
// Every implementation returns only published, publicly visible recipes.
package catalog

import (
	"context"
	"strings"

	"github.com/xaenox/recipebot/internal/models"
)

// Filter narrows a catalog query. Tags is containment: a recipe matches when
// it carries every listed tag.
type Filter struct {
	Tags  []string
	Limit int
}

type Reader interface {
	Query(ctx context.Context, filter Filter) ([]models.Item, error)
	// GetByIDs resolves ids in the order given, skipping ids that no longer
	// resolve to a visible recipe.
	GetByIDs(ctx context.Context, ids []int64) ([]models.Item, error)
}

func hasAllTags(itemTags, want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(itemTags))
	for _, t := range itemTags {
		have[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[strings.ToLower(strings.TrimSpace(t))]; !ok {
			return false
		}
	}
	return true
}
