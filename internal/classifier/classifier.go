package classifier

import (
	"context"
	"strings"
)

// Classifier decides whether an utterance belongs to the cooking domain.
type Classifier interface {
	Classify(ctx context.Context, utterance string) bool
}

type KeywordClassifier struct {
	keywords []string
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{keywords: cookingKeywords}
}

var cookingKeywords = []string{
	"recipe", "cook", "bake", "roast", "grill", "fry", "boil", "simmer",
	"dinner", "lunch", "breakfast", "brunch", "dessert", "snack", "meal",
	"dish", "ingredient", "kitchen", "oven", "cuisine", "eat", "food",
	"vegetarian", "vegan", "gluten", "dairy", "keto",
	"chicken", "beef", "pork", "fish", "egg", "pasta", "rice", "noodle",
	"soup", "salad", "bread", "cake", "cookie", "sauce", "curry", "tofu",
	"potato", "tomato", "cheese", "serving", "minutes",
}

// Simple implementation that matches cooking vocabulary
func (c *KeywordClassifier) Classify(_ context.Context, utterance string) bool {
	content := strings.ToLower(utterance)
	for _, keyword := range c.keywords {
		if strings.Contains(content, keyword) {
			return true
		}
	}
	return false
}
