package models

import "strings"

// Difficulty is the preparation difficulty of a recipe.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty maps free text onto the difficulty enumeration.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy, true
	case DifficultyMedium:
		return DifficultyMedium, true
	case DifficultyHard:
		return DifficultyHard, true
	}
	return "", false
}

// Item is the read-only projection of a catalog recipe used for ranking.
type Item struct {
	ID            int64      `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	Description   string     `json:"description" yaml:"description"`
	Difficulty    Difficulty `json:"difficulty,omitempty" yaml:"difficulty"`
	PrepMinutes   *int       `json:"prep_minutes,omitempty" yaml:"prep_minutes"`
	CookMinutes   *int       `json:"cook_minutes,omitempty" yaml:"cook_minutes"`
	Servings      *int       `json:"servings,omitempty" yaml:"servings"`
	Tags          []string   `json:"tags" yaml:"tags"`
	Ingredients   []string   `json:"ingredients" yaml:"ingredients"`
	AverageRating float64    `json:"average_rating" yaml:"average_rating"`
	FavoriteCount int        `json:"favorite_count" yaml:"favorite_count"`
}

// Criteria is the constraint set extracted from one utterance. A field is set
// only when the user stated it.
type Criteria struct {
	Ingredients        []string    `json:"ingredients,omitempty"`
	DietaryPreferences []string    `json:"dietary_preferences,omitempty"`
	Difficulty         *Difficulty `json:"difficulty,omitempty"`
	MaxPrepTime        *int        `json:"max_prep_time,omitempty"`
	MaxCookTime        *int        `json:"max_cook_time,omitempty"`
	Servings           *int        `json:"servings,omitempty"`
	Tags               []string    `json:"tags,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (c Criteria) IsEmpty() bool {
	return len(c.Ingredients) == 0 &&
		len(c.DietaryPreferences) == 0 &&
		len(c.Tags) == 0 &&
		c.Difficulty == nil &&
		c.MaxPrepTime == nil &&
		c.MaxCookTime == nil &&
		c.Servings == nil
}

// IntPtr is a helper for optional integer fields.
func IntPtr(v int) *int {
	return &v
}
