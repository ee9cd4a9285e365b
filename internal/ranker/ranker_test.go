package ranker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/recipebot/internal/catalog"
	"github.com/xaenox/recipebot/internal/models"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
)

type recordingReader struct {
	items   []models.Item
	err     error
	filters []catalog.Filter
}

func (r *recordingReader) Query(_ context.Context, f catalog.Filter) ([]models.Item, error) {
	r.filters = append(r.filters, f)
	return r.items, r.err
}

func (r *recordingReader) GetByIDs(context.Context, []int64) ([]models.Item, error) {
	return nil, errors.New("not used")
}

func newRanker(reader catalog.Reader) *Ranker {
	return New(reader, config.Default().Ranker, zap.NewNop())
}

func difficulty(d models.Difficulty) *models.Difficulty { return &d }

func itemIDs(items []models.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestRank_FilterConjunction(t *testing.T) {
	reader := &recordingReader{items: []models.Item{
		{ID: 1, Difficulty: models.DifficultyEasy, PrepMinutes: models.IntPtr(15)},
		{ID: 2, Difficulty: models.DifficultyEasy, PrepMinutes: models.IntPtr(25)},
		{ID: 3, Difficulty: models.DifficultyMedium, PrepMinutes: models.IntPtr(10)},
		{ID: 4, Difficulty: models.DifficultyEasy},
		{ID: 5, Difficulty: models.DifficultyEasy, PrepMinutes: models.IntPtr(20)},
		{ID: 6, PrepMinutes: models.IntPtr(5)},
	}}

	got, err := newRanker(reader).Rank(context.Background(), models.Criteria{
		Difficulty:  difficulty(models.DifficultyEasy),
		MaxPrepTime: models.IntPtr(20),
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{1, 4, 5}, itemIDs(got))
	for _, item := range got {
		assert.Equal(t, models.DifficultyEasy, item.Difficulty)
		if item.PrepMinutes != nil {
			assert.LessOrEqual(t, *item.PrepMinutes, 20)
		}
	}
}

func TestRank_RankingOrder(t *testing.T) {
	reader := &recordingReader{items: []models.Item{
		{ID: 1, AverageRating: 4.0, FavoriteCount: 2},
		{ID: 2, AverageRating: 3.0, FavoriteCount: 10},
	}}
	r := newRanker(reader)

	assert.InDelta(t, 3.4, r.Score(reader.items[0]), 1e-9)
	assert.InDelta(t, 5.1, r.Score(reader.items[1]), 1e-9)

	got, err := r.Rank(context.Background(), models.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, itemIDs(got))
}

func TestRank_StableTiesAndTruncation(t *testing.T) {
	var items []models.Item
	for i := int64(1); i <= 8; i++ {
		items = append(items, models.Item{ID: i, AverageRating: 4, FavoriteCount: 1})
	}
	items = append(items, models.Item{ID: 9, AverageRating: 5, FavoriteCount: 1})

	got, err := newRanker(&recordingReader{items: items}).Rank(context.Background(), models.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 1, 2, 3, 4}, itemIDs(got))
}

func TestRank_CoarseRetrieval(t *testing.T) {
	reader := &recordingReader{}

	_, err := newRanker(reader).Rank(context.Background(), models.Criteria{
		Tags:        []string{"thai"},
		Ingredients: []string{"tofu"},
	})
	require.NoError(t, err)

	require.Len(t, reader.filters, 1)
	assert.Equal(t, catalog.Filter{Tags: []string{"thai"}, Limit: 20}, reader.filters[0])
}

func TestRank_EmptyCatalogIsNotAnError(t *testing.T) {
	got, err := newRanker(&recordingReader{}).Rank(context.Background(), models.Criteria{
		Ingredients: []string{"egg"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRank_ReaderError(t *testing.T) {
	_, err := newRanker(&recordingReader{err: errors.New("db down")}).Rank(context.Background(), models.Criteria{})
	assert.Error(t, err)
}

func TestRank_Unobtainium(t *testing.T) {
	reader := &recordingReader{items: []models.Item{
		{ID: 1, Ingredients: []string{"Flour", "Sugar"}},
		{ID: 2, Ingredients: []string{"Eggs"}},
	}}

	got, err := newRanker(reader).Rank(context.Background(), models.Criteria{
		Ingredients: []string{"unobtainium"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatches(t *testing.T) {
	r := newRanker(&recordingReader{})

	salad := models.Item{
		ID:          1,
		Title:       "Veggie Power Bowl",
		Description: "A hearty bowl",
		Tags:        []string{"lunch"},
		Ingredients: []string{"Cherry Tomatoes", "Chickpeas", "Quinoa"},
		Servings:    models.IntPtr(2),
		CookMinutes: models.IntPtr(15),
	}

	tests := []struct {
		name     string
		criteria models.Criteria
		want     bool
	}{
		{"empty criteria", models.Criteria{}, true},
		{"ingredient substring case-insensitive", models.Criteria{Ingredients: []string{"tomato"}}, true},
		{"any requested ingredient", models.Criteria{Ingredients: []string{"beef", "chickpea"}}, true},
		{"no requested ingredient", models.Criteria{Ingredients: []string{"beef", "pork"}}, false},
		{"vegetarian via synonym", models.Criteria{DietaryPreferences: []string{"vegetarian"}}, true},
		{"unknown preference literal", models.Criteria{DietaryPreferences: []string{"hearty"}}, true},
		{"unmatched preference", models.Criteria{DietaryPreferences: []string{"gluten-free"}}, false},
		{"servings enough", models.Criteria{Servings: models.IntPtr(2)}, true},
		{"servings too few", models.Criteria{Servings: models.IntPtr(4)}, false},
		{"cook time within", models.Criteria{MaxCookTime: models.IntPtr(15)}, true},
		{"cook time exceeded", models.Criteria{MaxCookTime: models.IntPtr(10)}, false},
		{"unknown prep passes", models.Criteria{MaxPrepTime: models.IntPtr(1)}, true},
		{"difficulty unset on item", models.Criteria{Difficulty: difficulty(models.DifficultyEasy)}, false},
		{"conjunction fails on one predicate", models.Criteria{
			Ingredients: []string{"quinoa"},
			Servings:    models.IntPtr(6),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Matches(salad, tt.criteria))
		})
	}
}

func TestMatches_UnknownServingsFails(t *testing.T) {
	r := newRanker(&recordingReader{})
	assert.False(t, r.Matches(models.Item{ID: 1}, models.Criteria{Servings: models.IntPtr(2)}))
}

func TestSynonyms(t *testing.T) {
	s := NewSynonyms(map[string][]string{
		"Vegetarian": {"Vegetarian", " veggie ", ""},
	})

	assert.Equal(t, []string{"vegetarian", "veggie"}, s.Keywords("VEGETARIAN"))
	assert.Equal(t, []string{"halal"}, s.Keywords("Halal"))
	assert.True(t, s.MatchAny("a veggie lasagna", []string{"vegetarian"}))
	assert.True(t, s.MatchAny("halal lamb kebab", []string{"vegetarian", "halal"}))
	assert.False(t, s.MatchAny("beef stew", []string{"vegetarian"}))
}

func TestSynonyms_DefaultsAvoidWordFragments(t *testing.T) {
	s := NewSynonyms(config.DefaultDietarySynonyms())

	assert.False(t, s.MatchAny("turkish delight, lightly dusted", []string{"healthy"}))
	assert.True(t, s.MatchAny("a light meal of grilled fish", []string{"healthy"}))
	assert.False(t, s.MatchAny("gfeller family cake", []string{"gluten-free"}))
	assert.True(t, s.MatchAny("gluten free brownies", []string{"gluten-free"}))
}
