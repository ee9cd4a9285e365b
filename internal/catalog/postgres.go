package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/xaenox/recipebot/internal/models"
)

// PostgresCatalog reads the content platform's recipe tables:
//
//	recipes(id, title, description, difficulty, prep_minutes, cook_minutes,
//	        servings, tags text[], status, visibility, created_at)
//	recipe_ingredients(recipe_id, position, name)
//	ratings(recipe_id, value)
//	favorites(recipe_id, user_id)
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

const selectItems = `
	SELECT r.id, r.title, COALESCE(r.description, ''), COALESCE(r.difficulty, ''),
		r.prep_minutes, r.cook_minutes, r.servings, COALESCE(r.tags, '{}'),
		COALESCE((SELECT array_agg(i.name ORDER BY i.position)
			FROM recipe_ingredients i WHERE i.recipe_id = r.id), '{}'),
		COALESCE((SELECT AVG(rt.value)::float8 FROM ratings rt WHERE rt.recipe_id = r.id), 0),
		(SELECT COUNT(*) FROM favorites f WHERE f.recipe_id = r.id)
	FROM recipes r
	WHERE r.status = 'published' AND r.visibility = 'public'`

func (c *PostgresCatalog) Query(ctx context.Context, filter Filter) ([]models.Item, error) {
	query := selectItems
	args := []interface{}{}

	if len(filter.Tags) > 0 {
		tags := make([]string, len(filter.Tags))
		for i, t := range filter.Tags {
			tags[i] = strings.ToLower(strings.TrimSpace(t))
		}
		args = append(args, pq.Array(tags))
		query += fmt.Sprintf(`
		AND ARRAY(SELECT lower(t) FROM unnest(r.tags) AS t) @> $%d`, len(args))
	}

	query += `
	ORDER BY r.created_at DESC, r.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(`
	LIMIT $%d`, len(args))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying recipes: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func (c *PostgresCatalog) GetByIDs(ctx context.Context, ids []int64) ([]models.Item, error) {
	if len(ids) == 0 {
		return []models.Item{}, nil
	}

	rows, err := c.db.QueryContext(ctx, selectItems+`
		AND r.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error querying recipes by id: %w", err)
	}
	defer rows.Close()

	found, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Item, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}
	items := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func scanItems(rows *sql.Rows) ([]models.Item, error) {
	items := make([]models.Item, 0)
	for rows.Next() {
		var (
			item                 models.Item
			difficulty           string
			prep, cook, servings sql.NullInt64
			tags, ingredients    []string
			favorites            int64
		)
		err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Description,
			&difficulty,
			&prep,
			&cook,
			&servings,
			pq.Array(&tags),
			pq.Array(&ingredients),
			&item.AverageRating,
			&favorites,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning recipe: %w", err)
		}
		if d, ok := models.ParseDifficulty(difficulty); ok {
			item.Difficulty = d
		}
		item.PrepMinutes = nullableInt(prep)
		item.CookMinutes = nullableInt(cook)
		item.Servings = nullableInt(servings)
		item.Tags = tags
		item.Ingredients = ingredients
		item.FavoriteCount = int(favorites)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipes: %w", err)
	}
	return items, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
