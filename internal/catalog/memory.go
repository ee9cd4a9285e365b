package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/xaenox/recipebot/internal/models"
	"gopkg.in/yaml.v3"
)

// Entry is a catalog recipe together with its publication state.
type Entry struct {
	models.Item `yaml:",inline"`
	Published   bool `yaml:"published"`
	Public      bool `yaml:"public"`
}

type seedFile struct {
	Recipes []Entry `yaml:"recipes"`
}

type MemoryCatalog struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[int64]int
}

func NewMemoryCatalog(entries ...Entry) *MemoryCatalog {
	c := &MemoryCatalog{byID: make(map[int64]int)}
	for _, e := range entries {
		c.Put(e)
	}
	return c
}

// LoadSeedFile builds a catalog from a YAML file with a top-level "recipes" list.
func LoadSeedFile(path string) (*MemoryCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog seed: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("error parsing catalog seed: %w", err)
	}

	return NewMemoryCatalog(seed.Recipes...), nil
}

// Put inserts or replaces a recipe, keeping insertion order for new ids.
func (c *MemoryCatalog) Put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i, exists := c.byID[e.ID]; exists {
		c.entries[i] = e
		return
	}
	c.byID[e.ID] = len(c.entries)
	c.entries = append(c.entries, e)
}

func (c *MemoryCatalog) Query(ctx context.Context, filter Filter) ([]models.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]models.Item, 0)
	for _, e := range c.entries {
		if filter.Limit > 0 && len(items) >= filter.Limit {
			break
		}
		if !e.visible() || !hasAllTags(e.Tags, filter.Tags) {
			continue
		}
		items = append(items, e.Item)
	}
	return items, nil
}

func (c *MemoryCatalog) GetByIDs(ctx context.Context, ids []int64) ([]models.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		i, exists := c.byID[id]
		if !exists || !c.entries[i].visible() {
			continue
		}
		items = append(items, c.entries[i].Item)
	}
	return items, nil
}

func (e Entry) visible() bool {
	return e.Published && e.Public
}
