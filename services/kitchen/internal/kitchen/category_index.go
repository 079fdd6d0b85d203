package kitchen

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// CategoryIndex caches the active screens of each terminal, ordered by display
// order then id, and answers category intersection queries against them.
// Entries are loaded lazily and dropped on Invalidate.
type CategoryIndex struct {
	mu         sync.RWMutex
	byConfig   map[ConfigID][]*Screen
	generation map[ConfigID]uint64

	repo   ScreenRepository
	logger apt.Logger
}

func NewCategoryIndex(repo ScreenRepository, logger apt.Logger) *CategoryIndex {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &CategoryIndex{
		byConfig:   make(map[ConfigID][]*Screen),
		generation: make(map[ConfigID]uint64),
		repo:       repo,
		logger:     logger,
	}
}

// Warm loads every active screen, replacing whatever is cached.
func (c *CategoryIndex) Warm(ctx context.Context) error {
	if c.repo == nil {
		c.logger.Info("screen repository is nil, category index remains empty")
		return nil
	}

	screens, err := c.repo.ListScreens(ctx, ScreenFilter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("cannot warm category index: %w", err)
	}

	grouped := make(map[ConfigID][]*Screen)
	for _, s := range screens {
		grouped[s.ConfigID] = append(grouped[s.ConfigID], cloneScreen(s))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.byConfig {
		c.generation[id]++
	}
	c.byConfig = make(map[ConfigID][]*Screen, len(grouped))
	for id, list := range grouped {
		sortScreens(list)
		c.byConfig[id] = list
	}

	c.logger.Info("category index warmed", "configs", len(grouped), "screens", len(screens))
	return nil
}

// ActiveScreens returns the active screens of a terminal in display order.
func (c *CategoryIndex) ActiveScreens(ctx context.Context, configID ConfigID) ([]*Screen, error) {
	list, err := c.load(ctx, configID)
	if err != nil {
		return nil, err
	}
	out := make([]*Screen, len(list))
	for i, s := range list {
		out[i] = cloneScreen(s)
	}
	return out, nil
}

// ScreensForCategories returns the active screens of the terminal whose
// category set intersects categoryIDs. Empty input yields an empty result.
func (c *CategoryIndex) ScreensForCategories(ctx context.Context, categoryIDs []CategoryID, configID ConfigID) ([]*Screen, error) {
	if len(categoryIDs) == 0 || configID == uuid.Nil {
		c.logger.Info("screen lookup without categories or terminal", "warning", "empty_lookup", "config_id", configID)
		return []*Screen{}, nil
	}

	list, err := c.load(ctx, configID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[CategoryID]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		wanted[id] = struct{}{}
	}

	out := make([]*Screen, 0, len(list))
	for _, s := range list {
		for _, cid := range s.CategoryIDs {
			if _, ok := wanted[cid]; ok {
				out = append(out, cloneScreen(s))
				break
			}
		}
	}
	return out, nil
}

// Invalidate drops the cached screens of one terminal.
func (c *CategoryIndex) Invalidate(configID ConfigID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byConfig, configID)
	c.generation[configID]++
}

// InvalidateAll drops every cached terminal.
func (c *CategoryIndex) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.byConfig {
		c.generation[id]++
	}
	c.byConfig = make(map[ConfigID][]*Screen)
}

// Count returns the number of cached screens.
func (c *CategoryIndex) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, list := range c.byConfig {
		n += len(list)
	}
	return n
}

func (c *CategoryIndex) load(ctx context.Context, configID ConfigID) ([]*Screen, error) {
	c.mu.RLock()
	list, ok := c.byConfig[configID]
	gen := c.generation[configID]
	c.mu.RUnlock()
	if ok {
		return list, nil
	}

	if c.repo == nil {
		return nil, nil
	}

	cid := configID
	screens, err := c.repo.ListScreens(ctx, ScreenFilter{ConfigID: &cid, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("cannot load screens for terminal %s: %w", configID, err)
	}

	list = make([]*Screen, 0, len(screens))
	for _, s := range screens {
		if !s.Active || s.ConfigID != configID {
			continue
		}
		list = append(list, cloneScreen(s))
	}
	sortScreens(list)

	c.mu.Lock()
	// an invalidation during the load means the result may already be stale
	if c.generation[configID] == gen {
		c.byConfig[configID] = list
	}
	c.mu.Unlock()

	return list, nil
}

func sortScreens(list []*Screen) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].DisplayOrder != list[j].DisplayOrder {
			return list[i].DisplayOrder < list[j].DisplayOrder
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

func cloneScreen(s *Screen) *Screen {
	if s == nil {
		return nil
	}
	cp := *s
	cp.CategoryIDs = append([]CategoryID(nil), s.CategoryIDs...)
	return &cp
}
