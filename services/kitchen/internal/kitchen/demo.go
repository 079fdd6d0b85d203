package kitchen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg/enums/screentype"
)

const (
	kitchenDemoSeedApplication = "kitchen_demo"
	DemoConfigName             = "Main POS"
)

type demoProduct struct {
	name       string
	categories []string
}

type demoScreen struct {
	name       string
	screenType string
	order      int
	categories []string
}

var (
	demoCategories = []string{"Grill", "Bar", "Dessert", "Retail"}

	demoProducts = []demoProduct{
		{name: "Cheeseburger", categories: []string{"Grill"}},
		{name: "Ribeye Steak", categories: []string{"Grill"}},
		{name: "Mojito", categories: []string{"Bar"}},
		{name: "Draft Beer", categories: []string{"Bar"}},
		{name: "Cheesecake", categories: []string{"Dessert"}},
		{name: "Affogato", categories: []string{"Dessert", "Bar"}},
		{name: "Bottled Water", categories: []string{"Retail"}},
	}

	// Retail is left uncovered on purpose so coverage checks have a gap to report.
	demoScreens = []demoScreen{
		{name: "Grill Station", screenType: screentype.ScreenTypes.Kitchen.Code(), order: 1, categories: []string{"Grill"}},
		{name: "Bar", screenType: screentype.ScreenTypes.Bar.Code(), order: 2, categories: []string{"Bar"}},
		{name: "Pastry", screenType: screentype.ScreenTypes.Kitchen.Code(), order: 3, categories: []string{"Dessert"}},
	}
)

// ApplyDemoSeeds seeds a demo terminal with categories, products and screens
// when seed.demo.enabled is true. Without a tracker every seed runs; each one
// is safe to repeat.
func ApplyDemoSeeds(ctx context.Context, config *apt.Config, store Store, registry *ScreenRegistry, tracker seed.Tracker, logger apt.Logger) error {
	if config == nil {
		return nil
	}
	enabled, _ := config.GetString("seed.demo.enabled")
	if enabled != "true" {
		return nil
	}
	return SeedDemo(ctx, store, registry, tracker, logger)
}

// SeedDemo applies the demo seeds unconditionally.
func SeedDemo(ctx context.Context, store Store, registry *ScreenRegistry, tracker seed.Tracker, logger apt.Logger) error {
	if store == nil || registry == nil {
		return errors.New("store and registry are required for demo seeding")
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	seeds := buildDemoSeeds(store, registry, logger)
	logger.Info("Applying demo kitchen seeds")

	if tracker != nil {
		if err := seed.Apply(ctx, tracker, seeds, kitchenDemoSeedApplication); err != nil {
			return fmt.Errorf("demo seed failed: %w", err)
		}
	} else {
		for _, s := range seeds {
			if err := s.Run(ctx); err != nil {
				return fmt.Errorf("demo seed %s failed: %w", s.ID, err)
			}
		}
	}

	logger.Info("Demo kitchen seeds applied successfully")
	return nil
}

func buildDemoSeeds(store Store, registry *ScreenRegistry, logger apt.Logger) []seed.Seed {
	return []seed.Seed{
		{
			ID:          "2025-01-10_demo_kitchen_screens_v1",
			Description: "Create a demo terminal with categories, products and kitchen screens",
			Run: func(ctx context.Context) error {
				return seedDemoTerminal(ctx, store, registry, logger)
			},
		},
	}
}

func seedDemoTerminal(ctx context.Context, store Store, registry *ScreenRegistry, logger apt.Logger) error {
	existing, err := store.FindConfigByName(ctx, DemoConfigName)
	if err != nil {
		return fmt.Errorf("cannot look up demo terminal: %w", err)
	}
	if existing != nil {
		logger.Info("Demo terminal already present", "config_id", existing.ID)
		return nil
	}

	now := time.Now().UTC()
	config := &TerminalConfig{ID: uuid.New(), Name: DemoConfigName, CreatedAt: now}
	categories := make(map[string]CategoryID, len(demoCategories))

	err = store.InTx(ctx, func(ctx context.Context, repo Repo) error {
		if err := repo.CreateConfig(ctx, config); err != nil {
			return fmt.Errorf("cannot create demo terminal: %w", err)
		}
		session := &Session{
			ID:        uuid.New(),
			ConfigID:  config.ID,
			Name:      DemoConfigName + "/0001",
			State:     SessionOpened,
			CreatedAt: now,
		}
		if err := repo.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("cannot create demo session: %w", err)
		}

		for _, name := range demoCategories {
			c := &Category{ID: uuid.New(), Name: name}
			if err := repo.CreateCategory(ctx, c); err != nil {
				return fmt.Errorf("cannot create demo category %s: %w", name, err)
			}
			categories[name] = c.ID
		}

		for _, dp := range demoProducts {
			p := &Product{ID: uuid.New(), Name: dp.name, CategoryIDs: categoryRefs(categories, dp.categories)}
			if err := repo.CreateProduct(ctx, p); err != nil {
				return fmt.Errorf("cannot create demo product %s: %w", dp.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, ds := range demoScreens {
		_, err := registry.Register(ctx, ScreenInput{
			Name:         ds.name,
			ConfigID:     config.ID,
			CategoryIDs:  categoryRefs(categories, ds.categories),
			ScreenType:   ds.screenType,
			DisplayOrder: ds.order,
		})
		if err != nil {
			return fmt.Errorf("cannot create demo screen %s: %w", ds.name, err)
		}
	}

	logger.Info("Demo terminal seeded",
		"config_id", config.ID,
		"categories", len(demoCategories),
		"products", len(demoProducts),
		"screens", len(demoScreens))
	return nil
}

func categoryRefs(byName map[string]CategoryID, names []string) []CategoryID {
	ids := make([]CategoryID, 0, len(names))
	for _, n := range names {
		if id, ok := byName[n]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
