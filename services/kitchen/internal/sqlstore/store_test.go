package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)

	// Every pooled connection would get its own in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store := NewWithDB(db, nil)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedConfig(t *testing.T, store *Store) *kitchen.TerminalConfig {
	t.Helper()
	cfg := &kitchen.TerminalConfig{ID: uuid.New(), Name: "Main POS", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateConfig(context.Background(), cfg))
	return cfg
}

func newScreen(configID kitchen.ConfigID, name, code string, order int, cats ...kitchen.CategoryID) *kitchen.Screen {
	now := time.Now().UTC()
	return &kitchen.Screen{
		ID:           uuid.New(),
		Name:         name,
		Code:         code,
		ConfigID:     configID,
		CategoryIDs:  cats,
		ScreenType:   "kitchen",
		Active:       true,
		DisplayOrder: order,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStoreScreens(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	cfg := seedConfig(t, store)
	grill, bar := uuid.New(), uuid.New()

	second := newScreen(cfg.ID, "Bar", "CODE_BAR", 2, bar)
	first := newScreen(cfg.ID, "Grill", "CODE_GRILL", 1, grill, bar)
	inactive := newScreen(cfg.ID, "Old", "CODE_OLD", 0, grill)
	inactive.Active = false

	for _, s := range []*kitchen.Screen{second, first, inactive} {
		require.NoError(t, store.CreateScreen(ctx, s))
	}

	t.Run("listActiveOrderedByDisplayOrder", func(t *testing.T) {
		screens, err := store.ListScreens(ctx, kitchen.ScreenFilter{ConfigID: &cfg.ID, ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, screens, 2)
		assert.Equal(t, first.ID, screens[0].ID)
		assert.Equal(t, second.ID, screens[1].ID)
		assert.ElementsMatch(t, []kitchen.CategoryID{grill, bar}, screens[0].CategoryIDs)
	})

	t.Run("listIncludesInactive", func(t *testing.T) {
		screens, err := store.ListScreens(ctx, kitchen.ScreenFilter{ConfigID: &cfg.ID})
		require.NoError(t, err)
		assert.Len(t, screens, 3)
		assert.Equal(t, inactive.ID, screens[0].ID)
	})

	t.Run("findByCode", func(t *testing.T) {
		got, err := store.FindScreenByCode(ctx, "CODE_BAR")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, second.ID, got.ID)
		assert.Equal(t, []kitchen.CategoryID{bar}, got.CategoryIDs)
	})

	t.Run("missingScreenIsNil", func(t *testing.T) {
		got, err := store.GetScreen(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicateCodeConflicts", func(t *testing.T) {
		dup := newScreen(cfg.ID, "Other", "CODE_BAR", 3, bar)
		err := store.CreateScreen(ctx, dup)
		require.Error(t, err)
		assert.True(t, errors.Is(err, kitchen.ErrConflict), "got %v", err)
	})

	t.Run("saveReplacesCategories", func(t *testing.T) {
		second.CategoryIDs = []kitchen.CategoryID{grill}
		second.Active = false
		require.NoError(t, store.SaveScreen(ctx, second))

		got, err := store.GetScreen(ctx, second.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)
		assert.Equal(t, []kitchen.CategoryID{grill}, got.CategoryIDs)
	})

	t.Run("saveWithoutCategoriesIsInvalid", func(t *testing.T) {
		first.CategoryIDs = nil
		err := store.SaveScreen(ctx, first)
		assert.True(t, errors.Is(err, kitchen.ErrInvalid), "got %v", err)
	})
}

func TestStoreProducts(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	grill, dessert := uuid.New(), uuid.New()

	p := &kitchen.Product{ID: uuid.New(), Name: "Burger", CategoryIDs: []kitchen.CategoryID{grill, grill}}
	require.NoError(t, store.CreateProduct(ctx, p))

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []kitchen.CategoryID{grill}, got.CategoryIDs)

	p.CategoryIDs = []kitchen.CategoryID{dessert}
	require.NoError(t, store.SaveProduct(ctx, p))

	products, err := store.ListProducts(ctx, []kitchen.ProductID{p.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, []kitchen.CategoryID{dessert}, products[0].CategoryIDs)

	empty, err := store.ListProducts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStoreOrders(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	cfg := seedConfig(t, store)
	screenA, screenB := uuid.New(), uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := &kitchen.Order{
		ID: uuid.New(), Name: "Order 1", Reference: "REF-1", ConfigID: cfg.ID,
		SessionID: uuid.New(), Status: "draft", IsCooking: true,
		ScreenIDs: []kitchen.ScreenID{screenA, screenB},
		CreatedAt: base, UpdatedAt: base,
	}
	newer := &kitchen.Order{
		ID: uuid.New(), Name: "Order 2", Reference: "REF-2", ConfigID: cfg.ID,
		SessionID: uuid.New(), Status: "cancel", TableName: "T4",
		ScreenIDs: []kitchen.ScreenID{screenB},
		CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute),
	}
	require.NoError(t, store.CreateOrder(ctx, older))
	require.NoError(t, store.CreateOrder(ctx, newer))

	t.Run("getKeepsAssignmentOrder", func(t *testing.T) {
		got, err := store.GetOrder(ctx, older.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []kitchen.ScreenID{screenA, screenB}, got.ScreenIDs)
	})

	t.Run("duplicateReferenceConflicts", func(t *testing.T) {
		dup := *older
		dup.ID = uuid.New()
		dup.ScreenIDs = nil
		err := store.CreateOrder(ctx, &dup)
		assert.True(t, errors.Is(err, kitchen.ErrConflict), "got %v", err)
	})

	t.Run("findByReference", func(t *testing.T) {
		got, err := store.FindOrderByReference(ctx, cfg.ID, "REF-2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "T4", got.TableName)

		anyConfig, err := store.FindOrderByReference(ctx, uuid.Nil, "REF-1")
		require.NoError(t, err)
		require.NotNil(t, anyConfig)
		assert.Equal(t, older.ID, anyConfig.ID)

		missing, err := store.FindOrderByReference(ctx, uuid.New(), "REF-1")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	tests := []struct {
		name   string
		filter kitchen.OrderFilter
		want   []kitchen.OrderID
	}{
		{name: "allNewestFirst", filter: kitchen.OrderFilter{ConfigID: &cfg.ID}, want: []kitchen.OrderID{newer.ID, older.ID}},
		{name: "byScreen", filter: kitchen.OrderFilter{ScreenID: &screenA}, want: []kitchen.OrderID{older.ID}},
		{name: "excludeCancelled", filter: kitchen.OrderFilter{ScreenID: &screenB, ExcludeCancelled: true}, want: []kitchen.OrderID{older.ID}},
		{name: "cookingOnly", filter: kitchen.OrderFilter{CookingOnly: true}, want: []kitchen.OrderID{older.ID}},
		{name: "statuses", filter: kitchen.OrderFilter{Statuses: []string{"cancel"}}, want: []kitchen.OrderID{newer.ID}},
		{name: "limit", filter: kitchen.OrderFilter{Limit: 1}, want: []kitchen.OrderID{newer.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := store.ListOrders(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]kitchen.OrderID, len(orders))
			for i, o := range orders {
				got[i] = o.ID
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("replaceScreens", func(t *testing.T) {
		require.NoError(t, store.ReplaceOrderScreens(ctx, older.ID, []kitchen.ScreenID{screenB}))
		got, err := store.GetOrder(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, []kitchen.ScreenID{screenB}, got.ScreenIDs)

		require.NoError(t, store.ReplaceOrderScreens(ctx, older.ID, nil))
		got, err = store.GetOrder(ctx, older.ID)
		require.NoError(t, err)
		assert.Empty(t, got.ScreenIDs)
	})

	t.Run("saveOrderScalars", func(t *testing.T) {
		older.Status = "waiting"
		older.Paid = true
		require.NoError(t, store.SaveOrder(ctx, older))
		got, err := store.GetOrder(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, "waiting", got.Status)
		assert.True(t, got.Paid)
	})
}

func TestStoreLines(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	orderID := uuid.New()

	lines := []*kitchen.OrderLine{
		{ID: uuid.New(), ProductID: uuid.New(), ProductName: "Burger", Qty: 2, Status: "draft", IsCooking: true},
		{ID: uuid.New(), ProductID: uuid.New(), ProductName: "Cola", Qty: 1, Status: "draft", IsCooking: true},
	}
	require.NoError(t, store.ReplaceLines(ctx, orderID, lines))

	got, err := store.ListOrderLines(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Burger", got[0].ProductName)
	assert.Equal(t, orderID, got[0].OrderID)

	replacement := []*kitchen.OrderLine{
		{ID: uuid.New(), ProductID: uuid.New(), ProductName: "Cake", Qty: 1, Status: "draft", IsCooking: true},
	}
	require.NoError(t, store.ReplaceLines(ctx, orderID, replacement))
	got, err = store.ListOrderLines(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Cake", got[0].ProductName)

	line := got[0]
	line.Qty = 3
	line.Note = "no sugar"
	require.NoError(t, store.SaveOrderLine(ctx, line))
	saved, err := store.GetOrderLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, saved.Qty)
	assert.Equal(t, "no sugar", saved.Note)

	err = store.SaveOrderLine(ctx, &kitchen.OrderLine{ID: uuid.New()})
	assert.True(t, errors.Is(err, kitchen.ErrNotFound), "got %v", err)
}

func TestStoreInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	boom := errors.New("boom")
	cfg := &kitchen.TerminalConfig{ID: uuid.New(), Name: "Rolled back"}

	err := store.InTx(ctx, func(ctx context.Context, repo kitchen.Repo) error {
		if err := repo.CreateConfig(ctx, cfg); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	err = store.InTx(ctx, func(ctx context.Context, repo kitchen.Repo) error {
		return repo.CreateConfig(ctx, cfg)
	})
	require.NoError(t, err)
	got, err = store.FindConfigByName(ctx, "Rolled back")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cfg.ID, got.ID)
}
