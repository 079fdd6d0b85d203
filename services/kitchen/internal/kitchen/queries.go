package kitchen

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// Queries answers read-only questions about screens and their orders. Nothing
// here writes, repairs or notifies.
type Queries struct {
	store  Store
	index  *CategoryIndex
	logger apt.Logger
	now    func() time.Time
}

func NewQueries(store Store, index *CategoryIndex, logger apt.Logger) *Queries {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if index == nil {
		index = NewCategoryIndex(store, logger)
	}
	return &Queries{store: store, index: index, logger: logger, now: time.Now}
}

// ScreenDetails is the authoritative state a screen loads on connect.
type ScreenDetails struct {
	ScreenID         ScreenID     `json:"screen_id"`
	ScreenName       string       `json:"screen_name"`
	ScreenCategories []*Category  `json:"screen_categories"`
	Orders           []*Order     `json:"orders"`
	OrderLines       []*OrderLine `json:"order_lines"`
}

// GetDetails returns the cooking orders assigned to the screen together with
// the lines visible on it. Orders without visible lines are left out, matching
// what notifications carry.
func (q *Queries) GetDetails(ctx context.Context, configID ConfigID, screenID ScreenID) (*ScreenDetails, error) {
	screen, err := mustGetScreen(ctx, q.store, screenID)
	if err != nil {
		return nil, err
	}
	if configID != uuid.Nil && screen.ConfigID != configID {
		return nil, fmt.Errorf("%w: screen %s on terminal %s", ErrNotFound, screenID, configID)
	}

	categories, err := q.screenCategories(ctx, screen)
	if err != nil {
		return nil, err
	}

	details := &ScreenDetails{
		ScreenID:         screen.ID,
		ScreenName:       screen.Name,
		ScreenCategories: categories,
		Orders:           []*Order{},
		OrderLines:       []*OrderLine{},
	}

	cid, sid := screen.ConfigID, screen.ID
	orders, err := q.store.ListOrders(ctx, OrderFilter{
		ConfigID:         &cid,
		ScreenID:         &sid,
		CookingOnly:      true,
		ExcludeCancelled: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	if len(orders) == 0 {
		return details, nil
	}

	byOrder, products, err := q.linesAndProducts(ctx, orders)
	if err != nil {
		return nil, err
	}

	for _, o := range orders {
		visible := VisibleLines(byOrder[o.ID], products, screen)
		if len(visible) == 0 {
			q.logger.Debug("assigned order has no visible lines", "order_id", o.ID, "screen_id", screen.ID)
			continue
		}
		details.Orders = append(details.Orders, o)
		details.OrderLines = append(details.OrderLines, visible...)
	}

	return details, nil
}

// OrdersForScreen lists the orders assigned to a screen, newest first.
func (q *Queries) OrdersForScreen(ctx context.Context, screenID ScreenID, includeCancelled bool) ([]*Order, error) {
	sid := screenID
	orders, err := q.store.ListOrders(ctx, OrderFilter{ScreenID: &sid, ExcludeCancelled: !includeCancelled})
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

type ScreenStatistics struct {
	ScreenID        ScreenID `json:"screen_id"`
	ScreenName      string   `json:"screen_name"`
	Active          bool     `json:"active"`
	TotalOrders     int      `json:"total_orders"`
	CookingOrders   int      `json:"cooking_orders"`
	ReadyOrders     int      `json:"ready_orders"`
	CompletedOrders int      `json:"completed_orders"`
	TodayOrders     int      `json:"today_orders"`
	VisibleLines    int      `json:"visible_lines"`
	Categories      []string `json:"categories"`
}

// ScreenStatistics counts the non-cancelled orders assigned to a screen.
func (q *Queries) ScreenStatistics(ctx context.Context, screenID ScreenID) (*ScreenStatistics, error) {
	screen, err := mustGetScreen(ctx, q.store, screenID)
	if err != nil {
		return nil, err
	}
	return q.screenStatistics(ctx, screen)
}

type TerminalStatistics struct {
	ConfigID      ConfigID            `json:"config_id"`
	ActiveScreens int                 `json:"active_screens"`
	TotalOrders   int                 `json:"total_orders"`
	CookingOrders int                 `json:"cooking_orders"`
	ReadyOrders   int                 `json:"ready_orders"`
	Screens       []*ScreenStatistics `json:"screens"`
}

// TerminalStatistics aggregates ScreenStatistics over the active screens of a
// terminal. Order totals count distinct orders.
func (q *Queries) TerminalStatistics(ctx context.Context, configID ConfigID) (*TerminalStatistics, error) {
	screens, err := q.index.ActiveScreens(ctx, configID)
	if err != nil {
		return nil, err
	}

	stats := &TerminalStatistics{
		ConfigID:      configID,
		ActiveScreens: len(screens),
		Screens:       make([]*ScreenStatistics, 0, len(screens)),
	}
	for _, s := range screens {
		ss, err := q.screenStatistics(ctx, s)
		if err != nil {
			return nil, err
		}
		stats.Screens = append(stats.Screens, ss)
	}

	cid := configID
	orders, err := q.store.ListOrders(ctx, OrderFilter{ConfigID: &cid, CookingOnly: true, ExcludeCancelled: true})
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	for _, o := range orders {
		stats.TotalOrders++
		switch o.Status {
		case statusDraft:
			stats.CookingOrders++
		case statusWaiting:
			stats.ReadyOrders++
		}
	}
	return stats, nil
}

// CoverageReport lists categories no active screen of the terminal covers.
type CoverageReport struct {
	ConfigID          ConfigID    `json:"config_id"`
	Valid             bool        `json:"valid"`
	TotalScreens      int         `json:"total_screens"`
	MissingCategories []*Category `json:"missing_categories"`
}

// CoverageCheck checks categoryIDs, or every known category when none are
// given, against the active screens of a terminal.
func (q *Queries) CoverageCheck(ctx context.Context, configID ConfigID, categoryIDs []CategoryID) (*CoverageReport, error) {
	config, err := q.store.GetConfig(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("cannot get terminal config: %w", err)
	}
	if config == nil {
		return nil, fmt.Errorf("%w: terminal config %s", ErrNotFound, configID)
	}

	all, err := q.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list categories: %w", err)
	}
	byID := make(map[CategoryID]*Category, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	if len(categoryIDs) == 0 {
		for _, c := range all {
			categoryIDs = append(categoryIDs, c.ID)
		}
	}

	screens, err := q.index.ActiveScreens(ctx, configID)
	if err != nil {
		return nil, err
	}
	covered := make(map[CategoryID]struct{})
	for _, s := range screens {
		for _, id := range s.CategoryIDs {
			covered[id] = struct{}{}
		}
	}

	report := &CoverageReport{
		ConfigID:          configID,
		TotalScreens:      len(screens),
		MissingCategories: []*Category{},
	}
	for _, id := range uniqueCategoryIDs(categoryIDs) {
		if _, ok := covered[id]; ok {
			continue
		}
		c := byID[id]
		if c == nil {
			c = &Category{ID: id}
		}
		report.MissingCategories = append(report.MissingCategories, c)
	}
	report.Valid = len(report.MissingCategories) == 0
	return report, nil
}

func (q *Queries) screenStatistics(ctx context.Context, screen *Screen) (*ScreenStatistics, error) {
	categories, err := q.screenCategories(ctx, screen)
	if err != nil {
		return nil, err
	}

	stats := &ScreenStatistics{
		ScreenID:   screen.ID,
		ScreenName: screen.Name,
		Active:     screen.Active,
		Categories: make([]string, 0, len(categories)),
	}
	for _, c := range categories {
		stats.Categories = append(stats.Categories, c.Name)
	}

	sid := screen.ID
	orders, err := q.store.ListOrders(ctx, OrderFilter{ScreenID: &sid, ExcludeCancelled: true})
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	if len(orders) == 0 {
		return stats, nil
	}

	byOrder, products, err := q.linesAndProducts(ctx, orders)
	if err != nil {
		return nil, err
	}

	y, m, d := q.now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, q.now().Location())
	for _, o := range orders {
		stats.TotalOrders++
		switch o.Status {
		case statusDraft:
			stats.CookingOrders++
		case statusWaiting:
			stats.ReadyOrders++
		case statusReady:
			stats.CompletedOrders++
		}
		if !o.CreatedAt.Before(today) {
			stats.TodayOrders++
		}
		stats.VisibleLines += len(VisibleLines(byOrder[o.ID], products, screen))
	}
	return stats, nil
}

func (q *Queries) screenCategories(ctx context.Context, screen *Screen) ([]*Category, error) {
	all, err := q.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list categories: %w", err)
	}
	byID := make(map[CategoryID]*Category, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	out := make([]*Category, 0, len(screen.CategoryIDs))
	for _, id := range screen.CategoryIDs {
		if c := byID[id]; c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (q *Queries) linesAndProducts(ctx context.Context, orders []*Order) (map[OrderID][]*OrderLine, map[ProductID]*Product, error) {
	ids := make([]OrderID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	lines, err := q.store.ListLinesForOrders(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot list order lines: %w", err)
	}

	byOrder := make(map[OrderID][]*OrderLine, len(orders))
	for _, l := range lines {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l)
	}

	productIDs := lineProductIDs(lines)
	products := make(map[ProductID]*Product, len(productIDs))
	if len(productIDs) > 0 {
		list, err := q.store.ListProducts(ctx, productIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot load products: %w", err)
		}
		for _, p := range list {
			products[p.ID] = p
		}
	}
	return byOrder, products, nil
}
