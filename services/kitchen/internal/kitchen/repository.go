package kitchen

import (
	"context"
	"time"
)

// Get and Find methods return (nil, nil) when nothing matches.

type ScreenFilter struct {
	ConfigID   *ConfigID
	ActiveOnly bool
}

type OrderFilter struct {
	ConfigID         *ConfigID
	ScreenID         *ScreenID
	Statuses         []string
	CookingOnly      bool
	ExcludeCancelled bool
	Since            *time.Time
	Limit            int
}

type CatalogRepository interface {
	CreateConfig(ctx context.Context, c *TerminalConfig) error
	GetConfig(ctx context.Context, id ConfigID) (*TerminalConfig, error)
	FindConfigByName(ctx context.Context, name string) (*TerminalConfig, error)
	ListConfigs(ctx context.Context) ([]*TerminalConfig, error)
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	CreateCategory(ctx context.Context, c *Category) error
	ListCategories(ctx context.Context) ([]*Category, error)
	CreateProduct(ctx context.Context, p *Product) error
	SaveProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	ListProducts(ctx context.Context, ids []ProductID) ([]*Product, error)
}

type ScreenRepository interface {
	CreateScreen(ctx context.Context, s *Screen) error
	SaveScreen(ctx context.Context, s *Screen) error
	GetScreen(ctx context.Context, id ScreenID) (*Screen, error)
	FindScreenByCode(ctx context.Context, code string) (*Screen, error)
	// ListScreens orders by display order, then id.
	ListScreens(ctx context.Context, filter ScreenFilter) ([]*Screen, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, o *Order) error
	// SaveOrder persists scalar fields. Assignments go through ReplaceOrderScreens.
	SaveOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id OrderID) (*Order, error)
	// FindOrderByReference matches any terminal when configID is uuid.Nil.
	FindOrderByReference(ctx context.Context, configID ConfigID, reference string) (*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error)
	ReplaceOrderScreens(ctx context.Context, orderID OrderID, screenIDs []ScreenID) error
	ListOrderLines(ctx context.Context, orderID OrderID) ([]*OrderLine, error)
	ListLinesForOrders(ctx context.Context, orderIDs []OrderID) ([]*OrderLine, error)
	// ReplaceLines deletes every line of the order and inserts lines.
	ReplaceLines(ctx context.Context, orderID OrderID, lines []*OrderLine) error
	GetOrderLine(ctx context.Context, id LineID) (*OrderLine, error)
	SaveOrderLine(ctx context.Context, l *OrderLine) error
}

type Repo interface {
	CatalogRepository
	ScreenRepository
	OrderRepository
}

// Store is a Repo with an explicit unit-of-work boundary. InTx commits when fn
// returns nil and rolls back otherwise; repo is bound to the transaction.
type Store interface {
	Repo
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repo) error) error
}
