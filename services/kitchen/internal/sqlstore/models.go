package sqlstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
)

// Ids are stored as canonical uuid strings so the schema is identical on
// postgres and sqlite.

type configRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:128;index"`
	CreatedAt time.Time
}

func (configRow) TableName() string { return "terminal_configs" }

type sessionRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	ConfigID  string `gorm:"size:36;index"`
	Name      string `gorm:"size:128"`
	State     string `gorm:"size:16"`
	CreatedAt time.Time
}

func (sessionRow) TableName() string { return "terminal_sessions" }

type categoryRow struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"size:128"`
}

func (categoryRow) TableName() string { return "categories" }

type productRow struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"size:256"`
}

func (productRow) TableName() string { return "products" }

type productCategoryRow struct {
	ProductID  string `gorm:"primaryKey;size:36"`
	CategoryID string `gorm:"primaryKey;size:36;index"`
}

func (productCategoryRow) TableName() string { return "product_categories" }

type screenRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:128"`
	Code         string `gorm:"size:64;uniqueIndex"`
	ConfigID     string `gorm:"size:36;index"`
	ScreenType   string `gorm:"size:16"`
	Description  string `gorm:"size:512"`
	Active       bool   `gorm:"index"`
	DisplayOrder int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (screenRow) TableName() string { return "kitchen_screens" }

type screenCategoryRow struct {
	ScreenID   string `gorm:"primaryKey;size:36"`
	CategoryID string `gorm:"primaryKey;size:36;index"`
}

func (screenCategoryRow) TableName() string { return "kitchen_screen_categories" }

type orderRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:128"`
	Reference    string `gorm:"size:128;uniqueIndex:idx_order_config_reference"`
	ConfigID     string `gorm:"size:36;uniqueIndex:idx_order_config_reference"`
	SessionID    string `gorm:"size:36;index"`
	TableLabel   string `gorm:"column:table_name;size:64"`
	Floor        string `gorm:"size:64"`
	Status       string `gorm:"size:16;index"`
	Paid         bool
	IsCooking    bool `gorm:"index"`
	AmountTotal  float64
	AmountPaid   float64
	AmountTax    float64
	AmountReturn float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (orderRow) TableName() string { return "kitchen_orders" }

type orderScreenRow struct {
	OrderID  string `gorm:"primaryKey;size:36"`
	ScreenID string `gorm:"primaryKey;size:36;index"`
	Position int
}

func (orderScreenRow) TableName() string { return "kitchen_order_screens" }

type orderLineRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	OrderID     string `gorm:"size:36;index"`
	Position    int
	ProductID   string `gorm:"size:36;index"`
	ProductName string `gorm:"size:256"`
	Qty         float64
	PriceUnit   float64
	Note        string `gorm:"size:512"`
	IsCooking   bool
	Status      string `gorm:"size:16"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (orderLineRow) TableName() string { return "kitchen_order_lines" }

func allModels() []interface{} {
	return []interface{}{
		&configRow{},
		&sessionRow{},
		&categoryRow{},
		&productRow{},
		&productCategoryRow{},
		&screenRow{},
		&screenCategoryRow{},
		&orderRow{},
		&orderScreenRow{},
		&orderLineRow{},
	}
}

func parseID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func toConfig(r configRow) *kitchen.TerminalConfig {
	return &kitchen.TerminalConfig{ID: parseID(r.ID), Name: r.Name, CreatedAt: r.CreatedAt}
}

func toSession(r sessionRow) *kitchen.Session {
	return &kitchen.Session{
		ID:        parseID(r.ID),
		ConfigID:  parseID(r.ConfigID),
		Name:      r.Name,
		State:     r.State,
		CreatedAt: r.CreatedAt,
	}
}

func fromScreen(s *kitchen.Screen) screenRow {
	return screenRow{
		ID:           s.ID.String(),
		Name:         s.Name,
		Code:         s.Code,
		ConfigID:     s.ConfigID.String(),
		ScreenType:   s.ScreenType,
		Description:  s.Description,
		Active:       s.Active,
		DisplayOrder: s.DisplayOrder,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toScreen(r screenRow) *kitchen.Screen {
	return &kitchen.Screen{
		ID:           parseID(r.ID),
		Name:         r.Name,
		Code:         r.Code,
		ConfigID:     parseID(r.ConfigID),
		CategoryIDs:  []kitchen.CategoryID{},
		ScreenType:   r.ScreenType,
		Description:  r.Description,
		Active:       r.Active,
		DisplayOrder: r.DisplayOrder,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromOrder(o *kitchen.Order) orderRow {
	return orderRow{
		ID:           o.ID.String(),
		Name:         o.Name,
		Reference:    o.Reference,
		ConfigID:     o.ConfigID.String(),
		SessionID:    o.SessionID.String(),
		TableLabel:   o.TableName,
		Floor:        o.Floor,
		Status:       o.Status,
		Paid:         o.Paid,
		IsCooking:    o.IsCooking,
		AmountTotal:  o.AmountTotal,
		AmountPaid:   o.AmountPaid,
		AmountTax:    o.AmountTax,
		AmountReturn: o.AmountReturn,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func toOrder(r orderRow) *kitchen.Order {
	return &kitchen.Order{
		ID:           parseID(r.ID),
		Name:         r.Name,
		Reference:    r.Reference,
		ConfigID:     parseID(r.ConfigID),
		SessionID:    parseID(r.SessionID),
		TableName:    r.TableLabel,
		Floor:        r.Floor,
		Status:       r.Status,
		Paid:         r.Paid,
		IsCooking:    r.IsCooking,
		ScreenIDs:    []kitchen.ScreenID{},
		AmountTotal:  r.AmountTotal,
		AmountPaid:   r.AmountPaid,
		AmountTax:    r.AmountTax,
		AmountReturn: r.AmountReturn,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromLine(l *kitchen.OrderLine, position int) orderLineRow {
	return orderLineRow{
		ID:          l.ID.String(),
		OrderID:     l.OrderID.String(),
		Position:    position,
		ProductID:   l.ProductID.String(),
		ProductName: l.ProductName,
		Qty:         l.Qty,
		PriceUnit:   l.PriceUnit,
		Note:        l.Note,
		IsCooking:   l.IsCooking,
		Status:      l.Status,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func toLine(r orderLineRow) *kitchen.OrderLine {
	return &kitchen.OrderLine{
		ID:          parseID(r.ID),
		OrderID:     parseID(r.OrderID),
		ProductID:   parseID(r.ProductID),
		ProductName: r.ProductName,
		Qty:         r.Qty,
		PriceUnit:   r.PriceUnit,
		Note:        r.Note,
		IsCooking:   r.IsCooking,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
