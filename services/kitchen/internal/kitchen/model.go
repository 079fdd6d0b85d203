package kitchen

import (
	"time"

	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg/enums/orderstatus"
)

var (
	statusDraft   = orderstatus.Statuses.Draft.Code()
	statusWaiting = orderstatus.Statuses.Waiting.Code()
	statusReady   = orderstatus.Statuses.Ready.Code()
	statusCancel  = orderstatus.Statuses.Cancel.Code()
)

type ScreenID = uuid.UUID
type OrderID = uuid.UUID
type LineID = uuid.UUID
type ConfigID = uuid.UUID
type SessionID = uuid.UUID
type ProductID = uuid.UUID
type CategoryID = uuid.UUID

// TerminalConfig is a point-of-sale terminal configuration. Screens and orders
// always belong to exactly one.
type TerminalConfig struct {
	ID        ConfigID  `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

const (
	SessionOpened = "opened"
	SessionClosed = "closed"
)

type Session struct {
	ID        SessionID `bson:"_id" json:"id"`
	ConfigID  ConfigID  `bson:"config_id" json:"config_id"`
	Name      string    `bson:"name" json:"name"`
	State     string    `bson:"state" json:"state"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type Category struct {
	ID   CategoryID `bson:"_id" json:"id"`
	Name string     `bson:"name" json:"name"`
}

type Product struct {
	ID          ProductID    `bson:"_id" json:"id"`
	Name        string       `bson:"name" json:"name"`
	CategoryIDs []CategoryID `bson:"category_ids" json:"category_ids"`
}

// Screen is a kitchen display. It is never hard-deleted; deactivation takes it
// out of assignment.
type Screen struct {
	ID           ScreenID     `bson:"_id" json:"id"`
	Name         string       `bson:"name" json:"name"`
	Code         string       `bson:"code" json:"code"`
	ConfigID     ConfigID     `bson:"config_id" json:"config_id"`
	CategoryIDs  []CategoryID `bson:"category_ids" json:"category_ids"`
	ScreenType   string       `bson:"screen_type" json:"screen_type"`
	Description  string       `bson:"description,omitempty" json:"description,omitempty"`
	Active       bool         `bson:"active" json:"active"`
	DisplayOrder int          `bson:"display_order" json:"display_order"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updated_at"`
}

// Order is the kitchen view of a terminal order. Reference is unique per
// terminal and is the idempotency key for submissions.
type Order struct {
	ID           OrderID    `bson:"_id" json:"id"`
	Name         string     `bson:"name" json:"name"`
	Reference    string     `bson:"reference" json:"reference"`
	ConfigID     ConfigID   `bson:"config_id" json:"config_id"`
	SessionID    SessionID  `bson:"session_id" json:"session_id"`
	TableName    string     `bson:"table_name,omitempty" json:"table_name,omitempty"`
	Floor        string     `bson:"floor,omitempty" json:"floor,omitempty"`
	Status       string     `bson:"status" json:"status"`
	Paid         bool       `bson:"paid" json:"paid"`
	IsCooking    bool       `bson:"is_cooking" json:"is_cooking"`
	ScreenIDs    []ScreenID `bson:"screen_ids" json:"screen_ids"`
	AmountTotal  float64    `bson:"amount_total" json:"amount_total"`
	AmountPaid   float64    `bson:"amount_paid" json:"amount_paid"`
	AmountTax    float64    `bson:"amount_tax" json:"amount_tax"`
	AmountReturn float64    `bson:"amount_return" json:"amount_return"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// IsClosed reports whether the order is completed and paid. Closed orders
// reject further submissions.
func (o *Order) IsClosed() bool {
	return o.Paid && o.Status == statusReady
}

// HasScreen reports whether the screen is in the order's assignment set.
func (o *Order) HasScreen(id ScreenID) bool {
	for _, sid := range o.ScreenIDs {
		if sid == id {
			return true
		}
	}
	return false
}

type OrderLine struct {
	ID          LineID    `bson:"_id" json:"id"`
	OrderID     OrderID   `bson:"order_id" json:"order_id"`
	ProductID   ProductID `bson:"product_id" json:"product_id"`
	ProductName string    `bson:"product_name" json:"product_name"`
	Qty         float64   `bson:"qty" json:"qty"`
	PriceUnit   float64   `bson:"price_unit" json:"price_unit"`
	Note        string    `bson:"note,omitempty" json:"note,omitempty"`
	IsCooking   bool      `bson:"is_cooking" json:"is_cooking"`
	Status      string    `bson:"status" json:"status"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}
