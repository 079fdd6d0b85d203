package event

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// ScreenChannelPrefix prefixes the per-screen notification subject.
	ScreenChannelPrefix = "kitchen.screen."
	// ScreenChannelWildcard matches every per-screen subject.
	ScreenChannelWildcard = "kitchen.screen.*"
	// ScreensChangedTopic carries screen registry mutations between instances.
	ScreensChangedTopic = "kitchen.screens.changed"
	// POSOrdersTopic carries batched order submissions from terminals.
	POSOrdersTopic = "pos.orders.submitted"
)

const (
	NotificationNewOrder          = "new_order"
	NotificationOrderStatusChange = "order_status_change"
	NotificationOrderLineUpdated  = "order_line_updated"
	NotificationTest              = "test"
)

const (
	EventScreenCreated     = "screen.created"
	EventScreenUpdated     = "screen.updated"
	EventScreenDeactivated = "screen.deactivated"
	EventPOSOrdersSubmit   = "pos.orders.submit"
)

// ScreenChannel returns the subject a single screen listens on.
func ScreenChannel(screenID string) string {
	return ScreenChannelPrefix + screenID
}

// ScreenIDFromChannel extracts the screen id from a per-screen subject.
func ScreenIDFromChannel(subject string) (string, bool) {
	if !strings.HasPrefix(subject, ScreenChannelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(subject, ScreenChannelPrefix)
	if id == "" || strings.Contains(id, ".") {
		return "", false
	}
	return id, true
}

// ScreenNotification is the payload pushed to a single kitchen screen.
// Lines only ever contain lines visible on that screen.
type ScreenNotification struct {
	Type           string             `json:"type"`
	ScreenID       string             `json:"screen_id"`
	ScreenName     string             `json:"screen_name"`
	OrderID        string             `json:"order_id,omitempty"`
	OrderName      string             `json:"order_name,omitempty"`
	OrderReference string             `json:"order_reference,omitempty"`
	OrderStatus    string             `json:"order_status,omitempty"`
	TableName      string             `json:"table_name,omitempty"`
	ConfigID       string             `json:"config_id,omitempty"`
	ConfigName     string             `json:"config_name,omitempty"`
	LineID         string             `json:"line_id,omitempty"`
	Message        string             `json:"message,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	LinesCount     int                `json:"lines_count"`
	Lines          []NotificationLine `json:"lines,omitempty"`
}

type NotificationLine struct {
	ID          string  `json:"id"`
	ProductName string  `json:"product_name"`
	Qty         float64 `json:"qty"`
	Note        string  `json:"note,omitempty"`
	Status      string  `json:"status,omitempty"`
}

// ScreenChangedEvent announces a registry mutation so other instances can drop
// their cached category index for the terminal.
type ScreenChangedEvent struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	ScreenID   string    `json:"screen_id"`
	ConfigID   string    `json:"config_id"`
	Source     string    `json:"source,omitempty"`
}

// POSOrdersSubmittedEvent wraps a batch of terminal submissions. Orders is
// decoded by the kitchen service into its own submission type.
type POSOrdersSubmittedEvent struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	ConfigID   string          `json:"config_id,omitempty"`
	Orders     json.RawMessage `json:"orders"`
}
