package kitchen

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
)

// Notification is a payload bound to the screen it is addressed to.
type Notification struct {
	ScreenID ScreenID
	Payload  event.ScreenNotification
}

// Dispatcher pushes screen notifications over the pub/sub transport. Delivery
// is at most once; failures are logged and never reach the caller.
type Dispatcher struct {
	publisher events.Publisher
	logger    apt.Logger
	now       func() time.Time
}

func NewDispatcher(publisher events.Publisher, logger apt.Logger) *Dispatcher {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Publish sends one notification on the channel of screenID.
func (d *Dispatcher) Publish(ctx context.Context, screenID ScreenID, eventType string, payload event.ScreenNotification) {
	if d.publisher == nil {
		d.logger.Debug("no publisher configured, notification dropped", "screen_id", screenID, "type", eventType)
		return
	}

	payload.Type = eventType
	payload.ScreenID = screenID.String()
	if payload.Timestamp.IsZero() {
		payload.Timestamp = d.now().UTC()
	}
	payload.LinesCount = len(payload.Lines)

	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("cannot encode screen notification", "screen_id", screenID, "type", eventType, "error", err)
		return
	}

	channel := event.ScreenChannel(screenID.String())
	if err := d.publisher.Publish(ctx, channel, data); err != nil {
		d.logger.Error("cannot publish screen notification", "channel", channel, "type", eventType, "error", err)
		return
	}

	d.logger.Debug("screen notification published", "channel", channel, "type", eventType, "order_id", payload.OrderID)
}

// PublishAll sends notifications in order.
func (d *Dispatcher) PublishAll(ctx context.Context, notifications []Notification) {
	for _, n := range notifications {
		d.Publish(ctx, n.ScreenID, n.Payload.Type, n.Payload)
	}
}

// PublishTest sends a connectivity check to a screen.
func (d *Dispatcher) PublishTest(ctx context.Context, screen *Screen) {
	d.Publish(ctx, screen.ID, event.NotificationTest, event.ScreenNotification{
		ScreenName: screen.Name,
		ConfigID:   screen.ConfigID.String(),
		Message:    fmt.Sprintf("Test notification for screen %s", screen.Name),
		Timestamp:  d.now().UTC(),
	})
}

// BuildNotification assembles the payload of one screen. visible must already
// be filtered for that screen.
func BuildNotification(eventType string, order *Order, config *TerminalConfig, screen *Screen, visible []*OrderLine, at time.Time) event.ScreenNotification {
	n := event.ScreenNotification{
		Type:           eventType,
		ScreenID:       screen.ID.String(),
		ScreenName:     screen.Name,
		OrderID:        order.ID.String(),
		OrderName:      order.Name,
		OrderReference: order.Reference,
		OrderStatus:    order.Status,
		TableName:      order.TableName,
		ConfigID:       order.ConfigID.String(),
		Timestamp:      at.UTC(),
		Lines:          make([]event.NotificationLine, 0, len(visible)),
	}
	if config != nil {
		n.ConfigName = config.Name
	}
	for _, l := range visible {
		n.Lines = append(n.Lines, event.NotificationLine{
			ID:          l.ID.String(),
			ProductName: l.ProductName,
			Qty:         l.Qty,
			Note:        l.Note,
			Status:      l.Status,
		})
	}
	n.LinesCount = len(n.Lines)
	return n
}
