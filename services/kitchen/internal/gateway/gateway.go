package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
)

const snapshotType = "snapshot"

// ScreenSource resolves the screen a client connects to. *kitchen.ScreenRegistry
// satisfies it.
type ScreenSource interface {
	Get(ctx context.Context, id kitchen.ScreenID) (*kitchen.Screen, error)
}

// DetailsSource builds the initial view for a screen. *kitchen.Queries
// satisfies it.
type DetailsSource interface {
	GetDetails(ctx context.Context, configID kitchen.ConfigID, screenID kitchen.ScreenID) (*kitchen.ScreenDetails, error)
}

// Snapshot is the first message a screen receives after connecting.
type Snapshot struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Details   *kitchen.ScreenDetails `json:"details"`
}

// Gateway relays per-screen notifications from the bus to connected kitchen
// displays over websockets.
type Gateway struct {
	hub        *Hub
	subscriber events.Subscriber
	screens    ScreenSource
	details    DetailsSource
	logger     apt.Logger
	upgrader   websocket.Upgrader
	cancel     context.CancelFunc
}

func New(subscriber events.Subscriber, screens ScreenSource, details DetailsSource, logger apt.Logger) *Gateway {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Gateway{
		hub:        NewHub(logger),
		subscriber: subscriber,
		screens:    screens,
		details:    details,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Displays are served from arbitrary kiosk origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) Start(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	go g.hub.Run(hubCtx)

	if g.subscriber == nil {
		g.logger.Info("Screen gateway started without a bus, only snapshots will be served")
		return nil
	}
	if err := g.subscriber.Subscribe(ctx, event.ScreenChannelWildcard, g.handleNotification); err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", event.ScreenChannelWildcard, err)
	}

	g.logger.Infof("Screen gateway listening on %s", event.ScreenChannelWildcard)
	return nil
}

func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}
	return nil
}

// Hub exposes the client registry.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Get("/ws/screens/{id}", g.ServeScreen)
}

func (g *Gateway) handleNotification(ctx context.Context, msg []byte) error {
	var n event.ScreenNotification
	if err := json.Unmarshal(msg, &n); err != nil {
		g.logger.Errorf("Failed to unmarshal screen notification: %v", err)
		return nil
	}
	if n.ScreenID == "" {
		g.logger.Info("Screen notification without screen_id dropped", "type", n.Type)
		return nil
	}
	g.hub.Deliver(ctx, n.ScreenID, msg)
	return nil
}

// ServeScreen upgrades the request and streams notifications for one screen,
// starting with a snapshot of its current orders.
func (g *Gateway) ServeScreen(w http.ResponseWriter, r *http.Request) {
	screenID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid screen ID")
		return
	}

	ctx := r.Context()
	screen, err := g.screens.Get(ctx, screenID)
	if err != nil {
		if errors.Is(err, kitchen.ErrNotFound) {
			apt.RespondError(w, http.StatusNotFound, "Screen not found")
			return
		}
		g.logger.Error("cannot load screen", "screen_id", screenID, "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not load screen")
		return
	}
	if !screen.Active {
		apt.RespondError(w, http.StatusConflict, "Screen is not active")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "screen_id", screenID, "error", err)
		return
	}

	c := &client{
		id:       uuid.NewString(),
		screenID: screen.ID.String(),
		hub:      g.hub,
		conn:     conn,
		snapshot: make(chan []byte, 1),
		send:     make(chan []byte, sendBufferSize),
	}
	// Registered before the snapshot is built so notifications published
	// meanwhile are queued behind it instead of lost.
	if !g.hub.add(c) {
		conn.Close()
		return
	}
	go c.writePump()

	snapshot, err := g.snapshot(ctx, screen)
	if err != nil {
		g.logger.Error("cannot build screen snapshot", "screen_id", screenID, "error", err)
		// writePump sends the close frame; readPump unregisters once the
		// connection is gone.
		close(c.snapshot)
		c.readPump()
		return
	}
	c.snapshot <- snapshot

	g.logger.Info("screen display connected", "screen_id", screen.ID, "subscriber_id", c.id)
	c.readPump()
}

func (g *Gateway) snapshot(ctx context.Context, screen *kitchen.Screen) ([]byte, error) {
	details, err := g.details.GetDetails(ctx, screen.ConfigID, screen.ID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Snapshot{Type: snapshotType, Timestamp: time.Now().UTC(), Details: details})
}
