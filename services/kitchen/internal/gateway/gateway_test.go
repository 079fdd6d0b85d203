package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
)

type MockSubscriber struct {
	handlers map[string]events.HandlerFunc
}

func (m *MockSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	if m.handlers == nil {
		m.handlers = make(map[string]events.HandlerFunc)
	}
	m.handlers[topic] = handler
	return nil
}

type MockScreens struct {
	screens map[kitchen.ScreenID]*kitchen.Screen
}

func (m *MockScreens) Get(ctx context.Context, id kitchen.ScreenID) (*kitchen.Screen, error) {
	s, ok := m.screens[id]
	if !ok {
		return nil, kitchen.ErrNotFound
	}
	return s, nil
}

type MockDetails struct {
	GetDetailsFunc func(ctx context.Context, configID kitchen.ConfigID, screenID kitchen.ScreenID) (*kitchen.ScreenDetails, error)
}

func (m *MockDetails) GetDetails(ctx context.Context, configID kitchen.ConfigID, screenID kitchen.ScreenID) (*kitchen.ScreenDetails, error) {
	if m.GetDetailsFunc != nil {
		return m.GetDetailsFunc(ctx, configID, screenID)
	}
	return &kitchen.ScreenDetails{ScreenID: screenID}, nil
}

func setupGateway(t *testing.T) (*Gateway, *MockSubscriber, *kitchen.Screen, *kitchen.Screen, *httptest.Server) {
	t.Helper()
	active := &kitchen.Screen{ID: uuid.New(), Name: "Grill", ConfigID: uuid.New(), Active: true}
	inactive := &kitchen.Screen{ID: uuid.New(), Name: "Old", ConfigID: active.ConfigID}
	screens := &MockScreens{screens: map[kitchen.ScreenID]*kitchen.Screen{active.ID: active, inactive.ID: inactive}}

	details := &MockDetails{
		GetDetailsFunc: func(ctx context.Context, configID kitchen.ConfigID, screenID kitchen.ScreenID) (*kitchen.ScreenDetails, error) {
			return &kitchen.ScreenDetails{ScreenID: screenID, ScreenName: "Grill"}, nil
		},
	}

	sub := &MockSubscriber{}
	g := New(sub, screens, details, apt.NewNoopLogger())
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { g.Stop(context.Background()) })

	r := chi.NewRouter()
	g.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return g, sub, active, inactive, srv
}

func wsURL(srv *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/screens/" + id
}

func TestGatewayStartSubscribesToScreenChannels(t *testing.T) {
	_, sub, _, _, _ := setupGateway(t)
	if _, ok := sub.handlers[event.ScreenChannelWildcard]; !ok {
		t.Errorf("Start() did not subscribe to %s", event.ScreenChannelWildcard)
	}
}

func TestGatewayServeScreenRejects(t *testing.T) {
	_, _, _, inactive, srv := setupGateway(t)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "invalidID", id: "not-a-uuid", wantStatus: http.StatusBadRequest},
		{name: "unknownScreen", id: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "inactiveScreen", id: inactive.ID.String(), wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.id), nil)
			if err == nil {
				t.Fatal("Dial() error = nil, want handshake failure")
			}
			if resp == nil {
				t.Fatalf("Dial() response = nil, error %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestGatewayRelaysNotifications(t *testing.T) {
	_, sub, active, _, srv := setupGateway(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, active.ID.String()), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON(snapshot) error = %v", err)
	}
	if snap.Type != snapshotType {
		t.Errorf("first message type = %q, want %q", snap.Type, snapshotType)
	}
	if snap.Details == nil || snap.Details.ScreenID != active.ID {
		t.Fatalf("snapshot details = %+v, want screen %v", snap.Details, active.ID)
	}

	handler := sub.handlers[event.ScreenChannelWildcard]
	other, _ := json.Marshal(event.ScreenNotification{Type: event.NotificationNewOrder, ScreenID: uuid.NewString(), OrderName: "Other"})
	mine, _ := json.Marshal(event.ScreenNotification{Type: event.NotificationNewOrder, ScreenID: active.ID.String(), OrderName: "Order 7"})

	if err := handler(context.Background(), other); err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	if err := handler(context.Background(), mine); err != nil {
		t.Fatalf("handler() error = %v", err)
	}

	var got event.ScreenNotification
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON(notification) error = %v", err)
	}
	if got.OrderName != "Order 7" {
		t.Errorf("notification order = %q, want %q", got.OrderName, "Order 7")
	}
}

func TestGatewayHandleNotificationIgnoresBadPayloads(t *testing.T) {
	g, _, _, _, _ := setupGateway(t)

	tests := []struct {
		name string
		msg  []byte
	}{
		{name: "malformed", msg: []byte("{")},
		{name: "missingScreen", msg: []byte(`{"type":"new_order"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.handleNotification(context.Background(), tt.msg); err != nil {
				t.Errorf("handleNotification() error = %v, want nil", err)
			}
		})
	}
}

func TestGatewayKeepsNotificationsPublishedDuringSnapshot(t *testing.T) {
	screen := &kitchen.Screen{ID: uuid.New(), Name: "Grill", ConfigID: uuid.New(), Active: true}
	screens := &MockScreens{screens: map[kitchen.ScreenID]*kitchen.Screen{screen.ID: screen}}
	sub := &MockSubscriber{}

	details := &MockDetails{
		GetDetailsFunc: func(ctx context.Context, configID kitchen.ConfigID, screenID kitchen.ScreenID) (*kitchen.ScreenDetails, error) {
			msg, _ := json.Marshal(event.ScreenNotification{Type: event.NotificationNewOrder, ScreenID: screenID.String(), OrderName: "Order 8"})
			if err := sub.handlers[event.ScreenChannelWildcard](ctx, msg); err != nil {
				return nil, err
			}
			return &kitchen.ScreenDetails{ScreenID: screenID}, nil
		},
	}

	g := New(sub, screens, details, apt.NewNoopLogger())
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { g.Stop(context.Background()) })

	r := chi.NewRouter()
	g.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, screen.ID.String()), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON(snapshot) error = %v", err)
	}
	if snap.Type != snapshotType {
		t.Errorf("first message type = %q, want %q", snap.Type, snapshotType)
	}

	var got event.ScreenNotification
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON(notification) error = %v", err)
	}
	if got.OrderName != "Order 8" {
		t.Errorf("notification order = %q, want %q", got.OrderName, "Order 8")
	}
}

func TestGatewaySnapshotFailureClosesConnection(t *testing.T) {
	screen := &kitchen.Screen{ID: uuid.New(), Name: "Grill", ConfigID: uuid.New(), Active: true}
	screens := &MockScreens{screens: map[kitchen.ScreenID]*kitchen.Screen{screen.ID: screen}}
	details := &MockDetails{
		GetDetailsFunc: func(ctx context.Context, configID kitchen.ConfigID, screenID kitchen.ScreenID) (*kitchen.ScreenDetails, error) {
			return nil, kitchen.ErrStorage
		},
	}

	g := New(nil, screens, details, apt.NewNoopLogger())
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { g.Stop(context.Background()) })

	r := chi.NewRouter()
	g.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, screen.ID.String()), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Errorf("ReadMessage() error = %v, want internal error close", err)
	}
}
