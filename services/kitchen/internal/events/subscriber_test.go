package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
)

// MockSubscriber implements events.Subscriber for testing
type MockSubscriber struct {
	SubscribeFunc func(ctx context.Context, topic string, handler events.HandlerFunc) error
}

func (m *MockSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, topic, handler)
	}
	return nil
}

// MockIndex records invalidations
type MockIndex struct {
	invalidated []kitchen.ConfigID
	all         int
}

func (m *MockIndex) Invalidate(configID kitchen.ConfigID) {
	m.invalidated = append(m.invalidated, configID)
}

func (m *MockIndex) InvalidateAll() {
	m.all++
}

// MockSubmitter records submitted batches
type MockSubmitter struct {
	batches    [][]kitchen.OrderSubmission
	SubmitFunc func(ctx context.Context, subs []kitchen.OrderSubmission) kitchen.BatchResult
}

func (m *MockSubmitter) CreateOrUpdateKitchenOrders(ctx context.Context, subs []kitchen.OrderSubmission) kitchen.BatchResult {
	m.batches = append(m.batches, subs)
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, subs)
	}
	return kitchen.BatchResult{}
}

func TestScreenChangeSubscriberStart(t *testing.T) {
	tests := []struct {
		name    string
		subErr  error
		wantErr bool
	}{
		{name: "subscribes", subErr: nil, wantErr: false},
		{name: "subscribeFails", subErr: errors.New("no connection"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTopic string
			sub := &MockSubscriber{
				SubscribeFunc: func(ctx context.Context, topic string, handler events.HandlerFunc) error {
					gotTopic = topic
					return tt.subErr
				},
			}
			s := NewScreenChangeSubscriber(sub, &MockIndex{}, apt.NewNoopLogger())

			err := s.Start(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotTopic != event.ScreensChangedTopic {
				t.Errorf("Start() topic = %q, want %q", gotTopic, event.ScreensChangedTopic)
			}
		})
	}
}

func TestScreenChangeSubscriberHandleEvent(t *testing.T) {
	configID := uuid.New()

	tests := []struct {
		name            string
		msg             []byte
		wantInvalidated int
		wantAll         int
	}{
		{
			name:            "invalidatesTerminal",
			msg:             mustJSON(t, event.ScreenChangedEvent{EventType: event.EventScreenUpdated, ConfigID: configID.String(), ScreenID: uuid.NewString()}),
			wantInvalidated: 1,
		},
		{
			name:    "missingTerminalDropsAll",
			msg:     mustJSON(t, event.ScreenChangedEvent{EventType: event.EventScreenCreated}),
			wantAll: 1,
		},
		{
			name: "malformedIgnored",
			msg:  []byte("{not json"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &MockIndex{}
			s := NewScreenChangeSubscriber(&MockSubscriber{}, idx, apt.NewNoopLogger())

			if err := s.handleEvent(context.Background(), tt.msg); err != nil {
				t.Fatalf("handleEvent() error = %v", err)
			}
			if len(idx.invalidated) != tt.wantInvalidated {
				t.Errorf("Invalidate() calls = %d, want %d", len(idx.invalidated), tt.wantInvalidated)
			}
			if tt.wantInvalidated > 0 && idx.invalidated[0] != configID {
				t.Errorf("Invalidate() config = %v, want %v", idx.invalidated[0], configID)
			}
			if idx.all != tt.wantAll {
				t.Errorf("InvalidateAll() calls = %d, want %d", idx.all, tt.wantAll)
			}
		})
	}
}

func TestSubmissionSubscriberHandleEvent(t *testing.T) {
	configID := uuid.New()
	otherConfig := uuid.New()
	sessionID := uuid.New()
	productID := uuid.New()

	orders := []map[string]interface{}{
		{
			"pos_reference": "Order 0001",
			"session_id":    sessionID,
			"lines":         []map[string]interface{}{{"product_id": productID, "qty": 2}},
		},
		{
			"pos_reference": "Order 0002",
			"config_id":     otherConfig,
			"session_id":    sessionID,
		},
	}
	raw, err := json.Marshal(orders)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		msg         []byte
		wantBatches int
	}{
		{
			name: "submitsBatch",
			msg: mustJSON(t, event.POSOrdersSubmittedEvent{
				EventType:  event.EventPOSOrdersSubmit,
				OccurredAt: time.Now(),
				ConfigID:   configID.String(),
				Orders:     raw,
			}),
			wantBatches: 1,
		},
		{
			name:        "unknownEventIgnored",
			msg:         mustJSON(t, event.POSOrdersSubmittedEvent{EventType: "pos.orders.other", Orders: raw}),
			wantBatches: 0,
		},
		{
			name:        "emptyBatchIgnored",
			msg:         mustJSON(t, event.POSOrdersSubmittedEvent{EventType: event.EventPOSOrdersSubmit, Orders: json.RawMessage("[]")}),
			wantBatches: 0,
		},
		{
			name:        "malformedIgnored",
			msg:         []byte("nope"),
			wantBatches: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitter := &MockSubmitter{
				SubmitFunc: func(ctx context.Context, subs []kitchen.OrderSubmission) kitchen.BatchResult {
					return kitchen.BatchResult{Items: []kitchen.SubmissionResult{{Reference: subs[0].Reference, Err: kitchen.ErrInvalid}}}
				},
			}
			s := NewSubmissionSubscriber(&MockSubscriber{}, submitter, apt.NewNoopLogger())

			if err := s.handleEvent(context.Background(), tt.msg); err != nil {
				t.Fatalf("handleEvent() error = %v", err)
			}
			if len(submitter.batches) != tt.wantBatches {
				t.Fatalf("CreateOrUpdateKitchenOrders() calls = %d, want %d", len(submitter.batches), tt.wantBatches)
			}
			if tt.wantBatches == 0 {
				return
			}

			subs := submitter.batches[0]
			if len(subs) != 2 {
				t.Fatalf("submissions = %d, want 2", len(subs))
			}
			if subs[0].ConfigID != configID {
				t.Errorf("first config = %v, want batch config %v", subs[0].ConfigID, configID)
			}
			if subs[1].ConfigID != otherConfig {
				t.Errorf("second config = %v, want own config %v", subs[1].ConfigID, otherConfig)
			}
			if len(subs[0].Lines) != 1 || subs[0].Lines[0].ProductID != productID {
				t.Errorf("first lines = %+v, want one line for %v", subs[0].Lines, productID)
			}
		})
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return data
}

func TestSubscribersWithNilLogger(t *testing.T) {
	batch := mustJSON(t, event.POSOrdersSubmittedEvent{
		EventType: event.EventPOSOrdersSubmit,
		Orders:    json.RawMessage(`[{"pos_reference":"Order 0003"}]`),
	})
	changed := mustJSON(t, event.ScreenChangedEvent{
		EventType: event.EventScreenUpdated,
		ConfigID:  uuid.NewString(),
	})

	submissions := NewSubmissionSubscriber(&MockSubscriber{}, &MockSubmitter{}, nil)
	changes := NewScreenChangeSubscriber(&MockSubscriber{}, &MockIndex{}, nil)

	tests := []struct {
		name   string
		start  func(ctx context.Context) error
		handle func(ctx context.Context, msg []byte) error
		msg    []byte
	}{
		{name: "submissionSubscriber", start: submissions.Start, handle: submissions.handleEvent, msg: batch},
		{name: "screenChangeSubscriber", start: changes.Start, handle: changes.handleEvent, msg: changed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if err := tt.handle(context.Background(), tt.msg); err != nil {
				t.Errorf("handleEvent() error = %v", err)
			}
			if err := tt.handle(context.Background(), []byte("nope")); err != nil {
				t.Errorf("handleEvent(malformed) error = %v", err)
			}
		})
	}
}
