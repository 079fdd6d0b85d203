package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
)

// Invalidator drops cached screen sets. *kitchen.CategoryIndex satisfies it.
type Invalidator interface {
	Invalidate(configID kitchen.ConfigID)
	InvalidateAll()
}

// Submitter accepts terminal order batches. *kitchen.Coordinator satisfies it.
type Submitter interface {
	CreateOrUpdateKitchenOrders(ctx context.Context, subs []kitchen.OrderSubmission) kitchen.BatchResult
}

// ScreenChangeSubscriber keeps the local category index in step with registry
// mutations made by any instance.
type ScreenChangeSubscriber struct {
	subscriber events.Subscriber
	index      Invalidator
	logger     apt.Logger
}

func NewScreenChangeSubscriber(subscriber events.Subscriber, index Invalidator, logger apt.Logger) *ScreenChangeSubscriber {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &ScreenChangeSubscriber{
		subscriber: subscriber,
		index:      index,
		logger:     logger,
	}
}

func (s *ScreenChangeSubscriber) Start(ctx context.Context) error {
	s.logger.Infof("Starting ScreenChangeSubscriber for topic: %s", event.ScreensChangedTopic)

	if err := s.subscriber.Subscribe(ctx, event.ScreensChangedTopic, s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.ScreensChangedTopic, err)
	}

	s.logger.Info("ScreenChangeSubscriber started successfully")
	return nil
}

func (s *ScreenChangeSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	var evt event.ScreenChangedEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		s.logger.Errorf("Failed to unmarshal screen change: %v", err)
		return nil
	}

	configID, err := uuid.Parse(evt.ConfigID)
	if err != nil {
		// Without a terminal we cannot tell which entry is stale.
		s.logger.Info("Screen change without terminal, dropping whole index", "screen_id", evt.ScreenID)
		s.index.InvalidateAll()
		return nil
	}

	s.index.Invalidate(configID)
	s.logger.Debug("Category index invalidated", "config_id", configID, "event_type", evt.EventType)
	return nil
}

// SubmissionSubscriber feeds batches published by terminals into the
// coordinator. Per-order failures are logged and never redelivered.
type SubmissionSubscriber struct {
	subscriber events.Subscriber
	submitter  Submitter
	logger     apt.Logger
}

func NewSubmissionSubscriber(subscriber events.Subscriber, submitter Submitter, logger apt.Logger) *SubmissionSubscriber {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &SubmissionSubscriber{
		subscriber: subscriber,
		submitter:  submitter,
		logger:     logger,
	}
}

func (s *SubmissionSubscriber) Start(ctx context.Context) error {
	s.logger.Infof("Starting SubmissionSubscriber for topic: %s", event.POSOrdersTopic)

	if err := s.subscriber.Subscribe(ctx, event.POSOrdersTopic, s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.POSOrdersTopic, err)
	}

	s.logger.Info("SubmissionSubscriber started successfully")
	return nil
}

func (s *SubmissionSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	var evt event.POSOrdersSubmittedEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		s.logger.Errorf("Failed to unmarshal order batch: %v", err)
		return nil
	}

	if evt.EventType != "" && evt.EventType != event.EventPOSOrdersSubmit {
		s.logger.Infof("Unknown event type: %s", evt.EventType)
		return nil
	}

	var subs []kitchen.OrderSubmission
	if err := json.Unmarshal(evt.Orders, &subs); err != nil {
		s.logger.Errorf("Failed to decode submitted orders: %v", err)
		return nil
	}
	if len(subs) == 0 {
		return nil
	}

	// A batch scoped to one terminal may omit config_id per order.
	if configID, err := uuid.Parse(evt.ConfigID); err == nil {
		for i := range subs {
			if subs[i].ConfigID == uuid.Nil {
				subs[i].ConfigID = configID
			}
		}
	}

	result := s.submitter.CreateOrUpdateKitchenOrders(ctx, subs)

	failed := 0
	for _, item := range result.Items {
		if item.Err != nil {
			failed++
			s.logger.Error("Submitted order rejected", "reference", item.Reference, "error", item.Err)
		}
	}
	s.logger.Info("Processed order batch", "orders", len(subs), "created_or_updated", len(result.OrderIDs), "failed", failed)
	return nil
}
