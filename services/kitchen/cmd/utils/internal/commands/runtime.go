package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/app"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
)

// Runtime is the slice of the service a command needs: the store and the
// engine components, publishing on the bus when one is reachable.
type Runtime struct {
	Backend     app.Backend
	Coordinator *kitchen.Coordinator
	Registry    *kitchen.ScreenRegistry
	Queries     *kitchen.Queries
	logger      apt.Logger
	closers     []func() error
}

// Open connects the configured store. When withBus is set the NATS publisher
// is connected too so notifications reach the screens.
func Open(ctx context.Context, config *apt.Config, logger apt.Logger, withBus bool) (*Runtime, error) {
	backend, err := app.NewBackend(config, logger)
	if err != nil {
		return nil, err
	}
	if err := backend.Start(ctx); err != nil {
		return nil, fmt.Errorf("cannot start store: %w", err)
	}

	rt := &Runtime{Backend: backend, logger: logger}
	rt.closers = append(rt.closers, func() error { return backend.Stop(context.Background()) })

	var publisher events.Publisher
	if withBus {
		natsURL := config.GetStringOrDef("nats.url", pkg.DefaultNATSURL)
		p, err := pkg.NewNATSPublisher(natsURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		publisher = p
		rt.closers = append(rt.closers, p.Close)
	}

	return rt.wire(publisher), nil
}

// NewRuntime wires the components over an already started store.
func NewRuntime(backend app.Backend, publisher events.Publisher, logger apt.Logger) *Runtime {
	rt := &Runtime{Backend: backend, logger: logger}
	return rt.wire(publisher)
}

func (rt *Runtime) wire(publisher events.Publisher) *Runtime {
	index := kitchen.NewCategoryIndex(rt.Backend, rt.logger)
	dispatcher := kitchen.NewDispatcher(publisher, rt.logger)
	rt.Coordinator = kitchen.NewCoordinator(kitchen.CoordinatorDeps{
		Store:      rt.Backend,
		Index:      index,
		Dispatcher: dispatcher,
	}, rt.logger)
	rt.Registry = kitchen.NewScreenRegistry(rt.Backend, index, dispatcher, publisher, rt.logger)
	rt.Queries = kitchen.NewQueries(rt.Backend, index, rt.logger)
	return rt
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Error("cannot close resource", "error", err)
		}
	}
	rt.closers = nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUUID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return id, nil
}

// parseUUIDList reads a comma separated id list. Empty input yields nil.
func parseUUIDList(name, raw string) ([]uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := parseUUID(name, part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
