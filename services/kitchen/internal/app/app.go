package app

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/apt/middleware"
	"github.com/grafnet-dev/kitchenscreens/pkg"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/events"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/gateway"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/lock"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/repair"
	"github.com/redis/go-redis/v9"
)

const (
	AppName    = "kitchen"
	AppVersion = "0.1.0"

	lockPrefix = "kitchenscreens:lock:"
)

// App encapsulates the kitchen screen service
type App struct {
	config  *apt.Config
	logger  apt.Logger
	micro   *apt.Micro
	backend Backend
}

func New(config *apt.Config, logger apt.Logger) (*App, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// Initialize connects the store and the bus and wires every component.
func (a *App) Initialize(ctx context.Context) error {
	backend, err := NewBackend(a.config, a.logger)
	if err != nil {
		return err
	}
	if err := backend.Start(ctx); err != nil {
		return fmt.Errorf("cannot start store: %w", err)
	}
	a.backend = backend

	natsURL := a.config.GetStringOrDef("nats.url", pkg.DefaultNATSURL)
	publisher, err := pkg.NewNATSPublisher(natsURL)
	if err != nil {
		return err
	}
	subscriber, err := pkg.NewNATSSubscriber(natsURL, a.logger)
	if err != nil {
		return err
	}

	locker, redisClient := a.newLocker()

	index := kitchen.NewCategoryIndex(backend, a.logger)
	engine := kitchen.NewAssignmentEngine(index, a.logger)
	dispatcher := kitchen.NewDispatcher(publisher, a.logger)
	coordinator := kitchen.NewCoordinator(kitchen.CoordinatorDeps{
		Store:      backend,
		Index:      index,
		Engine:     engine,
		Dispatcher: dispatcher,
		Locker:     locker,
	}, a.logger)
	registry := kitchen.NewScreenRegistry(backend, index, dispatcher, publisher, a.logger)
	queries := kitchen.NewQueries(backend, index, a.logger)

	if err := kitchen.ApplyDemoSeeds(ctx, a.config, backend, registry, SeedTracker(backend), a.logger); err != nil {
		a.logger.Errorf("Demo seeding failed (non-fatal): %v", err)
	}

	submissionSource, closeSource, err := a.submissionSource(ctx, natsURL, subscriber)
	if err != nil {
		return err
	}

	screenSub := events.NewScreenChangeSubscriber(subscriber, index, a.logger)
	submissionSub := events.NewSubmissionSubscriber(submissionSource, coordinator, a.logger)
	screenGateway := gateway.New(subscriber, registry, queries, a.logger)

	interval, err := repair.IntervalFromConfig(a.config)
	if err != nil {
		return err
	}
	repairJob := repair.NewScheduler(coordinator, interval, a.logger)

	handler := kitchen.NewHandler(kitchen.HandlerDeps{
		Coordinator: coordinator,
		Registry:    registry,
		Queries:     queries,
	}, a.config, a.logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})
	stack = append(stack, middleware.InternalOnly())

	lifecycles := []interface{}{
		apt.LifecycleHooks{OnStop: backend.Stop},
	}

	// Warm the index once the store is reachable
	indexLifecycle := apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			if err := index.Warm(ctx); err != nil {
				a.logger.Info("failed to warm category index", "error", err)
			}
			return nil
		},
	}
	lifecycles = append(lifecycles, indexLifecycle, screenSub, submissionSub, screenGateway, repairJob)

	lifecycles = append(lifecycles,
		apt.LifecycleHooks{OnStop: func(context.Context) error { return closeSource() }},
		apt.LifecycleHooks{OnStop: func(context.Context) error { return subscriber.Close() }},
		apt.LifecycleHooks{OnStop: func(context.Context) error { return publisher.Close() }},
	)
	if redisClient != nil {
		lifecycles = append(lifecycles, apt.LifecycleHooks{
			OnStart: func(ctx context.Context) error {
				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("cannot reach redis: %w", err)
				}
				return nil
			},
			OnStop: func(context.Context) error { return redisClient.Close() },
		})
	}

	options := []apt.Option{
		apt.WithConfig(a.config),
		apt.WithLogger(a.logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler, screenGateway),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(AppName),
	}

	a.micro = apt.NewMicro(options...)
	return nil
}

// newLocker returns a redis backed lock when redis.addr is set so several
// instances serialize on the same order; otherwise an in-process one.
func (a *App) newLocker() (kitchen.Locker, *redis.Client) {
	addr, _ := a.config.GetString("redis.addr")
	if addr == "" {
		a.logger.Info("Using in-process order lock")
		return lock.NewKeyedMutex(), nil
	}

	password, _ := a.config.GetString("redis.password")
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	a.logger.Info("Using redis order lock", "addr", addr)
	return lock.NewRedisLocker(client, lockPrefix, lock.DefaultLockTTL, a.logger), client
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)
	if err := a.micro.Run(ctx); err != nil {
		if a.backend != nil {
			_ = a.backend.Stop(context.Background())
		}
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}

// submissionSource returns the subscriber terminal batches are read from.
// With nats.stream.enabled the batches go through a durable JetStream
// consumer; otherwise the plain core subscription is shared.
func (a *App) submissionSource(ctx context.Context, natsURL string, core aptevents.Subscriber) (aptevents.Subscriber, func() error, error) {
	enabled, _ := a.config.GetString("nats.stream.enabled")
	if enabled != "true" {
		return core, func() error { return nil }, nil
	}

	stream, err := pkg.NewNATSStream(ctx, pkg.NATSStreamConfig{
		URL:          natsURL,
		StreamName:   a.config.GetStringOrDef("nats.stream.name", pkg.DefaultSubmissionStream),
		Subject:      event.POSOrdersTopic,
		ConsumerName: a.config.GetStringOrDef("nats.stream.consumer", pkg.DefaultSubmissionConsumer),
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("Order batches consumed from durable stream", "subject", event.POSOrdersTopic)
	return stream, stream.Close, nil
}
