package app

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/mongo"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/sqlstore"
)

const DriverMongo = "mongo"

// Backend is a kitchen store with a connection lifecycle.
type Backend interface {
	kitchen.Store
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NewBackend picks the store named by db.driver. Postgres is the default.
func NewBackend(config *apt.Config, logger apt.Logger) (Backend, error) {
	driver := config.GetStringOrDef("db.driver", sqlstore.DriverPostgres)
	switch driver {
	case sqlstore.DriverPostgres, sqlstore.DriverSQLite:
		return sqlstore.New(config, logger), nil
	case DriverMongo:
		return mongo.NewStore(config, logger), nil
	default:
		return nil, fmt.Errorf("unsupported db.driver %q", driver)
	}
}

// SeedTracker returns a tracker that records applied seeds, or nil when the
// backend has none. Seeds still run without one since each is idempotent.
func SeedTracker(b Backend) seed.Tracker {
	if m, ok := b.(*mongo.Store); ok && m.Database() != nil {
		return seed.NewMongoTracker(m.Database())
	}
	return nil
}
