package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultURL  = "mongodb://localhost:27017"
	DefaultName = "kitchenscreens"
)

const (
	colConfigs    = "terminal_configs"
	colSessions   = "terminal_sessions"
	colCategories = "categories"
	colProducts   = "products"
	colScreens    = "kitchen_screens"
	colOrders     = "kitchen_orders"
	colLines      = "kitchen_order_lines"
)

// Store implements kitchen.Store on MongoDB. Assignments are embedded in the
// order document; lines live in their own collection.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	config *apt.Config
	logger apt.Logger

	// Transactions need a replica set. Standalone servers run units without one.
	transactions bool
}

func NewStore(config *apt.Config, logger apt.Logger) *Store {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Store{config: config, logger: logger, transactions: true}
}

func (s *Store) Start(ctx context.Context) error {
	mongoURL := s.config.GetStringOrDef("db.mongo.url", DefaultURL)
	dbName := s.config.GetStringOrDef("db.mongo.name", DefaultName)
	s.transactions = s.config.GetStringOrDef("db.mongo.transactions", "true") != "false"

	clientOptions := options.Client().ApplyURI(mongoURL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	s.client = client
	s.db = client.Database(dbName)

	if err := s.ensureIndexes(ctx); err != nil {
		return err
	}

	s.logger.Infof("Connected to MongoDB: %s, database: %s", mongoURL, dbName)
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	if s.client != nil {
		if err := s.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		s.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

// Database exposes the handle for the seed tracker.
func (s *Store) Database() *mongo.Database {
	return s.db
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repo kitchen.Repo) error) error {
	if !s.transactions {
		return fn(ctx, s)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("cannot start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{colConfigs, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}}},
		{colSessions, mongo.IndexModel{Keys: bson.D{{Key: "config_id", Value: 1}}}},
		{colScreens, mongo.IndexModel{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{colScreens, mongo.IndexModel{Keys: bson.D{
			{Key: "config_id", Value: 1},
			{Key: "active", Value: 1},
			{Key: "display_order", Value: 1},
		}}},
		{colOrders, mongo.IndexModel{
			Keys:    bson.D{{Key: "config_id", Value: 1}, {Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{colOrders, mongo.IndexModel{Keys: bson.D{{Key: "screen_ids", Value: 1}}}},
		{colOrders, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}}},
		{colLines, mongo.IndexModel{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "position", Value: 1}}}},
	}

	for _, idx := range indexes {
		if _, err := s.db.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("cannot create %s index: %w", idx.collection, err)
		}
	}
	return nil
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// findOne decodes the first match into dst and reports whether one existed.
func (s *Store) findOne(ctx context.Context, collection string, filter interface{}, dst interface{}, opts ...*options.FindOneOptions) (bool, error) {
	err := s.col(collection).FindOne(ctx, filter, opts...).Decode(dst)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", kitchen.ErrConflict, err)
	}
	return err
}
