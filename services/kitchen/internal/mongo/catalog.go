package mongo

import (
	"context"
	"fmt"

	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreateConfig(ctx context.Context, c *kitchen.TerminalConfig) error {
	if _, err := s.col(colConfigs).InsertOne(ctx, c); err != nil {
		return fmt.Errorf("cannot insert terminal config: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context, id kitchen.ConfigID) (*kitchen.TerminalConfig, error) {
	var c kitchen.TerminalConfig
	ok, err := s.findOne(ctx, colConfigs, bson.M{"_id": id}, &c)
	if err != nil {
		return nil, fmt.Errorf("cannot find terminal config: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) FindConfigByName(ctx context.Context, name string) (*kitchen.TerminalConfig, error) {
	var c kitchen.TerminalConfig
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	ok, err := s.findOne(ctx, colConfigs, bson.M{"name": name}, &c, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find terminal config by name: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) ListConfigs(ctx context.Context) ([]*kitchen.TerminalConfig, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.col(colConfigs).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find terminal configs: %w", err)
	}
	defer cursor.Close(ctx)

	configs := []*kitchen.TerminalConfig{}
	if err := cursor.All(ctx, &configs); err != nil {
		return nil, fmt.Errorf("cannot decode terminal configs: %w", err)
	}
	return configs, nil
}

func (s *Store) CreateSession(ctx context.Context, ss *kitchen.Session) error {
	if _, err := s.col(colSessions).InsertOne(ctx, ss); err != nil {
		return fmt.Errorf("cannot insert session: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id kitchen.SessionID) (*kitchen.Session, error) {
	var ss kitchen.Session
	ok, err := s.findOne(ctx, colSessions, bson.M{"_id": id}, &ss)
	if err != nil {
		return nil, fmt.Errorf("cannot find session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &ss, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *kitchen.Category) error {
	if _, err := s.col(colCategories).InsertOne(ctx, c); err != nil {
		return fmt.Errorf("cannot insert category: %w", mapErr(err))
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]*kitchen.Category, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.col(colCategories).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find categories: %w", err)
	}
	defer cursor.Close(ctx)

	categories := []*kitchen.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("cannot decode categories: %w", err)
	}
	return categories, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *kitchen.Product) error {
	if p.CategoryIDs == nil {
		p.CategoryIDs = []kitchen.CategoryID{}
	}
	if _, err := s.col(colProducts).InsertOne(ctx, p); err != nil {
		return fmt.Errorf("cannot insert product: %w", mapErr(err))
	}
	return nil
}

func (s *Store) SaveProduct(ctx context.Context, p *kitchen.Product) error {
	if p.CategoryIDs == nil {
		p.CategoryIDs = []kitchen.CategoryID{}
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.col(colProducts).ReplaceOne(ctx, bson.M{"_id": p.ID}, p, opts); err != nil {
		return fmt.Errorf("cannot save product: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id kitchen.ProductID) (*kitchen.Product, error) {
	var p kitchen.Product
	ok, err := s.findOne(ctx, colProducts, bson.M{"_id": id}, &p)
	if err != nil {
		return nil, fmt.Errorf("cannot find product: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, ids []kitchen.ProductID) ([]*kitchen.Product, error) {
	products := []*kitchen.Product{}
	if len(ids) == 0 {
		return products, nil
	}

	cursor, err := s.col(colProducts).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("cannot find products: %w", err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("cannot decode products: %w", err)
	}
	return products, nil
}
