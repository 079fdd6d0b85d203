package mongo

import (
	"context"
	"fmt"

	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreateScreen(ctx context.Context, sc *kitchen.Screen) error {
	if len(sc.CategoryIDs) == 0 {
		return fmt.Errorf("%w: a screen needs at least one category", kitchen.ErrInvalid)
	}
	if _, err := s.col(colScreens).InsertOne(ctx, sc); err != nil {
		return fmt.Errorf("cannot insert screen: %w", mapErr(err))
	}
	return nil
}

func (s *Store) SaveScreen(ctx context.Context, sc *kitchen.Screen) error {
	if len(sc.CategoryIDs) == 0 {
		return fmt.Errorf("%w: a screen needs at least one category", kitchen.ErrInvalid)
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.col(colScreens).ReplaceOne(ctx, bson.M{"_id": sc.ID}, sc, opts); err != nil {
		return fmt.Errorf("cannot save screen: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetScreen(ctx context.Context, id kitchen.ScreenID) (*kitchen.Screen, error) {
	var sc kitchen.Screen
	ok, err := s.findOne(ctx, colScreens, bson.M{"_id": id}, &sc)
	if err != nil {
		return nil, fmt.Errorf("cannot find screen: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

func (s *Store) FindScreenByCode(ctx context.Context, code string) (*kitchen.Screen, error) {
	var sc kitchen.Screen
	ok, err := s.findOne(ctx, colScreens, bson.M{"code": code}, &sc)
	if err != nil {
		return nil, fmt.Errorf("cannot find screen by code: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

func (s *Store) ListScreens(ctx context.Context, filter kitchen.ScreenFilter) ([]*kitchen.Screen, error) {
	query := bson.M{}
	if filter.ConfigID != nil {
		query["config_id"] = *filter.ConfigID
	}
	if filter.ActiveOnly {
		query["active"] = true
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "display_order", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := s.col(colScreens).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find screens: %w", err)
	}
	defer cursor.Close(ctx)

	screens := []*kitchen.Screen{}
	if err := cursor.All(ctx, &screens); err != nil {
		return nil, fmt.Errorf("cannot decode screens: %w", err)
	}
	return screens, nil
}
