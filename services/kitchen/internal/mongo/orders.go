package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg/enums/orderstatus"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type lineDoc struct {
	kitchen.OrderLine `bson:",inline"`
	Position          int `bson:"position"`
}

func (s *Store) CreateOrder(ctx context.Context, o *kitchen.Order) error {
	if o.ScreenIDs == nil {
		o.ScreenIDs = []kitchen.ScreenID{}
	}
	if _, err := s.col(colOrders).InsertOne(ctx, o); err != nil {
		return fmt.Errorf("cannot insert order: %w", mapErr(err))
	}
	return nil
}

func (s *Store) SaveOrder(ctx context.Context, o *kitchen.Order) error {
	update := bson.M{"$set": bson.M{
		"name":          o.Name,
		"reference":     o.Reference,
		"config_id":     o.ConfigID,
		"session_id":    o.SessionID,
		"table_name":    o.TableName,
		"floor":         o.Floor,
		"status":        o.Status,
		"paid":          o.Paid,
		"is_cooking":    o.IsCooking,
		"amount_total":  o.AmountTotal,
		"amount_paid":   o.AmountPaid,
		"amount_tax":    o.AmountTax,
		"amount_return": o.AmountReturn,
		"updated_at":    o.UpdatedAt,
	}}

	result, err := s.col(colOrders).UpdateOne(ctx, bson.M{"_id": o.ID}, update)
	if err != nil {
		return fmt.Errorf("cannot update order: %w", mapErr(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("order %s: %w", o.ID, kitchen.ErrNotFound)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id kitchen.OrderID) (*kitchen.Order, error) {
	var o kitchen.Order
	ok, err := s.findOne(ctx, colOrders, bson.M{"_id": id}, &o)
	if err != nil {
		return nil, fmt.Errorf("cannot find order: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) FindOrderByReference(ctx context.Context, configID kitchen.ConfigID, reference string) (*kitchen.Order, error) {
	query := bson.M{"reference": reference}
	if configID != uuid.Nil {
		query["config_id"] = configID
	}

	var o kitchen.Order
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	ok, err := s.findOne(ctx, colOrders, query, &o, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find order by reference: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, filter kitchen.OrderFilter) ([]*kitchen.Order, error) {
	query := bson.M{}
	if filter.ConfigID != nil {
		query["config_id"] = *filter.ConfigID
	}
	if filter.ScreenID != nil {
		query["screen_ids"] = *filter.ScreenID
	}

	status := bson.M{}
	if len(filter.Statuses) > 0 {
		status["$in"] = filter.Statuses
	}
	if filter.ExcludeCancelled {
		status["$ne"] = orderstatus.Statuses.Cancel.Code()
	}
	if len(status) > 0 {
		query["status"] = status
	}

	if filter.CookingOnly {
		query["is_cooking"] = true
	}
	if filter.Since != nil {
		query["created_at"] = bson.M{"$gte": *filter.Since}
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: 1},
	})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.col(colOrders).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []*kitchen.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}
	return orders, nil
}

func (s *Store) ReplaceOrderScreens(ctx context.Context, orderID kitchen.OrderID, screenIDs []kitchen.ScreenID) error {
	unique := make([]kitchen.ScreenID, 0, len(screenIDs))
	seen := make(map[kitchen.ScreenID]struct{}, len(screenIDs))
	for _, id := range screenIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	result, err := s.col(colOrders).UpdateOne(ctx, bson.M{"_id": orderID}, bson.M{"$set": bson.M{"screen_ids": unique}})
	if err != nil {
		return fmt.Errorf("cannot update order screens: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("order %s: %w", orderID, kitchen.ErrNotFound)
	}
	return nil
}

func (s *Store) ListOrderLines(ctx context.Context, orderID kitchen.OrderID) ([]*kitchen.OrderLine, error) {
	return s.ListLinesForOrders(ctx, []kitchen.OrderID{orderID})
}

func (s *Store) ListLinesForOrders(ctx context.Context, orderIDs []kitchen.OrderID) ([]*kitchen.OrderLine, error) {
	lines := []*kitchen.OrderLine{}
	if len(orderIDs) == 0 {
		return lines, nil
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "order_id", Value: 1},
		{Key: "position", Value: 1},
	})
	cursor, err := s.col(colLines).Find(ctx, bson.M{"order_id": bson.M{"$in": orderIDs}}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find order lines: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []lineDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cannot decode order lines: %w", err)
	}
	for i := range docs {
		line := docs[i].OrderLine
		lines = append(lines, &line)
	}
	return lines, nil
}

func (s *Store) ReplaceLines(ctx context.Context, orderID kitchen.OrderID, lines []*kitchen.OrderLine) error {
	if _, err := s.col(colLines).DeleteMany(ctx, bson.M{"order_id": orderID}); err != nil {
		return fmt.Errorf("cannot delete order lines: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	docs := make([]interface{}, len(lines))
	for i, l := range lines {
		l.OrderID = orderID
		docs[i] = lineDoc{OrderLine: *l, Position: i}
	}
	if _, err := s.col(colLines).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("cannot insert order lines: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetOrderLine(ctx context.Context, id kitchen.LineID) (*kitchen.OrderLine, error) {
	var doc lineDoc
	ok, err := s.findOne(ctx, colLines, bson.M{"_id": id}, &doc)
	if err != nil {
		return nil, fmt.Errorf("cannot find order line: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &doc.OrderLine, nil
}

func (s *Store) SaveOrderLine(ctx context.Context, l *kitchen.OrderLine) error {
	update := bson.M{"$set": bson.M{
		"product_name": l.ProductName,
		"qty":          l.Qty,
		"price_unit":   l.PriceUnit,
		"note":         l.Note,
		"is_cooking":   l.IsCooking,
		"status":       l.Status,
		"updated_at":   l.UpdatedAt,
	}}

	result, err := s.col(colLines).UpdateOne(ctx, bson.M{"_id": l.ID}, update)
	if err != nil {
		return fmt.Errorf("cannot update order line: %w", mapErr(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("order line %s: %w", l.ID, kitchen.ErrNotFound)
	}
	return nil
}
