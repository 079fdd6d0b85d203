package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg/enums/orderstatus"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"gorm.io/gorm"
)

func (s *Store) CreateOrder(ctx context.Context, o *kitchen.Order) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		row := fromOrder(o)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("cannot create order: %w", mapErr(err))
		}
		return insertOrderScreens(tx, o.ID, o.ScreenIDs)
	})
}

func (s *Store) SaveOrder(ctx context.Context, o *kitchen.Order) error {
	row := fromOrder(o)
	if err := s.conn(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("cannot save order: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id kitchen.OrderID) (*kitchen.Order, error) {
	var row orderRow
	err := s.conn(ctx).Where("id = ?", id.String()).Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot get order: %w", err)
	}
	orders, err := s.withScreens(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return orders[0], nil
}

func (s *Store) FindOrderByReference(ctx context.Context, configID kitchen.ConfigID, reference string) (*kitchen.Order, error) {
	q := s.conn(ctx).Where("reference = ?", reference)
	if configID != uuid.Nil {
		q = q.Where("config_id = ?", configID.String())
	}

	var row orderRow
	err := q.Order("created_at").Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot find order by reference: %w", err)
	}
	orders, err := s.withScreens(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return orders[0], nil
}

// ListOrders returns matching orders newest first.
func (s *Store) ListOrders(ctx context.Context, filter kitchen.OrderFilter) ([]*kitchen.Order, error) {
	db := s.conn(ctx)
	q := db.Model(&orderRow{})
	if filter.ConfigID != nil {
		q = q.Where("config_id = ?", filter.ConfigID.String())
	}
	if filter.ScreenID != nil {
		sub := db.Model(&orderScreenRow{}).Select("order_id").Where("screen_id = ?", filter.ScreenID.String())
		q = q.Where("id IN (?)", sub)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.CookingOnly {
		q = q.Where("is_cooking = ?", true)
	}
	if filter.ExcludeCancelled {
		q = q.Where("status <> ?", orderstatus.Statuses.Cancel.Code())
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []orderRow
	if err := q.Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	return s.withScreens(ctx, rows)
}

func (s *Store) ReplaceOrderScreens(ctx context.Context, orderID kitchen.OrderID, screenIDs []kitchen.ScreenID) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID.String()).Delete(&orderScreenRow{}).Error; err != nil {
			return fmt.Errorf("cannot clear order screens: %w", err)
		}
		return insertOrderScreens(tx, orderID, screenIDs)
	})
}

func (s *Store) ListOrderLines(ctx context.Context, orderID kitchen.OrderID) ([]*kitchen.OrderLine, error) {
	return s.ListLinesForOrders(ctx, []kitchen.OrderID{orderID})
}

func (s *Store) ListLinesForOrders(ctx context.Context, orderIDs []kitchen.OrderID) ([]*kitchen.OrderLine, error) {
	if len(orderIDs) == 0 {
		return []*kitchen.OrderLine{}, nil
	}
	var rows []orderLineRow
	err := s.conn(ctx).
		Where("order_id IN ?", idStrings(orderIDs)).
		Order("order_id").Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("cannot list order lines: %w", err)
	}
	out := make([]*kitchen.OrderLine, len(rows))
	for i, r := range rows {
		out[i] = toLine(r)
	}
	return out, nil
}

func (s *Store) ReplaceLines(ctx context.Context, orderID kitchen.OrderID, lines []*kitchen.OrderLine) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID.String()).Delete(&orderLineRow{}).Error; err != nil {
			return fmt.Errorf("cannot clear order lines: %w", err)
		}
		if len(lines) == 0 {
			return nil
		}
		rows := make([]orderLineRow, len(lines))
		for i, l := range lines {
			l.OrderID = orderID
			rows[i] = fromLine(l, i)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("cannot insert order lines: %w", mapErr(err))
		}
		return nil
	})
}

func (s *Store) GetOrderLine(ctx context.Context, id kitchen.LineID) (*kitchen.OrderLine, error) {
	var row orderLineRow
	err := s.conn(ctx).Where("id = ?", id.String()).Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot get order line: %w", err)
	}
	return toLine(row), nil
}

// SaveOrderLine updates an existing line in place and keeps its position.
func (s *Store) SaveOrderLine(ctx context.Context, l *kitchen.OrderLine) error {
	res := s.conn(ctx).Model(&orderLineRow{}).
		Where("id = ?", l.ID.String()).
		Updates(map[string]interface{}{
			"product_name": l.ProductName,
			"qty":          l.Qty,
			"price_unit":   l.PriceUnit,
			"note":         l.Note,
			"is_cooking":   l.IsCooking,
			"status":       l.Status,
			"updated_at":   l.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("cannot save order line: %w", mapErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order line %s: %w", l.ID, kitchen.ErrNotFound)
	}
	return nil
}

func (s *Store) withScreens(ctx context.Context, rows []orderRow) ([]*kitchen.Order, error) {
	out := make([]*kitchen.Order, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var links []orderScreenRow
	err := s.conn(ctx).
		Where("order_id IN ?", ids).
		Order("order_id").Order("position").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("cannot list order screens: %w", err)
	}
	byOrder := make(map[string][]kitchen.ScreenID, len(rows))
	for _, l := range links {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], parseID(l.ScreenID))
	}

	for i, r := range rows {
		o := toOrder(r)
		if screens := byOrder[r.ID]; screens != nil {
			o.ScreenIDs = screens
		}
		out[i] = o
	}
	return out, nil
}

func insertOrderScreens(tx *gorm.DB, orderID kitchen.OrderID, screenIDs []kitchen.ScreenID) error {
	if len(screenIDs) == 0 {
		return nil
	}
	rows := make([]orderScreenRow, 0, len(screenIDs))
	seen := make(map[kitchen.ScreenID]struct{}, len(screenIDs))
	for _, sid := range screenIDs {
		if _, ok := seen[sid]; ok {
			continue
		}
		seen[sid] = struct{}{}
		rows = append(rows, orderScreenRow{OrderID: orderID.String(), ScreenID: sid.String(), Position: len(rows)})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("cannot assign order screens: %w", mapErr(err))
	}
	return nil
}
