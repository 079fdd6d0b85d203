package sqlstore

import (
	"context"
	"fmt"

	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"gorm.io/gorm"
)

func (s *Store) CreateScreen(ctx context.Context, sc *kitchen.Screen) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		row := fromScreen(sc)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("cannot create screen: %w", mapErr(err))
		}
		return replaceScreenCategories(tx, sc)
	})
}

func (s *Store) SaveScreen(ctx context.Context, sc *kitchen.Screen) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		row := fromScreen(sc)
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("cannot save screen: %w", mapErr(err))
		}
		return replaceScreenCategories(tx, sc)
	})
}

func (s *Store) GetScreen(ctx context.Context, id kitchen.ScreenID) (*kitchen.Screen, error) {
	var row screenRow
	err := s.conn(ctx).Where("id = ?", id.String()).Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot get screen: %w", err)
	}
	screens, err := s.withCategories(ctx, []screenRow{row})
	if err != nil {
		return nil, err
	}
	return screens[0], nil
}

func (s *Store) FindScreenByCode(ctx context.Context, code string) (*kitchen.Screen, error) {
	var row screenRow
	err := s.conn(ctx).Where("code = ?", code).Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot find screen by code: %w", err)
	}
	screens, err := s.withCategories(ctx, []screenRow{row})
	if err != nil {
		return nil, err
	}
	return screens[0], nil
}

func (s *Store) ListScreens(ctx context.Context, filter kitchen.ScreenFilter) ([]*kitchen.Screen, error) {
	q := s.conn(ctx).Model(&screenRow{})
	if filter.ConfigID != nil {
		q = q.Where("config_id = ?", filter.ConfigID.String())
	}
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}

	var rows []screenRow
	if err := q.Order("display_order").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("cannot list screens: %w", err)
	}
	return s.withCategories(ctx, rows)
}

func (s *Store) withCategories(ctx context.Context, rows []screenRow) ([]*kitchen.Screen, error) {
	out := make([]*kitchen.Screen, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var links []screenCategoryRow
	if err := s.conn(ctx).Where("screen_id IN ?", ids).Order("category_id").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("cannot list screen categories: %w", err)
	}
	byScreen := make(map[string][]kitchen.CategoryID, len(rows))
	for _, l := range links {
		byScreen[l.ScreenID] = append(byScreen[l.ScreenID], parseID(l.CategoryID))
	}

	for i, r := range rows {
		sc := toScreen(r)
		if cats := byScreen[r.ID]; cats != nil {
			sc.CategoryIDs = cats
		}
		out[i] = sc
	}
	return out, nil
}

func replaceScreenCategories(tx *gorm.DB, sc *kitchen.Screen) error {
	if len(sc.CategoryIDs) == 0 {
		return fmt.Errorf("%w: a screen needs at least one category", kitchen.ErrInvalid)
	}
	if err := tx.Where("screen_id = ?", sc.ID.String()).Delete(&screenCategoryRow{}).Error; err != nil {
		return fmt.Errorf("cannot clear screen categories: %w", err)
	}
	links := make([]screenCategoryRow, 0, len(sc.CategoryIDs))
	seen := make(map[string]struct{}, len(sc.CategoryIDs))
	for _, cid := range sc.CategoryIDs {
		key := cid.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		links = append(links, screenCategoryRow{ScreenID: sc.ID.String(), CategoryID: key})
	}
	if err := tx.Create(&links).Error; err != nil {
		return fmt.Errorf("cannot link screen categories: %w", mapErr(err))
	}
	return nil
}
