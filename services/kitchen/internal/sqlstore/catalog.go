package sqlstore

import (
	"context"
	"fmt"

	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
	"gorm.io/gorm"
)

func (s *Store) CreateConfig(ctx context.Context, c *kitchen.TerminalConfig) error {
	row := configRow{ID: c.ID.String(), Name: c.Name, CreatedAt: c.CreatedAt}
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("cannot create terminal config: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context, id kitchen.ConfigID) (*kitchen.TerminalConfig, error) {
	var row configRow
	err := s.conn(ctx).Where("id = ?", id.String()).Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot get terminal config: %w", err)
	}
	return toConfig(row), nil
}

func (s *Store) FindConfigByName(ctx context.Context, name string) (*kitchen.TerminalConfig, error) {
	var row configRow
	err := s.conn(ctx).Where("name = ?", name).Order("created_at").Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot find terminal config: %w", err)
	}
	return toConfig(row), nil
}

func (s *Store) ListConfigs(ctx context.Context) ([]*kitchen.TerminalConfig, error) {
	var rows []configRow
	if err := s.conn(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("cannot list terminal configs: %w", err)
	}
	out := make([]*kitchen.TerminalConfig, len(rows))
	for i, r := range rows {
		out[i] = toConfig(r)
	}
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, ss *kitchen.Session) error {
	row := sessionRow{
		ID:        ss.ID.String(),
		ConfigID:  ss.ConfigID.String(),
		Name:      ss.Name,
		State:     ss.State,
		CreatedAt: ss.CreatedAt,
	}
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("cannot create session: %w", mapErr(err))
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id kitchen.SessionID) (*kitchen.Session, error) {
	var row sessionRow
	err := s.conn(ctx).Where("id = ?", id.String()).Take(&row).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot get session: %w", err)
	}
	return toSession(row), nil
}

func (s *Store) CreateCategory(ctx context.Context, c *kitchen.Category) error {
	row := categoryRow{ID: c.ID.String(), Name: c.Name}
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("cannot create category: %w", mapErr(err))
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]*kitchen.Category, error) {
	var rows []categoryRow
	if err := s.conn(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("cannot list categories: %w", err)
	}
	out := make([]*kitchen.Category, len(rows))
	for i, r := range rows {
		out[i] = &kitchen.Category{ID: parseID(r.ID), Name: r.Name}
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *kitchen.Product) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		row := productRow{ID: p.ID.String(), Name: p.Name}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("cannot create product: %w", mapErr(err))
		}
		return insertProductCategories(tx, p)
	})
}

// SaveProduct updates the name and replaces the category membership.
func (s *Store) SaveProduct(ctx context.Context, p *kitchen.Product) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		row := productRow{ID: p.ID.String(), Name: p.Name}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("cannot save product: %w", mapErr(err))
		}
		if err := tx.Where("product_id = ?", row.ID).Delete(&productCategoryRow{}).Error; err != nil {
			return fmt.Errorf("cannot clear product categories: %w", err)
		}
		return insertProductCategories(tx, p)
	})
}

func (s *Store) GetProduct(ctx context.Context, id kitchen.ProductID) (*kitchen.Product, error) {
	products, err := s.ListProducts(ctx, []kitchen.ProductID{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	return products[0], nil
}

func (s *Store) ListProducts(ctx context.Context, ids []kitchen.ProductID) ([]*kitchen.Product, error) {
	if len(ids) == 0 {
		return []*kitchen.Product{}, nil
	}
	keys := idStrings(ids)

	var rows []productRow
	if err := s.conn(ctx).Where("id IN ?", keys).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("cannot list products: %w", err)
	}

	var links []productCategoryRow
	if err := s.conn(ctx).Where("product_id IN ?", keys).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("cannot list product categories: %w", err)
	}
	byProduct := make(map[string][]kitchen.CategoryID, len(rows))
	for _, l := range links {
		byProduct[l.ProductID] = append(byProduct[l.ProductID], parseID(l.CategoryID))
	}

	out := make([]*kitchen.Product, len(rows))
	for i, r := range rows {
		cats := byProduct[r.ID]
		if cats == nil {
			cats = []kitchen.CategoryID{}
		}
		out[i] = &kitchen.Product{ID: parseID(r.ID), Name: r.Name, CategoryIDs: cats}
	}
	return out, nil
}

func insertProductCategories(tx *gorm.DB, p *kitchen.Product) error {
	if len(p.CategoryIDs) == 0 {
		return nil
	}
	links := make([]productCategoryRow, 0, len(p.CategoryIDs))
	seen := make(map[string]struct{}, len(p.CategoryIDs))
	for _, cid := range p.CategoryIDs {
		key := cid.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		links = append(links, productCategoryRow{ProductID: p.ID.String(), CategoryID: key})
	}
	if err := tx.Create(&links).Error; err != nil {
		return fmt.Errorf("cannot link product categories: %w", mapErr(err))
	}
	return nil
}
