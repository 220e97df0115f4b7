package db

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	upsertCategorySQL = `INSERT INTO categories (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertRestaurantSQL = `INSERT INTO restaurants (id, name, lon, lat, rating, review_count, enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, lon = EXCLUDED.lon, lat = EXCLUDED.lat,
    rating = EXCLUDED.rating, review_count = EXCLUDED.review_count, enabled = EXCLUDED.enabled`

	clearRestaurantCategoriesSQL = `DELETE FROM restaurant_categories WHERE restaurant_id = $1`
	insertRestaurantCategorySQL  = `INSERT INTO restaurant_categories (restaurant_id, category_id) VALUES ($1, $2)`

	upsertProductSQL = `INSERT INTO products (id, name, restaurant_id, category_id, rating, review_count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, restaurant_id = EXCLUDED.restaurant_id,
    category_id = EXCLUDED.category_id, rating = EXCLUDED.rating, review_count = EXCLUDED.review_count`

	clearProductSizesSQL = `DELETE FROM product_sizes WHERE product_id = $1`
	insertProductSizeSQL = `INSERT INTO product_sizes (product_id, size, price, position) VALUES ($1, $2, $3, $4)`
)

// Seeded rows carry explicit ids; the sequences are moved past them.
var resetSequenceSQL = []string{
	`SELECT setval(pg_get_serial_sequence('categories', 'id'), GREATEST((SELECT MAX(id) FROM categories), 1))`,
	`SELECT setval(pg_get_serial_sequence('restaurants', 'id'), GREATEST((SELECT MAX(id) FROM restaurants), 1))`,
	`SELECT setval(pg_get_serial_sequence('products', 'id'), GREATEST((SELECT MAX(id) FROM products), 1))`,
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LoadData upserts the seed restaurants and products in one transaction.
// Seeded aggregates replace the stored ones, the same as a re-index does.
func (s *PostgisStore) LoadData(ctx context.Context, restaurantsPath, productsPath string) error {
	data, err := readSeed(restaurantsPath, productsPath)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := writeSeed(ctx, tx, data); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	s.logger.Info("Seed loaded", "restaurants", len(data.restaurants), "products", len(data.products))
	return nil
}

func writeSeed(ctx context.Context, ex execer, data *seed) error {
	exec := func(query string, args ...any) error {
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("seed statement failed: %w\nSQL: %s", err, query)
		}
		return nil
	}

	categories := make(map[int64]string)
	var order []int64
	addCategory := func(id int64, name string) {
		if _, ok := categories[id]; !ok {
			order = append(order, id)
		}
		categories[id] = name
	}
	for _, r := range data.restaurants {
		for _, cat := range r.Categories {
			addCategory(cat.ID, cat.Name)
		}
	}
	for _, p := range data.products {
		addCategory(p.Category.ID, p.Category.Name)
	}
	for _, id := range order {
		if err := exec(upsertCategorySQL, id, categories[id]); err != nil {
			return err
		}
	}

	for _, r := range data.restaurants {
		if err := exec(upsertRestaurantSQL, r.ID, r.Name, r.Location.Lon, r.Location.Lat,
			r.Rating, r.ReviewCount, r.Enabled); err != nil {
			return err
		}
		if err := exec(clearRestaurantCategoriesSQL, r.ID); err != nil {
			return err
		}
		for _, cat := range r.Categories {
			if err := exec(insertRestaurantCategorySQL, r.ID, cat.ID); err != nil {
				return err
			}
		}
	}

	for _, p := range data.products {
		if err := exec(upsertProductSQL, p.ID, p.Name, p.Restaurant.ID, p.Category.ID,
			p.Rating, p.ReviewCount); err != nil {
			return err
		}
		if err := exec(clearProductSizesSQL, p.ID); err != nil {
			return err
		}
		for i, tier := range p.Prices {
			if err := exec(insertProductSizeSQL, p.ID, tier.Size, tier.Price, i); err != nil {
				return err
			}
		}
	}

	for _, stmt := range resetSequenceSQL {
		if err := exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
