package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"FoodFinder/src/apperr"
	"FoodFinder/src/types"
)

// originSQL is the query origin as a geography; it always binds $1 (lon) and
// $2 (lat).
const originSQL = "ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography"

// PostgisStore answers spatial queries straight from the relational schema.
type PostgisStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgisStore(db *sql.DB) *PostgisStore {
	return &PostgisStore{db: db, logger: slog.Default()}
}

// WithLogger sets the logger for the store
func (s *PostgisStore) WithLogger(l *slog.Logger) *PostgisStore {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// sqlQuery is a list statement and a count statement sharing one predicate.
type sqlQuery struct {
	List      string
	ListArgs  []interface{}
	Count     string
	CountArgs []interface{}
}

type argList []interface{}

func (a *argList) add(v interface{}) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func likePattern(s string) string {
	return "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s) + "%"
}

func buildRestaurantQuery(q types.SpatialQuery) sqlQuery {
	args := argList{q.Origin.Lon, q.Origin.Lat}
	where := []string{
		"r.enabled",
		"ST_DWithin(r.geog, " + originSQL + ", " + args.add(float64(q.RadiusMeters)) + ")",
	}
	if len(q.Filters.Categories) > 0 {
		where = append(where, "EXISTS (SELECT 1 FROM restaurant_categories rc JOIN categories c ON c.id = rc.category_id"+
			" WHERE rc.restaurant_id = r.id AND lower(c.name) = ANY("+args.add(q.Filters.Categories)+"))")
	}
	if q.Filters.Search != "" {
		where = append(where, "lower(r.name) LIKE "+args.add(likePattern(q.Filters.Search))+` ESCAPE '\'`)
	}

	from := " FROM restaurants r WHERE " + strings.Join(where, " AND ")
	order := "r.id ASC"
	switch q.Sort {
	case types.SortRatingAsc:
		order = "r.rating ASC, r.id ASC"
	case types.SortRatingDesc:
		order = "r.rating DESC, r.id ASC"
	}

	countArgs := append([]interface{}(nil), args...)
	list := "SELECT r.id, r.name, r.lon, r.lat, r.rating, r.review_count, r.enabled" + from +
		" ORDER BY " + order +
		" LIMIT " + args.add(q.Page.Size) + " OFFSET " + args.add(q.Page.Offset())

	return sqlQuery{
		List:      list,
		ListArgs:  args,
		Count:     "SELECT count(*)" + from,
		CountArgs: countArgs,
	}
}

func buildProductQuery(q types.SpatialQuery) sqlQuery {
	args := argList{q.Origin.Lon, q.Origin.Lat}
	where := []string{
		"r.enabled",
		"ST_DWithin(r.geog, " + originSQL + ", " + args.add(float64(q.RadiusMeters)) + ")",
	}
	if len(q.Filters.Categories) > 0 {
		where = append(where, "lower(c.name) = ANY("+args.add(q.Filters.Categories)+")")
	}
	if q.Filters.Search != "" {
		where = append(where, "lower(p.name) LIKE "+args.add(likePattern(q.Filters.Search))+` ESCAPE '\'`)
	}
	if q.Filters.MinPrice != nil || q.Filters.MaxPrice != nil {
		// both bounds must hold on the same tier
		var bounds []string
		if q.Filters.MinPrice != nil {
			bounds = append(bounds, "ps.price >= "+args.add(q.Filters.MinPrice.String())+"::numeric")
		}
		if q.Filters.MaxPrice != nil {
			bounds = append(bounds, "ps.price <= "+args.add(q.Filters.MaxPrice.String())+"::numeric")
		}
		where = append(where, "EXISTS (SELECT 1 FROM product_sizes ps WHERE ps.product_id = p.id AND "+
			strings.Join(bounds, " AND ")+")")
	}

	from := " FROM products p" +
		" JOIN restaurants r ON r.id = p.restaurant_id" +
		" JOIN categories c ON c.id = p.category_id" +
		" WHERE " + strings.Join(where, " AND ")

	order := "p.id ASC"
	switch q.Sort {
	case types.SortRatingAsc:
		order = "p.rating ASC, p.id ASC"
	case types.SortRatingDesc:
		order = "p.rating DESC, p.id ASC"
	case types.SortLocationAsc:
		order = "ST_Distance(r.geog, " + originSQL + ") ASC, p.id ASC"
	case types.SortLocationDesc:
		order = "ST_Distance(r.geog, " + originSQL + ") DESC, p.id ASC"
	}

	countArgs := append([]interface{}(nil), args...)
	list := "SELECT p.id, p.name, c.id, c.name, r.id, r.name, r.lon, r.lat, p.rating, p.review_count" + from +
		" ORDER BY " + order +
		" LIMIT " + args.add(q.Page.Size) + " OFFSET " + args.add(q.Page.Offset())

	return sqlQuery{
		List:      list,
		ListArgs:  args,
		Count:     "SELECT count(DISTINCT p.id)" + from,
		CountArgs: countArgs,
	}
}

func (s *PostgisStore) FindRestaurants(ctx context.Context, q types.SpatialQuery) (types.Page[types.Restaurant], error) {
	built := buildRestaurantQuery(q)
	s.logger.DebugContext(ctx, "Searching restaurants", "sql", built.List)

	rows, err := s.db.QueryContext(ctx, built.List, built.ListArgs...)
	if err != nil {
		return types.Page[types.Restaurant]{}, fmt.Errorf("failed to search restaurants: %w", err)
	}
	defer rows.Close()

	restaurants := []types.Restaurant{}
	for rows.Next() {
		var r types.Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.Location.Lon, &r.Location.Lat, &r.Rating, &r.ReviewCount, &r.Enabled); err != nil {
			return types.Page[types.Restaurant]{}, fmt.Errorf("failed to scan restaurant: %w", err)
		}
		restaurants = append(restaurants, r)
	}
	if err := rows.Err(); err != nil {
		return types.Page[types.Restaurant]{}, fmt.Errorf("failed to search restaurants: %w", err)
	}

	if err := s.attachCategories(ctx, restaurants); err != nil {
		return types.Page[types.Restaurant]{}, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, built.Count, built.CountArgs...).Scan(&total); err != nil {
		return types.Page[types.Restaurant]{}, fmt.Errorf("failed to count restaurants: %w", err)
	}

	return types.Page[types.Restaurant]{Content: restaurants, Total: total, Page: q.Page.Page, Size: q.Page.Size}, nil
}

func (s *PostgisStore) FindProducts(ctx context.Context, q types.SpatialQuery) (types.Page[types.Product], error) {
	built := buildProductQuery(q)
	s.logger.DebugContext(ctx, "Searching products", "sql", built.List)

	rows, err := s.db.QueryContext(ctx, built.List, built.ListArgs...)
	if err != nil {
		return types.Page[types.Product]{}, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	products := []types.Product{}
	for rows.Next() {
		var p types.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category.ID, &p.Category.Name,
			&p.Restaurant.ID, &p.Restaurant.Name, &p.Restaurant.Location.Lon, &p.Restaurant.Location.Lat,
			&p.Rating, &p.ReviewCount); err != nil {
			return types.Page[types.Product]{}, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return types.Page[types.Product]{}, fmt.Errorf("failed to search products: %w", err)
	}

	if err := s.attachPrices(ctx, products); err != nil {
		return types.Page[types.Product]{}, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, built.Count, built.CountArgs...).Scan(&total); err != nil {
		return types.Page[types.Product]{}, fmt.Errorf("failed to count products: %w", err)
	}

	return types.Page[types.Product]{Content: products, Total: total, Page: q.Page.Page, Size: q.Page.Size}, nil
}

func (s *PostgisStore) FindRestaurant(ctx context.Context, id int64) (*types.Restaurant, error) {
	var r types.Restaurant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, lon, lat, rating, review_count, enabled FROM restaurants WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.Location.Lon, &r.Location.Lat, &r.Rating, &r.ReviewCount, &r.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("restaurant %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get restaurant %d: %w", id, err)
	}

	one := []types.Restaurant{r}
	if err := s.attachCategories(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (s *PostgisStore) attachCategories(ctx context.Context, restaurants []types.Restaurant) error {
	if len(restaurants) == 0 {
		return nil
	}
	ids := make([]int64, len(restaurants))
	index := make(map[int64]int, len(restaurants))
	for i, r := range restaurants {
		ids[i] = r.ID
		index[r.ID] = i
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rc.restaurant_id, c.id, c.name
		   FROM restaurant_categories rc JOIN categories c ON c.id = rc.category_id
		  WHERE rc.restaurant_id = ANY($1)
		  ORDER BY c.id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load restaurant categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var restaurantID int64
		var cat types.Category
		if err := rows.Scan(&restaurantID, &cat.ID, &cat.Name); err != nil {
			return fmt.Errorf("failed to scan restaurant category: %w", err)
		}
		i := index[restaurantID]
		restaurants[i].Categories = append(restaurants[i].Categories, cat)
	}
	return rows.Err()
}

func (s *PostgisStore) attachPrices(ctx context.Context, products []types.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	index := make(map[int64]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, size, price FROM product_sizes
		  WHERE product_id = ANY($1)
		  ORDER BY product_id, position, size`, ids)
	if err != nil {
		return fmt.Errorf("failed to load price tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var tier types.PriceTier
		if err := rows.Scan(&productID, &tier.Size, &tier.Price); err != nil {
			return fmt.Errorf("failed to scan price tier: %w", err)
		}
		i := index[productID]
		products[i].Prices = append(products[i].Prices, tier)
	}
	return rows.Err()
}
