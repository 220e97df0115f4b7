// Package discovery runs the nearby-restaurant and nearby-product pipelines:
// spatial search, one routing-provider round trip, then merge.
//
// Restaurant pages are merged by position and product pages by restaurant
// identity. The two strategies are deliberately separate: a product page may
// reference the same restaurant several times while the provider is asked
// about each distinct restaurant once.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"FoodFinder/src/apperr"
	"FoodFinder/src/distance"
	"FoodFinder/src/search"
	"FoodFinder/src/types"
)

type Searcher interface {
	SearchRestaurants(ctx context.Context, q search.Query) (types.Page[types.Restaurant], error)
	SearchProducts(ctx context.Context, q search.Query) (types.Page[types.Product], error)
	GetRestaurant(ctx context.Context, id int64) (*types.Restaurant, error)
}

type Enricher interface {
	Matrix(ctx context.Context, origin types.GeoPoint, destinations []types.GeoPoint) (distance.Matrix, error)
	Route(ctx context.Context, origin, destination types.GeoPoint) (types.EnrichedLocation, error)
}

type Service struct {
	searcher Searcher
	enricher Enricher
	logger   *slog.Logger
}

func NewService(searcher Searcher, enricher Enricher) *Service {
	return &Service{searcher: searcher, enricher: enricher, logger: slog.Default()}
}

// WithLogger sets the logger for the service
func (s *Service) WithLogger(l *slog.Logger) *Service {
	tmp := *s
	tmp.logger = l
	return &tmp
}

func (s *Service) DiscoverRestaurants(ctx context.Context, q search.Query) (types.Page[types.EnrichedRestaurant], error) {
	page, err := s.searcher.SearchRestaurants(ctx, q)
	if err != nil {
		return types.Page[types.EnrichedRestaurant]{}, err
	}

	out := types.Page[types.EnrichedRestaurant]{
		Content: make([]types.EnrichedRestaurant, 0, len(page.Content)),
		Total:   page.Total,
		Page:    page.Page,
		Size:    page.Size,
	}
	if len(page.Content) == 0 {
		s.logger.DebugContext(ctx, "Restaurants discovered", "results", 0, "total", out.Total, "destinations", 0)
		return out, nil
	}

	destinations := make([]types.GeoPoint, len(page.Content))
	for i, r := range page.Content {
		destinations[i] = r.Location
	}

	m, err := s.enricher.Matrix(ctx, *q.Origin, destinations)
	if err != nil {
		return types.Page[types.EnrichedRestaurant]{}, fmt.Errorf("failed to enrich restaurants: %w", err)
	}

	travel, err := zipPositional(m, len(destinations))
	if err != nil {
		return types.Page[types.EnrichedRestaurant]{}, err
	}
	for i, r := range page.Content {
		out.Content = append(out.Content, types.EnrichedRestaurant{Restaurant: r, Travel: &travel[i]})
	}

	s.logger.DebugContext(ctx, "Restaurants discovered",
		"results", len(out.Content), "total", out.Total, "destinations", len(destinations))
	return out, nil
}

func (s *Service) DiscoverProducts(ctx context.Context, q search.Query) (types.Page[types.EnrichedProduct], error) {
	page, err := s.searcher.SearchProducts(ctx, q)
	if err != nil {
		return types.Page[types.EnrichedProduct]{}, err
	}

	out := types.Page[types.EnrichedProduct]{
		Content: make([]types.EnrichedProduct, 0, len(page.Content)),
		Total:   page.Total,
		Page:    page.Page,
		Size:    page.Size,
	}
	if len(page.Content) == 0 {
		s.logger.DebugContext(ctx, "Products discovered", "results", 0, "total", out.Total, "destinations", 0)
		return out, nil
	}

	restaurants := distinctRestaurants(page.Content)
	destinations := make([]types.GeoPoint, len(restaurants))
	for i, r := range restaurants {
		destinations[i] = r.Location
	}

	m, err := s.enricher.Matrix(ctx, *q.Origin, destinations)
	if err != nil {
		return types.Page[types.EnrichedProduct]{}, fmt.Errorf("failed to enrich products: %w", err)
	}

	travel, err := zipPositional(m, len(destinations))
	if err != nil {
		return types.Page[types.EnrichedProduct]{}, err
	}
	byRestaurant := make(map[int64]types.EnrichedLocation, len(restaurants))
	for i, r := range restaurants {
		byRestaurant[r.ID] = travel[i]
	}

	for _, p := range page.Content {
		loc := byRestaurant[p.Restaurant.ID]
		out.Content = append(out.Content, types.EnrichedProduct{Product: p, Travel: &loc})
	}

	s.logger.DebugContext(ctx, "Products discovered",
		"results", len(out.Content), "total", out.Total, "destinations", len(destinations))
	return out, nil
}

// GetRestaurantDetail returns one restaurant, enriched with a point-to-point
// route when the viewer sent coordinates.
func (s *Service) GetRestaurantDetail(ctx context.Context, id int64, origin *types.GeoPoint) (*types.EnrichedRestaurant, error) {
	if origin != nil {
		if err := search.ValidatePoint(*origin); err != nil {
			return nil, err
		}
	}

	r, err := s.searcher.GetRestaurant(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &types.EnrichedRestaurant{Restaurant: *r}
	if origin == nil {
		return out, nil
	}

	loc, err := s.enricher.Route(ctx, *origin, r.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to route to restaurant %d: %w", id, err)
	}
	out.Travel = &loc
	return out, nil
}

// distinctRestaurants keeps the first occurrence of every restaurant in page order.
func distinctRestaurants(products []types.Product) []types.RestaurantRef {
	seen := make(map[int64]struct{}, len(products))
	out := make([]types.RestaurantRef, 0, len(products))
	for _, p := range products {
		if _, ok := seen[p.Restaurant.ID]; ok {
			continue
		}
		seen[p.Restaurant.ID] = struct{}{}
		out = append(out, p.Restaurant)
	}
	return out
}

func zipPositional(m distance.Matrix, n int) ([]types.EnrichedLocation, error) {
	if len(m.Distances) != n || len(m.Durations) != n {
		return nil, apperr.Distance(nil, "distance provider returned %d/%d results for %d destinations",
			len(m.Distances), len(m.Durations), n)
	}
	out := make([]types.EnrichedLocation, n)
	for i := range out {
		out[i] = types.EnrichedLocation{DistanceMeters: m.Distances[i], DurationSeconds: m.Durations[i]}
	}
	return out, nil
}
