// Package search validates discovery requests and turns them into store-level
// spatial queries: mandatory origin, radius clamp, case-folded filters and the
// per-entity sort policy.
package search

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"FoodFinder/src/apperr"
	"FoodFinder/src/types"
)

const (
	MaxRadiusMeters = 20000
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Query is a caller-level discovery request. Origin is nil when the caller did
// not send coordinates.
type Query struct {
	Origin       *types.GeoPoint
	RadiusMeters *int
	Filters      types.Filters
	Sort         types.Sort
	Page         types.PageRequest
}

type Service struct {
	store types.SpatialStore
}

func NewService(store types.SpatialStore) *Service {
	return &Service{store: store}
}

func (s *Service) SearchRestaurants(ctx context.Context, q Query) (types.Page[types.Restaurant], error) {
	sq, err := buildQuery(q, restaurantSort)
	if err != nil {
		return types.Page[types.Restaurant]{}, err
	}
	// price bounds only apply to products
	sq.Filters.MinPrice, sq.Filters.MaxPrice = nil, nil

	page, err := s.store.FindRestaurants(ctx, sq)
	if err != nil {
		return types.Page[types.Restaurant]{}, fmt.Errorf("failed to search restaurants: %w", err)
	}
	return page, nil
}

func (s *Service) SearchProducts(ctx context.Context, q Query) (types.Page[types.Product], error) {
	sq, err := buildQuery(q, productSort)
	if err != nil {
		return types.Page[types.Product]{}, err
	}

	page, err := s.store.FindProducts(ctx, sq)
	if err != nil {
		return types.Page[types.Product]{}, fmt.Errorf("failed to search products: %w", err)
	}
	return page, nil
}

func (s *Service) GetRestaurant(ctx context.Context, id int64) (*types.Restaurant, error) {
	return s.store.FindRestaurant(ctx, id)
}

// EffectiveRadius clamps the requested radius to MaxRadiusMeters.
func EffectiveRadius(r *int) int {
	if r == nil || *r > MaxRadiusMeters {
		return MaxRadiusMeters
	}
	return *r
}

// Restaurants never sort by distance in the store; it is attached later by
// enrichment.
func restaurantSort(s types.Sort) types.Sort {
	switch s {
	case types.SortRatingAsc, types.SortRatingDesc:
		return s
	default:
		return types.SortDefault
	}
}

func productSort(s types.Sort) types.Sort {
	switch s {
	case types.SortRatingAsc, types.SortRatingDesc, types.SortLocationAsc, types.SortLocationDesc:
		return s
	default:
		return types.SortDefault
	}
}

func buildQuery(q Query, sortPolicy func(types.Sort) types.Sort) (types.SpatialQuery, error) {
	if q.Origin == nil {
		return types.SpatialQuery{}, apperr.InvalidRequest("coordinates are mandatory")
	}
	if err := ValidatePoint(*q.Origin); err != nil {
		return types.SpatialQuery{}, err
	}

	page, err := normalizePage(q.Page)
	if err != nil {
		return types.SpatialQuery{}, err
	}

	filters := types.Filters{
		Categories: NormalizeCategories(q.Filters.Categories),
		Search:     Fold(strings.TrimSpace(q.Filters.Search)),
		MinPrice:   q.Filters.MinPrice,
		MaxPrice:   q.Filters.MaxPrice,
	}

	return types.SpatialQuery{
		Origin:       *q.Origin,
		RadiusMeters: EffectiveRadius(q.RadiusMeters),
		Filters:      filters,
		Sort:         sortPolicy(types.Sort(strings.ToLower(string(q.Sort)))),
		Page:         page,
	}, nil
}

func ValidatePoint(p types.GeoPoint) error {
	if p.Lon < -180 || p.Lon > 180 {
		return apperr.InvalidRequest("longitude %v out of range [-180, 180]", p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return apperr.InvalidRequest("latitude %v out of range [-90, 90]", p.Lat)
	}
	return nil
}

func normalizePage(p types.PageRequest) (types.PageRequest, error) {
	if p.Page < 0 {
		return types.PageRequest{}, apperr.InvalidRequest("page index must not be negative")
	}
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p, nil
}

// Fold returns the case-folded form used for every case-insensitive match.
// Indexed names and categories are folded the same way at write time.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// NormalizeCategories folds, trims and de-duplicates category names, keeping
// first-seen order. Blank entries are dropped.
func NormalizeCategories(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		folded := Fold(strings.TrimSpace(name))
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
