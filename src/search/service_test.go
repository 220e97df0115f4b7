package search_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/shopspring/decimal"

	"FoodFinder/src/apperr"
	"FoodFinder/src/search"
	"FoodFinder/src/types"
)

type recordingStore struct {
	queries []types.SpatialQuery
	err     error
}

func (s *recordingStore) FindRestaurants(_ context.Context, q types.SpatialQuery) (types.Page[types.Restaurant], error) {
	s.queries = append(s.queries, q)
	return types.Page[types.Restaurant]{Page: q.Page.Page, Size: q.Page.Size}, s.err
}

func (s *recordingStore) FindProducts(_ context.Context, q types.SpatialQuery) (types.Page[types.Product], error) {
	s.queries = append(s.queries, q)
	return types.Page[types.Product]{Page: q.Page.Page, Size: q.Page.Size}, s.err
}

func (s *recordingStore) FindRestaurant(context.Context, int64) (*types.Restaurant, error) {
	return nil, apperr.NotFound("not found")
}

func intPtr(v int) *int { return &v }

var saigon = &types.GeoPoint{Lon: 106.70, Lat: 10.77}

func TestEffectiveRadius(t *testing.T) {
	tests := []struct {
		name     string
		radius   *int
		expected int
	}{
		{name: "absent", radius: nil, expected: 20000},
		{name: "above max", radius: intPtr(50000), expected: 20000},
		{name: "just above max", radius: intPtr(20001), expected: 20000},
		{name: "at max", radius: intPtr(20000), expected: 20000},
		{name: "below max", radius: intPtr(1500), expected: 1500},
		{name: "zero is legal", radius: intPtr(0), expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(search.EffectiveRadius(tt.radius), qt.Equals, tt.expected)

			store := &recordingStore{}
			_, err := search.NewService(store).SearchRestaurants(context.Background(), search.Query{
				Origin:       saigon,
				RadiusMeters: tt.radius,
			})
			c.Assert(err, qt.IsNil)
			c.Assert(store.queries, qt.HasLen, 1)
			c.Assert(store.queries[0].RadiusMeters, qt.Equals, tt.expected)
		})
	}
}

func TestOriginMandatory(t *testing.T) {
	c := qt.New(t)

	store := &recordingStore{}
	svc := search.NewService(store)

	_, err := svc.SearchRestaurants(context.Background(), search.Query{})
	c.Assert(apperr.CodeOf(err), qt.Equals, apperr.CodeInvalidRequest)
	c.Assert(err, qt.ErrorMatches, ".*coordinates are mandatory")

	_, err = svc.SearchProducts(context.Background(), search.Query{})
	c.Assert(apperr.CodeOf(err), qt.Equals, apperr.CodeInvalidRequest)

	_, err = svc.SearchProducts(context.Background(), search.Query{Origin: &types.GeoPoint{Lon: 200, Lat: 10}})
	c.Assert(apperr.CodeOf(err), qt.Equals, apperr.CodeInvalidRequest)

	c.Assert(store.queries, qt.HasLen, 0)
}

func TestFiltersNormalised(t *testing.T) {
	c := qt.New(t)

	store := &recordingStore{}
	minPrice := decimal.NewFromInt(5)
	_, err := search.NewService(store).SearchProducts(context.Background(), search.Query{
		Origin: saigon,
		Filters: types.Filters{
			Categories: []string{" Pizza", "PIZZA", "", "Sushi"},
			Search:     "  MarGheRita ",
			MinPrice:   &minPrice,
		},
	})
	c.Assert(err, qt.IsNil)

	q := store.queries[0]
	c.Assert(q.Filters.Categories, qt.DeepEquals, []string{"pizza", "sushi"})
	c.Assert(q.Filters.Search, qt.Equals, "margherita")
	c.Assert(q.Filters.MinPrice.Equal(minPrice), qt.IsTrue)
	c.Assert(q.Filters.MaxPrice, qt.IsNil)
}

func TestBlankFiltersAreAbsent(t *testing.T) {
	c := qt.New(t)

	store := &recordingStore{}
	_, err := search.NewService(store).SearchRestaurants(context.Background(), search.Query{
		Origin:  saigon,
		Filters: types.Filters{Categories: []string{" ", ""}, Search: "   "},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(store.queries[0].Filters.Categories, qt.IsNil)
	c.Assert(store.queries[0].Filters.Search, qt.Equals, "")
}

func TestRestaurantSearchDropsPriceBounds(t *testing.T) {
	c := qt.New(t)

	store := &recordingStore{}
	maxPrice := decimal.NewFromInt(10)
	_, err := search.NewService(store).SearchRestaurants(context.Background(), search.Query{
		Origin:  saigon,
		Filters: types.Filters{MaxPrice: &maxPrice},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(store.queries[0].Filters.MaxPrice, qt.IsNil)
}

func TestSortPolicy(t *testing.T) {
	tests := []struct {
		requested  types.Sort
		restaurant types.Sort
		product    types.Sort
	}{
		{requested: "", restaurant: types.SortDefault, product: types.SortDefault},
		{requested: "rating_desc", restaurant: types.SortRatingDesc, product: types.SortRatingDesc},
		{requested: "RATING_ASC", restaurant: types.SortRatingAsc, product: types.SortRatingAsc},
		{requested: "location_asc", restaurant: types.SortDefault, product: types.SortLocationAsc},
		{requested: "location_desc", restaurant: types.SortDefault, product: types.SortLocationDesc},
		{requested: "price_asc", restaurant: types.SortDefault, product: types.SortDefault},
	}

	for _, tt := range tests {
		t.Run(string(tt.requested), func(t *testing.T) {
			c := qt.New(t)

			store := &recordingStore{}
			svc := search.NewService(store)
			_, err := svc.SearchRestaurants(context.Background(), search.Query{Origin: saigon, Sort: tt.requested})
			c.Assert(err, qt.IsNil)
			_, err = svc.SearchProducts(context.Background(), search.Query{Origin: saigon, Sort: tt.requested})
			c.Assert(err, qt.IsNil)

			c.Assert(store.queries[0].Sort, qt.Equals, tt.restaurant)
			c.Assert(store.queries[1].Sort, qt.Equals, tt.product)
		})
	}
}

func TestPageNormalisation(t *testing.T) {
	c := qt.New(t)

	store := &recordingStore{}
	svc := search.NewService(store)

	_, err := svc.SearchRestaurants(context.Background(), search.Query{Origin: saigon, Page: types.PageRequest{Page: 2, Size: 0}})
	c.Assert(err, qt.IsNil)
	c.Assert(store.queries[0].Page, qt.Equals, types.PageRequest{Page: 2, Size: search.DefaultPageSize})

	_, err = svc.SearchRestaurants(context.Background(), search.Query{Origin: saigon, Page: types.PageRequest{Size: 1000}})
	c.Assert(err, qt.IsNil)
	c.Assert(store.queries[1].Page.Size, qt.Equals, search.MaxPageSize)

	_, err = svc.SearchRestaurants(context.Background(), search.Query{Origin: saigon, Page: types.PageRequest{Page: -1}})
	c.Assert(apperr.CodeOf(err), qt.Equals, apperr.CodeInvalidRequest)
}

func TestStoreErrorIsWrapped(t *testing.T) {
	c := qt.New(t)

	cause := errors.New("connection refused")
	_, err := search.NewService(&recordingStore{err: cause}).SearchProducts(context.Background(), search.Query{Origin: saigon})
	c.Assert(errors.Is(err, cause), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, "failed to search products: connection refused")
}
