package db

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/olivere/elastic/v7"
	"github.com/shopspring/decimal"

	"FoodFinder/src/types"
)

func sourceJSON(c *qt.C, src *elastic.SearchSource) map[string]interface{} {
	c.Helper()
	raw, err := src.Source()
	c.Assert(err, qt.IsNil)
	b, err := json.Marshal(raw)
	c.Assert(err, qt.IsNil)
	var out map[string]interface{}
	c.Assert(json.Unmarshal(b, &out), qt.IsNil)
	return out
}

func queryJSON(c *qt.C, q elastic.Query) string {
	c.Helper()
	raw, err := q.Source()
	c.Assert(err, qt.IsNil)
	b, err := json.Marshal(raw)
	c.Assert(err, qt.IsNil)
	return string(b)
}

func sortFields(c *qt.C, src map[string]interface{}) []string {
	c.Helper()
	sorts, ok := src["sort"].([]interface{})
	c.Assert(ok, qt.IsTrue)
	var fields []string
	for _, s := range sorts {
		for k := range s.(map[string]interface{}) {
			fields = append(fields, k)
		}
	}
	return fields
}

func spatialQuery() types.SpatialQuery {
	return types.SpatialQuery{
		Origin:       types.GeoPoint{Lon: 106.70, Lat: 10.77},
		RadiusMeters: 1500,
		Page:         types.PageRequest{Page: 1, Size: 10},
	}
}

func TestRestaurantQuery(t *testing.T) {
	c := qt.New(t)

	q := spatialQuery()
	q.Filters.Categories = []string{"pizza", "sushi"}
	q.Filters.Search = "pho"

	body := queryJSON(c, restaurantQuery(q))
	c.Assert(body, qt.Contains, `{"term":{"enabled":true}}`)
	c.Assert(body, qt.Contains, `"distance":"1500m"`)
	c.Assert(body, qt.Contains, `{"terms":{"category_keys":["pizza","sushi"]}}`)
	c.Assert(body, qt.Contains, `"*pho*"`)
}

func TestRestaurantQueryWithoutOptionalFilters(t *testing.T) {
	c := qt.New(t)

	body := queryJSON(c, restaurantQuery(spatialQuery()))
	c.Assert(body, qt.Not(qt.Contains), "terms")
	c.Assert(body, qt.Not(qt.Contains), "wildcard")
}

func TestRestaurantSearchSource(t *testing.T) {
	c := qt.New(t)

	q := spatialQuery()
	q.Sort = types.SortRatingDesc
	src := sourceJSON(c, restaurantSearchSource(q, restaurantQuery(q)))

	c.Assert(src["from"], qt.Equals, float64(10))
	c.Assert(src["size"], qt.Equals, float64(10))
	c.Assert(sortFields(c, src), qt.DeepEquals, []string{"rating", "id"})
	c.Assert(src["collapse"], qt.IsNil)
}

func TestRestaurantSearchSourceIgnoresLocationSort(t *testing.T) {
	c := qt.New(t)

	q := spatialQuery()
	q.Sort = types.SortLocationAsc
	src := sourceJSON(c, restaurantSearchSource(q, restaurantQuery(q)))
	c.Assert(sortFields(c, src), qt.DeepEquals, []string{"id"})
}

func TestProductSearchSource(t *testing.T) {
	c := qt.New(t)

	q := spatialQuery()
	q.Sort = types.SortLocationAsc
	src := sourceJSON(c, productSearchSource(q, productQuery(q)))

	c.Assert(src["collapse"], qt.DeepEquals, map[string]interface{}{"field": "id"})
	c.Assert(sortFields(c, src), qt.DeepEquals, []string{"_geo_distance", "id"})
}

func TestProductQueryPriceRange(t *testing.T) {
	c := qt.New(t)

	lo := decimal.RequireFromString("5.50")
	hi := decimal.RequireFromString("9")
	q := spatialQuery()
	q.Filters.MinPrice = &lo
	q.Filters.MaxPrice = &hi
	q.Filters.Categories = []string{"drinks"}

	body := queryJSON(c, productQuery(q))
	c.Assert(body, qt.Contains, `{"term":{"restaurant.enabled":true}}`)
	c.Assert(body, qt.Contains, `{"terms":{"category_key":["drinks"]}}`)
	c.Assert(body, qt.Contains, `"path":"prices"`)
	c.Assert(body, qt.Contains, `"prices.price"`)
	c.Assert(body, qt.Contains, `"from":5.5`)
	c.Assert(body, qt.Contains, `"to":9`)
}

func TestEscapeWildcard(t *testing.T) {
	c := qt.New(t)
	c.Assert(escapeWildcard(`a*b?c\d`), qt.Equals, `a\*b\?c\\d`)
}

func TestDocumentConversion(t *testing.T) {
	c := qt.New(t)

	r := types.Restaurant{
		ID:          7,
		Name:        "Phở Hòa",
		Location:    types.GeoPoint{Lon: 106.70, Lat: 10.77},
		Rating:      4.5,
		ReviewCount: 2,
		Enabled:     true,
		Categories:  []types.Category{{ID: 1, Name: "Noodles"}},
	}
	rd := newRestaurantDoc(r)
	c.Assert(rd.NameFolded, qt.Equals, "phở hòa")
	c.Assert(rd.CategoryKeys, qt.DeepEquals, []string{"noodles"})
	c.Assert(rd.toRestaurant(), qt.DeepEquals, r)

	p := types.Product{
		ID:         3,
		Name:       "Bun Cha",
		Category:   types.Category{ID: 2, Name: "Mains"},
		Restaurant: types.RestaurantRef{ID: 7, Name: r.Name, Location: r.Location},
		Prices:     []types.PriceTier{{Size: "M", Price: decimal.RequireFromString("7.25")}},
	}
	pd := newProductDoc(p, false)
	c.Assert(pd.Restaurant.Enabled, qt.IsFalse)
	c.Assert(pd.CategoryKey, qt.Equals, "mains")

	back := pd.toProduct()
	c.Assert(back.Prices, qt.HasLen, 1)
	c.Assert(back.Prices[0].Price.Equal(p.Prices[0].Price), qt.IsTrue)
	c.Assert(back.Restaurant, qt.Equals, p.Restaurant)
}
