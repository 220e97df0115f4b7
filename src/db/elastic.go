package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/olivere/elastic/v7"
	"github.com/shopspring/decimal"

	"FoodFinder/src/apperr"
	"FoodFinder/src/search"
	"FoodFinder/src/types"
)

//go:embed mappings/restaurants.json
var restaurantMapping string

//go:embed mappings/products.json
var productMapping string

type categoryDoc struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type restaurantDoc struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	NameFolded   string           `json:"name_folded"`
	Location     elastic.GeoPoint `json:"location"`
	Rating       float64          `json:"rating"`
	ReviewCount  int              `json:"review_count"`
	Enabled      bool             `json:"enabled"`
	Categories   []categoryDoc    `json:"categories"`
	CategoryKeys []string         `json:"category_keys"`
}

type restaurantRefDoc struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Location elastic.GeoPoint `json:"location"`
	Enabled  bool             `json:"enabled"`
}

type priceDoc struct {
	Size  string  `json:"size"`
	Price float64 `json:"price"`
}

type productDoc struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	NameFolded  string           `json:"name_folded"`
	Category    categoryDoc      `json:"category"`
	CategoryKey string           `json:"category_key"`
	Restaurant  restaurantRefDoc `json:"restaurant"`
	Rating      float64          `json:"rating"`
	ReviewCount int              `json:"review_count"`
	Prices      []priceDoc       `json:"prices"`
}

type ElasticStore struct {
	Client          *elastic.Client
	RestaurantIndex string
	ProductIndex    string
	logger          *slog.Logger
}

func NewElasticStore(url, restaurantIndex, productIndex string) (*ElasticStore, error) {
	client, err := elastic.NewClient(elastic.SetURL(url), elastic.SetSniff(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticStore{
		Client:          client,
		RestaurantIndex: restaurantIndex,
		ProductIndex:    productIndex,
		logger:          slog.Default(),
	}, nil
}

// WithLogger sets the logger for the store
func (es *ElasticStore) WithLogger(l *slog.Logger) *ElasticStore {
	tmp := *es
	tmp.logger = l
	return &tmp
}

func (es *ElasticStore) Close() {
	es.Client.Stop()
}

// EnsureIndices creates both indices with their mappings when missing.
func (es *ElasticStore) EnsureIndices(ctx context.Context) error {
	if err := es.CreateIndexWithMapping(ctx, es.RestaurantIndex, restaurantMapping); err != nil {
		return err
	}
	return es.CreateIndexWithMapping(ctx, es.ProductIndex, productMapping)
}

func (es *ElasticStore) CreateIndexWithMapping(ctx context.Context, index, mapping string) error {
	exists, err := es.Client.IndexExists(index).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check if index %s exists: %w", index, err)
	}
	if exists {
		es.logger.Info("Index already exists", "index", index)
		return nil
	}

	createIndex, err := es.Client.CreateIndex(index).BodyString(mapping).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	if !createIndex.Acknowledged {
		es.logger.Warn("CreateIndex was not acknowledged. Check that timeout value is correct.", "index", index)
	}

	settings := map[string]interface{}{
		"index": map[string]interface{}{
			"max_result_window": 20000,
		},
	}
	if _, err = es.Client.IndexPutSettings(index).BodyJson(settings).Do(ctx); err != nil {
		return fmt.Errorf("failed to update settings of index %s: %w", index, err)
	}

	es.logger.Info("Index created", "index", index)
	return nil
}

func (es *ElasticStore) FindRestaurants(ctx context.Context, q types.SpatialQuery) (types.Page[types.Restaurant], error) {
	query := restaurantQuery(q)

	searchResult, err := es.Client.Search().
		Index(es.RestaurantIndex).
		SearchSource(restaurantSearchSource(q, query)).
		Do(ctx)
	if err != nil {
		return types.Page[types.Restaurant]{}, fmt.Errorf("failed to search restaurants: %w", err)
	}

	restaurants := make([]types.Restaurant, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		var doc restaurantDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return types.Page[types.Restaurant]{}, fmt.Errorf("failed to decode restaurant %s: %w", hit.Id, err)
		}
		restaurants = append(restaurants, doc.toRestaurant())
	}

	count, err := es.Client.Count(es.RestaurantIndex).Query(query).Do(ctx)
	if err != nil {
		return types.Page[types.Restaurant]{}, fmt.Errorf("failed to count restaurants: %w", err)
	}

	return types.Page[types.Restaurant]{Content: restaurants, Total: count, Page: q.Page.Page, Size: q.Page.Size}, nil
}

func (es *ElasticStore) FindProducts(ctx context.Context, q types.SpatialQuery) (types.Page[types.Product], error) {
	query := productQuery(q)

	searchResult, err := es.Client.Search().
		Index(es.ProductIndex).
		SearchSource(productSearchSource(q, query)).
		Do(ctx)
	if err != nil {
		return types.Page[types.Product]{}, fmt.Errorf("failed to search products: %w", err)
	}

	products := make([]types.Product, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		var doc productDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return types.Page[types.Product]{}, fmt.Errorf("failed to decode product %s: %w", hit.Id, err)
		}
		products = append(products, doc.toProduct())
	}

	count, err := es.Client.Count(es.ProductIndex).Query(query).Do(ctx)
	if err != nil {
		return types.Page[types.Product]{}, fmt.Errorf("failed to count products: %w", err)
	}

	return types.Page[types.Product]{Content: products, Total: count, Page: q.Page.Page, Size: q.Page.Size}, nil
}

func (es *ElasticStore) FindRestaurant(ctx context.Context, id int64) (*types.Restaurant, error) {
	res, err := es.Client.Get().Index(es.RestaurantIndex).Id(strconv.FormatInt(id, 10)).Do(ctx)
	if err != nil {
		if elastic.IsNotFound(err) {
			return nil, apperr.NotFound("restaurant %d not found", id)
		}
		return nil, fmt.Errorf("failed to get restaurant %d: %w", id, err)
	}
	if !res.Found {
		return nil, apperr.NotFound("restaurant %d not found", id)
	}

	var doc restaurantDoc
	if err := json.Unmarshal(res.Source, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode restaurant %d: %w", id, err)
	}
	r := doc.toRestaurant()
	return &r, nil
}

// UpdateRating refreshes the rating fields of the projected document.
func (es *ElasticStore) UpdateRating(ctx context.Context, target types.TargetRef, state types.RatingState) error {
	index := es.RestaurantIndex
	if target.Kind == types.TargetProduct {
		index = es.ProductIndex
	}

	_, err := es.Client.Update().
		Index(index).
		Id(strconv.FormatInt(target.ID, 10)).
		Doc(map[string]interface{}{"rating": state.Rating, "review_count": state.Count}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to update rating of %s %d in %s: %w", target.Kind, target.ID, index, err)
	}
	return nil
}

func geoFilter(field string, q types.SpatialQuery) elastic.Query {
	return elastic.NewGeoDistanceQuery(field).
		Point(q.Origin.Lat, q.Origin.Lon).
		Distance(fmt.Sprintf("%dm", q.RadiusMeters)).
		DistanceType("arc")
}

func stringsToInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}

func restaurantQuery(q types.SpatialQuery) *elastic.BoolQuery {
	bq := elastic.NewBoolQuery().Filter(
		elastic.NewTermQuery("enabled", true),
		geoFilter("location", q),
	)
	if len(q.Filters.Categories) > 0 {
		bq = bq.Filter(elastic.NewTermsQuery("category_keys", stringsToInterfaces(q.Filters.Categories)...))
	}
	if q.Filters.Search != "" {
		bq = bq.Filter(elastic.NewWildcardQuery("name_folded", "*"+escapeWildcard(q.Filters.Search)+"*"))
	}
	return bq
}

func productQuery(q types.SpatialQuery) *elastic.BoolQuery {
	bq := elastic.NewBoolQuery().Filter(
		elastic.NewTermQuery("restaurant.enabled", true),
		geoFilter("restaurant.location", q),
	)
	if len(q.Filters.Categories) > 0 {
		bq = bq.Filter(elastic.NewTermsQuery("category_key", stringsToInterfaces(q.Filters.Categories)...))
	}
	if q.Filters.Search != "" {
		bq = bq.Filter(elastic.NewWildcardQuery("name_folded", "*"+escapeWildcard(q.Filters.Search)+"*"))
	}
	if q.Filters.MinPrice != nil || q.Filters.MaxPrice != nil {
		// both bounds must hold on the same tier
		price := elastic.NewRangeQuery("prices.price")
		if q.Filters.MinPrice != nil {
			price = price.Gte(q.Filters.MinPrice.InexactFloat64())
		}
		if q.Filters.MaxPrice != nil {
			price = price.Lte(q.Filters.MaxPrice.InexactFloat64())
		}
		bq = bq.Filter(elastic.NewNestedQuery("prices", price))
	}
	return bq
}

func restaurantSearchSource(q types.SpatialQuery, query elastic.Query) *elastic.SearchSource {
	src := elastic.NewSearchSource().
		Query(query).
		From(q.Page.Offset()).
		Size(q.Page.Size)

	switch q.Sort {
	case types.SortRatingAsc:
		src = src.SortBy(elastic.NewFieldSort("rating").Asc())
	case types.SortRatingDesc:
		src = src.SortBy(elastic.NewFieldSort("rating").Desc())
	}
	return src.SortBy(elastic.NewFieldSort("id").Asc())
}

func productSearchSource(q types.SpatialQuery, query elastic.Query) *elastic.SearchSource {
	src := elastic.NewSearchSource().
		Query(query).
		Collapse(elastic.NewCollapseBuilder("id")).
		From(q.Page.Offset()).
		Size(q.Page.Size)

	switch q.Sort {
	case types.SortRatingAsc:
		src = src.SortBy(elastic.NewFieldSort("rating").Asc())
	case types.SortRatingDesc:
		src = src.SortBy(elastic.NewFieldSort("rating").Desc())
	case types.SortLocationAsc, types.SortLocationDesc:
		geo := elastic.NewGeoDistanceSort("restaurant.location").
			Point(q.Origin.Lat, q.Origin.Lon).
			Unit("m").
			DistanceType("arc").
			IgnoreUnmapped(true)
		if q.Sort == types.SortLocationAsc {
			geo = geo.Asc()
		} else {
			geo = geo.Desc()
		}
		src = src.SortBy(geo)
	}
	return src.SortBy(elastic.NewFieldSort("id").Asc())
}

func toGeoPoint(p elastic.GeoPoint) types.GeoPoint {
	return types.GeoPoint{Lon: p.Lon, Lat: p.Lat}
}

func fromGeoPoint(p types.GeoPoint) elastic.GeoPoint {
	return elastic.GeoPoint{Lat: p.Lat, Lon: p.Lon}
}

func (d restaurantDoc) toRestaurant() types.Restaurant {
	r := types.Restaurant{
		ID:          d.ID,
		Name:        d.Name,
		Location:    toGeoPoint(d.Location),
		Rating:      d.Rating,
		ReviewCount: d.ReviewCount,
		Enabled:     d.Enabled,
	}
	for _, c := range d.Categories {
		r.Categories = append(r.Categories, types.Category{ID: c.ID, Name: c.Name})
	}
	return r
}

func newRestaurantDoc(r types.Restaurant) restaurantDoc {
	d := restaurantDoc{
		ID:          r.ID,
		Name:        r.Name,
		NameFolded:  search.Fold(r.Name),
		Location:    fromGeoPoint(r.Location),
		Rating:      r.Rating,
		ReviewCount: r.ReviewCount,
		Enabled:     r.Enabled,
	}
	for _, c := range r.Categories {
		d.Categories = append(d.Categories, categoryDoc{ID: c.ID, Name: c.Name})
		d.CategoryKeys = append(d.CategoryKeys, search.Fold(c.Name))
	}
	return d
}

func (d productDoc) toProduct() types.Product {
	p := types.Product{
		ID:       d.ID,
		Name:     d.Name,
		Category: types.Category{ID: d.Category.ID, Name: d.Category.Name},
		Restaurant: types.RestaurantRef{
			ID:       d.Restaurant.ID,
			Name:     d.Restaurant.Name,
			Location: toGeoPoint(d.Restaurant.Location),
		},
		Rating:      d.Rating,
		ReviewCount: d.ReviewCount,
	}
	for _, pr := range d.Prices {
		p.Prices = append(p.Prices, types.PriceTier{Size: pr.Size, Price: decimal.NewFromFloat(pr.Price)})
	}
	return p
}

func newProductDoc(p types.Product, restaurantEnabled bool) productDoc {
	d := productDoc{
		ID:          p.ID,
		Name:        p.Name,
		NameFolded:  search.Fold(p.Name),
		Category:    categoryDoc{ID: p.Category.ID, Name: p.Category.Name},
		CategoryKey: search.Fold(p.Category.Name),
		Restaurant: restaurantRefDoc{
			ID:       p.Restaurant.ID,
			Name:     p.Restaurant.Name,
			Location: fromGeoPoint(p.Restaurant.Location),
			Enabled:  restaurantEnabled,
		},
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
	}
	for _, pr := range p.Prices {
		d.Prices = append(d.Prices, priceDoc{Size: pr.Size, Price: pr.Price.InexactFloat64()})
	}
	return d
}
