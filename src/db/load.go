package db

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olivere/elastic/v7"
	"github.com/shopspring/decimal"

	"FoodFinder/src/types"
)

// Seed files are tab-separated with a header row.
//
//	restaurants: id  name  lon  lat  rating  review_count  enabled  categories (id:name|id:name)
//	products:    id  name  restaurant_id  category (id:name)  rating  review_count  prices (size:price|size:price)
const (
	restaurantColumns = 8
	productColumns    = 7
)

// seed is the parsed seed data with every product's owning restaurant
// filled in.
type seed struct {
	restaurants []types.Restaurant
	products    []types.Product
	owners      map[int64]types.Restaurant
}

// readSeed reads both seed files. An empty productsPath loads restaurants only.
func readSeed(restaurantsPath, productsPath string) (*seed, error) {
	restaurants, err := readCSVFile(restaurantsPath, ReadRestaurants)
	if err != nil {
		return nil, err
	}

	s := &seed{restaurants: restaurants, owners: make(map[int64]types.Restaurant, len(restaurants))}
	for _, r := range restaurants {
		s.owners[r.ID] = r
	}
	if productsPath == "" {
		return s, nil
	}

	if s.products, err = readCSVFile(productsPath, ReadProducts); err != nil {
		return nil, err
	}
	if err := s.resolveOwners(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *seed) resolveOwners() error {
	for i, p := range s.products {
		owner, ok := s.owners[p.Restaurant.ID]
		if !ok {
			return fmt.Errorf("product %d references unknown restaurant %d", p.ID, p.Restaurant.ID)
		}
		s.products[i].Restaurant = types.RestaurantRef{ID: owner.ID, Name: owner.Name, Location: owner.Location}
	}
	return nil
}

// LoadData indexes the seed restaurants and their products.
func (es *ElasticStore) LoadData(ctx context.Context, restaurantsPath, productsPath string) error {
	s, err := readSeed(restaurantsPath, productsPath)
	if err != nil {
		return err
	}

	docs := make(map[string]interface{}, len(s.restaurants))
	for _, r := range s.restaurants {
		docs[strconv.FormatInt(r.ID, 10)] = newRestaurantDoc(r)
	}
	if err := es.bulkIndex(ctx, es.RestaurantIndex, docs); err != nil {
		return err
	}

	docs = make(map[string]interface{}, len(s.products))
	for _, p := range s.products {
		docs[strconv.FormatInt(p.ID, 10)] = newProductDoc(p, s.owners[p.Restaurant.ID].Enabled)
	}
	return es.bulkIndex(ctx, es.ProductIndex, docs)
}

func (es *ElasticStore) bulkIndex(ctx context.Context, index string, docs map[string]interface{}) error {
	if len(docs) == 0 {
		return nil
	}

	bulkRequest := es.Client.Bulk().Refresh("wait_for")
	for id, doc := range docs {
		bulkRequest = bulkRequest.Add(elastic.NewBulkIndexRequest().Index(index).Id(id).Doc(doc))
	}

	bulkResponse, err := bulkRequest.Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to execute bulk request on %s: %w", index, err)
	}

	failed := 0
	for _, item := range bulkResponse.Failed() {
		failed++
		es.logger.Error("Failed to index document", "index", index, "id", item.Id, "reason", item.Error.Reason)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to index into %s", failed, len(docs), index)
	}

	es.logger.Info("Documents indexed", "index", index, "count", len(docs))
	return nil
}

func readCSVFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	out, err := read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func readRecords(r io.Reader, columns int) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = columns
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[1:], nil
}

func ReadRestaurants(r io.Reader) ([]types.Restaurant, error) {
	records, err := readRecords(r, restaurantColumns)
	if err != nil {
		return nil, err
	}

	restaurants := make([]types.Restaurant, 0, len(records))
	for i, record := range records {
		line := i + 2
		var rest types.Restaurant
		var perr error
		rest.ID, perr = parseInt(record[0], line, "id", perr)
		rest.Name = strings.TrimSpace(record[1])
		rest.Location.Lon, perr = parseFloat(record[2], line, "lon", perr)
		rest.Location.Lat, perr = parseFloat(record[3], line, "lat", perr)
		rest.Rating, perr = parseFloat(record[4], line, "rating", perr)
		count, perr := parseInt(record[5], line, "review_count", perr)
		rest.ReviewCount = int(count)
		if perr == nil {
			rest.Enabled, perr = strconv.ParseBool(strings.TrimSpace(record[6]))
			if perr != nil {
				perr = fmt.Errorf("line %d: enabled: %w", line, perr)
			}
		}
		if perr == nil {
			rest.Categories, perr = parseCategories(record[7], line)
		}
		if perr != nil {
			return nil, perr
		}
		restaurants = append(restaurants, rest)
	}
	return restaurants, nil
}

// ReadProducts parses the product seed. Only the restaurant id is filled in on
// the returned products.
func ReadProducts(r io.Reader) ([]types.Product, error) {
	records, err := readRecords(r, productColumns)
	if err != nil {
		return nil, err
	}

	products := make([]types.Product, 0, len(records))
	for i, record := range records {
		line := i + 2
		var p types.Product
		var perr error
		p.ID, perr = parseInt(record[0], line, "id", perr)
		p.Name = strings.TrimSpace(record[1])
		p.Restaurant.ID, perr = parseInt(record[2], line, "restaurant_id", perr)
		if perr == nil {
			var cats []types.Category
			cats, perr = parseCategories(record[3], line)
			if perr == nil && len(cats) != 1 {
				perr = fmt.Errorf("line %d: product needs exactly one category", line)
			}
			if perr == nil {
				p.Category = cats[0]
			}
		}
		p.Rating, perr = parseFloat(record[4], line, "rating", perr)
		count, perr := parseInt(record[5], line, "review_count", perr)
		p.ReviewCount = int(count)
		if perr == nil {
			p.Prices, perr = parsePrices(record[6], line)
		}
		if perr != nil {
			return nil, perr
		}
		products = append(products, p)
	}
	return products, nil
}

// parseInt and parseFloat keep the first error so a record can be parsed
// field by field and checked once.
func parseInt(s string, line int, field string, prev error) (int64, error) {
	if prev != nil {
		return 0, prev
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %w", line, field, err)
	}
	return v, nil
}

func parseFloat(s string, line int, field string, prev error) (float64, error) {
	if prev != nil {
		return 0, prev
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %w", line, field, err)
	}
	return v, nil
}

func splitPairs(s string) [][2]string {
	var out [][2]string
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, ":")
		out = append(out, [2]string{strings.TrimSpace(k), strings.TrimSpace(v)})
	}
	return out
}

func parseCategories(s string, line int) ([]types.Category, error) {
	var out []types.Category
	for _, pair := range splitPairs(s) {
		id, err := strconv.ParseInt(pair[0], 10, 64)
		if err != nil || pair[1] == "" {
			return nil, fmt.Errorf("line %d: malformed category %q", line, pair[0]+":"+pair[1])
		}
		out = append(out, types.Category{ID: id, Name: pair[1]})
	}
	return out, nil
}

func parsePrices(s string, line int) ([]types.PriceTier, error) {
	var out []types.PriceTier
	for _, pair := range splitPairs(s) {
		price, err := decimal.NewFromString(pair[1])
		if err != nil || pair[0] == "" {
			return nil, fmt.Errorf("line %d: malformed price tier %q", line, pair[0]+":"+pair[1])
		}
		out = append(out, types.PriceTier{Size: pair[0], Price: price})
	}
	return out, nil
}
