package types

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type GeoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Restaurant struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Location    GeoPoint   `json:"location"`
	Rating      float64    `json:"rating"`
	ReviewCount int        `json:"review_count"`
	Enabled     bool       `json:"enabled"`
	Categories  []Category `json:"categories,omitempty"`
}

// RestaurantRef is the part of the owning restaurant a product page needs.
type RestaurantRef struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Location GeoPoint `json:"location"`
}

type PriceTier struct {
	Size  string          `json:"size"`
	Price decimal.Decimal `json:"price"`
}

type Product struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Category    Category      `json:"category"`
	Restaurant  RestaurantRef `json:"restaurant"`
	Rating      float64       `json:"rating"`
	ReviewCount int           `json:"review_count"`
	Prices      []PriceTier   `json:"prices"`
}

type TargetKind string

const (
	TargetProduct    TargetKind = "PRODUCT"
	TargetRestaurant TargetKind = "RESTAURANT"
)

func (k TargetKind) Valid() bool {
	return k == TargetProduct || k == TargetRestaurant
}

// TargetRef identifies the row whose rating aggregate is mutated.
type TargetRef struct {
	Kind TargetKind
	ID   int64
}

type RatingState struct {
	Rating float64 `json:"rating"`
	Count  int     `json:"review_count"`
}

type Review struct {
	ID         uuid.UUID  `json:"id"`
	TargetID   int64      `json:"target_id"`
	TargetKind TargetKind `json:"target_kind"`
	AuthorID   string     `json:"author_id"`
	Rating     int        `json:"rating"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (r *Review) Target() TargetRef {
	return TargetRef{Kind: r.TargetKind, ID: r.TargetID}
}

// EnrichedLocation is computed per request by the routing provider and never persisted.
type EnrichedLocation struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type EnrichedRestaurant struct {
	Restaurant
	Travel *EnrichedLocation `json:"travel,omitempty"`
}

type EnrichedProduct struct {
	Product
	Travel *EnrichedLocation `json:"travel,omitempty"`
}

type Sort string

const (
	SortDefault    Sort = ""
	SortRatingAsc  Sort = "rating_asc"
	SortRatingDesc Sort = "rating_desc"
	// SortLocationAsc orders products by geodesic distance computed by the
	// spatial store. Enriched distances come from the routing provider and are
	// road distances, so they need not be monotonic on a page sorted this way.
	SortLocationAsc  Sort = "location_asc"
	SortLocationDesc Sort = "location_desc"
)

type Filters struct {
	Categories []string
	Search     string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
}

type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

type Page[T any] struct {
	Content []T   `json:"content"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Size    int   `json:"size"`
}

func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// SpatialQuery is the store-level query: radius already clamped, filters normalised.
type SpatialQuery struct {
	Origin       GeoPoint
	RadiusMeters int
	Filters      Filters
	Sort         Sort
	Page         PageRequest
}

type SpatialStore interface {
	FindRestaurants(ctx context.Context, q SpatialQuery) (Page[Restaurant], error)
	FindProducts(ctx context.Context, q SpatialQuery) (Page[Product], error)
	FindRestaurant(ctx context.Context, id int64) (*Restaurant, error)
}
