package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"FoodFinder/src/apperr"
	"FoodFinder/src/search"
	"FoodFinder/src/types"
)

// PageResponse is a result page with 1-based navigation, zero meaning no
// previous or next page.
type PageResponse[T any] struct {
	Content  []T   `json:"content"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	Size     int   `json:"size"`
	LastPage int   `json:"last_page"`
	PrevPage int   `json:"prev_page,omitempty"`
	NextPage int   `json:"next_page,omitempty"`
}

func newPageResponse[T any](p types.Page[T]) PageResponse[T] {
	page := p.Page + 1
	lastPage := p.TotalPages()

	data := PageResponse[T]{
		Content:  p.Content,
		Total:    p.Total,
		Page:     page,
		Size:     p.Size,
		LastPage: lastPage,
	}
	if page > 1 {
		data.PrevPage = page - 1
	}
	if page < lastPage {
		data.NextPage = page + 1
	}
	return data
}

func (h *Handler) HandleNearbyRestaurants(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	page, err := h.discovery.DiscoverRestaurants(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPageResponse(page))
}

func (h *Handler) HandleNearbyProducts(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if q.Filters.MinPrice, err = parsePrice(c, "min_price"); err != nil {
		h.fail(c, err)
		return
	}
	if q.Filters.MaxPrice, err = parsePrice(c, "max_price"); err != nil {
		h.fail(c, err)
		return
	}

	page, err := h.discovery.DiscoverProducts(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPageResponse(page))
}

func (h *Handler) HandleRestaurantDetail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, apperr.InvalidRequest("invalid restaurant id %q", c.Param("id")))
		return
	}
	origin, err := parseOrigin(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	restaurant, err := h.discovery.GetRestaurantDetail(c.Request.Context(), id, origin)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurant)
}

// parseQuery reads the parameters shared by both nearby endpoints. Missing
// coordinates are left to the search service to reject.
func parseQuery(c *gin.Context) (search.Query, error) {
	var q search.Query

	origin, err := parseOrigin(c)
	if err != nil {
		return q, err
	}
	q.Origin = origin

	if s := c.Query("radius"); s != "" {
		radius, err := strconv.Atoi(s)
		if err != nil {
			return q, apperr.InvalidRequest("invalid radius %q", s)
		}
		q.RadiusMeters = &radius
	}

	for _, v := range c.QueryArray("category") {
		q.Filters.Categories = append(q.Filters.Categories, strings.Split(v, ",")...)
	}
	q.Filters.Search = c.Query("search")
	q.Sort = types.Sort(c.Query("sort"))

	pageStr := c.DefaultQuery("page", "1")
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return q, apperr.InvalidRequest("invalid page number %q", pageStr)
	}
	q.Page.Page = page - 1

	if s := c.Query("size"); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil {
			return q, apperr.InvalidRequest("invalid page size %q", s)
		}
		q.Page.Size = size
	}
	return q, nil
}

// parseOrigin returns nil when neither lon nor lat is present.
func parseOrigin(c *gin.Context) (*types.GeoPoint, error) {
	lonStr, latStr := c.Query("lon"), c.Query("lat")
	if lonStr == "" && latStr == "" {
		return nil, nil
	}
	if lonStr == "" || latStr == "" {
		return nil, apperr.InvalidRequest("missing latitude or longitude")
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, apperr.InvalidRequest("invalid longitude %q", lonStr)
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, apperr.InvalidRequest("invalid latitude %q", latStr)
	}
	return &types.GeoPoint{Lon: lon, Lat: lat}, nil
}

func parsePrice(c *gin.Context, name string) (*decimal.Decimal, error) {
	s := c.Query(name)
	if s == "" {
		return nil, nil
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return nil, apperr.InvalidRequest("invalid %s %q", name, s)
	}
	return &price, nil
}
