package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"FoodFinder/src/apperr"
	"FoodFinder/src/rating"
	"FoodFinder/src/search"
	"FoodFinder/src/types"
)

type Discovery interface {
	DiscoverRestaurants(ctx context.Context, q search.Query) (types.Page[types.EnrichedRestaurant], error)
	DiscoverProducts(ctx context.Context, q search.Query) (types.Page[types.EnrichedProduct], error)
	GetRestaurantDetail(ctx context.Context, id int64, origin *types.GeoPoint) (*types.EnrichedRestaurant, error)
}

type Reviews interface {
	SubmitReview(ctx context.Context, req rating.SubmitRequest) (*types.Review, error)
	RetractReview(ctx context.Context, reviewID uuid.UUID, actorID string) error
}

// Auth issues tokens and guards the review routes.
type Auth interface {
	GetToken(c *gin.Context)
	JwtMiddleware() gin.HandlerFunc
}

type Handler struct {
	discovery Discovery
	reviews   Reviews
	logger    *slog.Logger
}

func New(discovery Discovery, reviews Reviews) *Handler {
	return &Handler{discovery: discovery, reviews: reviews, logger: slog.Default()}
}

// WithLogger sets the logger for the handler
func (h *Handler) WithLogger(l *slog.Logger) *Handler {
	tmp := *h
	tmp.logger = l
	return &tmp
}

func NewRouter(h *Handler, auth Auth) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	api.POST("/get_token", auth.GetToken)
	api.GET("/restaurants/nearby", h.HandleNearbyRestaurants)
	api.GET("/products/nearby", h.HandleNearbyProducts)
	api.GET("/restaurants/:id", h.HandleRestaurantDetail)

	protected := api.Group("/reviews", auth.JwtMiddleware())
	protected.POST("", h.HandleSubmitReview)
	protected.DELETE("/:id", h.HandleRetractReview)

	return r
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.logger.InfoContext(c.Request.Context(), "Request served",
			"method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status())
	}
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidRequest:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeDistance:
		return http.StatusBadGateway
	case apperr.CodeTargetBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the public view of err. Internal causes are only logged.
func (h *Handler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		h.logger.DebugContext(ctx, "Request abandoned by client", "path", c.FullPath())
		c.Abort()
		return
	}

	code, msg := apperr.Public(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "Request failed", "path", c.FullPath(), "code", code, "error", err)
	}
	if apperr.Retriable(err) {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": msg})
}
