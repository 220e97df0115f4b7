package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"FoodFinder/src/apperr"
	"FoodFinder/src/rating"
	"FoodFinder/src/token"
	"FoodFinder/src/types"
)

type ReviewInput struct {
	TargetKind string `json:"target_kind" binding:"required"`
	TargetID   int64  `json:"target_id" binding:"required"`
	Rating     *int   `json:"rating" binding:"required"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

func (h *Handler) HandleSubmitReview(c *gin.Context) {
	var input ReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, apperr.InvalidRequest("invalid review payload: %v", err))
		return
	}

	review, err := h.reviews.SubmitReview(c.Request.Context(), rating.SubmitRequest{
		Kind:     types.TargetKind(input.TargetKind),
		TargetID: input.TargetID,
		AuthorID: token.UserFrom(c),
		Rating:   *input.Rating,
		Title:    input.Title,
		Content:  input.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *Handler) HandleRetractReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.fail(c, apperr.InvalidRequest("invalid review id %q", c.Param("id")))
		return
	}

	// an empty actor would bypass the author check
	actor := token.UserFrom(c)
	if actor == "" {
		h.fail(c, apperr.Forbidden("authentication required"))
		return
	}

	if err := h.reviews.RetractReview(c.Request.Context(), id, actor); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
