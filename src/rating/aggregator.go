// Package rating keeps the running mean and count of reviews on restaurants
// and products.
//
// Every mutation runs in one transaction holding an exclusive lock on the
// target row: the target is always locked before any review row is touched,
// and a transaction never locks a second target.
package rating

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"FoodFinder/src/apperr"
	"FoodFinder/src/types"
)

const (
	MinRating = 0
	MaxRating = 5
)

// Tx is the unit of work handed out by Store.WithTargetLock. It is only valid
// inside the callback.
type Tx interface {
	SaveTarget(ctx context.Context, state types.RatingState) error
	InsertReview(ctx context.Context, review *types.Review) error
	// FindReview re-reads a review under the target lock.
	FindReview(ctx context.Context, id uuid.UUID) (*types.Review, error)
	DeleteReview(ctx context.Context, id uuid.UUID) error
}

type Store interface {
	// WithTargetLock locks the target exclusively, reads its current state and
	// runs fn. The transaction commits when fn returns nil and rolls back
	// otherwise. A missing target yields apperr.CodeNotFound and a lock that
	// cannot be acquired in time yields apperr.CodeTargetBusy.
	WithTargetLock(ctx context.Context, target types.TargetRef, fn func(tx Tx, current types.RatingState) error) error
	FindReview(ctx context.Context, id uuid.UUID) (*types.Review, error)
}

// Indexer is told about every aggregate change while the target is still
// locked, e.g. to refresh a search projection.
type Indexer interface {
	UpdateRating(ctx context.Context, target types.TargetRef, state types.RatingState) error
}

type SubmitRequest struct {
	Kind     types.TargetKind
	TargetID int64
	AuthorID string
	Rating   int
	Title    string
	Content  string
}

type Aggregator struct {
	store   Store
	indexer Indexer
	now     func() time.Time
	logger  *slog.Logger
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now, logger: slog.Default()}
}

// WithIndexer sets the projection refreshed with each aggregate change
func (a *Aggregator) WithIndexer(ix Indexer) *Aggregator {
	tmp := *a
	tmp.indexer = ix
	return &tmp
}

// WithLogger sets the logger for the aggregator
func (a *Aggregator) WithLogger(l *slog.Logger) *Aggregator {
	tmp := *a
	tmp.logger = l
	return &tmp
}

func (a *Aggregator) SubmitReview(ctx context.Context, req SubmitRequest) (*types.Review, error) {
	if !req.Kind.Valid() {
		return nil, apperr.InvalidRequest("target kind must be PRODUCT or RESTAURANT, got %q", req.Kind)
	}
	if req.Rating < MinRating || req.Rating > MaxRating {
		return nil, apperr.InvalidRequest("rating must be between %d and %d, got %d", MinRating, MaxRating, req.Rating)
	}

	review := &types.Review{
		ID:         uuid.New(),
		TargetID:   req.TargetID,
		TargetKind: req.Kind,
		AuthorID:   req.AuthorID,
		Rating:     req.Rating,
		Title:      req.Title,
		Content:    req.Content,
		CreatedAt:  a.now().UTC(),
	}

	target := review.Target()
	var next types.RatingState
	err := a.store.WithTargetLock(ctx, target, func(tx Tx, current types.RatingState) error {
		next = Add(current, review.Rating)
		if err := tx.SaveTarget(ctx, next); err != nil {
			return err
		}
		if err := tx.InsertReview(ctx, review); err != nil {
			return err
		}
		a.reindex(ctx, target, next)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit review on %s %d: %w", target.Kind, target.ID, err)
	}

	a.logger.InfoContext(ctx, "Review submitted",
		"review_id", review.ID, "target_kind", target.Kind, "target_id", target.ID,
		"rating", next.Rating, "review_count", next.Count)
	return review, nil
}

// RetractReview deletes a review and backs it out of its target's aggregate.
// An empty actorID is a trusted internal caller; otherwise only the author may
// retract.
func (a *Aggregator) RetractReview(ctx context.Context, reviewID uuid.UUID, actorID string) error {
	review, err := a.store.FindReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if !review.TargetKind.Valid() {
		return apperr.InvalidRequest("review %s has unknown target kind %q", reviewID, review.TargetKind)
	}
	if actorID != "" && review.AuthorID != actorID {
		return apperr.Forbidden("only the author may retract review %s", reviewID)
	}

	target := review.Target()
	var next types.RatingState
	err = a.store.WithTargetLock(ctx, target, func(tx Tx, current types.RatingState) error {
		// the review may have been retracted while we waited for the lock
		locked, err := tx.FindReview(ctx, reviewID)
		if err != nil {
			return err
		}
		next = Remove(current, locked.Rating)
		if err := tx.SaveTarget(ctx, next); err != nil {
			return err
		}
		if err := tx.DeleteReview(ctx, reviewID); err != nil {
			return err
		}
		a.reindex(ctx, target, next)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to retract review %s: %w", reviewID, err)
	}

	a.logger.InfoContext(ctx, "Review retracted",
		"review_id", reviewID, "target_kind", target.Kind, "target_id", target.ID,
		"rating", next.Rating, "review_count", next.Count)
	return nil
}

// reindex runs while the target is still locked so projection writes for one
// target land in commit order. A failed refresh does not fail the review.
func (a *Aggregator) reindex(ctx context.Context, target types.TargetRef, state types.RatingState) {
	if a.indexer == nil {
		return
	}
	if err := a.indexer.UpdateRating(ctx, target, state); err != nil {
		a.logger.WarnContext(ctx, "Failed to refresh rating projection",
			"target_kind", target.Kind, "target_id", target.ID, "error", err)
	}
}

// Add folds one more review into the aggregate.
func Add(s types.RatingState, value int) types.RatingState {
	count := s.Count + 1
	return types.RatingState{Rating: clamp((sum(s) + float64(value)) / float64(count)), Count: count}
}

// Remove backs one review out of the aggregate. Removing the last review
// resets the target to exactly 0/0.
func Remove(s types.RatingState, value int) types.RatingState {
	if s.Count <= 1 {
		return types.RatingState{}
	}
	count := s.Count - 1
	return types.RatingState{Rating: clamp((sum(s) - float64(value)) / float64(count)), Count: count}
}

// sum recovers oldRating*oldCount. Review values are whole stars, so the sum
// is an integer and rounding removes the error the stored mean carries.
func sum(s types.RatingState) float64 {
	if s.Count <= 0 {
		return 0
	}
	return math.Round(s.Rating * float64(s.Count))
}

func clamp(v float64) float64 {
	return math.Max(MinRating, math.Min(MaxRating, v))
}
