package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"FoodFinder/src/apperr"
	"FoodFinder/src/rating"
	"FoodFinder/src/types"
)

// lock_not_available, raised when lock_timeout expires
const pgLockNotAvailable = "55P03"

type reviewModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TargetKind string
	TargetID   int64
	AuthorID   string
	Rating     int
	Title      string
	Content    string
	CreatedAt  time.Time
}

func (reviewModel) TableName() string { return "reviews" }

func (m reviewModel) toReview() *types.Review {
	return &types.Review{
		ID:         m.ID,
		TargetID:   m.TargetID,
		TargetKind: types.TargetKind(m.TargetKind),
		AuthorID:   m.AuthorID,
		Rating:     m.Rating,
		Title:      m.Title,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

func newReviewModel(r *types.Review) reviewModel {
	return reviewModel{
		ID:         r.ID,
		TargetKind: string(r.TargetKind),
		TargetID:   r.TargetID,
		AuthorID:   r.AuthorID,
		Rating:     r.Rating,
		Title:      r.Title,
		Content:    r.Content,
		CreatedAt:  r.CreatedAt,
	}
}

type targetRow struct {
	ID          int64
	Rating      float64
	ReviewCount int
}

// RatingStore persists aggregates and reviews in Postgres. The target row is
// locked with SELECT ... FOR UPDATE and the wait is bounded by lock_timeout.
type RatingStore struct {
	database    *gorm.DB
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewRatingStore opens gorm on an existing pool so spatial queries and rating
// transactions share connections.
func NewRatingStore(sqlDB *sql.DB, lockTimeout time.Duration) (*RatingStore, error) {
	database, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm on postgres pool: %w", err)
	}
	return &RatingStore{database: database, lockTimeout: lockTimeout, logger: slog.Default()}, nil
}

// WithLogger sets the logger for the store
func (s *RatingStore) WithLogger(l *slog.Logger) *RatingStore {
	tmp := *s
	tmp.logger = l
	return &tmp
}

func tableFor(kind types.TargetKind) (string, error) {
	switch kind {
	case types.TargetRestaurant:
		return "restaurants", nil
	case types.TargetProduct:
		return "products", nil
	}
	return "", apperr.InvalidRequest("unknown target kind %q", kind)
}

func lockTargetQuery(tx *gorm.DB, table string, id int64) *gorm.DB {
	return tx.Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "rating", "review_count").
		Where("id = ?", id)
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}

func (s *RatingStore) WithTargetLock(ctx context.Context, target types.TargetRef, fn func(tx rating.Tx, current types.RatingState) error) error {
	table, err := tableFor(target.Kind)
	if err != nil {
		return err
	}

	err = s.database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if err := tx.Exec("SELECT set_config('lock_timeout', ?, true)", timeout).Error; err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}

		var row targetRow
		if err := lockTargetQuery(tx, table, target.ID).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("%s %d not found", target.Kind, target.ID)
			}
			return err
		}

		return fn(&gormTx{db: tx, table: table, target: target},
			types.RatingState{Rating: row.Rating, Count: row.ReviewCount})
	})
	if isLockTimeout(err) {
		s.logger.WarnContext(ctx, "Target lock wait timed out", "target_kind", target.Kind, "target_id", target.ID)
		return apperr.TargetBusy(err, "%s %d is busy, retry later", target.Kind, target.ID)
	}
	return err
}

func (s *RatingStore) FindReview(ctx context.Context, id uuid.UUID) (*types.Review, error) {
	var m reviewModel
	if err := s.database.WithContext(ctx).Take(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("review %s not found", id)
		}
		return nil, fmt.Errorf("failed to get review %s: %w", id, err)
	}
	return m.toReview(), nil
}

// gormTx scopes every review statement to the locked target.
type gormTx struct {
	db     *gorm.DB
	table  string
	target types.TargetRef
}

func (t *gormTx) SaveTarget(ctx context.Context, state types.RatingState) error {
	res := t.db.WithContext(ctx).Table(t.table).
		Where("id = ?", t.target.ID).
		Updates(map[string]interface{}{"rating": state.Rating, "review_count": state.Count})
	if res.Error != nil {
		return fmt.Errorf("failed to save %s %d: %w", t.target.Kind, t.target.ID, res.Error)
	}
	if res.RowsAffected != 1 {
		return apperr.NotFound("%s %d not found", t.target.Kind, t.target.ID)
	}
	return nil
}

func (t *gormTx) InsertReview(ctx context.Context, review *types.Review) error {
	if review.Target() != t.target {
		return fmt.Errorf("review targets %s %d but the transaction holds %s %d",
			review.TargetKind, review.TargetID, t.target.Kind, t.target.ID)
	}
	m := newReviewModel(review)
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to insert review %s: %w", review.ID, err)
	}
	return nil
}

func (t *gormTx) FindReview(ctx context.Context, id uuid.UUID) (*types.Review, error) {
	var m reviewModel
	err := t.db.WithContext(ctx).
		Where("id = ? AND target_kind = ? AND target_id = ?", id, string(t.target.Kind), t.target.ID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("review %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review %s: %w", id, err)
	}
	return m.toReview(), nil
}

func (t *gormTx) DeleteReview(ctx context.Context, id uuid.UUID) error {
	res := t.db.WithContext(ctx).
		Where("target_kind = ? AND target_id = ?", string(t.target.Kind), t.target.ID).
		Delete(&reviewModel{ID: id})
	if res.Error != nil {
		return fmt.Errorf("failed to delete review %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("review %s not found", id)
	}
	return nil
}
