package rating

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FoodFinder/src/apperr"
	"FoodFinder/src/types"
)

// MemoryStore is a process-local Store. Each (kind, id) target gets its own
// lock with a bounded wait, standing in for a database row lock.
type MemoryStore struct {
	mu          sync.Mutex
	targets     map[types.TargetRef]types.RatingState
	reviews     map[uuid.UUID]types.Review
	locks       map[types.TargetRef]chan struct{}
	lockTimeout time.Duration
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		targets:     make(map[types.TargetRef]types.RatingState),
		reviews:     make(map[uuid.UUID]types.Review),
		locks:       make(map[types.TargetRef]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

// PutTarget registers a target with its current aggregate.
func (s *MemoryStore) PutTarget(target types.TargetRef, state types.RatingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target] = state
}

func (s *MemoryStore) Target(target types.TargetRef) (types.RatingState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.targets[target]
	return st, ok
}

// Reviews returns the stored reviews of one target ordered by creation time.
func (s *MemoryStore) Reviews(target types.TargetRef) []types.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Review
	for _, r := range s.reviews {
		if r.Target() == target {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) FindReview(_ context.Context, id uuid.UUID) (*types.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, apperr.NotFound("review %s not found", id)
	}
	return &r, nil
}

func (s *MemoryStore) lockFor(target types.TargetRef) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[target]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[target] = l
	}
	return l
}

func (s *MemoryStore) WithTargetLock(ctx context.Context, target types.TargetRef, fn func(tx Tx, current types.RatingState) error) error {
	l := s.lockFor(target)

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case l <- struct{}{}:
	case <-timer.C:
		return apperr.TargetBusy(nil, "%s %d is busy, retry later", target.Kind, target.ID)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l }()

	current, ok := s.Target(target)
	if !ok {
		return apperr.NotFound("%s %d not found", target.Kind, target.ID)
	}

	tx := &memoryTx{store: s, target: target, deleted: make(map[uuid.UUID]struct{})}
	if err := fn(tx, current); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memoryTx stages writes and applies them on commit; a failed callback leaves
// the store untouched.
type memoryTx struct {
	store    *MemoryStore
	target   types.TargetRef
	state    *types.RatingState
	inserted []types.Review
	deleted  map[uuid.UUID]struct{}
}

func (tx *memoryTx) SaveTarget(_ context.Context, state types.RatingState) error {
	tx.state = &state
	return nil
}

func (tx *memoryTx) InsertReview(_ context.Context, review *types.Review) error {
	if review.Target() != tx.target {
		return fmt.Errorf("review targets %s %d but the transaction holds %s %d",
			review.TargetKind, review.TargetID, tx.target.Kind, tx.target.ID)
	}
	tx.inserted = append(tx.inserted, *review)
	return nil
}

func (tx *memoryTx) FindReview(ctx context.Context, id uuid.UUID) (*types.Review, error) {
	if _, ok := tx.deleted[id]; ok {
		return nil, apperr.NotFound("review %s not found", id)
	}
	for i := range tx.inserted {
		if tx.inserted[i].ID == id {
			r := tx.inserted[i]
			return &r, nil
		}
	}
	r, err := tx.store.FindReview(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Target() != tx.target {
		return nil, apperr.NotFound("review %s not found on %s %d", id, tx.target.Kind, tx.target.ID)
	}
	return r, nil
}

func (tx *memoryTx) DeleteReview(ctx context.Context, id uuid.UUID) error {
	if _, err := tx.FindReview(ctx, id); err != nil {
		return err
	}
	tx.deleted[id] = struct{}{}
	return nil
}

func (tx *memoryTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.state != nil {
		s.targets[tx.target] = *tx.state
	}
	for _, r := range tx.inserted {
		s.reviews[r.ID] = r
	}
	for id := range tx.deleted {
		delete(s.reviews, id)
	}
}
