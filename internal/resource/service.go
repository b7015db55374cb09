// Package resource implements the list / upsert / remove workflow shared by
// every operator-owned collection of the dashboard.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wa-dashboard/internal/cache"
	"wa-dashboard/internal/validator"
)

// Store is the data-access contract of one owner-scoped table.
type Store[T any] interface {
	Resource() string
	List(ctx context.Context, ownerID string) ([]T, error)
	Insert(ctx context.Context, ownerID string, v T) (*T, error)
	Update(ctx context.Context, ownerID string, id int64, v T) (*T, error)
	Delete(ctx context.Context, ownerID string, id int64) error
}

// ListCache holds cached list views. A nil ListCache disables caching.
type ListCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Form is an operator-submitted form that maps onto a row of type T once
// it passed validation.
type Form[T any] interface {
	Normalize()
	Row() (T, error)
}

// Query narrows a list view. Tab semantics are defined per resource.
type Query struct {
	Search string
	Tab    string
}

// Matcher decides whether a row belongs to the view described by q.
type Matcher[T any] func(row T, q Query) bool

// Service runs the resource workflow on top of a Store.
type Service[T any] struct {
	store   Store[T]
	cache   ListCache
	ttl     time.Duration
	matcher Matcher[T]
	logger  *slog.Logger
}

// NewService builds a Service. cache may be nil.
func NewService[T any](store Store[T], listCache ListCache, ttl time.Duration, matcher Matcher[T], logger *slog.Logger) *Service[T] {
	return &Service[T]{
		store:   store,
		cache:   listCache,
		ttl:     ttl,
		matcher: matcher,
		logger:  logger.With("component", "resource", "resource", store.Resource()),
	}
}

// List returns every row of the operator, newest first.
func (s *Service[T]) List(ctx context.Context, ownerID string) ([]T, error) {
	key := cache.ListKey(s.store.Resource(), ownerID)
	if s.cache != nil {
		var cached []T
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("list cache read failed", "error", err)
		} else if hit {
			return cached, nil
		}
	}

	rows, err := s.store.List(ctx, ownerID)
	if err != nil {
		s.logger.Error("list failed", "owner", ownerID, "error", err)
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, rows, s.ttl); err != nil {
			s.logger.Warn("list cache write failed", "error", err)
		}
	}
	return rows, nil
}

// Search lists the operator's rows that match q.
func (s *Service[T]) Search(ctx context.Context, ownerID string, q Query) ([]T, error) {
	rows, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if s.matcher == nil || (q.Search == "" && q.Tab == "") {
		return rows, nil
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if s.matcher(row, q) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Upsert validates form, then inserts a row when existingID is nil and
// updates row *existingID otherwise. Validation failures never reach the store.
func (s *Service[T]) Upsert(ctx context.Context, ownerID string, form Form[T], existingID *int64) (*T, error) {
	form.Normalize()
	if err := validator.Validate(form); err != nil {
		return nil, err
	}
	row, err := form.Row()
	if err != nil {
		return nil, err
	}

	var saved *T
	if existingID == nil {
		saved, err = s.store.Insert(ctx, ownerID, row)
	} else {
		saved, err = s.store.Update(ctx, ownerID, *existingID, row)
	}
	if err != nil {
		s.logger.Error("upsert failed", "owner", ownerID, "update", existingID != nil, "error", err)
		return nil, fmt.Errorf("save %s: %w", s.store.Resource(), err)
	}
	s.invalidate(ctx, ownerID)
	return saved, nil
}

// Remove deletes row id of the operator.
func (s *Service[T]) Remove(ctx context.Context, ownerID string, id int64) error {
	if err := s.store.Delete(ctx, ownerID, id); err != nil {
		s.logger.Error("remove failed", "owner", ownerID, "id", id, "error", err)
		return fmt.Errorf("remove %s: %w", s.store.Resource(), err)
	}
	s.invalidate(ctx, ownerID)
	return nil
}

func (s *Service[T]) invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ListKey(s.store.Resource(), ownerID)); err != nil {
		s.logger.Warn("list cache invalidation failed", "error", err)
	}
}
