// Package ratings validates and records 1-5 star ratings and computes the
// per-movie average.
package ratings

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Clark-Hu/moviestore/internal/domain"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

const (
	MinValue = 1
	MaxValue = 5
)

// Outcome describes what Submit did to the stored rating.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Store is the persistence surface the service needs.
type Store interface {
	Upsert(ctx context.Context, params repository.RatingUpsertParams) (repository.RatingUpsertResult, error)
	Aggregate(ctx context.Context, movieID int64) (repository.RatingAggregate, error)
	Get(ctx context.Context, movieID int64, userID string) (domain.Rating, error)
	Delete(ctx context.Context, movieID int64, userID string) error
}

// Service applies rating rules on top of Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// ParseValue converts a decoded JSON number to a rating value, rejecting
// anything that is not a whole number.
func ParseValue(raw float64) (int, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw != math.Trunc(raw) {
		return 0, validationError("rating must be an integer")
	}
	if raw < MinValue || raw > MaxValue {
		return 0, rangeError()
	}
	return int(raw), nil
}

// Submit records userID's rating for movieID. Validation happens before any
// write. An unknown movie yields NOT_FOUND.
func (s *Service) Submit(ctx context.Context, userID string, movieID int64, value int) (domain.Rating, Outcome, error) {
	if value < MinValue || value > MaxValue {
		return domain.Rating{}, "", rangeError()
	}
	if userID == "" {
		return domain.Rating{}, "", apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}

	res, err := s.store.Upsert(ctx, repository.RatingUpsertParams{UserID: userID, MovieID: movieID, Value: value})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return domain.Rating{}, "", apperrors.Wrap(apperrors.CodeNotFound, err, "movie not found")
		case errors.Is(err, repository.ErrConstraint):
			return domain.Rating{}, "", rangeError()
		default:
			return domain.Rating{}, "", apperrors.Wrap(apperrors.CodeInternal, err, "store rating")
		}
	}

	switch {
	case res.Inserted:
		return res.Rating, OutcomeCreated, nil
	case res.Changed:
		return res.Rating, OutcomeUpdated, nil
	default:
		return res.Rating, OutcomeUnchanged, nil
	}
}

// Get returns the caller's own rating for a movie.
func (s *Service) Get(ctx context.Context, userID string, movieID int64) (domain.Rating, error) {
	rating, err := s.store.Get(ctx, movieID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Rating{}, apperrors.Wrap(apperrors.CodeNotFound, err, "rating not found")
		}
		return domain.Rating{}, apperrors.Wrap(apperrors.CodeInternal, err, "load rating")
	}
	return rating, nil
}

// Remove deletes the caller's own rating.
func (s *Service) Remove(ctx context.Context, userID string, movieID int64) error {
	if err := s.store.Delete(ctx, movieID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.Wrap(apperrors.CodeNotFound, err, "rating not found")
		}
		return apperrors.Wrap(apperrors.CodeInternal, err, "delete rating")
	}
	return nil
}

// Average returns the current mean rating rounded half away from zero to one
// decimal, or 0.0 when the movie has no ratings.
func (s *Service) Average(ctx context.Context, movieID int64) (domain.RatingSummary, error) {
	agg, err := s.store.Aggregate(ctx, movieID)
	if err != nil {
		return domain.RatingSummary{}, apperrors.Wrap(apperrors.CodeInternal, err, "aggregate ratings")
	}
	return Summarize(agg), nil
}

// Summarize rounds an exact aggregate for display.
func Summarize(agg repository.RatingAggregate) domain.RatingSummary {
	if agg.Count == 0 {
		return domain.RatingSummary{}
	}
	avg, _ := agg.Average.Round(1).Float64()
	return domain.RatingSummary{Average: avg, Count: agg.Count}
}

func rangeError() *apperrors.Error {
	return validationError(fmt.Sprintf("rating must be between %d and %d", MinValue, MaxValue))
}

func validationError(msg string) *apperrors.Error {
	return apperrors.New(apperrors.CodeValidation, msg).WithDetails(map[string]string{"rating": msg})
}
