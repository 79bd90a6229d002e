package popularity

import (
	"context"
	"errors"
	"time"

	"github.com/Clark-Hu/moviestore/internal/domain"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
	"github.com/Clark-Hu/moviestore/internal/metrics"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

// OrderStore runs the purchase group-and-sum queries.
type OrderStore interface {
	PurchaseCounts(ctx context.Context, filter repository.PurchaseFilter) ([]domain.MoviePurchases, error)
	RegionalPurchaseCounts(ctx context.Context) ([]domain.RegionMovieCount, error)
}

// ProfileStore looks up a user's default location.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (domain.UserProfile, error)
}

// Trending is a ranked list together with the scope it was computed for.
type Trending struct {
	Scope  Scope
	Movies []domain.MoviePurchases
}

// Service computes trending lists and the regional popularity map.
type Service struct {
	orders   OrderStore
	profiles ProfileStore
	metrics  *metrics.AggregationMetrics
	now      func() time.Time
}

// NewService wires the aggregation engine. m may be nil.
func NewService(orders OrderStore, profiles ProfileStore, m *metrics.AggregationMetrics) *Service {
	return &Service{orders: orders, profiles: profiles, metrics: m, now: time.Now}
}

// Trending resolves the scope for the caller and ranks movies purchased within
// it. userID may be empty for anonymous callers; a user without a profile
// falls through to global scope.
func (s *Service) Trending(ctx context.Context, explicit, userID string) (Trending, error) {
	var profile *domain.UserProfile
	if userID != "" && explicit == "" {
		p, err := s.profiles.Get(ctx, userID)
		switch {
		case err == nil:
			profile = &p
		case errors.Is(err, repository.ErrNotFound):
		default:
			s.metrics.IncFailure("trending")
			return Trending{}, apperrors.Wrap(apperrors.CodeInternal, err, "load user profile")
		}
	}

	scope := ResolveScope(explicit, profile)
	filter := scope.Filter()
	filter.Limit = TrendingLimit

	start := s.now()
	counts, err := s.orders.PurchaseCounts(ctx, filter)
	if err != nil {
		s.metrics.IncFailure("trending")
		return Trending{}, apperrors.Wrap(apperrors.CodeInternal, err, "compute trending movies")
	}
	s.metrics.ObserveDuration("trending", string(scope.Kind), s.now().Sub(start))

	return Trending{Scope: scope, Movies: RankTrending(counts, TrendingLimit)}, nil
}

// RegionalPopularity returns every state with purchases mapped to its ranked
// movies, or the no-data sentinel.
func (s *Service) RegionalPopularity(ctx context.Context) (map[string][]domain.MovieCount, error) {
	start := s.now()
	rows, err := s.orders.RegionalPurchaseCounts(ctx)
	if err != nil {
		s.metrics.IncFailure("regional")
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "compute regional popularity")
	}
	s.metrics.ObserveDuration("regional", "state", s.now().Sub(start))
	return GroupByRegion(rows), nil
}
