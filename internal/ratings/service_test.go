package ratings

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/moviestore/internal/domain"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
	"github.com/Clark-Hu/moviestore/internal/repository"
	"github.com/Clark-Hu/moviestore/internal/testutil"
)

type ratingKey struct {
	user  string
	movie int64
}

// memoryStore mimics the conditional upsert of RatingsRepository.
type memoryStore struct {
	mu      sync.Mutex
	movies  map[int64]bool
	ratings map[ratingKey]domain.Rating
	writes  int
	clock   func() time.Time
}

func newMemoryStore(movieIDs ...int64) *memoryStore {
	movies := make(map[int64]bool, len(movieIDs))
	for _, id := range movieIDs {
		movies[id] = true
	}
	return &memoryStore{movies: movies, ratings: map[ratingKey]domain.Rating{}, clock: time.Now}
}

func (m *memoryStore) Upsert(_ context.Context, p repository.RatingUpsertParams) (repository.RatingUpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.movies[p.MovieID] {
		return repository.RatingUpsertResult{}, repository.ErrNotFound
	}
	key := ratingKey{p.UserID, p.MovieID}
	now := m.clock()
	existing, ok := m.ratings[key]
	switch {
	case !ok:
		r := domain.Rating{UserID: p.UserID, MovieID: p.MovieID, Value: p.Value, CreatedAt: now, UpdatedAt: now}
		m.ratings[key] = r
		m.writes++
		return repository.RatingUpsertResult{Rating: r, Inserted: true, Changed: true}, nil
	case existing.Value != p.Value:
		existing.Value = p.Value
		existing.UpdatedAt = now
		m.ratings[key] = existing
		m.writes++
		return repository.RatingUpsertResult{Rating: existing, Changed: true}, nil
	default:
		return repository.RatingUpsertResult{Rating: existing}, nil
	}
}

func (m *memoryStore) Aggregate(_ context.Context, movieID int64) (repository.RatingAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, n := decimal.Zero, int64(0)
	for k, r := range m.ratings {
		if k.movie == movieID {
			sum = sum.Add(decimal.NewFromInt(int64(r.Value)))
			n++
		}
	}
	if n == 0 {
		return repository.RatingAggregate{Average: decimal.Zero}, nil
	}
	return repository.RatingAggregate{Average: sum.Div(decimal.NewFromInt(n)), Count: n}, nil
}

func (m *memoryStore) Get(_ context.Context, movieID int64, userID string) (domain.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[ratingKey{userID, movieID}]
	if !ok {
		return domain.Rating{}, repository.ErrNotFound
	}
	return r, nil
}

func (m *memoryStore) Delete(_ context.Context, movieID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ratingKey{userID, movieID}
	if _, ok := m.ratings[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.ratings, key)
	return nil
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw     float64
		want    int
		wantErr bool
	}{
		{raw: 1, want: 1},
		{raw: 5, want: 5},
		{raw: 3.0, want: 3},
		{raw: 4.5, wantErr: true},
		{raw: 0, wantErr: true},
		{raw: 6, wantErr: true},
		{raw: -1, wantErr: true},
		{raw: math.NaN(), wantErr: true},
		{raw: math.Inf(1), wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.raw)
		if tt.wantErr {
			require.Error(t, err, "raw=%v", tt.raw)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSubmitRejectsOutOfRangeWithoutWriting(t *testing.T) {
	store := newMemoryStore(1)
	svc := NewService(store)

	for _, v := range []int{0, -3, 6, 100} {
		_, _, err := svc.Submit(context.Background(), "alice", 1, v)
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation), "value %d", v)
	}
	assert.Zero(t, store.writes)
	assert.Empty(t, store.ratings)
}

func TestSubmitOutcomes(t *testing.T) {
	store := newMemoryStore(1)
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.clock = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	svc := NewService(store)
	ctx := context.Background()

	first, outcome, err := svc.Submit(ctx, "alice", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	again, outcome, err := svc.Submit(ctx, "alice", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Equal(t, first.UpdatedAt, again.UpdatedAt)

	changed, outcome, err := svc.Submit(ctx, "alice", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.True(t, changed.UpdatedAt.After(first.UpdatedAt))
	assert.Len(t, store.ratings, 1)

	_, _, err = svc.Submit(ctx, "alice", 99, 3)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, _, err = svc.Submit(ctx, "", 1, 3)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
}

func TestRemoveAndGet(t *testing.T) {
	store := newMemoryStore(1)
	svc := NewService(store)
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, "bob", 1, 5)
	require.NoError(t, err)

	got, err := svc.Get(ctx, "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Value)

	require.NoError(t, svc.Remove(ctx, "bob", 1))
	assert.True(t, apperrors.IsCode(svc.Remove(ctx, "bob", 1), apperrors.CodeNotFound))
	_, err = svc.Get(ctx, "bob", 1)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestAverage(t *testing.T) {
	store := newMemoryStore(1, 2, 3)
	svc := NewService(store)
	ctx := context.Background()

	for user, v := range map[string]int{"a": 3, "b": 4, "c": 5} {
		_, _, err := svc.Submit(ctx, user, 1, v)
		require.NoError(t, err)
	}
	summary, err := svc.Average(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RatingSummary{Average: 4.0, Count: 3}, summary)

	summary, err = svc.Average(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.RatingSummary{Average: 0.0, Count: 0}, summary)

	for user, v := range map[string]int{"a": 4, "b": 4, "c": 5, "d": 5} {
		_, _, err := svc.Submit(ctx, user, 3, v)
		require.NoError(t, err)
	}
	summary, err = svc.Average(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 4.5, summary.Average)
}

func TestSummarizeRoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		avg  string
		want float64
	}{
		{avg: "3.25", want: 3.3},
		{avg: "3.24", want: 3.2},
		{avg: "4.6666666666666667", want: 4.7},
		{avg: "1", want: 1.0},
	}
	for _, tt := range tests {
		got := Summarize(repository.RatingAggregate{Average: decimal.RequireFromString(tt.avg), Count: 2})
		assert.Equal(t, tt.want, got.Average, "avg=%s", tt.avg)
	}
}

func TestStorageErrorsAreInternal(t *testing.T) {
	svc := NewService(failingStore{})
	_, _, err := svc.Submit(context.Background(), "u", 1, 3)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))
	_, err = svc.Average(context.Background(), 1)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))
}

type failingStore struct{}

var errDown = errors.New("db down")

func (failingStore) Upsert(context.Context, repository.RatingUpsertParams) (repository.RatingUpsertResult, error) {
	return repository.RatingUpsertResult{}, errDown
}
func (failingStore) Aggregate(context.Context, int64) (repository.RatingAggregate, error) {
	return repository.RatingAggregate{}, errDown
}
func (failingStore) Get(context.Context, int64, string) (domain.Rating, error) {
	return domain.Rating{}, errDown
}
func (failingStore) Delete(context.Context, int64, string) error { return errDown }

func TestServiceAgainstPostgres(t *testing.T) {
	pg := testutil.StartPostgres(t)
	repo := repository.NewWithPool(pg.Pool)
	svc := NewService(repo.Ratings)
	ctx := context.Background()

	movie, err := repo.Movies.Create(ctx, repository.MovieCreateParams{Name: "Integration", Price: 5})
	require.NoError(t, err)

	first, outcome, err := svc.Submit(ctx, "alice", movie.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	second, outcome, err := svc.Submit(ctx, "alice", movie.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))

	_, _, err = svc.Submit(ctx, "bob", movie.ID, 4)
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, "carol", movie.ID, 5)
	require.NoError(t, err)

	summary, err := svc.Average(ctx, movie.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RatingSummary{Average: 4.0, Count: 3}, summary)

	_, _, err = svc.Submit(ctx, "alice", movie.ID, 9)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	stored, err := svc.Get(ctx, "alice", movie.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Value)
}
