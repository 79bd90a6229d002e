package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/moviestore/internal/domain"
	"github.com/Clark-Hu/moviestore/internal/testutil"
)

type testEnv struct {
	ctx        context.Context
	pool       *pgxpool.Pool
	repository *Repository
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	pg := testutil.StartPostgres(t)
	return &testEnv{
		ctx:        context.Background(),
		pool:       pg.Pool,
		repository: NewWithPool(pg.Pool),
	}
}

func mustCreateMovie(t testing.TB, env *testEnv, name string, price int) domain.Movie {
	t.Helper()
	movie, err := env.repository.Movies.Create(env.ctx, MovieCreateParams{
		Name:        name,
		Price:       price,
		Description: name + " description",
	})
	if err != nil {
		t.Fatalf("create movie %q: %v", name, err)
	}
	return movie
}

func mustCreateOrder(t testing.TB, env *testEnv, userID, state, country string, items ...OrderItemParams) domain.Order {
	t.Helper()
	order, err := env.repository.Orders.Create(env.ctx, OrderCreateParams{
		UserID:  userID,
		State:   state,
		Country: country,
		Items:   items,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func countRatings(t testing.TB, env *testEnv, movieID int64, userID string) int64 {
	t.Helper()
	var n int64
	err := env.pool.QueryRow(env.ctx, `SELECT COUNT(*) FROM ratings WHERE movie_id = $1 AND user_id = $2`, movieID, userID).Scan(&n)
	if err != nil {
		t.Fatalf("count ratings: %v", err)
	}
	return n
}

func TestMoviesRepository_CreateGetList(t *testing.T) {
	env := newTestEnv(t)

	movieA := mustCreateMovie(t, env, "Avatar", 12)
	movieB := mustCreateMovie(t, env, "Titanic", 9)
	mustCreateMovie(t, env, "The Avengers", 15)

	gotByName, err := env.repository.Movies.GetByName(env.ctx, "Avatar")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if gotByName.ID != movieA.ID || gotByName.Price != 12 {
		t.Fatalf("GetByName = %+v, want %+v", gotByName, movieA)
	}

	if _, err := env.repository.Movies.GetByID(env.ctx, 999999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown ID, got %v", err)
	}

	filters := MovieListFilters{Limit: 2}
	firstPage, err := env.repository.Movies.List(env.ctx, filters)
	if err != nil {
		t.Fatalf("List first page: %v", err)
	}
	if len(firstPage.Items) != 2 {
		t.Fatalf("first page size = %d, want 2", len(firstPage.Items))
	}
	if firstPage.NextCursor == nil {
		t.Fatalf("expected next cursor")
	}

	cursor, err := DecodeCursor(*firstPage.NextCursor)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	filters.Cursor = cursor
	secondPage, err := env.repository.Movies.List(env.ctx, filters)
	if err != nil {
		t.Fatalf("List second page: %v", err)
	}
	if len(secondPage.Items) != 1 {
		t.Fatalf("second page size = %d, want 1", len(secondPage.Items))
	}
	if secondPage.NextCursor != nil {
		t.Fatalf("expected no cursor on last page")
	}
	for _, m := range firstPage.Items {
		if m.ID == secondPage.Items[0].ID {
			t.Fatalf("pagination returned duplicate movie")
		}
	}

	search := "AV"
	found, err := env.repository.Movies.List(env.ctx, MovieListFilters{Search: &search})
	if err != nil {
		t.Fatalf("List search: %v", err)
	}
	if len(found.Items) != 2 {
		t.Fatalf("search %q returned %d movies, want 2", search, len(found.Items))
	}

	wildcard := "%"
	none, err := env.repository.Movies.List(env.ctx, MovieListFilters{Search: &wildcard})
	if err != nil {
		t.Fatalf("List wildcard: %v", err)
	}
	if len(none.Items) != 0 {
		t.Fatalf("literal %% search should match nothing, got %d", len(none.Items))
	}

	byIDs, err := env.repository.Movies.ListByIDs(env.ctx, []int64{movieA.ID, movieB.ID, 424242})
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(byIDs) != 2 || byIDs[movieB.ID].Name != "Titanic" {
		t.Fatalf("ListByIDs = %+v", byIDs)
	}

	newPrice := 20
	updated, err := env.repository.Movies.Update(env.ctx, movieB.ID, MovieUpdateParams{Price: &newPrice})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Price != 20 || updated.Name != "Titanic" {
		t.Fatalf("Update = %+v", updated)
	}
}

func TestMoviesRepository_RejectsNegativePrice(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.repository.Movies.Create(env.ctx, MovieCreateParams{Name: "Bad", Price: -1})
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("expected ErrConstraint, got %v", err)
	}
}

func TestReviewsRepository_Ownership(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Review Movie", 10)

	first, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: movie.ID, UserID: "alice", Comment: "great"})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if _, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: movie.ID, UserID: "alice", Comment: "still great"}); err != nil {
		t.Fatalf("second review by same user should be allowed: %v", err)
	}

	if _, err := env.repository.Reviews.Update(env.ctx, first.ID, "bob", "hijack"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-owner update should be ErrNotFound, got %v", err)
	}
	if err := env.repository.Reviews.Delete(env.ctx, first.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-owner delete should be ErrNotFound, got %v", err)
	}

	edited, err := env.repository.Reviews.Update(env.ctx, first.ID, "alice", "even better")
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if edited.Comment != "even better" {
		t.Fatalf("comment = %q", edited.Comment)
	}

	reviews, err := env.repository.Reviews.ListByMovie(env.ctx, movie.ID)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("reviews = %d, want 2", len(reviews))
	}

	if err := env.repository.Reviews.Delete(env.ctx, first.ID, "alice"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := env.repository.Reviews.Create(env.ctx, ReviewCreateParams{MovieID: 987654, UserID: "alice", Comment: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("review on unknown movie should be ErrNotFound, got %v", err)
	}
}

func TestRatingsRepository_UpsertOutcomes(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Rating Movie", 10)
	params := RatingUpsertParams{UserID: "user1", MovieID: movie.ID, Value: 4}

	created, err := env.repository.Ratings.Upsert(env.ctx, params)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created.Inserted || !created.Changed {
		t.Fatalf("expected first upsert to insert, got %+v", created)
	}

	time.Sleep(10 * time.Millisecond)
	same, err := env.repository.Ratings.Upsert(env.ctx, params)
	if err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}
	if same.Inserted || same.Changed {
		t.Fatalf("repeat upsert should be a no-op, got %+v", same)
	}
	if !same.Rating.UpdatedAt.Equal(created.Rating.UpdatedAt) {
		t.Fatalf("updated_at moved on identical value: %v -> %v", created.Rating.UpdatedAt, same.Rating.UpdatedAt)
	}

	params.Value = 2
	updated, err := env.repository.Ratings.Upsert(env.ctx, params)
	if err != nil {
		t.Fatalf("update upsert: %v", err)
	}
	if updated.Inserted || !updated.Changed || updated.Rating.Value != 2 {
		t.Fatalf("expected update, got %+v", updated)
	}
	if !updated.Rating.UpdatedAt.After(created.Rating.UpdatedAt) {
		t.Fatalf("updated_at should advance on change")
	}

	if n := countRatings(t, env, movie.ID, "user1"); n != 1 {
		t.Fatalf("rating rows = %d, want 1", n)
	}

	if _, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: "user1", MovieID: 777777, Value: 3}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown movie should be ErrNotFound, got %v", err)
	}
	if _, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: "user1", MovieID: movie.ID, Value: 6}); !errors.Is(err, ErrConstraint) {
		t.Fatalf("out of range value should hit the check constraint, got %v", err)
	}

	if err := env.repository.Ratings.Delete(env.ctx, movie.ID, "user1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.repository.Ratings.Delete(env.ctx, movie.ID, "user1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestRatingsRepository_Aggregate(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Average Movie", 10)
	empty := mustCreateMovie(t, env, "No Ratings Movie", 10)

	for i, v := range []int{3, 4, 5} {
		if _, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: fmt.Sprintf("u%d", i), MovieID: movie.ID, Value: v}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	agg, err := env.repository.Ratings.Aggregate(env.ctx, movie.ID)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 3 || agg.Average.StringFixed(1) != "4.0" {
		t.Fatalf("aggregate = %s/%d, want 4.0/3", agg.Average, agg.Count)
	}

	agg, err = env.repository.Ratings.Aggregate(env.ctx, empty.ID)
	if err != nil {
		t.Fatalf("aggregate without ratings: %v", err)
	}
	if agg.Count != 0 || !agg.Average.IsZero() {
		t.Fatalf("aggregate = %s/%d, want 0/0", agg.Average, agg.Count)
	}
}

func TestRatingsRepository_ConcurrentUpsertsSamePair(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Concurrent Movie", 10)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(value int) {
			defer wg.Done()
			params := RatingUpsertParams{UserID: "racer", MovieID: movie.ID, Value: value}
			if _, err := env.repository.Ratings.Upsert(env.ctx, params); err != nil {
				t.Errorf("upsert failed: %v", err)
			}
		}(i%5 + 1)
	}
	wg.Wait()

	if n := countRatings(t, env, movie.ID, "racer"); n != 1 {
		t.Fatalf("rating rows = %d, want exactly 1", n)
	}
}

func TestRatingsRepository_ConcurrentUpsertsDistinctUsers(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Crowd Movie", 10)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			res, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{UserID: user, MovieID: movie.ID, Value: 4})
			if err != nil {
				t.Errorf("upsert failed for %s: %v", user, err)
			} else if !res.Inserted {
				t.Errorf("expected insert for %s", user)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	agg, err := env.repository.Ratings.Aggregate(env.ctx, movie.ID)
	if err != nil {
		t.Fatalf("aggregate after concurrent upserts: %v", err)
	}
	if agg.Count != workers {
		t.Fatalf("agg.Count = %d, want %d", agg.Count, workers)
	}
}

func TestOrdersRepository_PurchaseAggregations(t *testing.T) {
	env := newTestEnv(t)
	movieA := mustCreateMovie(t, env, "Movie A", 10)
	movieB := mustCreateMovie(t, env, "Movie B", 7)

	mustCreateOrder(t, env, "u1", "CA", "United States",
		OrderItemParams{MovieID: movieA.ID, Price: 10, Quantity: 2},
		OrderItemParams{MovieID: movieB.ID, Price: 7, Quantity: 5},
	)
	mustCreateOrder(t, env, "u2", "TX", "United States",
		OrderItemParams{MovieID: movieB.ID, Price: 7, Quantity: 1},
	)
	mustCreateOrder(t, env, "u3", "", "",
		OrderItemParams{MovieID: movieA.ID, Price: 10, Quantity: 1},
	)

	tests := []struct {
		name   string
		filter PurchaseFilter
		want   []int64
		counts []int64
	}{
		{name: "state CA", filter: PurchaseFilter{State: "CA"}, want: []int64{movieB.ID, movieA.ID}, counts: []int64{5, 2}},
		{name: "state TX", filter: PurchaseFilter{State: "TX"}, want: []int64{movieB.ID}, counts: []int64{1}},
		{name: "country", filter: PurchaseFilter{Country: "United States"}, want: []int64{movieB.ID, movieA.ID}, counts: []int64{6, 2}},
		{name: "global", filter: PurchaseFilter{}, want: []int64{movieB.ID, movieA.ID}, counts: []int64{6, 3}},
		{name: "limit", filter: PurchaseFilter{Limit: 1}, want: []int64{movieB.ID}, counts: []int64{6}},
		{name: "unknown state", filter: PurchaseFilter{State: "NY"}, want: []int64{}, counts: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.repository.Orders.PurchaseCounts(env.ctx, tt.filter)
			if err != nil {
				t.Fatalf("PurchaseCounts: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Movie.ID != tt.want[i] || got[i].Purchases != tt.counts[i] {
					t.Fatalf("row %d = (%d,%d), want (%d,%d)", i, got[i].Movie.ID, got[i].Purchases, tt.want[i], tt.counts[i])
				}
			}
		})
	}

	regional, err := env.repository.Orders.RegionalPurchaseCounts(env.ctx)
	if err != nil {
		t.Fatalf("RegionalPurchaseCounts: %v", err)
	}
	got := map[string]int64{}
	for _, rc := range regional {
		got[rc.State+"/"+rc.MovieName] = rc.Count
	}
	want := map[string]int64{"CA/Movie A": 2, "CA/Movie B": 5, "TX/Movie B": 1}
	if len(got) != len(want) {
		t.Fatalf("regional = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("regional[%s] = %d, want %d", k, got[k], v)
		}
	}
}

func TestOrdersRepository_PurchaseAggregationTies(t *testing.T) {
	env := newTestEnv(t)
	zulu := mustCreateMovie(t, env, "Zulu", 5)
	alpha := mustCreateMovie(t, env, "Alpha", 5)

	mustCreateOrder(t, env, "u1", "NY", "United States",
		OrderItemParams{MovieID: zulu.ID, Price: 5, Quantity: 2},
		OrderItemParams{MovieID: alpha.ID, Price: 5, Quantity: 1},
	)
	mustCreateOrder(t, env, "u2", "NY", "United States",
		OrderItemParams{MovieID: alpha.ID, Price: 5, Quantity: 1},
	)

	got, err := env.repository.Orders.PurchaseCounts(env.ctx, PurchaseFilter{State: "NY"})
	if err != nil {
		t.Fatalf("PurchaseCounts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].Movie.ID != zulu.ID || got[1].Movie.ID != alpha.ID || got[0].Purchases != 2 || got[1].Purchases != 2 {
		t.Fatalf("equal counts should order by movie id, got (%d,%d) (%d,%d)",
			got[0].Movie.ID, got[0].Purchases, got[1].Movie.ID, got[1].Purchases)
	}

	regional, err := env.repository.Orders.RegionalPurchaseCounts(env.ctx)
	if err != nil {
		t.Fatalf("RegionalPurchaseCounts: %v", err)
	}
	counts := map[string]int64{}
	for _, rc := range regional {
		counts[rc.State+"/"+rc.MovieName] = rc.Count
	}
	if len(counts) != 2 || counts["NY/Zulu"] != 2 || counts["NY/Alpha"] != 2 {
		t.Fatalf("regional = %v", counts)
	}
}

func TestOrdersRepository_CreateIsAtomicAndSnapshotsPrice(t *testing.T) {
	env := newTestEnv(t)
	movie := mustCreateMovie(t, env, "Snapshot", 10)

	order := mustCreateOrder(t, env, "buyer", "CA", "United States",
		OrderItemParams{MovieID: movie.ID, Price: movie.Price, Quantity: 3},
	)
	if order.Total != 30 || len(order.Items) != 1 || order.Items[0].ID == 0 {
		t.Fatalf("order = %+v", order)
	}

	newPrice := 99
	if _, err := env.repository.Movies.Update(env.ctx, movie.ID, MovieUpdateParams{Price: &newPrice}); err != nil {
		t.Fatalf("update price: %v", err)
	}

	history, err := env.repository.Orders.ListByUser(env.ctx, "buyer")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(history) != 1 || history[0].Total != 30 || history[0].Items[0].Price != 10 || history[0].Items[0].MovieName != "Snapshot" {
		t.Fatalf("history = %+v", history)
	}

	_, err = env.repository.Orders.Create(env.ctx, OrderCreateParams{
		UserID: "buyer",
		Items: []OrderItemParams{
			{MovieID: movie.ID, Price: 10, Quantity: 1},
			{MovieID: 55555, Price: 10, Quantity: 1},
		},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown movie should be ErrNotFound, got %v", err)
	}
	history, err = env.repository.Orders.ListByUser(env.ctx, "buyer")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("failed order left %d orders, want 1", len(history))
	}

	if _, err := env.repository.Orders.Create(env.ctx, OrderCreateParams{UserID: "buyer"}); !errors.Is(err, ErrConstraint) {
		t.Fatalf("empty order should be ErrConstraint, got %v", err)
	}
}

func TestProfilesRepository_UpsertAndTxRollback(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.repository.Profiles.Get(env.ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p, err := env.repository.Profiles.Upsert(env.ctx, "carol", "CA", "United States")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if p.State != "CA" {
		t.Fatalf("state = %s", p.State)
	}

	boom := errors.New("boom")
	err = env.repository.WithTx(env.ctx, func(tx *Repository) error {
		if _, err := tx.Profiles.Upsert(env.ctx, "carol", "NY", "United States"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}

	got, err := env.repository.Profiles.Get(env.ctx, "carol")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != "CA" {
		t.Fatalf("rolled back profile state = %s, want CA", got.State)
	}
}

func BenchmarkMoviesRepositoryCreate(b *testing.B) {
	env := newTestEnv(b)

	for i := 0; i < b.N; i++ {
		_, err := env.repository.Movies.Create(env.ctx, MovieCreateParams{
			Name:  fmt.Sprintf("Bench Movie %d", i),
			Price: 10,
		})
		if err != nil {
			b.Fatalf("create movie: %v", err)
		}
	}
}

func BenchmarkRatingsRepositoryUpsert(b *testing.B) {
	env := newTestEnv(b)

	movie := mustCreateMovie(b, env, "Bench Movie", 10)
	for i := 0; i < b.N; i++ {
		_, err := env.repository.Ratings.Upsert(env.ctx, RatingUpsertParams{
			UserID:  fmt.Sprintf("bench-%d", i),
			MovieID: movie.ID,
			Value:   4,
		})
		if err != nil {
			b.Fatalf("upsert: %v", err)
		}
	}
}
