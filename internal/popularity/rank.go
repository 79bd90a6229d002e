package popularity

import (
	"sort"
	"strings"

	"github.com/Clark-Hu/moviestore/internal/domain"
)

// TrendingLimit caps the trending list.
const TrendingLimit = 10

// Sentinel returned by the regional map when no located order exists.
const (
	NoDataRegion = "No data"
	NoDataMovie  = "No purchases yet"
)

// RankTrending orders movies by purchases descending, breaking ties by movie
// id ascending, drops zero counts and truncates to limit. A limit <= 0 keeps
// every entry. The input slice is not modified.
func RankTrending(in []domain.MoviePurchases, limit int) []domain.MoviePurchases {
	out := make([]domain.MoviePurchases, 0, len(in))
	for _, mp := range in {
		if mp.Purchases > 0 {
			out = append(out, mp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Purchases != out[j].Purchases {
			return out[i].Purchases > out[j].Purchases
		}
		return out[i].Movie.ID < out[j].Movie.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GroupByRegion folds (state, movie) counts into a state-keyed map. Each
// state's list is sorted by count descending, then movie name ascending.
// Duplicate (state, movie) rows are summed and blank states are skipped. An
// empty result is replaced by the no-data sentinel.
func GroupByRegion(in []domain.RegionMovieCount) map[string][]domain.MovieCount {
	totals := make(map[string]map[string]int64)
	for _, rc := range in {
		state := strings.TrimSpace(rc.State)
		if state == "" || rc.Count <= 0 {
			continue
		}
		movies, ok := totals[state]
		if !ok {
			movies = make(map[string]int64)
			totals[state] = movies
		}
		movies[rc.MovieName] += rc.Count
	}

	if len(totals) == 0 {
		return NoData()
	}

	out := make(map[string][]domain.MovieCount, len(totals))
	for state, movies := range totals {
		list := make([]domain.MovieCount, 0, len(movies))
		for name, count := range movies {
			list = append(list, domain.MovieCount{Movie: name, Count: count})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Count != list[j].Count {
				return list[i].Count > list[j].Count
			}
			return list[i].Movie < list[j].Movie
		})
		out[state] = list
	}
	return out
}

// NoData returns a fresh copy of the sentinel map.
func NoData() map[string][]domain.MovieCount {
	return map[string][]domain.MovieCount{
		NoDataRegion: {{Movie: NoDataMovie, Count: 0}},
	}
}
