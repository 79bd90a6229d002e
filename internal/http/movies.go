package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/moviestore/internal/domain"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
	"github.com/Clark-Hu/moviestore/internal/popularity"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

const maxListLimit = 100

type movieResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Price       int       `json:"price"`
	Description string    `json:"description"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type movieListResponse struct {
	Items      []movieResponse `json:"items"`
	NextCursor *string         `json:"nextCursor,omitempty"`
}

type ratingSummaryResponse struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

type movieDetailResponse struct {
	movieResponse
	Rating  ratingSummaryResponse `json:"rating"`
	Reviews []reviewResponse      `json:"reviews"`
}

type scopeResponse struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

type trendingItemResponse struct {
	Movie     movieResponse `json:"movie"`
	Purchases int64         `json:"purchases"`
}

type trendingResponse struct {
	Scope scopeResponse          `json:"scope"`
	Items []trendingItemResponse `json:"items"`
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	filters, err := buildMovieFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.repo.Movies.List(r.Context(), filters)
	if err != nil {
		s.respondError(w, r, apperrors.Wrap(apperrors.CodeInternal, err, "list movies"))
		return
	}

	items := make([]movieResponse, 0, len(result.Items))
	for _, movie := range result.Items {
		items = append(items, toMovieResponse(movie))
	}
	s.respondJSON(w, http.StatusOK, movieListResponse{Items: items, NextCursor: result.NextCursor})
}

// buildMovieFilters reads search, limit and cursor from the query string.
// "q" is accepted as a shorter alias of "search".
func buildMovieFilters(query url.Values) (repository.MovieListFilters, error) {
	var filters repository.MovieListFilters

	search := strings.TrimSpace(query.Get("search"))
	if search == "" {
		search = strings.TrimSpace(query.Get("q"))
	}
	if search != "" {
		filters.Search = &search
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 1 || limit > maxListLimit {
			return filters, apperrors.New(apperrors.CodeBadRequest, "invalid limit value").
				WithDetails(map[string]any{"field": "limit", "min": 1, "max": maxListLimit})
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, apperrors.Wrap(apperrors.CodeBadRequest, err, "invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleGetMovie(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	movie, err := s.repo.Movies.GetByID(r.Context(), movieID)
	if err != nil {
		s.respondError(w, r, movieLookupError(err))
		return
	}
	reviews, err := s.repo.Reviews.ListByMovie(r.Context(), movie.ID)
	if err != nil {
		s.respondError(w, r, apperrors.Wrap(apperrors.CodeInternal, err, "list reviews"))
		return
	}
	summary, err := s.ratings.Average(r.Context(), movie.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := movieDetailResponse{
		movieResponse: toMovieResponse(movie),
		Rating:        toRatingSummaryResponse(summary),
		Reviews:       make([]reviewResponse, 0, len(reviews)),
	}
	for _, review := range reviews {
		resp.Reviews = append(resp.Reviews, toReviewResponse(review))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("state")
	trending, err := s.popularity.Trending(r.Context(), region, UserIDFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Debug(s.logger.WithField(r.Context(), "scope", trending.Scope.String()), "trending.scope_resolved")

	resp := trendingResponse{
		Scope: toScopeResponse(trending.Scope),
		Items: make([]trendingItemResponse, 0, len(trending.Movies)),
	}
	for _, entry := range trending.Movies {
		resp.Items = append(resp.Items, trendingItemResponse{
			Movie:     toMovieResponse(entry.Movie),
			Purchases: entry.Purchases,
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePopularityMap(w http.ResponseWriter, r *http.Request) {
	regions, err := s.popularity.RegionalPopularity(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, regions)
}

func movieLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeNotFound, err, "movie not found")
	}
	return apperrors.Wrap(apperrors.CodeInternal, err, "load movie")
}

func toMovieResponse(movie domain.Movie) movieResponse {
	return movieResponse{
		ID:          movie.ID,
		Name:        movie.Name,
		Price:       movie.Price,
		Description: movie.Description,
		Image:       movie.Image,
		CreatedAt:   movie.CreatedAt,
	}
}

func toRatingSummaryResponse(summary domain.RatingSummary) ratingSummaryResponse {
	return ratingSummaryResponse{Average: summary.Average, Count: summary.Count}
}

func toScopeResponse(scope popularity.Scope) scopeResponse {
	if scope.Kind == "" || scope.Kind == popularity.ScopeGlobal {
		return scopeResponse{Kind: string(popularity.ScopeGlobal)}
	}
	return scopeResponse{Kind: string(scope.Kind), Value: scope.Value}
}
