package httpserver

import (
	"net/http"
	"time"

	"github.com/Clark-Hu/moviestore/internal/domain"
	"github.com/Clark-Hu/moviestore/internal/ratings"
)

type ratingRequest struct {
	Rating *float64 `json:"rating" validate:"required"`
}

type ratingResponse struct {
	MovieID   int64     `json:"movieId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Outcome   string    `json:"outcome,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// handleSubmitRating creates or replaces the caller's rating. A new rating
// answers 201; an update or an identical resubmission answers 200.
func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	value, err := ratings.ParseValue(*req.Rating)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rating, outcome, err := s.ratings.Submit(r.Context(), UserIDFromContext(r.Context()), movieID, value)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if outcome == ratings.OutcomeCreated {
		status = http.StatusCreated
	}
	resp := toRatingResponse(rating)
	resp.Outcome = string(outcome)
	s.respondJSON(w, status, resp)
}

func (s *Server) handleGetRatingSummary(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if _, err := s.repo.Movies.GetByID(r.Context(), movieID); err != nil {
		s.respondError(w, r, movieLookupError(err))
		return
	}
	summary, err := s.ratings.Average(r.Context(), movieID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingSummaryResponse(summary))
}

func (s *Server) handleGetMyRating(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rating, err := s.ratings.Get(r.Context(), UserIDFromContext(r.Context()), movieID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingResponse(rating))
}

func (s *Server) handleDeleteMyRating(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.ratings.Remove(r.Context(), UserIDFromContext(r.Context()), movieID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toRatingResponse(rating domain.Rating) ratingResponse {
	return ratingResponse{
		MovieID:   rating.MovieID,
		UserID:    rating.UserID,
		Rating:    rating.Value,
		UpdatedAt: rating.UpdatedAt,
	}
}
