package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/moviestore/internal/domain"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

type reviewRequest struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

type reviewResponse struct {
	ID        int64     `json:"id"`
	MovieID   int64     `json:"movieId"`
	UserID    string    `json:"userId"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (req reviewRequest) comment() (string, error) {
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		return "", apperrors.New(apperrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"comment": "is required"})
	}
	return comment, nil
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	comment, err := req.comment()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	review, err := s.repo.Reviews.Create(r.Context(), repository.ReviewCreateParams{
		MovieID: movieID,
		UserID:  UserIDFromContext(r.Context()),
		Comment: comment,
	})
	if err != nil {
		s.respondError(w, r, reviewError(err, "movie not found"))
		return
	}

	w.Header().Set("Location", "/reviews/"+strconv.FormatInt(review.ID, 10))
	s.respondJSON(w, http.StatusCreated, toReviewResponse(review))
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	reviewID, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	comment, err := req.comment()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	review, err := s.repo.Reviews.Update(r.Context(), reviewID, UserIDFromContext(r.Context()), comment)
	if err != nil {
		s.respondError(w, r, reviewError(err, "review not found"))
		return
	}
	s.respondJSON(w, http.StatusOK, toReviewResponse(review))
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	reviewID, err := parseIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.repo.Reviews.Delete(r.Context(), reviewID, UserIDFromContext(r.Context())); err != nil {
		s.respondError(w, r, reviewError(err, "review not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reviewError maps repository errors. Another user's review is reported the
// same way as a missing one.
func reviewError(err error, notFound string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.Wrap(apperrors.CodeNotFound, err, notFound)
	case errors.Is(err, repository.ErrConstraint):
		return apperrors.Wrap(apperrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{"comment": "is required"})
	default:
		return apperrors.Wrap(apperrors.CodeInternal, err, "store review")
	}
}

func toReviewResponse(review domain.Review) reviewResponse {
	return reviewResponse{
		ID:        review.ID,
		MovieID:   review.MovieID,
		UserID:    review.UserID,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt,
		UpdatedAt: review.UpdatedAt,
	}
}
