package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/Clark-Hu/moviestore/internal/checkout"
	"github.com/Clark-Hu/moviestore/internal/domain"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

type orderItemResponse struct {
	MovieID   int64  `json:"movieId"`
	MovieName string `json:"movieName"`
	Price     int    `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int    `json:"subtotal"`
}

type orderResponse struct {
	ID        int64               `json:"id"`
	Total     int                 `json:"total"`
	State     string              `json:"state"`
	Country   string              `json:"country"`
	CreatedAt time.Time           `json:"createdAt"`
	Items     []orderItemResponse `json:"items"`
}

type profileRequest struct {
	State   string `json:"state"`
	Country string `json:"country"`
}

type profileResponse struct {
	State     string     `json:"state"`
	Country   string     `json:"country"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.repo.Orders.ListByUser(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, apperrors.Wrap(apperrors.CodeInternal, err, "list orders"))
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"items": resp})
}

// handleGetProfile answers with an empty location for users who never
// checked out or saved a profile.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.repo.Profiles.Get(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondJSON(w, http.StatusOK, profileResponse{})
			return
		}
		s.respondError(w, r, apperrors.Wrap(apperrors.CodeInternal, err, "load profile"))
		return
	}
	s.respondJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	loc, err := checkout.Location{State: req.State, Country: req.Country}.Normalize()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	profile, err := s.repo.Profiles.Upsert(r.Context(), UserIDFromContext(r.Context()), loc.State, loc.Country)
	if err != nil {
		s.respondError(w, r, apperrors.Wrap(apperrors.CodeInternal, err, "save profile"))
		return
	}
	s.respondJSON(w, http.StatusOK, toProfileResponse(profile))
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:        order.ID,
		Total:     order.Total,
		State:     order.State,
		Country:   order.Country,
		CreatedAt: order.CreatedAt,
		Items:     make([]orderItemResponse, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			MovieID:   item.MovieID,
			MovieName: item.MovieName,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal(),
		})
	}
	return resp
}

func toProfileResponse(profile domain.UserProfile) profileResponse {
	updated := profile.UpdatedAt
	return profileResponse{State: profile.State, Country: profile.Country, UpdatedAt: &updated}
}
