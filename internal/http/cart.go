package httpserver

import (
	"net/http"
	"strconv"

	"github.com/Clark-Hu/moviestore/internal/checkout"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
)

type cartItemRequest struct {
	MovieID  int64 `json:"movieId" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"min=1,max=100"`
}

type checkoutRequest struct {
	State   string `json:"state"`
	Country string `json:"country"`
}

type cartLineResponse struct {
	Movie    movieResponse `json:"movie"`
	Quantity int           `json:"quantity"`
	Subtotal int           `json:"subtotal"`
}

type cartResponse struct {
	Lines []cartLineResponse `json:"lines"`
	Total int                `json:"total"`
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.loadCart(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondPricedCart(w, r, http.StatusOK, cart)
}

// handleSetCartItem sets the quantity of one movie, replacing any previous
// quantity for it.
func (s *Server) handleSetCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	cart, err := s.loadCart(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	cart, err = s.checkout.SetQuantity(r.Context(), cart, req.MovieID, req.Quantity)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.saveCart(r, cart); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondPricedCart(w, r, http.StatusOK, cart)
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseIDParam(r, "movieId")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	cart, err := s.loadCart(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	cart = cart.Without(movieID)
	if err := s.saveCart(r, cart); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondPricedCart(w, r, http.StatusOK, cart)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.carts.Clear(r.Context(), UserIDFromContext(r.Context())); err != nil {
		s.respondError(w, r, apperrors.Wrap(apperrors.CodeDependency, err, "clear cart"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	cart, err := s.loadCart(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	order, err := s.checkout.Checkout(r.Context(), UserIDFromContext(r.Context()), cart, checkout.Location{
		State:   req.State,
		Country: req.Country,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.logger.Info(s.logger.WithFields(r.Context(), map[string]any{
		"order_id": order.ID,
		"total":    order.Total,
		"state":    order.State,
	}), "checkout.completed")

	w.Header().Set("Location", "/me/orders#"+strconv.FormatInt(order.ID, 10))
	s.respondJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (s *Server) loadCart(r *http.Request) (checkout.Cart, error) {
	cart, err := s.carts.Load(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		return checkout.Cart{}, apperrors.Wrap(apperrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func (s *Server) saveCart(r *http.Request, cart checkout.Cart) error {
	if err := s.carts.Save(r.Context(), UserIDFromContext(r.Context()), cart); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "save cart")
	}
	return nil
}

func (s *Server) respondPricedCart(w http.ResponseWriter, r *http.Request, status int, cart checkout.Cart) {
	priced, err := s.checkout.Price(r.Context(), cart)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := cartResponse{Lines: make([]cartLineResponse, 0, len(priced.Lines)), Total: priced.Total}
	for _, line := range priced.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			Movie:    toMovieResponse(line.Movie),
			Quantity: line.Quantity,
			Subtotal: line.Subtotal,
		})
	}
	s.respondJSON(w, status, resp)
}
