package checkout

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/Clark-Hu/moviestore/internal/domain"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
	"github.com/Clark-Hu/moviestore/internal/logger"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

const (
	DefaultCountry    = "United States"
	MaxLocationLength = 100
)

// Location is the shipping destination entered at checkout.
type Location struct {
	State   string
	Country string
}

// Normalize trims both fields, defaults the country and enforces lengths.
func (l Location) Normalize() (Location, error) {
	out := Location{State: strings.TrimSpace(l.State), Country: strings.TrimSpace(l.Country)}
	if out.Country == "" {
		out.Country = DefaultCountry
	}
	details := map[string]string{}
	if out.State == "" {
		details["state"] = "state is required"
	} else if utf8.RuneCountInString(out.State) > MaxLocationLength {
		details["state"] = "state must be at most 100 characters"
	}
	if utf8.RuneCountInString(out.Country) > MaxLocationLength {
		details["country"] = "country must be at most 100 characters"
	}
	if len(details) > 0 {
		return Location{}, apperrors.New(apperrors.CodeValidation, "invalid shipping location").WithDetails(details)
	}
	return out, nil
}

// Tx is the set of writes performed atomically by Checkout.
type Tx interface {
	MoviesByIDs(ctx context.Context, ids []int64) (map[int64]domain.Movie, error)
	UpsertProfile(ctx context.Context, userID, state, country string) (domain.UserProfile, error)
	CreateOrder(ctx context.Context, params repository.OrderCreateParams) (domain.Order, error)
}

// TxRunner executes fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// MovieLookup resolves catalog entries outside of a transaction.
type MovieLookup interface {
	GetByID(ctx context.Context, id int64) (domain.Movie, error)
	ListByIDs(ctx context.Context, ids []int64) (map[int64]domain.Movie, error)
}

// PricedLine is a cart line joined with the current catalog price.
type PricedLine struct {
	Movie    domain.Movie
	Quantity int
	Subtotal int
}

// PricedCart is the cart as shown to the user.
type PricedCart struct {
	Lines []PricedLine
	Total int
}

// Service validates cart edits and performs checkout.
type Service struct {
	movies MovieLookup
	runner TxRunner
	carts  CartStore
	logg   *logger.Logger
}

func NewService(movies MovieLookup, runner TxRunner, carts CartStore, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{movies: movies, runner: runner, carts: carts, logg: logg}
}

// SetQuantity returns cart with movieID set to quantity after checking the
// movie exists. The caller is responsible for persisting the result.
func (s *Service) SetQuantity(ctx context.Context, cart Cart, movieID int64, quantity int) (Cart, error) {
	if quantity < 1 || quantity > MaxLineQuantity {
		return cart, apperrors.New(apperrors.CodeValidation, "invalid quantity").
			WithDetails(map[string]string{"quantity": "quantity must be between 1 and 100"})
	}
	if _, err := s.movies.GetByID(ctx, movieID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return cart, apperrors.Wrap(apperrors.CodeNotFound, err, "movie not found")
		}
		return cart, apperrors.Wrap(apperrors.CodeInternal, err, "load movie")
	}
	return cart.WithQuantity(movieID, quantity), nil
}

// Price joins cart lines with current catalog prices. Movies that no longer
// exist are left out.
func (s *Service) Price(ctx context.Context, cart Cart) (PricedCart, error) {
	movies, err := s.movies.ListByIDs(ctx, cart.MovieIDs())
	if err != nil {
		return PricedCart{}, apperrors.Wrap(apperrors.CodeInternal, err, "load cart movies")
	}
	return priceLines(cart, movies), nil
}

func priceLines(cart Cart, movies map[int64]domain.Movie) PricedCart {
	out := PricedCart{Lines: make([]PricedLine, 0, len(cart.Lines))}
	for _, l := range cart.Lines {
		m, ok := movies[l.MovieID]
		if !ok {
			continue
		}
		sub := m.Price * l.Quantity
		out.Lines = append(out.Lines, PricedLine{Movie: m, Quantity: l.Quantity, Subtotal: sub})
		out.Total += sub
	}
	return out
}

// Checkout places an order for cart in one transaction: the profile location
// is saved, the order is inserted with the current prices snapshotted on each
// item. The stored cart is cleared after commit.
func (s *Service) Checkout(ctx context.Context, userID string, cart Cart, loc Location) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}
	loc, err := loc.Normalize()
	if err != nil {
		return domain.Order{}, err
	}
	if cart.IsEmpty() {
		return domain.Order{}, apperrors.New(apperrors.CodeValidation, "cart is empty")
	}

	var order domain.Order
	err = s.runner.InTx(ctx, func(tx Tx) error {
		movies, err := tx.MoviesByIDs(ctx, cart.MovieIDs())
		if err != nil {
			return err
		}
		items := make([]repository.OrderItemParams, 0, len(cart.Lines))
		for _, l := range cart.Lines {
			m, ok := movies[l.MovieID]
			if !ok {
				return apperrors.New(apperrors.CodeNotFound, "movie in cart no longer exists").
					WithDetails(map[string]int64{"movieId": l.MovieID})
			}
			items = append(items, repository.OrderItemParams{MovieID: m.ID, Price: m.Price, Quantity: l.Quantity})
		}
		if _, err := tx.UpsertProfile(ctx, userID, loc.State, loc.Country); err != nil {
			return err
		}
		order, err = tx.CreateOrder(ctx, repository.OrderCreateParams{
			UserID:  userID,
			State:   loc.State,
			Country: loc.Country,
			Items:   items,
		})
		if err != nil {
			return err
		}
		for i := range order.Items {
			order.Items[i].MovieName = movies[order.Items[i].MovieID].Name
		}
		return nil
	})
	if err != nil {
		if typed := apperrors.As(err); typed != nil {
			return domain.Order{}, typed
		}
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Order{}, apperrors.Wrap(apperrors.CodeNotFound, err, "movie in cart no longer exists")
		}
		return domain.Order{}, apperrors.Wrap(apperrors.CodeInternal, err, "place order")
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logg.Error(ctx, "checkout: clear cart after order", err)
	}
	return order, nil
}

// RepositoryRunner adapts *repository.Repository to TxRunner.
type RepositoryRunner struct {
	Repo *repository.Repository
}

func (r RepositoryRunner) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return r.Repo.WithTx(ctx, func(tx *repository.Repository) error {
		return fn(repositoryTx{tx})
	})
}

type repositoryTx struct {
	repo *repository.Repository
}

func (t repositoryTx) MoviesByIDs(ctx context.Context, ids []int64) (map[int64]domain.Movie, error) {
	return t.repo.Movies.ListByIDs(ctx, ids)
}

func (t repositoryTx) UpsertProfile(ctx context.Context, userID, state, country string) (domain.UserProfile, error) {
	return t.repo.Profiles.Upsert(ctx, userID, state, country)
}

func (t repositoryTx) CreateOrder(ctx context.Context, params repository.OrderCreateParams) (domain.Order, error) {
	return t.repo.Orders.Create(ctx, params)
}
