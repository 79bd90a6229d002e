package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Clark-Hu/moviestore/internal/checkout"
	"github.com/Clark-Hu/moviestore/internal/logger"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

type movieEntry struct {
	Name        string `json:"name"`
	Price       int    `json:"price"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type orderLine struct {
	Movie    string `json:"movie"`
	Quantity int    `json:"quantity"`
}

type orderEntry struct {
	User    string      `json:"user"`
	State   string      `json:"state"`
	Country string      `json:"country"`
	Items   []orderLine `json:"items"`
}

type fixture struct {
	Movies []movieEntry `json:"movies"`
	Orders []orderEntry `json:"orders"`
}

type result struct {
	Created int
	Updated int
	Orders  int
}

func parseFixture(raw []byte) (fixture, error) {
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return fixture{}, err
	}
	seen := make(map[string]bool, len(fx.Movies))
	for i, m := range fx.Movies {
		if m.Name == "" {
			return fixture{}, fmt.Errorf("movie %d: name is required", i)
		}
		if m.Price < 0 {
			return fixture{}, fmt.Errorf("movie %q: negative price", m.Name)
		}
		if seen[m.Name] {
			return fixture{}, fmt.Errorf("movie %q listed twice", m.Name)
		}
		seen[m.Name] = true
	}
	return fx, nil
}

// load upserts movies by name so reruns only refresh the catalog. Orders go
// through checkout and are appended on every run.
func load(ctx context.Context, repo *repository.Repository, fx fixture, logg *logger.Logger) (result, error) {
	var res result
	ids := make(map[string]int64, len(fx.Movies))
	for _, m := range fx.Movies {
		existing, err := repo.Movies.GetByName(ctx, m.Name)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			created, err := repo.Movies.Create(ctx, repository.MovieCreateParams{
				Name:        m.Name,
				Price:       m.Price,
				Description: m.Description,
				Image:       m.Image,
			})
			if err != nil {
				return res, fmt.Errorf("create movie %q: %w", m.Name, err)
			}
			ids[m.Name] = created.ID
			res.Created++
		case err != nil:
			return res, fmt.Errorf("lookup movie %q: %w", m.Name, err)
		default:
			entry := m
			updated, err := repo.Movies.Update(ctx, existing.ID, repository.MovieUpdateParams{
				Price:       &entry.Price,
				Description: &entry.Description,
				Image:       &entry.Image,
			})
			if err != nil {
				return res, fmt.Errorf("update movie %q: %w", m.Name, err)
			}
			ids[m.Name] = updated.ID
			res.Updated++
		}
	}

	svc := checkout.NewService(repo.Movies, checkout.RepositoryRunner{Repo: repo}, checkout.NewMemoryCartStore(), logg)
	for i, o := range fx.Orders {
		cart := checkout.Cart{}
		for _, line := range o.Items {
			id, ok := ids[line.Movie]
			if !ok {
				movie, err := repo.Movies.GetByName(ctx, line.Movie)
				if err != nil {
					return res, fmt.Errorf("order %d: movie %q: %w", i, line.Movie, err)
				}
				id = movie.ID
			}
			var err error
			cart, err = svc.SetQuantity(ctx, cart, id, cart.Quantity(id)+line.Quantity)
			if err != nil {
				return res, fmt.Errorf("order %d: %w", i, err)
			}
		}
		if _, err := svc.Checkout(ctx, o.User, cart, checkout.Location{State: o.State, Country: o.Country}); err != nil {
			return res, fmt.Errorf("order %d for %s: %w", i, o.User, err)
		}
		res.Orders++
	}
	return res, nil
}
