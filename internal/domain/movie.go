package domain

import "time"

// Movie represents a catalog entry. Price is stored in whole currency units.
type Movie struct {
	ID          int64
	Name        string
	Price       int
	Description string
	Image       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Review is a free-text comment left by a user on a movie.
type Review struct {
	ID        int64
	MovieID   int64
	UserID    string
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
