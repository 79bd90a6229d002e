package domain

import "time"

// Rating represents a single user's 1-5 star rating for a movie.
type Rating struct {
	UserID    string
	MovieID   int64
	Value     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingSummary provides the rounded average and count for a movie's ratings.
type RatingSummary struct {
	Average float64
	Count   int64
}
