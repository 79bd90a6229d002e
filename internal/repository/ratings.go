package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/moviestore/internal/domain"
)

// RatingsRepository provides helpers for movie ratings.
type RatingsRepository struct {
	db dbtx
}

// RatingUpsertParams captures the payload required to upsert a rating.
type RatingUpsertParams struct {
	UserID  string
	MovieID int64
	Value   int
}

// RatingUpsertResult reports what the upsert did. Inserted and Changed are
// both false when the stored value already matched.
type RatingUpsertResult struct {
	Rating   domain.Rating
	Inserted bool
	Changed  bool
}

// RatingAggregate is the exact (unrounded) mean and count for one movie.
type RatingAggregate struct {
	Average decimal.Decimal
	Count   int64
}

const ratingColumns = `user_id, movie_id, value, created_at, updated_at`

// Upsert inserts a rating or updates it when the value differs. An identical
// value leaves the row, including updated_at, untouched.
func (r *RatingsRepository) Upsert(ctx context.Context, params RatingUpsertParams) (RatingUpsertResult, error) {
	const query = `
        INSERT INTO ratings (user_id, movie_id, value)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id, movie_id)
        DO UPDATE SET value = EXCLUDED.value, updated_at = now()
        WHERE ratings.value <> EXCLUDED.value
        RETURNING ` + ratingColumns + `, (xmax = 0) AS inserted
    `

	var (
		rating   domain.Rating
		inserted bool
	)
	err := r.db.QueryRow(ctx, query, params.UserID, params.MovieID, params.Value).Scan(
		&rating.UserID,
		&rating.MovieID,
		&rating.Value,
		&rating.CreatedAt,
		&rating.UpdatedAt,
		&inserted,
	)
	switch {
	case err == nil:
		return RatingUpsertResult{Rating: rating, Inserted: inserted, Changed: true}, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := r.Get(ctx, params.MovieID, params.UserID)
		if err != nil {
			return RatingUpsertResult{}, err
		}
		return RatingUpsertResult{Rating: existing}, nil
	case isForeignKeyViolation(err):
		return RatingUpsertResult{}, ErrNotFound
	case isCheckViolation(err):
		return RatingUpsertResult{}, ErrConstraint
	default:
		return RatingUpsertResult{}, err
	}
}

// Aggregate returns the rating average and count for a movie. A movie
// without ratings yields a zero average.
func (r *RatingsRepository) Aggregate(ctx context.Context, movieID int64) (RatingAggregate, error) {
	const query = `
        SELECT COALESCE(AVG(value), 0)::text AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE movie_id = $1
    `

	var (
		avgText string
		agg     RatingAggregate
	)
	if err := r.db.QueryRow(ctx, query, movieID).Scan(&avgText, &agg.Count); err != nil {
		return RatingAggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	avg, err := decimal.NewFromString(avgText)
	if err != nil {
		return RatingAggregate{}, fmt.Errorf("parse rating average %q: %w", avgText, err)
	}
	agg.Average = avg
	return agg, nil
}

// Get retrieves a rating for a specific user/movie combination.
func (r *RatingsRepository) Get(ctx context.Context, movieID int64, userID string) (domain.Rating, error) {
	const query = `SELECT ` + ratingColumns + ` FROM ratings WHERE movie_id = $1 AND user_id = $2`
	var rating domain.Rating
	err := r.db.QueryRow(ctx, query, movieID, userID).Scan(
		&rating.UserID,
		&rating.MovieID,
		&rating.Value,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// Delete removes the user's rating for a movie.
func (r *RatingsRepository) Delete(ctx context.Context, movieID int64, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM ratings WHERE movie_id = $1 AND user_id = $2`, movieID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
