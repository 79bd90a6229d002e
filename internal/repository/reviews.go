package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/moviestore/internal/domain"
)

// ReviewsRepository stores user reviews. Mutations are scoped to the author.
type ReviewsRepository struct {
	db dbtx
}

// ReviewCreateParams captures the payload required to create a review.
type ReviewCreateParams struct {
	MovieID int64
	UserID  string
	Comment string
}

const reviewColumns = `id, movie_id, user_id, comment, created_at, updated_at`

// Create inserts a review. An unknown movie yields ErrNotFound.
func (r *ReviewsRepository) Create(ctx context.Context, params ReviewCreateParams) (domain.Review, error) {
	const query = `
        INSERT INTO reviews (movie_id, user_id, comment)
        VALUES ($1,$2,$3)
        RETURNING ` + reviewColumns

	review, err := scanReview(r.db.QueryRow(ctx, query, params.MovieID, params.UserID, params.Comment))
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Review{}, ErrNotFound
		}
		if isCheckViolation(err) {
			return domain.Review{}, ErrConstraint
		}
		return domain.Review{}, err
	}
	return review, nil
}

// ListByMovie returns a movie's reviews, newest first.
func (r *ReviewsRepository) ListByMovie(ctx context.Context, movieID int64) ([]domain.Review, error) {
	const query = `SELECT ` + reviewColumns + ` FROM reviews WHERE movie_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

// Update replaces the comment of a review owned by userID. Reviews owned by
// someone else are reported as ErrNotFound.
func (r *ReviewsRepository) Update(ctx context.Context, id int64, userID, comment string) (domain.Review, error) {
	const query = `
        UPDATE reviews
        SET comment = $3, updated_at = now()
        WHERE id = $1 AND user_id = $2
        RETURNING ` + reviewColumns

	review, err := scanReview(r.db.QueryRow(ctx, query, id, userID, comment))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Review{}, ErrNotFound
		}
		if isCheckViolation(err) {
			return domain.Review{}, ErrConstraint
		}
		return domain.Review{}, err
	}
	return review, nil
}

// Delete removes a review owned by userID.
func (r *ReviewsRepository) Delete(ctx context.Context, id int64, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var review domain.Review
	err := row.Scan(
		&review.ID,
		&review.MovieID,
		&review.UserID,
		&review.Comment,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	return review, err
}
