package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/moviestore/internal/domain"
)

// ProfilesRepository stores each user's default shipping location.
type ProfilesRepository struct {
	db dbtx
}

// Get returns the profile for userID or ErrNotFound.
func (r *ProfilesRepository) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	const query = `SELECT user_id, state, country, created_at, updated_at FROM user_profiles WHERE user_id = $1`
	var p domain.UserProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.State, &p.Country, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, ErrNotFound
		}
		return domain.UserProfile{}, err
	}
	return p, nil
}

// Upsert creates the profile on first use and overwrites its location after.
func (r *ProfilesRepository) Upsert(ctx context.Context, userID, state, country string) (domain.UserProfile, error) {
	const query = `
        INSERT INTO user_profiles (user_id, state, country)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id)
        DO UPDATE SET state = EXCLUDED.state, country = EXCLUDED.country, updated_at = now()
        RETURNING user_id, state, country, created_at, updated_at
    `
	var p domain.UserProfile
	err := r.db.QueryRow(ctx, query, userID, state, country).Scan(&p.UserID, &p.State, &p.Country, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
