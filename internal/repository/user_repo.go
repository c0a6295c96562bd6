package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"minerva-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// EnsureAgent upserts the assistant's own user row so message writes can
// reference it. Runs once at startup.
func (r *UserRepo) EnsureAgent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, full_name, is_agent)
		 VALUES ($1, 'assistant@minerva.local', 'Minerva', TRUE)
		 ON CONFLICT (id) DO UPDATE SET is_agent = TRUE`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure agent user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, full_name, is_agent, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.IsAgent, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
