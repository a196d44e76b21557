package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atharvakonge/finance/internal/models"
)

// CreateUser inserts a user. A duplicate username yields ErrUsernameTaken.
func (r *Repository) CreateUser(ctx context.Context, username, hash string, cash decimal.Decimal) (models.User, error) {
	u := models.User{
		Username: username,
		Hash:     hash,
	}

	err := r.db.QueryRowContext(ctx, `
        INSERT INTO users (username, hash, cash)
        VALUES ($1, $2, $3)
        RETURNING id, cash, created_at
    `, username, hash, cash).Scan(&u.ID, &u.Cash, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, fmt.Errorf("r.db.QueryRowContext -> insert user -> %w", err)
	}

	return u, nil
}

// FindUserByUsername looks a user up by exact, case-sensitive username.
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findUser(ctx, "username = $1", username)
}

// FindUserByID returns ErrUserNotFound when no user has id.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (models.User, error) {
	return r.findUser(ctx, "id = $1", id)
}

func (r *Repository) findUser(ctx context.Context, where string, arg any) (models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, hash, cash, created_at FROM users WHERE "+where,
		arg,
	).Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("r.db.QueryRowContext -> select user -> %w", err)
	}

	return u, nil
}
