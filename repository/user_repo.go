package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"multiblog-api/apperr"
	"multiblog-api/models"
)

const userColumns = `id, username, email, password_hash, created_at`

func (r *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	err := r.DB.QueryRow(ctx,
		`INSERT INTO users(username, email, password_hash) VALUES ($1,$2,$3) RETURNING id, created_at`,
		u.Username, u.Email, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return models.User{}, classify(err, "create user")
	}
	return u, nil
}

func (r *Store) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

func (r *Store) getUser(ctx context.Context, sql string, arg any) (models.User, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	var u models.User
	err := r.DB.QueryRow(ctx, sql, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, classify(err, "get user")
	}
	return u, nil
}
