package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"multiblog-api/apperr"
)

type Options struct {
	// Timeout bounds every store call. Zero means 3s.
	Timeout time.Duration
	// RecountComments derives comments_count from the comments table on
	// every read instead of trusting the stored column.
	RecountComments bool
}

// Store is the PostgreSQL implementation of the user, post and comment
// stores. Every multi-record mutation runs in a single transaction.
type Store struct {
	DB      *pgxpool.Pool
	timeout time.Duration
	recount bool
}

func NewStore(db *pgxpool.Pool, opts Options) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Store{DB: db, timeout: opts.Timeout, recount: opts.RecountComments}
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func (r *Store) Ping(ctx context.Context) error {
	ctx, cancel := r.op(ctx)
	defer cancel()
	return classify(r.DB.Ping(ctx), "ping failed")
}

func (r *Store) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// classify turns driver errors into apperr kinds. Errors that already carry
// a kind pass through untouched.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Conflict(conflictMessage(pgErr.ConstraintName))
		case "23514", "23502":
			return apperr.Validation("invalid field value")
		case "57014":
			return apperr.Timeout(err)
		}
	}
	return apperr.Internal(msg, err)
}

func conflictMessage(constraint string) string {
	switch constraint {
	case "users_username_key":
		return "username already taken"
	case "users_email_key":
		return "email already registered"
	}
	return "already exists"
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (r *Store) withTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }() // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
