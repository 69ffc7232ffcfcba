package repository

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_email_key UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id             BIGSERIAL PRIMARY KEY,
		author_id      BIGINT NOT NULL REFERENCES users(id),
		title          TEXT NOT NULL CHECK (btrim(title) <> ''),
		content        TEXT NOT NULL CHECK (btrim(content) <> ''),
		tags           TEXT[] NOT NULL DEFAULT '{}',
		comments_count INT NOT NULL DEFAULT 0 CHECK (comments_count >= 0),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS posts_created_idx ON posts (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS posts_author_idx ON posts (author_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS posts_tags_gin ON posts USING GIN (tags)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id         BIGSERIAL PRIMARY KEY,
		post_id    BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		author_id  BIGINT NOT NULL REFERENCES users(id),
		content    TEXT NOT NULL CHECK (btrim(content) <> ''),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS comments_post_idx ON comments (post_id, created_at, id)`,
}

// Migrate creates the tables and indexes if they do not exist yet.
func (r *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := r.DB.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema step %d: %w", i, err)
		}
	}
	return nil
}

// ReconcileCommentCounts rewrites every comments_count that disagrees with
// the comments table and returns how many posts were corrected.
func (r *Store) ReconcileCommentCounts(ctx context.Context) (int64, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE posts p SET comments_count = c.n
		FROM (
			SELECT p2.id, count(c2.id)::int AS n
			FROM posts p2 LEFT JOIN comments c2 ON c2.post_id = p2.id
			GROUP BY p2.id
		) c
		WHERE c.id = p.id AND p.comments_count <> c.n`)
	if err != nil {
		return 0, classify(err, "reconcile comment counts")
	}
	return tag.RowsAffected(), nil
}
