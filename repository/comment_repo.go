package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"multiblog-api/apperr"
	"multiblog-api/models"
)

const commentSelect = `SELECT c.id, c.post_id, c.author_id, u.username, c.content, c.created_at
	FROM comments c JOIN users u ON u.id = c.author_id`

func scanComment(row scanner) (models.Comment, error) {
	var c models.Comment
	err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Author.Username, &c.Content, &c.CreatedAt)
	c.Author.ID = c.AuthorID
	return c, err
}

func listComments(ctx context.Context, q querier, postID int64) ([]models.Comment, error) {
	rows, err := q.Query(ctx, commentSelect+` WHERE c.post_id=$1 ORDER BY c.created_at ASC, c.id ASC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Store) GetComment(ctx context.Context, id int64) (models.Comment, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	c, err := scanComment(r.DB.QueryRow(ctx, commentSelect+` WHERE c.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Comment{}, apperr.NotFound("comment not found")
	}
	if err != nil {
		return models.Comment{}, classify(err, "get comment")
	}
	return c, nil
}

// AddComment inserts the comment and bumps the parent counter in one
// transaction. The post row is locked first so a concurrent DeletePost
// either runs entirely before (NotFound here) or after this commit.
func (r *Store) AddComment(ctx context.Context, c models.Comment) (models.Comment, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	err := r.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM posts WHERE id=$1 FOR UPDATE`, c.PostID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("post not found")
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			WITH ins AS (
				INSERT INTO comments(post_id, author_id, content) VALUES ($1,$2,$3)
				RETURNING id, author_id, created_at
			)
			SELECT ins.id, u.username, ins.created_at FROM ins JOIN users u ON u.id = ins.author_id`,
			c.PostID, c.AuthorID, c.Content,
		).Scan(&c.ID, &c.Author.Username, &c.CreatedAt)
		if err != nil {
			return err
		}
		c.Author.ID = c.AuthorID

		_, err = tx.Exec(ctx, `UPDATE posts SET comments_count = comments_count + 1 WHERE id=$1`, c.PostID)
		return err
	})
	if err != nil {
		return models.Comment{}, classify(err, "add comment")
	}
	return c, nil
}

// DeleteComment removes the comment and decrements the parent counter,
// floored at zero, in one transaction. It reports false when the comment
// was already gone, e.g. removed by a concurrent post cascade.
func (r *Store) DeleteComment(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	deleted := false
	err := r.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var postID int64
		err := tx.QueryRow(ctx, `DELETE FROM comments WHERE id=$1 RETURNING post_id`, id).Scan(&postID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true
		// zero rows when the post is already gone
		_, err = tx.Exec(ctx, `UPDATE posts SET comments_count = GREATEST(comments_count - 1, 0) WHERE id=$1`, postID)
		return err
	})
	if err != nil {
		return false, classify(err, "delete comment")
	}
	return deleted, nil
}
