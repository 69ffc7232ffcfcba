package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"multiblog-api/apperr"
	"multiblog-api/models"
)

func (r *Store) postSelect() string {
	count := "p.comments_count"
	if r.recount {
		count = "(SELECT count(*)::int FROM comments c WHERE c.post_id = p.id)"
	}
	return `SELECT p.id, p.author_id, u.username, p.title, p.content, p.tags, ` + count + `, p.created_at, p.updated_at
		FROM posts p JOIN users u ON u.id = p.author_id`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.Author.Username, &p.Title, &p.Content, &p.Tags,
		&p.CommentsCount, &p.CreatedAt, &p.UpdatedAt)
	p.Author.ID = p.AuthorID
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, err
}

func collectPosts(rows pgx.Rows) ([]models.Post, error) {
	defer rows.Close()
	out := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Store) CreatePost(ctx context.Context, p models.Post) (models.Post, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	if p.Tags == nil {
		p.Tags = []string{}
	}
	var id int64
	err := r.DB.QueryRow(ctx,
		`INSERT INTO posts(author_id, title, content, tags) VALUES ($1,$2,$3,$4) RETURNING id`,
		p.AuthorID, p.Title, p.Content, p.Tags,
	).Scan(&id)
	if err != nil {
		return models.Post{}, classify(err, "create post")
	}
	return r.getPost(ctx, r.DB, id)
}

func (r *Store) GetPost(ctx context.Context, id int64) (models.Post, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	return r.getPost(ctx, r.DB, id)
}

func (r *Store) getPost(ctx context.Context, q querier, id int64) (models.Post, error) {
	p, err := scanPost(q.QueryRow(ctx, r.postSelect()+` WHERE p.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Post{}, apperr.NotFound("post not found")
	}
	if err != nil {
		return models.Post{}, classify(err, "get post")
	}
	return p, nil
}

// GetPostView reads the post and its comments from one snapshot so the
// counter and the list cannot disagree.
func (r *Store) GetPostView(ctx context.Context, id int64) (models.PostView, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	var view models.PostView
	err := r.withTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		p, err := r.getPost(ctx, tx, id)
		if err != nil {
			return err
		}
		comments, err := listComments(ctx, tx, id)
		if err != nil {
			return err
		}
		view = models.PostView{Post: p, Comments: comments}
		return nil
	})
	if err != nil {
		return models.PostView{}, classify(err, "get post view")
	}
	return view, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *Store) ListPosts(ctx context.Context, f models.PostFilter) ([]models.Post, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	where := []string{}
	args := []any{}
	if f.Tag != "" {
		args = append(args, f.Tag)
		// tags @> ARRAY[tag] uses the GIN index on the TEXT[] column
		where = append(where, fmt.Sprintf("p.tags @> ARRAY[$%d]::text[]", len(args)))
	}
	if f.Keyword != "" {
		args = append(args, "%"+likeEscaper.Replace(f.Keyword)+"%")
		where = append(where, fmt.Sprintf("p.title ILIKE $%d", len(args)))
	}
	sql := r.postSelect()
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	var limit any = f.Limit
	if f.Limit <= 0 {
		limit = nil // LIMIT NULL is LIMIT ALL
	}
	args = append(args, limit, f.Offset)
	sql += fmt.Sprintf(" ORDER BY p.created_at DESC, p.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err, "list posts")
	}
	posts, err := collectPosts(rows)
	return posts, classify(err, "list posts")
}

func (r *Store) PostsByAuthor(ctx context.Context, authorID int64) ([]models.Post, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	rows, err := r.DB.Query(ctx, r.postSelect()+` WHERE p.author_id=$1 ORDER BY p.created_at DESC, p.id DESC`, authorID)
	if err != nil {
		return nil, classify(err, "posts by author")
	}
	posts, err := collectPosts(rows)
	return posts, classify(err, "posts by author")
}

// RelatedPosts returns other posts sharing at least one tag with tags.
func (r *Store) RelatedPosts(ctx context.Context, excludeID int64, tags []string, limit int) ([]models.Post, error) {
	if len(tags) == 0 {
		return []models.Post{}, nil
	}
	ctx, cancel := r.op(ctx)
	defer cancel()

	rows, err := r.DB.Query(ctx,
		r.postSelect()+` WHERE p.tags && $1::text[] AND p.id <> $2 ORDER BY p.created_at DESC, p.id DESC LIMIT $3`,
		tags, excludeID, limit)
	if err != nil {
		return nil, classify(err, "related posts")
	}
	posts, err := collectPosts(rows)
	return posts, classify(err, "related posts")
}

func (r *Store) TagCounts(ctx context.Context) ([]models.TagCount, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	rows, err := r.DB.Query(ctx,
		`SELECT tag, count(*)::int AS n FROM posts, unnest(tags) AS tag GROUP BY tag ORDER BY n DESC, tag ASC`)
	if err != nil {
		return nil, classify(err, "tag counts")
	}
	defer rows.Close()

	out := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, classify(err, "tag counts")
		}
		out = append(out, tc)
	}
	return out, classify(rows.Err(), "tag counts")
}

func (r *Store) UpdatePost(ctx context.Context, id int64, req models.UpdatePostReq) (models.Post, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()

	set := []string{}
	args := []any{}
	if req.Title != nil {
		args = append(args, *req.Title)
		set = append(set, fmt.Sprintf("title=$%d", len(args)))
	}
	if req.Content != nil {
		args = append(args, *req.Content)
		set = append(set, fmt.Sprintf("content=$%d", len(args)))
	}
	if req.Tags != nil {
		tags := *req.Tags
		if tags == nil {
			tags = []string{}
		}
		args = append(args, tags)
		set = append(set, fmt.Sprintf("tags=$%d", len(args)))
	}
	set = append(set, "updated_at=now()")
	args = append(args, id)

	var updated int64
	err := r.DB.QueryRow(ctx,
		fmt.Sprintf(`UPDATE posts SET %s WHERE id=$%d RETURNING id`, strings.Join(set, ","), len(args)),
		args...,
	).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Post{}, apperr.NotFound("post not found")
	}
	if err != nil {
		return models.Post{}, classify(err, "update post")
	}
	return r.getPost(ctx, r.DB, id)
}

// DeletePost removes the post and all of its comments in one transaction.
func (r *Store) DeletePost(ctx context.Context, id int64) error {
	ctx, cancel := r.op(ctx)
	defer cancel()

	err := r.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM posts WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("post not found")
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE post_id=$1`, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
		return err
	})
	return classify(err, "delete post")
}
