// Package content owns posts and comments: validation, ownership checks and
// the cache/index side effects of every mutation. Counter and cascade
// atomicity is provided by the Store.
package content

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"multiblog-api/apperr"
	"multiblog-api/authz"
	"multiblog-api/metrics"
	"multiblog-api/models"
)

// Store must apply AddComment, DeleteComment and DeletePost atomically
// together with their comments_count adjustment or cascade.
type Store interface {
	CreatePost(ctx context.Context, p models.Post) (models.Post, error)
	GetPost(ctx context.Context, id int64) (models.Post, error)
	GetPostView(ctx context.Context, id int64) (models.PostView, error)
	ListPosts(ctx context.Context, f models.PostFilter) ([]models.Post, error)
	UpdatePost(ctx context.Context, id int64, req models.UpdatePostReq) (models.Post, error)
	DeletePost(ctx context.Context, id int64) error
	GetComment(ctx context.Context, id int64) (models.Comment, error)
	AddComment(ctx context.Context, c models.Comment) (models.Comment, error)
	DeleteComment(ctx context.Context, id int64) (bool, error)
}

// Cache holds whole post views. SetView must not overwrite a key that was
// invalidated after the view was read, so Invalidate leaves a marker that
// SetView cannot replace until it expires.
type Cache interface {
	GetView(ctx context.Context, postID int64) (models.PostView, bool, error)
	SetView(ctx context.Context, v models.PostView) error
	Invalidate(ctx context.Context, postID int64) error
}

type Indexer interface {
	IndexPost(ctx context.Context, p models.Post) error
	DeletePost(ctx context.Context, id int64) error
}

const sideEffectTimeout = 2 * time.Second

type Service struct {
	store Store
	cache Cache
	index Indexer
	log   *logrus.Logger
}

type Option func(*Service)

func WithCache(c Cache) Option     { return func(s *Service) { s.cache = c } }
func WithIndexer(i Indexer) Option { return func(s *Service) { s.index = i } }

func New(store Store, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{store: store, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) CreatePost(ctx context.Context, authorID int64, req models.CreatePostReq) (models.Post, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || strings.TrimSpace(req.Content) == "" {
		return models.Post{}, apperr.Validation("missing title or content")
	}
	p, err := s.store.CreatePost(ctx, models.Post{
		AuthorID: authorID,
		Title:    title,
		Content:  req.Content,
		Tags:     NormalizeTags(req.Tags),
	})
	metrics.RecordContentOp("create_post", err)
	if err != nil {
		return models.Post{}, err
	}
	s.reindex(ctx, p)
	return p, nil
}

// GetPost returns the post with its comments, oldest first.
func (s *Service) GetPost(ctx context.Context, id int64) (models.PostView, error) {
	if s.cache != nil {
		v, ok, err := s.cache.GetView(ctx, id)
		if err != nil {
			s.sideEffectFailed("cache", err, id)
		}
		metrics.RecordCacheLookup(ok)
		if ok {
			return v, nil
		}
	}
	v, err := s.store.GetPostView(ctx, id)
	if err != nil {
		return models.PostView{}, err
	}
	if s.cache != nil {
		if err := s.cache.SetView(ctx, v); err != nil {
			s.sideEffectFailed("cache", err, id)
		}
	}
	return v, nil
}

func (s *Service) ListPosts(ctx context.Context, tag string, page, pageSize int) ([]models.Post, error) {
	offset, limit := models.Page(page, pageSize)
	return s.store.ListPosts(ctx, models.PostFilter{
		Tag:    strings.TrimSpace(tag),
		Offset: offset,
		Limit:  limit,
	})
}

// UpdatePost replaces the fields present in req. A present field is
// validated like on creation, so an empty title is rejected rather than
// ignored.
func (s *Service) UpdatePost(ctx context.Context, id, actorID int64, req models.UpdatePostReq) (models.Post, error) {
	current, err := s.store.GetPost(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if !authz.CanMutate(actorID, current.AuthorID) {
		return models.Post{}, apperr.Forbidden("not authorized")
	}

	patch := models.UpdatePostReq{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return models.Post{}, apperr.Validation("title must not be empty")
		}
		patch.Title = &title
	}
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return models.Post{}, apperr.Validation("content must not be empty")
		}
		c := *req.Content
		patch.Content = &c
	}
	if req.Tags != nil {
		tags := NormalizeTags(*req.Tags)
		patch.Tags = &tags
	}

	p, err := s.store.UpdatePost(ctx, id, patch)
	metrics.RecordContentOp("update_post", err)
	if err != nil {
		return models.Post{}, err
	}
	s.invalidate(ctx, id)
	s.reindex(ctx, p)
	return p, nil
}

// DeletePost removes the post and every comment under it.
func (s *Service) DeletePost(ctx context.Context, id, actorID int64) error {
	current, err := s.store.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanMutate(actorID, current.AuthorID) {
		return apperr.Forbidden("not authorized")
	}
	err = s.store.DeletePost(ctx, id)
	metrics.RecordContentOp("delete_post", err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	if s.index != nil {
		sctx, cancel := detached(ctx)
		defer cancel()
		if err := s.index.DeletePost(sctx, id); err != nil {
			s.sideEffectFailed("index", err, id)
		}
	}
	s.log.WithFields(logrus.Fields{"post_id": id, "user_id": actorID}).Info("post deleted")
	return nil
}

func (s *Service) AddComment(ctx context.Context, postID, authorID int64, req models.CreateCommentReq) (models.Comment, error) {
	if strings.TrimSpace(req.Content) == "" {
		return models.Comment{}, apperr.Validation("missing content")
	}
	c, err := s.store.AddComment(ctx, models.Comment{
		PostID:   postID,
		AuthorID: authorID,
		Content:  req.Content,
	})
	metrics.RecordContentOp("add_comment", err)
	if err != nil {
		return models.Comment{}, err
	}
	s.invalidate(ctx, postID)
	return c, nil
}

// DeleteComment removes a comment owned by actorID. A comment that vanished
// after the ownership check, e.g. through a concurrent post cascade, counts
// as deleted.
func (s *Service) DeleteComment(ctx context.Context, id, actorID int64) error {
	c, err := s.store.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanMutate(actorID, c.AuthorID) {
		return apperr.Forbidden("not authorized")
	}
	deleted, err := s.store.DeleteComment(ctx, id)
	metrics.RecordContentOp("delete_comment", err)
	if err != nil {
		return err
	}
	if !deleted {
		s.log.WithField("comment_id", id).Debug("comment already removed")
	}
	s.invalidate(ctx, c.PostID)
	return nil
}

// NormalizeTags trims every tag and drops empty ones. Order is kept and
// duplicates are left alone.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Service) invalidate(ctx context.Context, postID int64) {
	if s.cache == nil {
		return
	}
	sctx, cancel := detached(ctx)
	defer cancel()
	if err := s.cache.Invalidate(sctx, postID); err != nil {
		s.sideEffectFailed("cache", err, postID)
	}
}

func (s *Service) reindex(ctx context.Context, p models.Post) {
	if s.index == nil {
		return
	}
	sctx, cancel := detached(ctx)
	defer cancel()
	if err := s.index.IndexPost(sctx, p); err != nil {
		s.sideEffectFailed("index", err, p.ID)
	}
}

func (s *Service) sideEffectFailed(target string, err error, postID int64) {
	metrics.RecordSideEffectFailure(target)
	s.log.WithError(err).WithFields(logrus.Fields{"target": target, "post_id": postID}).Warn("side effect failed")
}

// detached keeps request values but survives client disconnects once the
// store commit has happened.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}
