// Package query serves the read side: keyword/tag search, tag frequency,
// profiles and related posts.
package query

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"multiblog-api/apperr"
	"multiblog-api/metrics"
	"multiblog-api/models"
)

type Store interface {
	ListPosts(ctx context.Context, f models.PostFilter) ([]models.Post, error)
	GetPost(ctx context.Context, id int64) (models.Post, error)
	PostsByAuthor(ctx context.Context, authorID int64) ([]models.Post, error)
	RelatedPosts(ctx context.Context, excludeID int64, tags []string, limit int) ([]models.Post, error)
	TagCounts(ctx context.Context) ([]models.TagCount, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// Index is an optional search mirror. It only yields ids; records are
// always loaded from the Store so counters are never stale.
type Index interface {
	SearchIDs(ctx context.Context, f models.PostFilter) ([]int64, error)
	RelatedIDs(ctx context.Context, tags []string, excludeID int64, size int) ([]int64, error)
}

const (
	DefaultRelated = 5
	MaxRelated     = 20
)

type Service struct {
	store       Store
	index       Index
	indexSearch bool
	log         *logrus.Logger
}

type Option func(*Service)

// WithIndex enables the mirror for related posts, and for searchPosts too
// when serveSearch is set.
func WithIndex(idx Index, serveSearch bool) Option {
	return func(s *Service) {
		s.index = idx
		s.indexSearch = serveSearch
	}
}

func New(store Store, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{store: store, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SearchPosts matches keyword case-insensitively against titles and tag
// exactly against the tag set; both filters combine with AND.
func (s *Service) SearchPosts(ctx context.Context, keyword, tag string, page, pageSize int) ([]models.Post, error) {
	offset, limit := models.Page(page, pageSize)
	f := models.PostFilter{
		Keyword: strings.TrimSpace(keyword),
		Tag:     strings.TrimSpace(tag),
		Offset:  offset,
		Limit:   limit,
	}
	if s.index != nil && s.indexSearch {
		ids, err := s.index.SearchIDs(ctx, f)
		if err == nil {
			posts, stale, err := s.hydrate(ctx, ids)
			if err != nil || len(stale) == 0 {
				return posts, err
			}
			// the index applied from/size over ids that no longer exist
			s.staleIndex("search", stale)
		} else {
			s.log.WithError(err).Warn("index search failed, falling back to store")
		}
	}
	return s.store.ListPosts(ctx, f)
}

// TagCounts groups every tag occurrence across all posts, most used first.
func (s *Service) TagCounts(ctx context.Context) ([]models.TagCount, error) {
	return s.store.TagCounts(ctx)
}

func (s *Service) ProfileView(ctx context.Context, username string) (models.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Profile{}, apperr.NotFound("user not found")
	}
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return models.Profile{}, err
	}
	posts, err := s.store.PostsByAuthor(ctx, u.ID)
	if err != nil {
		return models.Profile{}, err
	}
	return models.Profile{
		User:  models.UserSummary{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt},
		Posts: posts,
	}, nil
}

// RelatedPosts lists other posts sharing at least one tag with postID.
func (s *Service) RelatedPosts(ctx context.Context, postID int64, limit int) ([]models.Post, error) {
	if limit < 1 {
		limit = DefaultRelated
	}
	if limit > MaxRelated {
		limit = MaxRelated
	}
	p, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if len(p.Tags) == 0 {
		return []models.Post{}, nil
	}
	if s.index != nil {
		ids, err := s.index.RelatedIDs(ctx, p.Tags, p.ID, limit)
		if err == nil {
			posts, stale, err := s.hydrate(ctx, ids)
			if err != nil || len(stale) == 0 {
				return posts, err
			}
			s.staleIndex("related", stale)
		} else {
			s.log.WithError(err).Warn("index related lookup failed, falling back to store")
		}
	}
	return s.store.RelatedPosts(ctx, p.ID, p.Tags, limit)
}

// hydrate loads posts in id order. Ids deleted since indexing come back in
// stale instead.
func (s *Service) hydrate(ctx context.Context, ids []int64) (posts []models.Post, stale []int64, err error) {
	posts = make([]models.Post, 0, len(ids))
	for _, id := range ids {
		p, err := s.store.GetPost(ctx, id)
		if apperr.Is(err, apperr.KindNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		posts = append(posts, p)
	}
	return posts, stale, nil
}

func (s *Service) staleIndex(lookup string, ids []int64) {
	metrics.RecordSideEffectFailure("index")
	s.log.WithFields(logrus.Fields{"lookup": lookup, "stale_ids": ids}).
		Warn("index returned deleted posts, answering from store")
}
