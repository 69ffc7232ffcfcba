// Package memory is an in-memory store with the same semantics as the
// PostgreSQL store. It is safe for concurrent use and is intended for tests
// and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"multiblog-api/apperr"
	"multiblog-api/models"
)

// Store keeps every record behind one mutex. Each operation holds it for
// exactly the records it touches and releases it before returning.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	now      func() time.Time
	recount  bool
	users    map[int64]models.User
	posts    map[int64]models.Post
	comments map[int64]models.Comment
}

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithRecount derives comment counts from the comment records on read.
func WithRecount() Option { return func(s *Store) { s.recount = true } }

func New(opts ...Option) *Store {
	s := &Store{
		nextID:   1,
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[int64]models.User),
		posts:    make(map[int64]models.Post),
		comments: make(map[int64]models.Comment),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Store) Ping(context.Context) error { return nil }

// Users ----------------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return models.User{}, apperr.Conflict("username already taken")
		}
		if existing.Email == u.Email {
			return models.User{}, apperr.Conflict("email already registered")
		}
	}
	u.ID = s.nextIDLocked()
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return models.User{}, apperr.NotFound("user not found")
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Email == email })
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Username == username })
}

func (s *Store) findUser(match func(models.User) bool) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, apperr.NotFound("user not found")
}

// Posts ----------------------------------------------------------------------

func (s *Store) CreatePost(_ context.Context, p models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	author, ok := s.users[p.AuthorID]
	if !ok {
		return models.Post{}, apperr.NotFound("user not found")
	}
	p.ID = s.nextIDLocked()
	p.Author = models.AuthorSummary{ID: author.ID, Username: author.Username}
	p.Tags = cloneTags(p.Tags)
	p.CommentsCount = 0
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.posts[p.ID] = p
	return s.readPostLocked(p), nil
}

func (s *Store) GetPost(_ context.Context, id int64) (models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, apperr.NotFound("post not found")
	}
	return s.readPostLocked(p), nil
}

func (s *Store) GetPostView(_ context.Context, id int64) (models.PostView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return models.PostView{}, apperr.NotFound("post not found")
	}
	comments := []models.Comment{}
	for _, c := range s.comments {
		if c.PostID == id {
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
	return models.PostView{Post: s.readPostLocked(p), Comments: comments}, nil
}

func (s *Store) ListPosts(_ context.Context, f models.PostFilter) ([]models.Post, error) {
	keyword := strings.ToLower(f.Keyword)
	return s.selectPosts(func(p models.Post) bool {
		if f.Tag != "" && !hasTag(p.Tags, f.Tag) {
			return false
		}
		if keyword != "" && !strings.Contains(strings.ToLower(p.Title), keyword) {
			return false
		}
		return true
	}, f.Offset, f.Limit), nil
}

func (s *Store) PostsByAuthor(_ context.Context, authorID int64) ([]models.Post, error) {
	return s.selectPosts(func(p models.Post) bool { return p.AuthorID == authorID }, 0, 0), nil
}

func (s *Store) RelatedPosts(_ context.Context, excludeID int64, tags []string, limit int) ([]models.Post, error) {
	return s.selectPosts(func(p models.Post) bool {
		if p.ID == excludeID {
			return false
		}
		for _, t := range tags {
			if hasTag(p.Tags, t) {
				return true
			}
		}
		return false
	}, 0, limit), nil
}

// selectPosts returns matching posts newest first. A limit of zero means
// no limit.
func (s *Store) selectPosts(match func(models.Post) bool, offset, limit int) []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := []models.Post{}
	for _, p := range s.posts {
		if match(p) {
			all = append(all, s.readPostLocked(p))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if offset >= len(all) {
		return []models.Post{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (s *Store) TagCounts(context.Context) ([]models.TagCount, error) {
	s.mu.RLock()
	counts := map[string]int{}
	for _, p := range s.posts {
		for _, t := range p.Tags {
			counts[t]++
		}
	}
	s.mu.RUnlock()

	out := make([]models.TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, models.TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

func (s *Store) UpdatePost(_ context.Context, id int64, req models.UpdatePostReq) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, apperr.NotFound("post not found")
	}
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Content != nil {
		p.Content = *req.Content
	}
	if req.Tags != nil {
		p.Tags = cloneTags(*req.Tags)
	}
	p.UpdatedAt = s.now()
	s.posts[id] = p
	return s.readPostLocked(p), nil
}

func (s *Store) DeletePost(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return apperr.NotFound("post not found")
	}
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	delete(s.posts, id)
	return nil
}

// Comments -------------------------------------------------------------------

func (s *Store) GetComment(_ context.Context, id int64) (models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.comments[id]; ok {
		return c, nil
	}
	return models.Comment{}, apperr.NotFound("comment not found")
}

func (s *Store) AddComment(_ context.Context, c models.Comment) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[c.PostID]
	if !ok {
		return models.Comment{}, apperr.NotFound("post not found")
	}
	author, ok := s.users[c.AuthorID]
	if !ok {
		return models.Comment{}, apperr.NotFound("user not found")
	}
	c.ID = s.nextIDLocked()
	c.Author = models.AuthorSummary{ID: author.ID, Username: author.Username}
	c.CreatedAt = s.now()
	s.comments[c.ID] = c

	p.CommentsCount++
	s.posts[p.ID] = p
	return c, nil
}

func (s *Store) DeleteComment(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return false, nil
	}
	delete(s.comments, id)
	if p, ok := s.posts[c.PostID]; ok {
		if p.CommentsCount > 0 {
			p.CommentsCount--
		}
		s.posts[p.ID] = p
	}
	return true, nil
}

// ReconcileCommentCounts mirrors the PostgreSQL maintenance query.
func (s *Store) ReconcileCommentCounts(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.liveCountsLocked()
	var fixed int64
	for id, p := range s.posts {
		if p.CommentsCount != live[id] {
			p.CommentsCount = live[id]
			s.posts[id] = p
			fixed++
		}
	}
	return fixed, nil
}

func (s *Store) liveCountsLocked() map[int64]int {
	live := make(map[int64]int, len(s.posts))
	for _, c := range s.comments {
		live[c.PostID]++
	}
	return live
}

// readPostLocked returns a copy safe to hand out, applying recount mode.
func (s *Store) readPostLocked(p models.Post) models.Post {
	p.Tags = cloneTags(p.Tags)
	if s.recount {
		n := 0
		for _, c := range s.comments {
			if c.PostID == p.ID {
				n++
			}
		}
		p.CommentsCount = n
	}
	return p
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
