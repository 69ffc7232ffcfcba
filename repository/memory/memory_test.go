package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiblog-api/apperr"
	"multiblog-api/models"
)

// tickingClock returns strictly increasing timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newUser(t *testing.T, s *Store, name string) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	return u
}

func newPost(t *testing.T, s *Store, author int64, title string, tags ...string) models.Post {
	t.Helper()
	p, err := s.CreatePost(context.Background(), models.Post{AuthorID: author, Title: title, Content: "body", Tags: tags})
	require.NoError(t, err)
	return p
}

func liveCount(t *testing.T, s *Store, postID int64) int {
	t.Helper()
	v, err := s.GetPostView(context.Background(), postID)
	require.NoError(t, err)
	return len(v.Comments)
}

func TestCreateUser_Conflicts(t *testing.T) {
	s := New()
	newUser(t, s, "alice")

	_, err := s.CreateUser(context.Background(), models.User{Username: "alice", Email: "other@example.com"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = s.CreateUser(context.Background(), models.User{Username: "other", Email: "alice@example.com"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCreatePost_Defaults(t *testing.T) {
	s := New()
	alice := newUser(t, s, "alice")

	p := newPost(t, s, alice.ID, "Hi")
	assert.Equal(t, 0, p.CommentsCount)
	assert.NotNil(t, p.Tags)
	assert.Empty(t, p.Tags)
	assert.Equal(t, "alice", p.Author.Username)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestAddComment_UnknownPost(t *testing.T) {
	s := New()
	alice := newUser(t, s, "alice")

	_, err := s.AddComment(context.Background(), models.Comment{PostID: 99, AuthorID: alice.ID, Content: "x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCommentCounter_Sequential(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(tickingClock()))
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	p := newPost(t, s, alice.ID, "Hi")

	c1, err := s.AddComment(ctx, models.Comment{PostID: p.ID, AuthorID: bob.ID, Content: "one"})
	require.NoError(t, err)
	_, err = s.AddComment(ctx, models.Comment{PostID: p.ID, AuthorID: alice.ID, Content: "two"})
	require.NoError(t, err)

	v, err := s.GetPostView(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Post.CommentsCount)
	require.Len(t, v.Comments, 2)
	assert.Equal(t, "one", v.Comments[0].Content, "comments are oldest first")
	assert.Equal(t, "bob", v.Comments[0].Author.Username)

	deleted, err := s.DeleteComment(ctx, c1.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteComment(ctx, c1.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete is a no-op")

	got, err := s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentsCount)
	assert.Equal(t, liveCount(t, s, p.ID), got.CommentsCount)
}

func TestCommentCounter_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := newUser(t, s, "alice")
	p := newPost(t, s, alice.ID, "Hi")

	const writers = 50
	ids := make(chan int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.AddComment(ctx, models.Comment{PostID: p.ID, AuthorID: alice.ID, Content: "hey"})
			if assert.NoError(t, err) {
				ids <- c.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	// delete half concurrently while readers compare counter and list
	var toDelete []int64
	for id := range ids {
		toDelete = append(toDelete, id)
	}
	toDelete = toDelete[:writers/2]

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v, err := s.GetPostView(ctx, p.ID)
				if assert.NoError(t, err) {
					assert.Equal(t, len(v.Comments), v.Post.CommentsCount)
				}
			}
		}()
	}

	for _, id := range toDelete {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := s.DeleteComment(ctx, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	close(stop)
	readers.Wait()

	got, err := s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, writers-len(toDelete), got.CommentsCount)
	assert.Equal(t, liveCount(t, s, p.ID), got.CommentsCount)
}

func TestDeletePost_Cascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := newUser(t, s, "alice")
	bob := newUser(t, s, "bob")
	p := newPost(t, s, alice.ID, "Hi", "x")
	c, err := s.AddComment(ctx, models.Comment{PostID: p.ID, AuthorID: bob.ID, Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, s.DeletePost(ctx, p.ID))

	_, err = s.GetPost(ctx, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = s.GetComment(ctx, c.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "no orphaned comments")

	deleted, err := s.DeleteComment(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.True(t, apperr.Is(s.DeletePost(ctx, p.ID), apperr.KindNotFound))
}

func TestListPosts_OrderAndPagination(t *testing.T) {
	ctx := context.Background()
	// identical timestamps force the id tie-break
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return fixed }))
	alice := newUser(t, s, "alice")
	for i := 0; i < 7; i++ {
		newPost(t, s, alice.ID, "post")
	}

	seen := map[int64]bool{}
	var prev *models.Post
	for offset := 0; offset < 9; offset += 3 {
		page, err := s.ListPosts(ctx, models.PostFilter{Offset: offset, Limit: 3})
		require.NoError(t, err)
		for i := range page {
			p := page[i]
			assert.False(t, seen[p.ID], "post %d repeated across pages", p.ID)
			seen[p.ID] = true
			if prev != nil {
				assert.Greater(t, prev.ID, p.ID)
			}
			prev = &p
		}
	}
	assert.Len(t, seen, 7)

	empty, err := s.ListPosts(ctx, models.PostFilter{Offset: 50, Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListPosts_Filters(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(tickingClock()))
	alice := newUser(t, s, "alice")
	newPost(t, s, alice.ID, "Hello Go", "go")
	newPost(t, s, alice.ID, "GOLANG tips", "tips")
	newPost(t, s, alice.ID, "Rust notes", "go")

	byKeyword, err := s.ListPosts(ctx, models.PostFilter{Keyword: "go", Limit: 10})
	require.NoError(t, err)
	require.Len(t, byKeyword, 2)
	assert.Equal(t, "GOLANG tips", byKeyword[0].Title)

	both, err := s.ListPosts(ctx, models.PostFilter{Keyword: "go", Tag: "go", Limit: 10})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "Hello Go", both[0].Title)
}

func TestTagCounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := newUser(t, s, "alice")
	newPost(t, s, alice.ID, "a", "go", "db")
	newPost(t, s, alice.ID, "b", "go")
	newPost(t, s, alice.ID, "c", "api", "go", "db")

	counts, err := s.TagCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TagCount{{Tag: "go", Count: 3}, {Tag: "db", Count: 2}, {Tag: "api", Count: 1}}, counts)
}

func TestUpdatePost_Partial(t *testing.T) {
	ctx := context.Background()
	s := New(WithClock(tickingClock()))
	alice := newUser(t, s, "alice")
	p := newPost(t, s, alice.ID, "Hi", "x")

	title := "Hello"
	got, err := s.UpdatePost(ctx, p.ID, models.UpdatePostReq{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "body", got.Content)
	assert.Equal(t, []string{"x"}, got.Tags)
	assert.True(t, got.UpdatedAt.After(p.UpdatedAt))
	assert.Equal(t, p.CreatedAt, got.CreatedAt)

	_, err = s.UpdatePost(ctx, 999, models.UpdatePostReq{Title: &title})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestReconcileAndRecount(t *testing.T) {
	ctx := context.Background()
	s := New(WithRecount())
	alice := newUser(t, s, "alice")
	p := newPost(t, s, alice.ID, "Hi")
	_, err := s.AddComment(ctx, models.Comment{PostID: p.ID, AuthorID: alice.ID, Content: "x"})
	require.NoError(t, err)

	// simulate drift in the stored counter
	s.mu.Lock()
	drifted := s.posts[p.ID]
	drifted.CommentsCount = 5
	s.posts[p.ID] = drifted
	s.mu.Unlock()

	got, err := s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CommentsCount, "recount mode ignores the stored column")

	fixed, err := s.ReconcileCommentCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fixed)
	assert.Equal(t, 1, s.posts[p.ID].CommentsCount)
}
