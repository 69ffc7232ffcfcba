package models

import "time"

type AuthorSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Post struct {
	ID            int64         `json:"id"`
	AuthorID      int64         `json:"author_id"`
	Author        AuthorSummary `json:"author"`
	Title         string        `json:"title"`
	Content       string        `json:"content"`
	Tags          []string      `json:"tags"`
	CommentsCount int           `json:"comments_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type Comment struct {
	ID        int64         `json:"id"`
	PostID    int64         `json:"post_id"`
	AuthorID  int64         `json:"author_id"`
	Author    AuthorSummary `json:"author"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
}

// PostView is a post together with its comments, oldest first. Both halves
// always come from the same read so len(Comments) == Post.CommentsCount.
type PostView struct {
	Post     Post      `json:"post"`
	Comments []Comment `json:"comments"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type CreatePostReq struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// UpdatePostReq uses pointers so absent fields can be told apart from
// present-but-empty ones.
type UpdatePostReq struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Tags    *[]string `json:"tags"`
}

type CreateCommentReq struct {
	Content string `json:"content"`
}

// PostFilter selects posts for listing and search. Zero values mean "no
// restriction"; Offset/Limit are already resolved from page/pageSize.
type PostFilter struct {
	Tag     string
	Keyword string
	Offset  int
	Limit   int
}
