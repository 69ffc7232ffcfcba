package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"multiblog-api/models"
)

type Content interface {
	CreatePost(ctx context.Context, authorID int64, req models.CreatePostReq) (models.Post, error)
	GetPost(ctx context.Context, id int64) (models.PostView, error)
	ListPosts(ctx context.Context, tag string, page, pageSize int) ([]models.Post, error)
	UpdatePost(ctx context.Context, id, actorID int64, req models.UpdatePostReq) (models.Post, error)
	DeletePost(ctx context.Context, id, actorID int64) error
	AddComment(ctx context.Context, postID, authorID int64, req models.CreateCommentReq) (models.Comment, error)
	DeleteComment(ctx context.Context, id, actorID int64) error
}

type postHandler struct {
	content Content
	log     *logrus.Logger
}

// POST /posts
func (h *postHandler) create(c *gin.Context) {
	var req models.CreatePostReq
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, h.log, err)
		return
	}
	p, err := h.content.CreatePost(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /posts?tag=&page=&limit=
func (h *postHandler) list(c *gin.Context) {
	posts, err := h.content.ListPosts(c.Request.Context(), c.Query("tag"), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// GET /posts/:id
func (h *postHandler) get(c *gin.Context) {
	id, err := pathID(c, "id", "post")
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	v, err := h.content.GetPost(c.Request.Context(), id)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// PUT /posts/:id
func (h *postHandler) update(c *gin.Context) {
	id, err := pathID(c, "id", "post")
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	var req models.UpdatePostReq
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, h.log, err)
		return
	}
	p, err := h.content.UpdatePost(c.Request.Context(), id, actorID(c), req)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DELETE /posts/:id
func (h *postHandler) delete(c *gin.Context) {
	id, err := pathID(c, "id", "post")
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	if err := h.content.DeletePost(c.Request.Context(), id, actorID(c)); err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

// POST /comments/:postId
func (h *postHandler) addComment(c *gin.Context) {
	postID, err := pathID(c, "id", "post")
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	var req models.CreateCommentReq
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, h.log, err)
		return
	}
	com, err := h.content.AddComment(c.Request.Context(), postID, actorID(c), req)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, com)
}

// DELETE /comments/:id
func (h *postHandler) deleteComment(c *gin.Context) {
	id, err := pathID(c, "id", "comment")
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	if err := h.content.DeleteComment(c.Request.Context(), id, actorID(c)); err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}
