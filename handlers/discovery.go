package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"multiblog-api/models"
)

type Query interface {
	SearchPosts(ctx context.Context, keyword, tag string, page, pageSize int) ([]models.Post, error)
	TagCounts(ctx context.Context) ([]models.TagCount, error)
	ProfileView(ctx context.Context, username string) (models.Profile, error)
	RelatedPosts(ctx context.Context, postID int64, limit int) ([]models.Post, error)
}

type discoveryHandler struct {
	query Query
	log   *logrus.Logger
}

// GET /search?q=&tag=&page=&limit=
func (h *discoveryHandler) search(c *gin.Context) {
	posts, err := h.query.SearchPosts(c.Request.Context(), c.Query("q"), c.Query("tag"), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

// GET /tags
func (h *discoveryHandler) tags(c *gin.Context) {
	tags, err := h.query.TagCounts(c.Request.Context())
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tags)
}

// GET /profile/:username
func (h *discoveryHandler) profile(c *gin.Context) {
	p, err := h.query.ProfileView(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /posts/:id/related?limit=
func (h *discoveryHandler) related(c *gin.Context) {
	id, err := pathID(c, "id", "post")
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	posts, err := h.query.RelatedPosts(c.Request.Context(), id, queryInt(c, "limit"))
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}
