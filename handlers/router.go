package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"multiblog-api/logging"
	"multiblog-api/metrics"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Identity    Identity
	Content     Content
	Query       Query
	Store       Pinger
	Log         *logrus.Logger
	CORSOrigins []string
}

// NewRouter mounts every route both at the root and under /api.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(d.Log), metrics.Middleware(), cors(d.CORSOrigins))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Blog API running"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now()})
	})
	r.GET("/db/health", func(c *gin.Context) {
		if err := d.Store.Ping(c.Request.Context()); err != nil {
			logging.FromContext(d.Log, c).WithError(err).Error("store ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"db_ok": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"db_ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	register(&r.RouterGroup, d)
	register(r.Group("/api"), d)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func register(g *gin.RouterGroup, d Deps) {
	auth := &authHandler{id: d.Identity, log: d.Log}
	posts := &postHandler{content: d.Content, log: d.Log}
	disc := &discoveryHandler{query: d.Query, log: d.Log}
	requireAuth := RequireAuth(d.Identity, d.Log)

	g.POST("/auth/register", auth.register)
	g.POST("/auth/login", auth.login)

	g.GET("/posts", posts.list)
	g.GET("/posts/:id", posts.get)
	g.GET("/posts/:id/related", disc.related)
	g.POST("/posts", requireAuth, posts.create)
	g.PUT("/posts/:id", requireAuth, posts.update)
	g.DELETE("/posts/:id", requireAuth, posts.delete)

	g.POST("/comments/:id", requireAuth, posts.addComment)
	g.DELETE("/comments/:id", requireAuth, posts.deleteComment)

	g.GET("/search", disc.search)
	g.GET("/tags", disc.tags)
	g.GET("/profile/:username", disc.profile)
}

func cors(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+logging.RequestIDHeader)
			c.Header("Access-Control-Expose-Headers", logging.RequestIDHeader)
			c.Header("Access-Control-Max-Age", "3600")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
