package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"multiblog-api/apperr"
	"multiblog-api/logging"
	"multiblog-api/models"
)

type Identity interface {
	Register(ctx context.Context, req models.RegisterReq) (models.AuthResp, error)
	Authenticate(ctx context.Context, req models.LoginReq) (models.AuthResp, error)
	VerifyToken(ctx context.Context, token string) (models.User, error)
}

const actorKey = "actor"

// RequireAuth resolves the bearer token into the acting user or rejects
// the request with 401.
func RequireAuth(id Identity, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		user, err := id.VerifyToken(c.Request.Context(), token)
		if err != nil {
			respondErr(c, log, err)
			return
		}
		c.Set(logging.UserIDKey, user.ID)
		c.Set(actorKey, user)
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// actorID is only valid behind RequireAuth.
func actorID(c *gin.Context) int64 {
	if u, ok := c.Get(actorKey); ok {
		return u.(models.User).ID
	}
	return 0
}

type authHandler struct {
	id  Identity
	log *logrus.Logger
}

// POST /auth/register
func (h *authHandler) register(c *gin.Context) {
	var req models.RegisterReq
	if err := bindJSON(c, &req); err != nil {
		respondErr(c, h.log, err)
		return
	}
	resp, err := h.id.Register(c.Request.Context(), req)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /auth/login
func (h *authHandler) login(c *gin.Context) {
	var req models.LoginReq
	if err := bindJSON(c, &req); err != nil {
		// a login that cannot be parsed is still just a failed login
		respondErr(c, h.log, apperr.Authentication("invalid credentials"))
		return
	}
	resp, err := h.id.Authenticate(c.Request.Context(), req)
	if err != nil {
		respondErr(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
