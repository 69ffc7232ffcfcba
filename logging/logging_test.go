package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogged(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := New("debug", "json")
	log.SetOutput(buf)

	r := gin.New()
	r.Use(Middleware(log))
	r.GET("/ok", func(c *gin.Context) {
		c.Set(UserIDKey, int64(7))
		FromContext(log, c).Info("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	return r
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var m map[string]any
		require.NoError(t, json.Unmarshal(l, &m))
		out = append(out, m)
	}
	return out
}

func TestMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	r := newLogged(&buf)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)

	entries := lines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, id, entries[0]["request_id"], "handler logs carry the request id")
	assert.Equal(t, id, entries[1]["request_id"])
	assert.EqualValues(t, 200, entries[1]["status"])
	assert.EqualValues(t, 7, entries[1]["user_id"])
	assert.Equal(t, "info", entries[1]["level"])
}

func TestMiddleware_KeepsIncomingIDAndLevels(t *testing.T) {
	var buf bytes.Buffer
	r := newLogged(&buf)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(RequestIDHeader, "from-client")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "from-client", rec.Header().Get(RequestIDHeader))
	entries := lines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warning", entries[0]["level"])
}

func TestNew_UnknownLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, New("loud", "text").GetLevel())
}
