package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Validation("bad"), KindValidation},
		{Authentication("who"), KindAuthentication},
		{Forbidden("no"), KindForbidden},
		{NotFound("gone"), KindNotFound},
		{Conflict("dup"), KindConflict},
		{Timeout(context.DeadlineExceeded), KindTimeout},
		{Internal("insert post", errors.New("boom")), KindInternal},
		{fmt.Errorf("wrapped: %w", NotFound("gone")), KindNotFound},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), KindTimeout},
		{errors.New("plain"), KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), "%v", tc.err)
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "post not found", Message(NotFound("post not found")))
	assert.Equal(t, "server error", Message(Internal("insert post", errors.New("pq: secret detail"))))
	assert.Equal(t, "server error", Message(errors.New("raw")))
	assert.Contains(t, Message(context.DeadlineExceeded), "timed out")
}

func TestCauseIsKept(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("load post", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, Is(nil, KindInternal))
}
