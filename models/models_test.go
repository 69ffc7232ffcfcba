package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage(t *testing.T) {
	cases := []struct {
		page, size            int
		wantOffset, wantLimit int
	}{
		{0, 0, 0, DefaultPageSize},
		{1, 10, 0, 10},
		{3, 10, 20, 10},
		{-2, 5, 0, 5},
		{2, 1000, MaxPageSize, MaxPageSize},
	}
	for _, tc := range cases {
		off, lim := Page(tc.page, tc.size)
		assert.Equal(t, tc.wantOffset, off, "page=%d size=%d", tc.page, tc.size)
		assert.Equal(t, tc.wantLimit, lim, "page=%d size=%d", tc.page, tc.size)
	}
}

func TestUserHidesPasswordHash(t *testing.T) {
	b, err := json.Marshal(User{ID: 1, Username: "alice", PasswordHash: "$2a$10$abc"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "$2a$10$abc")
}

func TestUpdatePostReq_AbsentVsEmpty(t *testing.T) {
	var req UpdatePostReq
	require.NoError(t, json.Unmarshal([]byte(`{"title":"","tags":[]}`), &req))
	require.NotNil(t, req.Title)
	assert.Equal(t, "", *req.Title)
	assert.Nil(t, req.Content)
	require.NotNil(t, req.Tags)
	assert.Empty(t, *req.Tags)
}
