package test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ownership and admin override behavior through the whole stack: routes,
// auth gate, services, repositories and the error normalizer together.
func TestOwnershipAndAdminModeration(t *testing.T) {
	app := newInkwellApp(t)

	author := registerUser(t, app, "owner")
	intruder := registerUser(t, app, "intruder")
	moderator := registerUser(t, app, "moderator")
	makeAdmin(t, moderator.ID)

	// Author publishes a post and comments on it.
	status, env := doJSON(t, app, authReq(t, http.MethodPost, "/api/posts/", author.Token, map[string]any{
		"title":   "On keeping a notebook",
		"content": "Every line earns its place.",
	}))
	require.Equal(t, http.StatusCreated, status)

	var post postPayload
	require.NoError(t, json.Unmarshal(env.Data, &post))

	status, env = doJSON(t, app, authReq(t, http.MethodPost, "/api/posts/"+itoa(post.ID)+"/comments", author.Token, map[string]string{
		"content": "Adding a correction to my own post.",
	}))
	require.Equal(t, http.StatusCreated, status)

	var comment commentPayload
	require.NoError(t, json.Unmarshal(env.Data, &comment))

	t.Run("NonOwnerCannotUpdate", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodPut, "/api/posts/"+itoa(post.ID), intruder.Token, map[string]string{
			"title": "Hijacked title",
		}))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, "Not authorized to update this post", env.Message)
	})

	t.Run("NonOwnerCannotDeletePost", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodDelete, "/api/posts/"+itoa(post.ID), intruder.Token, nil))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Not authorized to delete this post", env.Message)
	})

	t.Run("NonOwnerCannotDeleteComment", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodDelete,
			"/api/posts/"+itoa(post.ID)+"/comments/"+itoa(comment.ID), intruder.Token, nil))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Not authorized to delete this comment", env.Message)
	})

	t.Run("AdminRoutesRejectNonAdmins", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodPost,
			"/api/users/"+itoa(author.ID)+"/promote-admin", intruder.Token, nil))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Admin access required", env.Message)

		status, env = doJSON(t, app, authReq(t, http.MethodGet, "/api/admin/feature-flags", intruder.Token, nil))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Admin access required", env.Message)
	})

	t.Run("AdminSeesFeatureFlags", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodGet, "/api/admin/feature-flags", moderator.Token, nil))
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "success", env.Status)
		assert.NotEmpty(t, env.Data)
	})

	t.Run("AdminPromotesAndDemotes", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodPost,
			"/api/users/"+itoa(intruder.ID)+"/promote-admin", moderator.Token, nil))
		require.Equal(t, http.StatusOK, status)

		var data struct {
			Message string `json:"message"`
			User    struct {
				IsAdmin bool `json:"is_admin"`
			} `json:"user"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "User promoted to admin", data.Message)
		assert.True(t, data.User.IsAdmin)

		status, env = doJSON(t, app, authReq(t, http.MethodPost,
			"/api/users/"+itoa(intruder.ID)+"/demote-admin", moderator.Token, nil))
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "User demoted from admin", data.Message)
		assert.False(t, data.User.IsAdmin)
	})

	t.Run("AdminDeletesOthersComment", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodDelete,
			"/api/posts/"+itoa(post.ID)+"/comments/"+itoa(comment.ID), moderator.Token, nil))
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Comment deleted successfully", env.Message)
	})

	t.Run("AdminDeletesOthersPost", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodDelete, "/api/posts/"+itoa(post.ID), moderator.Token, nil))
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Post deleted successfully", env.Message)

		status, _ = doJSON(t, app, jsonReq(t, http.MethodGet, "/api/posts/"+itoa(post.ID), nil))
		assert.Equal(t, http.StatusNotFound, status)
	})
}
