package test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every failure mode answers with the same envelope shape and a stable
// message. Clients key off these strings, so they are asserted exactly.
func TestErrorContract(t *testing.T) {
	app := newInkwellApp(t)

	user := registerUser(t, app, "errs")

	tests := []struct {
		name        string
		method      string
		path        string
		token       string
		payload     any
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "Unknown Post",
			method:      http.MethodGet,
			path:        "/api/posts/999999",
			wantStatus:  http.StatusNotFound,
			wantMessage: "Post with ID 999999 not found",
		},
		{
			name:       "Malformed ID Reads As Not Found",
			method:     http.MethodGet,
			path:       "/api/posts/not-a-number",
			wantStatus: http.StatusNotFound,
			// A malformed id must not be distinguishable from a missing row.
			wantMessage: "Resource not found",
		},
		{
			name:        "Unknown Route",
			method:      http.MethodGet,
			path:        "/api/nope",
			wantStatus:  http.StatusNotFound,
			wantMessage: "Cannot GET /api/nope",
		},
		{
			name:        "No Token",
			method:      http.MethodPost,
			path:        "/api/posts/",
			payload:     map[string]string{"title": "x", "content": "y"},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "No token, authorization denied",
		},
		{
			name:        "Garbage Token",
			method:      http.MethodPost,
			path:        "/api/posts/",
			token:       "not-a-jwt",
			payload:     map[string]string{"title": "x", "content": "y"},
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Token is not valid",
		},
		{
			name:        "Missing Title And Content",
			method:      http.MethodPost,
			path:        "/api/posts/",
			token:       user.Token,
			payload:     map[string]string{},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "title is required, content is required",
		},
		{
			name:        "Missing Content Only",
			method:      http.MethodPost,
			path:        "/api/posts/",
			token:       user.Token,
			payload:     map[string]string{"title": "A title"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "content is required",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			status, env := doJSON(t, app, authReq(t, tt.method, tt.path, tt.token, tt.payload))
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, "error", env.Status)
			assert.Equal(t, tt.wantMessage, env.Message)
		})
	}

	t.Run("Oversized Comment", func(t *testing.T) {
		// A post to hang the comment off.
		status, env := doJSON(t, app, authReq(t, http.MethodPost, "/api/posts/", user.Token, map[string]string{
			"title":   "Comment target",
			"content": "Body",
		}))
		require.Equal(t, http.StatusCreated, status)

		var post postPayload
		require.NoError(t, decodeData(env, &post))

		status, env = doJSON(t, app, authReq(t, http.MethodPost, "/api/posts/"+itoa(post.ID)+"/comments", user.Token, map[string]string{
			"content": strings.Repeat("a", 501),
		}))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "comment must not exceed 500 characters", env.Message)
	})

	t.Run("Duplicate Email", func(t *testing.T) {
		status, env := doJSON(t, app, jsonReq(t, http.MethodPost, "/api/auth/register", map[string]string{
			"username": "freshname99",
			"email":    user.Email,
			"password": testPassword,
		}))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, "User with this email or username already exists", env.Message)
	})
}

// The redis-backed route limiters are bypassed in the test environment,
// but the global per-IP cap is not. Request 101 inside the window must
// come back as a rate limit error in the standard envelope.
func TestGlobalRequestCap(t *testing.T) {
	app := newInkwellApp(t)

	for i := 0; i < 100; i++ {
		resp, err := app.Test(jsonReq(t, http.MethodGet, "/health", nil), -1)
		if err != nil {
			t.Fatalf("health request %d: %v", i+1, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("health request %d: status %d", i+1, resp.StatusCode)
		}
	}

	status, env := doJSON(t, app, jsonReq(t, http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "Too many requests. Please try again later.", env.Message)
}

func TestHealthEndpoints(t *testing.T) {
	app := newInkwellApp(t)

	resp, err := app.Test(jsonReq(t, http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Readiness reports healthy with both stores reachable.
	ready, err := app.Test(jsonReq(t, http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	_ = ready.Body.Close()
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}
