package test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type userPayload struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
	IsAdmin   bool   `json:"is_admin"`
}

// pngBytes renders a small gradient PNG so avatar uploads carry a real
// decodable image instead of canned fixture bytes.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 180, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func avatarUploadReq(t *testing.T, userID uint, token string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/users/"+itoa(userID)+"/avatar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestProfileLifecycle(t *testing.T) {
	const rotatedPassword = "RotatedPass456!@#"

	app := newInkwellApp(t)

	owner := registerUser(t, app, "owner")
	other := registerUser(t, app, "other")

	t.Run("UpdateOwnProfile", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodPut, "/api/users/"+itoa(owner.ID), owner.Token, map[string]any{
			"first_name": "Ada",
			"last_name":  "Lovelace",
		}))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "success", env.Status)

		var user userPayload
		assert.NoError(t, decodeData(env, &user))
		assert.Equal(t, owner.ID, user.ID)
		assert.Equal(t, "Ada", user.FirstName)
		assert.Equal(t, "Lovelace", user.LastName)
	})

	t.Run("UpdateOtherUserForbidden", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodPut, "/api/users/"+itoa(owner.ID), other.Token, map[string]any{
			"first_name": "Mallory",
		}))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Not authorized to update this user", env.Message)
	})

	t.Run("AvatarUpload", func(t *testing.T) {
		status, env := doJSON(t, app, avatarUploadReq(t, owner.ID, owner.Token, pngBytes(t, 320, 200)))
		assert.Equal(t, http.StatusOK, status)

		var user userPayload
		assert.NoError(t, decodeData(env, &user))
		assert.True(t, strings.HasPrefix(user.Avatar, "/media/avatars/"), "avatar path %q", user.Avatar)
		assert.True(t, strings.HasSuffix(user.Avatar, ".webp"), "avatar path %q", user.Avatar)

		// The normalized file must be reachable through the static mount.
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, user.Avatar, nil), -1)
		if err != nil {
			t.Fatalf("fetch avatar: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read avatar body: %v", err)
		}
		if assert.GreaterOrEqual(t, len(raw), 12) {
			assert.Equal(t, "RIFF", string(raw[:4]))
			assert.Equal(t, "WEBP", string(raw[8:12]))
		}
	})

	t.Run("AvatarUploadForbidden", func(t *testing.T) {
		status, env := doJSON(t, app, avatarUploadReq(t, owner.ID, other.Token, pngBytes(t, 64, 64)))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Not authorized to update this user", env.Message)
	})

	t.Run("AvatarRejectsNonImage", func(t *testing.T) {
		status, env := doJSON(t, app, avatarUploadReq(t, owner.ID, owner.Token, []byte("#!/bin/sh\necho nope\n")))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid image type", env.Message)
	})

	t.Run("RejectWrongCurrentPassword", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodPut, "/api/users/"+itoa(owner.ID)+"/password", owner.Token, map[string]any{
			"current_password": "DefinitelyWrong1!",
			"new_password":     "AnotherValid123!",
		}))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Current password is incorrect", env.Message)
	})

	t.Run("ChangePassword", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodPut, "/api/users/"+itoa(owner.ID)+"/password", owner.Token, map[string]any{
			"current_password": testPassword,
			"new_password":     rotatedPassword,
		}))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Password updated successfully", env.Message)

		status, env = doJSON(t, app, jsonReq(t, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    owner.Email,
			"password": testPassword,
		}))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid credentials", env.Message)

		status, env = doJSON(t, app, jsonReq(t, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    owner.Email,
			"password": rotatedPassword,
		}))
		assert.Equal(t, http.StatusOK, status)
		var session struct {
			Token string `json:"token"`
		}
		assert.NoError(t, decodeData(env, &session))
		assert.NotEmpty(t, session.Token)
	})

	t.Run("DeleteAccount", func(t *testing.T) {
		status, env := doJSON(t, app, authReq(t, http.MethodDelete, "/api/users/"+itoa(owner.ID), owner.Token, nil))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "User deleted successfully", env.Message)

		status, env = doJSON(t, app, jsonReq(t, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    owner.Email,
			"password": rotatedPassword,
		}))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Invalid credentials", env.Message)
	})
}
