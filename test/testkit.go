package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/observability"
	"inkwell/internal/server"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// testPassword satisfies the registration password policy and is shared
// by every account the helpers create.
const testPassword = "TestPass123!@#"

type authUser struct {
	ID    uint
	Email string
	Token string
}

// envelope mirrors the response wrapper every endpoint writes.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// newInkwellApp boots the API against the in-memory test database and a
// per-test miniredis, with the full middleware chain and route table.
// All apps in one test run share the SQLite database, so tests must use
// unique usernames and emails.
func newInkwellApp(t *testing.T) *fiber.App {
	app, _ := newInkwellServer(t)
	return app
}

func newInkwellServer(t *testing.T) (*fiber.App, *server.Server) {
	t.Helper()

	if err := os.Setenv("APP_ENV", "test"); err != nil {
		t.Fatalf("set APP_ENV: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.MediaDir = t.TempDir()

	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}

	// miniredis backs the cache layer, the logout blacklist and the
	// realtime fan-out; each test gets its own instance so nothing
	// leaks across tests. The redis route limiters bypass themselves
	// under APP_ENV=test, leaving only the global per-IP cap.
	mr := miniredis.RunT(t)
	mon := observability.NewMonitor()
	cache.InitRedis(mr.Addr(), mon)

	srv, err := server.NewServerWithDeps(cfg, db, cache.GetClient(), mon)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	app := srv.BuildApp()
	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)
	return app, srv
}

// registerUser signs up a fresh account with unique credentials and
// returns its id and token. Usernames must be unique across the whole
// run because every app shares the test database.
func registerUser(t *testing.T, app *fiber.App, prefix string) authUser {
	t.Helper()

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	username := "u" + suffix
	email := fmt.Sprintf("%s_%s@example.com", prefix, suffix)

	payload := map[string]string{
		"username": username,
		"email":    email,
		"password": testPassword,
	}

	req := jsonReq(t, http.MethodPost, "/api/auth/register", payload)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("register app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		t.Fatalf("register expected 201 got %d. Body: %s", resp.StatusCode, buf.String())
	}

	var body struct {
		Status string `json:"status"`
		Data   struct {
			Token string `json:"token"`
			User  struct {
				ID uint `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	if body.Data.Token == "" || body.Data.User.ID == 0 {
		t.Fatalf("invalid register response: %+v", body)
	}

	return authUser{ID: body.Data.User.ID, Email: email, Token: body.Data.Token}
}

// makeAdmin flips the admin flag directly in the database, the same way
// the cmd/admin utility does.
func makeAdmin(t *testing.T, userID uint) {
	t.Helper()
	if err := database.DB.Exec(`UPDATE users SET is_admin = ? WHERE id = ?`, true, userID).Error; err != nil {
		t.Fatalf("promote user to admin: %v", err)
	}
}

func jsonReq(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	if payload == nil {
		return httptest.NewRequest(method, path, nil)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authReq(t *testing.T, method, path, token string, payload any) *http.Request {
	t.Helper()
	req := jsonReq(t, method, path, payload)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// decodeData unmarshals the envelope's data payload into out.
func decodeData(env envelope, out any) error {
	return json.Unmarshal(env.Data, out)
}

// doJSON runs a request and decodes the envelope, failing the test on
// transport errors.
func doJSON(t *testing.T, app *fiber.App, req *http.Request) (int, envelope) {
	t.Helper()

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s response: %v", req.Method, req.URL.Path, err)
	}
	return resp.StatusCode, env
}

func itoa(i uint) string {
	return fmt.Sprintf("%d", i)
}
