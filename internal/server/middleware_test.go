package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"
	"time"

	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/token"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Exercises the fully wired auth gate: token extraction, verification
// against the service's issuer and audience, and account resolution.
func TestServerAuthRequired(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("GetByID", mock.Anything, uint(123)).
		Return(&models.User{ID: 123, Username: "ada", IsActive: true}, nil)
	repo.On("GetByID", mock.Anything, uint(456)).
		Return(&models.User{ID: 456, Username: "ghost", IsActive: false}, nil)

	s, app := newTestServer(t, func(s *Server) {
		s.userRepo = repo
	})
	app.Get("/protected", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"userID": c.Locals("userID")})
	})

	mint := func(userID uint, issuer, audience string, ttl time.Duration) string {
		claims := jwt.MapClaims{
			"sub": strconv.FormatUint(uint64(userID), 10),
			"iss": issuer,
			"aud": audience,
			"exp": time.Now().Add(ttl).Unix(),
			"jti": "jti-" + strconv.FormatUint(uint64(userID), 10),
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		str, err := tok.SignedString([]byte(testSecret))
		require.NoError(t, err)
		return str
	}

	issued, err := s.tokens.Issue(123, "ada")
	require.NoError(t, err)

	tests := []struct {
		name            string
		authHeader      string
		tokenParam      string
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:           "Service Issued Token",
			authHeader:     "Bearer " + issued,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Hand Minted Token",
			authHeader:     "Bearer " + mint(123, token.Issuer, token.Audience, time.Hour),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Query Param Token",
			tokenParam:     mint(123, token.Issuer, token.Audience, time.Hour),
			expectedStatus: http.StatusOK,
		},
		{
			name:            "Expired Token",
			authHeader:      "Bearer " + mint(123, token.Issuer, token.Audience, -time.Hour),
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: middleware.MsgInvalidToken,
		},
		{
			name:           "Wrong Issuer",
			authHeader:     "Bearer " + mint(123, "someone-else", token.Audience, time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Wrong Audience",
			authHeader:     "Bearer " + mint(123, token.Issuer, "someone-else", time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:            "Missing Header And Param",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: middleware.MsgNoToken,
		},
		{
			name:            "Malformed Bearer Format",
			authHeader:      "BearerTokenOnly",
			expectedStatus:  http.StatusUnauthorized,
			expectedMessage: middleware.MsgInvalidToken,
		},
		{
			name:           "Deactivated Account",
			authHeader:     "Bearer " + mint(456, token.Issuer, token.Audience, time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := "/protected"
			if tt.tokenParam != "" {
				path += "?token=" + tt.tokenParam
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, float64(123), body["userID"])
			} else if tt.expectedMessage != "" {
				env := decodeEnvelope(t, resp)
				assert.Equal(t, tt.expectedMessage, env.Message)
			}
		})
	}
}

// Admin routes stack AdminRequired after the auth gate; a valid session
// without the admin flag reads as forbidden, not unauthorized. The admin
// flag is read from the database on every request, never from the cached
// session user.
func TestServerAdminRequired(t *testing.T) {
	adminFlagQuery := regexp.QuoteMeta(`SELECT "is_admin" FROM "users" WHERE "users"."id" = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)

	adminApp := func(t *testing.T, caller *models.User) (*fiber.App, sqlmock.Sqlmock) {
		t.Helper()
		sqlDB, dbMock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = sqlDB.Close() })

		gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
		require.NoError(t, err)

		s, app := newTestServer(t, func(s *Server) {
			s.db = gormDB
		})
		app.Get("/admin", fakeAuth(caller), s.AdminRequired(), func(c *fiber.Ctx) error {
			return c.SendString("ok")
		})
		return app, dbMock
	}

	t.Run("Missing Session", func(t *testing.T) {
		s, app := newTestServer(t, nil)
		app.Get("/admin", s.AdminRequired(), func(c *fiber.Ctx) error {
			return c.SendString("ok")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.Equal(t, middleware.MsgNoToken, env.Message)
	})

	t.Run("Non Admin Is Forbidden", func(t *testing.T) {
		app, dbMock := adminApp(t, &models.User{ID: 7, Username: "pleb", IsActive: true})
		dbMock.ExpectQuery(adminFlagQuery).
			WithArgs(7, 1).
			WillReturnRows(sqlmock.NewRows([]string{"is_admin"}).AddRow(false))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.Equal(t, "Admin access required", env.Message)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("Admin Passes", func(t *testing.T) {
		app, dbMock := adminApp(t, &models.User{ID: 8, Username: "root", IsActive: true})
		dbMock.ExpectQuery(adminFlagQuery).
			WithArgs(8, 1).
			WillReturnRows(sqlmock.NewRows([]string{"is_admin"}).AddRow(true))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}
