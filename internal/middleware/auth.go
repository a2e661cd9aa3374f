package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/token"

	"github.com/gofiber/fiber/v2"
)

// AuthDeps carries everything the auth gate needs. ResolveUser loads the
// account behind a verified token; IsRevoked consults the logout
// blacklist and may be nil when no blacklist store is available.
type AuthDeps struct {
	Tokens      *token.Service
	ResolveUser func(ctx context.Context, userID uint) (*models.User, error)
	IsRevoked   func(ctx context.Context, jti string) (bool, error)
	// AllowQueryToken additionally accepts ?token= for websocket
	// upgrades, where clients cannot set headers.
	AllowQueryToken bool
}

// Gate rejection messages. The header-missing case keeps its own string;
// every other failure collapses to the canonical invalid-token message
// so callers cannot probe which check failed.
const (
	MsgNoToken      = "No token, authorization denied"
	MsgInvalidToken = "Token is not valid"
)

// AuthGate builds the authentication interceptor chain for protected
// routes: extract, verify, revocation check, user resolution. Each step
// is explicit; see AuthGateSteps for the ordering.
func AuthGate(deps AuthDeps) fiber.Handler {
	return Compose(AuthGateSteps(deps)...)
}

// AuthGateSteps returns the gate's ordered steps. Exposed separately so
// tests can exercise individual stages and callers can splice extra
// steps (for example a rate limiter) into the chain.
func AuthGateSteps(deps AuthDeps) []Step {
	return []Step{
		extractTokenStep(deps),
		verifyTokenStep(deps),
		revocationStep(deps),
		resolveUserStep(deps),
	}
}

// extractTokenStep pulls the raw token out of the Authorization header
// (or the query string for websocket upgrades) into locals.
func extractTokenStep(deps AuthDeps) Step {
	return Step{
		Name: "extract_token",
		Run: func(c *fiber.Ctx) (Decision, error) {
			header := c.Get("Authorization")
			if header == "" && deps.AllowQueryToken {
				if qt := c.Query("token"); qt != "" {
					c.Locals("rawToken", qt)
					return Continue, nil
				}
			}
			if header == "" {
				return Stop, models.NewUnauthorizedError(MsgNoToken)
			}

			parts := strings.Split(header, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				Logger.WarnContext(c.UserContext(), "auth rejected: malformed authorization header")
				return Stop, models.NewUnauthorizedError(MsgInvalidToken)
			}
			c.Locals("rawToken", parts[1])
			return Continue, nil
		},
	}
}

// verifyTokenStep validates the signature and registered claims. Expired
// and invalid tokens produce the same public message but distinct logs.
func verifyTokenStep(deps AuthDeps) Step {
	return Step{
		Name: "verify_token",
		Run: func(c *fiber.Ctx) (Decision, error) {
			raw, _ := c.Locals("rawToken").(string)
			claims, err := deps.Tokens.Verify(raw)
			if err != nil {
				if errors.Is(err, token.ErrExpired) {
					Logger.WarnContext(c.UserContext(), "auth rejected: token expired")
				} else {
					Logger.WarnContext(c.UserContext(), "auth rejected: invalid token", "reason", err.Error())
				}
				return Stop, models.NewUnauthorizedError(MsgInvalidToken)
			}
			c.Locals("tokenClaims", claims)
			return Continue, nil
		},
	}
}

// revocationStep rejects tokens whose JTI was blacklisted by logout.
func revocationStep(deps AuthDeps) Step {
	return Step{
		Name: "check_revocation",
		Run: func(c *fiber.Ctx) (Decision, error) {
			if deps.IsRevoked == nil {
				return Continue, nil
			}
			claims, _ := c.Locals("tokenClaims").(*token.Claims)
			if claims == nil || claims.JTI == "" {
				return Continue, nil
			}
			revoked, err := deps.IsRevoked(c.UserContext(), claims.JTI)
			if err != nil {
				// Blacklist store down: fail open, the token itself is valid.
				Logger.WarnContext(c.UserContext(), "revocation check unavailable", "error", err.Error())
				return Continue, nil
			}
			if revoked {
				Logger.WarnContext(c.UserContext(), "auth rejected: revoked token", "jti", claims.JTI)
				return Stop, models.NewUnauthorizedError(MsgInvalidToken)
			}
			return Continue, nil
		},
	}
}

// resolveUserStep loads the account and attaches identity to the
// request. A token for a deleted or deactivated account is rejected the
// same way as an invalid one.
func resolveUserStep(deps AuthDeps) Step {
	return Step{
		Name: "resolve_user",
		Run: func(c *fiber.Ctx) (Decision, error) {
			claims, _ := c.Locals("tokenClaims").(*token.Claims)
			if claims == nil {
				return Stop, models.NewUnauthorizedError(MsgInvalidToken)
			}

			user, err := deps.ResolveUser(c.UserContext(), claims.UserID)
			if err != nil || user == nil || !user.IsActive {
				Logger.WarnContext(c.UserContext(), "auth rejected: unresolvable user", "user_id", claims.UserID)
				return Stop, models.NewUnauthorizedError(MsgInvalidToken)
			}

			c.Locals("userID", user.ID)
			c.Locals("username", user.Username)
			c.Locals("user", user)
			c.Locals("tokenJTI", claims.JTI)
			c.Locals("tokenExpiry", claims.Expiry)

			ctx := context.WithValue(c.UserContext(), UserIDKey, user.ID)
			c.SetUserContext(ctx)
			return Continue, nil
		},
	}
}

// TokenExpiry reads the authenticated token's expiry from locals; used
// by logout to size the blacklist TTL.
func TokenExpiry(c *fiber.Ctx) time.Time {
	if exp, ok := c.Locals("tokenExpiry").(time.Time); ok {
		return exp
	}
	return time.Time{}
}
