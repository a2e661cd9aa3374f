// Package token issues and verifies the signed bearer tokens that
// authenticate API requests.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer identifies tokens minted by this API.
	Issuer = "inkwell-api"
	// Audience identifies the intended consumer of minted tokens.
	Audience = "inkwell-client"

	defaultTTL = 7 * 24 * time.Hour
)

// Verification failures collapse to one public message at the gate; these
// sentinels keep the internal distinction for logging.
var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token is not valid")
)

// Claims is the verified content of an accepted token.
type Claims struct {
	UserID   uint
	Username string
	JTI      string
	Expiry   time.Time
}

// Service signs and verifies HMAC-SHA256 tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a token service around the shared signing secret.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret), ttl: defaultTTL}
}

// NewServiceWithTTL is used by tests that need short-lived tokens.
func NewServiceWithTTL(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Issue mints a signed token for the given user.
func (s *Service) Issue(userID uint, username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(userID), 10),
		"username": username,
		"iss":      Issuer,
		"aud":      Audience,
		"exp":      now.Add(s.ttl).Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"jti":      uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string. Expired tokens return
// ErrExpired; every other failure returns ErrInvalid. Both wrap the
// underlying parser error so logs can tell them apart.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}

	issuer, err := claims.GetIssuer()
	if err != nil || issuer != Issuer {
		return nil, fmt.Errorf("%w: bad issuer", ErrInvalid)
	}

	audience, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("%w: bad audience", ErrInvalid)
	}
	audOK := false
	for _, aud := range audience {
		if aud == Audience {
			audOK = true
			break
		}
	}
	if !audOK {
		return nil, fmt.Errorf("%w: bad audience", ErrInvalid)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	userID, err := strconv.ParseUint(subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrInvalid)
	}

	out := &Claims{UserID: uint(userID)}
	if username, ok := claims["username"].(string); ok {
		out.Username = username
	}
	if jti, ok := claims["jti"].(string); ok {
		out.JTI = jti
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.Expiry = exp.Time
	}

	return out, nil
}
