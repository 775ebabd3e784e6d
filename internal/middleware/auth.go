package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidToken is returned when a bearer token cannot be verified.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrNoRevocationStore is returned by Revoke when Redis is not configured.
	ErrNoRevocationStore = errors.New("token revocation store not configured")
)

const (
	blacklistKeyPrefix = "blacklist:"
	tokenLocal         = "token"
)

// Token is the verified content of a bearer token.
type Token struct {
	MemberID  uint
	ID        string
	ExpiresAt time.Time
}

// MemberCheck reports whether the member may still act on the API.
type MemberCheck func(ctx context.Context, memberID uint) (bool, error)

// Authenticator issues and verifies HS256 bearer tokens whose subject is a
// member id. Revoked token ids are kept in Redis until the token expires.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	redis  *redis.Client
	check  MemberCheck
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithRevocationStore keeps revoked token ids in rdb. A nil client disables
// revocation.
func WithRevocationStore(rdb *redis.Client) AuthOption {
	return func(a *Authenticator) { a.redis = rdb }
}

// WithMemberCheck rejects tokens whose member the check refuses.
func WithMemberCheck(check MemberCheck) AuthOption {
	return func(a *Authenticator) { a.check = check }
}

// NewAuthenticator creates an Authenticator signing with secret.
func NewAuthenticator(secret string, ttl time.Duration, opts ...AuthOption) *Authenticator {
	a := &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IssueToken signs a token for memberID.
func (a *Authenticator) IssueToken(memberID uint) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(memberID), 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken verifies tokenString and returns the member id in its subject.
func (a *Authenticator) ParseToken(tokenString string) (uint, error) {
	tok, err := a.Verify(tokenString)
	if err != nil {
		return 0, err
	}
	return tok.MemberID, nil
}

// Verify checks the signature and expiry of tokenString. It does not consult
// the revocation store.
func (a *Authenticator) Verify(tokenString string) (*Token, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || id == 0 {
		return nil, ErrInvalidToken
	}

	tok := &Token{MemberID: uint(id), ID: claims.ID}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok, nil
}

// Revoke blacklists the token until it expires. Tokens without an id, or
// already expired, need no entry.
func (a *Authenticator) Revoke(ctx context.Context, tok *Token) error {
	if tok == nil || tok.ID == "" {
		return nil
	}
	ttl := tok.ExpiresAt.Sub(a.now())
	if ttl <= 0 {
		return nil
	}
	if a.redis == nil {
		return ErrNoRevocationStore
	}
	if err := a.redis.Set(ctx, blacklistKeyPrefix+tok.ID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id is blacklisted. Without Redis no
// token is revoked.
func (a *Authenticator) IsRevoked(ctx context.Context, tok *Token) (bool, error) {
	if a.redis == nil || tok.ID == "" {
		return false, nil
	}
	n, err := a.redis.Exists(ctx, blacklistKeyPrefix+tok.ID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Required is a middleware that enforces authentication for protected routes.
// The member id is stored in the "memberID" local and in the user context.
func (a *Authenticator) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		tok, err := a.Verify(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		ctx := c.UserContext()
		revoked, err := a.IsRevoked(ctx, tok)
		if err != nil {
			// Fail open, like RateLimit.
			Logger.WarnContext(ctx, "token revocation check failed", "error", err)
		}
		if revoked {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token has been revoked",
			})
		}

		if a.check != nil {
			ok, err := a.check(ctx, tok.MemberID)
			if err != nil {
				Logger.ErrorContext(ctx, "member check failed", "member_id", tok.MemberID, "error", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Unable to verify account",
				})
			}
			if !ok {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Account is no longer active",
				})
			}
		}

		c.Locals("memberID", tok.MemberID)
		c.Locals(tokenLocal, tok)
		c.SetUserContext(WithMemberID(ctx, tok.MemberID))

		return c.Next()
	}
}

// CurrentToken returns the token verified by Required for this request.
func CurrentToken(c *fiber.Ctx) *Token {
	tok, _ := c.Locals(tokenLocal).(*Token)
	return tok
}
