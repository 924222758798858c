package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService handles JWT creation and validation for login sessions.
//
// It holds the HMAC secret key used to sign and verify tokens. The same
// secret must be used for both operations — keep it safe and rotate it
// periodically in production.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. The standard "sub" claim carries the internal
// account ID.
type claims struct {
	jwt.RegisteredClaims
}

// sessionLifetime is how long an issued session token stays valid. After
// expiry the client must log in again.
const sessionLifetime = 24 * time.Hour

// Generate creates and signs a session token for the given account ID.
func (s *TokenService) Generate(accountID string) (string, error) {
	return s.GenerateWithDuration(accountID, sessionLifetime)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used in tests and for issuing shorter-lived tokens.
func (s *TokenService) GenerateWithDuration(accountID string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    "tableforge",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the account ID from
// its subject claim.
//
// Restricting the algorithm to HS256 via jwt.WithValidMethods blocks
// algorithm-confusion attacks; the issuer check rejects tokens minted by
// other applications sharing the secret.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer("tableforge"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	accountID := c.Subject
	if accountID == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return accountID, nil
}
