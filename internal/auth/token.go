// Package auth verifies the access tokens issued by the auth provider.
// Sessions are owned by the provider; this service only checks the token's
// signature and claims and never stores credentials.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"collegeplan/internal/config"
	"collegeplan/internal/types"
)

// leeway tolerates clock skew between the provider and this service.
const leeway = 30 * time.Second

// Claims are the access-token claims the service relies on.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 access tokens signed with the project's JWT
// secret.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier creates a TokenVerifier from the auth configuration.
// Issuer and audience are checked only when configured.
func NewTokenVerifier(cfg config.AuthConfig) *TokenVerifier {
	return newTokenVerifier(cfg, time.Now)
}

func newTokenVerifier(cfg config.AuthConfig, now func() time.Time) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(now),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}
	return &TokenVerifier{
		secret: []byte(cfg.JWTSecret.Unmask()),
		parser: jwt.NewParser(opts...),
	}
}

// Verify parses token and returns the user it was issued to.
func (v *TokenVerifier) Verify(token string) (types.Actor, error) {
	if token == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing access token", nil)
	}
	if len(v.secret) == 0 {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token verification is not configured", nil)
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenExpired, "access token expired", err)
		}
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid access token", err)
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "access token subject is not a user id", err)
	}

	return types.Actor{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}

// TokenFromRequest returns the bearer token of r, falling back to the named
// session cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
