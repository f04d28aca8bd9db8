package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
)

// tokenQueryParam carries the bearer value for WebSocket clients that cannot
// set headers.
const tokenQueryParam = "access_token"

// authenticator validates bearer credentials. With neither a token nor a
// JWT secret configured every request passes.
type authenticator struct {
	token  string
	secret []byte
}

func newAuthenticator(cfg config.API) authenticator {
	return authenticator{
		token:  strings.TrimSpace(cfg.Token),
		secret: []byte(strings.TrimSpace(cfg.JWTSecret)),
	}
}

func (a authenticator) enabled() bool {
	return a.token != "" || len(a.secret) > 0
}

// middleware rejects requests without a valid bearer credential.
func (a authenticator) middleware(next http.Handler) http.Handler {
	if !a.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.check(bearerFromRequest(r)); err != nil {
			writeError(w, nil, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a authenticator) check(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: missing bearer token", api.ErrUnauthorized)
	}
	if len(a.secret) > 0 {
		if _, err := parseToken(a.secret, raw); err != nil {
			return fmt.Errorf("%w: %v", api.ErrUnauthorized, err)
		}
		return nil
	}
	if raw != a.token {
		return fmt.Errorf("%w: invalid bearer token", api.ErrUnauthorized)
	}
	return nil
}

func bearerFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if websocket.IsWebSocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
	}
	return ""
}

func parseToken(secret []byte, raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	return claims, nil
}

// IssueToken signs an HS256 token for subject. A zero ttl yields a token
// without expiry; a negative one yields an expired token.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
