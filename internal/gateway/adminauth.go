package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func subtleConstantTimeCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// AdminAuth validates the bearer credential mutating HTTP/WS endpoints
// require when an admin token is configured (spec.md §6.1). Two modes:
// a plain static-token compare (the config's admin_token, constant-time
// compared) and, when a JWT secret is configured instead, signed-token
// validation — grounded on internal/auth/jwt.go's HS256 sign/parse
// pair, narrowed from that file's full user-claims shape to a single
// "is this caller an admin" boolean.
type AdminAuth struct {
	staticToken string
	jwtSecret   []byte
}

// NewStaticAdminAuth builds an AdminAuth that compares the bearer token
// against a single configured secret.
func NewStaticAdminAuth(token string) *AdminAuth {
	return &AdminAuth{staticToken: token}
}

// NewJWTAdminAuth builds an AdminAuth that verifies HS256-signed admin
// tokens, so an admin_token can be minted with a real expiry instead of
// a long-lived static secret.
func NewJWTAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{jwtSecret: []byte(secret)}
}

// Enabled reports whether any admin credential is configured. When
// disabled, mutating endpoints are open (spec.md: "when set").
func (a *AdminAuth) Enabled() bool {
	return a != nil && (a.staticToken != "" || len(a.jwtSecret) > 0)
}

var errAdminUnauthorized = errors.New("unauthorized")

// adminClaims is the minimal claim set an issued admin JWT carries.
type adminClaims struct {
	jwt.RegisteredClaims
}

// IssueToken mints a signed admin token valid for ttl. It fails unless
// the AdminAuth was built with NewJWTAdminAuth.
func (a *AdminAuth) IssueToken(ttl time.Duration) (string, error) {
	if len(a.jwtSecret) == 0 {
		return "", errors.New("admin auth: no JWT secret configured")
	}
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// Authorize checks the bearer token on r against the configured
// credential. Returns errAdminUnauthorized when absent or invalid.
func (a *AdminAuth) Authorize(r *http.Request) error {
	if !a.Enabled() {
		return nil
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return errAdminUnauthorized
	}
	token := strings.TrimSpace(header[len("bearer "):])
	if token == "" {
		return errAdminUnauthorized
	}

	if a.staticToken != "" {
		if subtleConstantTimeCompare(token, a.staticToken) {
			return nil
		}
		return errAdminUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(token, &adminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errAdminUnauthorized
		}
		return a.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return errAdminUnauthorized
	}
	return nil
}

// Middleware wraps next, rejecting unauthorized requests with 401
// before next ever runs.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Authorize(r); err != nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin credential")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminContextKey carries an authorized-admin marker through a request
// context for handlers that want to branch on caller identity.
type adminContextKey struct{}

func withAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminContextKey{}, true)
}

func isAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminContextKey{}).(bool)
	return v
}
