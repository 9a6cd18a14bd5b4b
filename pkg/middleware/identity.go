package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity headers set by a trusted front proxy.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserName   = "X-User-Name"
	HeaderUserAvatar = "X-User-Avatar"
)

// Identity is the caller as seen by handlers.
type Identity struct {
	ID     string
	Name   string
	Avatar string
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.ID != ""
}

// UserClaims are the JWT claims accepted by Identify.
type UserClaims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Identify resolves the caller for every request. With a non-empty secret
// only a Bearer token verified as HS256 sets the identity, from its sub, name
// and picture claims; a bad token is rejected with 401 and the X-User-*
// headers are ignored. Without a secret the identity headers are used.
// Anonymous requests pass through without an identity.
func Identify(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id Identity

			switch {
			case secret != "":
				token, ok := bearerToken(r)
				if !ok {
					break
				}
				claims, err := parseToken(token, key)
				if err != nil {
					logger.WarnContext(r.Context(), "rejected bearer token",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
					return
				}
				id = Identity{ID: claims.Subject, Name: claims.Name, Avatar: claims.Picture}
			default:
				id = Identity{
					ID:     strings.TrimSpace(r.Header.Get(HeaderUserID)),
					Name:   strings.TrimSpace(r.Header.Get(HeaderUserName)),
					Avatar: strings.TrimSpace(r.Header.Get(HeaderUserAvatar)),
				}
			}

			if id.ID == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireIdentity rejects requests that Identify left anonymous.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing caller identity")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

func parseToken(raw string, key []byte) (*UserClaims, error) {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
