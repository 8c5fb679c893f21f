// Package auth verifies bearer tokens issued by the identity provider
// and gates the admin API surface.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voltbill/voltbill/internal/platform/httpx"
)

type contextKey string

const identityKey contextKey = "auth.identity"

// Identity is the authenticated caller extracted from a token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Claims mirrors the provider's access token payload.
type Claims struct {
	Email       string `json:"email"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret      []byte
	adminEmails map[string]struct{}
}

// NewVerifier builds a Verifier. The secret may be given base64-encoded
// or raw; base64 is tried first.
func NewVerifier(secret string, adminEmails []string) *Verifier {
	key := []byte(secret)
	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil && len(decoded) > 0 {
		key = decoded
	}
	allow := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			allow[email] = struct{}{}
		}
	}
	return &Verifier{secret: key, adminEmails: allow}
}

// Verify parses and validates the token, returning the caller identity.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return Identity{}, httpx.ErrUnauthorized
	}
	return Identity{
		UserID: claims.Subject,
		Email:  strings.ToLower(claims.Email),
		Role:   claims.AppMetadata.Role,
	}, nil
}

// IsAdmin reports whether the identity may use the admin API.
func (v *Verifier) IsAdmin(id Identity) bool {
	if id.Role == "admin" {
		return true
	}
	_, ok := v.adminEmails[id.Email]
	return ok
}

// RequireAdmin rejects requests without a valid admin bearer token.
func (v *Verifier) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		id, err := v.Verify(token)
		if err != nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		if !v.IsAdmin(id) {
			httpx.RespondError(w, httpx.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// RequireInternalKey gates service-to-service endpoints behind a shared
// secret carried in the X-Internal-Secret header.
func RequireInternalKey(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			got := r.Header.Get("X-Internal-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFrom returns the identity stored by RequireAdmin.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
