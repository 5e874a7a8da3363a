package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const adminClaimsKey contextKey = "adminClaims"

// AdminClaims are the claims carried by staff tokens. An empty ClinicID
// grants access to every clinic.
type AdminClaims struct {
	ClinicID string `json:"clinic_id,omitempty"`
	jwt.RegisteredClaims
}

// AdminJWT admits requests carrying an HS256 staff token signed with secret.
// An empty secret closes the admin surface.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	key := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}
			raw, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			var claims AdminClaims
			if _, err := parser.ParseWithClaims(raw, &claims, key); err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAdminClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (AdminClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(AdminClaims)
	return claims, ok
}

// WithAdminClaims stores claims on ctx. Used by tests and internal callers.
func WithAdminClaims(ctx context.Context, claims AdminClaims) context.Context {
	return context.WithValue(ctx, adminClaimsKey, claims)
}

// AdminActor names the staff member behind a request for audit records.
func AdminActor(ctx context.Context) string {
	if claims, ok := AdminClaimsFromContext(ctx); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "admin"
}

// CanAccessClinic reports whether the caller's token covers clinicID.
func CanAccessClinic(ctx context.Context, clinicID string) bool {
	claims, ok := AdminClaimsFromContext(ctx)
	if !ok {
		return false
	}
	return claims.ClinicID == "" || claims.ClinicID == clinicID
}
