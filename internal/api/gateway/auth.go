package gateway

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/poly-workshop/authlink/internal/infrastructure/bootstrap"
	"github.com/poly-workshop/authlink/internal/infrastructure/security"
)

// AdminCookie may carry the admin access token instead of the Authorization header.
const AdminCookie = "authlink_admin"

// TokenVerifier validates admin access tokens.
type TokenVerifier interface {
	Verify(tokenString string) (*security.AdminClaims, error)
}

type adminAuth struct {
	verifier TokenVerifier
	disabled bool
}

func newAdminAuth(verifier TokenVerifier, disabled bool) *adminAuth {
	return &adminAuth{verifier: verifier, disabled: disabled}
}

func (a *adminAuth) wrap(next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if a.disabled {
			next(w, r, params)
			return
		}
		ctx := r.Context()
		if a.verifier == nil {
			writeUnauthenticated(ctx, w)
			return
		}
		raw := bearerToken(r)
		if raw == "" {
			writeUnauthenticated(ctx, w)
			return
		}
		claims, err := a.verifier.Verify(raw)
		if err != nil {
			slog.WarnContext(ctx, "admin token rejected", "error", err)
			writeUnauthenticated(ctx, w)
			return
		}
		ctx = bootstrap.WithLogAttrs(ctx, slog.String("admin_uid", claims.UserID))
		next(w, r.WithContext(ctx), params)
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(AdminCookie); err == nil {
		return cookie.Value
	}
	return ""
}
