// Package gateway exposes the linking service over HTTP.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/poly-workshop/authlink/internal/application/authlink"
	"github.com/poly-workshop/authlink/internal/infrastructure/bootstrap"
	"github.com/rs/cors"
)

const apiPrefix = "/api/"

// LinkService is the application surface the gateway drives.
type LinkService interface {
	StartAuthorization(ctx context.Context, alias string) (authlink.AuthorizationRedirect, error)
	HandleAuthorizationResponse(ctx context.Context, cb authlink.Callback) (authlink.Outcome, error)
	GetStatus(ctx context.Context, alias string) (authlink.ServiceStatus, error)
	ListServices(ctx context.Context) ([]authlink.ServiceStatus, error)
	SaveToken(ctx context.Context, alias string, manual authlink.ManualToken) (authlink.ServiceStatus, error)
	GenerateToken(ctx context.Context, alias string) (authlink.ServiceStatus, error)
	RefreshAccess(ctx context.Context, alias string) (authlink.ServiceStatus, error)
	RevokeAccess(ctx context.Context, alias string) error
	SendSampleRequest(ctx context.Context, alias, path string) (authlink.SampleResponse, error)
}

// Options configures the HTTP surface.
type Options struct {
	// Admin guards every management route. Required unless AdminDisabled is set.
	Admin TokenVerifier
	// AdminDisabled serves management routes without authentication.
	AdminDisabled  bool
	AllowedOrigins []string
	// StaticDir optionally serves the admin frontend with index.html fallback.
	StaticDir string
}

// Gateway wraps the grpc-gateway mux and serves the linking routes.
type Gateway struct {
	mux       *runtime.ServeMux
	svc       LinkService
	auth      *adminAuth
	staticDir string
	origins   []string
}

type route struct {
	method  string
	pattern string
	admin   bool
	handler runtime.HandlerFunc
}

// New registers every route on a fresh mux.
func New(svc LinkService, opts Options) (*Gateway, error) {
	if svc == nil {
		return nil, fmt.Errorf("link service is required")
	}
	g := &Gateway{
		mux: runtime.NewServeMux(
			runtime.WithRoutingErrorHandler(routingError),
			runtime.WithDisablePathLengthFallback(),
		),
		svc:       svc,
		auth:      newAdminAuth(opts.Admin, opts.AdminDisabled),
		staticDir: opts.StaticDir,
		origins:   opts.AllowedOrigins,
	}

	routes := []route{
		{http.MethodGet, "/api/oauth/callback", false, g.callback},
		{http.MethodGet, "/api/services", true, g.listServices},
		{http.MethodGet, "/api/services/{alias}", true, g.getStatus},
		{http.MethodGet, "/api/services/{alias}/authorize", true, g.authorize},
		{http.MethodPost, "/api/services/{alias}/token", true, g.saveToken},
		{http.MethodPost, "/api/services/{alias}/generate-token", true, g.generateToken},
		{http.MethodPost, "/api/services/{alias}/refresh", true, g.refresh},
		{http.MethodPost, "/api/services/{alias}/revoke", true, g.revoke},
		{http.MethodGet, "/api/services/{alias}/sample", true, g.sample},
	}
	for _, r := range routes {
		h := r.handler
		if r.admin {
			h = g.auth.wrap(h)
		}
		if err := g.mux.HandlePath(r.method, r.pattern, h); err != nil {
			return nil, fmt.Errorf("failed to register %s %s: %w", r.method, r.pattern, err)
		}
	}
	return g, nil
}

// Handler returns an HTTP handler with CORS support, request ids and
// optional static file serving.
func (g *Gateway) Handler() http.Handler {
	origins := g.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Accept-Language",
			"Content-Language",
			"Content-Type",
			"Authorization",
			bootstrap.RequestIDHeader,
		},
		ExposedHeaders:   []string{bootstrap.RequestIDHeader},
		AllowCredentials: true,
	})

	mux := http.NewServeMux()
	mux.Handle(apiPrefix, g.mux)

	if g.staticDir != "" {
		if _, err := os.Stat(g.staticDir); err == nil {
			fileServer := http.FileServer(http.Dir(g.staticDir))
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				path := filepath.Join(g.staticDir, filepath.Clean("/"+r.URL.Path))
				if _, err := os.Stat(path); os.IsNotExist(err) {
					// SPA routing
					http.ServeFile(w, r, filepath.Join(g.staticDir, "index.html"))
					return
				}
				fileServer.ServeHTTP(w, r)
			})
			slog.Info("Static file serving enabled", "directory", g.staticDir)
		} else {
			slog.Warn("Static directory not found, serving API only", "directory", g.staticDir)
		}
	}

	return bootstrap.RequestIDMiddleware(c.Handler(mux))
}

func routingError(
	ctx context.Context,
	_ *runtime.ServeMux,
	_ runtime.Marshaler,
	w http.ResponseWriter,
	_ *http.Request,
	httpStatus int,
) {
	code := "not_found"
	switch httpStatus {
	case http.StatusMethodNotAllowed:
		code = "method_not_allowed"
	case http.StatusBadRequest:
		code = "bad_request"
	}
	writeJSON(ctx, w, httpStatus, errorBody{Error: code, Message: strings.ToLower(http.StatusText(httpStatus))})
}
