package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bounceparty/api/internal/platform/httpx"
)

// RouteRegistrar registers one API surface on its sub-router.
type RouteRegistrar func(r chi.Router)

type middlewareFunc = func(http.Handler) http.Handler

// surface is a group mounted under the API prefix.
type surface struct {
	path        string
	registrar   RouteRegistrar
	middlewares []middlewareFunc
}

type routerConfig struct {
	basePath    string
	timeout     time.Duration
	middlewares []middlewareFunc
	health      *HealthHandlers
	surfaces    map[string]*surface
}

// Option customises NewRouter.
type Option func(*routerConfig)

// Surfaces in mount order. Unconfigured ones answer 501.
var surfaceOrder = []string{"quotes", "cart", "orders", "portal", "admin", "webhooks"}

// NewRouter mounts /healthz, /readyz and every surface under /api/v1.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: "/api/v1",
		timeout:  60 * time.Second,
		surfaces: make(map[string]*surface, len(surfaceOrder)),
	}
	for _, name := range surfaceOrder {
		cfg.surfaces[name] = &surface{path: "/" + name}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, name := range surfaceOrder {
			s := cfg.surfaces[name]
			api.Route(s.path, func(group chi.Router) {
				for _, mw := range s.middlewares {
					if mw != nil {
						group.Use(mw)
					}
				}
				if s.registrar == nil {
					notImplemented(group, name)
					return
				}
				s.registrar(group)
			})
		}
	})
	return r
}

// WithMiddlewares appends global middleware, run after request ID, real IP and timeout.
func WithMiddlewares(mw ...middlewareFunc) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// WithRequestTimeout replaces the 60s per-request deadline. Payment waits must fit inside it.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func WithQuoteRoutes(reg RouteRegistrar) Option  { return withRoutes("quotes", reg) }
func WithCartRoutes(reg RouteRegistrar) Option   { return withRoutes("cart", reg) }
func WithOrderRoutes(reg RouteRegistrar) Option  { return withRoutes("orders", reg) }
func WithPortalRoutes(reg RouteRegistrar) Option { return withRoutes("portal", reg) }
func WithAdminRoutes(reg RouteRegistrar) Option  { return withRoutes("admin", reg) }

// WithWebhookRoutes mounts provider callbacks. They authenticate by signature, not by user.
func WithWebhookRoutes(reg RouteRegistrar) Option { return withRoutes("webhooks", reg) }

// WithAdminMiddlewares guards the whole /admin surface, typically with staff authentication.
func WithAdminMiddlewares(mw ...middlewareFunc) Option { return withGroupMiddlewares("admin", mw) }

func WithWebhookMiddlewares(mw ...middlewareFunc) Option {
	return withGroupMiddlewares("webhooks", mw)
}

func withRoutes(name string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.surfaces[name].registrar = reg }
}

func withGroupMiddlewares(name string, mw []middlewareFunc) Option {
	return func(cfg *routerConfig) {
		s := cfg.surfaces[name]
		s.middlewares = append(s.middlewares, mw...)
	}
}

func notImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes not implemented", http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
