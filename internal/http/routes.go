package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices contains all services needed by the router.
type RouterServices struct {
	Auth    AuthServiceInterface // Optional; auth routes are skipped when nil
	Session SessionView
	Pages   PageNavigator // Optional
	API     APIClient     // Optional; /api routes are skipped when nil
	// Metrics serves /metrics when set.
	Metrics http.Handler

	LoginPath     string
	ReturnToParam string
	CookieDomain  string
	SecureCookies bool
	Logger        *slog.Logger
}

// NewRouter creates and configures the local HTTP surface.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var ready Readiness
	if services.Session != nil {
		ready = services.Session
	}
	mux.Handle("GET /readyz", readyHandler(ready))
	mux.Handle("HEAD /readyz", readyHandler(ready))

	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	if services.Auth != nil {
		registerAuthRoutes(mux, &AuthHandlers{
			Svc:           services.Auth,
			Session:       services.Session,
			Pages:         services.Pages,
			LoginPath:     services.LoginPath,
			ReturnToParam: services.ReturnToParam,
			CookieDomain:  services.CookieDomain,
			SecureCookies: services.SecureCookies,
			Logger:        services.Logger,
		})
	}

	if services.API != nil {
		registerAPIRoutes(mux, &APIHandlers{Client: services.API, Logger: services.Logger})
	}

	return mux
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET "+h.loginPath(), h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("POST /page", h.Navigate)
}

func registerAPIRoutes(mux *http.ServeMux, h *APIHandlers) {
	mux.HandleFunc("GET /api/{path...}", h.Get)
	mux.HandleFunc("POST /api/{path...}", h.Post)
}
