package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tipsterhq/tipster-web/config"
	"github.com/tipsterhq/tipster-web/internal/adapters/apiclient"
	"github.com/tipsterhq/tipster-web/internal/adapters/navigator"
	"github.com/tipsterhq/tipster-web/internal/core"
	"github.com/tipsterhq/tipster-web/internal/data"
	httpx "github.com/tipsterhq/tipster-web/internal/http"
	"github.com/tipsterhq/tipster-web/internal/service"
)

// AppDeps contains the inputs NewApp needs. Redis is optional.
type AppDeps struct {
	Config config.AppConfig
	Redis  redis.UniversalClient
	Clock  data.TimeProvider
	Logger *slog.Logger
}

// App is the fully wired host process.
type App struct {
	Config     config.AppConfig
	BrowsingID string
	Logger     *slog.Logger

	Observability *Observability
	Stores        Stores
	Provider      IdentityProvider
	Navigator     *navigator.Navigator
	Cache         *core.QueryCache
	Session       *service.SessionManager
	Auth          *service.AuthService
	API           *apiclient.Client
	Handler       http.Handler
}

// NewApp wires every component. Nothing runs until Run.
func NewApp(deps AppDeps) (*App, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}

	browsingID := cfg.Session.BrowsingID
	if browsingID == "" {
		browsingID = uuid.NewString()
		logger.Info("no browsing session id configured; generated one", "browsing_id", browsingID)
	}

	app := &App{
		Config:     cfg,
		BrowsingID: browsingID,
		Logger:     logger,
	}
	app.Observability = BuildObservability(logger, cfg.Observability)

	stores, err := BuildStores(StoreDeps{
		Redis:         deps.Redis,
		KeyPrefix:     cfg.Redis.KeyPrefix,
		BrowsingID:    browsingID,
		CredentialKey: cfg.Redis.CredentialKey,
		Session:       cfg.Session,
		Clock:         clock,
	})
	if err != nil {
		return nil, errors.Join(err, app.Observability.Close())
	}
	app.Stores = stores

	prov, err := BuildIdentityProvider(IdentityDeps{
		Auth:        cfg.Auth,
		Credentials: stores.Credentials,
		Clock:       clock,
		Logger:      logger,
	})
	if err != nil {
		return nil, errors.Join(err, app.Observability.Close())
	}
	app.Provider = prov

	app.Navigator = navigator.New(navigator.Options{Logger: logger})
	app.Cache = core.NewQueryCache(core.QueryCacheOptions{
		Cache: buildCacheRepo(deps.Redis, clock),
		Config: core.QueryCacheConfig{
			Prefix: QueryCachePrefix(cfg.Redis.KeyPrefix, browsingID),
			TTL:    cfg.Cache.TTL,
		},
		Logger: logger,
	})

	session, err := service.NewSessionManager(service.SessionManagerOptions{
		Provider:  prov,
		Markers:   stores.Markers,
		Navigator: app.Navigator,
		Cache:     app.Cache,
		Clock:     clock,
		Config: service.SessionConfig{
			InitTimeout:       cfg.Session.InitTimeout,
			ValidateInterval:  cfg.Session.ValidateInterval,
			SuppressionWindow: cfg.Session.SuppressionWindow,
			SignOutTimeout:    cfg.Session.SignOutTimeout,
			LoginPath:         cfg.Session.LoginPath,
			ReturnToParam:     cfg.Session.ReturnToParam,
		},
		Metrics: app.Observability.Sink,
		Logger:  logger,
	})
	if err != nil {
		prov.Close()
		return nil, errors.Join(fmt.Errorf("create session manager: %w", err), app.Observability.Close())
	}
	app.Session = session
	app.Navigator.OnPageLoad(session.BeginPageLoad)

	app.Auth = service.NewAuthService(service.AuthServiceOptions{
		Login:    prov,
		Identity: prov,
	})

	api, err := apiclient.NewClient(apiclient.Config{
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout,
		Tokens:   session,
		Ready:    session,
		Failures: session,
		Cache:    app.Cache,
		Logger:   logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create api client: %w", err), app.Close())
	}
	app.API = api

	app.Handler = BuildHTTPHandler(HTTPHandlerConfig{
		Services: httpx.RouterServices{
			Auth:          app.Auth,
			Session:       session,
			Pages:         app.Navigator,
			API:           api,
			Metrics:       app.Observability.Handler,
			LoginPath:     cfg.Session.LoginPath,
			ReturnToParam: cfg.Session.ReturnToParam,
			CookieDomain:  cfg.HTTP.CookieDomain,
			SecureCookies: cfg.HTTP.SecureCookies(),
			Logger:        logger,
		},
		Metrics: app.Observability.Sink,
		Logger:  logger,
	})
	return app, nil
}

// QueryCachePrefix is the key prefix API responses for one browsing session live under.
func QueryCachePrefix(keyPrefix, browsingID string) string {
	return keyPrefix + "query:" + browsingID + ":"
}

//nolint:ireturn // Redis or in-memory depending on configuration.
func buildCacheRepo(client redis.UniversalClient, clock data.TimeProvider) core.CacheRepository {
	if client == nil {
		return data.NewMemoryCacheRepo(clock)
	}
	return data.NewRedisCacheRepo(client)
}

// Run starts the session handshake and serves HTTP on the configured address until ctx
// is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addrOrDefault(a.Config.HTTP.Addr))
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Config.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	// The handshake belongs to the first page: a full navigation aborts it.
	a.Session.Start(a.Navigator.Context())

	g, gctx := errgroup.WithContext(ctx)
	server := newServer(a.Handler, ln.Addr().String())
	g.Go(func() error {
		return serveHTTP(gctx, server, ln, a.Config.HTTP, a.Logger)
	})
	g.Go(func() error {
		select {
		case <-a.Session.Ready():
			a.Logger.InfoContext(gctx, "session state resolved", "authenticated", hasToken(a.Session))
		case <-gctx.Done():
		}
		return nil
	})
	return g.Wait()
}

// Close stops background work and releases resources. It is safe to call once Run
// has returned.
func (a *App) Close() error {
	if a.Session != nil {
		a.Session.Close()
	}
	if a.Provider != nil {
		a.Provider.Close()
	}
	if a.Navigator != nil {
		a.Navigator.Close()
	}
	return a.Observability.Close()
}

func hasToken(m *service.SessionManager) bool {
	_, ok := m.Token()
	return ok
}

func addrOrDefault(addr string) string {
	if addr == "" {
		return ":8080"
	}
	return addr
}
