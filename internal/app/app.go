// Package app wires the gateway's dependencies together and manages
// their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelgate/config"
	"modelgate/internal/activity"
	"modelgate/internal/cache"
	"modelgate/internal/catalog"
	"modelgate/internal/core"
	"modelgate/internal/failover"
	"modelgate/internal/httpclient"
	"modelgate/internal/keystore"
	"modelgate/internal/observability"
	"modelgate/internal/providers"
	"modelgate/internal/providers/gemini"
	"modelgate/internal/providers/gigachat"
	"modelgate/internal/providers/grok"
	"modelgate/internal/providers/sonar"
	"modelgate/internal/resolver"
	"modelgate/internal/router"
	"modelgate/internal/server"
	"modelgate/internal/storage"
)

// App holds every initialized component. The caller must call Shutdown
// to release resources.
type App struct {
	Config   *config.Config
	Server   *server.Server
	Keystore keystore.Store

	store      storage.Storage
	tokenCache cache.TokenCache
	activity   *activity.Logger
	logger     *slog.Logger

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates an App with all dependencies initialized.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	// Shared persistence for credentials and the activity log.
	st, err := storage.New(ctx, storage.Config{
		Type:   cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{Path: cfg.Storage.SQLitePath},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgresURL,
			MaxConns: cfg.Storage.PostgresConns,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	a.store = st

	cipher, err := keystore.NewCipher(cfg.Auth.MasterKey)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initialize secret cipher: %w", err)
	}
	ks, err := keystore.New(st, cipher)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initialize keystore: %w", err)
	}
	a.Keystore = ks

	var activityLogger core.ActivityLogger = core.NopActivityLogger{}
	if cfg.Activity.Enabled {
		entryStore, err := activity.NewStore(st)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("initialize activity store: %w", err)
		}
		a.activity = activity.NewLogger(entryStore, activity.Config{
			BufferSize:    cfg.Activity.BufferSize,
			FlushInterval: cfg.Activity.FlushInterval,
		})
		activityLogger = a.activity
	}

	// OAuth token cache: Redis when configured, in-process otherwise.
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{URL: cfg.Cache.RedisURL})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("initialize redis token cache: %w", err)
		}
		a.tokenCache = rc
		logger.Info("token cache backend", "type", "redis")
	} else {
		a.tokenCache = cache.NewLocalCache()
		logger.Info("token cache backend", "type", "local")
	}

	registry, err := buildRegistry(cfg, a.tokenCache)
	if err != nil {
		a.close()
		return nil, err
	}

	cat := catalog.New()
	if cfg.ModelCatalog != "" {
		cat, err = catalog.Load(cfg.ModelCatalog)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("load model catalog: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.New(reg)

	fc := failover.New(ks, activityLogger, metrics, logger)
	rt := router.New(registry, fc, cat, metrics, logger)

	a.Server = server.New(rt, &server.Config{
		MasterKey:      cfg.Auth.MasterKey,
		BodyLimit:      cfg.Server.BodyLimit,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	return a, nil
}

// buildRegistry constructs the four adapters over a shared HTTP client,
// applying any endpoint overrides from the configuration.
func buildRegistry(cfg *config.Config, tokens cache.TokenCache) (*providers.Registry, error) {
	client := httpclient.NewDefault()

	gm := gemini.New(client)
	if cfg.Providers.GeminiBaseURL != "" {
		gm.SetBaseURL(cfg.Providers.GeminiBaseURL)
	}
	gr := grok.New(client)
	if cfg.Providers.GrokBaseURL != "" {
		gr.SetBaseURL(cfg.Providers.GrokBaseURL)
	}
	sn := sonar.New(client)
	if cfg.Providers.SonarBaseURL != "" {
		sn.SetBaseURL(cfg.Providers.SonarBaseURL)
	}
	gc := gigachat.New(client, tokens)
	if cfg.Providers.GigaChatBaseURL != "" {
		gc.SetBaseURL(cfg.Providers.GigaChatBaseURL)
	}
	if cfg.Providers.GigaChatAuthURL != "" {
		gc.SetAuthURL(cfg.Providers.GigaChatAuthURL)
	}
	gc.SetScope(cfg.Providers.GigaChatScope)

	registry := providers.NewRegistry()
	registry.Register(resolver.ProviderGoogle, gm)
	registry.Register(resolver.ProviderXAI, gr)
	registry.Register(resolver.ProviderPerplexity, sn)
	registry.Register(resolver.ProviderGigaChat, gc)
	return registry, nil
}

// Run starts the HTTP server and blocks until it stops.
func (a *App) Run() error {
	addr := ":" + a.Config.Server.Port
	a.logger.Info("starting server", "address", addr)
	if err := a.Server.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server and releases resources. Safe to call once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	defer a.shutdownMu.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	var firstErr error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	a.close()
	return firstErr
}

// close releases non-server resources in reverse construction order.
func (a *App) close() {
	if a.activity != nil {
		if err := a.activity.Close(); err != nil {
			a.logger.Error("activity logger close failed", "error", err)
		}
		a.activity = nil
	}
	if a.tokenCache != nil {
		if err := a.tokenCache.Close(); err != nil {
			a.logger.Error("token cache close failed", "error", err)
		}
		a.tokenCache = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("storage close failed", "error", err)
		}
		a.store = nil
	}
}
