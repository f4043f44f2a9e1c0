package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evcentral/internal/cache"
	"evcentral/internal/clients"
	"evcentral/internal/config"
	"evcentral/internal/db"
	"evcentral/internal/handlers"
	httpserver "evcentral/internal/http"
	"evcentral/internal/metrics"
	"evcentral/internal/ocpp"
	"evcentral/internal/registry"
	"evcentral/internal/repository"
	"evcentral/internal/service"
	"evcentral/internal/ws"
	libredis "evcentral/libs/redis"
)

// store is the persistence surface the services and the processor need.
type store interface {
	service.ChargerStore
	service.TransactionStore
	service.TagStore
	ocpp.MessageLog
}

// App wires all dependencies for the central system.
type App struct {
	server   *httpserver.Server
	registry *registry.Registry
	txs      *service.Transactions
	pool     *pgxpool.Pool
	redis    *redis.Client
	logger   *zap.Logger
}

// New builds the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	var st store
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		st = repository.NewMemoryStore()
	default:
		pool, err := db.NewPostgres(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		st = repository.NewStore(pool)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collectorsSet, err := metrics.New(promRegistry)
	if err != nil {
		a.Close()
		return nil, err
	}

	// cache and events stay nil interfaces when not configured
	var activeCache service.ActiveCache
	if cfg.Redis.Addr != "" {
		client, err := libredis.NewClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		activeCache = cache.NewActiveTransactions(client, cfg.RedisTTL())
	}
	var events service.EventPublisher
	if cfg.Events.URL != "" {
		events = clients.NewEventsClient(cfg.Events.URL, cfg.EventsTimeout(), logger)
	}

	a.registry = registry.New(collectorsSet, logger)
	chargers := service.NewChargers(st, logger)
	txs := service.NewTransactions(st, st, activeCache, events, logger)
	a.txs = txs
	// the remote start tag must authorize when the charger sends StartTransaction
	if err := txs.ProvisionTags(ctx, append([]string{cfg.Remote.DefaultIDTag}, cfg.Remote.Tags...)...); err != nil {
		a.Close()
		return nil, fmt.Errorf("provision tags: %w", err)
	}
	dispatcher := service.NewDispatcher(a.registry, txs, cfg.CallTimeout(), collectorsSet, logger)
	central := service.NewCentral(chargers, txs, dispatcher, a.registry, cfg.Remote.DefaultIDTag, cfg.Remote.DefaultConnector)

	router := ocpp.NewRouter(handlers.Routes(handlers.Deps{
		Chargers:     chargers,
		Transactions: txs,
		BootInterval: cfg.BootInterval(),
		Logger:       logger,
	}))
	processor := ocpp.NewProcessor(router, st, collectorsSet, logger)

	wsServer := ws.NewServer(a.registry, processor, chargers, collectorsSet, ws.Timings{
		WriteTimeout: cfg.WriteTimeout(),
		PingInterval: cfg.PingInterval(),
		ReadTimeout:  cfg.ReadTimeout(),
	}, cfg.OCPP.RequireSubprotocol, logger)

	handler := httpserver.NewRouter(httpserver.RouterDeps{
		API:       httpserver.NewAPI(central, logger),
		WebSocket: wsServer.HandleWS,
		Metrics:   promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{Registry: promRegistry}),
		JWTSecret: cfg.Auth.JWTSecret,
		Logger:    logger,
	})
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("api authentication disabled, no jwt secret configured")
	}
	a.server = httpserver.NewServer(cfg.HTTPAddress(), handler, logger)

	logger.Info("central system initialised",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("redis_cache", activeCache != nil),
		zap.Bool("events", events != nil),
		zap.Strings("actions", router.Actions()),
	)
	return a, nil
}

// Handler returns the HTTP handler serving the API and the OCPP endpoint.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves until ctx is cancelled. Open charger sessions are closed on the way out
// and queued transaction events are delivered.
func (a *App) Run(ctx context.Context) error {
	err := a.server.Run(ctx)
	a.registry.CloseAll(ocpp.ErrConnectionClosed)
	a.txs.Flush()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.txs != nil {
		a.txs.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// Migrate creates the database schema.
func Migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Storage.Driver != config.StoragePostgres {
		return fmt.Errorf("migrate: storage driver %q has no schema", cfg.Storage.Driver)
	}
	pool, err := db.NewPostgres(ctx, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("database schema applied")
	return nil
}
