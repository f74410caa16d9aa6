package app

import (
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	httpAdapter "freightgate/internal/adapter/http"
	"freightgate/internal/backend"
	"freightgate/internal/circuitbreaker"
	"freightgate/internal/config"
	"freightgate/internal/gateway"
	"freightgate/internal/health"
	"freightgate/internal/management"
	"freightgate/internal/metrics"
	"freightgate/internal/middleware"
	"freightgate/internal/middleware/auth"
	"freightgate/internal/middleware/monitoring"
	"freightgate/internal/middleware/ratelimit"
	"freightgate/internal/middleware/transform"
	"freightgate/internal/middleware/validate"
	"freightgate/internal/registry"
	"freightgate/internal/router"
	"freightgate/internal/storage"
	"freightgate/internal/storage/memory"
	redisstore "freightgate/internal/storage/redis"
	"freightgate/internal/storage/sqlite"
	"freightgate/internal/telemetry"
)

// Builder builds the gateway application
type Builder struct {
	config *config.Config
	logger *slog.Logger
}

// NewBuilder creates a new application builder
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	return &Builder{
		config: cfg,
		logger: logger,
	}
}

// Build constructs the gateway server
func (b *Builder) Build() (*Server, error) {
	gw := &b.config.Gateway

	tel, err := telemetry.New(gw.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry: %w", err)
	}

	gatewayMetrics := metrics.New()

	kv, err := b.buildKVStore()
	if err != nil {
		return nil, fmt.Errorf("creating kv store: %w", err)
	}

	routeDB, err := sqlite.New(gw.Storage.SQLite.DSN)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("opening route database: %w", err)
	}

	serviceRegistry := registry.NewStatic(gw.Registry.Services, b.logger)

	routes := router.NewTable(kv, routeDB, b.logger)

	serviceNames := make([]string, 0, len(gw.Registry.Services))
	for name := range gw.Registry.Services {
		serviceNames = append(serviceNames, name)
	}
	breaker := circuitbreaker.New(kv, circuitbreaker.Config{
		FailureThreshold: gw.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(gw.CircuitBreaker.RecoveryTimeout) * time.Second,
		HalfOpenMaxCalls: gw.CircuitBreaker.HalfOpenMaxCalls,
		SuccessThreshold: gw.CircuitBreaker.SuccessThreshold,
		TTL:              time.Duration(gw.CircuitBreaker.TTL) * time.Second,
		Services:         serviceNames,
	}, b.logger)
	breaker.OnStateChange(func(service, state string) {
		gatewayMetrics.BreakerTransitions.WithLabelValues(service, state).Inc()
	})

	chain := middleware.NewChain(b.logger,
		ratelimit.New(kv, ratelimit.Config{
			Requests: gw.Middleware.RateLimit.Requests,
			Window:   time.Duration(gw.Middleware.RateLimit.Window) * time.Second,
		}, gatewayMetrics, b.logger),
		auth.New(auth.Config{
			JWTSecret: gw.Middleware.Auth.JWTSecret,
		}, serviceRegistry, b.logger),
		validate.New(validate.Config{
			MaxBodyBytes: gw.Middleware.Validation.MaxBodyBytes,
		}, b.logger),
		transform.New(b.logger),
		monitoring.New(gatewayMetrics, b.logger),
	)

	gatewayService := gateway.New(
		routes,
		breaker,
		chain,
		serviceRegistry,
		backend.NewHTTPConnector(),
		gatewayMetrics,
		tel.Tracer(),
		b.logger,
	)

	adapter := httpAdapter.New(httpAdapter.Config{
		Host:           gw.HTTP.Host,
		Port:           gw.HTTP.Port,
		ReadTimeout:    gw.HTTP.ReadTimeoutDuration(),
		WriteTimeout:   gw.HTTP.WriteTimeoutDuration(),
		MaxRequestSize: gw.HTTP.MaxRequestSize,
		TLS:            gw.HTTP.TLS,
	}, gatewayService, tel, gatewayMetrics, b.logger)

	mgmt := management.NewAPI(gw.Management, breaker, routes, b.logger)

	var monitor *health.Monitor
	if gw.Health.Enabled {
		monitor = health.NewMonitor(gw.Health, routeDB, serviceRegistry, b.logger)
	}

	return &Server{
		config:     b.config,
		adapter:    adapter,
		management: mgmt,
		monitor:    monitor,
		registry:   serviceRegistry,
		telemetry:  tel,
		kv:         kv,
		routeDB:    routeDB,
		logger:     b.logger,
	}, nil
}

// buildKVStore creates the shared KV store per configuration
func (b *Builder) buildKVStore() (storage.KVStore, error) {
	st := &b.config.Gateway.Storage

	switch st.Backend {
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     st.Redis.Addr,
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
		})
		b.logger.Info("using redis kv store", "addr", st.Redis.Addr)
		return redisstore.NewStore(redisstore.NewClientAdapter(client)), nil

	case "memory", "":
		b.logger.Info("using in-memory kv store")
		return memory.NewStore(storage.DefaultConfig()), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", st.Backend)
	}
}
