package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khushi89012/syook/common/codec"
	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/common/messaging"
	"github.com/khushi89012/syook/common/middleware"
	"github.com/khushi89012/syook/listener/internal/config"
	"github.com/khushi89012/syook/listener/internal/handlers"
	"github.com/khushi89012/syook/listener/internal/metrics"
	"github.com/khushi89012/syook/listener/internal/persist"
	"github.com/khushi89012/syook/listener/internal/publisher"
	"github.com/khushi89012/syook/listener/internal/ratelimit"
	"github.com/khushi89012/syook/listener/internal/repository"
	"github.com/khushi89012/syook/listener/internal/server"
	"github.com/khushi89012/syook/listener/internal/service"
	"github.com/khushi89012/syook/listener/internal/stats"
	"github.com/khushi89012/syook/listener/internal/validator"

	natsclient "github.com/khushi89012/syook/common/messaging/nats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("listener"))
	logging.SetDefault(logger)

	slog.Info("Starting listener",
		slog.Int("tcp_port", cfg.Listener.TCPPort),
		slog.Int("http_port", cfg.Server.Port),
		logging.Backend(cfg.Storage.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	hostname, _ := os.Hostname()
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := codec.NewFromPassphrase(cfg.Crypto.Passphrase)
	if err != nil {
		log.Fatalf("Failed to derive key: %v", err)
	}

	// The store connects in the background; ingestion starts immediately.
	policy := persist.Policy{
		InitialInterval: cfg.Persist.InitialInterval,
		MaxInterval:     cfg.Persist.MaxInterval,
	}
	supervisor := persist.NewSupervisor(storeConnector(cfg, logger.Logger), policy, logger.Logger)
	supervisor.Start(ctx)
	writer := persist.NewWriter(supervisor, policy, cfg.Persist.QueueSize, logger.Logger)

	var broker messaging.Client
	var pub publisher.Publisher = publisher.Noop{}
	if cfg.NATS.Enabled {
		client, err := connectBroker(ctx, cfg, logger.Logger)
		if err != nil {
			slog.Warn("Failed to connect to NATS, events will not be published", logging.Error(err))
		} else {
			broker = client
			pub = publisher.New(client, instanceID, logger.Logger)
			slog.Info("Event publishing enabled",
				slog.String("nats_url", cfg.NATS.URL),
				slog.Bool("jetstream", cfg.NATS.JetStream),
			)
		}
	} else {
		slog.Info("NATS disabled - events will not be published")
	}

	var collector *stats.Collector
	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.Redis.Enabled {
		statsClient, err := stats.NewClient(cfg.Redis.URL, instanceID)
		if err != nil {
			slog.Warn("Failed to initialize stats collector", logging.Error(err))
		} else {
			collector = stats.NewCollector(statsClient, cfg.Redis.StatsFlushInterval, logger.Logger)
			slog.Info("Cluster stats enabled",
				slog.Duration("flush_interval", cfg.Redis.StatsFlushInterval),
				slog.String("instance", instanceID),
			)
		}

		if cfg.RateLimit.Enabled {
			rl, err := ratelimit.NewRedisRateLimiter(cfg.Redis.URL, cfg.RateLimit.Connections, cfg.RateLimit.Window)
			if err != nil {
				slog.Warn("Failed to initialize Redis rate limiter, limiting per instance", logging.Error(err))
			} else {
				limiter = rl
				slog.Info("Connection rate limiting enabled",
					slog.String("scope", ratelimit.ScopeCluster),
					slog.Int("connections", cfg.RateLimit.Connections),
					slog.Duration("window", cfg.RateLimit.Window),
				)
			}
		}
	} else {
		slog.Info("Redis disabled - cluster stats not available")
	}
	if _, noop := limiter.(*ratelimit.NoOpRateLimiter); noop && cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLocalRateLimiter(cfg.RateLimit.Connections, cfg.RateLimit.Window)
		slog.Info("Connection rate limiting enabled",
			slog.String("scope", ratelimit.ScopeInstance),
			slog.Int("connections", cfg.RateLimit.Connections),
			slog.Duration("window", cfg.RateLimit.Window),
		)
	}

	counters := metrics.NewCounters()
	svc := service.NewIngestService(validator.New(c), writer, pub, counters, logger)

	handler := handlers.NewHandler(svc, supervisor, cfg.Listener.TCPPort, logger)
	if collector != nil {
		svc.WithStats(collector)
		handler.WithCluster(collector)
	}
	if broker != nil {
		handler.WithBroker(broker)
	}

	router := server.NewRouter(handler, middleware.CORSConfig{AllowedOrigins: cfg.Server.CORSOrigins}, logger.Logger)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tcpSrv := server.NewTCPServer(server.TCPConfig{
		Addr:          fmt.Sprintf(":%d", cfg.Listener.TCPPort),
		MaxBatchBytes: cfg.Listener.MaxBatchBytes,
		ReadBuffer:    cfg.Listener.ReadBuffer,
		IdleTimeout:   cfg.Listener.IdleTimeout,
	}, svc, limiter, logger)

	go func() {
		slog.Info("HTTP server listening", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	go func() {
		slog.Info("TCP listener accepting", slog.String("addr", fmt.Sprintf(":%d", cfg.Listener.TCPPort)))
		if err := tcpSrv.ListenAndServe(ctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
			log.Fatalf("TCP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := tcpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("TCP connections force-closed", logging.Error(err))
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server forced to shutdown", logging.Error(err))
	}
	if err := writer.Stop(shutdownCtx); err != nil {
		slog.Warn("Retry queue not drained", logging.Error(err))
	}
	if collector != nil {
		collector.Stop()
	}
	if err := pub.Close(); err != nil {
		slog.Warn("Failed to close broker connection", logging.Error(err))
	}
	_ = limiter.Close()
	supervisor.Close()

	final := counters.Snapshot()
	slog.Info("Listener stopped",
		slog.Int64("total_received", final.TotalReceived),
		slog.Int64("total_valid", final.TotalValid),
	)
}

// storeConnector opens the configured backend. It is retried by the supervisor
// until it succeeds.
func storeConnector(cfg *config.Config, logger *slog.Logger) persist.Connector {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return func(ctx context.Context) (repository.Store, error) {
			return repository.NewMemoryStore(), nil
		}

	case config.BackendSQLite:
		return func(ctx context.Context) (repository.Store, error) {
			store, err := repository.NewSQLiteStore(ctx, cfg.Storage.SQLite.Path)
			if err != nil {
				return nil, err
			}
			return store, nil
		}

	case config.BackendOpenSearch:
		return func(ctx context.Context) (repository.Store, error) {
			store, err := repository.NewOpenSearchStore(repository.OpenSearchConfig{
				URL:           cfg.Storage.OpenSearch.URL,
				Username:      cfg.Storage.OpenSearch.Username,
				Password:      cfg.Storage.OpenSearch.Password,
				TLSSkipVerify: cfg.Storage.OpenSearch.TLSSkipVerify,
				Index:         cfg.Storage.OpenSearch.Index,
			})
			if err != nil {
				return nil, err
			}
			if err := store.EnsureIndex(ctx); err != nil {
				return nil, err
			}
			return store, nil
		}

	default:
		return func(ctx context.Context) (repository.Store, error) {
			status, err := repository.Migrate(ctx, cfg.Storage.Postgres.URL)
			if err != nil {
				return nil, err
			}
			logger.Info("Database schema ready",
				slog.Uint64("version", uint64(status.Version)),
				slog.Bool("changed", status.Changed),
			)
			store, err := repository.NewPostgresStore(ctx, cfg.Storage.Postgres.URL)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	}
}

func connectBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (messaging.Client, error) {
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
	natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
	natsCfg.Logger = logger

	if !cfg.NATS.JetStream {
		client, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	js, err := natsclient.NewJetStreamClient(natsCfg)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(streamCtx, natsclient.ReadingsStream); err != nil {
		_ = js.Close()
		return nil, err
	}
	return js, nil
}
