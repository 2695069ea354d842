package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connect-kitchen/internal/auth"
	"connect-kitchen/internal/config"
	"connect-kitchen/internal/database/migrations"
	"connect-kitchen/internal/kafka"
	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/menu"
	"connect-kitchen/internal/notification"
	"connect-kitchen/internal/order"
	orderdb "connect-kitchen/internal/order/db"
	"connect-kitchen/internal/order/order_api"
	"connect-kitchen/internal/realtime"
	"connect-kitchen/internal/sequence"
	"connect-kitchen/internal/sse"
	"connect-kitchen/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

// connectRedis returns nil when Redis is unreachable and nothing requires it.
func connectRedis(ctx context.Context, cfg config.Config, log *logger.Logger) *redis.Client {
	required := cfg.Redis.RelayEnabled || cfg.Orders.SequenceBackend == "redis"

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		if required {
			log.Fatal("REDIS", fmt.Sprintf("Redis connection error at %s: %v", cfg.Redis.Addr, err))
		}
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, running without menu cache: %v", cfg.Redis.Addr, err))
		return nil
	}

	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return redisClient
}

func buildVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	var chain auth.Chain
	if cfg.JWTSecret != "" {
		chain = append(chain, auth.NewHMACVerifier(cfg.JWTSecret))
		log.Info("AUTH", "Shared secret token verification enabled")
	}
	if cfg.OIDCIssuer != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.RoleClaim)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("Failed to set up OIDC verification: %v", err))
		}
		chain = append(chain, oidcVerifier)
		log.Info("AUTH", fmt.Sprintf("OIDC token verification enabled for %s", cfg.OIDCIssuer))
	}
	if len(chain) == 0 {
		log.Warn("AUTH", "No JWT_SECRET or OIDC_ISSUER configured, only guests can connect")
	}
	return chain
}

func newRouter(cfg config.Config, log *logger.Logger, hub *realtime.Hub, api *order_api.Handler, stream http.Handler, socket http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(order_api.RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// --- Public Routes ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", map[string]interface{}{
			"status":   "UP",
			"sessions": hub.SessionCount(),
		}))
	})
	r.Handle("/socket", socket)

	api.RegisterRoutes(r, stream)
	return r
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger(cfg.Log.Dir, cfg.Log.Level)
	defer log.Close()

	log.Info("APP", "Starting kitchen order service")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		opts := migrations.DefaultOptions()
		opts.MigrationsDir = cfg.Database.MigrationsDir
		opts.SeedData = cfg.Database.SeedData
		runner := migrations.NewRunner(cfg.Database.DSN, opts, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
		}
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", err.Error())
		}
	}

	redisClient := connectRedis(ctx, *cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	store := &orderdb.DB{Bun: bunDB}

	var counter sequence.CounterStore = store
	if cfg.Orders.SequenceBackend == "redis" {
		counter = sequence.NewRedisCounter(redisClient)
	}
	log.Info("APP", fmt.Sprintf("Order numbers from the %s counter with prefix %s", cfg.Orders.SequenceBackend, cfg.Orders.NumberPrefix))

	var cache menu.Cache
	if redisClient != nil {
		cache = menu.NewRedisCache(redisClient, cfg.Redis.MenuCacheTTL)
	}
	catalog := menu.NewCatalog(store, cache, log)

	orderService := order.NewOrderService(store, sequence.NewGenerator(cfg.Orders.NumberPrefix, counter), catalog, log, cfg.Orders.StoreTimeout)

	hub := realtime.NewHub(orderService, cfg.Orders.SessionBuffer, log)
	orderService.Subscribe(realtime.NewBroadcaster(hub))
	orderService.Subscribe(notification.NewDispatcher(hub, log))

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Redis.RelayEnabled {
		relay := realtime.NewRedisRelay(redisClient, cfg.Redis.RelayChannel, log)
		hub.UseRelay(relay)
		g.Go(func() error {
			return relay.Run(gctx, hub.DeliverRelayed)
		})
	}

	if cfg.Kafka.Enabled {
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopicsExist(topicCtx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		cancel()

		producer := kafka.NewProducer(cfg.Kafka.Brokers, 1024, log)
		defer producer.Close()
		orderService.Subscribe(kafka.NewOrderEventPublisher(producer, cfg.Kafka.Topics, log))
		log.Info("KAFKA", fmt.Sprintf("Publishing order events to %v", cfg.Kafka.Brokers))
	}

	authenticator := auth.NewAuthenticator(buildVerifier(ctx, cfg.Auth, log), log)

	socket := realtime.NewWSHandler(hub, realtime.NewDispatcher(hub, orderService, 2*cfg.Orders.StoreTimeout, log), authenticator, cfg.Server.AllowedOrigins, log)
	stream := sse.NewStreamHandler(log, hub, authenticator)
	api := order_api.NewHandler(orderService, authenticator, log)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      newRouter(*cfg, log, hub, api, stream, socket),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("Kitchen order service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

		// Streams and sockets end with their sessions; Shutdown does not
		// wait for hijacked connections.
		hub.Close()

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
		}
		socket.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("APP", err.Error())
		return
	}
	log.Info("APP", "Kitchen order service shutdown complete")
}
