package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/cart/storage"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/health"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/reconcile"
	"github.com/fjod/storefront/internal/records"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthCheckInterval = 15 * time.Second
	gatewayTimeout      = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := records.Open(ctx, cfg.Database.Driver, records.Credentials{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open records store: %w", err)
	}
	defer store.Close()
	log.Info("records store ready", zap.String("driver", cfg.Database.Driver))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Cart.RedisAddr,
		Password: cfg.Cart.RedisPassword,
		DB:       cfg.Cart.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	checker := health.NewChecker(log)
	checker.Register("records", store.Ping)
	checker.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	cartStorage, mongoDB, err := newCartStorage(ctx, cfg.Cart, redisClient, log)
	if err != nil {
		return err
	}
	if mongoDB != nil {
		defer mongoDB.Client().Disconnect(context.Background())
		checker.Register("mongo", func(ctx context.Context) error {
			return mongoDB.Client().Ping(ctx, nil)
		})
	}

	products := catalog.NewReader(catalog.NewRepository(store), log, catalog.DefaultCacheTTL)
	orderRepo := orders.NewRepository(store)

	policy, err := reconcile.ParsePolicy(cfg.ReconcilePolicy)
	if err != nil {
		return err
	}
	reconciler := reconcile.NewReconciler(orderRepo, policy, log)

	var orphans checkout.OrphanReporter
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := reconcile.NewPublisher(cfg.Kafka.ReconcileTopic, cfg.Kafka.Brokers...)
		defer publisher.Close()
		orphans = publisher

		consumer := reconcile.NewConsumer(reconciler, log, cfg.Kafka.ReconcileTopic, cfg.Kafka.Brokers...)
		defer consumer.Close()
		go consumer.Run(ctx)
		log.Info("reconciliation topic wired",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.ReconcileTopic))
	}

	authService, err := auth.NewService(store, auth.NewRedisDenylist(redisClient), auth.Config{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL: cfg.Auth.TokenTTL,
	}, log)
	if err != nil {
		return err
	}

	calc := pricing.NewCalculator(cfg.Pricing)
	workflow := checkout.NewWorkflow(calc, orderRepo, paymentGateway(cfg.Payment, log), orphans, log, checkout.Config{
		Currency: cfg.Payment.Currency,
		Captures: checkout.NewRedisLedger(redisClient, checkout.DefaultCaptureTTL),
	})

	carts := cart.NewManager(cartStorage, log, cart.WithBusyCheck(workflow.InProgress))
	defer carts.Close()

	checker.Check(ctx)
	go checker.Watch(ctx, healthCheckInterval)

	router := h.NewRouter(h.Deps{
		Auth:       authService,
		Carts:      carts,
		Products:   products,
		Orders:     orderRepo,
		Workflow:   workflow,
		Reconciler: reconciler,
		Pricing:    calc,
		Health:     checker.Handler(),
	}, log, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := health.NewGRPCServer(checker)

	errCh := make(chan error, 2)
	go func() {
		log.Info("storefront http listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("health grpc listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		log.Error("server failed, shutting down", zap.Error(runErr))
	}

	checker.Shutdown()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	log.Info("storefront exited")
	return runErr
}

// newCartStorage builds the backend named by CART_BACKEND. The mongo database
// is returned so the caller can ping and disconnect it.
func newCartStorage(ctx context.Context, cfg config.CartConfig, redisClient *redis.Client, log *zap.Logger) (storage.CartStorage, *mongo.Database, error) {
	if cfg.Backend == "redis" {
		return storage.NewRedisStorage(redisClient), nil, nil
	}

	db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	mongoStorage := storage.NewMongoStorage(db)
	if err := mongoStorage.CreateIndexes(ctx); err != nil {
		return nil, nil, fmt.Errorf("create cart indexes: %w", err)
	}
	log.Info("connected to mongo", zap.String("database", cfg.MongoDBName))

	if cfg.Backend == "cached" {
		return storage.NewCachedStorage(mongoStorage, storage.NewRedisStorage(redisClient), log), db, nil
	}
	return mongoStorage, db, nil
}

func paymentGateway(cfg config.PaymentConfig, log *zap.Logger) payment.Gateway {
	switch cfg.Sandbox {
	case "always":
		log.Warn("payments run against the sandbox, every capture is approved")
		return payment.NewSandbox(payment.AlwaysApprove{})
	case "random":
		log.Warn("payments run against the sandbox with random refusals")
		return payment.NewSandbox(payment.RandomDecider{})
	}
	return payment.NewBreaker(payment.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayToken, gatewayTimeout), log)
}
