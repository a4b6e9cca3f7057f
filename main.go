package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/apperrors"
	"storefront/config"
	"storefront/controllers"
	"storefront/database"
	"storefront/events"
	"storefront/logger"
	"storefront/middleware"
	aws_pkg "storefront/pkg/aws"
	"storefront/repository"
	"storefront/routes"
	"storefront/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on ENVIRONMENT, so report with a bootstrap logger.
		logger.Initialize(os.Getenv("ENVIRONMENT")).Fatal("Failed to load configuration", zap.Error(err))
	}

	log := logger.Initialize(cfg.Environment)
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- 1. Infrastructure ---

	if err := database.ConnectWithConfig(cfg.MongoURI, cfg.MongoDB); err != nil {
		log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	indexCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureIndexes(indexCtx, database.DB); err != nil {
		log.Fatal("Failed to create indexes", zap.Error(err))
	}
	cancel()

	rdb, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-memory state", zap.Error(err))
		rdb = nil
	}

	publisher := newPublisher(cfg, log)
	metricsClient := newMetricsClient(cfg, log)

	// --- 2. Dependency Injection ---

	var (
		guard        services.LoginGuard
		denylist     services.TokenDenylist
		cache        *controllers.CacheManager
		productCache services.ProductCache
		redisPing    controllers.PingFunc
	)
	if rdb != nil {
		guard = services.NewRedisLoginGuard(rdb, cfg.LockoutThreshold, cfg.LockoutDuration)
		denylist = services.NewRedisDenylist(rdb)
		cache = controllers.NewCacheManager(rdb, log)
		productCache = cache
		redisPing = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Warn("Redis not available: login lockout and logout state are per-instance")
		guard = services.NewMemoryLoginGuard(cfg.LockoutThreshold, cfg.LockoutDuration)
		denylist = services.NewMemoryDenylist()
	}

	userRepo := repository.NewUserRepository(database.DB)
	productRepo := repository.NewProductRepository(database.DB)
	cartRepo := repository.NewCartRepository(database.DB)
	orderRepo := repository.NewOrderRepository(database.DB)

	tokenService := services.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	authService := services.NewAuthService(userRepo, tokenService, guard, denylist, cfg.LockoutThreshold, log)
	productService := services.NewProductService(productRepo, log)
	cartService := services.NewCartService(cartRepo, productRepo, log)
	checkoutService := services.NewCheckoutService(
		cartRepo, productRepo, orderRepo,
		services.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
		publisher,
		productCache,
		metricsClient,
		services.CheckoutConfig{Currency: cfg.Currency, FrontendURL: cfg.FrontendURL, SessionTTL: cfg.SessionTTL},
		log,
	)

	ctl := routes.Controllers{
		Auth:     controllers.NewAuthController(authService),
		Products: controllers.NewProductController(productService, cache, log),
		Cart:     controllers.NewCartController(cartService),
		Payments: controllers.NewPaymentController(checkoutService, log),
		Health:   controllers.NewHealthController(cfg.Environment, database.Ping, redisPing, log),
	}

	// --- 3. Router ---

	generalLimiter := middleware.NewRateLimiter(100, 50, 10*time.Minute)
	authLimiter := middleware.NewRateLimiter(20, 10, 10*time.Minute)
	defer generalLimiter.Stop()
	defer authLimiter.Stop()

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.Metrics(metricsClient, "storefront"),
		apperrors.Recovery(cfg.Environment),
		apperrors.ErrorMiddleware(cfg.Environment),
		cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Confirm-Delete", "X-Confirm-Clear"},
			ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.SecurityHeaders(),
		middleware.RateLimit(generalLimiter),
		middleware.BodyLimit(cfg.MaxBodyBytes),
		middleware.Timeout(30*time.Second),
	)

	routes.RegisterRoutes(r, ctl, routes.Guards{
		Auth:        middleware.Auth(tokenService, denylist),
		AuthLimiter: authLimiter,
	})

	// --- 4. Graceful Shutdown ---

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Storefront starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down storefront...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		log.Error("Failed to close event publisher", zap.Error(err))
	}
	closeRedis(rdb, log)
	if err := database.Close(); err != nil {
		log.Error("Failed to close MongoDB", zap.Error(err))
	}

	log.Info("Storefront stopped gracefully")
}

func newPublisher(cfg *config.Config, log *zap.Logger) events.Publisher {
	switch cfg.EventsBackend {
	case "kafka":
		log.Info("Publishing order events to Kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaOrderTopic))
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
	case "sns":
		if cfg.OrderEventsTopicARN == "" {
			log.Warn("ORDER_EVENTS_TOPIC_ARN not set, order events disabled")
			return events.NoopPublisher{}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			log.Warn("AWS config unavailable, order events disabled", zap.Error(err))
			return events.NoopPublisher{}
		}
		log.Info("Publishing order events to SNS", zap.String("topic_arn", cfg.OrderEventsTopicARN))
		return events.NewSNSPublisher(aws_pkg.NewSNSClient(awsCfg), cfg.OrderEventsTopicARN)
	default:
		return events.NoopPublisher{}
	}
}

// newMetricsClient returns nil unless CLOUDWATCH_ENABLED=true and AWS is
// reachable; a nil client records nothing.
func newMetricsClient(cfg *config.Config, log *zap.Logger) *aws_pkg.MetricsClient {
	if !cfg.MetricsEnabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		log.Warn("CloudWatch metrics client init failed (non-fatal)", zap.Error(err))
		return nil
	}
	log.Info("Publishing metrics to CloudWatch", zap.String("namespace", cfg.MetricsNamespace))
	return aws_pkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, true)
}

func closeRedis(rdb *redis.Client, log *zap.Logger) {
	if rdb == nil {
		return
	}
	if err := rdb.Close(); err != nil {
		log.Error("Failed to close Redis", zap.Error(err))
	}
}
