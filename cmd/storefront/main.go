package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/agrostore/internal/auth"
	"github.com/fjod/agrostore/internal/cart/cache"
	"github.com/fjod/agrostore/internal/cart/poller"
	cartrepo "github.com/fjod/agrostore/internal/cart/repository"
	cartservice "github.com/fjod/agrostore/internal/cart/service"
	"github.com/fjod/agrostore/internal/catalog"
	"github.com/fjod/agrostore/internal/checkout"
	"github.com/fjod/agrostore/internal/config"
	h "github.com/fjod/agrostore/internal/http"
	"github.com/fjod/agrostore/internal/logger"
	"github.com/fjod/agrostore/internal/ops"
	"github.com/fjod/agrostore/internal/orders/publisher"
	ordersrepo "github.com/fjod/agrostore/internal/orders/repository"
	orderservice "github.com/fjod/agrostore/internal/orders/service"
	"github.com/fjod/agrostore/internal/payment"
	"github.com/fjod/agrostore/internal/pricing"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New("storefront", cfg.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()
	zap.ReplaceGlobals(lg)

	if err := run(cfg, lg); err != nil {
		lg.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog (SQLite)
	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		return err
	}
	lg.Info("catalog migrations completed")

	// Carts (MongoDB + Redis)
	mongoDB, err := cartrepo.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoDB.Client().Disconnect(disconnectCtx); err != nil {
			lg.Warn("mongo disconnect failed", zap.Error(err))
		}
	}()
	if err := cartrepo.CreateIndexes(ctx, mongoDB); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	cartSvc := cartservice.NewCartService(
		cartrepo.NewMongoRepository(mongoDB),
		cache.NewRedisCache(redisClient),
		products,
		lg.Named("cart"),
	)

	// Orders (Postgres)
	orders, err := ordersrepo.NewRepository(&cfg.Postgres)
	if err != nil {
		return err
	}
	defer orders.Close()
	if err := orders.RunMigrations(&cfg.Postgres); err != nil {
		return err
	}
	lg.Info("orders migrations completed")
	orderSvc := orderservice.NewOrderService(orders, cfg.Currency, lg.Named("orders"))

	// Payments (Stripe)
	gateway := payment.NewGateway(payment.NewStripeProcessor(cfg.StripeSecretKey), cfg.Currency, cfg.PaymentTimeout, lg.Named("payment"))
	verifier := payment.NewWebhookVerifier(cfg.StripeWebhookSecret)

	carts := checkout.CartsFromService(cartSvc)
	checkoutSvc := checkout.NewService(carts, pricing.NewResolver(products), orderSvc, gateway, lg.Named("checkout"))
	reconciler := checkout.NewReconciler(carts, orderSvc, gateway, lg.Named("reconciler"))

	identity := auth.NewProvider(cfg.JWTSecret, cfg.JWTIssuer, auth.NewRedisRevocations(redisClient), lg.Named("auth"))

	// Background workers
	var wg sync.WaitGroup
	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	outbox := publisher.NewOutboxPoller(orders, lg.Named("outbox"), cfg.OrderTopic, cfg.KafkaBrokers...)
	cartClearer := poller.NewPoller(cartSvc, lg.Named("cart-poller"), cfg.OrderTopic, cfg.KafkaBrokers...)

	checker := ops.NewChecker(lg.Named("health"))
	checker.Register("postgres", orders.Ping)
	checker.Register("mongodb", func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) })
	checker.Register("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })

	wg.Add(3)
	go func() {
		defer wg.Done()
		outbox.Run(workersCtx)
	}()
	go func() {
		defer wg.Done()
		cartClearer.Run(workersCtx)
	}()
	go func() {
		defer wg.Done()
		checker.Run(workersCtx)
	}()

	// gRPC ops port
	opsSrv, err := ops.NewServer(":"+cfg.GRPCPort, checker, lg.Named("ops"))
	if err != nil {
		return err
	}
	go func() {
		if err := opsSrv.Serve(); err != nil {
			lg.Error("ops server error", zap.Error(err))
		}
	}()

	// HTTP API
	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Authenticate:       identity.Middleware,
	}, h.Handlers{
		Products: h.NewProductHandler(products, cfg.RequestTimeout, lg),
		Cart:     h.NewCartHandler(h.CartsFrom(cartSvc), cfg.RequestTimeout, lg),
		Checkout: h.NewCheckoutHandler(checkoutSvc, reconciler, cfg.PublicBaseURL, cfg.RequestTimeout, lg),
		Webhook:  h.NewWebhookHandler(verifier, reconciler, cfg.MaxRequestBodySize, cfg.RequestTimeout, lg),
		Orders:   h.NewOrdersHandler(orderSvc, cfg.RequestTimeout, lg),
		Auth:     h.NewAuthHandler(identity, lg),
	}, lg.Named("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("storefront starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		lg.Info("shutting down storefront")
	case runErr = <-serveErr:
		lg.Error("http server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
	}
	opsSrv.Stop()
	cancelWorkers()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		lg.Info("workers stopped cleanly")
	case <-shutdownCtx.Done():
		lg.Warn("workers did not stop in time")
	}

	outbox.Close()
	cartClearer.Close()
	lg.Info("storefront stopped")
	return runErr
}
