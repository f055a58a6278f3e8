package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/SigNoz/checkout-service/internal/api"
	"github.com/SigNoz/checkout-service/internal/cache"
	"github.com/SigNoz/checkout-service/internal/coord"
	"github.com/SigNoz/checkout-service/internal/db"
	"github.com/SigNoz/checkout-service/internal/gateway"
	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/notify"
	"github.com/SigNoz/checkout-service/internal/pricing"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/services"
	"github.com/SigNoz/checkout-service/internal/store"
	"github.com/SigNoz/checkout-service/pkg/config"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize OpenTelemetry metrics
	ctx := context.Background()
	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down meter provider: %v", err)
		}
	}()

	var checks []func(*http.Request) error

	// Storage
	var st store.Store
	switch cfg.StoreDriver {
	case "memory":
		log.Println("Warning: using the in-memory store, data is lost on restart")
		st = store.NewMemory()
	default:
		database, err := db.NewDB(ctx, cfg.GetDSN(), meterProvider, cfg.OTELServiceName)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		schemaSQL, err := os.ReadFile("schema.sql")
		if err != nil {
			log.Printf("Warning: Could not read schema.sql: %v", err)
			log.Println("Assuming database schema already exists")
		} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
			log.Printf("Warning: Could not initialize schema: %v", err)
			log.Println("Assuming database schema already exists")
		}
		st = store.NewMySQL(database, appMetrics)
		checks = append(checks, func(r *http.Request) error { return database.PingContext(r.Context()) })
	}

	// Locks, idempotency keys, notification queue and cache versions
	var (
		locker   coord.Locker
		idem     coord.IdempotencyStore
		sink     notify.Sink
		versions cache.Versions
	)
	switch cfg.CoordDriver {
	case "local":
		log.Println("Warning: using in-process locks, run a single replica only")
		locker = coord.NewLocalLocker()
		idem = coord.NewLocalIdempotency()
		sink = notify.NewMemoryQueue()
		versions = cache.NewLocalVersions()
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to redis at %s: %v", cfg.RedisAddr, err)
		}
		locker = coord.NewRedisLocker(rdb)
		idem = coord.NewRedisIdempotency(rdb)
		sink = notify.NewRedisQueue(rdb, cfg.NotifyQueueKey)
		versions = cache.NewRedisVersions(rdb)
		checks = append(checks, func(r *http.Request) error { return rdb.Ping(r.Context()).Err() })
	}

	if cfg.GatewayKeySecret == "" || cfg.GatewayWebhookSecret == "" {
		log.Println("Warning: gateway secrets are empty, every signature check will fail")
	}
	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayWebhookSecret, cfg.GatewayTimeout)

	// Initialize services
	lc := services.NewLifecycle(services.Deps{
		Store:                  st,
		Locker:                 locker,
		Metrics:                appMetrics,
		Notifier:               notify.NewNotifier(sink, appMetrics, cfg.FrontendURL),
		Cache:                  versions,
		LockTTL:                cfg.LockTTL,
		LockWait:               cfg.LockWait,
		RevertOnPaymentFailure: cfg.RevertOnPaymentFailure(),
	})
	promos := services.NewPromotionValidator()
	pricer := pricing.DimensionPricer{}
	paymentService := services.NewPaymentService(lc, gw, cfg.Currency)

	app := api.NewApp(appMetrics, api.Services{
		Carts:    services.NewCartService(lc, pricer, promos),
		Checkout: services.NewCheckoutService(lc, pricer, promos),
		Orders:   services.NewOrderService(lc),
		Payments: paymentService,
		Webhooks: services.NewWebhookReconciler(lc, gw, idem, cfg.IdempotencyTTL, cfg.WebhookForgetKeyOnError),
		Products: services.NewProductService(lc, versions),
	}, cfg.ReconcileStaleAfter).WithHealthCheck(func(r *http.Request) error {
		for _, check := range checks {
			if err := check(r); err != nil {
				return err
			}
		}
		return nil
	})

	// Setup router
	router := mux.NewRouter()
	app.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Stale payment sweep
	sweepCtx, stopSweep := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if cfg.ReconcileInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSweeper(sweepCtx, paymentService, cfg.ReconcileInterval, cfg.ReconcileStaleAfter)
		}()
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %s (store=%s, coord=%s)", cfg.AppPort, cfg.StoreDriver, cfg.CoordDriver)
		log.Printf("OTLP endpoint: %s", cfg.OTELExporterOTLPEndpoint)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopSweep()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	wg.Wait()

	log.Println("Server exited")
}

// runSweeper settles stale CREATED payments every interval until ctx ends.
func runSweeper(ctx context.Context, payments *services.PaymentService, interval, staleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[RECONCILE] sweeping payments older than %s every %s", staleAfter, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx := requestid.With(ctx, "sweep-"+requestid.New())
			n, err := payments.SweepStale(runCtx, staleAfter)
			if err != nil {
				log.Printf("[RECONCILE] request_id=%s sweep failed: %v", requestid.From(runCtx), err)
				continue
			}
			if n > 0 {
				log.Printf("[RECONCILE] request_id=%s failed %d stale payments", requestid.From(runCtx), n)
			}
		}
	}
}
