package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ibrahgraphix/FlameCounselling-sub000/libs/config"
	"github.com/ibrahgraphix/FlameCounselling-sub000/libs/db"
	"github.com/ibrahgraphix/FlameCounselling-sub000/libs/httpx"
	"github.com/ibrahgraphix/FlameCounselling-sub000/libs/kafkax"
	otelx "github.com/ibrahgraphix/FlameCounselling-sub000/libs/otel"
	"github.com/ibrahgraphix/FlameCounselling-sub000/libs/runtime"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/gcal"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/handlers"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/outbox"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/reconciler"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/slotlock"
	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	clientID, err := config.RequiredString("GOOGLE_CLIENT_ID")
	if err != nil {
		panic(err)
	}
	clientSecret, err := config.RequiredString("GOOGLE_CLIENT_SECRET")
	if err != nil {
		panic(err)
	}
	redirectURL, err := config.RequiredString("GOOGLE_REDIRECT_URL")
	if err != nil {
		panic(err)
	}

	counselors := storage.NewCounselorRepository(pool)
	gateway := gcal.New(gcal.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	}, counselors, logger)

	// Redis backs the slot lock and rate limiting when configured; a single
	// instance falls back to in-process equivalents.
	var rdb *redis.Client
	var locks slotlock.Locker = slotlock.NewLocalLocker(0)
	rateLimit := httpx.NewRateLimiter(60, time.Minute).Middleware()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		locks = slotlock.NewRedisLocker(rdb, 10*time.Second)
		rateLimit = httpx.NewRedisRateLimiter(rdb, 60, time.Minute, service).Middleware(logger, true)
	}

	store := storage.NewSchedulingStore(pool)
	sched := reconciler.New(reconciler.GatewayAuthorizer{Gateway: gateway}, store, locks, logger, time.UTC)

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	schedulingHandler := handlers.NewSchedulingHandler(sched, logger)
	oauthHandler := handlers.NewOAuthHandler(gateway, logger, config.String("FRONTEND_ORIGIN", "http://localhost:3000"))

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/available-slots", schedulingHandler.Slots)
	mux.HandleFunc("/api/v1/book-session", schedulingHandler.Book)
	mux.HandleFunc("/api/v1/bookings/", schedulingHandler.BookingAction)
	mux.HandleFunc("/api/v1/google/auth-url", oauthHandler.AuthURL)
	mux.HandleFunc("/api/v1/google/oauth-callback", oauthHandler.Callback)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		rateLimit,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: []string{config.String("FRONTEND_ORIGIN", "http://localhost:3000")},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
