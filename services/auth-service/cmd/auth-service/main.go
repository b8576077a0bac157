package main

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/config"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/grpcx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/metrics"
	otelx "github.com/joaocarlostuc75/ciliosdeluxo/libs/otel"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/runtime"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/audit"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/bootstrap"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/handlers"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/storage"
)

func main() {
	_ = runtime.LoadDotEnv()
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Start(ctx, service, logger)()

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	ttl := config.Duration("JWT_TTL", 12*time.Hour)

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	users := storage.NewUserRepository(pool)
	auditRepo := audit.NewRepository(pool)

	if _, err := bootstrap.EnsureAdmin(ctx, users, auditRepo,
		config.String("ADMIN_EMAIL", ""), config.String("ADMIN_PASSWORD", ""), logger); err != nil {
		logger.Error("admin bootstrap failed", "err", err)
	}

	publisher := outbox.NewPublisher(pool, logger, outbox.PublisherConfigFromEnv())
	go publisher.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if addr := config.String("GRPC_HEALTH_ADDR", ""); addr != "" {
		go func() {
			if err := grpcx.ServeHealth(ctx, addr, service, logger, checks...); err != nil {
				logger.Error("grpc health server failed", "err", err)
			}
		}()
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", metrics.Handler(metrics.NewRegistry()))
	handlers.NewAuthHandler(users, auditRepo, logger, handlers.Config{Secret: secret, TokenTTL: ttl}).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(16<<10),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
