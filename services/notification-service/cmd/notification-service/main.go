package main

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/config"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/grpcx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/inbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/metrics"
	otelx "github.com/joaocarlostuc75/ciliosdeluxo/libs/otel"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/runtime"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/notification-service/internal/delivery"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/notification-service/internal/sender"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/notification-service/internal/storage"
)

func main() {
	_ = runtime.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8088")
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
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	reg := metrics.NewRegistry()

	whatsappSender, err := sender.New(sender.Config{
		Mode:         config.String("WHATSAPP_MODE", "noop"),
		WebhookURL:   config.String("WHATSAPP_WEBHOOK_URL", ""),
		WebhookToken: config.String("WHATSAPP_WEBHOOK_TOKEN", ""),
		Timeout:      config.Duration("WHATSAPP_TIMEOUT", 5*time.Second),
	})
	if err != nil {
		logger.Error("whatsapp sender invalid", "err", err)
		panic(err)
	}
	logger.Info("whatsapp sender ready", "provider", whatsappSender.ProviderID())

	publisher := outbox.NewPublisher(pool, logger, outbox.PublisherConfigFromEnv())
	go publisher.Run(ctx)

	deliveries := delivery.NewService(storage.NewRepository(pool), whatsappSender, metrics.NewNotificationMetrics(reg), logger, delivery.Config{
		SendAttempts: config.Int("WHATSAPP_SEND_ATTEMPTS", 3),
		SendBackoff:  config.Duration("WHATSAPP_SEND_BACKOFF", time.Second),
	})
	consumerCfg := kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:  delivery.Topics,
	}
	eventConsumer := kafkax.NewConsumer(consumerCfg.GroupID, kafkax.NewReader(consumerCfg), inbox.NewRepository(pool), logger, consumerCfg, deliveries.Handle)
	go eventConsumer.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	if addr := config.String("GRPC_HEALTH_ADDR", ""); addr != "" {
		go func() {
			if err := grpcx.ServeHealth(ctx, addr, service, logger, checks...); err != nil {
				logger.Error("grpc health server failed", "err", err)
			}
		}()
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", metrics.Handler(reg))
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
