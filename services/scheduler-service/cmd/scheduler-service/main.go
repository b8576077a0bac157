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
	"github.com/joaocarlostuc75/ciliosdeluxo/services/scheduler-service/internal/consumer"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/scheduler-service/internal/jobs"
)

func main() {
	_ = runtime.LoadDotEnv()
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
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
	schedMetrics := metrics.NewSchedulerMetrics(reg)
	jobRepo := jobs.NewRepository()

	publisher := outbox.NewPublisher(pool, logger, outbox.PublisherConfigFromEnv())
	go publisher.Run(ctx)

	worker := jobs.NewWorker(pool, jobRepo, schedMetrics, logger, jobs.WorkerConfig{
		Interval:   config.Duration("SCHEDULER_POLL_INTERVAL", 2*time.Second),
		BatchSize:  config.Int("SCHEDULER_BATCH_SIZE", 50),
		Backoff:    config.Duration("SCHEDULER_BACKOFF", time.Minute),
		MaxBackoff: config.Duration("SCHEDULER_MAX_BACKOFF", time.Hour),
	})
	go worker.Run(ctx)

	consumerCfg := kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "scheduler-service"),
		Topics:  consumer.Topics,
	}
	events := consumer.NewHandler(pool, jobRepo, schedMetrics, logger)
	bookingConsumer := kafkax.NewConsumer(consumerCfg.GroupID, kafkax.NewReader(consumerCfg), inbox.NewRepository(pool), logger, consumerCfg, events.Handle)
	go bookingConsumer.Run(ctx)

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
	handler = otelhttp.NewHandler(handler, "scheduler")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
