package main

import (
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
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
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/booking"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/handlers"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/policy"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/scheduling"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/storage"
)

func main() {
	_ = runtime.LoadDotEnv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Start(ctx, service, logger)()

	loc, err := time.LoadLocation(config.String("STUDIO_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		panic(err)
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

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	var schedule scheduling.Provider = scheduling.NewPostgresProvider(pool)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		cached := scheduling.NewCachedProvider(schedule, rdb, config.Duration("SCHEDULE_CACHE_TTL", 5*time.Minute), logger)
		schedule = cached

		// Studio changes drop the cache; the TTL bounds staleness when Kafka is down.
		brokers := config.String("KAFKA_BROKERS", "")
		if brokers != "" {
			consumerCfg := kafkax.ConsumerConfig{
				Brokers: brokers,
				GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
				Topics:  []string{kafkax.TopicScheduleChanged, kafkax.TopicCatalogChanged},
			}
			invalidations := kafkax.NewConsumer(consumerCfg.GroupID, kafkax.NewReader(consumerCfg), inbox.NewRepository(pool), logger, consumerCfg,
				scheduling.InvalidationHandler(cached, logger))
			go invalidations.Run(ctx)
		}
	}

	reg := metrics.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(reg)

	offsets := policy.ParseOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger)
	repo := storage.NewAppointmentRepository(pool)
	svc := booking.NewService(repo, schedule, policy.NewStaticProvider(offsets), bookingMetrics, logger, booking.Config{
		Location: loc,
		SlotStep: time.Duration(config.Int("SLOT_STEP_MINUTES", 30)) * time.Minute,
	})

	publisher := outbox.NewPublisher(pool, logger, outbox.PublisherConfigFromEnv())
	go publisher.Run(ctx)

	if addr := config.String("GRPC_HEALTH_ADDR", ""); addr != "" {
		go func() {
			if err := grpcx.ServeHealth(ctx, addr, service, logger, checks...); err != nil {
				logger.Error("grpc health server failed", "err", err)
			}
		}()
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", metrics.Handler(reg))
	handlers.NewBookingHandler(svc, repo, schedule, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
