package main

import (
	"net/http"
	"time"
	_ "time/tzdata"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/config"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/grpcx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/inbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/metrics"
	otelx "github.com/joaocarlostuc75/ciliosdeluxo/libs/otel"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/runtime"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/analytics-service/internal/projection"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/analytics-service/internal/report"
)

func main() {
	_ = runtime.LoadDotEnv()
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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

	brokers := config.String("KAFKA_BROKERS", "")
	consumerCfg := kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "analytics-service"),
		Topics:  projection.Topics,
	}
	projector := projection.NewProjector(pool, loc, logger)
	eventConsumer := kafkax.NewConsumer(consumerCfg.GroupID, kafkax.NewReader(consumerCfg), inbox.NewRepository(pool), logger, consumerCfg, projector.Handle)
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
	mux.Handle("/metrics", metrics.Handler(metrics.NewRegistry()))
	report.NewHandler(pool, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
