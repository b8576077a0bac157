package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/config"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
	otelx "github.com/joaocarlostuc75/ciliosdeluxo/libs/otel"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/runtime"
)

func main() {
	_ = runtime.LoadDotEnv()
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Start(ctx, service, logger)()

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	strictPerMinute := config.Int("RATE_LIMIT_WRITE_PER_MINUTE", 10)

	var rateLimitMW, strictMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
		prefix := config.String("RATE_LIMIT_PREFIX", "rl")
		rateLimitMW = httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, prefix).Middleware(logger, failOpen)
		strictMW = httpx.NewRedisRateLimiter(rdb, strictPerMinute, time.Minute, prefix+":write").Middleware(logger, failOpen)
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "write_per_minute", strictPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		strictMW = httpx.NewRateLimiter(strictPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute, "write_per_minute", strictPerMinute)
	}

	ups, err := parseUpstreams(config.String("UPSTREAM_GRPC_HEALTH", ""))
	if err != nil {
		panic(err)
	}
	checks, closeUpstreams, err := upstreamChecks(ups, config.Duration("UPSTREAM_HEALTH_TIMEOUT", 2*time.Second))
	if err != nil {
		panic(err)
	}
	defer closeUpstreams()

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, routeConfig{
		AuthURL:      mustParseURL(config.String("AUTH_URL", "http://auth-service:8081")),
		StudioURL:    mustParseURL(config.String("STUDIO_URL", "http://studio-service:8082")),
		BookingURL:   mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		AnalyticsURL: mustParseURL(config.String("ANALYTICS_URL", "http://analytics-service:8086")),
		JWTSecret:    jwtSecret,
		Strict:       strictMW,
	})

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicyFromEnv()),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger)
}
