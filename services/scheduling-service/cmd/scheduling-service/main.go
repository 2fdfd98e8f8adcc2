package main

import (
	"context"
	"embed"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/backflowhq/platform/libs/config"
	"github.com/backflowhq/platform/libs/db"
	"github.com/backflowhq/platform/libs/httpx"
	"github.com/backflowhq/platform/libs/kafkax"
	"github.com/backflowhq/platform/libs/metricsx"
	otelx "github.com/backflowhq/platform/libs/otel"
	"github.com/backflowhq/platform/libs/runtime"
	"github.com/backflowhq/platform/services/scheduling-service/internal/audit"
	"github.com/backflowhq/platform/services/scheduling-service/internal/consumer"
	"github.com/backflowhq/platform/services/scheduling-service/internal/handlers"
	"github.com/backflowhq/platform/services/scheduling-service/internal/inbox"
	"github.com/backflowhq/platform/services/scheduling-service/internal/outbox"
	"github.com/backflowhq/platform/services/scheduling-service/internal/schedule"
	"github.com/backflowhq/platform/services/scheduling-service/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	config.LoadEnvFile()

	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8081")
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

	if err := db.Migrate(ctx, pool, migrationsFS); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	metricsx.Register()

	repo := storage.NewAppointmentRepository(pool)
	entitlementsRepo := storage.NewEntitlementsRepository(pool)
	auditRepo := audit.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	validator := schedule.NewValidator(repo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// Billing pushes entitlement changes; the local cache keeps booking-time
	// enforcement off the billing service's critical path.
	inboxRepo := inbox.NewRepository(pool)
	entitlementsTopics := []string{
		config.String("KAFKA_ENTITLEMENTS_TOPIC", "billing.subscription.activated.v1"),
		config.String("KAFKA_ENTITLEMENTS_TOPIC_2", "billing.subscription.canceled.v1"),
	}
	for _, topic := range entitlementsTopics {
		if strings.TrimSpace(topic) == "" {
			continue
		}
		entitlementsConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "scheduling-service"),
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			// Both topics carry the same limit fields; enforcement reads this
			// local cache only.
			var payload struct {
				CompanyID              string `json:"company_id"`
				Tier                   string `json:"tier"`
				MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid entitlements payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.CompanyID == "" || payload.Tier == "" || payload.MaxMonthlyAppointments <= 0 {
				logger.Error("missing entitlements fields", "topic", msg.Topic)
				return nil
			}

			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback(ctx) }()

			if err := entitlementsRepo.Upsert(ctx, tx, storage.CompanyEntitlements{
				CompanyID:              payload.CompanyID,
				Tier:                   payload.Tier,
				MaxMonthlyAppointments: payload.MaxMonthlyAppointments,
			}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		})
		go entitlementsConsumer.Run(ctx)
	}

	bookingHandler := handlers.NewBookingHandler(repo, entitlementsRepo, outboxRepo, validator, logger)
	rescheduleHandler := handlers.NewRescheduleHandler(repo, auditRepo, outboxRepo, validator, logger)
	conflictHandler := handlers.NewConflictHandler(repo, auditRepo, outboxRepo, validator, logger)
	reportHandler := handlers.NewReportHandler(repo, auditRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var publicLimit httpx.Middleware
	if redisAddr := strings.TrimSpace(config.String("REDIS_ADDR", "")); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, service)
		publicLimit = limiter.Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", redisAddr)
	} else {
		limiter := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		publicLimit = limiter.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	public := func(h http.HandlerFunc) http.Handler {
		return publicLimit(h)
	}

	mux := runtime.NewBaseMux(readyChecks...)
	mux.Handle("/metrics", metricsx.Handler())
	mux.Handle("/api/v1/appointments/book", public(bookingHandler.Create))
	mux.Handle("/api/v1/appointments/reschedule", public(rescheduleHandler.Reschedule))
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/conflicts", conflictHandler.Report)
	mux.HandleFunc("/api/v1/conflicts/resolve", conflictHandler.Resolve)
	mux.HandleFunc("/api/v1/reports/schedule.xlsx", reportHandler.ScheduleExport)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-Company-Id,Idempotency-Key")),
			MaxAge:         config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
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

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
