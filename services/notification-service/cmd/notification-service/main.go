package main

import (
	"context"
	"embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/backflowhq/platform/libs/config"
	"github.com/backflowhq/platform/libs/db"
	"github.com/backflowhq/platform/libs/httpx"
	"github.com/backflowhq/platform/libs/kafkax"
	"github.com/backflowhq/platform/libs/metricsx"
	otelx "github.com/backflowhq/platform/libs/otel"
	"github.com/backflowhq/platform/libs/runtime"
	"github.com/backflowhq/platform/services/notification-service/internal/consumer"
	"github.com/backflowhq/platform/services/notification-service/internal/email"
	"github.com/backflowhq/platform/services/notification-service/internal/inbox"
	"github.com/backflowhq/platform/services/notification-service/internal/message"
	"github.com/backflowhq/platform/services/notification-service/internal/outbox"
	"github.com/backflowhq/platform/services/notification-service/internal/sms"
	"github.com/backflowhq/platform/services/notification-service/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Scheduling topics this service reacts to.
const (
	topicRescheduled = "scheduling.appointment.rescheduled.v1"
	topicCancelled   = "scheduling.appointment.cancelled.v1"
	topicNotify      = "scheduling.notify.requested.v1"
)

type dispatcher struct {
	pool       *db.Pool
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	email      email.Sender
	sms        sms.Sender
	smsID      string
	logger     *slog.Logger
}

func (d *dispatcher) handle(ctx context.Context, msg kafka.Message) error {
	var evt message.Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		d.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if evt.AppointmentID == "" || evt.CompanyID == "" {
		d.logger.Error("missing event fields", "topic", msg.Topic)
		return nil
	}

	var content message.Content
	switch msg.Topic {
	case topicRescheduled:
		content = message.ForRescheduled(evt)
	case topicCancelled:
		content = message.ForCancelled(evt)
	case topicNotify:
		content = message.ForNotify(evt)
	default:
		d.logger.Error("unexpected topic", "topic", msg.Topic)
		return nil
	}

	sentAny := false
	if evt.CustomerEmail != "" {
		d.deliver(ctx, msg.Topic, evt, "email", evt.CustomerEmail, content)
		sentAny = true
	}
	if evt.CustomerPhone != "" {
		d.deliver(ctx, msg.Topic, evt, "sms", evt.CustomerPhone, content)
		sentAny = true
	}
	if !sentAny {
		d.logger.Info("no recipient on appointment; nothing to send",
			"appointment_id", evt.AppointmentID, "topic", msg.Topic)
	}
	return nil
}

// deliver sends on one channel, persists the delivery record, and emits the
// sent/failed event. Send failures are recorded, not retried; the row is the
// ledger for operator follow-up.
func (d *dispatcher) deliver(ctx context.Context, eventType string, evt message.Event, channel, recipient string, content message.Content) {
	status := "sent"
	failureReason := ""
	providerID := ""

	switch channel {
	case "email":
		if err := d.email.Send(recipient, content.Subject, content.Body); err != nil {
			status = "failed"
			failureReason = err.Error()
			d.logger.Error("email send failed", "err", err, "recipient", recipient)
		} else {
			providerID = "smtp"
		}
	case "sms":
		if err := d.sms.Send(ctx, recipient, content.Body); err != nil {
			status = "failed"
			failureReason = err.Error()
			d.logger.Error("sms send failed", "err", err, "recipient", recipient)
		} else {
			providerID = d.smsID
		}
	}
	metricsx.IncNotification(channel, status)

	if err := d.repo.Insert(ctx, storage.Notification{
		AppointmentID: evt.AppointmentID,
		CompanyID:     evt.CompanyID,
		EventType:     eventType,
		Channel:       channel,
		Recipient:     recipient,
		Subject:       content.Subject,
		Body:          content.Body,
		Status:        status,
		FailureReason: failureReason,
	}); err != nil {
		d.logger.Error("failed to persist notification", "err", err)
		return
	}

	if err := d.writeOutcome(ctx, evt, channel, status, providerID, failureReason); err != nil {
		d.logger.Error("failed to enqueue notification outcome", "err", err)
	}
}

func (d *dispatcher) writeOutcome(ctx context.Context, evt message.Event, channel, status, providerID, reason string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventType := outbox.EventNotificationSent
	fields := map[string]any{
		"appointment_id": evt.AppointmentID,
		"company_id":     evt.CompanyID,
		"channel":        channel,
	}
	if status == "failed" {
		eventType = outbox.EventNotificationFailed
		fields["error_reason"] = reason
		fields["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		fields["provider_id"] = providerID
		fields["sent_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	if err := d.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   evt.AppointmentID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	config.LoadEnvFile()

	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8082")
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

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@backflowhq.local"),
	)

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(
			config.String("SMS_WEBHOOK_URL", ""),
			config.String("SMS_WEBHOOK_TOKEN", ""),
		)
	default:
		smsSender = sms.NewNoopSender()
	}

	d := &dispatcher{
		pool:       pool,
		repo:       notificationsRepo,
		outboxRepo: outboxRepo,
		email:      emailSender,
		sms:        smsSender,
		smsID:      smsSender.ProviderID(),
		logger:     logger,
	}

	for _, topic := range []string{topicRescheduled, topicCancelled, topicNotify} {
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}, d.handle)
		go eventConsumer.Run(ctx)
	}

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.Handle("/metrics", metricsx.Handler())
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
