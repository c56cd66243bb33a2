// cmd/api-server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pmc-registration/internal/api"
	"pmc-registration/internal/application"
	"pmc-registration/internal/approval"
	"pmc-registration/internal/audit"
	"pmc-registration/internal/common/auth"
	"pmc-registration/internal/common/aws"
	"pmc-registration/internal/common/camunda"
	"pmc-registration/internal/common/config"
	"pmc-registration/internal/common/database"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/common/observability"
	"pmc-registration/internal/draft"
	"pmc-registration/internal/events"
	"pmc-registration/internal/notify"
	"pmc-registration/internal/officer"
	"pmc-registration/internal/otp"
	"pmc-registration/internal/payment"
	"pmc-registration/internal/search"
	"pmc-registration/internal/session"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service":     "api-server",
		"environment": cfg.App.Environment,
	})

	obs := observability.New("api-server", cfg.Tracing, log)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Postgres ---
	var pg *database.PostgresClient
	err = database.Retry(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if err := database.Migrate(pg.DB); err != nil {
		zapLog.Fatal("migrations failed", zap.Error(err))
	}

	// --- Redis ---
	var rdb *database.RedisClient
	err = database.Retry(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()

	// --- Elasticsearch ---
	var es *database.ElasticsearchClient
	err = database.Retry(func() error {
		var err error
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return es.Ping(ctx)
	}, 15, 2*time.Second, log, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	index := search.NewIndex(es.Client, es.Index, log)
	if err := index.EnsureIndex(ctx); err != nil {
		log.Warn("search index not ready", map[string]interface{}{"error": err.Error()})
	}

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = database.Retry(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()

	publishers := events.Multi{events.NewZeebePublisher(zeebe)}
	if cfg.Kafka.Enabled() {
		kp := events.NewKafkaPublisher(cfg.Kafka)
		defer kp.Close()
		publishers = append(publishers, kp)
	}

	// --- Messaging ---
	var email notify.EmailSender
	var sms notify.SMSSender
	if cfg.Integrations.AWS.SES.Enabled {
		ses, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SES.FromEmail)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		email = ses
	}
	if cfg.Integrations.AWS.SNS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SNS.DefaultSMSSenderID)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		sms = sns
	}
	notifier := notify.NewNotifier(notify.ConfigFrom(cfg.Notifications), email, sms, log)

	// --- Services ---
	auditLog := audit.NewRepository(pg.DB)
	accounts := officer.NewRepository(pg.DB)
	officers := officer.NewService(accounts, log)
	challenges := otp.NewService(otp.ConfigFrom(cfg.OTP), rdb.Client, log)

	appRepo := application.NewRepository(pg.DB)
	apps := application.NewService(appRepo, application.NewDashboardCache(rdb.Client, 0), index, log)

	approvals := approval.NewService(approval.Deps{
		Applications:  appRepo,
		Challenges:    challenges,
		Officers:      officers,
		Mailer:        notifier,
		Publisher:     publishers,
		Auditor:       auditLog,
		Invalidator:   apps,
		Observability: obs,
	}, log)

	tokens := session.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, config.GetDuration(cfg.Auth.TokenTTL))
	activity := session.NewActivityTracker(rdb.Client, config.GetDuration(cfg.Auth.InactivityTimeout))
	login := auth.NewLoginService(auth.Deps{
		Challenges: challenges,
		Mailer:     notifier,
		Applicants: accounts,
		Officers:   officers,
		Tokens:     tokens,
		Activity:   activity,
		Refresh:    session.NewRefreshStore(rdb.Client, 0),
		Auditor:    auditLog,
	}, log)

	payments := payment.NewService(payment.NewRepository(pg.DB), apps, approvals, auditLog, cfg.Payment, log)

	handler := api.NewHandler(api.Deps{
		Login:        login,
		Applications: apps,
		Approvals:    approvals,
		Payments:     payments,
		Drafts:       draft.NewStore(rdb.Client, 0, log),
		Search:       index,
		Tokens:       tokens,
		Activity:     activity,
		Checks: []api.Check{
			{Name: "postgres", Ping: pg.Ping},
			{Name: "redis", Ping: rdb.Ping},
			{Name: "elasticsearch", Ping: es.Ping},
			{Name: "zeebe", Ping: zeebe.HealthCheck},
		},
		CallbackToken: cfg.Payment.CallbackToken,
	}, log)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler.Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		log.Info("api server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("api server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("api server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	log.Info("api server stopped", nil)
}
