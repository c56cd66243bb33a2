// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pmc-registration/internal/application"
	"pmc-registration/internal/common/aws"
	"pmc-registration/internal/common/camunda"
	"pmc-registration/internal/common/config"
	"pmc-registration/internal/common/database"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/common/observability"
	"pmc-registration/internal/events"
	"pmc-registration/internal/notify"
	"pmc-registration/internal/search"

	ic "pmc-registration/internal/workers/application/issue-certificate"
	na "pmc-registration/internal/workers/notification/notify-applicant"

	"github.com/prometheus/client_golang/prometheus/promhttp"
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
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"service": "worker-manager"})

	log.Info("starting worker manager", nil)

	obs := observability.New("worker-manager", cfg.Tracing, log)
	defer obs.Shutdown()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

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

	// --- Workers ---
	var workers []*camunda.Worker

	if wc := config.GetWorkerConfig(cfg, na.TaskType); wc.Enabled {
		handler := na.NewHandler(na.LoadConfig(wc), notifier, log)
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), na.TaskType, options(wc), handler, log))
	}

	if wc := config.GetWorkerConfig(cfg, ic.TaskType); wc.Enabled {
		handler := ic.NewHandler(ic.LoadConfig(wc), application.NewRepository(pg.DB), log)
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), ic.TaskType, options(wc), handler, log))
	}

	log.Info("workers registered", map[string]interface{}{"count": len(workers)})

	// --- Search projection ---
	var wg sync.WaitGroup
	var consumer *events.Consumer
	if cfg.Kafka.Enabled() {
		consumer = events.NewConsumer(cfg.Kafka, index, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error("stage event consumer stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		status, state := http.StatusOK, "ready"
		if err := zeebe.HealthCheck(r.Context()); err != nil {
			status, state = http.StatusServiceUnavailable, "zeebe unavailable"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": state,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: mux}
	go func() {
		log.Info("health/metrics server listening", map[string]interface{}{"address": cfg.Server.MetricsAddress})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health/metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping workers", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	stop()
	wg.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("error closing kafka consumer", map[string]interface{}{"error": err.Error()})
		}
	}
	_ = srv.Shutdown(shutdownCtx)
	if err := zeebe.Close(); err != nil {
		log.Error("error closing zeebe client", map[string]interface{}{"error": err.Error()})
	}

	log.Info("worker manager stopped gracefully", nil)
}

func options(wc config.WorkerConfig) camunda.WorkerOptions {
	return camunda.WorkerOptions{
		MaxJobsActive: wc.MaxJobsActive,
		Timeout:       config.GetDuration(wc.Timeout),
	}
}
