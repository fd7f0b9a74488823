// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"healthcard-workers/internal/audit"
	awsclient "healthcard-workers/internal/common/aws"
	"healthcard-workers/internal/common/config"
	"healthcard-workers/internal/common/database"
	"healthcard-workers/internal/common/logger"
	"healthcard-workers/internal/common/observability"
	"healthcard-workers/internal/core/issuer"
	"healthcard-workers/internal/core/lifecycle"
	"healthcard-workers/internal/core/review"
	"healthcard-workers/internal/core/scheduler"
	"healthcard-workers/internal/notify"

	cd "healthcard-workers/internal/workers/application/create-draft"
	da "healthcard-workers/internal/workers/application/decide-application"
	sa "healthcard-workers/internal/workers/application/submit-application"
	ihc "healthcard-workers/internal/workers/healthcard/issue-health-card"
	rhc "healthcard-workers/internal/workers/healthcard/revoke-health-card"
	bo "healthcard-workers/internal/workers/orientation/book-orientation"
	co "healthcard-workers/internal/workers/orientation/cancel-orientation"
	cio "healthcard-workers/internal/workers/orientation/check-in-orientation"
	cpo "healthcard-workers/internal/workers/orientation/complete-orientation"
	ra "healthcard-workers/internal/workers/review/review-artifact"
	sart "healthcard-workers/internal/workers/review/submit-artifact"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient zbc.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	if cfg.Audit.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init AWS Clients (best-effort; notifications degrade gracefully) ---
	var sesClient *awsclient.SESClient
	var snsClient *awsclient.SNSClient
	if cfg.Notifications.Email.Enabled {
		sesClient, err = awsclient.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("SES client init failed, email notifications disabled", zap.Error(err))
		}
	}
	if cfg.Notifications.SMS.Enabled {
		snsClient, err = awsclient.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Warn("SNS client init failed, SMS notifications disabled", zap.Error(err))
		}
	}

	zapLog.Info("All external service clients initialized")

	// --- Wire Core Services ---
	auditor := audit.NewIndexer(esClient, cfg.Audit, log)
	dispatcher := notify.NewDispatcher(sesClient, snsClient, &notify.SQLContactResolver{DB: pg.DB}, pg.DB, cfg.Notifications, log)

	issuerSvc := issuer.NewService(pg.DB, cfg.HealthCard, log)
	lifecycleSvc := lifecycle.NewService(pg.DB, cfg.Lifecycle, issuerSvc, auditor, log)
	reviewSvc := review.NewService(pg.DB, cfg.Review.MaxAttempts, log)
	schedulerSvc := scheduler.NewService(pg.DB, redis, lifecycleSvc, cfg.Orientation, log)

	// --- Register Workers ---

	// Application lifecycle workers
	if cfg.Workers[cd.TaskType].Enabled {
		handler := cd.NewHandler(cd.LoadConfig(), lifecycleSvc, log)
		startWorker(zeebeClient, cd.TaskType, cfg.Workers[cd.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[sa.TaskType].Enabled {
		handler := sa.NewHandler(sa.LoadConfig(), lifecycleSvc, log)
		startWorker(zeebeClient, sa.TaskType, cfg.Workers[sa.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[da.TaskType].Enabled {
		handler := da.NewHandler(da.LoadConfig(), lifecycleSvc, dispatcher, log)
		startWorker(zeebeClient, da.TaskType, cfg.Workers[da.TaskType], handler.Handle, zapLog)
	}

	// Artifact review workers
	if cfg.Workers[sart.TaskType].Enabled {
		handler := sart.NewHandler(sart.LoadConfig(), reviewSvc, lifecycleSvc, log)
		startWorker(zeebeClient, sart.TaskType, cfg.Workers[sart.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[ra.TaskType].Enabled {
		handler := ra.NewHandler(ra.LoadConfig(), reviewSvc, lifecycleSvc, dispatcher, log)
		startWorker(zeebeClient, ra.TaskType, cfg.Workers[ra.TaskType], handler.Handle, zapLog)
	}

	// Orientation scheduling workers
	if cfg.Workers[bo.TaskType].Enabled {
		handler := bo.NewHandler(bo.LoadConfig(), schedulerSvc, dispatcher, log)
		startWorker(zeebeClient, bo.TaskType, cfg.Workers[bo.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[co.TaskType].Enabled {
		handler := co.NewHandler(co.LoadConfig(), schedulerSvc, log)
		startWorker(zeebeClient, co.TaskType, cfg.Workers[co.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[cio.TaskType].Enabled {
		handler := cio.NewHandler(cio.LoadConfig(), schedulerSvc, log)
		startWorker(zeebeClient, cio.TaskType, cfg.Workers[cio.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[cpo.TaskType].Enabled {
		handler := cpo.NewHandler(cpo.LoadConfig(), schedulerSvc, log)
		startWorker(zeebeClient, cpo.TaskType, cfg.Workers[cpo.TaskType], handler.Handle, zapLog)
	}

	// Health card workers
	if cfg.Workers[ihc.TaskType].Enabled {
		handler := ihc.NewHandler(ihc.LoadConfig(), issuerSvc, dispatcher, log)
		startWorker(zeebeClient, ihc.TaskType, cfg.Workers[ihc.TaskType], handler.Handle, zapLog)
	}

	if cfg.Workers[rhc.TaskType].Enabled {
		handler := rhc.NewHandler(rhc.LoadConfig(), issuerSvc, dispatcher, log)
		startWorker(zeebeClient, rhc.TaskType, cfg.Workers[rhc.TaskType], handler.Handle, zapLog)
	}

	zapLog.Info("All workers registered successfully")

	// --- Background Sweeps ---
	sweepCtx, stopSweeps := context.WithCancel(ctx)
	go runSweeps(sweepCtx, schedulerSvc, lifecycleSvc, dispatcher, cfg.Orientation, zapLog)

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	stopSweeps()

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// runSweeps drives the periodic no-show sweep and the stale-application
// expiry on the same ticker cadence.
func runSweeps(ctx context.Context, schedulerSvc *scheduler.Service, lifecycleSvc *lifecycle.Service, dispatcher *notify.Dispatcher, cfg config.OrientationConfig, log *zap.Logger) {
	interval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("background sweeps started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			log.Info("background sweeps stopped")
			return
		case <-ticker.C:
			now := time.Now().UTC()

			swept, notes, err := schedulerSvc.SweepNoShows(ctx, now)
			if err != nil {
				log.Error("no-show sweep failed", zap.Error(err))
			} else if swept > 0 {
				dispatcher.Dispatch(ctx, notes)
			}

			expired, err := lifecycleSvc.ExpireStale(ctx, now)
			if err != nil {
				log.Error("stale expiry failed", zap.Error(err))
			} else if expired > 0 {
				log.Info("stale applications expired", zap.Int("count", expired))
			}
		}
	}
}

func startWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc func(worker.JobClient, entities.Job), log *zap.Logger) {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return
	}

	client.NewJobWorker().
		JobType(taskType).
		Handler(handlerFunc).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
}
