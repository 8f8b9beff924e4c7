package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"faceattend/internal/app"
	"faceattend/internal/archive"
	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/httpapi"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/logging"
	"faceattend/internal/queue"
	"faceattend/internal/scan"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.Queue()
	if err != nil {
		return err
	}

	if cfg.QueueBackend == app.BackendMemory {
		// nothing outside this process can drain an in-memory queue
		go func() {
			if err := archive.New(q, app.NewUploader(cfg, logger), logger).Run(ctx); err != nil {
				logger.Error("in-process archive worker failed", zap.Error(err))
			}
		}()
	}
	audits := queue.NewAuditPublisher(q, 256, 2*time.Second, func(audit queue.ScanAudit, err error) {
		a.Metrics.ObserveAudit(err)
		if err != nil {
			logger.Warn("audit publish failed", zap.String("session_id", audit.SessionID), zap.Error(err))
		}
	})
	go audits.Run(ctx)

	sessions := scan.NewManager(a.Device, a.Pipeline, a.ScanConfig(), logger,
		scan.WithActiveObserver(a.Metrics.SetActiveSessions),
		scan.WithOutcomeHook(func(s *scan.Session, out attendance.Outcome) {
			a.Metrics.ObserveOutcome(string(out.Mode), string(out.Kind), out.Step)
		}),
		scan.WithOutcomeHook(archive.Hook(audits)),
	)

	health := map[string]httpapi.HealthCheck{}
	if a.DB != nil {
		health["db"] = a.DB.Healthy
	}
	if a.Redis != nil {
		health["redis"] = a.Redis.Healthy
	}

	srv := httpapi.New(httpapi.Deps{
		Courses:  a.Pipeline,
		Sessions: sessions,
		Issuer:   auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Limiter:  httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Metrics:  a.Metrics,
		Health:   health,
		Log:      logger,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpSrv.Addr), zap.String("device", cfg.Device), zap.String("matcher", cfg.Matcher))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down server")

	// give outstanding requests and sessions 10 seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sessions did not release the device", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
