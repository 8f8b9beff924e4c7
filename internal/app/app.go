// Package app wires configuration into the concrete store, device, matcher
// and pipeline shared by the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/archive"
	"faceattend/internal/attendance"
	"faceattend/internal/cloudinary"
	"faceattend/internal/config"
	"faceattend/internal/device"
	"faceattend/internal/faceclient"
	"faceattend/internal/gallery"
	"faceattend/internal/metrics"
	"faceattend/internal/model"
	"faceattend/internal/queue"
	"faceattend/internal/scan"
	"faceattend/internal/store"
)

// Backend names.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"

	DeviceSynthetic = "synthetic"
	DeviceWebcam    = "webcam"

	MatcherFaceService = "face-service"
	MatcherGallery     = "gallery"
)

// Store is the remote store plus the student listing the gallery loads from.
type Store interface {
	attendance.Store
	ListStudents(ctx context.Context) ([]model.Student, error)
}

// App holds the wired components.
type App struct {
	Config   config.App
	Log      *zap.Logger
	DB       *store.DB
	Redis    *store.Redis
	Store    Store
	Device   device.Device
	Face     *faceclient.Client
	Gallery  *gallery.Index
	Pipeline *attendance.Pipeline
	Metrics  *metrics.Metrics
}

// Build connects backends and assembles the pipeline.
func Build(ctx context.Context, cfg config.App, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	dev, err := NewDevice(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Device = dev

	a.Face = faceclient.New(cfg.FaceServiceURL, cfg.FaceMatchThreshold)
	if err := a.Face.Health(ctx); err != nil {
		log.Warn("face service not available", zap.Error(err))
	}

	var (
		matcher  attendance.Matcher
		enroller attendance.Enroller
	)
	switch cfg.Matcher {
	case MatcherGallery:
		a.Gallery = gallery.New(a.Face, cfg.FaceMatchThreshold, log)
		if _, _, err := a.Gallery.Load(ctx, a.Store); err != nil {
			log.Warn("gallery load failed", zap.Error(err))
		}
		matcher, enroller = a.Gallery, a.Gallery
	case MatcherFaceService, "":
		matcher, enroller = a.Face, a.Face
	default:
		a.Close()
		return nil, fmt.Errorf("unknown MATCHER %q", cfg.Matcher)
	}

	a.Pipeline = attendance.NewPipeline(a.Store, matcher,
		attendance.WithEnroller(enroller),
		attendance.WithLocation(cfg.Location()),
		attendance.WithTimeout(cfg.VerifyTimeout),
		attendance.WithLogger(log),
		attendance.WithObserver(func(o attendance.Outcome, d time.Duration) {
			a.Metrics.ObserveVerification(string(o.Mode), string(o.Kind), d)
		}),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StoreBackend {
	case BackendMemory:
		a.Log.Warn("using in-memory store, data is lost on exit")
		a.Store = attendance.NewMemoryStore()
		return nil
	case BackendPostgres, "":
		db, err := store.NewDB(ctx, a.Config.DatabaseURL)
		if err != nil {
			if db != nil {
				db.Close()
			}
			return err
		}
		a.DB = db
		repo := attendance.NewRepository(db.Client)
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.Store = repo
		return nil
	}
	return fmt.Errorf("unknown STORE_BACKEND %q", a.Config.StoreBackend)
}

// NewDevice selects the capture device.
func NewDevice(cfg config.App) (device.Device, error) {
	switch cfg.Device {
	case DeviceWebcam:
		return device.NewWebcam(cfg.DevicePath), nil
	case DeviceSynthetic, "":
		return device.NewSynthetic(300 * time.Millisecond), nil
	}
	return nil, fmt.Errorf("unknown DEVICE %q", cfg.Device)
}

// Queue opens the audit queue.
func (a *App) Queue() (queue.Queue, error) {
	switch a.Config.QueueBackend {
	case BackendMemory:
		return queue.NewInMemory(64), nil
	case BackendRedis, "":
		if a.Redis == nil {
			a.Redis = store.NewRedis(a.Config.RedisAddr)
		}
		return queue.NewRedisQueue(a.Redis.Client, queue.DefaultRedisKey), nil
	}
	return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", a.Config.QueueBackend)
}

// NewUploader returns the Cloudinary uploader, or nil when it is not
// configured.
func NewUploader(cfg config.App, log *zap.Logger) archive.Uploader {
	cdn := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if !cdn.Configured() {
		log.Warn("cloudinary not configured, audits are only logged")
		return nil
	}
	log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	return cdn
}

// ScanConfig is the session configuration derived from config.
func (a *App) ScanConfig() scan.Config {
	return scan.Config{
		Constraints: device.Constraints{
			FacingMode:  device.DefaultConstraints().FacingMode,
			IdealWidth:  a.Config.CameraWidth,
			IdealHeight: a.Config.CameraHeight,
		},
		Step:     a.Config.ScanStep,
		Interval: a.Config.ScanInterval,
		Quality:  a.Config.CaptureQuality,
	}
}

// Close releases backend connections.
func (a *App) Close() error {
	return errors.Join(a.DB.Close(), a.Redis.Close())
}
