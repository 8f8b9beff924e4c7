package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 2, cfg.ScanStep)
	assert.Equal(t, 50*time.Millisecond, cfg.ScanInterval)
	assert.Equal(t, 80, cfg.CaptureQuality)
	assert.Equal(t, 1280, cfg.CameraWidth)
	assert.Equal(t, 720, cfg.CameraHeight)
	assert.Equal(t, "synthetic", cfg.Device)
	assert.False(t, cfg.Production())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SCAN_INTERVAL", "10ms")
	t.Setenv("SCAN_STEP", "5")
	t.Setenv("ACCESS_TTL", "not-a-duration")
	t.Setenv("TIMEZONE", "UTC")

	cfg := Load()

	assert.True(t, cfg.Production())
	assert.Equal(t, 10*time.Millisecond, cfg.ScanInterval)
	assert.Equal(t, 5, cfg.ScanStep)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestLocationFallsBack(t *testing.T) {
	cfg := App{Timezone: "Nowhere/Special"}
	assert.Equal(t, time.Local, cfg.Location())
}
