package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "badger", cfg.StoreDriver)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "store"), cfg.BadgerDir)
	assert.Equal(t, "", cfg.ImportDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 44100, cfg.CaptureSampleRate)
	assert.Equal(t, 1, cfg.CaptureChannels)
	assert.Equal(t, "memofm", cfg.MinioBucket)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.MinioUseSSL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("DATA_DIR", "/tmp/memofm")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("CAPTURE_SAMPLE_RATE", "16000")
	t.Setenv("CAPTURE_FORMAT", "pulse")

	cfg := Load()

	assert.Equal(t, "127.0.0.1:9090", cfg.HTTPAddr)
	assert.Equal(t, "redis", cfg.StoreDriver)
	assert.Equal(t, "/tmp/memofm", cfg.DataDir)
	// BadgerDir follows DATA_DIR unless set explicitly
	assert.Equal(t, filepath.Join("/tmp/memofm", "store"), cfg.BadgerDir)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 16000, cfg.CaptureSampleRate)
	assert.Equal(t, "pulse", cfg.CaptureFormat)
}

func TestDerivedToolPaths(t *testing.T) {
	cfg := &Config{FFmpegPath: "/usr/local/bin/ffmpeg"}
	assert.Equal(t, "/usr/local/bin/ffprobe", cfg.FFprobePath())
	assert.Equal(t, "/usr/local/bin/ffplay", cfg.FFplayPath())

	// 路径里认不出 ffmpeg 时退回工具名，交给 PATH 解析
	cfg = &Config{FFmpegPath: "/opt/av/encoder"}
	assert.Equal(t, "ffprobe", cfg.FFprobePath())
	assert.Equal(t, "ffplay", cfg.FFplayPath())
}

func TestLoadBadNumericFallsBack(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "not-a-bool")

	cfg := Load()

	assert.Equal(t, 0, cfg.RedisDB)
	assert.False(t, cfg.MinioUseSSL)
}
