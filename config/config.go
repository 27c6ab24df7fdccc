package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr  string // Listen address for the API server
	WebAppDir string // Path to the web application's UI files

	DataDir   string // Base directory for runtime data (clip temp files, default store)
	ImportDir string // Watched inbox directory; empty disables importing

	// 存储后端: badger / redis / minio / mysql
	StoreDriver string
	BadgerDir   string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// 音频采集与播放
	FFmpegPath        string
	CaptureFormat     string // ffmpeg输入设备类型: alsa / pulse / avfoundation / dshow
	CaptureDevice     string
	CaptureSampleRate int
	CaptureChannels   int

	// 日志配置
	LogLevel      string
	LogPath       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

// deriveFFmpegTool 按同目录安装的惯例从 ffmpeg 路径推导兄弟工具路径
func deriveFFmpegTool(ffmpegPath, tool string) string {
	if !strings.Contains(ffmpegPath, "ffmpeg") {
		return tool
	}
	return strings.Replace(ffmpegPath, "ffmpeg", tool, 1)
}

// FFprobePath returns the ffprobe binary next to the configured ffmpeg.
func (c *Config) FFprobePath() string {
	return deriveFFmpegTool(c.FFmpegPath, "ffprobe")
}

// FFplayPath returns the ffplay binary next to the configured ffmpeg.
func (c *Config) FFplayPath() string {
	return deriveFFmpegTool(c.FFmpegPath, "ffplay")
}

// defaultCaptureFormat picks the ffmpeg input device type for the platform.
func defaultCaptureFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "alsa"
	}
}

func defaultCaptureDevice() string {
	switch runtime.GOOS {
	case "darwin":
		return ":0" // 第一个音频输入设备
	case "windows":
		return "audio=default"
	default:
		return "default"
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		WebAppDir: getEnv("WEBAPP_DIR", filepath.Join("web", "ui")),

		DataDir:   dataDir,
		ImportDir: getEnv("IMPORT_DIR", ""), // 默认关闭导入

		StoreDriver: getEnv("STORE_DRIVER", "badger"),
		BadgerDir:   getEnv("BADGER_DIR", filepath.Join(dataDir, "store")),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "memofm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "memofm"),

		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		CaptureFormat:     getEnv("CAPTURE_FORMAT", defaultCaptureFormat()),
		CaptureDevice:     getEnv("CAPTURE_DEVICE", defaultCaptureDevice()),
		CaptureSampleRate: getEnvInt("CAPTURE_SAMPLE_RATE", 44100),
		CaptureChannels:   getEnvInt("CAPTURE_CHANNELS", 1),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", ""), // 为空时仅输出到控制台
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", false),
	}
}
