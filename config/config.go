package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	AWS        AWSConfig
	Media      MediaConfig
	Transcribe TranscribeConfig
	Whisper    WhisperConfig
	TencentASR TencentASRConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/linguaclip?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the optional media archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	MediaBucket          string
	PresignExpireMinutes int
}

// MediaConfig holds local media file storage settings.
type MediaConfig struct {
	Dir         string // directory holding downloaded media files
	MaxUploadMB int
}

// TranscribeConfig selects the transcription backend.
// Mode is an explicit deployment choice; adapters are injected at
// construction, never picked by sniffing the environment at call time.
type TranscribeConfig struct {
	Mode string // "whisper" (local CLI) or "tencent" (remote ASR)
}

// WhisperConfig holds local whisper CLI settings.
type WhisperConfig struct {
	BinPath    string // whisper executable (openai-whisper or whisper.cpp)
	FFmpegPath string
	Model      string
	Threads    int
}

// TencentASRConfig holds credentials and polling settings for Tencent cloud ASR.
type TencentASRConfig struct {
	SecretID        string
	SecretKey       string
	Region          string
	EngineModelType string // e.g. 16k_zh, 16k_en
	PollInterval    time.Duration
	MaxPollAttempts int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))
	pollSec, _ := strconv.Atoi(getEnv("TENCENT_ASR_POLL_INTERVAL_SEC", "3"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/linguaclip?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "linguaclip"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MediaBucket:          getEnv("AWS_S3_MEDIA_BUCKET", "linguaclip-media-bucket"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Media: MediaConfig{
			Dir:         getEnv("MEDIA_DIR", "./media"),
			MaxUploadMB: getEnvInt("MEDIA_MAX_UPLOAD_MB", 200),
		},
		Transcribe: TranscribeConfig{
			Mode: strings.ToLower(getEnv("TRANSCRIBE_MODE", "whisper")),
		},
		Whisper: WhisperConfig{
			BinPath:    getEnv("WHISPER_BIN", "whisper"),
			FFmpegPath: getEnv("FFMPEG_BIN", "ffmpeg"),
			Model:      getEnv("WHISPER_MODEL", "base"),
			Threads:    getEnvInt("WHISPER_THREADS", 4),
		},
		TencentASR: TencentASRConfig{
			SecretID:        getEnv("TENCENT_SECRET_ID", ""),
			SecretKey:       getEnv("TENCENT_SECRET_KEY", ""),
			Region:          getEnv("TENCENT_REGION", "ap-shanghai"),
			EngineModelType: getEnv("TENCENT_ASR_ENGINE_MODEL", "16k_zh"),
			PollInterval:    time.Duration(pollSec) * time.Second,
			MaxPollAttempts: getEnvInt("TENCENT_ASR_MAX_POLL_ATTEMPTS", 100),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
