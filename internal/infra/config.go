package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	DatabaseURL string
	DBMaxConns  int32

	// Admin HTTP surface.
	AdminPort        string
	AdminToken       string
	GeoIPDBPath      string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// File lifecycle store.
	StoragePath   string
	PublicBaseURL string
	MaxFileSize   int64

	// Generation platform (both routes share the base URL and key pair).
	PlatformBaseURL   string
	PlatformAPIKey    string
	PlatformAPISecret string
	GenerationTimeout time.Duration
	PollInterval      time.Duration
	UploadCacheTTL    time.Duration

	// Prompt assistant (chat-completion compatible endpoint).
	AssistBaseURL string
	AssistAPIKey  string
	AssistModel   string

	// Credit economics.
	GenerationCost      float64
	CreditRequestAmount float64
	InitialCredits      float64
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 0)),

		AdminPort:        getEnv("ADMIN_PORT", "5000"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		StoragePath:   getEnv("STORAGE_PATH", "./storage/users"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:5000"),
		MaxFileSize:   int64(getEnvInt("MAX_FILE_SIZE", 10*1024*1024)),

		PlatformBaseURL:   getEnv("PLATFORM_BASE_URL", "https://platform.higgsfield.ai"),
		PlatformAPIKey:    os.Getenv("PLATFORM_API_KEY"),
		PlatformAPISecret: os.Getenv("PLATFORM_API_SECRET"),
		GenerationTimeout: time.Second * time.Duration(getEnvInt("API_GENERATION_TIMEOUT_SECONDS", 300)),
		PollInterval:      time.Second * time.Duration(getEnvInt("API_POLL_INTERVAL_SECONDS", 5)),
		UploadCacheTTL:    24 * time.Hour * time.Duration(getEnvInt("FILE_CACHE_TTL_DAYS", 7)),

		AssistBaseURL: getEnv("ASSIST_BASE_URL", "https://api.deepseek.com"),
		AssistAPIKey:  os.Getenv("ASSIST_API_KEY"),
		AssistModel:   getEnv("ASSIST_MODEL", "deepseek-chat"),

		GenerationCost:      getEnvFloat("GENERATION_CREDIT_COST", 50),
		CreditRequestAmount: getEnvFloat("CREDIT_REQUEST_AMOUNT", 1000),
		InitialCredits:      getEnvFloat("INITIAL_USER_CREDITS", 10000),
	}

	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.PlatformAPIKey == "" {
		return nil, fmt.Errorf("PLATFORM_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
