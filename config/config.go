package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Fyers credentials
	FyersAppID      string
	FyersSecretKey  string
	FyersClientID   string
	FyersPIN        string
	FyersTOTPSecret string
	FyersTokenPath  string

	// XTS credentials
	XTSAppKey    string
	XTSSecretKey string
	XTSUserID    string
	XTSBaseURL   string
	XTSTokenPath string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	ListenAddr    string
	MetricsAddr   string

	// Notifications (optional; log notifier always active)
	TelegramBotToken string
	TelegramChatID   string
	NotifyWebhookURL string

	// Reference data
	DataDir           string
	AuditCSVDir       string
	DownloadOnStart   bool
	RefreshDaily      bool
	ReconcileOnSignal bool

	// Dedup window for repeated webhook deliveries
	DedupWindow time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first if
// present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	return &Config{
		FyersAppID:      mustEnv("FYERS_APP_ID"),
		FyersSecretKey:  mustEnv("FYERS_SECRET_KEY"),
		FyersClientID:   mustEnv("FYERS_CLIENT_ID"),
		FyersPIN:        mustEnv("FYERS_PIN"),
		FyersTOTPSecret: mustEnv("FYERS_TOTP_SECRET"),
		FyersTokenPath:  getEnv("FYERS_TOKEN_PATH", "data/fyers_token.txt"),

		XTSAppKey:    mustEnv("XTS_APP_KEY"),
		XTSSecretKey: mustEnv("XTS_SECRET_KEY"),
		XTSUserID:    mustEnv("XTS_USER_ID"),
		XTSBaseURL:   getEnv("XTS_BASE_URL", "https://xts.rmoneyindia.com:3000"),
		XTSTokenPath: getEnv("XTS_TOKEN_PATH", "data/xts_token.txt"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/bridge.db"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),

		DataDir:           getEnv("DATA_DIR", "data/symbols"),
		AuditCSVDir:       getEnv("AUDIT_CSV_DIR", "data/audit"),
		DownloadOnStart:   getBool("DOWNLOAD_ON_START", true),
		RefreshDaily:      getBool("REFRESH_DAILY", true),
		ReconcileOnSignal: getBool("RECONCILE_ON_SIGNAL", false),

		DedupWindow: getDuration("DEDUP_WINDOW", 10*time.Second),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
