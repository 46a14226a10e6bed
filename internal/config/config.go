package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	ListenAddr   string
	JWTSecret    string

	GroupID int32

	WebpayBaseURL      string
	WebpayCommerceCode string
	WebpayAPIKey       string
	WebpayReturnURL    string

	InvoiceEndpoint string
	UFAPIURL        string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryJitter      time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using environment", "error", err)
	}

	cfg := &Config{
		PostgresDSN:        getenv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=marketplace sslmode=disable"),
		RedisAddr:          getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:       []string{getenv("KAFKA_BROKER", "localhost:9092")},
		ListenAddr:         getenv("LISTEN_ADDR", ":8080"),
		JWTSecret:          getenv("JWT_SECRET", "supersecret"),
		GroupID:            int32(getint("GROUP_ID", 9)),
		WebpayBaseURL:      getenv("WEBPAY_BASE_URL", "https://webpay3gint.transbank.cl"),
		WebpayCommerceCode: getenv("WEBPAY_COMMERCE_CODE", "597055555532"),
		WebpayAPIKey:       getenv("WEBPAY_API_KEY", ""),
		WebpayReturnURL:    getenv("WEBPAY_RETURN_URL", ""),
		InvoiceEndpoint:    getenv("INVOICE_ENDPOINT", ""),
		UFAPIURL:           getenv("UF_API_URL", "https://mindicador.cl/api/uf"),
		RetryMaxAttempts:   getint("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:     getdur("RETRY_BASE_DELAY_MS", 200),
		RetryMaxDelay:      getdur("RETRY_MAX_DELAY_MS", 5000),
		RetryJitter:        getdur("RETRY_JITTER_MS", 100),
	}

	slog.Info("config loaded",
		"group_id", cfg.GroupID,
		"kafka_brokers", cfg.KafkaBrokers,
		"redis_addr", cfg.RedisAddr,
		"listen_addr", cfg.ListenAddr)
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v)
		return def
	}
	return n
}

func getdur(key string, defMillis int) time.Duration {
	return time.Duration(getint(key, defMillis)) * time.Millisecond
}
