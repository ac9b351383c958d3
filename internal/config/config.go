package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	// DBTxMode is "transactional" or "sequential". Sequential is for
	// deployments whose store cannot run multi-statement transactions
	// (e.g. PgBouncer in statement pooling mode).
	DBTxMode                string
	StockFallbackCompensate bool

	KhaltiSecretKey  string
	KhaltiBaseURL    string
	KhaltiReturnURL  string
	KhaltiWebsiteURL string
	GatewayTimeout   time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:                  os.Getenv("DB_HOST"),
		DBUser:                  os.Getenv("DB_USER"),
		DBPassword:              os.Getenv("DB_PASSWORD"),
		DBName:                  os.Getenv("DB_NAME"),
		DBPort:                  os.Getenv("DB_PORT"),
		AppPort:                 getEnv("APP_PORT", "8080"),
		AppEnv:                  os.Getenv("APP_ENV"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		DBTxMode:                getEnv("DB_TX_MODE", "transactional"),
		StockFallbackCompensate: getBool("STOCK_FALLBACK_COMPENSATE", true),
		KhaltiSecretKey:         os.Getenv("KHALTI_SECRET_KEY"),
		KhaltiBaseURL:           getEnv("KHALTI_BASE_URL", "https://dev.khalti.com/api/v2"),
		KhaltiReturnURL:         os.Getenv("KHALTI_RETURN_URL"),
		KhaltiWebsiteURL:        os.Getenv("KHALTI_WEBSITE_URL"),
		GatewayTimeout:          getDuration("GATEWAY_TIMEOUT", 15*time.Second),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
