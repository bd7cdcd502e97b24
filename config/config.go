package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the EcoWing service
type Config struct {
	// Server configuration
	Port        string
	LogLevel    string
	CORSOrigins []string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Detection provider: qwen, gemini or stub
	DetectionProvider string
	DashScopeAPIKey   string
	QwenBaseURL       string
	QwenModel         string
	GeminiAPIKey      string
	GeminiModel       string
	DetectionTimeout  time.Duration

	// Uploads
	MaxUploadBytes    int64
	ImageTargetBytes  int
	ImageMaxDimension int
	StoreMedia        bool

	// Geocoding
	NominatimURL     string
	GeocodeUserAgent string
	GeocodeCacheTTL  time.Duration
	ExpandURLTimeout time.Duration

	// RabbitMQ
	AMQPHost           string
	AMQPPort           string
	AMQPUser           string
	AMQPPassword       string
	RabbitMQExchange   string
	RabbitMQRoutingKey string

	// Sites
	TopSitesLimit int

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Auth
	AdminUsername     string
	AdminPasswordHash string
	JWTSecret         string
	JWTTTL            time.Duration

	// Scheduled jobs
	SnapshotSchedule   string
	CachePurgeSchedule string

	// History file imported at startup, if set
	ImportFile string
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load .env file: %v", err)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getStringSliceEnv("CORS_ORIGINS", "*"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "ecowing"),

		DetectionProvider: strings.ToLower(getEnv("DETECTION_PROVIDER", "qwen")),
		DashScopeAPIKey:   getEnv("DASHSCOPE_API_KEY", ""),
		QwenBaseURL:       getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"),
		QwenModel:         getEnv("QWEN_MODEL", "qwen-vl-plus"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		DetectionTimeout:  getDurationEnv("DETECTION_TIMEOUT", 60*time.Second),

		MaxUploadBytes:    int64(getIntEnv("MAX_UPLOAD_BYTES", 100<<20)),
		ImageTargetBytes:  getIntEnv("IMAGE_TARGET_BYTES", 9_961_472),
		ImageMaxDimension: getIntEnv("IMAGE_MAX_DIMENSION", 1920),
		StoreMedia:        getBoolEnv("STORE_MEDIA", true),

		NominatimURL:     getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		GeocodeUserAgent: getEnv("GEOCODE_USER_AGENT", "EcoWing/1.0 (coastal waste monitoring)"),
		GeocodeCacheTTL:  getDurationEnv("GEOCODE_CACHE_TTL", 30*24*time.Hour),
		ExpandURLTimeout: getDurationEnv("EXPAND_URL_TIMEOUT", 5*time.Second),

		AMQPHost:           getEnv("AMQP_HOST", ""),
		AMQPPort:           getEnv("AMQP_PORT", "5672"),
		AMQPUser:           getEnv("AMQP_USER", "guest"),
		AMQPPassword:       getEnv("AMQP_PASSWORD", "guest"),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "ecowing"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "report.created"),

		TopSitesLimit: getIntEnv("TOP_SITES_LIMIT", 10),

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),

		AdminUsername:     getEnv("ADMIN_USERNAME", "ecowing"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTTTL:            getDurationEnv("JWT_TTL", 12*time.Hour),

		SnapshotSchedule:   getEnv("SNAPSHOT_SCHEDULE", "@every 1m"),
		CachePurgeSchedule: getEnv("CACHE_PURGE_SCHEDULE", "@daily"),

		ImportFile: getEnv("IMPORT_FILE", ""),
	}
}

// AMQPURL returns the broker URL, or "" when no broker is configured.
func (c *Config) AMQPURL() string {
	if c.AMQPHost == "" {
		return ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s", c.AMQPUser, c.AMQPPassword, c.AMQPHost, c.AMQPPort)
}

// DSN returns the MySQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// getStringSliceEnv gets a comma-separated string environment variable and returns it as a string slice
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
