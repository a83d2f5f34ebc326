package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL       string
	AuthPath     string
	Username     string
	Password     string
	HTTPTimeout  time.Duration
	TokenFile    string
	RedisAddr    string
	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	SizesFile    string
	WorkerCount  int
	OutputDir    string
	OTLPEndpoint string
	PushgateURL  string
	MetricsAddr  string
	LogLevel     string

	PollInterval    time.Duration
	PollMaxAttempts int
	RefreshInterval time.Duration
	DismissDelay    time.Duration
}

// Load reads .env files when present, then the environment. Variables
// already set in the environment take precedence over .env values.
func Load(envFiles ...string) *Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	return &Config{
		APIURL:       getEnv("IDPHOTO_API_URL", "http://localhost:8000/api/v1"),
		AuthPath:     getEnv("IDPHOTO_AUTH_PATH", "/auth"),
		Username:     getEnv("IDPHOTO_USERNAME", "test_user"),
		Password:     getEnv("IDPHOTO_PASSWORD", "test_password"),
		HTTPTimeout:  getEnvAsDuration("IDPHOTO_HTTP_TIMEOUT", 60*time.Second),
		TokenFile:    getEnv("IDPHOTO_TOKEN_FILE", defaultTokenFile()),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "idphoto.sessions"),
		KafkaGroup:   getEnv("KAFKA_GROUP", "idphoto-events"),
		SizesFile:    getEnv("IDPHOTO_SIZES_FILE", ""),
		WorkerCount:  getEnvAsInt("WORKER_COUNT", 4),
		OutputDir:    getEnv("IDPHOTO_OUTPUT_DIR", "."),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		PushgateURL:  getEnv("PUSHGATEWAY_URL", ""),
		MetricsAddr:  getEnv("METRICS_ADDR", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		PollInterval:    getEnvAsDuration("IDPHOTO_POLL_INTERVAL", time.Second),
		PollMaxAttempts: getEnvAsInt("IDPHOTO_POLL_MAX_ATTEMPTS", 30),
		RefreshInterval: getEnvAsDuration("IDPHOTO_REFRESH_INTERVAL", 30*time.Minute),
		DismissDelay:    getEnvAsDuration("IDPHOTO_DISMISS_DELAY", 3*time.Second),
	}
}

func defaultTokenFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".idphoto_token.json"
	}
	return dir + string(os.PathSeparator) + "idphoto" + string(os.PathSeparator) + "token.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
