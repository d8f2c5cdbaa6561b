// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// Config holds the process settings read from the environment (and .env, if present).
type Config struct {
	Port     string
	LogLevel logrus.Level

	TextMinLength    int
	CountdownSeconds int
	WikipediaAPIURL  string

	RedisAddr string
	RedisDB   int
	QueueName string

	PostgresUser     string
	PostgresPassword string
	PGHost           string
	PGPort           string
	PGDatabase       string

	HistorianBatchSize int
	HistorianFlush     time.Duration
}

// Load reads the configuration. Unset or malformed values fall back to their defaults.
func Load() Config {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "debug"))
	if err != nil {
		level = logrus.DebugLevel
	}
	return Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: level,

		TextMinLength:    getEnvInt("TEXT_MIN_LENGTH", 250),
		CountdownSeconds: getEnvInt("COUNTDOWN_SECONDS", 5),
		WikipediaAPIURL:  getEnv("WIKIPEDIA_API_URL", "https://en.wikipedia.org/w/api.php"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		QueueName: getEnv("RACE_QUEUE_NAME", "typerace_events"),

		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PGHost:           getEnv("PG_HOST", "localhost"),
		PGPort:           getEnv("PG_PORT", "5432"),
		PGDatabase:       getEnv("PG_DATABASE", "typerace"),

		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
	}
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an environment variable as an int or returns a default.
func getEnvInt(key string, defVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defVal
	}
	return val
}
