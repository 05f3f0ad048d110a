package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort    string
	AppMode    string
	DBURL      string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	JWTSecret  string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	StoreBackend string
	BusBackend   string

	StatusPollInterval time.Duration
	LabelCacheTTL      time.Duration
	MessageRateLimit   int

	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:            getEnv("APP_PORT", "8080"),
		AppMode:            getEnv("APP_MODE", "debug"),
		DBURL:              getEnv("DB_URL", ""),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "support_chat"),
		DBPort:             getEnv("DB_PORT", "5432"),
		JWTSecret:          getEnv("JWT_SECRET", "change-me"),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		StoreBackend:       getEnv("STORE_BACKEND", "postgres"),
		BusBackend:         getEnv("BUS_BACKEND", "redis"),
		StatusPollInterval: time.Duration(getEnvAsInt("STATUS_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		LabelCacheTTL:      time.Duration(getEnvAsInt("LABEL_CACHE_TTL_SEC", 300)) * time.Second,
		MessageRateLimit:   getEnvAsInt("MESSAGE_RATE_LIMIT", 30),
		S3Region:           getEnv("S3_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:        getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
	}
}

// DSN returns DB_URL when set, otherwise a URL assembled from the DB_* parts.
func (c *Config) DSN() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// ArchiveEnabled reports whether transcripts should be archived to S3 before delete.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Region != "" && c.S3Bucket != ""
}

// InMemory reports whether the api should run without Postgres.
func (c *Config) InMemory() bool {
	return c.StoreBackend == "memory"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
