package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port               string
	DatabaseURL        string
	JWTSecret          string
	TokenTTL           time.Duration
	LogLevel           logrus.Level
	CORSAllowedOrigins []string
	TokenRateLimit     int
	RunMigrations      bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using system environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // default port
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}

	expireMinutes, err := intEnv("ACCESS_TOKEN_EXPIRE_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	if expireMinutes <= 0 {
		return nil, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}

	logLevel := logrus.InfoLevel
	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		logLevel, err = logrus.ParseLevel(levelStr)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if originsStr := os.Getenv("CORS_ALLOWED_ORIGINS"); originsStr != "" {
		origins = origins[:0]
		for _, origin := range strings.Split(originsStr, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}

	rateLimit, err := intEnv("TOKEN_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	if rateLimit <= 0 {
		return nil, errors.New("TOKEN_RATE_LIMIT must be positive")
	}

	runMigrations := true
	if migrateStr := os.Getenv("RUN_MIGRATIONS"); migrateStr != "" {
		runMigrations, err = strconv.ParseBool(migrateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid RUN_MIGRATIONS: %w", err)
		}
	}

	return &Config{
		Port:               port,
		DatabaseURL:        dbURL,
		JWTSecret:          jwtSecret,
		TokenTTL:           time.Duration(expireMinutes) * time.Minute,
		LogLevel:           logLevel,
		CORSAllowedOrigins: origins,
		TokenRateLimit:     rateLimit,
		RunMigrations:      runMigrations,
	}, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
