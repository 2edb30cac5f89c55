package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// dotenvFiles are loaded in order when present. Variables already set in the
// environment always win.
var dotenvFiles = []string{".env.local", ".env"}

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port              string
	AuthToken         string
	DBURL             string
	TMDBBaseURL       string
	TMDBAPIKey        string
	TMDBRegion        string
	TMDBMaxRetries    int
	TMDBTimeoutMS     int
	TMDBRetryBaseMS   int
	SearchRatePerMin  int
	SearchRateBurst   int
	LogFile           string
	LogMaxSizeMB      int
	LogMaxBackups     int
	ReadTimeoutSecs   int
	WriteTimeoutSecs  int
	IdleTimeoutSecs   int
	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int
	DBAutoMigrate     bool
}

// Load reads configuration from environment variables, applying defaults and validation.
// TMDB_API_KEY is deliberately not validated here; the catalog client reports it on first use.
func Load() (Config, error) {
	if err := loadDotenv(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		AuthToken:         os.Getenv("AUTH_TOKEN"),
		DBURL:             os.Getenv("DB_URL"),
		TMDBBaseURL:       getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBAPIKey:        os.Getenv("TMDB_API_KEY"),
		TMDBRegion:        getEnv("TMDB_REGION", "IN"),
		TMDBMaxRetries:    getEnvInt("TMDB_MAX_RETRIES", 2),
		TMDBTimeoutMS:     getEnvInt("TMDB_TIMEOUT_MS", 8000),
		TMDBRetryBaseMS:   getEnvInt("TMDB_RETRY_BASE_MS", 250),
		SearchRatePerMin:  getEnvInt("SEARCH_RATE_PER_MIN", 60),
		SearchRateBurst:   getEnvInt("SEARCH_RATE_BURST", 10),
		LogFile:           os.Getenv("LOG_FILE"),
		LogMaxSizeMB:      getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups:     getEnvInt("LOG_MAX_BACKUPS", 3),
		ReadTimeoutSecs:   getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:  getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:   getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:     getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:     getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs: getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:  getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		DBAutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
	}

	if cfg.AuthToken == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if len(cfg.TMDBRegion) != 2 {
		return Config{}, fmt.Errorf("TMDB_REGION must be a two-letter region code")
	}
	if cfg.TMDBMaxRetries < 0 {
		return Config{}, fmt.Errorf("TMDB_MAX_RETRIES must be non-negative")
	}
	if cfg.TMDBTimeoutMS <= 0 {
		return Config{}, fmt.Errorf("TMDB_TIMEOUT_MS must be positive")
	}
	if cfg.TMDBRetryBaseMS <= 0 {
		return Config{}, fmt.Errorf("TMDB_RETRY_BASE_MS must be positive")
	}
	if cfg.SearchRatePerMin <= 0 {
		return Config{}, fmt.Errorf("SEARCH_RATE_PER_MIN must be positive")
	}
	if cfg.SearchRateBurst <= 0 {
		return Config{}, fmt.Errorf("SEARCH_RATE_BURST must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}

	return cfg, nil
}

func loadDotenv() error {
	for _, name := range dotenvFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
