package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Sources to run, comma separated: crexi, loopnet, rmi.
	Sources []string

	CrexiBaseURL     string
	CrexiAuctionsURL string
	LoopNetBaseURL   string
	RMIBaseURL       string
	RMIPageLimit     int

	MaxRetries           int
	RetryDelayMs         int
	DelayBetweenRequests int // ms, inter-item pacing in the orchestrator
	SessionRotationLimit int
	TimeoutS             int
	Headless             bool

	OutputDir string
	WriteJSON bool
	ChromeBin string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "auctions_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		Sources: splitList(getEnv("SOURCES", "crexi,loopnet,rmi")),

		CrexiBaseURL:     getEnv("CREXI_BASE_URL", "https://www.crexi.com"),
		CrexiAuctionsURL: getEnv("CREXI_AUCTIONS_URL", "https://www.crexi.com/properties/Auctions?pageSize=60"),
		LoopNetBaseURL:   getEnv("LOOPNET_BASE_URL", "https://www.loopnet.com/search/commercial-real-estate/usa/auctions/"),
		RMIBaseURL:       getEnv("RMI_BASE_URL", "https://api.rimarketplace.com/api"),
		RMIPageLimit:     getEnvInt("RMI_PAGE_LIMIT", 60),

		MaxRetries:           getEnvInt("MAX_RETRIES", 3),
		RetryDelayMs:         getEnvInt("RETRY_DELAY_MS", 2000),
		DelayBetweenRequests: getEnvInt("DELAY_BETWEEN_REQUESTS_MS", 1000),
		SessionRotationLimit: getEnvInt("SESSION_ROTATION_LIMIT", 25),
		TimeoutS:             getEnvInt("TIMEOUT_S", 30),
		Headless:             getEnvBool("HEADLESS", true),

		OutputDir: getEnv("OUTPUT_DIR", "./output"),
		WriteJSON: getEnvBool("WRITE_JSON", false),
		ChromeBin: getEnv("CHROME_BIN", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Timeout returns the per-operation timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// RetryDelay returns the base retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// RequestDelay returns the inter-item pacing delay as a duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.DelayBetweenRequests) * time.Millisecond
}

// SourceEnabled reports whether the named source was requested for this run.
func (c *Config) SourceEnabled(name string) bool {
	for _, s := range c.Sources {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
