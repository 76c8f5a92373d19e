package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported database drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Config contains application configuration parameters
type Config struct {
	// Server configuration
	Port         string        `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`

	// Telegram Bot configuration
	Token       string `json:"token"`
	AdminToken  string `json:"admin_token"`
	AdminChatID int64  `json:"admin_chat_id"`

	// Database configuration
	DBDriver        string        `json:"db_driver"`
	DBHost          string        `json:"db_host"`
	DBPort          int           `json:"db_port"`
	DBUser          string        `json:"db_user"`
	DBPassword      string        `json:"-"`
	DBName          string        `json:"db_name"`
	DBPath          string        `json:"db_path"`
	MaxOpenConns    int           `json:"max_open_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	InsertTimeout   time.Duration `json:"insert_timeout"`

	// Conversation configuration
	SocialPlatforms []string      `json:"social_platforms"`
	SessionTTL      time.Duration `json:"session_ttl"`

	// App configuration
	Environment string `json:"environment"` // development, production
	LogLevel    string `json:"log_level"`   // debug, info, warn, error

	// Rate limiting
	RedisURL          string        `json:"redis_url"`
	RateLimitRequests int           `json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
}

// NewConfig creates and returns a new configuration instance.
// Values from a local .env file are loaded first; real environment variables win.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Server defaults
		Port:         ":8081",
		Host:         "0.0.0.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,

		// Database defaults
		DBDriver:        DriverMySQL,
		DBPort:          3306,
		DBName:          "registrations",
		DBPath:          "./data/",
		MaxOpenConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		InsertTimeout:   10 * time.Second,

		SocialPlatforms: []string{"Instagram", "VK", "Telegram"},
		SessionTTL:      24 * time.Hour,

		// App defaults
		Environment: "development",
		LogLevel:    "info",

		// Rate limiting defaults
		RateLimitRequests: 30,
		RateLimitWindow:   time.Minute,
	}

	if port := os.Getenv("PORT"); port != "" {
		if port[0] != ':' {
			cfg.Port = ":" + port
		} else {
			cfg.Port = port
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}

	if token := os.Getenv("BOT_TOKEN"); token != "" {
		cfg.Token = token
	} else if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Token = token
	}

	if adminToken := os.Getenv("ADMIN_TOKEN"); adminToken != "" {
		cfg.AdminToken = adminToken
	}

	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.DBDriver = driver
	}

	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.DBHost = dbHost
	}

	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.DBUser = dbUser
	}

	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.DBPassword = dbPassword
	}

	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.DBName = dbName
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.RedisURL = redisURL
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if platforms := os.Getenv("SOCIAL_PLATFORMS"); platforms != "" {
		cfg.SocialPlatforms = splitList(platforms)
	}

	// Parse numeric environment variables
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		port, err := strconv.Atoi(dbPort)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT %q: %w", dbPort, err)
		}
		cfg.DBPort = port
	}

	if adminChatID := os.Getenv("ADMIN_CHAT_ID"); adminChatID != "" {
		id, err := strconv.ParseInt(adminChatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_CHAT_ID %q: %w", adminChatID, err)
		}
		cfg.AdminChatID = id
	}

	if maxOpenConns := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenConns != "" {
		if conns, err := strconv.Atoi(maxOpenConns); err == nil {
			cfg.MaxOpenConns = conns
		}
	}

	if rateLimitRequests := os.Getenv("RATE_LIMIT_REQUESTS"); rateLimitRequests != "" {
		if requests, err := strconv.Atoi(rateLimitRequests); err == nil {
			cfg.RateLimitRequests = requests
		}
	}

	// Parse duration environment variables
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"READ_TIMEOUT", &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout},
		{"DB_CONN_MAX_LIFETIME", &cfg.ConnMaxLifetime},
		{"DB_INSERT_TIMEOUT", &cfg.InsertTimeout},
		{"SESSION_TTL", &cfg.SessionTTL},
		{"RATE_LIMIT_WINDOW", &cfg.RateLimitWindow},
	}
	for _, d := range durations {
		raw := os.Getenv(d.key)
		if raw == "" {
			continue
		}
		value, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.key, raw, err)
		}
		*d.dst = value
	}

	return cfg, nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetDatabasePath returns the full path to the sqlite database file
func (c *Config) GetDatabasePath() string {
	return c.DBPath + c.DBName + ".db"
}

// GetDatabaseAddress returns host:port of the MySQL server
func (c *Config) GetDatabaseAddress() string {
	return fmt.Sprintf("%s:%d", c.DBHost, c.DBPort)
}

// GetServerAddress returns the server address
func (c *Config) GetServerAddress() string {
	return c.Host + c.Port
}

// RateLimitEnabled reports whether updates are throttled through Redis
func (c *Config) RateLimitEnabled() bool {
	return c.RedisURL != "" && c.RateLimitRequests > 0
}

// ValidateConfig validates the configuration
func (c *Config) ValidateConfig() error {
	if c.Token == "" {
		return fmt.Errorf("telegram bot token is required")
	}

	switch c.DBDriver {
	case DriverMySQL:
		if c.DBHost == "" {
			return fmt.Errorf("database host is required")
		}
		if c.DBUser == "" {
			return fmt.Errorf("database user is required")
		}
		if c.DBPort <= 0 || c.DBPort > 65535 {
			return fmt.Errorf("database port %d is out of range", c.DBPort)
		}
	case DriverSQLite:
		if c.IsProduction() {
			return fmt.Errorf("database driver %q is for development only, use %q in production", c.DBDriver, DriverMySQL)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}

	if c.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if c.InsertTimeout <= 0 {
		return fmt.Errorf("insert timeout must be positive")
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	if len(c.SocialPlatforms) == 0 {
		return fmt.Errorf("at least one social media platform is required")
	}

	seen := make(map[string]struct{}, len(c.SocialPlatforms))
	for _, p := range c.SocialPlatforms {
		if _, ok := seen[p]; ok {
			return fmt.Errorf("duplicate social media platform %q", p)
		}
		seen[p] = struct{}{}
	}

	if c.RateLimitEnabled() && c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
