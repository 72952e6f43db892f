package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

type Config struct {
	HTTPPort       int           `yaml:"http_port"`
	APIURL         string        `yaml:"api_url"`
	GoogleClientID string        `yaml:"google_client_id"`
	UserinfoURL    string        `yaml:"userinfo_url"`
	DBPath         string        `yaml:"db_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	SMTPAddr       string        `yaml:"smtp_addr"`
	SMTPUsername   string        `yaml:"smtp_username"`
	SMTPPassword   string        `yaml:"smtp_password"`
	ResendKey      string        `yaml:"resend_key"`
	TestSendFrom   string        `yaml:"test_send_from"`
	LogLevel       string        `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		HTTPPort:       3000,
		APIURL:         "http://localhost:4000",
		UserinfoURL:    DefaultUserinfoURL,
		DBPath:         "outboxlab.db",
		RequestTimeout: 15 * time.Second,
		AllowedOrigins: []string{"http://localhost:3000"},
		TestSendFrom:   "outboxlab@localhost",
		LogLevel:       "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// OUTBOXLAB_CONFIG, and finally the environment.
func Load() (Config, error) {
	cfg := defaults()
	if path := getEnvString("OUTBOXLAB_CONFIG", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.APIURL = strings.TrimRight(getEnvString("API_URL", cfg.APIURL), "/")
	cfg.GoogleClientID = getEnvString("GOOGLE_CLIENT_ID", cfg.GoogleClientID)
	cfg.UserinfoURL = getEnvString("USERINFO_URL", cfg.UserinfoURL)
	cfg.DBPath = getEnvRaw("DB_PATH", cfg.DBPath)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.SMTPAddr = getEnvString("SMTP_ADDR", cfg.SMTPAddr)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.ResendKey = getEnvString("RESEND_KEY", cfg.ResendKey)
	cfg.TestSendFrom = getEnvString("TEST_SEND_FROM", cfg.TestSendFrom)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

// SetupRequired reports whether the OAuth client identifier is missing, in which
// case the authenticated experience is replaced by setup instructions.
func (c Config) SetupRequired() bool {
	return strings.TrimSpace(c.GoogleClientID) == ""
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return nil
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// getEnvRaw lets an explicitly empty value through; DB_PATH="" selects in-memory storage.
func getEnvRaw(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
