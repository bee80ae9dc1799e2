// Package config provides configuration for the chat server and the admin console.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the chat server configuration.
type Config struct {
	// Server settings
	HTTPPort        int
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Database
	DatabaseURL string

	// Auth settings: bearer token -> admin id
	AdminTokens map[string]string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel string
}

// ConsoleConfig holds defaults for the admin console client.
type ConsoleConfig struct {
	APIURL         string
	WSURL          string
	VisitorWSURL   string
	Token          string
	AdminID        string
	PageSize       int
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Compact        bool
}

// Load loads the server configuration from the environment, reading a
// local .env file first when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_MS", 10000)) * time.Millisecond,
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		DatabaseURL:     getEnv("DATABASE_URL", "file:livechat.db?cache=shared&mode=rwc&_busy_timeout=5000&_txlock=immediate"),
		AdminTokens:     ParseAdminTokens(getEnv("ADMIN_TOKENS", "")),
		PingInterval:    time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:    time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:     time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize:  int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// LoadConsole loads console defaults from the environment.
func LoadConsole() *ConsoleConfig {
	_ = godotenv.Load()

	return &ConsoleConfig{
		APIURL:         getEnv("CHAT_API_URL", "http://localhost:8080"),
		WSURL:          getEnv("CHAT_WS_URL", "ws://localhost:8080/ws/admin-notifications"),
		VisitorWSURL:   getEnv("CHAT_VISITOR_WS_URL", "ws://localhost:8080/ws/chat"),
		Token:          getEnv("CHAT_TOKEN", ""),
		AdminID:        getEnv("CHAT_ADMIN_ID", ""),
		PageSize:       getEnvInt("CHAT_PAGE_SIZE", 20),
		PollInterval:   time.Duration(getEnvInt("CHAT_POLL_INTERVAL_MS", 30000)) * time.Millisecond,
		RequestTimeout: time.Duration(getEnvInt("CHAT_REQUEST_TIMEOUT_MS", 10000)) * time.Millisecond,
		Compact:        getEnv("CHAT_COMPACT", "") == "1",
	}
}

// ParseAdminTokens parses "token:admin_id,token2:admin_id2".
// Malformed entries are skipped.
func ParseAdminTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range splitList(raw) {
		token, adminID, ok := strings.Cut(pair, ":")
		token, adminID = strings.TrimSpace(token), strings.TrimSpace(adminID)
		if !ok || token == "" || adminID == "" {
			continue
		}
		tokens[token] = adminID
	}
	return tokens
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

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
