// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envListenAddr         = "MCP_LISTEN_ADDR"
	envUpstreamURL        = "MCP_UPSTREAM_URL"
	envAPIKey             = "MCP_API_KEY"
	envAPISecret          = "MCP_API_SECRET"
	envRequestTimeout     = "MCP_REQUEST_TIMEOUT"
	envInsecureSkipVerify = "MCP_UPSTREAM_INSECURE"
	envLogLevel           = "MCP_LOG_LEVEL"
	envServerReadTimeout  = "MCP_SERVER_READ_TIMEOUT"
	envServerWriteTimeout = "MCP_SERVER_WRITE_TIMEOUT"
	envServerIdleTimeout  = "MCP_SERVER_IDLE_TIMEOUT"
	envGracefulShutdown   = "MCP_GRACEFUL_SHUTDOWN"
	envSessionTTL         = "MCP_SESSION_TTL"
	envSessionMaxEntries  = "MCP_SESSION_MAX_ENTRIES"
	envStaticDir          = "MCP_STATIC_DIR"
	envChatTool           = "MCP_CHAT_TOOL"

	defaultListenAddr        = "127.0.0.1:8080"
	defaultLogLevel          = "info"
	defaultServerReadTimeout = 30 * time.Second
	defaultServerIdleTimeout = 120 * time.Second
	defaultGracefulShutdown  = 10 * time.Second
	defaultSessionTTL        = 30 * time.Minute
	defaultSessionMaxEntries = 10000
	defaultStaticDir         = "web"
	defaultChatTool          = "chat"
)

// Config captures runtime settings for the proxy.
type Config struct {
	ListenAddr string
	Upstream   *url.URL
	// APIKey and APISecret enable HMAC signing of upstream requests when both
	// are set. Leave both empty against an unprotected upstream.
	APIKey    string
	APISecret string
	// RequestTimeout bounds each upstream call; zero waits indefinitely, which
	// is the default since MCP tool calls can legitimately run for minutes.
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
	LogLevel           string
	ServerReadTimeout  time.Duration
	// ServerWriteTimeout defaults to zero so slow upstream calls are not cut
	// off mid-response.
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
	// SessionTTL and SessionMaxEntries bound the session table; zero disables
	// the respective limit.
	SessionTTL        time.Duration
	SessionMaxEntries int
	StaticDir         string
	ChatTool          string
}

// Load reads configuration from environment variables and validates required
// values. A .env file in the working directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	upstreamRaw := strings.TrimSpace(os.Getenv(envUpstreamURL))
	if upstreamRaw == "" {
		return Config{}, errors.New("MCP_UPSTREAM_URL is required")
	}

	upstream, err := url.Parse(upstreamRaw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MCP_UPSTREAM_URL: %w", err)
	}
	if !upstream.IsAbs() {
		return Config{}, errors.New("MCP_UPSTREAM_URL must be absolute (scheme://host)")
	}

	apiKey := strings.TrimSpace(os.Getenv(envAPIKey))
	apiSecret := strings.TrimSpace(os.Getenv(envAPISecret))
	if (apiKey == "") != (apiSecret == "") {
		return Config{}, errors.New("MCP_API_KEY and MCP_API_SECRET must be set together")
	}

	cfg := Config{
		ListenAddr:              getString(envListenAddr, defaultListenAddr),
		Upstream:                upstream,
		APIKey:                  apiKey,
		APISecret:               apiSecret,
		RequestTimeout:          getDuration(envRequestTimeout, 0),
		InsecureSkipVerify:      getBool(envInsecureSkipVerify, false),
		LogLevel:                strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		ServerReadTimeout:       getDuration(envServerReadTimeout, defaultServerReadTimeout),
		ServerWriteTimeout:      getDuration(envServerWriteTimeout, 0),
		ServerIdleTimeout:       getDuration(envServerIdleTimeout, defaultServerIdleTimeout),
		GracefulShutdownTimeout: getDuration(envGracefulShutdown, defaultGracefulShutdown),
		SessionTTL:              getDuration(envSessionTTL, defaultSessionTTL),
		SessionMaxEntries:       getInt(envSessionMaxEntries, defaultSessionMaxEntries),
		StaticDir:               getString(envStaticDir, defaultStaticDir),
		ChatTool:                getString(envChatTool, defaultChatTool),
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
