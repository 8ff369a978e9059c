// Package config implements the control plane's environment-driven
// configuration, following accumulated-error ValidateEnv
// style: every required variable is checked, every problem collected,
// and a single combined error returned rather than failing on the first
// miss.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ICEServer mirrors the ice-servers block handed to clients at join time
// (spec §6).
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// EngineConfig configures the media-engine worker pool this control plane drives.
type EngineConfig struct {
	NumWorkers                     int
	RTCMinPort                     int
	RTCMaxPort                     int
	ListenIPs                      []string
	InitialAvailableOutgoingBitrate int
	EnableUDP                       bool
	EnableTCP                       bool
	PreferUDP                       bool
	EnableSCTP                      bool
}

// AdapterConfig configures the media-engine resource adapter's housekeeping sweep.
type AdapterConfig struct {
	EnableAutoCleanup bool
	CleanupInterval   time.Duration
	ResourceMaxAge    time.Duration
}

// CallManagerConfig configures call bookkeeping and garbage collection.
type CallManagerConfig struct {
	AllowMultipleCalls bool
	EnableAutoCleanup  bool
	CleanupInterval    time.Duration
	CleanupMaxAge      time.Duration
}

// StateStoreConfig configures the shared room/session state backend.
type StateStoreConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port pair go-redis expects.
func (s StateStoreConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CredentialsConfig configures the API key/secret pair used to mint
// short-lived join tokens via POST /api/token.
type CredentialsConfig struct {
	APIKey    string
	APISecret string
	ExpiresIn time.Duration
}

// AuthConfig selects and configures the credential validator (component A).
type AuthConfig struct {
	SkipAuth     bool
	JWTSecret    string // HMAC mode
	JWKSDomain   string // JWKS mode
	JWKSAudience string
}

// Config holds validated environment configuration.
type Config struct {
	Port            string
	MediaEngineAddr string

	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string

	RateLimitAPIGlobal   string
	RateLimitAPIPublic   string
	RateLimitAPIRooms    string
	RateLimitAPIMessages string
	RateLimitWsIP        string
	RateLimitWsUser      string

	Auth        AuthConfig
	StateStore  StateStoreConfig
	Engine      EngineConfig
	Adapter     AdapterConfig
	CallManager CallManagerConfig
	Credentials CredentialsConfig
	ICEServers  []ICEServer
}

// ValidateEnv validates all required environment variables and returns a
// Config object, or a single combined error describing every problem found.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got %q)", cfg.Port))
	}

	cfg.MediaEngineAddr = os.Getenv("MEDIA_ENGINE_ADDR")
	if cfg.MediaEngineAddr == "" {
		errs = append(errs, "MEDIA_ENGINE_ADDR is required")
	} else if !isValidHostPort(cfg.MediaEngineAddr) {
		errs = append(errs, fmt.Sprintf("MEDIA_ENGINE_ADDR must be in format 'host:port' (got %q)", cfg.MediaEngineAddr))
	}

	cfg.Auth.SkipAuth = os.Getenv("SKIP_AUTH") == "true"
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.JWKSDomain = os.Getenv("JWKS_DOMAIN")
	cfg.Auth.JWKSAudience = os.Getenv("JWKS_AUDIENCE")
	if !cfg.Auth.SkipAuth {
		hasHMAC := cfg.Auth.JWTSecret != ""
		hasJWKS := cfg.Auth.JWKSDomain != "" && cfg.Auth.JWKSAudience != ""
		switch {
		case hasHMAC && len(cfg.Auth.JWTSecret) < 32:
			errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.Auth.JWTSecret)))
		case !hasHMAC && !hasJWKS:
			errs = append(errs, "either JWT_SECRET (HMAC mode) or JWKS_DOMAIN+JWKS_AUDIENCE (JWKS mode) is required unless SKIP_AUTH=true")
		}
	}

	cfg.StateStore.Enabled = os.Getenv("STATE_STORE_ENABLED") == "true"
	if cfg.StateStore.Enabled {
		addr := os.Getenv("STATE_STORE_ADDR")
		if addr == "" {
			addr = "localhost:6379"
			slog.Warn("STATE_STORE_ADDR not set, using default", "addr", addr)
		}
		host, port, err := splitHostPort(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("STATE_STORE_ADDR must be in format 'host:port' (got %q)", addr))
		} else {
			cfg.StateStore.Host = host
			cfg.StateStore.Port = port
		}
		cfg.StateStore.Password = os.Getenv("STATE_STORE_PASSWORD")
		cfg.StateStore.DB = getEnvIntOrDefault("STATE_STORE_DB", 0)
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitAPIMessages = getEnvOrDefault("RATE_LIMIT_API_MESSAGES", "500-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")

	cfg.Engine = EngineConfig{
		NumWorkers:                      getEnvIntOrDefault("ENGINE_NUM_WORKERS", 1),
		RTCMinPort:                      getEnvIntOrDefault("ENGINE_RTC_MIN_PORT", 40000),
		RTCMaxPort:                      getEnvIntOrDefault("ENGINE_RTC_MAX_PORT", 49999),
		ListenIPs:                       splitCSV(getEnvOrDefault("ENGINE_LISTEN_IPS", "0.0.0.0")),
		InitialAvailableOutgoingBitrate: getEnvIntOrDefault("ENGINE_INITIAL_OUTGOING_BITRATE", 600000),
		EnableUDP:                       getEnvBoolOrDefault("ENGINE_ENABLE_UDP", true),
		EnableTCP:                       getEnvBoolOrDefault("ENGINE_ENABLE_TCP", true),
		PreferUDP:                       getEnvBoolOrDefault("ENGINE_PREFER_UDP", true),
		EnableSCTP:                      getEnvBoolOrDefault("ENGINE_ENABLE_SCTP", true),
	}
	if cfg.Engine.RTCMinPort >= cfg.Engine.RTCMaxPort {
		errs = append(errs, fmt.Sprintf("ENGINE_RTC_MIN_PORT (%d) must be less than ENGINE_RTC_MAX_PORT (%d)", cfg.Engine.RTCMinPort, cfg.Engine.RTCMaxPort))
	}

	cfg.Adapter = AdapterConfig{
		EnableAutoCleanup: getEnvBoolOrDefault("ADAPTER_ENABLE_AUTO_CLEANUP", true),
		CleanupInterval:   getEnvDurationMsOrDefault("ADAPTER_CLEANUP_INTERVAL_MS", 5*time.Minute),
		ResourceMaxAge:    getEnvDurationMsOrDefault("ADAPTER_RESOURCE_MAX_AGE_MS", time.Hour),
	}

	cfg.CallManager = CallManagerConfig{
		AllowMultipleCalls: getEnvBoolOrDefault("CALL_MANAGER_ALLOW_MULTIPLE_CALLS", false),
		EnableAutoCleanup:  getEnvBoolOrDefault("CALL_MANAGER_ENABLE_AUTO_CLEANUP", true),
		CleanupInterval:    getEnvDurationMsOrDefault("CALL_MANAGER_CLEANUP_INTERVAL_MS", time.Hour),
		CleanupMaxAge:      getEnvDurationMsOrDefault("CALL_MANAGER_CLEANUP_MAX_AGE_MS", time.Hour),
	}

	cfg.Credentials = CredentialsConfig{
		APIKey:    os.Getenv("API_KEY"),
		APISecret: os.Getenv("API_SECRET"),
		ExpiresIn: getEnvDurationMsOrDefault("CREDENTIALS_EXPIRES_IN_MS", 6*time.Hour),
	}
	if !cfg.Auth.SkipAuth {
		if cfg.Credentials.APIKey == "" {
			errs = append(errs, "API_KEY is required unless SKIP_AUTH=true")
		}
		if cfg.Credentials.APISecret == "" {
			errs = append(errs, "API_SECRET is required unless SKIP_AUTH=true")
		}
	}

	cfg.ICEServers = parseICEServers(os.Getenv("ICE_SERVERS"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	_, _, err := splitHostPort(addr)
	return err == nil
}

func splitHostPort(addr string) (string, int, error) {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected host:port, got %q", addr)
	}
	if parts[0] == "" {
		return "", 0, fmt.Errorf("empty host in %q", addr)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", addr)
	}
	return parts[0], port, nil
}

// parseICEServers parses a comma-separated "url|username|credential" list.
// username/credential are optional for STUN-only entries.
func parseICEServers(raw string) []ICEServer {
	if raw == "" {
		return nil
	}
	var servers []ICEServer
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		server := ICEServer{URLs: []string{parts[0]}}
		if len(parts) > 1 {
			server.Username = parts[1]
		}
		if len(parts) > 2 {
			server.Credential = parts[2]
		}
		servers = append(servers, server)
	}
	return servers
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"media_engine_addr", cfg.MediaEngineAddr,
		"state_store_enabled", cfg.StateStore.Enabled,
		"state_store_addr", cfg.StateStore.Addr(),
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"rate_limit_api_global", cfg.RateLimitAPIGlobal,
		"engine_num_workers", cfg.Engine.NumWorkers,
		"call_manager_allow_multiple_calls", cfg.CallManager.AllowMultipleCalls,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("invalid boolean env var, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return b
}

func getEnvDurationMsOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	ms, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid duration env var, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
