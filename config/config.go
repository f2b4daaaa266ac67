package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Memory backends
const (
	MemoryBackendFile     = "file"
	MemoryBackendSQLite   = "sqlite"
	MemoryBackendPostgres = "postgres"
	MemoryBackendHTTP     = "http"
)

// Collaborator backends
const (
	LLMBackendMock   = "mock"
	LLMBackendHTTP   = "http"
	ToolBackendLocal = "local"
	ToolBackendHTTP  = "http"
)

// Policy enforcement modes for the interaction service
const (
	EnforcementOff     = "off"
	EnforcementWarn    = "warn"
	EnforcementEnforce = "enforce"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Rules         RulesConfig
	Runtime       RuntimeConfig
	Memory        MemoryConfig
	Collaborators CollaboratorsConfig
	Interaction   InteractionConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RulesConfig holds rule source configuration
type RulesConfig struct {
	Dir           string
	Watch         bool
	WatchDebounce time.Duration
}

// RuntimeConfig locates the unit registry, per-unit event logs and state files
type RuntimeConfig struct {
	RegistryFile string
	EventLogDir  string
	StateDir     string
	LogTailLines int
}

// MemoryConfig selects and configures the memory store backend
type MemoryConfig struct {
	Backend    string
	File       string
	SQLitePath string
	URL        string
	Timeout    time.Duration
}

// CollaboratorsConfig holds the text generation and tool execution backends
type CollaboratorsConfig struct {
	LLM  LLMConfig
	Tool ToolConfig
}

// LLMConfig holds text generation backend configuration
type LLMConfig struct {
	Backend string
	URL     string
	Timeout time.Duration
}

// ToolConfig holds command execution backend configuration
type ToolConfig struct {
	Backend string
	URL     string
	Timeout time.Duration
	Shell   string
}

// InteractionConfig holds request façade settings
type InteractionConfig struct {
	PolicyEnforcement string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel        string
	LogFormat       string // json or console
	MetricsEnabled  bool
	EventBufferSize int
	EventWorkers    int
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Rules: RulesConfig{
			Dir:           getEnv("RULES_DIR", "config/rules"),
			Watch:         getEnvAsBool("RULES_WATCH", true),
			WatchDebounce: getEnvAsDuration("RULES_WATCH_DEBOUNCE", 200*time.Millisecond),
		},
		Runtime: RuntimeConfig{
			RegistryFile: getEnv("REGISTRY_FILE", "config/mcp_register.yaml"),
			EventLogDir:  getEnv("EVENT_LOG_DIR", "logs/system"),
			StateDir:     getEnv("STATE_DIR", "runtime_state"),
			LogTailLines: getEnvAsInt("LOG_TAIL_LINES", 50),
		},
		Memory: MemoryConfig{
			Backend:    strings.ToLower(getEnv("MEMORY_BACKEND", MemoryBackendFile)),
			File:       getEnv("MEMORY_FILE", "runtime_state/state_memory.json"),
			SQLitePath: getEnv("MEMORY_SQLITE_PATH", "runtime_state/memory.db"),
			URL:        getEnv("MEMORY_URL", ""),
			Timeout:    getEnvAsDuration("MEMORY_TIMEOUT", 10*time.Second),
		},
		Collaborators: CollaboratorsConfig{
			LLM: LLMConfig{
				Backend: strings.ToLower(getEnv("LLM_BACKEND", LLMBackendMock)),
				URL:     getEnv("LLM_URL", ""),
				Timeout: getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			},
			Tool: ToolConfig{
				Backend: strings.ToLower(getEnv("TOOL_BACKEND", ToolBackendLocal)),
				URL:     getEnv("TOOL_URL", ""),
				Timeout: getEnvAsDuration("TOOL_TIMEOUT", 30*time.Second),
				Shell:   getEnv("TOOL_SHELL", "/bin/sh"),
			},
		},
		Interaction: InteractionConfig{
			PolicyEnforcement: strings.ToLower(getEnv("POLICY_ENFORCEMENT", EnforcementOff)),
		},
		Observability: ObservabilityConfig{
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			LogFormat:       getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:  getEnvAsBool("METRICS_ENABLED", true),
			EventBufferSize: getEnvAsInt("EVENT_BUFFER_SIZE", 1000),
			EventWorkers:    getEnvAsInt("EVENT_WORKERS", 2),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Rules.Dir == "" {
		return fmt.Errorf("rules directory is required")
	}

	// Memory backend validation
	switch c.Memory.Backend {
	case MemoryBackendFile:
		if c.Memory.File == "" {
			return fmt.Errorf("memory file is required for the file backend")
		}
	case MemoryBackendSQLite:
		if c.Memory.SQLitePath == "" {
			return fmt.Errorf("memory sqlite path is required for the sqlite backend")
		}
	case MemoryBackendPostgres:
		// Database validation (DATABASE_URL or DB_* vars)
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case MemoryBackendHTTP:
		if c.Memory.URL == "" {
			return fmt.Errorf("MEMORY_URL is required for the http memory backend")
		}
	default:
		return fmt.Errorf("unknown memory backend: %q", c.Memory.Backend)
	}

	// Collaborator validation
	switch c.Collaborators.LLM.Backend {
	case LLMBackendMock:
	case LLMBackendHTTP:
		if c.Collaborators.LLM.URL == "" {
			return fmt.Errorf("LLM_URL is required for the http llm backend")
		}
	default:
		return fmt.Errorf("unknown llm backend: %q", c.Collaborators.LLM.Backend)
	}

	switch c.Collaborators.Tool.Backend {
	case ToolBackendLocal:
		if c.Collaborators.Tool.Shell == "" {
			return fmt.Errorf("tool shell is required for the local tool backend")
		}
	case ToolBackendHTTP:
		if c.Collaborators.Tool.URL == "" {
			return fmt.Errorf("TOOL_URL is required for the http tool backend")
		}
	default:
		return fmt.Errorf("unknown tool backend: %q", c.Collaborators.Tool.Backend)
	}

	if c.Collaborators.LLM.Timeout <= 0 || c.Collaborators.Tool.Timeout <= 0 || c.Memory.Timeout <= 0 {
		return fmt.Errorf("collaborator timeouts must be positive")
	}

	switch c.Interaction.PolicyEnforcement {
	case EnforcementOff, EnforcementWarn, EnforcementEnforce:
	default:
		return fmt.Errorf("unknown policy enforcement mode: %q", c.Interaction.PolicyEnforcement)
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.EventBufferSize <= 0 || c.Observability.EventWorkers <= 0 {
		return fmt.Errorf("event buffer size and workers must be positive")
	}
	if c.Runtime.LogTailLines <= 0 {
		return fmt.Errorf("log tail lines must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", ""),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "agent_engine"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 9000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 9000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
