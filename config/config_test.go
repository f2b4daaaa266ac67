package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "config/rules", cfg.Rules.Dir)
				assert.True(t, cfg.Rules.Watch)
				assert.Equal(t, 200*time.Millisecond, cfg.Rules.WatchDebounce)
				assert.Equal(t, "config/mcp_register.yaml", cfg.Runtime.RegistryFile)
				assert.Equal(t, "logs/system", cfg.Runtime.EventLogDir)
				assert.Equal(t, "runtime_state", cfg.Runtime.StateDir)
				assert.Equal(t, 50, cfg.Runtime.LogTailLines)
				assert.Equal(t, MemoryBackendFile, cfg.Memory.Backend)
				assert.Equal(t, "runtime_state/state_memory.json", cfg.Memory.File)
				assert.Equal(t, LLMBackendMock, cfg.Collaborators.LLM.Backend)
				assert.Equal(t, ToolBackendLocal, cfg.Collaborators.Tool.Backend)
				assert.Equal(t, "/bin/sh", cfg.Collaborators.Tool.Shell)
				assert.Equal(t, 30*time.Second, cfg.Collaborators.LLM.Timeout)
				assert.Equal(t, EnforcementOff, cfg.Interaction.PolicyEnforcement)
			},
		},
		{
			name: "postgres memory backend",
			envVars: map[string]string{
				"MEMORY_BACKEND": "postgres",
				"DB_HOST":        "db.example.com",
				"DB_PORT":        "5433",
				"DB_USER":        "engine",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, MemoryBackendPostgres, cfg.Memory.Backend)
				assert.Equal(t, "db.example.com", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.Equal(t, "agent_engine", cfg.Database.Database)
			},
		},
		{
			name: "postgres memory backend from DATABASE_URL",
			envVars: map[string]string{
				"MEMORY_BACKEND": "postgres",
				"DATABASE_URL":   "postgres://u:p@db:5432/memory?sslmode=disable",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "host=db port=5432 database=memory", cfg.Database.LogString())
			},
		},
		{
			name: "http collaborators",
			envVars: map[string]string{
				"LLM_BACKEND":  "HTTP",
				"LLM_URL":      "http://llm:8000",
				"LLM_TIMEOUT":  "5s",
				"TOOL_BACKEND": "http",
				"TOOL_URL":     "http://tools:8001",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, LLMBackendHTTP, cfg.Collaborators.LLM.Backend)
				assert.Equal(t, "http://llm:8000", cfg.Collaborators.LLM.URL)
				assert.Equal(t, 5*time.Second, cfg.Collaborators.LLM.Timeout)
				assert.Equal(t, "http://tools:8001", cfg.Collaborators.Tool.URL)
			},
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":         "debug",
				"LOG_FORMAT":        "console",
				"METRICS_ENABLED":   "false",
				"EVENT_BUFFER_SIZE": "10",
				"EVENT_WORKERS":     "4",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.MetricsEnabled)
				assert.Equal(t, 10, cfg.Observability.EventBufferSize)
				assert.Equal(t, 4, cfg.Observability.EventWorkers)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "policy enforcement mode",
			envVars: map[string]string{
				"POLICY_ENFORCEMENT": "Enforce",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, EnforcementEnforce, cfg.Interaction.PolicyEnforcement)
			},
		},
		{
			name: "postgres backend without database",
			envVars: map[string]string{
				"MEMORY_BACKEND": "postgres",
			},
			wantErr: true,
		},
		{
			name: "http memory backend without url",
			envVars: map[string]string{
				"MEMORY_BACKEND": "http",
			},
			wantErr: true,
		},
		{
			name: "unknown llm backend",
			envVars: map[string]string{
				"LLM_BACKEND": "openai",
			},
			wantErr: true,
		},
		{
			name: "unknown enforcement mode",
			envVars: map[string]string{
				"POLICY_ENFORCEMENT": "strict",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Host: "0.0.0.0", Port: 9000},
		Rules:       RulesConfig{Dir: "config/rules"},
		Runtime:     RuntimeConfig{LogTailLines: 50},
		Memory: MemoryConfig{
			Backend: MemoryBackendFile,
			File:    "state.json",
			Timeout: time.Second,
		},
		Collaborators: CollaboratorsConfig{
			LLM:  LLMConfig{Backend: LLMBackendMock, Timeout: time.Second},
			Tool: ToolConfig{Backend: ToolBackendLocal, Shell: "/bin/sh", Timeout: time.Second},
		},
		Interaction: InteractionConfig{PolicyEnforcement: EnforcementOff},
		Observability: ObservabilityConfig{
			LogLevel:        "info",
			EventBufferSize: 10,
			EventWorkers:    1,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing database host",
			mutate: func(c *Config) {
				c.Memory.Backend = MemoryBackendPostgres
				c.Database = DatabaseConfig{User: "user", Database: "db"}
			},
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name: "missing database user",
			mutate: func(c *Config) {
				c.Memory.Backend = MemoryBackendPostgres
				c.Database = DatabaseConfig{Host: "localhost", Database: "db"}
			},
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name: "database ignored for file backend",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{}
			},
			wantErr: false,
		},
		{
			name: "unknown memory backend",
			mutate: func(c *Config) {
				c.Memory.Backend = "redis"
			},
			wantErr: true,
			errMsg:  "unknown memory backend",
		},
		{
			name: "non-positive timeout",
			mutate: func(c *Config) {
				c.Collaborators.Tool.Timeout = 0
			},
			wantErr: true,
			errMsg:  "timeouts must be positive",
		},
		{
			name: "http tool backend without url",
			mutate: func(c *Config) {
				c.Collaborators.Tool.Backend = ToolBackendHTTP
			},
			wantErr: true,
			errMsg:  "TOOL_URL is required",
		},
		{
			name: "invalid port",
			mutate: func(c *Config) {
				c.Server.Port = 0
			},
			wantErr: true,
			errMsg:  "invalid server port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
			assert.Equal(t, tt.environment == "development", cfg.IsDevelopment())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())
	assert.NotContains(t, cfg.LogString(), "testpass")
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "127.0.0.1",
		Port: 9000,
	}

	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "42", 10, 42},
		{"empty value", "", 10, 10},
		{"invalid int", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_INT", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsInt("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"empty value", "", true, true},
		{"invalid bool", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_BOOL", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"valid duration", "30s", 10 * time.Second, 30 * time.Second},
		{"empty value", "", 10 * time.Second, 10 * time.Second},
		{"invalid duration", "not-a-duration", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_DURATION", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", tt.defaultValue))
		})
	}
}
