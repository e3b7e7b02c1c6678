// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (runtime override)
//  2. Config file (~/.relay/config.yaml, then the current directory)
//  3. Defaults
//
// Sensitive values (database password, cookie secret) are masked in
// MarshalJSON and String so a logged Config never leaks secrets.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	ErrConfigNil          = errors.New("configuration is nil")
	ErrInvalidProvider    = errors.New("invalid provider")
	ErrInvalidModelName   = errors.New("invalid model name")
	ErrInvalidMaxTurns    = errors.New("invalid max turns")
	ErrInvalidPostgres    = errors.New("invalid PostgreSQL configuration")
	ErrInvalidListenAddr  = errors.New("invalid listen address")
	ErrMissingCookieKey   = errors.New("missing cookie secret")
	ErrCookieKeyTooShort  = errors.New("cookie secret too short")
	ErrInvalidPrefsDBPath = errors.New("invalid preference database path")
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// DefaultMaxToolTurns bounds model-internal tool-call round trips per turn.
const DefaultMaxToolTurns = 5

// ToolCommand overrides the launch specification for one catalog tool.
// When Command is empty the catalog falls back to re-executing the relay
// binary with "mcp <id>".
type ToolCommand struct {
	Command string   `mapstructure:"command" json:"command"`
	Args    []string `mapstructure:"args" json:"args"`
}

// OtelConfig configures optional OTLP trace export.
type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
}

// Config stores application configuration.
type Config struct {
	// Model provider configuration
	Provider   string `mapstructure:"provider" json:"provider"`
	ModelName  string `mapstructure:"model_name" json:"model_name"`
	TitleModel string `mapstructure:"title_model" json:"title_model"`
	MaxTurns   int    `mapstructure:"max_turns" json:"max_turns"`
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// HTTP server
	ListenAddr   string `mapstructure:"listen_addr" json:"listen_addr"`
	CookieSecret string `mapstructure:"cookie_secret" json:"cookie_secret"` // SENSITIVE: masked in MarshalJSON

	// Conversation storage
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Tool preference storage (local durable copy)
	PrefsDBPath string `mapstructure:"prefs_db_path" json:"prefs_db_path"`

	// Tool catalog launch overrides, keyed by tool identifier
	Tools map[string]ToolCommand `mapstructure:"tools" json:"tools"`

	// Observability
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// Load loads configuration with env > file > defaults priority.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".relay")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(configDir string) {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("title_model", "gemini-2.5-flash")
	viper.SetDefault("max_turns", DefaultMaxToolTurns)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("listen_addr", "localhost:8080")

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "relay")
	viper.SetDefault("postgres_password", "relay_dev_password")
	viper.SetDefault("postgres_db_name", "relay")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("prefs_db_path", filepath.Join(configDir, "prefs.db"))

	viper.SetDefault("otel.endpoint", "localhost:4318")
	viper.SetDefault("otel.service_name", "relay")
	viper.SetDefault("otel.environment", "dev")
	viper.SetDefault("otel.enabled", false)
}

// bindEnvVariables binds the environment variables that override file
// configuration. Provider API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read
// directly by the Genkit plugins, not through Viper.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "RELAY_PROVIDER")
	mustBind("model_name", "RELAY_MODEL_NAME")
	mustBind("title_model", "RELAY_TITLE_MODEL")
	mustBind("ollama_host", "RELAY_OLLAMA_HOST")
	mustBind("listen_addr", "RELAY_LISTEN_ADDR")
	mustBind("cookie_secret", "RELAY_COOKIE_SECRET")
	mustBind("prefs_db_path", "RELAY_PREFS_DB")
	mustBind("otel.enabled", "RELAY_OTEL_ENABLED")
	mustBind("otel.endpoint", "RELAY_OTEL_ENDPOINT")
}

// parseDatabaseURL applies DATABASE_URL when set; it has the highest
// priority for PostgreSQL settings.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", port, err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.PostgresDBName = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// Validate checks configuration ranges and required fields. Fail-fast: Load
// returns the first violation.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if c.MaxTurns <= 0 || c.MaxTurns > 25 {
		return fmt.Errorf("%w: %d (want 1-25)", ErrInvalidMaxTurns, c.MaxTurns)
	}
	if c.PostgresHost == "" || c.PostgresDBName == "" {
		return fmt.Errorf("%w: host and database name are required", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidListenAddr)
	}
	if strings.TrimSpace(c.PrefsDBPath) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPrefsDBPath)
	}
	return nil
}

// ValidateServe applies the additional requirements of serve mode.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.CookieSecret == "" {
		return ErrMissingCookieKey
	}
	if len(c.CookieSecret) < 32 {
		return fmt.Errorf("%w: need at least 32 bytes, got %d", ErrCookieKeyTooShort, len(c.CookieSecret))
	}
	return nil
}

// PostgresURL returns the postgres:// connection URL for pgx and
// golang-migrate.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// FullModelName returns the provider-qualified model name for Genkit, e.g.
// "googleai/gemini-2.5-flash". Names already containing "/" pass through.
func (c *Config) FullModelName() string {
	return c.qualify(c.ModelName)
}

// FullTitleModelName returns the provider-qualified title model, falling
// back to the chat model when unset.
func (c *Config) FullTitleModelName() string {
	if strings.TrimSpace(c.TitleModel) == "" {
		return c.FullModelName()
	}
	return c.qualify(c.TitleModel)
}

// Qualify returns the provider-qualified form of a client-selected model
// id, e.g. "gemini-2.5-pro" -> "googleai/gemini-2.5-pro".
func (c *Config) Qualify(name string) string {
	return c.qualify(name)
}

func (c *Config) qualify(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + name
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + name
	default:
		return ProviderGoogleAI + "/" + name
	}
}

// maskedValue replaces secrets in serialized output. Full-width blocks avoid
// accidental substring matches against real secret material.
const maskedValue = "████████"

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields. Update when adding new secrets.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.CookieSecret = maskSecret(a.CookieSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer so printing a Config never leaks secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
