package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kasuganosora/sparqlexec/pkg/logger"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Environment variable names read by Load.
const (
	EnvEndpointURL        = "ENDPOINT_URL"
	EnvLegacyEndpointURL  = "GRAPHDB_URL"
	EnvUsername           = "USERNAME"
	EnvPassword           = "PASSWORD"
	EnvRequireCredentials = "REQUIRE_CREDENTIALS"
	EnvMCPTransport       = "MCP_TRANSPORT"
	EnvMCPHost            = "MCP_HOST"
	EnvMCPPort            = "MCP_PORT"
	EnvMCPAPIKey          = "MCP_API_KEY"
	EnvLogLevel           = "LOG_LEVEL"
)

// Supported MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// DefaultEnvFile is loaded before the environment is read, if it exists.
const DefaultEnvFile = ".env"

// envKeys maps whitelisted environment variables to koanf keys.
var envKeys = map[string]string{
	EnvEndpointURL:        "endpoint.url",
	EnvLegacyEndpointURL:  "legacy_endpoint_url",
	EnvUsername:           "endpoint.username",
	EnvPassword:           "endpoint.password",
	EnvRequireCredentials: "require_credentials",
	EnvMCPTransport:       "mcp.transport",
	EnvMCPHost:            "mcp.host",
	EnvMCPPort:            "mcp.port",
	EnvMCPAPIKey:          "mcp.api_key",
	EnvLogLevel:           "log.level",
}

// flagKeys maps command-line flag names to koanf keys.
// Credentials are env-only.
var flagKeys = map[string]string{
	"endpoint":            "endpoint.url",
	"require-credentials": "require_credentials",
	"transport":           "mcp.transport",
	"host":                "mcp.host",
	"port":                "mcp.port",
	"log-level":           "log.level",
}

// Config is the process configuration. It is built once at startup.
type Config struct {
	Endpoint           Endpoint  `koanf:"endpoint"`
	LegacyEndpointURL  string    `koanf:"legacy_endpoint_url"`
	RequireCredentials bool      `koanf:"require_credentials"`
	MCP                MCPConfig `koanf:"mcp"`
	Log                LogConfig `koanf:"log"`
}

// Endpoint is the SPARQL endpoint and its optional Basic auth pair.
type Endpoint struct {
	URL      string `koanf:"url"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// HasCredentials reports whether Basic auth should be sent.
func (e Endpoint) HasCredentials() bool {
	return e.Username != "" && e.Password != ""
}

// MCPConfig MCP 服务配置
type MCPConfig struct {
	Transport string `koanf:"transport"`
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	APIKey    string `koanf:"api_key"`
}

// Address returns host:port for the HTTP transport.
func (c MCPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `koanf:"level"`
}

// ConfigurationError reports a required environment variable that is missing.
type ConfigurationError struct {
	Variable string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s environment variable not set.", e.Variable)
}

// Options controls where Load reads from.
type Options struct {
	// EnvFile is a dotenv file loaded into the process environment first.
	// Missing files are ignored. Empty disables dotenv loading.
	EnvFile string
	// Flags, when set, overrides values with explicitly changed flags.
	Flags *pflag.FlagSet
}

// DefaultValues 返回默认配置
func DefaultValues() map[string]interface{} {
	return map[string]interface{}{
		"require_credentials": false,
		"mcp.transport":       TransportStdio,
		"mcp.host":            "127.0.0.1",
		"mcp.port":            8080,
		"log.level":           "info",
	}
}

// Load builds a Config from defaults, the environment and flags, in that
// order of precedence, then validates it.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := LoadEnvFile(opts.EnvFile); err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(DefaultValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(name, value string) (string, interface{}) {
		key, ok := envKeys[name]
		if !ok || value == "" {
			return "", nil
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.Endpoint.URL = strings.TrimSpace(cfg.Endpoint.URL)
	if cfg.Endpoint.URL == "" {
		cfg.Endpoint.URL = strings.TrimSpace(cfg.LegacyEndpointURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads a dotenv file without overriding variables that are
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks required variables first, in ENDPOINT_URL, USERNAME,
// PASSWORD order, then the server settings.
func (c *Config) Validate() error {
	if c.Endpoint.URL == "" {
		return &ConfigurationError{Variable: EnvEndpointURL}
	}

	user, pass := c.Endpoint.Username != "", c.Endpoint.Password != ""
	if c.RequireCredentials || user || pass {
		if !user {
			return &ConfigurationError{Variable: EnvUsername}
		}
		if !pass {
			return &ConfigurationError{Variable: EnvPassword}
		}
	}

	switch c.MCP.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unsupported MCP transport %q (want %s or %s)", c.MCP.Transport, TransportStdio, TransportHTTP)
	}

	if c.MCP.Port < 1 || c.MCP.Port > 65535 {
		return fmt.Errorf("invalid MCP port: %d", c.MCP.Port)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the parsed log level. Validate has already accepted it.
func (c *Config) LogLevel() logger.Level {
	level, _ := logger.ParseLevel(c.Log.Level)
	return level
}
