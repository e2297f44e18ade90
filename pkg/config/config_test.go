package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/sparqlexec/pkg/logger"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "http://test-graphdb:7200/repositories/test"

// clearEnv blanks every variable Load reads. Empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		t.Setenv(name, "")
	}
}

func requireConfigError(t *testing.T, err error, variable string) {
	t.Helper()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
	assert.Equal(t, variable, cfgErr.Variable)
	assert.Equal(t, variable+" environment variable not set.", err.Error())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEndpointURL, testEndpoint)

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, testEndpoint, cfg.Endpoint.URL)
	assert.Empty(t, cfg.Endpoint.Username)
	assert.Empty(t, cfg.Endpoint.Password)
	assert.False(t, cfg.Endpoint.HasCredentials())
	assert.False(t, cfg.RequireCredentials)
	assert.Equal(t, TransportStdio, cfg.MCP.Transport)
	assert.Equal(t, "127.0.0.1:8080", cfg.MCP.Address())
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel())
}

func TestLoad_MissingEndpoint(t *testing.T) {
	clearEnv(t)

	_, err := Load(Options{})
	requireConfigError(t, err, EnvEndpointURL)
}

func TestLoad_LegacyEndpointAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLegacyEndpointURL, testEndpoint)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, testEndpoint, cfg.Endpoint.URL)

	t.Setenv(EnvEndpointURL, "http://primary:7200/repositories/main")
	cfg, err = Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "http://primary:7200/repositories/main", cfg.Endpoint.URL)
}

func TestLoad_Credentials(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEndpointURL, testEndpoint)
	t.Setenv(EnvUsername, "admin")
	t.Setenv(EnvPassword, "s3cret")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Endpoint.Username)
	assert.Equal(t, "s3cret", cfg.Endpoint.Password)
	assert.True(t, cfg.Endpoint.HasCredentials())
}

func TestLoad_PartialCredentials(t *testing.T) {
	t.Run("username only", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvEndpointURL, testEndpoint)
		t.Setenv(EnvUsername, "admin")

		_, err := Load(Options{})
		requireConfigError(t, err, EnvPassword)
	})

	t.Run("password only", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvEndpointURL, testEndpoint)
		t.Setenv(EnvPassword, "s3cret")

		_, err := Load(Options{})
		requireConfigError(t, err, EnvUsername)
	})
}

func TestLoad_RequireCredentials(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		variable string
	}{
		{"nothing set", map[string]string{}, EnvEndpointURL},
		{"endpoint only", map[string]string{EnvEndpointURL: testEndpoint}, EnvUsername},
		{"missing password", map[string]string{EnvEndpointURL: testEndpoint, EnvUsername: "admin"}, EnvPassword},
		{"missing username", map[string]string{EnvEndpointURL: testEndpoint, EnvPassword: "s3cret"}, EnvUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvRequireCredentials, "true")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(Options{})
			requireConfigError(t, err, tt.variable)
		})
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEndpointURL, testEndpoint)
	t.Setenv(EnvMCPTransport, TransportHTTP)
	t.Setenv(EnvMCPHost, "0.0.0.0")
	t.Setenv(EnvMCPPort, "9090")
	t.Setenv(EnvMCPAPIKey, "key-1")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, cfg.MCP.Transport)
	assert.Equal(t, "0.0.0.0:9090", cfg.MCP.Address())
	assert.Equal(t, "key-1", cfg.MCP.APIKey)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel())
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEndpointURL, testEndpoint)
	t.Setenv(EnvMCPPort, "9090")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("endpoint", "", "")
	fs.String("transport", TransportStdio, "")
	fs.String("host", "127.0.0.1", "")
	fs.Int("port", 8080, "")
	fs.String("log-level", "info", "")
	fs.String("env-file", DefaultEnvFile, "")
	require.NoError(t, fs.Parse([]string{"--transport=http", "--endpoint=http://flag:7200/sparql"}))

	cfg, err := Load(Options{Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "http://flag:7200/sparql", cfg.Endpoint.URL)
	assert.Equal(t, TransportHTTP, cfg.MCP.Transport)
	// Unchanged flags must not mask the environment.
	assert.Equal(t, 9090, cfg.MCP.Port)
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"transport", EnvMCPTransport, "websocket"},
		{"port", EnvMCPPort, "70000"},
		{"log level", EnvLogLevel, "verbose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvEndpointURL, testEndpoint)
			t.Setenv(tt.key, tt.val)

			_, err := Load(Options{})
			require.Error(t, err)
			var cfgErr *ConfigurationError
			assert.False(t, errors.As(err, &cfgErr))
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides present variables, so these must be truly unset.
	require.NoError(t, os.Unsetenv(EnvEndpointURL))
	require.NoError(t, os.Unsetenv(EnvUsername))
	require.NoError(t, os.Unsetenv(EnvPassword))

	path := filepath.Join(t.TempDir(), ".env")
	content := "ENDPOINT_URL=" + testEndpoint + "\nUSERNAME=admin\nPASSWORD=s3cret\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(Options{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, testEndpoint, cfg.Endpoint.URL)
	assert.True(t, cfg.Endpoint.HasCredentials())
}

func TestLoad_EnvFileDoesNotOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEndpointURL, "http://from-env:7200/sparql")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ENDPOINT_URL="+testEndpoint+"\n"), 0o600))

	cfg, err := Load(Options{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:7200/sparql", cfg.Endpoint.URL)
}

func TestLoadEnvFile_Missing(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "does-not-exist.env")))
}
