package mcpwire

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `{
  "default_server": "local",
  "servers": {
    "local": {
      "base_url": "http://localhost:8000/sse",
      "transport": "sse",
      "timeout": 30,
      "description": "Local test server"
    },
    "remote": {
      "base_url": "https://remote-mcp.test/sse",
      "transport": "sse",
      "api_key": "remote-key-123"
    },
    "env_key_server": {
      "base_url": "https://env-key.test/sse",
      "transport": "sse",
      "api_key": "env:MCP_TEST_API_KEY",
      "timeout": 90
    },
    "stdio_server": {
      "transport": "stdio",
      "command": "python",
      "args": ["-m", "mcp.server.cli"],
      "timeout": 60
    }
  }
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test_mcp.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestFromConfigSpecificServer(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	client, err := FromConfig("remote", &ClientOptions{ConfigPath: path, EnvLookup: noEnv})
	if err != nil {
		t.Fatalf("FromConfig(remote): %v", err)
	}
	if client.opts.BaseURL != "https://remote-mcp.test/sse" {
		t.Fatalf("base url = %q", client.opts.BaseURL)
	}
	if client.opts.Transport != TransportSSE {
		t.Fatalf("transport = %q", client.opts.Transport)
	}
	// The remote profile omits timeout, so the built-in default applies.
	if client.opts.Timeout != DefaultTimeout {
		t.Fatalf("timeout = %v, expected %v", client.opts.Timeout, DefaultTimeout)
	}
	if client.authHeader != "Bearer remote-key-123" {
		t.Fatalf("auth header = %q", client.authHeader)
	}
}

func TestFromConfigDefaultServer(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	client, err := FromConfig("", &ClientOptions{ConfigPath: path, EnvLookup: noEnv})
	if err != nil {
		t.Fatalf("FromConfig(default): %v", err)
	}
	if client.Server() != "local" {
		t.Fatalf("server = %q, expected local", client.Server())
	}
	if client.opts.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v, expected 30s", client.opts.Timeout)
	}
	if client.authHeader != "" {
		t.Fatalf("unexpected auth header %q", client.authHeader)
	}
}

func TestFromConfigStdioServer(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	client, err := FromConfig("stdio_server", &ClientOptions{ConfigPath: path, EnvLookup: noEnv})
	if err != nil {
		t.Fatalf("FromConfig(stdio_server): %v", err)
	}
	if client.opts.Transport != TransportStdio {
		t.Fatalf("transport = %q", client.opts.Transport)
	}
	if client.opts.Command != "python" || len(client.opts.Args) != 2 || client.opts.Args[0] != "-m" {
		t.Fatalf("command not preserved: %q %v", client.opts.Command, client.opts.Args)
	}
	if client.opts.Timeout != 60*time.Second {
		t.Fatalf("timeout = %v, expected 60s", client.opts.Timeout)
	}
}

func TestFromConfigEnvAPIKey(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	lookup := func(name string) (string, bool) {
		if name == "MCP_TEST_API_KEY" {
			return "actual-env-key-456", true
		}
		return "", false
	}
	client, err := FromConfig("env_key_server", &ClientOptions{ConfigPath: path, EnvLookup: lookup})
	if err != nil {
		t.Fatalf("FromConfig(env_key_server): %v", err)
	}
	if client.authHeader != "Bearer actual-env-key-456" {
		t.Fatalf("auth header = %q", client.authHeader)
	}
}

func TestFromConfigEnvAPIKeyMissing(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	_, err := FromConfig("env_key_server", &ClientOptions{ConfigPath: path, EnvLookup: noEnv})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for unset env var, got %T: %v", err, err)
	}
	if cfgErr.Server != "env_key_server" {
		t.Fatalf("config error should name the profile, got %q", cfgErr.Server)
	}
}

func TestFromConfigExplicitOverridesWin(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	client, err := FromConfig("local", &ClientOptions{
		ConfigPath: path,
		EnvLookup:  noEnv,
		Timeout:    5 * time.Second,
		APIKey:     "override-key",
		BaseURL:    "http://override.test/sse",
	})
	if err != nil {
		t.Fatalf("FromConfig with overrides: %v", err)
	}
	if client.opts.Timeout != 5*time.Second {
		t.Fatalf("explicit timeout should win, got %v", client.opts.Timeout)
	}
	if client.opts.BaseURL != "http://override.test/sse" {
		t.Fatalf("explicit base url should win, got %q", client.opts.BaseURL)
	}
	if client.authHeader != "Bearer override-key" {
		t.Fatalf("explicit api key should win, got %q", client.authHeader)
	}
}

func TestFromConfigMissingProfile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	client, err := FromConfig("nonexistent", &ClientOptions{ConfigPath: path, EnvLookup: noEnv})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
	if client != nil {
		t.Fatalf("no client may be returned on configuration failure")
	}
}

func TestFromConfigFileMissing(t *testing.T) {
	t.Parallel()

	_, err := FromConfig("local", &ClientOptions{
		ConfigPath: filepath.Join(t.TempDir(), "absent.json"),
		EnvLookup:  noEnv,
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestFromConfigMalformedJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "{invalid json")
	_, err := FromConfig("local", &ClientOptions{ConfigPath: path, EnvLookup: noEnv})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for malformed file, got %T: %v", err, err)
	}
}

func TestNewClientTransportValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opts ClientOptions
	}{
		{"sse without base url", ClientOptions{Transport: TransportSSE}},
		{"stdio without command", ClientOptions{Transport: TransportStdio}},
		{"unsupported transport", ClientOptions{Transport: "http", BaseURL: "http://x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewClient("s", tc.opts)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %T: %v", err, err)
			}
		})
	}
}

func TestFindConfigFileSearchOrder(t *testing.T) {
	home := t.TempDir()
	cwd := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(cwd)

	xdgDir := filepath.Join(home, ".config", "mcp")
	if err := os.MkdirAll(xdgDir, 0o755); err != nil {
		t.Fatalf("mkdir xdg: %v", err)
	}
	cwdFile := filepath.Join(cwd, ConfigFileName)
	homeDotFile := filepath.Join(home, "."+ConfigFileName)
	xdgFile := filepath.Join(xdgDir, ConfigFileName)
	for _, f := range []string{cwdFile, homeDotFile, xdgFile} {
		if err := os.WriteFile(f, []byte("{}"), 0o600); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}

	explicit := filepath.Join(t.TempDir(), "explicit.json")
	if err := os.WriteFile(explicit, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write explicit: %v", err)
	}
	if got, err := FindConfigFile(explicit); err != nil || got != explicit {
		t.Fatalf("explicit path should win: %q %v", got, err)
	}

	if got, err := FindConfigFile(""); err != nil || got != cwdFile {
		t.Fatalf("cwd file should be found first: %q %v", got, err)
	}
	os.Remove(cwdFile)

	if got, err := FindConfigFile(""); err != nil || got != homeDotFile {
		t.Fatalf("home dot file should be next: %q %v", got, err)
	}
	os.Remove(homeDotFile)

	if got, err := FindConfigFile(""); err != nil || got != xdgFile {
		t.Fatalf("xdg file should be last: %q %v", got, err)
	}
	os.Remove(xdgFile)

	if _, err := FindConfigFile(""); err == nil {
		t.Fatalf("expected ConfigError when nothing is found")
	}
}
