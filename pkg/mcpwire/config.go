package mcpwire

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConfigFileName is the base name searched for in the standard locations.
const ConfigFileName = "mcp.json"

// Config models the JSON configuration file: a default profile name plus a
// mapping of named server profiles.
type Config struct {
	DefaultServer string                   `json:"default_server,omitempty"`
	Servers       map[string]ServerProfile `json:"servers"`
}

// ServerProfile is one named entry in the config file. Profiles are immutable
// once loaded; FromConfig merges them with explicit ClientOptions.
type ServerProfile struct {
	BaseURL     string          `json:"base_url,omitempty"`
	Transport   string          `json:"transport,omitempty"`
	Command     string          `json:"command,omitempty"`
	Args        []string        `json:"args,omitempty"`
	APIKey      string          `json:"api_key,omitempty"`
	Timeout     int             `json:"timeout,omitempty"`
	Description string          `json:"description,omitempty"`
	Resources   *ResourcePolicy `json:"resources,omitempty"`
}

// ResourcePolicy opts a server into resource handling: automatic
// subscriptions for matching URIs and client-side default templates.
type ResourcePolicy struct {
	Enabled          bool                   `json:"enabled"`
	AutoSubscribe    []string               `json:"auto_subscribe,omitempty"`
	DefaultTemplates []ResourceTemplateSpec `json:"default_templates,omitempty"`
}

// ResourceTemplateSpec declares a parameterized URI pattern advertised by the
// client alongside the server's own templates.
type ResourceTemplateSpec struct {
	URITemplate string `json:"uri_template"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
}

// FindConfigFile resolves the config file location. An explicit path wins;
// otherwise the search order is ./mcp.json, ~/.mcp.json, and
// ~/.config/mcp/mcp.json. A missing file is a ConfigError.
func FindConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", &ConfigError{Err: fmt.Errorf("config file %s: %w", explicit, err)}
		}
		return explicit, nil
	}
	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, ConfigFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "."+ConfigFileName),
			filepath.Join(home, ".config", "mcp", ConfigFileName),
		)
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", &ConfigError{Err: errors.New("no config file found (searched ./mcp.json, ~/.mcp.json, ~/.config/mcp/mcp.json)")}
}

// LoadConfig reads and decodes a config file. Absent or malformed files are
// ConfigErrors.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("read config %s: %w", path, err)}
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("invalid JSON in %s: %w", path, err)}
	}
	if len(cfg.Servers) == 0 {
		return nil, &ConfigError{Err: fmt.Errorf("config %s declares no servers", path)}
	}
	return &cfg, nil
}

// Profile returns the named profile, or the default_server profile when name
// is empty. Unknown names are ConfigErrors; the config is never partially
// applied.
func (c *Config) Profile(name string) (string, *ServerProfile, error) {
	if name == "" {
		name = c.DefaultServer
		if name == "" {
			return "", nil, &ConfigError{Err: errors.New("no server name given and config has no default_server")}
		}
	}
	profile, ok := c.Servers[name]
	if !ok {
		return "", nil, &ConfigError{Server: name, Err: errors.New("profile not found in config")}
	}
	return name, &profile, nil
}

// FromConfig builds a Client for a named profile. Precedence per field:
// explicit opts > profile > defaults. All configuration failures, including
// unresolved env:VAR API keys, surface here before any connection attempt.
func FromConfig(serverName string, opts *ClientOptions) (*Client, error) {
	merged := ClientOptions{}
	if opts != nil {
		merged = *opts
	}
	path, err := FindConfigFile(merged.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	name, profile, err := cfg.Profile(serverName)
	if err != nil {
		return nil, err
	}
	if merged.BaseURL == "" {
		merged.BaseURL = profile.BaseURL
	}
	if merged.Transport == "" {
		merged.Transport = TransportKind(profile.Transport)
	}
	if merged.Command == "" {
		merged.Command = profile.Command
		if merged.Args == nil {
			merged.Args = append([]string(nil), profile.Args...)
		}
	}
	if merged.APIKey == "" {
		merged.APIKey = profile.APIKey
	}
	if merged.Timeout <= 0 && profile.Timeout > 0 {
		merged.Timeout = time.Duration(profile.Timeout) * time.Second
	}
	if merged.Resources == nil {
		merged.Resources = profile.Resources
	}
	return NewClient(name, merged)
}

// resolveAPIKey expands the "env:VAR" form through the injected lookup. A
// reference to an unset variable is a ConfigError, never a silently empty
// key.
func resolveAPIKey(server, key string, lookup EnvLookup) (string, error) {
	const envPrefix = "env:"
	if !strings.HasPrefix(key, envPrefix) {
		return key, nil
	}
	name := strings.TrimPrefix(key, envPrefix)
	if name == "" {
		return "", &ConfigError{Server: server, Err: errors.New("api_key env reference names no variable")}
	}
	value, ok := lookup(name)
	if !ok {
		return "", &ConfigError{Server: server, Err: fmt.Errorf("api_key references unset environment variable %s", name)}
	}
	return value, nil
}
