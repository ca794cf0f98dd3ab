// Package config loads appsync-sub settings from a YAML or TOML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jdfoster/appsync-realtime-util/pkg/auth"
)

// Environment variables read by ApplyEnv.
const (
	EnvEndpoint = "GRAPH_ENDPOINT_URL"
	EnvAPIKey   = "GRAPH_API_KEY"
)

// DefaultTimeout is used when the file sets no timeout.
const DefaultTimeout = 15 * time.Second

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config is the file format of appsync-sub.
type Config struct {
	Endpoint      string         `yaml:"endpoint" toml:"endpoint"`
	Auth          Auth           `yaml:"auth" toml:"auth"`
	Timeout       Duration       `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	LogLevel      string         `yaml:"log_level,omitempty" toml:"log_level,omitempty"`
	EventsFile    string         `yaml:"events_file,omitempty" toml:"events_file,omitempty"`
	Subscriptions []Subscription `yaml:"subscriptions,omitempty" toml:"subscriptions,omitempty"`
}

// Auth selects the credential.
type Auth struct {
	Kind   string `yaml:"kind,omitempty" toml:"kind,omitempty"`
	APIKey string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	Token  string `yaml:"token,omitempty" toml:"token,omitempty"`
}

// Subscription is one subscription started at launch. Exactly one of
// Query and QueryFile is set.
type Subscription struct {
	ID        string         `yaml:"id,omitempty" toml:"id,omitempty"`
	Query     string         `yaml:"query,omitempty" toml:"query,omitempty"`
	QueryFile string         `yaml:"query_file,omitempty" toml:"query_file,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty" toml:"variables,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration time.Duration

// UnmarshalYAML parses a duration string. Bare integers are seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if n, err := time.ParseDuration(node.Value); err == nil {
		*d = Duration(n)
		return nil
	}
	var secs int
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// UnmarshalTOML parses a duration string or integer seconds.
func (d *Duration) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		n, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		*d = Duration(n)
	case int64:
		*d = Duration(time.Duration(v) * time.Second)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LoadError reports a file that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Default returns a config with defaults applied and nothing else set.
func Default() *Config {
	return &Config{
		Auth:     Auth{Kind: string(auth.KindAPIKey)},
		Timeout:  Duration(DefaultTimeout),
		LogLevel: "info",
	}
}

// Load reads and parses the file at path, as TOML when it ends in .toml and
// as YAML otherwise. Relative query_file entries are resolved against the
// file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	parse := Parse
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parse = ParseTOML
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	for i := range cfg.Subscriptions {
		qf := cfg.Subscriptions[i].QueryFile
		if qf != "" && !filepath.IsAbs(qf) {
			cfg.Subscriptions[i].QueryFile = filepath.Join(dir, qf)
		}
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty document leaves the defaults.
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	return cfg, nil
}

// ParseTOML decodes TOML on top of Default. Unknown keys are rejected.
func ParseTOML(data []byte) (*Config, error) {
	cfg := Default()
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("TOML parse error: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("TOML parse error: unknown keys %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyEnv overrides the endpoint and API key from the environment when the
// variables are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		c.Auth.APIKey = v
	}
}

// Validate checks the settings needed to connect.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required (set %s)", ErrInvalid, EnvEndpoint)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: endpoint: %v", ErrInvalid, err)
	}
	switch u.Scheme {
	case "https", "http", "wss", "ws":
	default:
		return fmt.Errorf("%w: endpoint scheme %q", ErrInvalid, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: endpoint has no host", ErrInvalid)
	}

	cred, err := c.Credential()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cred.Kind() == auth.KindAPIKey && c.Auth.APIKey == "" {
		return fmt.Errorf("%w: api_key is required (set %s)", ErrInvalid, EnvAPIKey)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	seen := make(map[string]bool)
	for i, s := range c.Subscriptions {
		if (s.Query == "") == (s.QueryFile == "") {
			return fmt.Errorf("%w: subscriptions[%d]: exactly one of query and query_file is required", ErrInvalid, i)
		}
		if s.ID != "" {
			if seen[s.ID] {
				return fmt.Errorf("%w: subscriptions[%d]: duplicate id %q", ErrInvalid, i, s.ID)
			}
			seen[s.ID] = true
		}
	}
	return nil
}

// Credential builds the credential named by Auth.
func (c *Config) Credential() (auth.Credential, error) {
	secret := c.Auth.APIKey
	if auth.Kind(strings.ToLower(c.Auth.Kind)) != auth.KindAPIKey && c.Auth.Kind != "" {
		secret = c.Auth.Token
	}
	return auth.Parse(c.Auth.Kind, secret)
}

// QueryText returns the query of s, reading QueryFile if set.
func (s Subscription) QueryText() (string, error) {
	if s.QueryFile == "" {
		return s.Query, nil
	}
	data, err := os.ReadFile(s.QueryFile)
	if err != nil {
		return "", fmt.Errorf("read query file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ParseLevel maps a level name to a slog level. WARNING is accepted for
// WARN.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
