package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	envConfigPath = "SYBOT_CONFIG"
	envIceSecret  = "ICE_SECRET"
	envIceHost    = "ICE_HOST"
	envIcePort    = "ICE_PORT"

	defaultMurmurHost     = "127.0.0.1"
	defaultMurmurPort     = 6502
	defaultMurmurPath     = "/meta"
	defaultRequestTimeout = 10 * time.Second
	defaultAPIHost        = "0.0.0.0"
	defaultAPIPort        = 5006
	defaultLookupTimeout  = 15 * time.Second
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Murmur  MurmurConfig  `json:"murmur"`
	API     APIConfig     `json:"api"`
	Content ContentConfig `json:"content"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
	// File, when set, receives a copy of every log line.
	File string `json:"file,omitempty"`
}

// MurmurConfig locates the host's meta service.
type MurmurConfig struct {
	// URL overrides Host, Port and Path when set.
	URL                   string `json:"url,omitempty"`
	Host                  string `json:"host"`
	Port                  int    `json:"port"`
	Path                  string `json:"path,omitempty"`
	Secret                string `json:"secret,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Disabled bool   `json:"disabled,omitempty"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	// LiveNotice is the HTML broadcast by /live. LiveNoticeFile wins when both are set.
	LiveNotice     string `json:"live_notice,omitempty"`
	LiveNoticeFile string `json:"live_notice_file,omitempty"`
}

// ContentConfig tunes third-party lookups made by link unfurlers.
type ContentConfig struct {
	UserAgent            string  `json:"user_agent,omitempty"`
	RequestsPerSecond    float64 `json:"requests_per_second,omitempty"`
	Burst                int     `json:"burst,omitempty"`
	LookupTimeoutSeconds int     `json:"lookup_timeout_seconds,omitempty"`
}

// Endpoint returns the websocket URL of the meta service.
func (m MurmurConfig) Endpoint() string {
	if url := strings.TrimSpace(m.URL); url != "" {
		return url
	}

	host := strings.TrimSpace(m.Host)
	if host == "" {
		host = defaultMurmurHost
	}
	port := m.Port
	if port <= 0 {
		port = defaultMurmurPort
	}
	path := strings.TrimSpace(m.Path)
	if path == "" {
		path = defaultMurmurPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

// RequestTimeout returns the per-call timeout.
func (m MurmurConfig) RequestTimeout() time.Duration {
	if m.RequestTimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(m.RequestTimeoutSeconds) * time.Second
}

// Addr returns the API listen address.
func (a APIConfig) Addr() string {
	host := strings.TrimSpace(a.Host)
	if host == "" {
		host = defaultAPIHost
	}
	port := a.Port
	if port <= 0 {
		port = defaultAPIPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Notice returns the live notice HTML, reading LiveNoticeFile when set.
func (a APIConfig) Notice() (string, error) {
	path := strings.TrimSpace(a.LiveNoticeFile)
	if path == "" {
		return a.LiveNotice, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read live notice: %w", err)
	}
	return string(content), nil
}

// LookupTimeout bounds one background lookup.
func (c ContentConfig) LookupTimeout() time.Duration {
	if c.LookupTimeoutSeconds <= 0 {
		return defaultLookupTimeout
	}
	return time.Duration(c.LookupTimeoutSeconds) * time.Second
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
// Without a config file the defaults plus environment are used.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Murmur.Port < 0 || c.Murmur.Port > 65535 {
		errs = append(errs, fmt.Errorf("murmur.port out of range: %d", c.Murmur.Port))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	if c.Content.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("content.requests_per_second must not be negative"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if secret, ok := os.LookupEnv(envIceSecret); ok {
		cfg.Murmur.Secret = secret
	}

	if host := strings.TrimSpace(os.Getenv(envIceHost)); host != "" {
		cfg.Murmur.Host = host
		cfg.Murmur.URL = ""
	}

	if rawPort := strings.TrimSpace(os.Getenv(envIcePort)); rawPort != "" {
		port, err := strconv.Atoi(rawPort)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envIcePort, err)
		}
		cfg.Murmur.Port = port
		cfg.Murmur.URL = ""
	}

	return nil
}

// findConfigPath resolves the active config file location.
//
// Precedence is SYBOT_CONFIG first, then cwd-local fallback paths. No file is not an
// error; an explicit SYBOT_CONFIG that does not exist is.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
