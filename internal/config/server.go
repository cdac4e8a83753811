package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// APIKeyEnv is the environment variable holding the upstream credential.
	APIKeyEnv = "GEMINI_API_KEY"

	DefaultModel        = "gemini-2.5-flash-preview-05-20"
	DefaultBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultSystemPrompt = "You are Gemini, a helpful and creative AI assistant. You can help users with a variety of tasks like writing, summarizing, reformatting text, brainstorming ideas, and answering questions."
	DefaultIndexFile    = "gemini_chat.html"
	DefaultMaxBodyBytes = 100 << 10
)

// UpstreamConfig describes the generative-language endpoint the relay forwards to.
type UpstreamConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ServerConfig holds configuration for the chat relay server.
type ServerConfig struct {
	Port           int            `yaml:"port"`
	MetricsAddr    string         `yaml:"metrics_addr"`
	LogLevel       string         `yaml:"log_level"`
	ConfigFile     string         `yaml:"-"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	StaticDir      string         `yaml:"static_dir"`
	IndexFile      string         `yaml:"index_file"`
	MaxBodyBytes   int64          `yaml:"max_body_bytes"`
	Upstream       UpstreamConfig `yaml:"upstream"`
}

// SetDefaults initializes unset fields of c with built-in defaults. The
// metrics address is left empty so it can follow the final port.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.IndexFile == "" {
		c.IndexFile = DefaultIndexFile
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("server.yaml")
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultBaseURL
	}
	if c.Upstream.Model == "" {
		c.Upstream.Model = DefaultModel
	}
	if c.Upstream.SystemPrompt == "" {
		c.Upstream.SystemPrompt = DefaultSystemPrompt
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = metricsAddr(v)
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("STATIC_DIR", ""); v != "" {
		c.StaticDir = v
	}
	if v := GetEnv("INDEX_FILE", ""); v != "" {
		c.IndexFile = v
	}
	if v := GetEnv("MAX_BODY_BYTES", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxBodyBytes = n
		}
	}
	if v := GetEnv(APIKeyEnv, ""); v != "" {
		c.Upstream.APIKey = v
	}
	if v := GetEnv("GEMINI_MODEL", ""); v != "" {
		c.Upstream.Model = v
	}
	if v := GetEnv("GEMINI_BASE_URL", ""); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := GetEnv("SYSTEM_PROMPT", ""); v != "" {
		c.Upstream.SystemPrompt = v
	}
	if v := GetEnv("UPSTREAM_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Upstream.Timeout = d
		}
	}
}

// BindFlagsFromCurrent binds command line flags on fs using the current config
// values as defaults. A nil fs binds to flag.CommandLine.
func (c *ServerConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	if fs == nil {
		fs = flag.CommandLine
	}
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = metricsAddr(v)
		return nil
	})
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.StringVar(&c.StaticDir, "static-dir", c.StaticDir, "directory served for static files; empty serves the built-in chat page")
	fs.StringVar(&c.IndexFile, "index-file", c.IndexFile, "document served at /")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", c.MaxBodyBytes, "maximum accepted size of a chat request body")
	fs.StringVar(&c.Upstream.Model, "model", c.Upstream.Model, "upstream model identifier")
	fs.StringVar(&c.Upstream.BaseURL, "upstream-url", c.Upstream.BaseURL, "upstream API base URL")
	fs.StringVar(&c.Upstream.SystemPrompt, "system-prompt", c.Upstream.SystemPrompt, "system instruction injected into every conversation")
	fs.DurationVar(&c.Upstream.Timeout, "upstream-timeout", c.Upstream.Timeout, "upstream request timeout (0 uses the transport default)")
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration that would keep the server from starting.
// A missing API key is not an error: chat requests fail individually instead.
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream base url is required"))
	}
	if c.Upstream.Model == "" {
		errs = append(errs, errors.New("upstream model is required"))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative upstream timeout %s", c.Upstream.Timeout))
	}
	return errors.Join(errs...)
}

// Load builds the configuration the way the server binary does: defaults,
// then the YAML file, then environment variables, then command line flags.
func Load(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	var cfg ServerConfig
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		cfg.ConfigFile = v
	}
	for i, a := range args {
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				cfg.ConfigFile = args[i+1]
			}
		case strings.HasPrefix(a, "--config="), strings.HasPrefix(a, "-config="):
			cfg.ConfigFile = a[strings.Index(a, "=")+1:]
		}
	}
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = DefaultConfigPath("server.yaml")
	}
	if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	cfg.SetDefaults()
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = fmt.Sprintf(":%d", cfg.Port)
	}
	return cfg, cfg.Validate()
}

func metricsAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
