package config

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "TCPHTTP"

// Cookie modes understood by the site handler
const (
	CookieModePlain  = "plain"
	CookieModeCookie = "cookie"
	CookieModeBase64 = "base64"
)

// Config holds all application configuration.
type Config struct {
	Host            string        `config:"host"`
	Port            int           `config:"port"`
	Backlog         int           `config:"backlog"`
	MaxSessions     int           `config:"max.sessions"`
	ReadChunkSize   int           `config:"read.chunk"`
	MaxRequestSize  int           `config:"max.request.size"`
	ReadTimeout     time.Duration `config:"read.timeout"`
	WriteTimeout    time.Duration `config:"write.timeout"`
	ShutdownTimeout time.Duration `config:"shutdown.timeout"`
	RejectMalformed bool          `config:"reject.malformed"`
	CookieMode      string        `config:"cookie.mode"`
	AssetsDir       string        `config:"assets.dir"`
	LogLevel        string        `config:"log.level"`
	LogFormat       string        `config:"log.format"`
	Env             string        `config:"env"`

	ConfigFile string `config:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            11000,
		Backlog:         100,
		ReadChunkSize:   1024,
		MaxRequestSize:  2 * 1024 * 1024,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		CookieMode:      CookieModeBase64,
		LogLevel:        "info",
		Env:             "development",
	}
}

// Load builds the configuration from defaults, an optional JSON file, the
// TCPHTTP_* environment and finally the command-line args, each overriding
// the previous.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("tcphttp", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigFile, "config", "", "JSON configuration file")
	fs.String("host", cfg.Host, "host whose first IPv4 address is bound (default: this machine's hostname)")
	fs.Int("port", cfg.Port, "TCP port")
	fs.Int("backlog", cfg.Backlog, "listen backlog")
	fs.Int("max-sessions", cfg.MaxSessions, "maximum concurrently served connections (0 = unlimited)")
	fs.Int("read-chunk", cfg.ReadChunkSize, "bytes per socket read")
	fs.Int("max-request-size", cfg.MaxRequestSize, "maximum buffered request size in bytes")
	fs.Duration("read-timeout", cfg.ReadTimeout, "per-read timeout (0 = none)")
	fs.Duration("write-timeout", cfg.WriteTimeout, "response write timeout (0 = none)")
	fs.Duration("shutdown-timeout", cfg.ShutdownTimeout, "grace period for in-flight sessions on shutdown")
	fs.Bool("reject-malformed", cfg.RejectMalformed, "answer malformed requests with 400 instead of closing")
	fs.String("cookie-mode", cfg.CookieMode, "name cookie handling: plain, cookie or base64")
	fs.String("assets-dir", cfg.AssetsDir, "directory overriding the embedded pages")
	fs.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", cfg.LogFormat, "log format: json or console (default: console in development)")
	fs.String("env", cfg.Env, "environment (development/production)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	env := NewManager()
	env.LoadFromEnv(EnvPrefix)

	if cfg.ConfigFile == "" {
		cfg.ConfigFile = env.GetString("config")
	}
	if cfg.ConfigFile != "" {
		file := NewManager()
		if err := file.LoadFromJSON(cfg.ConfigFile); err != nil {
			return nil, err
		}
		if err := file.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfg.ConfigFile, err)
		}
	}

	if err := env.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	flags := NewManager()
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			flags.Set(strings.ReplaceAll(f.Name, "-", "."), f.Value.String())
		}
	})
	if err := flags.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
		if cfg.Env == "development" {
			cfg.LogFormat = "console"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that values are usable together
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Backlog <= 0 {
		return fmt.Errorf("backlog must be positive, got %d", c.Backlog)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max-sessions must not be negative, got %d", c.MaxSessions)
	}
	if c.ReadChunkSize <= 0 {
		return fmt.Errorf("read-chunk must be positive, got %d", c.ReadChunkSize)
	}
	if c.MaxRequestSize < c.ReadChunkSize {
		return fmt.Errorf("max-request-size %d is smaller than read-chunk %d", c.MaxRequestSize, c.ReadChunkSize)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	switch c.CookieMode {
	case CookieModePlain, CookieModeCookie, CookieModeBase64:
	default:
		return fmt.Errorf("unsupported cookie-mode %q (supported: %s, %s, %s)",
			c.CookieMode, CookieModePlain, CookieModeCookie, CookieModeBase64)
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log-format %q", c.LogFormat)
	}

	return nil
}
