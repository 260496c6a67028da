// Package config loads revroom configuration.
//
// Values come from, in increasing precedence:
//   - built-in defaults
//   - a YAML file named by --config or REVROOM_CONFIG
//   - REVROOM_* environment variables, after loading a .env file if present
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sprite-ai/revroom/internal/store"
)

// Config is the full revroom configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Comments CommentsConfig `yaml:"comments"`
	Presence PresenceConfig `yaml:"presence"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures `revroom serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// AllowedOrigins is the CORS allow list. "*" allows any origin and
	// also disables the websocket origin check.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// SendBuffer is the per-member outbound frame queue length.
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

// CommentsConfig selects where comments persist.
type CommentsConfig struct {
	// Backend is one of memory, file or sqlite.
	Backend string `yaml:"backend"`
	// Path is a directory for the file backend and a database file for
	// sqlite.
	Path string `yaml:"path"`
}

// PresenceConfig identifies the local reviewer to a presence room.
type PresenceConfig struct {
	// URL is the server base, e.g. ws://localhost:8080. Empty disables
	// presence.
	URL         string        `yaml:"url"`
	UserID      string        `yaml:"user_id"`
	Username    string        `yaml:"username"`
	AvatarURL   string        `yaml:"avatar_url"`
	JoinTimeout time.Duration `yaml:"join_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used before any file or environment
// is applied.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			SendBuffer:     64,
			WriteTimeout:   10 * time.Second,
			PongTimeout:    60 * time.Second,
		},
		Comments: CommentsConfig{
			Backend: store.BackendFile,
			Path:    filepath.Join(homeDir, ".cache", "revroom", "comments"),
		},
		Presence: PresenceConfig{
			JoinTimeout: 5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty, in which case
// REVROOM_CONFIG is consulted; with neither set only defaults and the
// environment apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("REVROOM_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnvDefault("REVROOM_ADDR", c.Server.Addr)
	c.Server.AllowedOrigins = getEnvListDefault("REVROOM_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.SendBuffer = getEnvIntDefault("REVROOM_SEND_BUFFER", c.Server.SendBuffer)

	c.Comments.Backend = getEnvDefault("REVROOM_COMMENTS_BACKEND", c.Comments.Backend)
	c.Comments.Path = getEnvDefault("REVROOM_COMMENTS_PATH", c.Comments.Path)

	c.Presence.URL = getEnvDefault("REVROOM_PRESENCE_URL", c.Presence.URL)
	c.Presence.UserID = getEnvDefault("REVROOM_USER_ID", c.Presence.UserID)
	c.Presence.Username = getEnvDefault("REVROOM_USERNAME", c.Presence.Username)
	c.Presence.AvatarURL = getEnvDefault("REVROOM_AVATAR_URL", c.Presence.AvatarURL)

	c.Log.Level = getEnvDefault("REVROOM_LOG_LEVEL", c.Log.Level)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Comments.Backend {
	case store.BackendMemory, store.BackendFile, store.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("comments.backend: unknown backend %q", c.Comments.Backend))
	}
	if c.Comments.Backend != store.BackendMemory && c.Comments.Path == "" {
		errs = append(errs, errors.New("comments.path is required for persistent backends"))
	}
	if c.Server.SendBuffer <= 0 {
		errs = append(errs, errors.New("server.send_buffer must be positive"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger returns a text logger writing to w at the configured level.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, _ := l.level()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
