// Package config loads the server and CLI settings with viper: defaults,
// an optional config.yaml, an optional .env file and GAZE_* environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/verify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const EnvPrefix = "GAZE"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Session  SessionConfig  `mapstructure:"session"`
	Matcher  verify.Params  `mapstructure:"matcher"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// StaticDir, when set, is served at / (the capture page).
	StaticDir string `mapstructure:"static_dir"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN is the sqlite file path or the postgres connection string.
	DSN      string `mapstructure:"dsn"`
	LogLevel string `mapstructure:"log_level"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	JSON       bool   `mapstructure:"json"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type SessionConfig struct {
	ToggleRadius float64 `mapstructure:"toggle_radius"`
	Precision    int     `mapstructure:"precision"`
	Seed         uint64  `mapstructure:"seed"`
	Persist      bool    `mapstructure:"persist_recordings"`
}

type ProxyConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// YtDLP enables resolving YouTube links through yt-dlp.
	YtDLP    bool          `mapstructure:"ytdlp"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.static_dir", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "gazecaptcha.sqlite3")
	v.SetDefault("database.log_level", "silent")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)

	v.SetDefault("session.toggle_radius", session.DefaultToggleRadius)
	v.SetDefault("session.precision", session.DefaultPrecision)
	v.SetDefault("session.seed", 0)
	v.SetDefault("session.persist_recordings", true)

	def := verify.DefaultParams()
	v.SetDefault("matcher.radius", def.Radius)
	v.SetDefault("matcher.dwell_before_ms", def.DwellBeforeMs)
	v.SetDefault("matcher.dwell_after_ms", def.DwellAfterMs)
	v.SetDefault("matcher.min_dwell_ms", def.MinDwellMs)
	v.SetDefault("matcher.entry_rule", def.EntryRule)
	v.SetDefault("matcher.entry_window_ms", def.EntryWindowMs)
	v.SetDefault("matcher.entry_radius", def.EntryRadius)
	v.SetDefault("matcher.dedup_radius", def.DedupRadius)
	v.SetDefault("matcher.dedup_window_ms", def.DedupWindowMs)

	v.SetDefault("proxy.timeout", 30*time.Second)
	v.SetDefault("proxy.ytdlp", true)
	v.SetDefault("proxy.cache_ttl", 30*time.Minute)
}

// Loader owns the viper instance and the current decoded Config.
type Loader struct {
	v *viper.Viper

	mu  sync.RWMutex
	cur *Config
}

// Load reads dir/.env (if present) into the environment, then config.yaml
// from dir, then GAZE_* variables. A missing file is not an error.
func Load(dir string) (*Loader, error) {
	if err := LoadEnvFile(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Loader{v: v, cur: cfg}, nil
}

// LoadEnvFile copies a dotenv file into the process environment without
// overriding variables that are already set.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	// Env values arrive comma-separated, possibly with spaces.
	cfg.Server.CORSOrigins = splitList(strings.Join(cfg.Server.CORSOrigins, ","))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr must be set")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if strings.EqualFold(c.Database.Driver, "postgres") && c.Database.DSN == "" {
		return errors.New("config: database.dsn is required for postgres")
	}
	if c.Matcher.Radius < 0 || c.Matcher.Radius > 1 {
		return fmt.Errorf("config: matcher.radius %v is outside [0,1]", c.Matcher.Radius)
	}
	m := c.Matcher
	for name, v := range map[string]int64{
		"dwell_before_ms": m.DwellBeforeMs,
		"dwell_after_ms":  m.DwellAfterMs,
		"min_dwell_ms":    m.MinDwellMs,
		"entry_window_ms": m.EntryWindowMs,
		"dedup_window_ms": m.DedupWindowMs,
	} {
		if v < 0 {
			return fmt.Errorf("config: matcher.%s must not be negative, got %d", name, v)
		}
	}
	if m.DedupRadius < 0 || m.EntryRadius < 0 {
		return errors.New("config: matcher radii must not be negative")
	}
	if c.Session.Precision < 0 || c.Session.Precision > 10 {
		return fmt.Errorf("config: session.precision %d is outside [0,10]", c.Session.Precision)
	}
	return nil
}

// Config returns the current configuration. Treat it as read-only.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// ConfigFile is the path of the file in use, or "" when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Reload decodes the configuration again. A config that fails to decode
// or validate leaves the previous one in place.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := decode(l.v)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cur = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Watch hot-reloads config.yaml and hands every valid new config to onChange.
func (l *Loader) Watch(log *zap.Logger, onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		cfg, err := l.Reload()
		if err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}
