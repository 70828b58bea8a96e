package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. KNIGHTLIFE_SERVER_ADDR.
const EnvPrefix = "KNIGHTLIFE"

const (
	BackendAuto     = "auto"
	BackendSupabase = "supabase"
	BackendLocal    = "local"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Backend  BackendConfig  `mapstructure:"backend" yaml:"backend"`
	Supabase SupabaseConfig `mapstructure:"supabase" yaml:"supabase"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Admin    AdminConfig    `mapstructure:"admin" yaml:"admin"`
	Refresh  RefreshConfig  `mapstructure:"refresh" yaml:"refresh"`
	TUI      TUIConfig      `mapstructure:"tui" yaml:"tui"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	OriginPatterns []string `mapstructure:"origin_patterns" yaml:"origin_patterns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// BackendConfig selects where records live. Auto uses the hosted backend
// when a URL is configured and the local database otherwise.
type BackendConfig struct {
	Kind         string        `mapstructure:"kind" yaml:"kind"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type SupabaseConfig struct {
	URL             string        `mapstructure:"url" yaml:"url"`
	AnonKey         string        `mapstructure:"anon_key" yaml:"anon_key"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
}

// SessionConfig is the storage for the auth session. RedisURL wins over the
// SQLite store; Passphrase enables encryption of the SQLite store.
type SessionConfig struct {
	RedisURL    string `mapstructure:"redis_url" yaml:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	Passphrase  string `mapstructure:"passphrase" yaml:"passphrase"`
}

type AdminConfig struct {
	EventsPassword     string        `mapstructure:"events_password" yaml:"events_password"`
	EventsPasswordHash string        `mapstructure:"events_password_hash" yaml:"events_password_hash"`
	SearchPassword     string        `mapstructure:"search_password" yaml:"search_password"`
	SearchPasswordHash string        `mapstructure:"search_password_hash" yaml:"search_password_hash"`
	SecretKey          string        `mapstructure:"secret_key" yaml:"secret_key"`
	DevBuild           bool          `mapstructure:"dev_build" yaml:"dev_build"`
	TapThreshold       int           `mapstructure:"tap_threshold" yaml:"tap_threshold"`
	TapWindow          time.Duration `mapstructure:"tap_window" yaml:"tap_window"`
}

// RefreshConfig schedules background reloads. An empty Cron disables them.
type RefreshConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

type TUIConfig struct {
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.origin_patterns", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.path", "knightlife.db")
	v.SetDefault("backend.kind", BackendAuto)
	v.SetDefault("backend.read_timeout", 10*time.Second)
	v.SetDefault("backend.write_timeout", 10*time.Second)
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anon_key", "")
	v.SetDefault("supabase.refresh_interval", 30*time.Second)
	v.SetDefault("session.redis_url", "")
	v.SetDefault("session.redis_prefix", "knightlife:")
	v.SetDefault("session.passphrase", "")
	v.SetDefault("admin.events_password", "")
	v.SetDefault("admin.events_password_hash", "")
	v.SetDefault("admin.search_password", "")
	v.SetDefault("admin.search_password_hash", "")
	v.SetDefault("admin.secret_key", "")
	v.SetDefault("admin.dev_build", false)
	v.SetDefault("admin.tap_threshold", 5)
	v.SetDefault("admin.tap_window", 3*time.Second)
	v.SetDefault("refresh.cron", "*/5 * * * *")
	v.SetDefault("tui.log_file", "knightlife-tui.log")
}

// Path returns the config file path from KNIGHTLIFE_CONFIG, or "".
func Path() string {
	return os.Getenv(EnvPrefix + "_CONFIG")
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads defaults, then the YAML file at Path() if set, then
// KNIGHTLIFE_* environment overrides.
func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	c.Backend.Kind = strings.ToLower(strings.TrimSpace(c.Backend.Kind))
	if c.Backend.Kind == "" {
		c.Backend.Kind = BackendAuto
	}
	c.Supabase.URL = strings.TrimRight(strings.TrimSpace(c.Supabase.URL), "/")
	c.Refresh.Cron = strings.TrimSpace(c.Refresh.Cron)
	var origins []string
	for _, o := range c.Server.OriginPatterns {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.OriginPatterns = origins
}

// BackendKind resolves BackendAuto to the concrete backend.
func (c Config) BackendKind() string {
	if c.Backend.Kind != BackendAuto {
		return c.Backend.Kind
	}
	if c.Supabase.URL != "" {
		return BackendSupabase
	}
	return BackendLocal
}

// Validate reports configuration that would fail at runtime.
func (c Config) Validate() error {
	var errs []error
	switch c.BackendKind() {
	case BackendLocal:
	case BackendSupabase:
		if c.Supabase.URL == "" {
			errs = append(errs, errors.New("supabase.url is required for the supabase backend"))
		}
		if c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("supabase.anon_key is required for the supabase backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.kind %q must be auto, supabase, or local", c.Backend.Kind))
	}
	if c.Refresh.Cron != "" {
		if _, err := cron.ParseStandard(c.Refresh.Cron); err != nil {
			errs = append(errs, fmt.Errorf("refresh.cron: %w", err))
		}
	}
	if c.Admin.TapThreshold < 1 {
		errs = append(errs, errors.New("admin.tap_threshold must be at least 1"))
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"backend.read_timeout", c.Backend.ReadTimeout},
		{"backend.write_timeout", c.Backend.WriteTimeout},
		{"supabase.refresh_interval", c.Supabase.RefreshInterval},
		{"admin.tap_window", c.Admin.TapWindow},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.key, d.value))
		}
	}
	return errors.Join(errs...)
}

// Save writes cfg as YAML to path atomically with 0600 permissions.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".knightlife-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
