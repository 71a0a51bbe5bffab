// Package config loads runtime settings from an optional config file, a .env
// file and VAULT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vdutts/vault/pin"
)

// EnvPrefix is prepended to every environment variable, e.g. VAULT_DATA_DIR.
const EnvPrefix = "VAULT"

// Storage backends.
const (
	BackendBBolt  = "bbolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds every setting the CLI and the server need.
type Config struct {
	DataDir        string   `mapstructure:"data_dir"`
	Backend        string   `mapstructure:"backend"`
	Namespace      string   `mapstructure:"namespace"`
	LegacyHash     bool     `mapstructure:"legacy_hash"`
	MaxAttempts    int      `mapstructure:"max_attempts"`
	Revalidate     bool     `mapstructure:"revalidate"`
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Identity IdentityConfig `mapstructure:"identity"`
	KDF      KDFConfig      `mapstructure:"kdf"`
	Log      LogConfig      `mapstructure:"log"`
}

// IdentityConfig selects the primary identity provider. An empty URL selects
// the in-process provider, which is only useful for local development.
type IdentityConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	// DevUsers seeds the in-process provider with "email:password" entries.
	DevUsers []string `mapstructure:"dev_users"`
}

// KDFConfig holds the Argon2id cost used for new PIN records.
type KDFConfig struct {
	Time        uint32 `mapstructure:"time"`
	MemoryKiB   uint32 `mapstructure:"memory_kib"`
	Parallelism uint8  `mapstructure:"parallelism"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// KDFParams converts the configured cost into store parameters.
func (c Config) KDFParams() pin.KDFParams {
	p := pin.DefaultKDFParams()
	p.Time = c.KDF.Time
	p.MemoryKiB = c.KDF.MemoryKiB
	p.Parallelism = c.KDF.Parallelism
	return p
}

// DefaultDataDir returns the per-user directory for the device store.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "vault")
	}
	return ".vault"
}

func setDefaults(v *viper.Viper) {
	kdf := pin.DefaultKDFParams()
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("backend", BackendBBolt)
	v.SetDefault("namespace", pin.DefaultNamespace)
	v.SetDefault("legacy_hash", false)
	v.SetDefault("max_attempts", 0)
	v.SetDefault("revalidate", true)
	v.SetDefault("listen", "127.0.0.1:8743")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("identity.url", "")
	v.SetDefault("identity.api_key", "")
	v.SetDefault("identity.dev_users", []string{})
	v.SetDefault("kdf.time", kdf.Time)
	v.SetDefault("kdf.memory_kib", kdf.MemoryKiB)
	v.SetDefault("kdf.parallelism", kdf.Parallelism)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment binding set up.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present), the optional config file at path and the
// environment into a Config. An empty path skips the config file.
func Load(v *viper.Viper, path string) (Config, error) {
	// Values already set in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	// Lists from the environment are comma separated and may carry spaces.
	cfg.AllowedOrigins = splitList(strings.Join(cfg.AllowedOrigins, ","))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendBBolt, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendBBolt, BackendSQLite, BackendMemory)
	}
	if c.Namespace == "" {
		return errors.New("namespace must not be empty")
	}
	if c.MaxAttempts < 0 {
		return errors.New("max_attempts must not be negative")
	}
	if c.Backend != BackendMemory && c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	for _, u := range c.Identity.DevUsers {
		if email, password, ok := strings.Cut(u, ":"); !ok || email == "" || password == "" {
			return fmt.Errorf("identity.dev_users entry %q is not email:password", u)
		}
	}
	if err := c.KDFParams().Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
