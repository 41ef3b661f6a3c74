// Package config turns viper settings into a validated Config.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"go.klb.dev/csync/internal/formatter"
	"go.klb.dev/csync/internal/transport"
)

// Setting keys. Nested keys map to CSYNC_REDIS_HOST style env vars.
const (
	KeyName             = "name"
	KeyPassword         = "password"
	KeyCipher           = "cipher"
	KeyNamespace        = "namespace"
	KeyWatch            = "watch"
	KeyReadOnly         = "read-only"
	KeyWriteOnly        = "write-only"
	KeyDataDir          = "data-dir"
	KeyRedisHost        = "redis.host"
	KeyRedisPort        = "redis.port"
	KeyRedisUser        = "redis.user"
	KeyRedisPassword    = "redis.password"
	KeyRedisDB          = "redis.db"
	KeyRedisTimeout     = "redis.timeout"
	KeyRedisTLS         = "redis.tls"
	KeyRedisTLSInsecure = "redis.tls-insecure"
)

// MinTimeout is the exclusive lower bound for redis.timeout.
const MinTimeout = 100 * time.Millisecond

const masked = "******"

// Config is the effective configuration of one device.
type Config struct {
	Name      string      `yaml:"name"`
	Password  string      `yaml:"password,omitempty"`
	Cipher    string      `yaml:"cipher"`
	Namespace string      `yaml:"namespace"`
	Watch     []string    `yaml:"watch"`
	ReadOnly  bool        `yaml:"read-only"`
	WriteOnly bool        `yaml:"write-only"`
	DataDir   string      `yaml:"data-dir"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig locates the relay.
type RedisConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user,omitempty"`
	Password    string        `yaml:"password,omitempty"`
	DB          int           `yaml:"db"`
	Timeout     time.Duration `yaml:"timeout"`
	TLS         bool          `yaml:"tls"`
	TLSInsecure bool          `yaml:"tls-insecure"`
}

// DefaultDataDir is $CSYNC_LOCAL, or ~/.local/share/csync.
func DefaultDataDir() string {
	if dir := os.Getenv("CSYNC_LOCAL"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "csync")
	}
	return filepath.Join(home, ".local", "share", "csync")
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	name, _ := os.Hostname()
	v.SetDefault(KeyName, name)
	v.SetDefault(KeyPassword, "")
	v.SetDefault(KeyCipher, formatter.CipherAESGCM)
	v.SetDefault(KeyNamespace, transport.DefaultNamespace)
	v.SetDefault(KeyWatch, []string{})
	v.SetDefault(KeyReadOnly, false)
	v.SetDefault(KeyWriteOnly, false)
	v.SetDefault(KeyDataDir, DefaultDataDir())
	v.SetDefault(KeyRedisHost, "127.0.0.1")
	v.SetDefault(KeyRedisPort, 6379)
	v.SetDefault(KeyRedisUser, "")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyRedisTimeout, transport.DefaultTimeout)
	v.SetDefault(KeyRedisTLS, false)
	v.SetDefault(KeyRedisTLSInsecure, false)
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Name:      v.GetString(KeyName),
		Password:  v.GetString(KeyPassword),
		Cipher:    v.GetString(KeyCipher),
		Namespace: v.GetString(KeyNamespace),
		Watch:     v.GetStringSlice(KeyWatch),
		ReadOnly:  v.GetBool(KeyReadOnly),
		WriteOnly: v.GetBool(KeyWriteOnly),
		DataDir:   v.GetString(KeyDataDir),
		Redis: RedisConfig{
			Host:        v.GetString(KeyRedisHost),
			Port:        v.GetInt(KeyRedisPort),
			User:        v.GetString(KeyRedisUser),
			Password:    v.GetString(KeyRedisPassword),
			DB:          v.GetInt(KeyRedisDB),
			Timeout:     v.GetDuration(KeyRedisTimeout),
			TLS:         v.GetBool(KeyRedisTLS),
			TLSInsecure: v.GetBool(KeyRedisTLSInsecure),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is empty and the hostname could not be determined")
	}
	if c.Namespace == "" {
		return errors.New("namespace must not be empty")
	}
	if c.ReadOnly && c.WriteOnly {
		return errors.New("read-only and write-only are mutually exclusive")
	}
	if c.WriteOnly && len(c.Watch) == 0 {
		return errors.New("write-only requires at least one device in watch")
	}
	switch c.Cipher {
	case "", formatter.CipherAESGCM, formatter.CipherChaCha20Poly1305:
	default:
		return fmt.Errorf("%w %q", formatter.ErrUnknownCipher, c.Cipher)
	}
	for _, w := range c.Watch {
		if w == c.Name {
			return fmt.Errorf("watch must not contain this device's own name %q", w)
		}
	}
	return c.Redis.Validate()
}

// Validate checks the relay settings.
func (r *RedisConfig) Validate() error {
	if r.Host == "" {
		return errors.New("redis host must not be empty")
	}
	if r.Port <= 0 || r.Port > 65535 {
		return fmt.Errorf("invalid redis port %d", r.Port)
	}
	if r.DB < 0 {
		return fmt.Errorf("invalid redis db %d", r.DB)
	}
	if r.Timeout <= MinTimeout {
		return fmt.Errorf("redis timeout %s is too small, must be greater than %s", r.Timeout, MinTimeout)
	}
	return nil
}

// Addr is host:port.
func (r *RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Options builds the go-redis client options. The timeout bounds dialing,
// reads and writes alike.
func (r *RedisConfig) Options() *redis.Options {
	opts := &redis.Options{
		Addr:         r.Addr(),
		Username:     r.User,
		Password:     r.Password,
		DB:           r.DB,
		DialTimeout:  r.Timeout,
		ReadTimeout:  r.Timeout,
		WriteTimeout: r.Timeout,
	}
	if r.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ServerName:         r.Host,
			InsecureSkipVerify: r.TLSInsecure,
		}
	}
	return opts
}

// TransportConfig returns the client settings for this device.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Namespace: c.Namespace,
		Device:    c.Name,
		Timeout:   c.Redis.Timeout,
	}
}

// Formatter builds the payload formatter for the configured password.
func (c *Config) Formatter() (formatter.Formatter, error) {
	return formatter.New(c.Password, c.Cipher)
}

// Masked returns a copy with secrets replaced, for display.
func (c *Config) Masked() Config {
	out := *c
	out.Watch = append([]string(nil), c.Watch...)
	if out.Password != "" {
		out.Password = masked
	}
	if out.Redis.Password != "" {
		out.Redis.Password = masked
	}
	return out
}

// YAML renders the masked config.
func (c *Config) YAML() ([]byte, error) {
	m := c.Masked()
	out, err := yaml.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
