// Package config loads parley settings from flags, PARLEY_* environment
// variables, an optional config file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. PARLEY_STORE_DRIVER.
const EnvPrefix = "PARLEY"

type Config struct {
	Log       Log       `mapstructure:"log"`
	Transport Transport `mapstructure:"transport"`
	Store     Store     `mapstructure:"store"`
	Ingest    Ingest    `mapstructure:"ingest"`
	Phone     Phone     `mapstructure:"phone"`
	HTTP      HTTP      `mapstructure:"http"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Contacts  Contacts  `mapstructure:"contacts"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Transport struct {
	Driver  string  `mapstructure:"driver"`
	TextNow TextNow `mapstructure:"textnow"`
	Twilio  Twilio  `mapstructure:"twilio"`
}

type TextNow struct {
	Username   string        `mapstructure:"username"`
	ConnectSID string        `mapstructure:"connect_sid"`
	CSRF       string        `mapstructure:"csrf"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Twilio struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

type Store struct {
	Driver   string   `mapstructure:"driver"`
	Dir      string   `mapstructure:"dir"`
	Redis    Redis    `mapstructure:"redis"`
	Postgres Postgres `mapstructure:"postgres"`
	// EncryptionKey is a base64 encoded 32 byte AES key.
	EncryptionKey  string   `mapstructure:"encryption_key"`
	FallbackKeys   []string `mapstructure:"fallback_keys"`
	RedactPatterns []string `mapstructure:"redact_patterns"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// Lock enables the distributed conversation lock.
	Lock bool `mapstructure:"lock"`
}

type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

type Ingest struct {
	Interval      time.Duration `mapstructure:"interval"`
	Allowlist     []string      `mapstructure:"allowlist"`
	DedupCapacity int           `mapstructure:"dedup_capacity"`
}

type Phone struct {
	CountryCode    string `mapstructure:"country_code"`
	NationalLength int    `mapstructure:"national_length"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type Metrics struct {
	Addr string `mapstructure:"addr"`
}

type Contacts struct {
	// Seed is a YAML file of contacts imported on startup.
	Seed string `mapstructure:"seed"`
}

// SetDefaults registers every key so environment overrides resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("transport.driver", "textnow")
	v.SetDefault("transport.textnow.username", "")
	v.SetDefault("transport.textnow.connect_sid", "")
	v.SetDefault("transport.textnow.csrf", "")
	v.SetDefault("transport.textnow.base_url", "https://www.textnow.com")
	v.SetDefault("transport.textnow.timeout", 30*time.Second)
	v.SetDefault("transport.twilio.account_sid", "")
	v.SetDefault("transport.twilio.auth_token", "")
	v.SetDefault("transport.twilio.from", "")

	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", ".parley/state")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "parley:")
	v.SetDefault("store.redis.lock", false)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("store.fallback_keys", []string{})
	v.SetDefault("store.redact_patterns", []string{})

	v.SetDefault("ingest.interval", 30*time.Second)
	v.SetDefault("ingest.allowlist", []string{})
	v.SetDefault("ingest.dedup_capacity", 1024)

	v.SetDefault("phone.country_code", "1")
	v.SetDefault("phone.national_length", 10)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("contacts.seed", "")
}

// New returns a viper instance wired for parley: defaults, env prefix and,
// when file is not empty, the config file.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerations and required fields.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport.Driver {
	case "memory":
	case "textnow":
		if c.Transport.TextNow.Username == "" || c.Transport.TextNow.ConnectSID == "" {
			errs = append(errs, errors.New("transport.textnow: username and connect_sid are required"))
		}
	case "twilio":
		t := c.Transport.Twilio
		if t.AccountSID == "" || t.AuthToken == "" || t.From == "" {
			errs = append(errs, errors.New("transport.twilio: account_sid, auth_token and from are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.driver: unknown %q (memory, textnow, twilio)", c.Transport.Driver))
	}

	switch c.Store.Driver {
	case "memory", "file", "redis":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown %q (memory, file, redis, postgres)", c.Store.Driver))
	}
	if c.Store.Redis.Lock && c.Store.Driver != "redis" {
		errs = append(errs, errors.New("store.redis.lock requires store.driver=redis"))
	}

	if c.Ingest.Interval <= 0 {
		errs = append(errs, errors.New("ingest.interval must be positive"))
	}
	if c.Ingest.DedupCapacity <= 0 {
		errs = append(errs, errors.New("ingest.dedup_capacity must be positive"))
	}
	if c.Phone.NationalLength <= 0 {
		errs = append(errs, errors.New("phone.national_length must be positive"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown %q (text, json)", c.Log.Format))
	}
	return errors.Join(errs...)
}
