// Package config loads formengine settings from a YAML file, FORMENGINE_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/goliatone/go-formengine/pkg/validation"
)

const (
	EnvPrefix  = "formengine"
	ConfigName = "formengine"
)

// Gateway names accepted by payment.gateway.
const (
	GatewayManual = "manual"
	GatewayStripe = "stripe"
)

// ErrInvalid wraps every validation failure of a loaded Config.
var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Backend    BackendConfig    `mapstructure:"backend"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
	Capacity   CapacityConfig   `mapstructure:"capacity"`
	Validation ValidationConfig `mapstructure:"validation"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Mock       MockConfig       `mapstructure:"mock"`

	// Args holds positional arguments left after flag parsing.
	Args []string `mapstructure:"-"`
	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type BackendConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ProbeRate float64       `mapstructure:"probe_rate"`
}

type AuthConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Env   string `mapstructure:"env"`
}

type CapacityConfig struct {
	SlotCeiling     int           `mapstructure:"slot_ceiling"`
	ExamDateCeiling int           `mapstructure:"exam_date_ceiling"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

type ValidationConfig struct {
	FailurePolicy string `mapstructure:"failure_policy"`
	MinimumAge    int    `mapstructure:"minimum_age"`
}

type PaymentConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	Gateway      string        `mapstructure:"gateway"`
	StripeKey    string        `mapstructure:"stripe_key"`
	SuccessURL   string        `mapstructure:"success_url"`
	CancelURL    string        `mapstructure:"cancel_url"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type MockConfig struct {
	Addr       string `mapstructure:"addr"`
	Schemas    string `mapstructure:"schemas"`
	SigningKey string `mapstructure:"signing_key"`
}

// FailurePolicy parses validation.failure_policy.
func (c Config) FailurePolicy() (validation.FailurePolicy, error) {
	return validation.ParseFailurePolicy(c.Validation.FailurePolicy)
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Backend.URL) == "" {
		return fmt.Errorf("%w: backend.url is required", ErrInvalid)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("%w: backend.timeout must be positive", ErrInvalid)
	}
	if c.Capacity.SlotCeiling <= 0 || c.Capacity.ExamDateCeiling <= 0 {
		return fmt.Errorf("%w: capacity ceilings must be positive", ErrInvalid)
	}
	if _, err := c.FailurePolicy(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Payment.PollInterval <= 0 || c.Payment.MaxWait < c.Payment.PollInterval {
		return fmt.Errorf("%w: payment.max_wait must cover at least one poll_interval", ErrInvalid)
	}
	switch strings.ToLower(c.Payment.Gateway) {
	case GatewayManual:
	case GatewayStripe:
		if c.Payment.StripeKey == "" || c.Payment.SuccessURL == "" || c.Payment.CancelURL == "" {
			return fmt.Errorf("%w: stripe gateway needs payment.stripe_key, payment.success_url and payment.cancel_url", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown payment.gateway %q", ErrInvalid, c.Payment.Gateway)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:8080")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("backend.probe_rate", 5.0)
	v.SetDefault("auth.email", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.env", "development")
	v.SetDefault("capacity.slot_ceiling", 25)
	v.SetDefault("capacity.exam_date_ceiling", 300)
	v.SetDefault("capacity.redis_addr", "")
	v.SetDefault("capacity.redis_password", "")
	v.SetDefault("capacity.redis_db", 0)
	v.SetDefault("capacity.cache_ttl", 30*time.Second)
	v.SetDefault("validation.failure_policy", string(validation.FailOpen))
	v.SetDefault("validation.minimum_age", validation.DefaultMinimumAge)
	v.SetDefault("payment.poll_interval", 3*time.Second)
	v.SetDefault("payment.max_wait", 10*time.Minute)
	v.SetDefault("payment.gateway", GatewayManual)
	v.SetDefault("payment.stripe_key", "")
	v.SetDefault("payment.success_url", "")
	v.SetDefault("payment.cancel_url", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("mock.addr", ":8080")
	v.SetDefault("mock.schemas", "")
	v.SetDefault("mock.signing_key", "formengine-mock")
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"backend-url":     "backend.url",
	"backend-timeout": "backend.timeout",
	"email":           "auth.email",
	"password":        "auth.password",
	"log-level":       "log.level",
	"log-env":         "log.env",
	"redis-addr":      "capacity.redis_addr",
	"failure-policy":  "validation.failure_policy",
	"gateway":         "payment.gateway",
	"metrics-addr":    "metrics.addr",
	"addr":            "mock.addr",
	"schemas":         "mock.schemas",
}

// Flags returns the flag set Load parses. Callers may add their own flags
// before handing it to Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path to a formengine.yaml file")
	fs.String("backend-url", "", "backend base URL")
	fs.Duration("backend-timeout", 0, "timeout for each backend request")
	fs.String("email", "", "admin email to log in with")
	fs.String("password", "", "admin password to log in with")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-env", "", "development or production")
	fs.String("redis-addr", "", "redis address for the shared capacity cache")
	fs.String("failure-policy", "", "fail-open or fail-closed")
	fs.String("gateway", "", "payment gateway: manual or stripe")
	fs.String("metrics-addr", "", "serve prometheus metrics on this address")
	fs.String("addr", "", "listen address of the reference backend")
	fs.String("schemas", "", "directory of form schema fixtures")
	return fs
}

// Load parses args with fs (Flags(...) when nil), reads the config file
// and the environment and returns the merged Config.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	if fs == nil {
		fs = Flags(ConfigName)
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}

	path, _ := fs.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Args = fs.Args()
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}
