// Package config loads paperscout settings from flags, PAPERSCOUT_*
// environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/aravindh-murugesan/paperscout-go/internal/storage"
)

// EnvPrefix is prepended to every environment key, e.g. PAPERSCOUT_BASE_URL.
const EnvPrefix = "PAPERSCOUT"

// Config is the decoded configuration tree.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LogLevel       string        `mapstructure:"log_level"`
	Verbose        bool          `mapstructure:"verbose"`

	Retry       Retry       `mapstructure:"retry"`
	RateLimit   RateLimit   `mapstructure:"rate_limit"`
	Storage     Storage     `mapstructure:"storage"`
	Credentials Credentials `mapstructure:"credentials"`
	Webhook     Webhook     `mapstructure:"webhook"`
	Daemon      Daemon      `mapstructure:"daemon"`
}

type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// RateLimit throttles outbound requests. QPS 0 disables it.
type RateLimit struct {
	QPS   float32 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

type Storage struct {
	storage.Target `mapstructure:",squash"`

	SignatureExpires time.Duration `mapstructure:"signature_expires"`
	DownloadDir      string        `mapstructure:"download_dir"`
}

type Credentials struct {
	SafetyMargin   time.Duration `mapstructure:"safety_margin"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
}

// Webhook enables the webhook navigator when URL is set.
type Webhook struct {
	URL           string        `mapstructure:"url"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	SkipTLSVerify bool          `mapstructure:"skip_tls_verify"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	// Timeout bounds how long a failing call waits on navigation.
	Timeout time.Duration `mapstructure:"timeout"`
}

type Daemon struct {
	PrewarmSchedule string `mapstructure:"prewarm_schedule"`
	SweepSchedule   string `mapstructure:"sweep_schedule"`
	BindAddress     string `mapstructure:"bind_address"`
	UIPort          int    `mapstructure:"ui_port"`
	MetricsPath     string `mapstructure:"metrics_path"`
}

// New returns a viper instance reading PAPERSCOUT_* variables and, when
// configFile is set, that file. Without configFile it looks for
// paperscout.yaml in the working directory and ~/.config/paperscout; a
// missing file there is not an error.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("paperscout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/paperscout")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8080/api")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("verbose", false)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", time.Second)

	v.SetDefault("rate_limit.qps", 0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("storage.backend", storage.BackendS3)
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.path_style", false)
	v.SetDefault("storage.signature_expires", storage.DefaultExpires)
	v.SetDefault("storage.download_dir", ".")

	v.SetDefault("credentials.safety_margin", 5*time.Minute)
	v.SetDefault("credentials.refresh_timeout", 30*time.Second)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.username", "")
	v.SetDefault("webhook.password", "")
	v.SetDefault("webhook.skip_tls_verify", false)
	v.SetDefault("webhook.cooldown", time.Minute)
	v.SetDefault("webhook.timeout", 5*time.Second)

	v.SetDefault("daemon.prewarm_schedule", "*/5 * * * *")
	v.SetDefault("daemon.sweep_schedule", "* * * * *")
	v.SetDefault("daemon.bind_address", "0.0.0.0:8080")
	v.SetDefault("daemon.ui_port", 8080)
	v.SetDefault("daemon.metrics_path", "/metrics")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute URL", c.BaseURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, errors.New("retry.delay must not be negative"))
	}
	if c.RateLimit.QPS < 0 {
		errs = append(errs, errors.New("rate_limit.qps must not be negative"))
	}
	if c.RateLimit.QPS > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate_limit.burst must be at least 1 when qps is set"))
	}
	switch c.Storage.Backend {
	case storage.BackendS3, storage.BackendSwift:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be %s or %s", c.Storage.Backend, storage.BackendS3, storage.BackendSwift))
	}
	if c.Storage.SignatureExpires <= 0 {
		errs = append(errs, errors.New("storage.signature_expires must be positive"))
	}
	if c.Credentials.SafetyMargin < 0 {
		errs = append(errs, errors.New("credentials.safety_margin must not be negative"))
	}
	if c.Credentials.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("credentials.refresh_timeout must be positive"))
	}
	if c.Webhook.URL != "" {
		if u, err := url.Parse(c.Webhook.URL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("webhook.url %q is not a valid URL", c.Webhook.URL))
		}
	}

	return errors.Join(errs...)
}
