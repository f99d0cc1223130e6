package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/force-h2020/wfmanager/errors"
)

// EnvPrefix is prepended to environment overrides: nats.url is read from
// WFMANAGER_NATS_URL.
const EnvPrefix = "WFMANAGER"

// Config is the complete configuration of the wfmanager binary.
type Config struct {
	Log          LogConfig          `mapstructure:"log" json:"log"`
	NATS         NATSConfig         `mapstructure:"nats" json:"nats"`
	Store        StoreConfig        `mapstructure:"store" json:"store"`
	Notification NotificationConfig `mapstructure:"notification" json:"notification"`
	Metrics      MetricsConfig      `mapstructure:"metrics" json:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"oneof=json text"`
}

// NATSConfig is the connection used for notifications and workflow storage.
type NATSConfig struct {
	URL           string        `mapstructure:"url" json:"url" validate:"required"`
	Name          string        `mapstructure:"name" json:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects" json:"max_reconnects" validate:"min=-1"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" json:"reconnect_wait" validate:"gte=0"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	Username      string        `mapstructure:"username" json:"username,omitempty"`
	Password      string        `mapstructure:"password" json:"password,omitempty" validate:"required_with=Username"`
	Token         string        `mapstructure:"token" json:"token,omitempty" validate:"excluded_with=Username"`
}

// StoreConfig names the KV bucket workflows are kept in.
type StoreConfig struct {
	Bucket string `mapstructure:"bucket" json:"bucket" validate:"required,kv_bucket"`
}

// NotificationConfig configures both ends of the run notification protocol.
type NotificationConfig struct {
	PubSubject       string        `mapstructure:"pub_subject" json:"pub_subject" validate:"required"`
	SyncSubject      string        `mapstructure:"sync_subject" json:"sync_subject" validate:"required,nefield=PubSubject"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" json:"handshake_timeout" validate:"gt=0"`
	ProtocolVersion  string        `mapstructure:"protocol_version" json:"protocol_version" validate:"required"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Address string `mapstructure:"address" json:"address" validate:"required_if=Enabled true"`
	Path    string `mapstructure:"path" json:"path" validate:"omitempty,startswith=/"`
}

// Default returns the configuration used when no file or environment
// override is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "wfmanager",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Store: StoreConfig{Bucket: "wfmanager_workflows"},
		Notification: NotificationConfig{
			PubSubject:       "wfmanager.notification.pub",
			SyncSubject:      "wfmanager.notification.sync",
			HandshakeTimeout: time.Second,
			ProtocolVersion:  "1",
		},
		Metrics: MetricsConfig{Enabled: true, Address: ":9090", Path: "/metrics"},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("nats.url", cfg.NATS.URL)
	v.SetDefault("nats.name", cfg.NATS.Name)
	v.SetDefault("nats.max_reconnects", cfg.NATS.MaxReconnects)
	v.SetDefault("nats.reconnect_wait", cfg.NATS.ReconnectWait)
	v.SetDefault("nats.timeout", cfg.NATS.Timeout)
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")

	v.SetDefault("store.bucket", cfg.Store.Bucket)

	v.SetDefault("notification.pub_subject", cfg.Notification.PubSubject)
	v.SetDefault("notification.sync_subject", cfg.Notification.SyncSubject)
	v.SetDefault("notification.handshake_timeout", cfg.Notification.HandshakeTimeout)
	v.SetDefault("notification.protocol_version", cfg.Notification.ProtocolVersion)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.address", cfg.Metrics.Address)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

// Load reads the configuration file at path, when path is not empty,
// applies WFMANAGER_* environment overrides on top of the defaults and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := checkConfigFile(path); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "check config file")
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "config", "Load", "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "config", "Load", "decode config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// String returns the configuration as JSON with credentials masked.
func (c *Config) String() string {
	redacted := *c
	for _, secret := range []*string{&redacted.NATS.Password, &redacted.NATS.Token} {
		if *secret != "" {
			*secret = "****"
		}
	}
	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}
