// Package config loads the client configuration from defaults, an optional
// YAML file and COLLAB_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Below are the default values of the client config.
const (
	DefaultURL       = "ws://localhost:4000/ws"
	DefaultTransport = TransportGorilla
	DefaultCodec     = "json"

	DefaultReconnectMaxAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultReconnectBackoff     = BackoffFixed

	DefaultCheckInterval = 5 * time.Second
	DefaultDialTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultPurgeOnLeave  = true
	DefaultPresenceTTL   = time.Duration(0)

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// EnvPrefix prefixes every environment variable, e.g. COLLAB_URL or
// COLLAB_RECONNECT_MAX_ATTEMPTS.
const EnvPrefix = "COLLAB"

const (
	TransportGorilla = "gorilla"
	TransportGWS     = "gws"

	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Config is the configuration of a collaboration client.
type Config struct {
	// URL is the websocket endpoint of the collaboration server.
	URL string `mapstructure:"url" yaml:"url" validate:"required,url"`
	// Transport selects the websocket library.
	Transport string `mapstructure:"transport" yaml:"transport" validate:"oneof=gorilla gws"`
	// Codec selects the wire encoding.
	Codec string `mapstructure:"codec" yaml:"codec" validate:"oneof=json cbor"`

	Reconnect Reconnect `mapstructure:"reconnect" yaml:"reconnect"`

	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval" validate:"gt=0"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" validate:"gt=0"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`

	// PurgeOnLeave removes a project's entities from the store when its
	// room is left.
	PurgeOnLeave bool `mapstructure:"purge_on_leave" yaml:"purge_on_leave"`
	// PresenceTTL evicts silent document participants. Zero disables it.
	PresenceTTL time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl" validate:"gte=0"`

	Log Log `mapstructure:"log" yaml:"log"`
}

// Reconnect is the automatic reconnection policy.
type Reconnect struct {
	// MaxAttempts bounds reconnection; 0 retries forever.
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=0"`
	Delay       time.Duration `mapstructure:"delay" yaml:"delay" validate:"gt=0"`
	Backoff     string        `mapstructure:"backoff" yaml:"backoff" validate:"oneof=fixed exponential"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json zerolog zap"`
}

var validate = validator.New()

// New returns a Config with the default values.
func New() *Config {
	return &Config{
		URL:       DefaultURL,
		Transport: DefaultTransport,
		Codec:     DefaultCodec,
		Reconnect: Reconnect{
			MaxAttempts: DefaultReconnectMaxAttempts,
			Delay:       DefaultReconnectDelay,
			Backoff:     DefaultReconnectBackoff,
		},
		CheckInterval: DefaultCheckInterval,
		DialTimeout:   DefaultDialTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		PurgeOnLeave:  DefaultPurgeOnLeave,
		PresenceTTL:   DefaultPresenceTTL,
		Log: Log{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// NewViper returns a viper instance holding the defaults and reading the
// environment. Callers may bind flags to it before LoadFrom.
func NewViper() *viper.Viper {
	v := viper.New()

	d := New()
	v.SetDefault("url", d.URL)
	v.SetDefault("transport", d.Transport)
	v.SetDefault("codec", d.Codec)
	v.SetDefault("reconnect.max_attempts", d.Reconnect.MaxAttempts)
	v.SetDefault("reconnect.delay", d.Reconnect.Delay)
	v.SetDefault("reconnect.backoff", d.Reconnect.Backoff)
	v.SetDefault("check_interval", d.CheckInterval)
	v.SetDefault("dial_timeout", d.DialTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("purge_on_leave", d.PurgeOnLeave)
	v.SetDefault("presence_ttl", d.PresenceTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file at path, if any, over the defaults and the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	return LoadFrom(NewViper(), path)
}

// LoadFrom is Load on a caller-prepared viper instance.
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	conf := &Config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url %q: scheme must be ws or wss", c.URL)
	}
	return nil
}

// ParsedURL returns URL as a url.URL. It assumes Validate passed.
func (c *Config) ParsedURL() *url.URL {
	u, _ := url.Parse(c.URL)
	return u
}

// YAML renders the config in the file format Load reads.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
