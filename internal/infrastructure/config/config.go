package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Protocol names accepted by broker.protocol.
const (
	ProtocolMQTT5 = "mqtt5"
	ProtocolMQTT3 = "mqtt3"
)

// Config is the root configuration structure for imagepub.
// Values come from defaults, an optional YAML file, environment variables
// and finally command-line flags (applied by the caller).
type Config struct {
	ImagesDir string         `yaml:"images_dir"`
	Debug     bool           `yaml:"debug"`
	Broker    BrokerConfig   `yaml:"broker"`
	Auth      AuthConfig     `yaml:"auth"`
	Retry     RetryConfig    `yaml:"retry"`
	Publish   PublishConfig  `yaml:"publish"`
	Logging   LoggingConfig  `yaml:"logging"`
	InfluxDB  InfluxDBConfig `yaml:"influxdb"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

// BrokerConfig contains broker connection details.
type BrokerConfig struct {
	// Host is a broker URL such as tcp://localhost:55555 or tcps://broker:8883.
	Host string `yaml:"host"`

	// VPN is the message VPN name. MQTT brokers select the VPN by listener
	// port, so it is only carried into the client ID and logs.
	VPN string `yaml:"vpn"`

	// Protocol selects the transport: "mqtt5" or "mqtt3".
	Protocol string `yaml:"protocol"`

	// ClientID is generated from the VPN name when empty.
	ClientID string `yaml:"client_id"`

	TLS BrokerTLSConfig `yaml:"tls"`
}

// BrokerTLSConfig contains TLS settings used for secure host schemes.
type BrokerTLSConfig struct {
	// SkipVerify disables server certificate validation.
	SkipVerify bool `yaml:"skip_verify"`
}

// AuthConfig contains basic authentication credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RetryConfig is the connection retry strategy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int `yaml:"max_retries"`

	// Interval is the wait between attempts.
	Interval time.Duration `yaml:"interval"`
}

// PublishConfig contains outbound message settings.
type PublishConfig struct {
	TopicPrefix string        `yaml:"topic_prefix"`
	Delay       time.Duration `yaml:"delay"`
	QoS         int           `yaml:"qos"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InfluxDBConfig contains InfluxDB connection settings for publish telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// PushgatewayURL enables pushing run metrics when non-empty.
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is non-empty
//  3. Environment variables
//
// Broker settings use the SOLACE_ prefix (SOLACE_HOST, SOLACE_VPN,
// SOLACE_USERNAME, SOLACE_PASSWORD). Everything else uses IMAGEPUB_, for
// example IMAGEPUB_IMAGES_DIR or IMAGEPUB_INFLUXDB_TOKEN.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for none
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the stock defaults.
func Default() *Config {
	return &Config{
		ImagesDir: "images",
		Broker: BrokerConfig{
			Host:     "tcp://localhost:55555",
			VPN:      "default",
			Protocol: ProtocolMQTT5,
			TLS: BrokerTLSConfig{
				SkipVerify: true,
			},
		},
		Auth: AuthConfig{
			Username: "default",
			Password: "default",
		},
		Retry: RetryConfig{
			MaxRetries: 20,
			Interval:   3 * time.Second,
		},
		Publish: PublishConfig{
			TopicPrefix: "solace/images",
			Delay:       100 * time.Millisecond,
			QoS:         0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "imagepub",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Job: "imagepub",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	solace := viper.New()
	solace.SetEnvPrefix("SOLACE")
	solace.AutomaticEnv()

	if v := solace.GetString("host"); v != "" {
		cfg.Broker.Host = v
	}
	if v := solace.GetString("vpn"); v != "" {
		cfg.Broker.VPN = v
	}
	if v := solace.GetString("username"); v != "" {
		cfg.Auth.Username = v
	}
	if v := solace.GetString("password"); v != "" {
		cfg.Auth.Password = v
	}

	env := viper.New()
	env.SetEnvPrefix("IMAGEPUB")
	env.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	env.AutomaticEnv()

	if v := env.GetString("images_dir"); v != "" {
		cfg.ImagesDir = v
	}
	if env.GetString("debug") != "" {
		cfg.Debug = env.GetBool("debug")
	}
	if v := env.GetString("broker.protocol"); v != "" {
		cfg.Broker.Protocol = v
	}
	if v := env.GetString("logging.level"); v != "" {
		cfg.Logging.Level = v
	}

	// InfluxDB
	if v := env.GetString("influxdb.url"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := env.GetString("influxdb.token"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := env.GetString("metrics.pushgateway_url"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.ImagesDir == "" {
		errs = append(errs, "images_dir is required")
	}

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	} else if u, err := url.Parse(c.Broker.Host); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("broker.host %q must be a URL such as tcp://host:port", c.Broker.Host))
	} else if _, ok := schemes[strings.ToLower(u.Scheme)]; !ok {
		errs = append(errs, fmt.Sprintf("broker.host scheme %q is not supported", u.Scheme))
	}

	switch c.Broker.Protocol {
	case ProtocolMQTT5, ProtocolMQTT3:
	default:
		errs = append(errs, "broker.protocol must be mqtt5 or mqtt3")
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries must not be negative")
	}
	if c.Retry.Interval < 0 {
		errs = append(errs, "retry.interval must not be negative")
	}

	if c.Publish.TopicPrefix == "" {
		errs = append(errs, "publish.topic_prefix is required")
	}
	if c.Publish.Delay < 0 {
		errs = append(errs, "publish.delay must not be negative")
	}
	if c.Publish.QoS < 0 || c.Publish.QoS > 2 {
		errs = append(errs, "publish.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// schemes maps accepted host URL schemes to whether they imply TLS.
var schemes = map[string]bool{
	"tcp":   false,
	"mqtt":  false,
	"tcps":  true,
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
}

// BrokerURL parses the host and normalises its scheme to tcp or ssl,
// which both MQTT libraries understand.
func (c *Config) BrokerURL() (*url.URL, error) {
	u, err := url.Parse(c.Broker.Host)
	if err != nil {
		return nil, fmt.Errorf("parsing broker host: %w", err)
	}

	secure, ok := schemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}

	normalised := *u
	normalised.Scheme = "tcp"
	if secure {
		normalised.Scheme = "ssl"
	}
	return &normalised, nil
}

// UseTLS reports whether the host scheme requires a secured transport.
func (c *Config) UseTLS() bool {
	u, err := url.Parse(c.Broker.Host)
	if err != nil {
		return false
	}
	return schemes[strings.ToLower(u.Scheme)]
}

// ClientID returns the configured client ID, or generates a unique one
// from the VPN name. Generated IDs are cached on the config.
func (c *Config) ClientID() string {
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = fmt.Sprintf("imagepub-%s-%s", c.Broker.VPN, uuid.NewString()[:8])
	}
	return c.Broker.ClientID
}
