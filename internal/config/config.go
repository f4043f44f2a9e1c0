package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "evcentral/libs/config"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// HTTPConfig configures the listener shared by the OCPP endpoint and the API.
type HTTPConfig struct {
	Port string `yaml:"port" env:"CSMS_HTTP_PORT"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"CSMS_STORAGE_DRIVER"`
	DSN    string `yaml:"dsn" env:"CSMS_POSTGRES_DSN"`
}

// RedisConfig configures the optional active transaction cache. An empty Addr disables it.
type RedisConfig struct {
	Addr       string `yaml:"addr" env:"CSMS_REDIS_ADDR"`
	Password   string `yaml:"password" env:"CSMS_REDIS_PASSWORD"`
	DB         int    `yaml:"db" env:"CSMS_REDIS_DB"`
	TTLSeconds int    `yaml:"ttlSeconds" env:"CSMS_REDIS_TTL"`
}

// OCPPConfig holds websocket and protocol timings.
type OCPPConfig struct {
	PingIntervalSeconds int  `yaml:"pingIntervalSeconds" env:"CSMS_OCPP_PING_INTERVAL"`
	WriteTimeoutSeconds int  `yaml:"writeTimeoutSeconds" env:"CSMS_OCPP_WRITE_TIMEOUT"`
	ReadTimeoutSeconds  int  `yaml:"readTimeoutSeconds" env:"CSMS_OCPP_READ_TIMEOUT"`
	CallTimeoutSeconds  int  `yaml:"callTimeoutSeconds" env:"CSMS_OCPP_CALL_TIMEOUT"`
	BootIntervalSeconds int  `yaml:"bootIntervalSeconds" env:"CSMS_OCPP_BOOT_INTERVAL"`
	RequireSubprotocol  bool `yaml:"requireSubprotocol" env:"CSMS_OCPP_REQUIRE_SUBPROTOCOL"`
}

// AuthConfig configures bearer token verification on the API. An empty secret
// leaves the API open.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"CSMS_JWT_SECRET"`
}

// RemoteConfig holds the defaults used by API-initiated charging.
type RemoteConfig struct {
	DefaultIDTag     string `yaml:"defaultIdTag" env:"CSMS_DEFAULT_ID_TAG"`
	DefaultConnector int    `yaml:"defaultConnector" env:"CSMS_DEFAULT_CONNECTOR"`
	// Tags are provisioned as Accepted at startup, alongside DefaultIDTag.
	Tags []string `yaml:"tags" env:"CSMS_AUTH_TAGS"`
}

// EventsConfig points at the transaction event sink. An empty URL disables publishing.
type EventsConfig struct {
	URL            string `yaml:"url" env:"CSMS_EVENTS_URL"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" env:"CSMS_EVENTS_TIMEOUT"`
}

// Config defines the central system configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	OCPP    OCPPConfig    `yaml:"ocpp"`
	Auth    AuthConfig    `yaml:"auth"`
	Remote  RemoteConfig  `yaml:"remote"`
	Events  EventsConfig  `yaml:"events"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		HTTP:    HTTPConfig{Port: "8080"},
		Storage: StorageConfig{Driver: StoragePostgres},
		Redis:   RedisConfig{TTLSeconds: 86400},
		OCPP: OCPPConfig{
			PingIntervalSeconds: 30,
			WriteTimeoutSeconds: 15,
			CallTimeoutSeconds:  30,
			BootIntervalSeconds: 10,
			RequireSubprotocol:  true,
		},
		Remote: RemoteConfig{DefaultIDTag: "test", DefaultConnector: 1},
		Events: EventsConfig{TimeoutSeconds: 5},
	}
}

// Load reads the YAML file at path (or $CONFIG_FILE) over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("config: database DSN is required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Remote.DefaultIDTag) == "" {
		return errors.New("config: remote default id tag is required")
	}
	if c.Remote.DefaultConnector < 0 {
		return errors.New("config: remote default connector must not be negative")
	}
	return nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PingInterval returns the websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	return seconds(c.OCPP.PingIntervalSeconds, 30*time.Second)
}

// WriteTimeout returns the websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return seconds(c.OCPP.WriteTimeoutSeconds, 15*time.Second)
}

// ReadTimeout returns how long a silent connection is kept. Zero lets the
// websocket server derive it from the ping interval.
func (c *Config) ReadTimeout() time.Duration {
	return seconds(c.OCPP.ReadTimeoutSeconds, 0)
}

// CallTimeout bounds server-initiated calls.
func (c *Config) CallTimeout() time.Duration {
	return seconds(c.OCPP.CallTimeoutSeconds, 30*time.Second)
}

// BootInterval is the heartbeat interval returned on boot.
func (c *Config) BootInterval() time.Duration {
	return seconds(c.OCPP.BootIntervalSeconds, 10*time.Second)
}

// RedisTTL bounds how long a cached active transaction lives.
func (c *Config) RedisTTL() time.Duration {
	return seconds(c.Redis.TTLSeconds, 24*time.Hour)
}

// EventsTimeout bounds a single event delivery.
func (c *Config) EventsTimeout() time.Duration {
	return seconds(c.Events.TimeoutSeconds, 5*time.Second)
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}
