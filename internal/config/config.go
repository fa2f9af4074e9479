package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/drone/envsubst"
	"github.com/subosito/gotenv"
	"go.yaml.in/yaml/v4"
)

// Config holds all application configuration for both the driver client and the
// reference coordination server.
type Config struct {
	Channel     ChannelConfig     `yaml:"channel"`
	Client      ClientConfig      `yaml:"client"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Database    DatabaseConfig    `yaml:"database"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Auth        AuthConfig        `yaml:"auth"`
	Log         LogConfig         `yaml:"log"`
}

// ChannelConfig contains the connection parameters of the realtime channel.
type ChannelConfig struct {
	ServerURL         string        `yaml:"server_url"`         // e.g. "ws://localhost:8080/ws"
	Transports        []string      `yaml:"transports"`         // negotiation order, "websocket" and/or "polling"
	ReconnectAttempts int           `yaml:"reconnect_attempts"` // 0 disables reconnection
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	PingPeriod        time.Duration `yaml:"ping_period"`
}

// ClientConfig contains driver-side settings.
type ClientConfig struct {
	AuthTimeout      time.Duration `yaml:"auth_timeout"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	LocationInterval time.Duration `yaml:"location_interval"`
	OutboxPath       string        `yaml:"outbox_path"` // empty keeps the outbound queue in memory
}

// CoordinatorConfig contains settings of the reference coordination server.
type CoordinatorConfig struct {
	Address    string        `yaml:"address"` // HTTP listen address for /ws and /poll
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file path
}

// GRPCConfig contains dispatch API settings.
type GRPCConfig struct {
	Address string `yaml:"address"` // e.g. ":50051"
}

// AuthConfig contains token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load loads configuration for production use. It fails when JWT_SECRET is not set.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, cfg.Validate()
}

// LoadWithDefaults is like Load but uses a development default for JWT_SECRET.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	cfg, err := load("dev-secret-change-me")
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Defaults returns the built-in configuration before any file or environment is applied.
func Defaults() *Config {
	return &Config{
		Channel: ChannelConfig{
			ServerURL:         "ws://localhost:8080/ws",
			Transports:        []string{"websocket", "polling"},
			ReconnectAttempts: 5,
			ReconnectDelay:    time.Second,
			ReconnectDelayMax: 10 * time.Second,
			ConnectTimeout:    20 * time.Second,
			PingPeriod:        30 * time.Second,
		},
		Client: ClientConfig{
			AuthTimeout:      10 * time.Second,
			FetchTimeout:     10 * time.Second,
			LocationInterval: 15 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			Address:    ":8080",
			SessionTTL: 12 * time.Hour,
		},
		Database: DatabaseConfig{Path: "fieldops.db"},
		GRPC:     GRPCConfig{Address: ":50051"},
		Log:      LogConfig{Level: "info"},
	}
}

func load(defaultSecret string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := Defaults()
	if path := getEnv("FIELDOPS_CONFIG", ""); path != "" {
		if err := cfg.mergeYAMLFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = defaultSecret
	}
	return cfg, nil
}

// loadDotEnv reads KEY=VALUE pairs from path when it exists. Variables already present
// in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// mergeYAMLFile overlays a YAML file on top of c. ${VAR} and ${VAR:-default}
// references are expanded from the environment before parsing.
func (c *Config) mergeYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	replaced, err := envsubst.EvalEnv(string(data))
	if err != nil {
		return fmt.Errorf("expand config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(replaced), c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	c.Channel.ServerURL = getEnv("FIELDOPS_SERVER_URL", c.Channel.ServerURL)
	c.Channel.Transports = getEnvList("FIELDOPS_TRANSPORTS", c.Channel.Transports)
	if c.Channel.ReconnectAttempts, err = getEnvInt("FIELDOPS_RECONNECT_ATTEMPTS", c.Channel.ReconnectAttempts); err != nil {
		return err
	}
	if c.Channel.ReconnectDelay, err = getEnvDuration("FIELDOPS_RECONNECT_DELAY", c.Channel.ReconnectDelay); err != nil {
		return err
	}
	if c.Channel.ReconnectDelayMax, err = getEnvDuration("FIELDOPS_RECONNECT_DELAY_MAX", c.Channel.ReconnectDelayMax); err != nil {
		return err
	}
	if c.Channel.ConnectTimeout, err = getEnvDuration("FIELDOPS_CONNECT_TIMEOUT", c.Channel.ConnectTimeout); err != nil {
		return err
	}
	if c.Channel.PingPeriod, err = getEnvDuration("FIELDOPS_PING_PERIOD", c.Channel.PingPeriod); err != nil {
		return err
	}
	if c.Client.AuthTimeout, err = getEnvDuration("FIELDOPS_AUTH_TIMEOUT", c.Client.AuthTimeout); err != nil {
		return err
	}
	if c.Client.FetchTimeout, err = getEnvDuration("FIELDOPS_FETCH_TIMEOUT", c.Client.FetchTimeout); err != nil {
		return err
	}
	if c.Client.LocationInterval, err = getEnvDuration("FIELDOPS_LOCATION_INTERVAL", c.Client.LocationInterval); err != nil {
		return err
	}
	c.Client.OutboxPath = getEnv("FIELDOPS_OUTBOX_PATH", c.Client.OutboxPath)
	c.Coordinator.Address = getEnv("HTTP_ADDRESS", c.Coordinator.Address)
	if c.Coordinator.SessionTTL, err = getEnvDuration("SESSION_TTL", c.Coordinator.SessionTTL); err != nil {
		return err
	}
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.GRPC.Address = getEnv("GRPC_ADDRESS", c.GRPC.Address)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	return nil
}

// Validate rejects settings the channel cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Channel.ServerURL) == "" {
		return errors.New("channel server url is empty")
	}
	if len(c.Channel.Transports) == 0 {
		return errors.New("no channel transports configured")
	}
	for _, tr := range c.Channel.Transports {
		if tr != "websocket" && tr != "polling" {
			return fmt.Errorf("unknown channel transport %q", tr)
		}
	}
	if c.Channel.ReconnectAttempts < 0 {
		return errors.New("reconnect attempts must not be negative")
	}
	if c.Channel.ConnectTimeout <= 0 || c.Client.AuthTimeout <= 0 || c.Client.FetchTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

// getEnvDuration accepts Go durations ("1500ms") or plain milliseconds ("1500").
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string, defaultVal []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: %s, Transports: %v, DB: %s, HTTP: %s, gRPC: %s, Auth: *** (masked) ***}",
		c.Channel.ServerURL, c.Channel.Transports, c.Database.Path, c.Coordinator.Address, c.GRPC.Address)
}
