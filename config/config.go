package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEndpoint = "https://www.bitmex.com/api/v1/"
	TestnetEndpoint = "https://testnet.bitmex.com/api/v1/"

	EnvAPIKey    = "BITMEX_API_KEY"
	EnvAPISecret = "BITMEX_API_SECRET"
	EnvEndpoint  = "BITMEX_ENDPOINT"
)

type HeartbeatConfig struct {
	Enabled      bool          `yaml:"enabled" jsonschema:"description=Ask the server for heartbeats and ping the connection"`
	PingInterval time.Duration `yaml:"ping_interval" jsonschema:"description=Time between pings" validate:"required_if=Enabled true,gte=0"`
	PingTimeout  time.Duration `yaml:"ping_timeout" jsonschema:"description=Time to wait for a pong before the connection is considered dead" validate:"required_if=Enabled true,gte=0"`
}

type ReconnectConfig struct {
	MinBackoff time.Duration `yaml:"min_backoff" validate:"gt=0"`
	MaxBackoff time.Duration `yaml:"max_backoff" validate:"gtefield=MinBackoff"`
	Factor     float64       `yaml:"factor" validate:"gte=1"`
	Jitter     bool          `yaml:"jitter"`
	// MaxAuthRetries bounds consecutive authentication failures before giving up. Zero retries forever.
	MaxAuthRetries int `yaml:"max_auth_retries" validate:"gte=0"`
}

type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr" jsonschema:"description=HTTP listen address for /metrics and the table gateway; empty disables it"`
	RPCAddr     string `yaml:"rpc_addr" jsonschema:"description=gRPC listen address; empty disables it"`
}

type Config struct {
	Endpoint  string   `yaml:"endpoint" jsonschema:"description=REST base URL the realtime URL is derived from" validate:"required,url"`
	Symbols   []string `yaml:"symbols" jsonschema:"description=One connection is opened per symbol" validate:"required,min=1,dive,required"`
	Tables    []string `yaml:"tables" jsonschema:"description=Tables to subscribe; entries without a filter are filtered by the symbol" validate:"dive,required"`
	APIKey    string   `yaml:"api_key" validate:"required_with=APISecret"`
	APISecret string   `yaml:"api_secret" validate:"required_with=APIKey"`

	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Reconnect ReconnectConfig `yaml:"reconnect"`

	AuthTimeout time.Duration `yaml:"auth_timeout" validate:"gt=0"`
	// AuthExpiry is added to the current time to form the signed expires value.
	AuthExpiry time.Duration `yaml:"auth_expiry" validate:"gt=0"`
	// ReadyTimeout bounds the wait for the first data of every table. Zero waits until closed.
	ReadyTimeout time.Duration `yaml:"ready_timeout" validate:"gte=0"`

	Keys           map[string][]string `yaml:"keys" jsonschema:"description=Primary key fields per table; tables without keys are append-only"`
	MaxKeylessRows int                 `yaml:"max_keyless_rows" validate:"gte=0"`
	FrameBuffer    int                 `yaml:"frame_buffer" validate:"gte=0"`

	Server   ServerConfig `yaml:"server"`
	LogLevel string       `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultKeys are the primary keys of the realtime tables.
func DefaultKeys() map[string][]string {
	return map[string][]string{
		"orderBookL2":    {"symbol", "id", "side"},
		"orderBookL2_25": {"symbol", "id", "side"},
		"orderBook10":    {"symbol"},
		"instrument":     {"symbol"},
		"quoteBin1m":     {"symbol", "timestamp"},
		"tradeBin1m":     {"symbol", "timestamp"},
		"order":          {"orderID"},
		"execution":      {"execID"},
		"position":       {"account", "symbol", "currency"},
		"margin":         {"account", "currency"},
		"wallet":         {"account", "currency"},
		"affiliate":      {"account", "currency"},
	}
}

func Default() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Symbols:  []string{"XBTUSD"},
		Tables:   []string{"instrument", "orderBookL2"},
		Heartbeat: HeartbeatConfig{
			PingInterval: 25 * time.Second,
			PingTimeout:  10 * time.Second,
		},
		Reconnect: ReconnectConfig{
			MinBackoff: time.Second,
			MaxBackoff: 30 * time.Second,
			Factor:     2,
			Jitter:     true,
		},
		AuthTimeout:    10 * time.Second,
		AuthExpiry:     5 * time.Second,
		Keys:           DefaultKeys(),
		MaxKeylessRows: 200,
		FrameBuffer:    256,
		LogLevel:       "info",
	}
}

// Load reads the YAML file at path over the defaults, then applies the environment.
// An empty path loads the defaults only. A .env file next to the process is honoured when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := LoadEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads .env if present and overrides credentials and endpoint from the environment.
func LoadEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(EnvAPISecret); v != "" {
		cfg.APISecret = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	return nil
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for table, keys := range c.Keys {
		if len(keys) == 0 {
			return fmt.Errorf("invalid config: keys for table %s must not be empty, omit the table instead", table)
		}
	}

	return nil
}

// Authenticated reports whether credentials are configured.
func (c *Config) Authenticated() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// Schema returns the JSON schema of the YAML configuration.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		FieldNameTag:              "yaml",
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|ms|s|m|h))+$`,
					Description: "Go duration, e.g. 25s",
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "bitmex-realtime-config"
	schema.Description = "Configuration of the realtime table mirror"
	return schema
}

func (c *Config) String() string {
	redacted := *c
	if redacted.APISecret != "" {
		redacted.APISecret = strings.Repeat("*", 8)
	}
	out, err := yaml.Marshal(redacted)
	if err != nil {
		return fmt.Sprintf("config(%v)", err)
	}
	return string(out)
}
