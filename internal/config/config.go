// Package config loads the service configuration from an optional YAML file,
// an optional .env file and environment variables, in that order of precedence
// (later sources win).
package config

import (
	"encoding/json"
	"net"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-forecast/internal/version"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/forecast"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/provider"
)

// Environment variables read by Load.
const (
	EnvConfigPath       = "CONFIG_PATH"
	EnvHost             = "HOST"
	EnvPort             = "PORT"
	EnvProvider         = "PROVIDER"
	EnvProviderBaseURL  = "PROVIDER_BASE_URL"
	EnvCoinGeckoAPIKey  = "COINGECKO_API_KEY"
	EnvPolygonAPIKey    = "POLYGON_API_KEY"
	EnvDataMode         = "DATA_MODE"
	EnvLogLevel         = "LOG_LEVEL"
	EnvRetryMaxAttempts = "RETRY_MAX_ATTEMPTS"
)

// ServerConfig configures the web layer.
type ServerConfig struct {
	Host string `yaml:"host" json:"host" validate:"omitempty,hostname|ip" jsonschema:"title=Host,description=Interface to bind,default=0.0.0.0"`
	Port int    `yaml:"port" json:"port" validate:"min=1,max=65535" jsonschema:"title=Port,minimum=1,maximum=65535,default=5000"`
	// ShutdownTimeout bounds graceful shutdown after the context is cancelled.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gte=0" jsonschema:"title=Shutdown Timeout,default=10s" jsonschema_description:"Go duration, e.g. 10s or 1m30s"`
}

// ProviderConfig selects and configures the market data provider.
type ProviderConfig struct {
	Type    provider.ProviderType `yaml:"type" json:"type" validate:"required,oneof=coingecko yahoo binance polygon" jsonschema:"title=Provider,enum=coingecko,enum=yahoo,enum=binance,enum=polygon,default=coingecko"`
	BaseURL string                `yaml:"base_url" json:"base_url" validate:"omitempty,url" jsonschema:"title=Base URL,description=Overrides the provider endpoint"`
	Timeout time.Duration         `yaml:"timeout" json:"timeout" validate:"gte=0" jsonschema:"title=Request Timeout,default=10s" jsonschema_description:"Go duration, e.g. 10s or 1m30s"`
	// API keys are normally supplied through the environment.
	CoinGeckoAPIKey string `yaml:"coingecko_api_key" json:"coingecko_api_key,omitempty" jsonschema:"title=CoinGecko API Key"`
	PolygonAPIKey   string `yaml:"polygon_api_key" json:"polygon_api_key,omitempty" jsonschema:"title=Polygon API Key"`
}

// APIKey returns the credential of the selected provider.
func (p ProviderConfig) APIKey() string {
	switch p.Type {
	case provider.ProviderCoinGecko:
		return p.CoinGeckoAPIKey
	case provider.ProviderPolygon:
		return p.PolygonAPIKey
	default:
		return ""
	}
}

// ForecastConfig holds the defaults applied to forecast requests.
type ForecastConfig struct {
	Days    int     `yaml:"days" json:"days" validate:"min=2,max=36500" jsonschema:"title=History Days,default=365"`
	Horizon int     `yaml:"horizon" json:"horizon" validate:"min=1,max=3650" jsonschema:"title=Horizon,description=Forecast periods past the last close,default=180"`
	Z       float64 `yaml:"z" json:"z" validate:"gt=0" jsonschema:"title=Band Z Score,default=1.2816"`
}

// Config is the complete service configuration.
type Config struct {
	// RequiredVersion is a semver constraint the running build must satisfy, e.g. ">= 1.2".
	RequiredVersion string `yaml:"required_version" json:"required_version,omitempty" jsonschema:"title=Required Version,description=Semver constraint on the application version"`

	Server    ServerConfig               `yaml:"server" json:"server"`
	Provider  ProviderConfig             `yaml:"provider" json:"provider"`
	DataMode  marketdata.DataMode        `yaml:"data_mode" json:"data_mode" validate:"required,oneof=live synthetic" jsonschema:"title=Data Mode,enum=live,enum=synthetic,default=live"`
	LogLevel  string                     `yaml:"log_level" json:"log_level" validate:"required,oneof=debug info warn error" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Retry     marketdata.RetryConfig     `yaml:"retry" json:"retry"`
	Synthetic marketdata.SyntheticConfig `yaml:"synthetic" json:"synthetic"`
	Forecast  ForecastConfig             `yaml:"forecast" json:"forecast"`
}

// Default returns the configuration used when no file or environment is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ShutdownTimeout: 10 * time.Second,
		},
		Provider: ProviderConfig{
			Type:            provider.ProviderCoinGecko,
			BaseURL:         "",
			Timeout:         provider.DefaultTimeout,
			CoinGeckoAPIKey: "",
			PolygonAPIKey:   "",
		},
		DataMode:  marketdata.DataModeLive,
		LogLevel:  "info",
		Retry:     marketdata.DefaultRetryConfig(),
		Synthetic: marketdata.DefaultSyntheticConfig(),
		Forecast: ForecastConfig{
			Days:    marketdata.DefaultDays,
			Horizon: forecast.DefaultHorizon,
			Z:       forecast.DefaultZ,
		},
		RequiredVersion: "",
	}
}

// Load builds the configuration. The YAML file is read from path, or from
// CONFIG_PATH when path is empty; a missing .env file is not an error.
func Load(path string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to load env file", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config file %s", path)
		}
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	config.Retry = config.Retry.WithDefaults()
	config.Synthetic = config.Synthetic.WithDefaults()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	stringVars := map[string]*string{
		EnvHost:            &c.Server.Host,
		EnvProviderBaseURL: &c.Provider.BaseURL,
		EnvCoinGeckoAPIKey: &c.Provider.CoinGeckoAPIKey,
		EnvPolygonAPIKey:   &c.Provider.PolygonAPIKey,
		EnvLogLevel:        &c.LogLevel,
	}

	for key, target := range stringVars {
		if value, ok := lookup(key); ok && value != "" {
			*target = value
		}
	}

	if value, ok := lookup(EnvProvider); ok && value != "" {
		c.Provider.Type = provider.ProviderType(value)
	}

	if value, ok := lookup(EnvDataMode); ok && value != "" {
		c.DataMode = marketdata.DataMode(value)
	}

	intVars := map[string]*int{
		EnvPort:             &c.Server.Port,
		EnvRetryMaxAttempts: &c.Retry.MaxAttempts,
	}

	for key, target := range intVars {
		value, ok := lookup(key)
		if !ok || value == "" {
			continue
		}

		parsed, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "%s must be an integer, got %q", key, value)
		}

		*target = parsed
	}

	return nil
}

// Validate checks every field against its validate tag and the build version
// against RequiredVersion.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if err := version.CheckRequirement(version.GetVersion(), c.RequiredVersion); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "config requires a different application version", err)
	}

	return nil
}

// Addr returns the listen address of the web layer.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ClientConfig converts the configuration into market data client settings.
func (c Config) ClientConfig() marketdata.ClientConfig {
	return marketdata.ClientConfig{
		ProviderType: c.Provider.Type,
		Provider: provider.Config{
			APIKey:  c.Provider.APIKey(),
			BaseURL: c.Provider.BaseURL,
			Timeout: c.Provider.Timeout,
		},
		DataMode:  c.DataMode,
		Retry:     c.Retry,
		Synthetic: c.Synthetic,
	}
}

// LogLinearConfig converts the forecast section into model settings.
func (c Config) LogLinearConfig() forecast.LogLinearConfig {
	config := forecast.DefaultLogLinearConfig()
	config.Z = c.Forecast.Z

	return config
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationPattern matches the strings time.ParseDuration accepts.
const durationPattern = `^-?([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// GenerateSchema returns the JSON schema of the configuration file.
func GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		// Load fills anything missing from Default, so no key is required.
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			// field tags own the description, the tag pass resets it
			if t == durationType {
				return &jsonschema.Schema{
					Type:    "string",
					Pattern: durationPattern,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "argo-forecast-config"
	schema.Description = "Configuration schema for argo-forecast"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON returns the indented JSON schema.
func GenerateSchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}
