// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/herdledger/database/plugin"
	"github.com/getsops/sops/v3/decrypt"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "herdledger.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin      = "badger"
	DefaultMetadataPlugin  = "sqlite"
	DefaultShutdownTimeout = "30s"
	EnvPrefix              = "HERDLEDGER"
)

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

type tempConfig struct {
	Config   yaml.Node                 `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type LedgerConfig struct {
	// DefaultStatus applies to requests without a status
	DefaultStatus   string `yaml:"defaultStatus"   split_words:"true" validate:"omitempty,max=64"`
	DisableReceipts bool   `yaml:"disableReceipts" split_words:"true"`
}

type LockConfig struct {
	Strategy string      `yaml:"strategy" validate:"omitempty,oneof=row memory redis"`
	Redis    RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"         validate:"gte=0"`
	Expiry     time.Duration `yaml:"expiry"     validate:"gte=0"`
	Tries      int           `yaml:"tries"      validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retryDelay" validate:"gte=0" split_words:"true"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"        validate:"required_with=Brokers"`
	WriteTimeout time.Duration `yaml:"writeTimeout" validate:"gte=0"                 split_words:"true"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
	JWTIssuer string `yaml:"jwtIssuer" envconfig:"JWT_ISSUER"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout"`
	// Endpoint is the OTLP HTTP collector, host:port
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	Ledger          LedgerConfig  `yaml:"ledger"`
	Lock            LockConfig    `yaml:"lock"`
	Kafka           KafkaConfig   `yaml:"kafka"`
	Auth            AuthConfig    `yaml:"auth"`
	Tracing         TracingConfig `yaml:"tracing"`
	MetadataPlugin  string        `yaml:"metadataPlugin"  envconfig:"DATABASE_METADATA_PLUGIN"`
	BlobPlugin      string        `yaml:"blobPlugin"      envconfig:"DATABASE_BLOB_PLUGIN"`
	DatabasePath    string        `yaml:"databasePath"    split_words:"true"`
	BindAddr        string        `yaml:"bindAddr"        split_words:"true"`
	ShutdownTimeout string        `yaml:"shutdownTimeout" split_words:"true"`
	ApiPort         uint          `yaml:"apiPort"         split_words:"true"                   validate:"lte=65535"`
	MetricsPort     uint          `yaml:"metricsPort"     split_words:"true"                   validate:"lte=65535"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		MetadataPlugin:  DefaultMetadataPlugin,
		BlobPlugin:      DefaultBlobPlugin,
		DatabasePath:    ".herdledger",
		BindAddr:        "0.0.0.0",
		ShutdownTimeout: DefaultShutdownTimeout,
		ApiPort:         8080,
		MetricsPort:     12799,
		Tracing: TracingConfig{
			Exporter: "otlp",
		},
	}
}

// ListPlugins prints the registered plugins when a plugin flag was set to
// "list" and returns ErrPluginListRequested
func (c *Config) ListPlugins() error {
	if c.BlobPlugin == "list" {
		fmt.Println("Available blob plugins:")
		blobPlugins := plugin.GetPlugins(plugin.PluginTypeBlob)
		for _, p := range blobPlugins {
			fmt.Printf("  %s: %s\n", p.Name, p.Description)
		}
		return ErrPluginListRequested
	}
	if c.MetadataPlugin == "list" {
		fmt.Println("Available metadata plugins:")
		metadataPlugins := plugin.GetPlugins(plugin.PluginTypeMetadata)
		for _, p := range metadataPlugins {
			fmt.Printf("  %s: %s\n", p.Name, p.Description)
		}
		return ErrPluginListRequested
	}
	return nil
}

// ShutdownTimeoutDuration parses ShutdownTimeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout %q: %w", c.ShutdownTimeout, err)
	}
	return d, nil
}

// ApiListenAddress returns the API server's host:port
func (c *Config) ApiListenAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.ApiPort)
}

// findConfigFile looks for ~/.herdledger/herdledger.yaml, then
// /etc/herdledger/herdledger.yaml
func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".herdledger", "herdledger.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/herdledger/herdledger.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// isSopsDocument reports whether a YAML document carries sops metadata
func isSopsDocument(buf []byte) bool {
	var doc map[string]any
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return false
	}
	_, ok := doc["sops"]
	return ok
}

// LoadConfig builds the configuration from defaults, the config file, the
// environment and explicitly set flags in fs, in increasing precedence.
// Plugin options are applied to the plugin registry along the way
func LoadConfig(configFile string, fs *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()
	if fs != nil {
		if f := fs.Lookup("blob"); f != nil {
			cfg.BlobPlugin = f.Value.String()
		}
		if f := fs.Lookup("metadata"); f != nil {
			cfg.MetadataPlugin = f.Value.String()
		}
	}
	if configFile == "" {
		configFile = findConfigFile()
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if isSopsDocument(buf) {
			buf, err = decrypt.Data(buf, "yaml")
			if err != nil {
				return nil, fmt.Errorf("error decrypting config file: %w", err)
			}
		}
		if err := cfg.apply(buf, fs); err != nil {
			return nil, err
		}
	}

	// Process environment variables
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	// Process plugin environment variables
	if err := plugin.ProcessEnvVars(); err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	// Explicit flags win over file and environment
	if fs != nil {
		if fs.Changed("blob") {
			cfg.BlobPlugin = fs.Lookup("blob").Value.String()
		}
		if fs.Changed("metadata") {
			cfg.MetadataPlugin = fs.Lookup("metadata").Value.String()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

func (c *Config) apply(buf []byte, fs *pflag.FlagSet) error {
	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	if !tempCfg.Config.IsZero() {
		// Overlay the config section onto existing defaults
		if err := tempCfg.Config.Decode(c); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		// Otherwise unmarshal the whole file as main config
		if err := yaml.Unmarshal(buf, c); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	if tempCfg.Metadata != nil {
		pluginConfig["metadata"] = tempCfg.Metadata
	}
	if tempCfg.Database != nil {
		if tempCfg.Database.Blob != nil {
			if name, ok := extractPluginName(tempCfg.Database.Blob); ok {
				c.BlobPlugin = name
			}
			mergePluginSection(pluginConfig, "blob", tempCfg.Database.Blob)
		}
		if tempCfg.Database.Metadata != nil {
			if name, ok := extractPluginName(tempCfg.Database.Metadata); ok {
				c.MetadataPlugin = name
			}
			mergePluginSection(pluginConfig, "metadata", tempCfg.Database.Metadata)
		}
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig, fs); err != nil {
			return fmt.Errorf("error processing plugin config: %w", err)
		}
	}
	return nil
}

// extractPluginName removes and returns the "plugin" key of a database
// section
func extractPluginName(section map[string]any) (string, bool) {
	pluginVal, exists := section["plugin"]
	if !exists {
		return "", false
	}
	pluginName, ok := pluginVal.(string)
	if !ok {
		return "", false
	}
	delete(section, "plugin")
	return pluginName, true
}

func mergePluginSection(
	pluginConfig map[string]map[string]map[string]any,
	pluginType string,
	section map[string]any,
) {
	sectionConfig := make(map[string]map[string]any)
	for k, v := range section {
		switch val := v.(type) {
		case map[string]any:
			sectionConfig[k] = val
		case map[any]any:
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			sectionConfig[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				pluginType,
				k,
				v,
			)
		}
	}
	if pluginConfig[pluginType] == nil {
		pluginConfig[pluginType] = sectionConfig
	} else {
		maps.Copy(pluginConfig[pluginType], sectionConfig)
	}
}
