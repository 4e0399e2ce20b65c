package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/teslamqtt/core/bridge"
	"github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/infra/mqtt"
)

// legacyEnv maps the historical environment variables onto config keys.
var legacyEnv = map[string]string{
	"TESLA_REFRESH_TOKEN": "tesla.auth.refresh_token",
	"MQTT_URL":            "mqtt.broker",
	"MQTT_USERNAME":       "mqtt.username",
	"MQTT_PASSWORD":       "mqtt.password",
}

type Config struct {
	Tesla   TeslaConfig    `json:"tesla"`
	MQTT    mqtt.Config    `json:"mqtt"`
	Bridge  bridge.Config  `json:"bridge"`
	Wake    WakeConfig     `json:"wake"`
	Metrics metrics.Config `json:"metrics"`
	Logging LoggingConfig  `json:"logging"`
	Sentry  SentryConfig   `json:"sentry"`
}

// Load reads the configuration with Read and validates every section.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the configuration file at path, when it exists, then applies
// environment overrides and defaults. An empty path only reads the
// environment. The result is not validated.
func Read(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return legacyEnv[s]
	}), nil); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config format: %s", ext)
	}
	return k.Load(file.Provider(path), parser)
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Tesla.SetDefaults()
	c.MQTT.SetDefaults()
	c.Bridge.SetDefaults()
	c.Wake.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
	if c.MQTT.WillTopic == "" {
		c.MQTT.WillTopic = c.Bridge.StatusTopic()
		c.MQTT.WillPayload = bridge.StatusOffline
		c.MQTT.WillRetain = true
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Tesla.Validate(); err != nil {
		return fmt.Errorf("tesla: %w", err)
	}
	if err := c.ValidateBroker(); err != nil {
		return err
	}
	if err := c.Wake.Validate(); err != nil {
		return fmt.Errorf("wake: %w", err)
	}
	return nil
}

// ValidateBroker checks the sections needed to talk to the broker only.
func (c Config) ValidateBroker() error {
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := c.Bridge.Validate(); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
