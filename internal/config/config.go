package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"latctl/internal/shaper"
)

// LocalZoneEnv names the environment variable carrying the local zone
// identifier. The config file and --local-zone flag override it.
const LocalZoneEnv = "LOCAL_DNS"

// Config holds the shaping settings for one run.
type Config struct {
	Interface string `yaml:"interface"`
	Rate      string `yaml:"rate"`
	LocalZone string `yaml:"local_zone"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// FromEnvironment fills LocalZone from the environment when the file (or
// flags) left it empty.
func FromEnvironment(cfg *Config) {
	if cfg.LocalZone == "" {
		cfg.LocalZone = os.Getenv(LocalZoneEnv)
	}
}

// Validate performs minimal validation for required fields. LocalZone must
// be known before any hostname is resolved or command generated.
func Validate(cfg Config) error {
	if cfg.LocalZone == "" {
		return fmt.Errorf("local zone is required (set %s, local_zone in the config file, or --local-zone)", LocalZoneEnv)
	}
	if cfg.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Interface == "" {
		cfg.Interface = shaper.DefaultInterface
	}
	if cfg.Rate == "" {
		cfg.Rate = shaper.DefaultRate
	}
}
