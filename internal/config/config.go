package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models tableside.yml, the store profile.
type Config struct {
	Store struct {
		Name                  string  `yaml:"name"`
		Address               string  `yaml:"address"`
		Lat                   float64 `yaml:"lat"`
		Lng                   float64 `yaml:"lng"`
		Currency              string  `yaml:"currency"`
		TaxRate               float64 `yaml:"tax_rate"`
		TableCount            int     `yaml:"table_count"`
		LeaveDaysPerMonth     int     `yaml:"leave_days_per_month"`
		OvertimeMonthCapHours float64 `yaml:"overtime_month_cap_hours"`
		OvertimeYearCapHours  float64 `yaml:"overtime_year_cap_hours"`
	} `yaml:"store"`
	Delivery struct {
		RadiusKm float64 `yaml:"radius_km"`
		NearbyKm float64 `yaml:"nearby_km"`
		Fee      struct {
			Base  float64 `yaml:"base"`
			PerKm float64 `yaml:"per_km"`
			Cap   float64 `yaml:"cap"`
		} `yaml:"fee"`
	} `yaml:"delivery"`
	Geo struct {
		GeocoderURL string  `yaml:"geocoder_url"`
		RouterURL   string  `yaml:"router_url"`
		BiasDeg     float64 `yaml:"bias_deg"`
	} `yaml:"geo"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run tableside config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Store.Name == "" {
		return fmt.Errorf("config.store.name is required")
	}
	if c.Store.TaxRate < 0 || c.Store.TaxRate >= 1 {
		return fmt.Errorf("config.store.tax_rate must be in [0,1)")
	}
	if c.Store.TableCount <= 0 {
		return fmt.Errorf("config.store.table_count must be positive")
	}
	if c.Delivery.RadiusKm <= 0 {
		return fmt.Errorf("config.delivery.radius_km must be positive")
	}
	if c.Delivery.NearbyKm <= 0 {
		return fmt.Errorf("config.delivery.nearby_km must be positive")
	}
	if c.Delivery.Fee.Cap < c.Delivery.Fee.Base {
		return fmt.Errorf("config.delivery.fee.cap must be at least fee.base")
	}
	if c.Delivery.Fee.PerKm < 0 {
		return fmt.Errorf("config.delivery.fee.per_km must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tableside.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML serializes the config.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `store:
  name: SS Authentic Cuisine
  address: 1361 Creekside Dr #2006, Norman, OK 73071
  lat: 35.2226
  lng: -97.4395
  currency: USD
  tax_rate: 0.0875
  table_count: 12
  leave_days_per_month: 3
  overtime_month_cap_hours: 25
  overtime_year_cap_hours: 250

delivery:
  radius_km: 15
  nearby_km: 0.25
  fee:
    base: 2.99
    per_km: 0.75
    cap: 12.99

geo:
  geocoder_url: https://nominatim.openstreetmap.org/search
  router_url: https://router.project-osrm.org/route/v1/driving
  bias_deg: 0.25
`
