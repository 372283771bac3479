package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models cofounder.yml, the per-business profile.
type Config struct {
	Business struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Industry string `yaml:"industry"`
	} `yaml:"business"`
	Automation struct {
		// Level gates whether approved actions may be executed in bulk.
		Level            string `yaml:"level"`
		ScanBatchSize    int    `yaml:"scan_batch_size"`
		ExecuteAllLimit  int    `yaml:"execute_all_limit"`
		OverdueAfterDays int    `yaml:"overdue_after_days"`
	} `yaml:"automation"`
	LLM struct {
		Endpoint string `yaml:"endpoint"`
		Model    string `yaml:"model"`
		// APIKeyEnv names the environment variable holding the key.
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"llm"`
	Channel struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"channel"`
}

var automationLevels = map[string]bool{"manual": true, "assisted": true, "full": true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with cofounder business config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Business.ID == "" {
		return fmt.Errorf("config.business.id is required")
	}
	if c.Business.Name == "" {
		return fmt.Errorf("config.business.name is required")
	}
	if !automationLevels[c.Automation.Level] {
		return fmt.Errorf("config.automation.level must be manual, assisted or full")
	}
	if c.Automation.ScanBatchSize <= 0 {
		return fmt.Errorf("config.automation.scan_batch_size must be positive")
	}
	if c.Automation.ExecuteAllLimit <= 0 {
		return fmt.Errorf("config.automation.execute_all_limit must be positive")
	}
	if c.Automation.OverdueAfterDays < 0 {
		return fmt.Errorf("config.automation.overdue_after_days must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cofounder.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(businessID string) string {
	return fmt.Sprintf(defaultTemplate, businessID, businessID)
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

// Default returns the default Config struct for a business.
func Default(businessID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(businessID))).Decode(&cfg)
	cfg.Business.ID = businessID
	return &cfg
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

const defaultTemplate = `business:
  id: %s
  name: %s
  industry: general

automation:
  level: assisted
  scan_batch_size: 10
  execute_all_limit: 50
  overdue_after_days: 1

llm:
  endpoint: https://api.openai.com/v1
  model: gpt-4o-mini
  api_key_env: COFOUNDER_LLM_API_KEY

channel:
  endpoint: ""
`
