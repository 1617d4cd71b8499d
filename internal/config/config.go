package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models controlline.yml.
type Config struct {
	Clients struct {
		Catalog              map[string]ClientProfile `yaml:"catalog"`
		AllowUnknownProfiles bool                     `yaml:"allow_unknown_profiles"`
	} `yaml:"clients"`
	AutoSteps map[string][]string `yaml:"auto_steps"`
	Scheduler struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"scheduler"`
}

type ClientProfile struct {
	Profile     string `yaml:"profile"`
	Description string `yaml:"description"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with cl config init", path)
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
	if len(c.Clients.Catalog) == 0 {
		return fmt.Errorf("config.clients.catalog is required")
	}
	for id, profile := range c.Clients.Catalog {
		if id == "" {
			return fmt.Errorf("config.clients.catalog contains empty client id")
		}
		if profile.Profile == "" {
			return fmt.Errorf("client %s has empty profile code", id)
		}
	}
	for code, steps := range c.AutoSteps {
		if code == "" {
			return fmt.Errorf("config.auto_steps contains empty event code")
		}
		for _, title := range steps {
			if title == "" {
				return fmt.Errorf("auto step list for %s has empty title", code)
			}
		}
	}
	if c.Scheduler.IntervalSeconds < 0 {
		return fmt.Errorf("config.scheduler.interval_seconds must not be negative")
	}
	return nil
}

// Profile returns the profile code configured for a client id.
func (c *Config) Profile(clientID string) (string, bool) {
	p, ok := c.Clients.Catalog[clientID]
	if !ok {
		return "", false
	}
	return p.Profile, true
}

// AutoStepsFor returns the configured step titles for an event code.
func (c *Config) AutoStepsFor(eventCode string) []string {
	if eventCode == "" {
		return nil
	}
	steps := c.AutoSteps[eventCode]
	out := make([]string, len(steps))
	copy(out, steps)
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "controlline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
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

const defaultTemplate = `clients:
  catalog:
    ip_usn_dr:
      profile: ip_usn_dr
      description: "Sole proprietor, USN income-minus-expenses, no payroll"
    ooo_osno_3_zp1025:
      profile: ooo_osno_3_zp1025
      description: "LLC, general regime, 3 employees, paydays 10/25"
    ooo_usn_dr_tour_zp520:
      profile: ooo_usn_dr_tour_zp520
      description: "LLC, USN income-minus-expenses, tourist levy, paydays 5/20"
  allow_unknown_profiles: false

auto_steps:
  request_bank_statements:
    - "Prepare email template"
    - "Send request to client"
    - "Wait for bank statements"
    - "Verify bank statements"
  request_documents:
    - "Prepare document checklist"
    - "Send request to client"
    - "Wait for documents"
    - "Check received documents"
  monthly_close:
    - "Collect primary documents"
    - "Prepare draft reports"
    - "Review calculations"
    - "Finalize reports"
    - "Send reports to client"
  payroll_advance:
    - "Prepare advance payroll"
    - "Send payroll for approval"
    - "Process advance payments"
    - "Archive payroll documents"
  payroll_main:
    - "Prepare main payroll"
    - "Send payroll for approval"
    - "Process salary payments"
    - "Report to funds"
    - "Archive payroll documents"
  tourist_tax:
    - "Check tourist data"
    - "Prepare tourist tax declaration"
    - "Submit tourist tax declaration"
    - "Archive declaration and confirmations"

scheduler:
  interval_seconds: 300
`
