package cuke

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the .cuke.yaml configuration file.
//
// Every field has a flag counterpart on the cuke CLI; flags win over file
// values. The zero Config is valid and means: discover under "features",
// unbounded concurrency, no retries, pretty output.
type Config struct {
	// Paths are the roots searched for .feature files.
	Paths []string `yaml:"paths,omitempty"`

	// Concurrency bounds how many shared scenarios run at once. 0 means
	// unbounded.
	Concurrency int `yaml:"concurrency,omitempty"`

	// FailFast stops scheduling new scenarios after the first failure.
	FailFast bool `yaml:"fail_fast,omitempty"`

	// Tags is a tag expression ("@smoke and not @wip") selecting which
	// scenarios run.
	Tags string `yaml:"tags,omitempty"`

	// Filter is an expression over scenario metadata, e.g.
	// `hasTag("smoke") && feature contains "auth"`.
	Filter string `yaml:"filter,omitempty"`

	// SerialTag marks scenarios that must run exclusively. Defaults to
	// "@serial".
	SerialTag string `yaml:"serial_tag,omitempty"`

	// Retry configures the default retry policy. Scenario-level @retry tags
	// override it.
	Retry RetryConfig `yaml:"retry,omitempty"`

	// Format selects the output writer: pretty, dots, json, or tui.
	Format string `yaml:"format,omitempty"`
}

// RetryConfig holds the default retry policy applied to failing scenarios.
type RetryConfig struct {
	// Count is how many additional attempts a failed scenario gets.
	Count int `yaml:"count,omitempty"`

	// Delay is the wait before each re-attempt.
	Delay Duration `yaml:"delay,omitempty"`

	// TagFilter restricts retries to scenarios matching this tag expression.
	TagFilter string `yaml:"tag_filter,omitempty"`
}

// Duration wraps time.Duration so YAML values like "1s" or "250ms" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("cuke: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Formats are the output writers selectable via Config.Format or --format.
var Formats = []string{"pretty", "dots", "json", "tui"}

// Validate checks field values that flags and YAML cannot constrain.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("cuke: concurrency must be >= 0, got %d", c.Concurrency)
	}
	if c.Retry.Count < 0 {
		return fmt.Errorf("cuke: retry count must be >= 0, got %d", c.Retry.Count)
	}
	if c.Format != "" {
		ok := false
		for _, f := range Formats {
			if c.Format == f {
				ok = true

				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFormat, c.Format)
		}
	}

	return nil
}

// DefaultConfigNames are the filenames we search for.
var DefaultConfigNames = []string{".cuke.yaml", ".cuke.yml", "cuke.yaml", "cuke.yml"}

// LoadConfig finds and loads the nearest .cuke.yaml walking up from dir.
func LoadConfig(dir string) (*Config, error) {
	path, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}

	return LoadConfigFile(path)
}

// FindConfig searches for a config file starting from dir and walking up.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for dir := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(dir, name)

			_, err := os.Stat(path)
			if err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}

		dir = parent
	}
}

// LoadConfigFile loads a config from a specific path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	var cfg Config

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
