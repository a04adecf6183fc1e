package taskstate

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the tunables for a tracker instance. YAML and JSON both
// parse; yaml.v3 handles either.
type Config struct {
	Prefix    string          `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Retention RetentionConfig `json:"retention,omitempty" yaml:"retention,omitempty"`
}

// RetentionConfig controls the periodic cleanup of finished tasks. The
// zero value disables sweeps entirely.
type RetentionConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	MaxAgeHours     int      `json:"max_age_hours,omitempty" yaml:"max_age_hours,omitempty"`
	IntervalMinutes int      `json:"interval_minutes,omitempty" yaml:"interval_minutes,omitempty"`
	Statuses        []string `json:"statuses,omitempty" yaml:"statuses,omitempty"`
}

// DefaultConfig mirrors the retention defaults the store has always used:
// hourly sweeps removing tasks older than a day.
func DefaultConfig() Config {
	return Config{
		Retention: RetentionConfig{
			Enabled:         true,
			MaxAgeHours:     24,
			IntervalMinutes: 60,
		},
	}
}

// ParseConfig parses YAML (or JSON) bytes and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, WrapError(ErrInvalidArgument, "failed to parse config", err, nil)
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads and parses a config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, WrapError(ErrInvalidArgument, "failed to read config file", err, map[string]any{
			"path": path,
		})
	}
	return ParseConfig(data)
}

// Validate checks the config for internally consistent values.
func (c Config) Validate() error {
	return c.Retention.Validate()
}

// Validate rejects non-positive windows and unknown status names.
func (c RetentionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxAgeHours <= 0 {
		return WrapError(ErrInvalidArgument, "retention max_age_hours must be positive", nil, map[string]any{
			"max_age_hours": c.MaxAgeHours,
		})
	}
	if c.IntervalMinutes <= 0 {
		return WrapError(ErrInvalidArgument, "retention interval_minutes must be positive", nil, map[string]any{
			"interval_minutes": c.IntervalMinutes,
		})
	}
	_, err := c.States()
	return err
}

// MaxAge returns the retention window as a duration.
func (c RetentionConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// Interval returns the sweep cadence as a duration.
func (c RetentionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// States parses the configured status filter. An empty filter means every
// status is eligible.
func (c RetentionConfig) States() ([]State, error) {
	if len(c.Statuses) == 0 {
		return nil, nil
	}
	out := make([]State, 0, len(c.Statuses))
	for _, raw := range c.Statuses {
		state, err := ParseState(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}
