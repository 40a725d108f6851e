// Package campaign orchestrates outreach passes: it pulls entities from
// the record store, decides who is due for a contact today, places the
// calls, and writes the results back.
package campaign

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"callflow/policy"
)

// Config holds the operator-tunable knobs for a campaign deployment.
type Config struct {
	// Timezone is the operating timezone. All "today" decisions, the
	// calling window, and the one-contact-per-day guard use it.
	Timezone string `yaml:"timezone"`

	// CatchUpBusinessDays bounds how many business days late a missed
	// calendar-day stage may still fire.
	CatchUpBusinessDays int `yaml:"catch_up_business_days"`

	// SafetyNetLookbackDays bounds how far back the safety-net sweep
	// re-admits stalled status-triggered entities.
	SafetyNetLookbackDays int `yaml:"safety_net_lookback_days"`

	CallingWindow CallingWindow `yaml:"calling_window"`

	// PersistRetries is how many times a result write is retried before
	// falling back to the reduced write.
	PersistRetries int `yaml:"persist_retries"`

	// BatchConcurrency caps simultaneous calls within a batch group.
	BatchConcurrency int `yaml:"batch_concurrency"`

	Voice VoiceConfig `yaml:"voice"`

	// Scripts maps classification -> stage -> assistant id. The "default"
	// stage key (-1) applies when no stage-specific script exists.
	Scripts map[string]map[int]string `yaml:"scripts"`
}

// CallingWindow is the local-time window in which calls may be placed.
// Hours are 24h clock; the window is [Start, End).
type CallingWindow struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// VoiceConfig configures the calling provider. The API key comes from
// the environment, never from the file.
type VoiceConfig struct {
	BaseURL             string   `yaml:"base_url"`
	PhoneNumberIDs      []string `yaml:"phone_number_ids"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	MaxWaitSeconds      int      `yaml:"max_wait_seconds"`
}

// DefaultStageKey selects a classification's fallback script.
const DefaultStageKey = -1

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("campaign: read config: %w", err)
	}

	cfg := Config{
		Timezone:              "America/Los_Angeles",
		CatchUpBusinessDays:   2,
		SafetyNetLookbackDays: 7,
		CallingWindow:         CallingWindow{StartHour: 9, EndHour: 17},
		PersistRetries:        3,
		BatchConcurrency:      4,
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("campaign: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("campaign: invalid timezone %q: %w", c.Timezone, err)
	}
	if c.CatchUpBusinessDays < 0 {
		return fmt.Errorf("campaign: catch_up_business_days must be >= 0")
	}
	if c.SafetyNetLookbackDays <= 0 {
		return fmt.Errorf("campaign: safety_net_lookback_days must be > 0")
	}
	if c.CallingWindow.StartHour < 0 || c.CallingWindow.EndHour > 24 ||
		c.CallingWindow.StartHour >= c.CallingWindow.EndHour {
		return fmt.Errorf("campaign: calling window [%d, %d) is invalid",
			c.CallingWindow.StartHour, c.CallingWindow.EndHour)
	}
	if c.PersistRetries < 1 {
		return fmt.Errorf("campaign: persist_retries must be >= 1")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("campaign: batch_concurrency must be >= 1")
	}
	return nil
}

// Location resolves the operating timezone. Validate must have passed.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScriptFor picks the assistant id for a classification and stage,
// falling back to the classification's default script.
func (c Config) ScriptFor(class policy.Classification, stage int) string {
	stages, ok := c.Scripts[string(class)]
	if !ok {
		return ""
	}
	if id, ok := stages[stage]; ok {
		return id
	}
	return stages[DefaultStageKey]
}
