// README: Safety-policy constants: thresholds, cooldowns, and expiry windows.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds every tunable safety constant. Values come from defaults, then
// an optional YAML policy file, then env overrides, in that order.
type Policy struct {
	Speed struct {
		// Alert-level bands in km/h over the posted limit.
		WarningMargin float64 `yaml:"warning_margin"`
		DangerMargin  float64 `yaml:"danger_margin"`
		// Severity bucket lower edges (inclusive), km/h over the limit.
		MinorExcess    float64 `yaml:"minor_excess"`
		ModerateExcess float64 `yaml:"moderate_excess"`
		SevereExcess   float64 `yaml:"severe_excess"`
		// Episode shape.
		MinEpisode time.Duration `yaml:"min_episode"`
		Debounce   time.Duration `yaml:"debounce"`
	} `yaml:"speed"`

	Deviation struct {
		ThresholdMeters float64       `yaml:"threshold_meters"`
		RecalcCooldown  time.Duration `yaml:"recalc_cooldown"`
		AlertDelay      time.Duration `yaml:"alert_delay"`
		ReAlertCooldown time.Duration `yaml:"re_alert_cooldown"`
		ResponseTimeout time.Duration `yaml:"response_timeout"`
	} `yaml:"deviation"`

	EarlyCompletion struct {
		ToleranceMeters float64       `yaml:"tolerance_meters"`
		ResponseTimeout time.Duration `yaml:"response_timeout"`
	} `yaml:"early_completion"`

	Strikes struct {
		Expiry time.Duration `yaml:"expiry"`
		// A severe strike counts SevereWeight times toward the thresholds.
		SevereWeight       int           `yaml:"severe_weight"`
		SuspendThreshold   int           `yaml:"suspend_threshold"`
		PermanentThreshold int           `yaml:"permanent_threshold"`
		TempSuspension     time.Duration `yaml:"temp_suspension"`
		SweepInterval      time.Duration `yaml:"sweep_interval"`
	} `yaml:"strikes"`

	Session struct {
		TickBuffer         int           `yaml:"tick_buffer"`
		PersistMaxAttempts int           `yaml:"persist_max_attempts"`
		PersistBaseBackoff time.Duration `yaml:"persist_base_backoff"`
	} `yaml:"session"`
}

// DefaultPolicy returns the shipped constants.
func DefaultPolicy() Policy {
	var p Policy
	p.Speed.WarningMargin = 5
	p.Speed.DangerMargin = 15
	p.Speed.MinorExcess = 5
	p.Speed.ModerateExcess = 10
	p.Speed.SevereExcess = 20
	p.Speed.MinEpisode = 10 * time.Second
	p.Speed.Debounce = 10 * time.Second

	p.Deviation.ThresholdMeters = 100
	p.Deviation.RecalcCooldown = 10 * time.Second
	p.Deviation.AlertDelay = 30 * time.Second
	p.Deviation.ReAlertCooldown = 2 * time.Minute
	p.Deviation.ResponseTimeout = 3 * time.Minute

	p.EarlyCompletion.ToleranceMeters = 500
	p.EarlyCompletion.ResponseTimeout = 10 * time.Minute

	p.Strikes.Expiry = 90 * 24 * time.Hour
	p.Strikes.SevereWeight = 2
	p.Strikes.SuspendThreshold = 3
	p.Strikes.PermanentThreshold = 5
	p.Strikes.TempSuspension = 7 * 24 * time.Hour
	p.Strikes.SweepInterval = time.Hour

	p.Session.TickBuffer = 32
	p.Session.PersistMaxAttempts = 5
	p.Session.PersistBaseBackoff = 200 * time.Millisecond
	return p
}

// LoadPolicy merges the optional YAML file at path over the defaults and then
// applies env overrides for the most commonly tuned knobs.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return p, fmt.Errorf("reading policy file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parsing policy file %s: %w", path, err)
		}
	}

	p.Deviation.ThresholdMeters = envOrDefaultFloat("TRIPGUARD_DEVIATION_THRESHOLD_M", p.Deviation.ThresholdMeters)
	p.Strikes.SuspendThreshold = envOrDefaultInt("TRIPGUARD_SUSPEND_THRESHOLD", p.Strikes.SuspendThreshold)
	p.Strikes.PermanentThreshold = envOrDefaultInt("TRIPGUARD_PERMANENT_THRESHOLD", p.Strikes.PermanentThreshold)

	if err := p.validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p Policy) validate() error {
	if p.Speed.MinorExcess >= p.Speed.ModerateExcess || p.Speed.ModerateExcess >= p.Speed.SevereExcess {
		return fmt.Errorf("severity bucket edges must be strictly increasing: %v/%v/%v",
			p.Speed.MinorExcess, p.Speed.ModerateExcess, p.Speed.SevereExcess)
	}
	if p.Strikes.SuspendThreshold <= 0 || p.Strikes.PermanentThreshold < p.Strikes.SuspendThreshold {
		return fmt.Errorf("invalid suspension thresholds: suspend=%d permanent=%d",
			p.Strikes.SuspendThreshold, p.Strikes.PermanentThreshold)
	}
	if p.Strikes.Expiry <= 0 {
		return fmt.Errorf("strike expiry must be positive")
	}
	return nil
}
