package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// Location request priorities understood by location sources.
const (
	PriorityHighAccuracy = "high_accuracy"
	PriorityBalanced     = "balanced"
	PriorityLowPower     = "low_power"
)

// TrackingConfig is the JSON configuration of the tracking engine. Every field
// is optional; the Get* accessors fall back to the built-in defaults so a
// partial file only overrides what it names.
type TrackingConfig struct {
	// Fix filter
	FirstFixMaxAge       *string  `json:"first_fix_max_age,omitempty"` // duration string like "10s"
	FirstFixMaxAccuracyM *float64 `json:"first_fix_max_accuracy_m,omitempty"`
	MaxAccuracyM         *float64 `json:"max_accuracy_m,omitempty"`
	ReplayMode           *bool    `json:"replay_mode,omitempty"`
	DeriveSpeed          *bool    `json:"derive_speed,omitempty"`
	MaxDerivedSpeedMPS   *float64 `json:"max_derived_speed_mps,omitempty"`
	MaxDeriveGap         *string  `json:"max_derive_gap,omitempty"`
	ElevationDeadBandM   *float64 `json:"elevation_dead_band_m,omitempty"`
	KeepaliveInterval    *string  `json:"keepalive_interval,omitempty"`

	// Location request
	UpdateInterval  *string  `json:"update_interval,omitempty"`
	FastestInterval *string  `json:"fastest_interval,omitempty"`
	MinDistanceM    *float64 `json:"min_distance_m,omitempty"`
	Priority        *string  `json:"priority,omitempty"`

	// Route simplification tolerances in degrees
	ToleranceDetail   *float64 `json:"tolerance_detail,omitempty"`
	ToleranceOverview *float64 `json:"tolerance_overview,omitempty"`
	ToleranceLowEnd   *float64 `json:"tolerance_low_end,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// DefaultTrackingConfig returns a config with every field set to its default.
func DefaultTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		FirstFixMaxAge:       ptrString("10s"),
		FirstFixMaxAccuracyM: ptrFloat64(30),
		MaxAccuracyM:         ptrFloat64(50),
		ReplayMode:           ptrBool(false),
		DeriveSpeed:          ptrBool(false),
		MaxDerivedSpeedMPS:   ptrFloat64(50),
		MaxDeriveGap:         ptrString("30s"),
		ElevationDeadBandM:   ptrFloat64(0),
		KeepaliveInterval:    ptrString("1s"),
		UpdateInterval:       ptrString("5s"),
		FastestInterval:      ptrString("2s"),
		MinDistanceM:         ptrFloat64(0),
		Priority:             ptrString(PriorityHighAccuracy),
		ToleranceDetail:      ptrFloat64(0.00005),
		ToleranceOverview:    ptrFloat64(0.0001),
		ToleranceLowEnd:      ptrFloat64(0.0002),
	}
}

// LoadTrackingConfig loads a TrackingConfig from a JSON file. The file must
// have a .json extension and be under 1MB. Fields omitted from the file keep
// their defaults.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TrackingConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *TrackingConfig) Validate() error {
	durations := map[string]*string{
		"first_fix_max_age":  c.FirstFixMaxAge,
		"max_derive_gap":     c.MaxDeriveGap,
		"keepalive_interval": c.KeepaliveInterval,
		"update_interval":    c.UpdateInterval,
		"fastest_interval":   c.FastestInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}

	nonNegative := map[string]*float64{
		"first_fix_max_accuracy_m": c.FirstFixMaxAccuracyM,
		"max_accuracy_m":           c.MaxAccuracyM,
		"max_derived_speed_mps":    c.MaxDerivedSpeedMPS,
		"elevation_dead_band_m":    c.ElevationDeadBandM,
		"min_distance_m":           c.MinDistanceM,
		"tolerance_detail":         c.ToleranceDetail,
		"tolerance_overview":       c.ToleranceOverview,
		"tolerance_low_end":        c.ToleranceLowEnd,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative, got %f", name, *v)
		}
	}

	if c.Priority != nil {
		switch strings.ToLower(*c.Priority) {
		case PriorityHighAccuracy, PriorityBalanced, PriorityLowPower:
		default:
			return fmt.Errorf("unsupported priority %q: expected %s, %s or %s",
				*c.Priority, PriorityHighAccuracy, PriorityBalanced, PriorityLowPower)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// GetFirstFixMaxAge returns how old the first fix of a session may be.
func (c *TrackingConfig) GetFirstFixMaxAge() time.Duration {
	return durationOr(c.FirstFixMaxAge, 10*time.Second)
}

// GetFirstFixMaxAccuracy returns the accuracy gate for the first fix in meters.
func (c *TrackingConfig) GetFirstFixMaxAccuracy() float64 {
	return floatOr(c.FirstFixMaxAccuracyM, 30)
}

// GetMaxAccuracy returns the accuracy gate for subsequent fixes in meters.
func (c *TrackingConfig) GetMaxAccuracy() float64 {
	return floatOr(c.MaxAccuracyM, 50)
}

// GetReplayMode reports whether the first-fix staleness check is disabled.
func (c *TrackingConfig) GetReplayMode() bool {
	if c.ReplayMode == nil {
		return false
	}
	return *c.ReplayMode
}

// GetDeriveSpeed reports whether missing fix speeds are derived from
// consecutive points.
func (c *TrackingConfig) GetDeriveSpeed() bool {
	if c.DeriveSpeed == nil {
		return false
	}
	return *c.DeriveSpeed
}

func (c *TrackingConfig) GetMaxDerivedSpeedMPS() float64 {
	return floatOr(c.MaxDerivedSpeedMPS, 50)
}

func (c *TrackingConfig) GetMaxDeriveGap() time.Duration {
	return durationOr(c.MaxDeriveGap, 30*time.Second)
}

// GetElevationDeadBand returns the elevation dead band in meters. Zero means
// every altitude change between consecutive points counts.
func (c *TrackingConfig) GetElevationDeadBand() float64 {
	return floatOr(c.ElevationDeadBandM, 0)
}

func (c *TrackingConfig) GetKeepaliveInterval() time.Duration {
	return durationOr(c.KeepaliveInterval, time.Second)
}

func (c *TrackingConfig) GetUpdateInterval() time.Duration {
	return durationOr(c.UpdateInterval, 5*time.Second)
}

func (c *TrackingConfig) GetFastestInterval() time.Duration {
	return durationOr(c.FastestInterval, 2*time.Second)
}

func (c *TrackingConfig) GetMinDistance() float64 {
	return floatOr(c.MinDistanceM, 0)
}

// GetPriority returns the normalised location request priority.
func (c *TrackingConfig) GetPriority() string {
	if c.Priority == nil || *c.Priority == "" {
		return PriorityHighAccuracy
	}
	return strings.ToLower(*c.Priority)
}

func (c *TrackingConfig) GetToleranceDetail() float64 {
	return floatOr(c.ToleranceDetail, 0.00005)
}

func (c *TrackingConfig) GetToleranceOverview() float64 {
	return floatOr(c.ToleranceOverview, 0.0001)
}

func (c *TrackingConfig) GetToleranceLowEnd() float64 {
	return floatOr(c.ToleranceLowEnd, 0.0002)
}

// ToleranceFor maps a rendering context name (detail, overview, low_end) to
// its simplification tolerance.
func (c *TrackingConfig) ToleranceFor(context string) (float64, error) {
	switch strings.ToLower(context) {
	case "", "detail":
		return c.GetToleranceDetail(), nil
	case "overview":
		return c.GetToleranceOverview(), nil
	case "low_end", "lowend":
		return c.GetToleranceLowEnd(), nil
	default:
		return 0, fmt.Errorf("unknown rendering context %q", context)
	}
}
