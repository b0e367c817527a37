// Package config loads scanner settings from a JSON, YAML or TOML file with
// SONAR_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/banshee-data/echomap/internal/sonar"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/sonar.defaults.json"

// EnvPrefix prefixes environment overrides, e.g. SONAR_SAMPLE_RATE.
const EnvPrefix = "SONAR"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SonarConfig is the on-disk scanner configuration. Every field is optional:
// a nil field falls back to the default returned by its Get method, so
// partial configs are safe.
type SonarConfig struct {
	// Probe
	SampleRate    *int     `json:"sample_rate,omitempty" mapstructure:"sample_rate"`
	ChirpDuration *float64 `json:"chirp_duration,omitempty" mapstructure:"chirp_duration"` // seconds
	StartFreq     *float64 `json:"start_freq,omitempty" mapstructure:"start_freq"`
	EndFreq       *float64 `json:"end_freq,omitempty" mapstructure:"end_freq"`

	// Grid
	HorizontalDirections *int `json:"horizontal_directions,omitempty" mapstructure:"horizontal_directions"`
	VerticalAngles       *int `json:"vertical_angles,omitempty" mapstructure:"vertical_angles"`

	// Ranging
	PeakHeightFraction *float64 `json:"peak_height_fraction,omitempty" mapstructure:"peak_height_fraction"`
	SpeedOfSound       *float64 `json:"speed_of_sound,omitempty" mapstructure:"speed_of_sound"`
	Correlation        *string  `json:"correlation,omitempty" mapstructure:"correlation"` // auto, direct or fft
	MinRange           *float64 `json:"min_range,omitempty" mapstructure:"min_range"`
	MaxRange           *float64 `json:"max_range,omitempty" mapstructure:"max_range"`

	// Acquisition
	FaultPolicy    *string `json:"fault_policy,omitempty" mapstructure:"fault_policy"` // abort or skip
	ProbeRetries   *int    `json:"probe_retries,omitempty" mapstructure:"probe_retries"`
	RetryInterval  *string `json:"retry_interval,omitempty" mapstructure:"retry_interval"` // duration string like "100ms"
	SettleTime     *string `json:"settle_time,omitempty" mapstructure:"settle_time"`
	KeepRecordings *bool   `json:"keep_recordings,omitempty" mapstructure:"keep_recordings"`
}

// keys lists every setting so environment overrides apply even when the
// file omits them.
var keys = []string{
	"sample_rate", "chirp_duration", "start_freq", "end_freq",
	"horizontal_directions", "vertical_angles",
	"peak_height_fraction", "speed_of_sound", "correlation", "min_range", "max_range",
	"fault_policy", "probe_retries", "retry_interval", "settle_time", "keep_recordings",
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Default returns a config with every field unset, i.e. all defaults.
func Default() *SonarConfig {
	return &SonarConfig{}
}

// Load reads path (.json, .yaml, .yml or .toml, at most 1MB), applies
// SONAR_* environment overrides and validates the result.
func Load(path string) (*SonarConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml", ".toml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml, .yml or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	v := newViper()
	v.SetConfigFile(cleanPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// FromEnv builds a config from SONAR_* environment variables alone.
func FromEnv() (*SonarConfig, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	return v
}

func decode(v *viper.Viper) (*SonarConfig, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. It panics if the file cannot be found, and is meant for
// tests.
func MustLoadDefaultConfig() *SonarConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Cross-field chirp and grid rules
// are left to sonar.NewSession.
func (c *SonarConfig) Validate() error {
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", *c.SampleRate)
	}
	if c.ChirpDuration != nil && *c.ChirpDuration <= 0 {
		return fmt.Errorf("chirp_duration must be positive, got %f", *c.ChirpDuration)
	}
	if c.StartFreq != nil && *c.StartFreq < 0 {
		return fmt.Errorf("start_freq must be non-negative, got %f", *c.StartFreq)
	}
	if c.EndFreq != nil && *c.EndFreq < 0 {
		return fmt.Errorf("end_freq must be non-negative, got %f", *c.EndFreq)
	}
	if c.HorizontalDirections != nil && *c.HorizontalDirections < 1 {
		return fmt.Errorf("horizontal_directions must be at least 1, got %d", *c.HorizontalDirections)
	}
	if c.VerticalAngles != nil && *c.VerticalAngles < 1 {
		return fmt.Errorf("vertical_angles must be at least 1, got %d", *c.VerticalAngles)
	}
	if c.PeakHeightFraction != nil {
		if f := *c.PeakHeightFraction; f < 0 || f > 1 {
			return fmt.Errorf("peak_height_fraction must be between 0 and 1, got %f", f)
		}
	}
	if c.SpeedOfSound != nil && *c.SpeedOfSound <= 0 {
		return fmt.Errorf("speed_of_sound must be positive, got %f", *c.SpeedOfSound)
	}
	if c.Correlation != nil {
		if _, err := sonar.ParseCorrelationMethod(*c.Correlation); err != nil {
			return fmt.Errorf("invalid correlation: %w", err)
		}
	}
	if c.MinRange != nil && *c.MinRange < 0 {
		return fmt.Errorf("min_range must be non-negative, got %f", *c.MinRange)
	}
	if c.MaxRange != nil && *c.MaxRange < 0 {
		return fmt.Errorf("max_range must be non-negative, got %f", *c.MaxRange)
	}
	if lo, hi := c.GetMinRange(), c.GetMaxRange(); hi > 0 && lo > hi {
		return fmt.Errorf("min_range %f exceeds max_range %f", lo, hi)
	}
	if c.FaultPolicy != nil {
		if _, err := sonar.ParseFaultPolicy(*c.FaultPolicy); err != nil {
			return fmt.Errorf("invalid fault_policy: %w", err)
		}
	}
	if c.ProbeRetries != nil && *c.ProbeRetries < 0 {
		return fmt.Errorf("probe_retries must be non-negative, got %d", *c.ProbeRetries)
	}
	for name, d := range map[string]*string{"retry_interval": c.RetryInterval, "settle_time": c.SettleTime} {
		if d == nil || *d == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, parsed)
		}
	}
	return nil
}

// GetSampleRate returns the sample_rate value or the default.
func (c *SonarConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return sonar.DefaultSampleRate
	}
	return *c.SampleRate
}

// GetChirpDuration returns the chirp_duration value or the default.
func (c *SonarConfig) GetChirpDuration() float64 {
	if c.ChirpDuration == nil {
		return sonar.DefaultChirpDuration
	}
	return *c.ChirpDuration
}

// GetStartFreq returns the start_freq value or the default.
func (c *SonarConfig) GetStartFreq() float64 {
	if c.StartFreq == nil {
		return sonar.DefaultStartFreq
	}
	return *c.StartFreq
}

// GetEndFreq returns the end_freq value or the default.
func (c *SonarConfig) GetEndFreq() float64 {
	if c.EndFreq == nil {
		return sonar.DefaultEndFreq
	}
	return *c.EndFreq
}

func (c *SonarConfig) GetHorizontalDirections() int {
	if c.HorizontalDirections == nil {
		return sonar.DefaultHorizontalDirections
	}
	return *c.HorizontalDirections
}

func (c *SonarConfig) GetVerticalAngles() int {
	if c.VerticalAngles == nil {
		return sonar.DefaultVerticalAngles
	}
	return *c.VerticalAngles
}

// GetPeakHeightFraction returns the peak_height_fraction value or the default.
func (c *SonarConfig) GetPeakHeightFraction() float64 {
	if c.PeakHeightFraction == nil {
		return sonar.DefaultPeakHeightFraction
	}
	return *c.PeakHeightFraction
}

// GetSpeedOfSound returns the speed_of_sound value or the default.
func (c *SonarConfig) GetSpeedOfSound() float64 {
	if c.SpeedOfSound == nil {
		return sonar.DefaultSpeedOfSound
	}
	return *c.SpeedOfSound
}

// GetCorrelation returns the correlation method, falling back to auto.
func (c *SonarConfig) GetCorrelation() sonar.CorrelationMethod {
	if c.Correlation == nil {
		return sonar.CorrelateAuto
	}
	m, err := sonar.ParseCorrelationMethod(*c.Correlation)
	if err != nil {
		return sonar.CorrelateAuto
	}
	return m
}

func (c *SonarConfig) GetMinRange() float64 {
	if c.MinRange == nil {
		return 0
	}
	return *c.MinRange
}

// GetMaxRange returns max_range; 0 leaves the far end ungated.
func (c *SonarConfig) GetMaxRange() float64 {
	if c.MaxRange == nil {
		return 0
	}
	return *c.MaxRange
}

// GetFaultPolicy returns the fault policy, falling back to abort.
func (c *SonarConfig) GetFaultPolicy() sonar.FaultPolicy {
	if c.FaultPolicy == nil {
		return sonar.FaultAbort
	}
	p, err := sonar.ParseFaultPolicy(*c.FaultPolicy)
	if err != nil {
		return sonar.FaultAbort
	}
	return p
}

func (c *SonarConfig) GetProbeRetries() int {
	if c.ProbeRetries == nil {
		return 0 // default: no retries
	}
	return *c.ProbeRetries
}

// GetRetryInterval parses retry_interval, defaulting to 100ms.
func (c *SonarConfig) GetRetryInterval() time.Duration {
	return parseDuration(c.RetryInterval, 100*time.Millisecond)
}

// GetSettleTime parses settle_time, defaulting to no pause.
func (c *SonarConfig) GetSettleTime() time.Duration {
	return parseDuration(c.SettleTime, 0)
}

func (c *SonarConfig) GetKeepRecordings() bool {
	if c.KeepRecordings == nil {
		return false
	}
	return *c.KeepRecordings
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// SessionOptions converts the config to the options a scan session runs with.
func (c *SonarConfig) SessionOptions() sonar.Options {
	return sonar.Options{
		Chirp: sonar.ChirpParameters{
			SampleRate: c.GetSampleRate(),
			Duration:   c.GetChirpDuration(),
			StartFreq:  c.GetStartFreq(),
			EndFreq:    c.GetEndFreq(),
		},
		HorizontalDirections: c.GetHorizontalDirections(),
		VerticalAngles:       c.GetVerticalAngles(),
		SpeedOfSound:         c.GetSpeedOfSound(),
		PeakHeightFraction:   c.GetPeakHeightFraction(),
		Correlation:          c.GetCorrelation(),
		MinRange:             c.GetMinRange(),
		MaxRange:             c.GetMaxRange(),
		FaultPolicy:          c.GetFaultPolicy(),
		Retry: sonar.RetryPolicy{
			Attempts: c.GetProbeRetries(),
			Interval: c.GetRetryInterval(),
		},
		SettleTime:     c.GetSettleTime(),
		KeepRecordings: c.GetKeepRecordings(),
	}
}
