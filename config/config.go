// Package config loads and validates ArcWelder's settings: parse YAML or
// JSON, fill defaults, then reject any value a run could not honor.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"arcwelder/buffer"
)

// Settings is every tunable option of a welding run.
type Settings struct {
	ResolutionMM                 float64 `yaml:"resolution_mm" json:"resolution_mm"`
	PathTolerancePercent         float64 `yaml:"path_tolerance_percent" json:"path_tolerance_percent"`
	MaxRadiusMM                  float64 `yaml:"max_radius_mm" json:"max_radius_mm"`
	Allow3DArcs                  bool    `yaml:"allow_3d_arcs" json:"allow_3d_arcs"`
	AllowTravelArcs              bool    `yaml:"allow_travel_arcs" json:"allow_travel_arcs"`
	AllowDynamicPrecision        bool    `yaml:"allow_dynamic_precision" json:"allow_dynamic_precision"`
	DefaultXYZPrecision          int     `yaml:"default_xyz_precision" json:"default_xyz_precision"`
	DefaultEPrecision            int     `yaml:"default_e_precision" json:"default_e_precision"`
	ExtrusionRateVariancePercent float64 `yaml:"extrusion_rate_variance_percent" json:"extrusion_rate_variance_percent"`
	MaxGcodeLength               int     `yaml:"max_gcode_length" json:"max_gcode_length"`
	G90G91InfluencesExtruder     bool    `yaml:"g90_g91_influences_extruder" json:"g90_g91_influences_extruder"`
	MinArcSegments               int     `yaml:"min_arc_segments" json:"min_arc_segments"`
	MaxArcSegments               int     `yaml:"max_arc_segments" json:"max_arc_segments"`
	NotificationPeriodSeconds    float64 `yaml:"notification_period_seconds" json:"notification_period_seconds"`
}

// ErrConfig wraps every validation failure. Validation runs before a
// Welder is ever constructed.
var ErrConfig = errors.New("config: invalid setting")

// Default returns the stock settings.
func Default() Settings {
	return Settings{
		ResolutionMM:                 0.05,
		PathTolerancePercent:         0.05,
		MaxRadiusMM:                  1000,
		Allow3DArcs:                  false,
		AllowTravelArcs:              false,
		AllowDynamicPrecision:        true,
		DefaultXYZPrecision:          3,
		DefaultEPrecision:            5,
		ExtrusionRateVariancePercent: 0,
		MaxGcodeLength:               0,
		G90G91InfluencesExtruder:     false,
		MinArcSegments:               5,
		MaxArcSegments:               buffer.DefaultMaxSegments,
		NotificationPeriodSeconds:    1,
	}
}

// Load parses settings from data. If path ends in ".json" it is parsed
// as JSON; otherwise it is parsed as YAML. Missing numeric fields are
// filled from Default via ApplyDefaults; missing boolean fields are false.
func Load(data []byte, path string) (Settings, error) {
	var s Settings
	var err error
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		err = json.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	s.ApplyDefaults()
	return s, s.Validate()
}

// ApplyDefaults fills in every zero-valued numeric field from Default().
// Boolean fields are left as they are, so AllowDynamicPrecision stays false
// unless it was set.
func (s *Settings) ApplyDefaults() {
	d := Default()
	if s.ResolutionMM == 0 {
		s.ResolutionMM = d.ResolutionMM
	}
	if s.PathTolerancePercent == 0 {
		s.PathTolerancePercent = d.PathTolerancePercent
	}
	if s.MaxRadiusMM == 0 {
		s.MaxRadiusMM = d.MaxRadiusMM
	}
	if s.DefaultXYZPrecision == 0 {
		s.DefaultXYZPrecision = d.DefaultXYZPrecision
	}
	if s.DefaultEPrecision == 0 {
		s.DefaultEPrecision = d.DefaultEPrecision
	}
	if s.MinArcSegments == 0 {
		s.MinArcSegments = d.MinArcSegments
	}
	if s.MaxArcSegments == 0 {
		s.MaxArcSegments = d.MaxArcSegments
	}
	if s.NotificationPeriodSeconds == 0 {
		s.NotificationPeriodSeconds = d.NotificationPeriodSeconds
	}
}

// Validate returns a wrapped ErrConfig describing the first violation
// found.
func (s Settings) Validate() error {
	switch {
	case s.ResolutionMM <= 0:
		return fmt.Errorf("%w: resolution_mm must be > 0", ErrConfig)
	case s.PathTolerancePercent <= 0 || s.PathTolerancePercent >= 1:
		return fmt.Errorf("%w: path_tolerance_percent must be in (0,1)", ErrConfig)
	case s.MaxRadiusMM <= 0:
		return fmt.Errorf("%w: max_radius_mm must be > 0", ErrConfig)
	case s.DefaultXYZPrecision < 3 || s.DefaultXYZPrecision > 6:
		return fmt.Errorf("%w: default_xyz_precision must be in [3,6]", ErrConfig)
	case s.DefaultEPrecision < 3 || s.DefaultEPrecision > 6:
		return fmt.Errorf("%w: default_e_precision must be in [3,6]", ErrConfig)
	case s.ExtrusionRateVariancePercent < 0:
		return fmt.Errorf("%w: extrusion_rate_variance_percent must be >= 0", ErrConfig)
	case s.MaxGcodeLength < 0:
		return fmt.Errorf("%w: max_gcode_length must be >= 0", ErrConfig)
	case s.MinArcSegments < 3:
		return fmt.Errorf("%w: min_arc_segments must be >= 3", ErrConfig)
	case s.MaxArcSegments < s.MinArcSegments:
		return fmt.Errorf("%w: max_arc_segments must be >= min_arc_segments", ErrConfig)
	case s.MaxArcSegments > buffer.HardMaxSegments:
		return fmt.Errorf("%w: max_arc_segments must be <= %d", ErrConfig, buffer.HardMaxSegments)
	case s.NotificationPeriodSeconds <= 0:
		return fmt.Errorf("%w: notification_period_seconds must be > 0", ErrConfig)
	}
	return nil
}
