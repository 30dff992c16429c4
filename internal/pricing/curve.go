// Package pricing adjusts dwelling prices once a year from zonal vacancy
// rates.
package pricing

import (
	"fmt"

	"landsim/pkg/domain"
)

// Curve is the piecewise-linear response of price to vacancy for one
// dwelling type. The inflection points are multiples of the structural
// vacancy rate. Segments join continuously, and the main segment passes
// through a change rate of exactly one at the structural vacancy rate.
type Curve struct {
	StructuralVacancy float64 `yaml:"structural_vacancy"`
	InflectionLow     float64 `yaml:"inflection_low"`
	InflectionHigh    float64 `yaml:"inflection_high"`
	SlopeLow          float64 `yaml:"slope_low"`
	SlopeMain         float64 `yaml:"slope_main"`
	SlopeHigh         float64 `yaml:"slope_high"`
	MaxDelta          float64 `yaml:"max_delta"`
}

// DefaultCurve returns the generic response centred on structural vacancy sv.
func DefaultCurve(sv float64) Curve {
	return Curve{
		StructuralVacancy: sv,
		InflectionLow:     0.5,
		InflectionHigh:    1.5,
		SlopeLow:          -10,
		SlopeMain:         -1,
		SlopeHigh:         -0.5,
		MaxDelta:          0.05,
	}
}

// DefaultCurves returns a curve per dwelling type.
func DefaultCurves() map[domain.DwellingType]Curve {
	return map[domain.DwellingType]Curve{
		domain.DwellingSFD:    DefaultCurve(0.03),
		domain.DwellingSFA:    DefaultCurve(0.03),
		domain.DwellingMF234:  DefaultCurve(0.05),
		domain.DwellingMF5:    DefaultCurve(0.05),
		domain.DwellingMobile: DefaultCurve(0.04),
	}
}

// Validate rejects curves that would not be monotone or bounded.
func (c Curve) Validate() error {
	switch {
	case c.StructuralVacancy <= 0 || c.StructuralVacancy >= 1:
		return fmt.Errorf("structural vacancy %v outside (0,1)", c.StructuralVacancy)
	case c.InflectionLow <= 0 || c.InflectionLow >= 1:
		return fmt.Errorf("low inflection %v outside (0,1)", c.InflectionLow)
	case c.InflectionHigh <= 1:
		return fmt.Errorf("high inflection %v must exceed 1", c.InflectionHigh)
	case c.SlopeLow > 0 || c.SlopeMain > 0 || c.SlopeHigh > 0:
		return fmt.Errorf("slopes must not be positive")
	case c.MaxDelta <= 0 || c.MaxDelta >= 1:
		return fmt.Errorf("max delta %v outside (0,1)", c.MaxDelta)
	}
	return nil
}

// ChangeRate returns the multiplicative price change for vacancy rate v,
// clamped to [1-MaxDelta, 1+MaxDelta].
func (c Curve) ChangeRate(v float64) float64 {
	sv := c.StructuralVacancy
	low := sv * c.InflectionLow
	high := sv * c.InflectionHigh
	var rate float64
	switch {
	case v < low:
		rate = 1 + c.SlopeMain*(low-sv) + c.SlopeLow*(v-low)
	case v > high:
		rate = 1 + c.SlopeMain*(high-sv) + c.SlopeHigh*(v-high)
	default:
		rate = 1 + c.SlopeMain*(v-sv)
	}
	return min(max(rate, 1-c.MaxDelta), 1+c.MaxDelta)
}
