package anomaly

import (
	"math"

	"dctwin/internal/domain"
)

// SeverityPolicy holds the thresholds of the severity mapping
type SeverityPolicy struct {
	// MissingCriticalKw and MissingHighKw grade a missing device by its power draw
	MissingCriticalKw float64 `yaml:"missing_critical_kw"`
	MissingHighKw     float64 `yaml:"missing_high_kw"`

	// UnexpectedCriticalKw escalates untracked equipment drawing this much power
	UnexpectedCriticalKw float64 `yaml:"unexpected_critical_kw"`

	// PowerToleranceKw is the largest power difference that is not reported
	PowerToleranceKw float64 `yaml:"power_tolerance_kw"`

	// AttributeHighDeltaKw is the power difference that makes an attribute mismatch HIGH
	AttributeHighDeltaKw float64 `yaml:"attribute_high_delta_kw"`
}

// DefaultPolicy returns the standard thresholds
func DefaultPolicy() SeverityPolicy {
	return SeverityPolicy{
		MissingCriticalKw:    5,
		MissingHighKw:        1,
		UnexpectedCriticalKw: 5,
		PowerToleranceKw:     0.1,
		AttributeHighDeltaKw: 2,
	}
}

func (p SeverityPolicy) missing(powerKw float64) domain.Severity {
	switch {
	case powerKw >= p.MissingCriticalKw:
		return domain.SeverityCritical
	case powerKw >= p.MissingHighKw:
		return domain.SeverityHigh
	}
	return domain.SeverityMedium
}

func (p SeverityPolicy) unexpected(powerKw *float64) domain.Severity {
	if powerKw != nil && *powerKw >= p.UnexpectedCriticalKw {
		return domain.SeverityCritical
	}
	return domain.SeverityHigh
}

func (p SeverityPolicy) location(rackChanged bool) domain.Severity {
	if rackChanged {
		return domain.SeverityHigh
	}
	return domain.SeverityMedium
}

func (p SeverityPolicy) status(expectedPresent bool) domain.Severity {
	if expectedPresent {
		return domain.SeverityHigh
	}
	return domain.SeverityMedium
}

func (p SeverityPolicy) attribute(powerDeltaKw float64, shapeChanged bool) domain.Severity {
	switch {
	case math.Abs(powerDeltaKw) >= p.AttributeHighDeltaKw:
		return domain.SeverityHigh
	case shapeChanged:
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}
