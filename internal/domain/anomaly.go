package domain

import (
	"fmt"
	"time"
)

// AnomalyType classifies a difference between a verification scan and the canonical model
type AnomalyType string

const (
	AnomalyMissing           AnomalyType = "MISSING"
	AnomalyUnexpected        AnomalyType = "UNEXPECTED"
	AnomalyLocationMismatch  AnomalyType = "LOCATION_MISMATCH"
	AnomalyStatusMismatch    AnomalyType = "STATUS_MISMATCH"
	AnomalyAttributeMismatch AnomalyType = "ATTRIBUTE_MISMATCH"
)

// Rank orders anomaly types for deterministic output
func (t AnomalyType) Rank() int {
	switch t {
	case AnomalyMissing:
		return 0
	case AnomalyUnexpected:
		return 1
	case AnomalyLocationMismatch:
		return 2
	case AnomalyStatusMismatch:
		return 3
	case AnomalyAttributeMismatch:
		return 4
	}
	return 5
}

// Severity ranks how urgently an anomaly needs attention
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Level returns a comparable level for s
func (s Severity) Level() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is as severe as min
func (s Severity) AtLeast(min Severity) bool {
	return s.Level() >= min.Level()
}

// ParseSeverity validates a severity string
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if sev.Level() == 0 {
		return "", fmt.Errorf("%w: unknown severity %q", ErrValidation, s)
	}
	return sev, nil
}

// AnomalyStatus is the triage state of an anomaly
type AnomalyStatus string

const (
	AnomalyOpen         AnomalyStatus = "OPEN"
	AnomalyAcknowledged AnomalyStatus = "ACKNOWLEDGED"
	AnomalyResolved     AnomalyStatus = "RESOLVED"
	AnomalyDismissed    AnomalyStatus = "DISMISSED"
)

// ParseAnomalyStatus validates a status string
func ParseAnomalyStatus(s string) (AnomalyStatus, error) {
	switch st := AnomalyStatus(s); st {
	case AnomalyOpen, AnomalyAcknowledged, AnomalyResolved, AnomalyDismissed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown anomaly status %q", ErrValidation, s)
}

// Anomaly is a classified discrepancy between reality and the canonical model
type Anomaly struct {
	ID          string         `json:"id,omitempty"`
	SiteID      string         `json:"site_id"`
	Type        AnomalyType    `json:"anomaly_type"`
	Severity    Severity       `json:"severity"`
	Status      AnomalyStatus  `json:"status"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
	Notes       string         `json:"notes"`
	DeviceIDs   []string       `json:"device_ids,omitempty"`
	IdentityKey string         `json:"identity_key"`
	Expected    map[string]any `json:"expected,omitempty"`
	Observed    map[string]any `json:"observed,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AnomalyUpdate carries triage changes; nil fields are left untouched
type AnomalyUpdate struct {
	Status     *AnomalyStatus `json:"status,omitempty"`
	AssignedTo *string        `json:"assigned_to,omitempty"`
	Notes      *string        `json:"notes,omitempty"`
}
