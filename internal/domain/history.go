package domain

import (
	"fmt"
	"time"
)

// ModificationType names the kind of change a history entry records
type ModificationType string

const (
	ModificationMove           ModificationType = "move"
	ModificationRetire         ModificationType = "retire"
	ModificationCreateProposed ModificationType = "create_proposed"
	ModificationRemove         ModificationType = "remove"
	ModificationIngest         ModificationType = "ingest"
)

// EquipmentHistory is an immutable audit entry. DeviceName is copied so the
// trail stays readable after the device is deactivated.
type EquipmentHistory struct {
	ID               string           `json:"id"`
	DeviceID         string           `json:"device_id"`
	DeviceName       string           `json:"device_name"`
	ChangeSetID      string           `json:"change_set_id"`
	ModificationType ModificationType `json:"modification_type"`
	TargetPhase      Phase            `json:"target_phase,omitempty"`
	ScheduledDate    *time.Time       `json:"scheduled_date,omitempty"`
	IsApplied        bool             `json:"is_applied"`
	FromLocation     *Location        `json:"from_location,omitempty"`
	ToLocation       *Location        `json:"to_location,omitempty"`
	StatusChange     string           `json:"status_change,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	UserID           string           `json:"user_id"`
	IdempotencyKey   string           `json:"idempotency_key,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// StatusTransition formats a status change for the audit trail
func StatusTransition(from, to Status4D) string {
	if from == to {
		return ""
	}
	if from == "" {
		return string(to)
	}
	return fmt.Sprintf("%s->%s", from, to)
}
