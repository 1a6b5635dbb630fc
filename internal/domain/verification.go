package domain

import "fmt"

// Observation is what a field technician recorded for a slot or asset
type Observation string

const (
	ObservedPresent Observation = "PRESENT"
	ObservedAbsent  Observation = "ABSENT"
)

// VerificationRecord is one normalized row of a physical verification scan
type VerificationRecord struct {
	LogicalEquipmentID string      `json:"logical_equipment_id,omitempty" yaml:"logical_equipment_id,omitempty"`
	RackID             string      `json:"rack_id,omitempty" yaml:"rack_id,omitempty"`
	UStart             int         `json:"u_start,omitempty" yaml:"u_start,omitempty"`
	UHeight            int         `json:"u_height,omitempty" yaml:"u_height,omitempty"`
	DeviceTypeID       string      `json:"device_type_id,omitempty" yaml:"device_type_id,omitempty"`
	PowerKw            *float64    `json:"power_kw,omitempty" yaml:"power_kw,omitempty"`
	Observed           Observation `json:"observed,omitempty" yaml:"observed,omitempty"`
	Serial             string      `json:"serial,omitempty" yaml:"serial,omitempty"`
	Notes              string      `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Observation returns the recorded observation, defaulting to PRESENT
func (r *VerificationRecord) Observation() Observation {
	if r.Observed == "" {
		return ObservedPresent
	}
	return r.Observed
}

// IdentityKey returns the logical identity used to pair the record with a device
func (r *VerificationRecord) IdentityKey() string {
	return IdentityKey(r.LogicalEquipmentID, r.RackID, r.UStart)
}

// DeviceIdentityKey returns the logical identity of a canonical device
func DeviceIdentityKey(d *Device) string {
	return IdentityKey(d.LogicalEquipmentID, d.RackID, d.UStart)
}

// IdentityKey prefers the logical equipment id and falls back to the rack position
func IdentityKey(logicalEquipmentID, rackID string, uStart int) string {
	if logicalEquipmentID != "" {
		return "leid:" + logicalEquipmentID
	}
	return PositionKey(rackID, uStart)
}

// PositionKey identifies a rack slot
func PositionKey(rackID string, uStart int) string {
	return fmt.Sprintf("pos:%s:%d", rackID, uStart)
}
