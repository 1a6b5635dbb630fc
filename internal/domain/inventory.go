package domain

import (
	"fmt"
	"time"
)

// Site is a data-center location
type Site struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Room is a hall or cage within a site
type Room struct {
	ID     string `json:"id" yaml:"id"`
	SiteID string `json:"site_id" yaml:"site_id"`
	Name   string `json:"name" yaml:"name"`
}

// Rack is a vertical equipment frame measured in rack units
type Rack struct {
	ID             string  `json:"id"`
	RoomID         string  `json:"room_id"`
	Name           string  `json:"name"`
	UHeight        int     `json:"u_height"`
	PowerKwLimit   float64 `json:"power_kw_limit"`
	CurrentPowerKw float64 `json:"current_power_kw"`
}

// PowerHeadroomKw returns the unused power budget, never negative
func (r *Rack) PowerHeadroomKw() float64 {
	if h := r.PowerKwLimit - r.CurrentPowerKw; h > 0 {
		return h
	}
	return 0
}

// Device is a piece of equipment mounted in a rack
type Device struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	RackID             string    `json:"rack_id"`
	UStart             int       `json:"u_start"`
	UHeight            int       `json:"u_height"`
	Status4D           Status4D  `json:"status_4d"`
	PowerKw            float64   `json:"power_kw"`
	LogicalEquipmentID string    `json:"logical_equipment_id,omitempty"`
	DeviceTypeID       string    `json:"device_type_id,omitempty"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// UEnd returns the exclusive upper bound of the occupied interval
func (d *Device) UEnd() int {
	return d.UStart + d.UHeight
}

// Overlaps reports whether the device's interval intersects [uStart, uStart+uHeight)
func (d *Device) Overlaps(uStart, uHeight int) bool {
	return d.UStart < uStart+uHeight && uStart < d.UEnd()
}

// VisibleIn reports whether the device appears in the given phase's view
func (d *Device) VisibleIn(p Phase) bool {
	return d.IsActive && p.Shows(d.Status4D)
}

// Location returns the device's current rack position
func (d *Device) Location() *Location {
	return &Location{RackID: d.RackID, UStart: d.UStart}
}

// Location is a rack position recorded in history
type Location struct {
	RackID string `json:"rack_id"`
	UStart int    `json:"u_start"`
}

func (l *Location) String() string {
	if l == nil {
		return "-"
	}
	return fmt.Sprintf("%s/U%d", l.RackID, l.UStart)
}

// IngestionStatus reports whether s is allowed for newly ingested devices
func IngestionStatus(s Status4D) bool {
	return s == StatusProposed || s == StatusExistingRetained
}
