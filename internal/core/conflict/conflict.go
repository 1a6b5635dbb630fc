// Package conflict decides whether a candidate rack placement collides with
// the devices already mounted in that rack under a given planning phase.
package conflict

import (
	"fmt"
	"sort"

	"dctwin/internal/domain"
)

// ErrOutOfBounds is returned when a placement does not fit inside the rack.
// It is a validation error, never a collision.
var ErrOutOfBounds = fmt.Errorf("%w: placement out of rack bounds", domain.ErrValidation)

// Placement is a candidate position for a device
type Placement struct {
	RackID          string
	UStart          int
	UHeight         int
	Phase           domain.Phase
	ExcludeDeviceID string
}

// CheckBounds validates the placement against the rack's usable units (1..rack.UHeight)
func CheckBounds(rack *domain.Rack, p Placement) error {
	if p.UHeight < 1 {
		return fmt.Errorf("%w: device height %d", ErrOutOfBounds, p.UHeight)
	}
	if p.UStart < 1 || p.UStart+p.UHeight-1 > rack.UHeight {
		return fmt.Errorf("%w: U%d-U%d does not fit rack %s (1-%d)",
			ErrOutOfBounds, p.UStart, p.UStart+p.UHeight-1, rack.ID, rack.UHeight)
	}
	return nil
}

// Detect returns the devices in the rack that collide with the placement.
// A device collides when it is active, visible in the placement's phase, not
// excluded, and its U-interval intersects the candidate's. The result is
// ordered by uStart then id. Devices belonging to other racks are ignored.
func Detect(rack *domain.Rack, devices []domain.Device, p Placement) ([]domain.Device, error) {
	if !p.Phase.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", domain.ErrValidation, p.Phase)
	}
	if err := CheckBounds(rack, p); err != nil {
		return nil, err
	}

	var hits []domain.Device
	for _, d := range devices {
		if d.RackID != rack.ID || d.ID == p.ExcludeDeviceID {
			continue
		}
		if !d.VisibleIn(p.Phase) {
			continue
		}
		if d.Overlaps(p.UStart, p.UHeight) {
			hits = append(hits, d)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].UStart != hits[j].UStart {
			return hits[i].UStart < hits[j].UStart
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

// DetectAcross runs Detect for each phase and returns the union of collisions,
// ordered as Detect orders them. Used when the placed device will be visible in
// more than one phase.
func DetectAcross(rack *domain.Rack, devices []domain.Device, p Placement, phases []domain.Phase) ([]domain.Device, error) {
	seen := make(map[string]bool)
	var all []domain.Device
	for _, phase := range phases {
		p.Phase = phase
		hits, err := Detect(rack, devices, p)
		if err != nil {
			return nil, err
		}
		for _, d := range hits {
			if !seen[d.ID] {
				seen[d.ID] = true
				all = append(all, d)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UStart != all[j].UStart {
			return all[i].UStart < all[j].UStart
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

// FindOverlaps reports every pair of devices that overlap within one rack in phase p.
// It is used to validate ingested scenes.
func FindOverlaps(devices []domain.Device, p domain.Phase) [][2]domain.Device {
	byRack := make(map[string][]domain.Device)
	for _, d := range devices {
		if d.VisibleIn(p) {
			byRack[d.RackID] = append(byRack[d.RackID], d)
		}
	}

	rackIDs := make([]string, 0, len(byRack))
	for id := range byRack {
		rackIDs = append(rackIDs, id)
	}
	sort.Strings(rackIDs)

	var pairs [][2]domain.Device
	for _, id := range rackIDs {
		ds := byRack[id]
		sort.Slice(ds, func(i, j int) bool {
			if ds[i].UStart != ds[j].UStart {
				return ds[i].UStart < ds[j].UStart
			}
			return ds[i].ID < ds[j].ID
		})
		for i := 0; i < len(ds); i++ {
			for j := i + 1; j < len(ds) && ds[j].UStart < ds[i].UEnd(); j++ {
				pairs = append(pairs, [2]domain.Device{ds[i], ds[j]})
			}
		}
	}
	return pairs
}
